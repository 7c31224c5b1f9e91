package cache

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkMix exercises a read/write mix against a warm cache with
// parallel workers (RunParallel spawns GOMAXPROCS goroutines).
func benchmarkMix(b *testing.B, readsPct, segments int) {
	c, err := New(Options{MaxBytesize: 64 << 20, Segments: segments})
	if err != nil {
		b.Fatal(err)
	}
	val := make([]byte, 128)

	for i := 0; i < 50_000; i++ {
		_ = c.Set("k:"+strconv.Itoa(i), val)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				c.Get(k)
			} else {
				_ = c.Set(k, val)
			}
			i++
		}
	})
}

func BenchmarkCache_90r10w(b *testing.B) { benchmarkMix(b, 90, 0) }
func BenchmarkCache_50r50w(b *testing.B) { benchmarkMix(b, 50, 0) }

// One segment serializes every operation; compare with the sharded runs.
func BenchmarkCache_50r50w_OneSegment(b *testing.B) { benchmarkMix(b, 50, 1) }
