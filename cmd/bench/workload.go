package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/shardcached/cache"
	"github.com/IvanBrykalov/shardcached/client"
	"github.com/IvanBrykalov/shardcached/server"
)

type options struct {
	Network  string
	Address  string
	Embedded bool
	MaxBytes int
	Segments int

	Conns    int
	Duration time.Duration
	ReadPct  int

	Keys      int
	ZipfS     float64
	ZipfV     float64
	Seed      int64
	ValueSize int
	TTL       uint32
	Preload   int

	Logger  *zerolog.Logger
	Latency *prometheus.HistogramVec
}

func defaultOptions() options {
	return options{
		Network:   "tcp",
		Address:   "127.0.0.1:9090",
		MaxBytes:  256 << 20,
		Segments:  16,
		Conns:     4,
		Duration:  10 * time.Second,
		ReadPct:   80,
		Keys:      100_000,
		ZipfS:     1.1,
		ZipfV:     1.0,
		ValueSize: 64,
	}
}

func newLatency(reg prometheus.Registerer) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shardcached",
		Subsystem: "bench",
		Name:      "request_duration_seconds",
		Help:      "Client-observed round-trip time by operation",
		Buckets:   prometheus.ExponentialBuckets(10e-6, 2, 16),
	}, []string{"op"})
	reg.MustRegister(h)
	return h
}

type report struct {
	Elapsed                    time.Duration
	Ops, Reads, Writes         uint64
	Hits, Misses, ServerErrors uint64
}

func (r report) print(w io.Writer, opt options) {
	hitRate := 0.0
	if r.Reads > 0 {
		hitRate = float64(r.Hits) / float64(r.Reads) * 100
	}
	fmt.Fprintf(w, "conns=%d keys=%d value=%dB dur=%v seed=%d\n",
		opt.Conns, opt.Keys, opt.ValueSize, r.Elapsed.Round(time.Millisecond), opt.Seed)
	fmt.Fprintf(w, "ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		r.Ops, float64(r.Ops)/r.Elapsed.Seconds(), r.Reads, r.Writes)
	fmt.Fprintf(w, "hits=%d  misses=%d  hit-rate=%.2f%%  server-errors=%d\n",
		r.Hits, r.Misses, hitRate, r.ServerErrors)
}

// run executes the workload and returns aggregate counts.
func run(ctx context.Context, opt options) (report, error) {
	log := zerolog.Nop()
	if opt.Logger != nil {
		log = *opt.Logger
	}
	if opt.Conns <= 0 {
		opt.Conns = 1
	}
	if opt.Keys <= 0 {
		return report{}, errors.New("keys must be positive")
	}
	if opt.ZipfS <= 1 || opt.ZipfV < 1 {
		return report{}, fmt.Errorf("zipf needs s > 1 and v >= 1, got s=%v v=%v", opt.ZipfS, opt.ZipfV)
	}

	network, address := opt.Network, opt.Address
	if opt.Embedded {
		addr, stop, err := startEmbedded(ctx, opt, log)
		if err != nil {
			return report{}, err
		}
		defer stop()
		network, address = "tcp", addr
	}

	clients := make([]*client.Client, opt.Conns)
	for i := range clients {
		c, err := client.Dial(ctx, network, address)
		if err != nil {
			return report{}, err
		}
		defer func() { _ = c.Close() }()
		clients[i] = c
	}
	log.Debug().Int("conns", len(clients)).Str("address", address).Msg("connected")

	value := bytes.Repeat([]byte("v"), opt.ValueSize)

	// ---- Preload half the keyspace to get a realistic hit-rate ----
	pl := opt.Preload
	if pl == 0 {
		pl = opt.Keys / 2
	}
	for i := 0; i < pl; i++ {
		if err := clients[0].SetWithExpiration(ctx, key(uint64(i)), value, opt.TTL); err != nil {
			return report{}, fmt.Errorf("preload: %w", err)
		}
	}

	var reads, writes, hits, misses, serverErrs, total atomic.Uint64
	runCtx, cancel := context.WithTimeout(ctx, opt.Duration)
	defer cancel()

	observe := func(op string, start time.Time) {
		if opt.Latency != nil {
			opt.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for id, c := range clients {
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(opt.Seed + int64(id)*9973))
			zipf := rand.NewZipf(r, opt.ZipfS, opt.ZipfV, uint64(opt.Keys-1))

			for gctx.Err() == nil {
				k := key(zipf.Uint64())
				t0 := time.Now()
				if int(r.Int31n(100)) < opt.ReadPct {
					_, ok, err := c.Get(gctx, k)
					if err != nil {
						return ignoreDone(gctx, err)
					}
					observe("get", t0)
					total.Add(1)
					reads.Add(1)
					if ok {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
					continue
				}

				err := c.SetWithExpiration(gctx, k, value, opt.TTL)
				var se *client.ServerError
				switch {
				case errors.As(err, &se):
					serverErrs.Add(1)
				case err != nil:
					return ignoreDone(gctx, err)
				}
				observe("set", t0)
				total.Add(1)
				writes.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	rep := report{
		Elapsed:      time.Since(start),
		Ops:          total.Load(),
		Reads:        reads.Load(),
		Writes:       writes.Load(),
		Hits:         hits.Load(),
		Misses:       misses.Load(),
		ServerErrors: serverErrs.Load(),
	}
	return rep, err
}

func key(n uint64) string { return "k:" + strconv.FormatUint(n, 10) }

// ignoreDone drops errors caused by the run ending mid-request.
func ignoreDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func startEmbedded(ctx context.Context, opt options, log zerolog.Logger) (string, func(), error) {
	c, err := cache.New(cache.Options{MaxBytesize: opt.MaxBytes, Segments: opt.Segments})
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	srvLog := log.With().Str("component", "embedded").Logger()
	srv := server.New(c, server.Options{Logger: &srvLog})

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx, ln); err != nil {
			srvLog.Warn().Err(err).Msg("embedded server failed")
		}
	}()
	return ln.Addr().String(), func() {
		cancel()
		<-done
	}, nil
}
