// Package cache provides the sharded, byte-budgeted LRU store behind the
// shardcached server.
//
// Design
//
//   - Size model: keys and values implement ByteSized. String and Bytes
//     charge their length; Entry charges the length of its value.
//
//   - LRU: a single-threaded map plus an intrusive MRU↔LRU doubly linked
//     list. Set evicts the strict least recently used entry until the new
//     item fits the byte budget (and the optional entry cap). An item larger
//     than the segment budget is rejected with ErrTooLarge.
//
//   - Sharding: Cache splits the keyspace into a fixed number of segments,
//     each an LRU behind its own mutex. A key's segment is FNV-1a(key) modulo
//     the segment count, so it is stable for the lifetime of the cache and
//     identical across caches with the same segment count. The global byte
//     and length budgets are split by integer division; the first segment
//     absorbs the remainder.
//
//   - Expiration: entries may carry a clock measured in whole seconds. It is
//     checked lazily by Get and Remove under the segment lock; an expired
//     entry is purged and reported absent. There is no background sweeper.
//
//   - Clear walks segments one at a time and is not atomic across the cache.
//
// Basic usage
//
//	c, err := cache.New(cache.Options{MaxBytesize: 1 << 30, Segments: 10})
//	if err != nil {
//	    return err
//	}
//	_ = c.Set("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v // a copy of the stored bytes
//	}
//	c.Remove("a")
//
// With expiration
//
//	_ = c.SetWithExpiration("tmp", []byte("v"), 1) // expires once 2s have elapsed
//
// Exporting metrics
//
//	m := prom.New(nil, "shardcached", nil) // implements Metrics
//	c, _ := cache.New(cache.Options{MaxBytesize: 64 << 20, Metrics: m})
package cache
