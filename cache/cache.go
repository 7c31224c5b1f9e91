package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/IvanBrykalov/shardcached/internal/util"
)

// ErrInvalidBudget is returned by New when the budget cannot be split
// across the requested segments.
var ErrInvalidBudget = errors.New("cache: invalid budget")

// segment is one independently locked partition of the keyspace.
type segment struct {
	mu  sync.Mutex
	lru *LRU[String, Entry]

	_ util.CacheLinePad
}

// Cache is a sharded, byte-budgeted LRU cache of string keys to byte values.
// All methods are safe for concurrent use. Operations on keys that live in
// different segments never wait for each other.
type Cache struct {
	segments []*segment
	hash     func(string) uint64
	opt      Options

	hits        util.PaddedAtomicUint64
	misses      util.PaddedAtomicUint64
	evictions   util.PaddedAtomicUint64
	expirations util.PaddedAtomicUint64
	rejections  util.PaddedAtomicUint64

	// coalesces concurrent loads for the same key in GetOrLoad.
	sf singleflight.Group
}

// Stats is a point-in-time snapshot of cache counters and occupancy.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Rejections  uint64
	Len         int
	Bytesize    int
}

// New builds a Cache. The byte and length budgets are divided evenly across
// segments; the first segment also receives the division remainder.
func New(opt Options) (*Cache, error) {
	if opt.Segments <= 0 {
		opt.Segments = util.ReasonableShardCount()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Clock == nil {
		opt.Clock = systemClock{}
	}
	n := opt.Segments
	if opt.MaxBytesize/n <= 0 {
		return nil, fmt.Errorf("%w: max bytesize %d is smaller than segment count %d", ErrInvalidBudget, opt.MaxBytesize, n)
	}
	if opt.MaxLen < 0 || (opt.MaxLen > 0 && opt.MaxLen/n == 0) {
		return nil, fmt.Errorf("%w: max len %d cannot be split across %d segments", ErrInvalidBudget, opt.MaxLen, n)
	}

	c := &Cache{
		segments: make([]*segment, n),
		hash:     util.Fnv64a,
		opt:      opt,
	}
	for i := range n {
		maxBytes, maxLen := opt.MaxBytesize/n, opt.MaxLen/n
		if i == 0 {
			maxBytes += opt.MaxBytesize % n
			maxLen += opt.MaxLen % n
		}
		lru := NewLRU[String, Entry](maxBytes, maxLen)
		lru.OnEvict(c.onEvict)
		c.segments[i] = &segment{lru: lru}
	}
	return c, nil
}

// Set stores key→value without expiration.
// The value is copied; the caller may reuse its slice.
func (c *Cache) Set(key string, value []byte) error {
	return c.set(key, NewEntry(bytes.Clone(value)))
}

// SetWithExpiration stores key→value expiring after seconds whole seconds.
// seconds == 0 means the entry never expires.
func (c *Cache) SetWithExpiration(key string, value []byte, seconds uint32) error {
	return c.set(key, NewExpiringEntry(bytes.Clone(value), seconds, c.opt.Clock.Now()))
}

// Get returns a copy of the value for key. An expired entry is removed
// and reported absent. The segment lock is held across lookup, expiry
// check and removal.
func (c *Cache) Get(key string) ([]byte, bool) {
	return c.get(key, true)
}

// get is Get; record controls whether the lookup counts as a hit or miss.
func (c *Cache) get(key string, record bool) ([]byte, bool) {
	s := c.segmentFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(String(key))
	if ok && e.Expired(c.opt.Clock.Now()) {
		s.lru.Remove(String(key))
		c.expire(key, e)
		ok = false
	}
	if !ok {
		if record {
			c.miss()
		}
		return nil, false
	}
	if record {
		c.hits.Add(1)
		c.opt.Metrics.Hit()
	}
	return bytes.Clone(e.value), true
}

// Remove deletes key and returns its value. An entry that had already
// expired is still purged but reported absent.
func (c *Cache) Remove(key string) ([]byte, bool) {
	s := c.segmentFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Remove(String(key))
	if !ok {
		return nil, false
	}
	if e.Expired(c.opt.Clock.Now()) {
		c.expire(key, e)
		return nil, false
	}
	return e.value, true
}

// Clear empties every segment, one lock at a time. It is not atomic:
// a concurrent Set may land in a segment that was already cleared.
func (c *Cache) Clear() {
	for _, s := range c.segments {
		s.mu.Lock()
		s.lru.Clear()
		s.mu.Unlock()
	}
}

// GetOrLoad returns the value for key, calling load on a miss and storing
// its result without expiration. Concurrent loads for the same key are
// coalesced and run with the first caller's ctx. A caller whose ctx is done
// stops waiting; the load keeps running for the others. A loaded value too
// large to cache is reported as ErrTooLarge.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context, key string) ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	ch := c.sf.DoChan(key, func() (any, error) {
		// Another caller may have stored it since; that lookup is not a new read.
		if v, ok := c.get(key, false); ok {
			return v, nil
		}
		v, err := load(ctx, key)
		if err != nil {
			return nil, err
		}
		return v, c.Set(key, v)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return bytes.Clone(r.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SegmentOf returns the index of the segment that owns key.
func (c *Cache) SegmentOf(key string) int {
	return util.ShardIndex(c.hash(key), len(c.segments))
}

// Segments returns the fixed segment count.
func (c *Cache) Segments() int { return len(c.segments) }

// MaxBytesize returns the total byte budget across segments.
func (c *Cache) MaxBytesize() int { return c.opt.MaxBytesize }

// Len returns the number of resident entries across all segments.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.segments {
		s.mu.Lock()
		total += s.lru.Len()
		s.mu.Unlock()
	}
	return total
}

// Bytesize returns the bytes charged across all segments.
func (c *Cache) Bytesize() int {
	total := 0
	for _, s := range c.segments {
		s.mu.Lock()
		total += s.lru.Bytesize()
		s.mu.Unlock()
	}
	return total
}

// Stats returns counters and occupancy. Occupancy is summed segment by
// segment and may be slightly stale under concurrent writes.
func (c *Cache) Stats() Stats {
	st := Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Rejections:  c.rejections.Load(),
	}
	for _, s := range c.segments {
		s.mu.Lock()
		st.Len += s.lru.Len()
		st.Bytesize += s.lru.Bytesize()
		s.mu.Unlock()
	}
	return st
}

// ---- helpers ----

func (c *Cache) set(key string, e Entry) error {
	s := c.segmentFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.lru.Set(String(key), e); err != nil {
		c.rejections.Add(1)
		c.opt.Metrics.Reject()
		return err
	}
	return nil
}

func (c *Cache) segmentFor(key string) *segment {
	return c.segments[c.SegmentOf(key)]
}

func (c *Cache) miss() {
	c.misses.Add(1)
	c.opt.Metrics.Miss()
}

// onEvict runs under the segment lock for LRU evictions.
func (c *Cache) onEvict(k String, e Entry, reason EvictReason) {
	c.evictions.Add(1)
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(string(k), e.value, reason)
	}
}

// expire accounts for an expired entry the caller already removed.
func (c *Cache) expire(key string, e Entry) {
	c.expirations.Add(1)
	c.opt.Metrics.Evict(EvictTTL)
	if cb := c.opt.OnEvict; cb != nil {
		cb(key, e.value, EvictTTL)
	}
}
