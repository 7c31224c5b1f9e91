package cache

// EvictReason explains why an entry was removed without being asked to.
type EvictReason int

const (
	// EvictBytes: LRU entry dropped to fit the segment byte budget.
	EvictBytes EvictReason = iota
	// EvictLen: LRU entry dropped to respect the segment entry cap.
	EvictLen
	// EvictTTL: expired entry purged lazily by Get or Remove.
	EvictTTL
)

func (r EvictReason) String() string {
	switch r {
	case EvictBytes:
		return "bytes"
	case EvictLen:
		return "len"
	case EvictTTL:
		return "ttl"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// Hooks run under the segment lock; keep them cheap.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Reject is called when Set refuses an item larger than a segment.
	Reject()
}

// Options configures a Cache. Defaults applied in New():
//   - Segments <= 0 => ReasonableShardCount()
//   - nil Metrics   => NoopMetrics
//   - nil Clock     => time.Now
type Options struct {
	// MaxBytesize is the total byte budget, split across segments. Required.
	MaxBytesize int

	// MaxLen is the total entry-count cap, split across segments (0 = none).
	MaxLen int

	// Segments is the number of independently locked partitions.
	Segments int

	// OnEvict is called for capacity and TTL evictions, under the segment lock.
	OnEvict func(key string, value []byte, reason EvictReason)

	Metrics Metrics

	// Clock overrides the time source (tests).
	Clock Clock
}
