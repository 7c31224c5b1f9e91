// Package prom exports cache and server metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/shardcached/cache"
	"github.com/IvanBrykalov/shardcached/protocol"
	"github.com/IvanBrykalov/shardcached/server"
)

// Adapter implements cache.Metrics and server.Metrics and exports
// Prometheus counters, gauges and histograms.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	reg         prometheus.Registerer
	ns          string
	constLabels prometheus.Labels

	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	rejects prometheus.Counter

	connsOpen      prometheus.Gauge
	connsTotal     prometheus.Counter
	requests       *prometheus.HistogramVec
	protocolErrors prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns:           Prometheus namespace; cache metrics use subsystem "cache",
//     server metrics use subsystem "server"
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const cacheSub, serverSub = "cache", "server"
	a := &Adapter{
		reg:         reg,
		ns:          ns,
		constLabels: constLabels,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   cacheSub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   cacheSub,
			Name:        "misses_total",
			Help:        "Cache misses, expired entries included",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   cacheSub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		rejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   cacheSub,
			Name:        "rejections_total",
			Help:        "Sets refused because the item exceeds a segment budget",
			ConstLabels: constLabels,
		}),
		connsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   serverSub,
			Name:        "connections_open",
			Help:        "Currently open client connections",
			ConstLabels: constLabels,
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   serverSub,
			Name:        "connections_total",
			Help:        "Accepted client connections",
			ConstLabels: constLabels,
		}),
		requests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   serverSub,
				Name:        "request_duration_seconds",
				Help:        "Time to handle a request and write its response, by request kind",
				ConstLabels: constLabels,
				Buckets:     prometheus.ExponentialBuckets(5e-6, 4, 10),
			},
			[]string{"kind"},
		),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   serverSub,
			Name:        "protocol_errors_total",
			Help:        "Connections dropped for an undecodable or oversized frame",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(
		a.hits, a.misses, a.evicts, a.rejects,
		a.connsOpen, a.connsTotal, a.requests, a.protocolErrors,
	)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Reject increments the rejection counter.
func (a *Adapter) Reject() { a.rejects.Inc() }

func (a *Adapter) ConnOpened() {
	a.connsOpen.Inc()
	a.connsTotal.Inc()
}

func (a *Adapter) ConnClosed() { a.connsOpen.Dec() }

// Request observes the handling time of one request.
func (a *Adapter) Request(kind protocol.Kind, took time.Duration) {
	a.requests.WithLabelValues(kind.String()).Observe(took.Seconds())
}

func (a *Adapter) ProtocolError() { a.protocolErrors.Inc() }

// Sizer is the read-only view ObserveCache samples. *cache.Cache satisfies it.
type Sizer interface {
	Len() int
	Bytesize() int
	MaxBytesize() int
}

// ObserveCache registers gauges sampled from c at scrape time, so the
// hot path never updates them.
func (a *Adapter) ObserveCache(c Sizer) {
	gauge := func(name, help string, f func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   a.ns,
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: a.constLabels,
		}, f)
	}
	a.reg.MustRegister(
		gauge("entries", "Number of resident entries", func() float64 { return float64(c.Len()) }),
		gauge("bytes", "Resident key and value bytes", func() float64 { return float64(c.Bytesize()) }),
		gauge("max_bytes", "Configured byte budget", func() float64 { return float64(c.MaxBytesize()) }),
	)
}

// Compile-time checks.
var (
	_ cache.Metrics  = (*Adapter)(nil)
	_ server.Metrics = (*Adapter)(nil)
)
