package server

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/shardcached/protocol"
)

// Metrics exposes server-level observability hooks.
// Hooks are called from connection goroutines; implementations must be
// safe for concurrent use.
type Metrics interface {
	ConnOpened()
	ConnClosed()
	// Request is called once a response has been written.
	Request(kind protocol.Kind, took time.Duration)
	// ProtocolError is called when a connection is dropped for a bad frame.
	ProtocolError()
}

// NoopMetrics is the default Metrics; it does nothing.
type NoopMetrics struct{}

func (NoopMetrics) ConnOpened()                          {}
func (NoopMetrics) ConnClosed()                          {}
func (NoopMetrics) Request(protocol.Kind, time.Duration) {}
func (NoopMetrics) ProtocolError()                       {}

var _ Metrics = NoopMetrics{}

// Options configures a Server. Defaults applied in New():
//   - nil Logger    => zerolog.Nop()
//   - nil Metrics   => NoopMetrics
//   - MaxPayload 0  => protocol.DefaultMaxPayload
type Options struct {
	Logger  *zerolog.Logger
	Metrics Metrics

	// IdleTimeout closes a connection that sends nothing for this long
	// (0 = wait forever).
	IdleTimeout time.Duration

	// MaxPayload caps the payload length of an incoming frame.
	MaxPayload uint64
}
