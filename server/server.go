// Package server serves a cache over the framed binary protocol.
//
// Each accepted connection gets its own goroutine running a strict
// receive → dispatch → send loop, so requests on one connection are
// answered in order while connections proceed independently. A bad frame
// or I/O failure closes only the connection it happened on.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/shardcached/protocol"
)

// Store is the part of the cache the server needs. *cache.Cache satisfies it.
type Store interface {
	Set(key string, value []byte) error
	SetWithExpiration(key string, value []byte, seconds uint32) error
	Get(key string) ([]byte, bool)
	Remove(key string) ([]byte, bool)
	Clear()
}

// Server answers protocol requests against a Store.
// It is safe to Serve several listeners with one Server.
type Server struct {
	store   Store
	opt     Options
	log     zerolog.Logger
	metrics Metrics
}

// New returns a Server backed by store.
func New(store Store, opt Options) *Server {
	log := zerolog.Nop()
	if opt.Logger != nil {
		log = *opt.Logger
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.MaxPayload == 0 {
		opt.MaxPayload = protocol.DefaultMaxPayload
	}
	return &Server{
		store:   store,
		opt:     opt,
		log:     log,
		metrics: opt.Metrics,
	}
}

// ListenAndServe listens on network ("tcp" or "unix") and address and
// serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, network, address string) error {
	ln, err := Listen(ctx, network, address)
	if err != nil {
		return err
	}
	s.log.Info().Str("network", network).Str("address", ln.Addr().String()).Msg("listening")
	return s.Serve(ctx, ln)
}

// Listen opens a listener for Serve. For "unix" a stale socket file at
// address is removed first; failing to remove it is an error.
func Listen(ctx context.Context, network, address string) (net.Listener, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	case "unix":
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("server: remove stale socket %s: %w", address, err)
		}
	default:
		return nil, fmt.Errorf("server: unsupported network %q", network)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("server: listen on %s %s: %w", network, address, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled or ln fails.
// Cancelling ctx closes ln and every open connection; Serve returns once
// all connection goroutines have finished. ln is always closed on return.
// The returned error is nil after a cancellation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var g errgroup.Group
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				cancel()
				_ = g.Wait()
				return fmt.Errorf("server: accept: %w", err)
			}
			delay = backoff(delay)
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		g.Go(func() error {
			s.ServeConn(ctx, conn)
			return nil
		})
	}

	_ = ln.Close()
	_ = g.Wait()
	s.log.Info().Msg("server stopped")
	return nil
}

// ServeConn runs the request loop on conn until the peer hangs up, a frame
// is bad, or ctx is cancelled. conn is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	log := s.log.With().Str("remote", remoteAddr(conn)).Logger()

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()
	defer func() { _ = conn.Close() }()

	// Closing the conn is what unblocks a pending Receive.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log.Debug().Msg("connection opened")
	sock := protocol.NewSocket(conn, s.opt.MaxPayload)
	for {
		if s.opt.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.opt.IdleTimeout)); err != nil {
				log.Debug().Err(err).Msg("set read deadline")
				return
			}
		}

		req, err := sock.Receive()
		if err != nil {
			s.logReceiveError(ctx, log, err)
			return
		}

		start := time.Now()
		resp := s.Handle(req)
		if err := sock.Send(resp); err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Stringer("kind", req.Kind()).Msg("write response")
			}
			return
		}
		s.metrics.Request(req.Kind(), time.Since(start))
	}
}

// Handle maps one request to its response. It never fails: cache
// precondition violations come back as protocol.Error.
func (s *Server) Handle(req protocol.Message) protocol.Response {
	switch req := req.(type) {
	case protocol.Ping:
		return protocol.Pong{}

	case protocol.Version:
		if req.Version != protocol.ProtocolVersion {
			return protocol.Error{Message: fmt.Sprintf("unsupported protocol version %d, server speaks %d", req.Version, protocol.ProtocolVersion)}
		}
		return protocol.Ok{}

	case protocol.Get:
		v, ok := s.store.Get(req.Key)
		if !ok {
			return protocol.KeyNotFound{}
		}
		return protocol.Value{Data: v}

	case protocol.Set:
		var err error
		if req.Expiration == 0 {
			err = s.store.Set(req.Key, req.Value)
		} else {
			err = s.store.SetWithExpiration(req.Key, req.Value, req.Expiration)
		}
		if err != nil {
			return protocol.Error{Message: err.Error()}
		}
		return protocol.Ok{}

	case protocol.Delete:
		if _, ok := s.store.Remove(req.Key); !ok {
			return protocol.KeyNotFound{}
		}
		return protocol.Ok{}

	case protocol.Clear:
		s.store.Clear()
		return protocol.Ok{}

	case protocol.Response:
		return protocol.Error{Message: "unexpected response message"}

	default:
		return protocol.Error{Message: fmt.Sprintf("unsupported request %s", req.Kind())}
	}
}

func (s *Server) logReceiveError(ctx context.Context, log zerolog.Logger, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, protocol.ErrEndOfStream):
		log.Debug().Msg("connection closed by peer")
	case ctx.Err() != nil || errors.Is(err, net.ErrClosed):
		log.Debug().Msg("connection closed on shutdown")
	case errors.As(err, &ne) && ne.Timeout():
		log.Debug().Dur("idle_timeout", s.opt.IdleTimeout).Msg("connection idle, closing")
	case errors.Is(err, protocol.ErrUnknownKind),
		errors.Is(err, protocol.ErrInvalidUTF8),
		errors.Is(err, protocol.ErrMalformedPayload),
		errors.Is(err, protocol.ErrFrameTooLarge):
		s.metrics.ProtocolError()
		log.Warn().Err(err).Msg("bad frame, closing connection")
	default:
		log.Warn().Err(err).Msg("read failed, closing connection")
	}
}

func backoff(d time.Duration) time.Duration {
	const maxDelay = time.Second
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxDelay {
		d = maxDelay
	}
	return d
}

func remoteAddr(c net.Conn) string {
	if a := c.RemoteAddr(); a != nil && a.String() != "" {
		return a.String()
	}
	return "local"
}
