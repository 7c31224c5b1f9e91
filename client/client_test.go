package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/shardcached/cache"
	"github.com/IvanBrykalov/shardcached/protocol"
	"github.com/IvanBrykalov/shardcached/server"
)

func startServer(t *testing.T, maxBytes int) string {
	t.Helper()
	c, err := cache.New(cache.Options{MaxBytesize: maxBytes, Segments: 2})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = server.New(c, server.Options{}).Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, "tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Operations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := dial(t, startServer(t, 1<<20))

	require.NoError(t, c.Version(ctx))
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, c.SetWithExpiration(ctx, "t", []byte("x"), 3600))
	_, ok, err = c.Get(ctx, "t")
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Get(ctx, "t")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ServerErrorForTooLarge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := dial(t, startServer(t, 64))

	err := c.Set(ctx, "k", make([]byte, 100))
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "item is too large")

	// Application errors leave the connection usable.
	require.NoError(t, c.Ping(ctx))
}

// fakeServer answers every request on the server side of a pipe with reply.
func fakeServer(t *testing.T, reply func(protocol.Message) (protocol.Message, bool)) *Client {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { _ = b.Close() })
	go func() {
		s := protocol.NewSocket(b, 0)
		for {
			req, err := s.Receive()
			if err != nil {
				return
			}
			resp, ok := reply(req)
			if !ok {
				continue
			}
			if err := s.Send(resp); err != nil {
				return
			}
		}
	}()
	c := New(a)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_UnexpectedResponse(t *testing.T) {
	t.Parallel()

	c := fakeServer(t, func(protocol.Message) (protocol.Message, bool) {
		return protocol.Pong{}, true
	})

	_, _, err := c.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.Contains(t, err.Error(), "pong in reply to get")
}

func TestClient_ContextCancelInterruptsAndCloses(t *testing.T) {
	t.Parallel()

	// Never answers.
	c := fakeServer(t, func(protocol.Message) (protocol.Message, bool) { return nil, false })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Ping(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.ErrorIs(t, c.Ping(context.Background()), ErrClosed)
}

func TestClient_DoneContextIsNotSent(t *testing.T) {
	t.Parallel()

	c := fakeServer(t, func(protocol.Message) (protocol.Message, bool) {
		return protocol.Pong{}, true
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, c.Ping(ctx), context.Canceled)
	// Nothing was written, so the client is still usable.
	require.NoError(t, c.Ping(context.Background()))
}

func TestClient_InvalidUTF8KeyKeepsConnection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := dial(t, startServer(t, 1<<20))

	_, _, err := c.Get(ctx, "bad\xff")
	require.ErrorIs(t, err, protocol.ErrInvalidUTF8)
	require.ErrorIs(t, c.Set(ctx, "bad\xff", []byte("v")), protocol.ErrInvalidUTF8)
	_, err = c.Delete(ctx, "bad\xff")
	require.ErrorIs(t, err, protocol.ErrInvalidUTF8)

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "good", []byte("v")))
	v, ok, err := c.Get(ctx, "good")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	c := dial(t, startServer(t, 1<<10))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Ping(context.Background()), ErrClosed)
}

func TestClient_ConcurrentCallsAreSerialized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := dial(t, startServer(t, 1<<20))

	errs := make(chan error, 16)
	for i := range 16 {
		go func() {
			key := string(rune('a' + i))
			if err := c.Set(ctx, key, []byte(key)); err != nil {
				errs <- err
				return
			}
			v, ok, err := c.Get(ctx, key)
			switch {
			case err != nil:
				errs <- err
			case !ok || string(v) != key:
				errs <- errors.New("wrong value for " + key)
			default:
				errs <- nil
			}
		}()
	}
	for range 16 {
		require.NoError(t, <-errs)
	}
}
