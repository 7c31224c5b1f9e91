// Package client is a small synchronous client for a shardcached server.
//
// A Client owns one connection and sends one request at a time; it is safe
// for concurrent use, with calls serialized on the connection. Open several
// clients for parallelism.
//
//	c, err := client.Dial(ctx, "tcp", "127.0.0.1:9090")
//	if err != nil { ... }
//	defer c.Close()
//
//	_ = c.SetWithExpiration(ctx, "session:42", []byte("alice"), 60)
//	v, ok, err := c.Get(ctx, "session:42")
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/IvanBrykalov/shardcached/protocol"
)

var (
	// ErrClosed is returned by calls on a closed Client. A Client closes
	// itself after a transport failure, since the stream position is lost.
	ErrClosed = errors.New("client: closed")

	// ErrUnexpectedResponse reports a response kind that does not answer
	// the request that was sent.
	ErrUnexpectedResponse = errors.New("client: unexpected response")
)

// ServerError is an Error response sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server: " + e.Message }

// Client talks to one server over one connection.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	sock   *protocol.Socket
	closed bool
}

// Dial connects to a server on network ("tcp" or "unix") and address.
func Dial(ctx context.Context, network, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s %s: %w", network, address, err)
	}
	return New(conn), nil
}

// New wraps an established connection. The Client takes ownership of conn.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, sock: protocol.NewSocket(conn, 0)}
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Call sends req and returns the server's response as is. Transport and
// decode failures close the Client. A key that is not valid UTF-8 fails
// with protocol.ErrInvalidUTF8 and leaves the Client usable. ctx bounds
// the whole exchange.
func (c *Client) Call(ctx context.Context, req protocol.Request) (protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Refused locally; the connection is untouched.
	if err := protocol.Validate(req); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.fail(err)
	}
	// An already-passed deadline interrupts blocked I/O.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := c.sock.Send(req); err != nil {
		return nil, c.fail(ctxErr(ctx, err))
	}
	resp, err := c.sock.Receive()
	if err != nil {
		return nil, c.fail(ctxErr(ctx, err))
	}
	return resp, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Call(ctx, protocol.Ping{})
	if err != nil {
		return err
	}
	if _, ok := resp.(protocol.Pong); !ok {
		return unexpected(protocol.KindPing, resp)
	}
	return nil
}

// Version announces protocol.ProtocolVersion to the server.
func (c *Client) Version(ctx context.Context) error {
	return c.expectOk(ctx, protocol.Version{Version: protocol.ProtocolVersion})
}

// Get returns the value stored under key. A missing or expired key
// reports ok == false with a nil error.
func (c *Client) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	resp, err := c.Call(ctx, protocol.Get{Key: key})
	if err != nil {
		return nil, false, err
	}
	switch r := resp.(type) {
	case protocol.Value:
		return r.Data, true, nil
	case protocol.KeyNotFound:
		return nil, false, nil
	default:
		return nil, false, unexpected(protocol.KindGet, resp)
	}
}

// Set stores value under key without expiration.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	return c.SetWithExpiration(ctx, key, value, 0)
}

// SetWithExpiration stores value under key for seconds whole seconds
// (0 = never expires). An item too large for the server's segments
// comes back as a *ServerError.
func (c *Client) SetWithExpiration(ctx context.Context, key string, value []byte, seconds uint32) error {
	return c.expectOk(ctx, protocol.Set{Key: key, Value: value, Expiration: seconds})
}

// Delete removes key and reports whether a live entry was removed.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	resp, err := c.Call(ctx, protocol.Delete{Key: key})
	if err != nil {
		return false, err
	}
	switch resp.(type) {
	case protocol.Ok:
		return true, nil
	case protocol.KeyNotFound:
		return false, nil
	default:
		return false, unexpected(protocol.KindDelete, resp)
	}
}

// Clear removes every entry on the server.
func (c *Client) Clear(ctx context.Context) error {
	return c.expectOk(ctx, protocol.Clear{})
}

func (c *Client) expectOk(ctx context.Context, req protocol.Request) error {
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	if _, ok := resp.(protocol.Ok); !ok {
		return unexpected(req.Kind(), resp)
	}
	return nil
}

// fail closes the connection after a transport error. Called with mu held.
func (c *Client) fail(err error) error {
	c.closed = true
	_ = c.conn.Close()
	return err
}

func unexpected(req protocol.Kind, resp protocol.Message) error {
	if e, ok := resp.(protocol.Error); ok {
		return &ServerError{Message: e.Message}
	}
	return fmt.Errorf("%w: %s in reply to %s", ErrUnexpectedResponse, resp.Kind(), req)
}

func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", cerr, err)
	}
	// The conn deadline can fire a moment before the ctx timer does.
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}
