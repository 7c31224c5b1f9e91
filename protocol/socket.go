package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPayload bounds the payload a Socket accepts unless told otherwise.
const DefaultMaxPayload = 64 << 20

// Payloads up to this size are read into one allocation; larger ones grow
// with the bytes actually received rather than with the announced length.
const directReadLimit = 64 << 10

var (
	// ErrEndOfStream reports that the peer closed the stream before a full
	// frame arrived. At a frame boundary it is the normal end of a session.
	ErrEndOfStream = errors.New("protocol: end of stream")

	// ErrFrameTooLarge reports a header announcing more than the payload limit.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// Socket exchanges framed messages over a duplex byte stream.
// Each Send writes exactly one frame and each Receive reads exactly one;
// there is no read-ahead, so nothing is lost if the caller stops reading.
// A Socket is not safe for concurrent use.
type Socket struct {
	rw         io.ReadWriter
	maxPayload uint64
	header     [HeaderSize]byte
}

// NewSocket wraps rw. maxPayload limits the accepted payload length;
// 0 selects DefaultMaxPayload.
func NewSocket(rw io.ReadWriter, maxPayload uint64) *Socket {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Socket{rw: rw, maxPayload: maxPayload}
}

// Send encodes m and writes the whole frame. A message that would not
// decode on the other side (see Validate) is refused before anything is
// written, so the stream stays usable.
func (s *Socket) Send(m Message) error {
	if err := Validate(m); err != nil {
		return fmt.Errorf("protocol: send %s: %w", m.Kind(), err)
	}
	if _, err := s.rw.Write(Encode(m)); err != nil {
		return fmt.Errorf("protocol: write %s: %w", m.Kind(), err)
	}
	return nil
}

// Receive reads and decodes the next frame. A short read returns an error
// matching ErrEndOfStream; other read failures are returned wrapped.
func (s *Socket) Receive() (Message, error) {
	if err := s.readFull(s.header[:]); err != nil {
		return nil, err
	}
	kind, n, err := DecodeHeader(s.header)
	if err != nil {
		return nil, err
	}
	if n > s.maxPayload {
		return nil, fmt.Errorf("%w: %s payload of %d bytes exceeds %d", ErrFrameTooLarge, kind, n, s.maxPayload)
	}
	payload, err := s.readPayload(n)
	if err != nil {
		return nil, err
	}
	return Decode(kind, payload)
}

func (s *Socket) readPayload(n uint64) ([]byte, error) {
	if n <= directReadLimit {
		payload := make([]byte, n)
		if n > 0 {
			if err := s.readFull(payload); err != nil {
				return nil, err
			}
		}
		return payload, nil
	}

	var buf bytes.Buffer
	buf.Grow(directReadLimit)
	if _, err := io.CopyN(&buf, s.rw, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrEndOfStream, io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("protocol: read: %w", err)
	}
	return buf.Bytes(), nil
}

// Close closes the underlying stream if it can be closed.
func (s *Socket) Close() error {
	if c, ok := s.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Socket) readFull(buf []byte) error {
	if _, err := io.ReadFull(s.rw, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrEndOfStream, err)
		}
		return fmt.Errorf("protocol: read: %w", err)
	}
	return nil
}
