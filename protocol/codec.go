package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Frame layout constants.
const (
	HeaderSize = 1 + 8 // kind + payload length

	setKeyLenSize = 8
	setExpSize    = 4
	setPrefixSize = setKeyLenSize + setExpSize
	versionSize   = 2
)

// Decode errors. They are returned wrapped with detail; match with errors.Is.
var (
	ErrUnknownKind      = errors.New("protocol: unknown message kind")
	ErrInvalidUTF8      = errors.New("protocol: invalid utf-8")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)

// Encode serializes m as kind || length(8 bytes BE) || payload.
// It does not validate m; Socket.Send does.
func Encode(m Message) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+payloadLen(m)), m)
}

// AppendFrame appends the encoding of m to dst and returns the extended slice.
func AppendFrame(dst []byte, m Message) []byte {
	dst = append(dst, byte(m.Kind()))
	dst = binary.BigEndian.AppendUint64(dst, uint64(payloadLen(m)))

	switch m := m.(type) {
	case Version:
		dst = binary.BigEndian.AppendUint16(dst, m.Version)
	case Get:
		dst = append(dst, m.Key...)
	case Delete:
		dst = append(dst, m.Key...)
	case Set:
		dst = binary.BigEndian.AppendUint64(dst, uint64(len(m.Key)))
		dst = binary.BigEndian.AppendUint32(dst, m.Expiration)
		dst = append(dst, m.Key...)
		dst = append(dst, m.Value...)
	case Value:
		dst = append(dst, m.Data...)
	case Error:
		dst = append(dst, m.Message...)
	}
	return dst
}

func payloadLen(m Message) int {
	switch m := m.(type) {
	case Version:
		return versionSize
	case Get:
		return len(m.Key)
	case Delete:
		return len(m.Key)
	case Set:
		return setPrefixSize + len(m.Key) + len(m.Value)
	case Value:
		return len(m.Data)
	case Error:
		return len(m.Message)
	default: // Ping, Clear, Pong, Ok, KeyNotFound
		return 0
	}
}

// Validate reports whether m would survive Decode. Go strings may hold
// arbitrary bytes, but keys and error messages travel as UTF-8.
func Validate(m Message) error {
	var s string
	switch m := m.(type) {
	case Get:
		s = m.Key
	case Delete:
		s = m.Key
	case Set:
		s = m.Key
	case Error:
		s = m.Message
	default:
		return nil
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s", ErrInvalidUTF8, m.Kind())
	}
	return nil
}

// DecodeHeader splits a frame header into its kind and payload length.
func DecodeHeader(h [HeaderSize]byte) (Kind, uint64, error) {
	kind := Kind(h[0])
	if !kind.Valid() {
		return 0, 0, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, h[0])
	}
	return kind, binary.BigEndian.Uint64(h[1:]), nil
}

// Decode interprets payload according to kind. Byte fields in the result
// alias payload; the caller must not reuse it.
func Decode(kind Kind, payload []byte) (Message, error) {
	switch kind {
	case KindPing:
		return empty(Ping{}, payload)
	case KindClear:
		return empty(Clear{}, payload)
	case KindPong:
		return empty(Pong{}, payload)
	case KindOk:
		return empty(Ok{}, payload)
	case KindKeyNotFound:
		return empty(KeyNotFound{}, payload)

	case KindVersion:
		if len(payload) != versionSize {
			return nil, fmt.Errorf("%w: version payload is %d bytes, want %d", ErrMalformedPayload, len(payload), versionSize)
		}
		return Version{Version: binary.BigEndian.Uint16(payload)}, nil
	case KindGet:
		key, err := utf8String(kind, payload)
		if err != nil {
			return nil, err
		}
		return Get{Key: key}, nil
	case KindDelete:
		key, err := utf8String(kind, payload)
		if err != nil {
			return nil, err
		}
		return Delete{Key: key}, nil
	case KindSet:
		return decodeSet(payload)
	case KindValue:
		if payload == nil {
			payload = []byte{}
		}
		return Value{Data: payload}, nil
	case KindError:
		msg, err := utf8String(kind, payload)
		if err != nil {
			return nil, err
		}
		return Error{Message: msg}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, uint8(kind))
	}
}

func decodeSet(payload []byte) (Message, error) {
	if len(payload) < setPrefixSize {
		return nil, fmt.Errorf("%w: set payload is %d bytes, want at least %d", ErrMalformedPayload, len(payload), setPrefixSize)
	}
	klen := binary.BigEndian.Uint64(payload[:setKeyLenSize])
	exp := binary.BigEndian.Uint32(payload[setKeyLenSize:setPrefixSize])
	rest := payload[setPrefixSize:]
	if klen > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: set key length %d exceeds remaining %d bytes", ErrMalformedPayload, klen, len(rest))
	}
	key, err := utf8String(KindSet, rest[:klen])
	if err != nil {
		return nil, err
	}
	return Set{Key: key, Value: rest[klen:], Expiration: exp}, nil
}

// empty returns m if payload is empty, as required for payload-less kinds.
func empty(m Message, payload []byte) (Message, error) {
	if len(payload) != 0 {
		return nil, fmt.Errorf("%w: %s carries %d unexpected bytes", ErrMalformedPayload, m.Kind(), len(payload))
	}
	return m, nil
}

func utf8String(kind Kind, b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: %s", ErrInvalidUTF8, kind)
	}
	return string(b), nil
}
