package protocol

import "fmt"

// Kind is the one-byte tag that selects a message variant.
// Request kinds are below 128, response kinds 128 and above.
type Kind uint8

const (
	KindVersion Kind = 0
	KindPing    Kind = 1
	KindGet     Kind = 2
	KindSet     Kind = 3
	KindDelete  Kind = 4
	KindClear   Kind = 5

	KindPong        Kind = 128
	KindOk          Kind = 129
	KindValue       Kind = 130
	KindKeyNotFound Kind = 131
	KindError       Kind = 132
)

// IsRequest reports whether k is drawn from the request range.
func (k Kind) IsRequest() bool { return k < 128 }

// Valid reports whether k names a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindVersion, KindPing, KindGet, KindSet, KindDelete, KindClear,
		KindPong, KindOk, KindValue, KindKeyNotFound, KindError:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindVersion:
		return "version"
	case KindPing:
		return "ping"
	case KindGet:
		return "get"
	case KindSet:
		return "set"
	case KindDelete:
		return "delete"
	case KindClear:
		return "clear"
	case KindPong:
		return "pong"
	case KindOk:
		return "ok"
	case KindValue:
		return "value"
	case KindKeyNotFound:
		return "key_not_found"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}
