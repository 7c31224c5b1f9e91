package protocol

import (
	"bytes"
	"testing"
)

// Arbitrary bytes must never panic the decoder, and anything that decodes
// must re-encode to the same frame.
func FuzzDecodeFrame(f *testing.F) {
	f.Add(Encode(Ping{}))
	f.Add(Encode(Get{Key: "ab"}))
	f.Add(Encode(Set{Key: "k", Value: []byte{1, 2, 3}, Expiration: 5}))
	f.Add(Encode(Error{Message: "boom"}))
	f.Add([]byte{3, 0, 0, 0, 0, 0, 0, 0, 12, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0})

	f.Fuzz(func(t *testing.T, frame []byte) {
		if len(frame) < HeaderSize {
			return
		}
		var h [HeaderSize]byte
		copy(h[:], frame)
		kind, n, err := DecodeHeader(h)
		if err != nil {
			return
		}
		payload := frame[HeaderSize:]
		if uint64(len(payload)) != n {
			return
		}
		m, err := Decode(kind, payload)
		if err != nil {
			return
		}
		if got := Encode(m); !bytes.Equal(got, frame) {
			t.Fatalf("re-encode mismatch:\n got %x\nwant %x", got, frame)
		}
	})
}

func FuzzRoundTripSet(f *testing.F) {
	f.Add("", []byte{}, uint32(0))
	f.Add("key", []byte("value"), uint32(60))
	f.Add("αβγ", []byte{0, 1, 2}, uint32(0xFFFFFFFF))

	f.Fuzz(func(t *testing.T, key string, value []byte, exp uint32) {
		if value == nil {
			value = []byte{}
		}
		frame := Encode(Set{Key: key, Value: value, Expiration: exp})
		var h [HeaderSize]byte
		copy(h[:], frame)
		kind, _, err := DecodeHeader(h)
		if err != nil {
			t.Fatal(err)
		}
		m, err := Decode(kind, frame[HeaderSize:])
		if err != nil {
			// keys that are not valid UTF-8 are rejected
			return
		}
		s := m.(Set)
		if s.Key != key || !bytes.Equal(s.Value, value) || s.Expiration != exp {
			t.Fatalf("round trip mismatch: %+v", s)
		}
	})
}
