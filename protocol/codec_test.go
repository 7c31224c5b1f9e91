package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(kind Kind, n uint64) []byte {
	h := []byte{byte(kind)}
	return binary.BigEndian.AppendUint64(h, n)
}

func cat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

func decodeFrame(t *testing.T, frame []byte) (Message, error) {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), HeaderSize)
	var h [HeaderSize]byte
	copy(h[:], frame)
	kind, n, err := DecodeHeader(h)
	if err != nil {
		return nil, err
	}
	require.Equal(t, uint64(len(frame)-HeaderSize), n, "declared payload length")
	return Decode(kind, frame[HeaderSize:])
}

func TestEncode_LiteralFrames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		msg  Message
		want []byte
	}{
		{"ping", Ping{}, header(KindPing, 0)},
		{"clear", Clear{}, header(KindClear, 0)},
		{"pong", Pong{}, header(KindPong, 0)},
		{"ok", Ok{}, header(KindOk, 0)},
		{"key not found", KeyNotFound{}, header(KindKeyNotFound, 0)},
		{"version", Version{Version: 1}, cat(header(KindVersion, 2), []byte{0, 1})},
		{"get", Get{Key: "ab"}, cat(header(KindGet, 2), []byte("ab"))},
		{"delete", Delete{Key: "ab"}, cat(header(KindDelete, 2), []byte("ab"))},
		{"value", Value{Data: []byte{1, 2, 3, 4}}, cat(header(KindValue, 4), []byte{1, 2, 3, 4})},
		{"error", Error{Message: "err"}, cat(header(KindError, 3), []byte("err"))},
		{
			"set",
			Set{Key: "ab", Value: []byte{1, 2, 3}, Expiration: 256},
			cat(
				header(KindSet, 17),
				[]byte{0, 0, 0, 0, 0, 0, 0, 2}, // key length
				[]byte{0, 0, 1, 0},             // expiration
				[]byte("ab"),
				[]byte{1, 2, 3},
			),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Encode(tc.msg))

			got, err := decodeFrame(t, tc.want)
			require.NoError(t, err)
			assert.Equal(t, tc.msg, got)
		})
	}
}

func TestRoundTrip_AllMessages(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte{0xAB}, 1<<20)
	msgs := []Message{
		Version{Version: ProtocolVersion},
		Version{Version: 0xFFFF},
		Ping{}, Clear{}, Pong{}, Ok{}, KeyNotFound{},
		Get{Key: ""}, Get{Key: "user:42"}, Get{Key: "ключ🙂"},
		Delete{Key: ""}, Delete{Key: "x"},
		Set{Key: "", Value: []byte{}, Expiration: 0},
		Set{Key: "k", Value: []byte{}, Expiration: 1},
		Set{Key: "", Value: []byte{9}, Expiration: 0xFFFFFFFF},
		Set{Key: "x", Value: []byte{3, 4}},
		Set{Key: "big", Value: big, Expiration: 60},
		Value{Data: []byte{}}, Value{Data: []byte{0}}, Value{Data: big},
		Error{Message: ""}, Error{Message: "item is too large"},
	}
	for _, m := range msgs {
		frame := Encode(m)
		got, err := decodeFrame(t, frame)
		require.NoError(t, err, "%s", m.Kind())
		require.Equal(t, m, got, "%s", m.Kind())
	}
}

func TestEncode_HeaderIsAlwaysNineBytes(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1, 255, 256, 65_536, 1 << 20} {
		frame := Encode(Value{Data: make([]byte, size)})
		require.Len(t, frame, HeaderSize+size)
		assert.Equal(t, uint64(size), binary.BigEndian.Uint64(frame[1:HeaderSize]))
	}
	assert.Len(t, Encode(Ping{}), HeaderSize)
	assert.Equal(t, 9, HeaderSize)
}

func TestRequestAndResponseTagsAreDisjoint(t *testing.T) {
	t.Parallel()

	reqs := []Request{Version{}, Ping{}, Get{}, Set{}, Delete{}, Clear{}}
	resps := []Response{Pong{}, Ok{}, Value{}, KeyNotFound{}, Error{}}
	for _, r := range reqs {
		assert.True(t, r.Kind().IsRequest(), "%s", r.Kind())
		assert.True(t, r.Kind().Valid())
	}
	for _, r := range resps {
		assert.False(t, r.Kind().IsRequest(), "%s", r.Kind())
		assert.True(t, r.Kind().Valid())
	}
}

func TestDecodeHeader_UnknownKind(t *testing.T) {
	t.Parallel()

	for _, b := range []byte{6, 7, 127, 133, 200, 255} {
		var h [HeaderSize]byte
		h[0] = b
		_, _, err := DecodeHeader(h)
		require.ErrorIs(t, err, ErrUnknownKind, "tag %d", b)
	}

	_, err := Decode(Kind(42), nil)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeHeader_BigEndianLength(t *testing.T) {
	t.Parallel()

	h := [HeaderSize]byte{byte(KindValue), 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	kind, n, err := DecodeHeader(h)
	require.NoError(t, err)
	assert.Equal(t, KindValue, kind)
	assert.Equal(t, uint64(0x0102030405060708), n)
}

func TestDecode_InvalidUTF8(t *testing.T) {
	t.Parallel()

	bad := []byte{0xff, 0xfe}
	for _, kind := range []Kind{KindGet, KindDelete, KindError} {
		_, err := Decode(kind, bad)
		require.ErrorIs(t, err, ErrInvalidUTF8, "%s", kind)
	}

	setPayload := cat([]byte{0, 0, 0, 0, 0, 0, 0, 2}, []byte{0, 0, 0, 0}, bad, []byte("value"))
	_, err := Decode(KindSet, setPayload)
	require.ErrorIs(t, err, ErrInvalidUTF8)

	// Values are raw bytes and never checked.
	m, err := Decode(KindValue, bad)
	require.NoError(t, err)
	assert.Equal(t, Value{Data: bad}, m)
}

func TestDecode_MalformedPayload(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		kind    Kind
		payload []byte
	}{
		{"set shorter than prefix", KindSet, []byte{0, 0, 0}},
		{"set key length beyond payload", KindSet, cat([]byte{0, 0, 0, 0, 0, 0, 0, 5}, []byte{0, 0, 0, 0}, []byte("abc"))},
		{"set huge key length", KindSet, cat([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, []byte{0, 0, 0, 0})},
		{"version too short", KindVersion, []byte{1}},
		{"version too long", KindVersion, []byte{0, 1, 2}},
		{"ping with payload", KindPing, []byte{1}},
		{"clear with payload", KindClear, []byte{1}},
		{"pong with payload", KindPong, []byte{1}},
		{"ok with payload", KindOk, []byte{1}},
		{"key not found with payload", KindKeyNotFound, []byte{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m, err := Decode(tc.kind, tc.payload)
			require.ErrorIs(t, err, ErrMalformedPayload)
			assert.Nil(t, m)
		})
	}
}

// The key length field is what splits key from value.
func TestDecode_SetSplitsOnKeyLength(t *testing.T) {
	t.Parallel()

	payload := cat([]byte{0, 0, 0, 0, 0, 0, 0, 3}, []byte{0, 0, 0, 7}, []byte("keyvalue"))
	m, err := Decode(KindSet, payload)
	require.NoError(t, err)
	assert.Equal(t, Set{Key: "key", Value: []byte("value"), Expiration: 7}, m)

	// whole remainder as key, empty value
	payload = cat([]byte{0, 0, 0, 0, 0, 0, 0, 8}, []byte{0, 0, 0, 0}, []byte("keyvalue"))
	m, err = Decode(KindSet, payload)
	require.NoError(t, err)
	assert.Equal(t, Set{Key: "keyvalue", Value: []byte{}}, m)
}

func TestAppendFrame_AppendsToExisting(t *testing.T) {
	t.Parallel()

	buf := AppendFrame(nil, Ping{})
	buf = AppendFrame(buf, Get{Key: "a"})
	assert.Equal(t, cat(Encode(Ping{}), Encode(Get{Key: "a"})), buf)
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "set", KindSet.String())
	assert.Equal(t, "key_not_found", KindKeyNotFound.String())
	assert.Equal(t, "kind(77)", Kind(77).String())
}

func TestValidate_RejectsNonUTF8Strings(t *testing.T) {
	t.Parallel()

	bad := "bad\xff"
	for _, m := range []Message{
		Get{Key: bad},
		Delete{Key: bad},
		Set{Key: bad, Value: []byte("v")},
		Error{Message: bad},
	} {
		require.ErrorIs(t, Validate(m), ErrInvalidUTF8, "%s", m.Kind())
	}

	for _, m := range []Message{
		Get{Key: "ключ"},
		Set{Key: "", Value: []byte{0xff}},
		Value{Data: []byte{0xff}},
		Ping{},
	} {
		require.NoError(t, Validate(m), "%s", m.Kind())
	}
}
