// Package protocol implements the shardcached wire format: a framing codec
// between typed messages and bytes, and a Socket that exchanges one frame
// per call over any io.ReadWriter.
//
// Frame layout
//
//	byte 0       : kind tag (requests 0..127, responses 128..255)
//	bytes 1..9   : payload length, big-endian uint64
//	bytes 9..end : payload
//
// Payloads
//
//	Ping, Clear, Pong, Ok, KeyNotFound : empty
//	Get, Delete                        : UTF-8 key
//	Value                              : raw bytes
//	Error                              : UTF-8 message
//	Version                            : uint16 big-endian
//	Set                                : key_len(u64 BE) || expiration(u32 BE) || key || value
//
// A decode failure leaves the stream at an unknown position; the only safe
// recovery is to close the connection.
package protocol
