// Package client implements the client connection queue layered over the
// scheduler: a length-prefixed wire protocol, a streaming receive
// tokenizer, an outbound message queue with urgent-jump ordering, and a
// reconnect-with-backoff policy, per spec.md §4.3 and §6.
package client

import "encoding/binary"

// FrameHeaderSize is the fixed header length: a 16-bit size (covering the
// header itself) followed by a 16-bit type, both network byte order.
const FrameHeaderSize = 4

// Frame is one decoded message: a type tag plus its payload, per spec.md
// §6's "frames are dispatched to handlers by type".
type Frame struct {
	Type    uint16
	Payload []byte
}

// EncodeFrame renders payload as a single wire frame. It is the inverse of
// what Tokenizer.Feed parses back out.
func EncodeFrame(frameType uint16, payload []byte) []byte {
	size := FrameHeaderSize + len(payload)
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], uint16(size))
	binary.BigEndian.PutUint16(buf[2:4], frameType)
	copy(buf[4:], payload)
	return buf
}
