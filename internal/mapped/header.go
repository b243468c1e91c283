// Package mapped reads fixed-layout records out of double-buffered shared
// memory published by another process.
//
// Each channel is two regions of identical size plus one named lock. Every
// region starts with a header: a 1-byte currency flag padded to 4 bytes,
// optionally followed by a 4-byte count of bytes the writer changed from
// offset 0. The writer fills
// the non-current region under the lock and then flips both flags, so with
// the lock held exactly one region is marked current.
package mapped

import (
	"encoding/binary"
	"fmt"
)

// Header sizes in bytes.
const (
	HeaderSize         = 4 // currency flag and its padding
	HeaderWithSizeSize = 8 // currency flag and updated-bytes hint
)

var byteOrder = binary.LittleEndian

// Header is the decoded prefix of one region.
type Header struct {
	Current     bool  // region holds the most recent complete write
	UpdatedHint int32 // bytes changed from offset 0; 0 means the whole record
}

// DecodeHeader decodes b, which must hold at least HeaderSize bytes. The hint
// is decoded only when b holds HeaderWithSizeSize bytes.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("header needs %d bytes, got %d", HeaderSize, len(b))
	}
	// Only byte 0 is the flag; the writer leaves the padding undefined.
	h := Header{Current: b[0] != 0}
	if len(b) >= HeaderWithSizeSize {
		h.UpdatedHint = int32(byteOrder.Uint32(b[HeaderSize:]))
	}
	return h, nil
}

// EncodeHeader writes h into b; the hint is written when b has room for it.
func EncodeHeader(b []byte, h Header) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header needs %d bytes, got %d", HeaderSize, len(b))
	}
	b[0], b[1], b[2], b[3] = 0, 0, 0, 0
	if h.Current {
		b[0] = 1
	}
	if len(b) >= HeaderWithSizeSize {
		byteOrder.PutUint32(b[HeaderSize:], uint32(h.UpdatedHint))
	}
	return nil
}
