// Package compact strips and restores the fixed PNG prefix shared by every
// cached base avatar.
//
// A base avatar is always an 8x8, 8-bit truecolor, non-interlaced PNG, so
// its signature and IHDR chunk (33 bytes) never change. Storing them once
// here instead of in every cache entry saves roughly a third of each value.
package compact

import (
	"bytes"
	"errors"
	"fmt"
)

// HeaderLen is the number of bytes removed by Strip.
const HeaderLen = 33

// header is the PNG signature followed by the IHDR chunk for an 8x8 RGB8
// image: length 13, "IHDR", width 8, height 8, depth 8, color type 2,
// compression 0, filter 0, interlace 0, CRC.
var header = [HeaderLen]byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x08,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x4b, 0x6d, 0x29,
	0xdc,
}

var (
	// ErrIncompatible is returned by Strip when the image does not start
	// with the canonical base-avatar header.
	ErrIncompatible = errors.New("compact: image is not an 8x8 RGB8 png")
	// ErrEmpty is returned by Repair for a zero-length payload.
	ErrEmpty = errors.New("compact: empty payload")
)

// Header returns a copy of the canonical prefix.
func Header() []byte {
	h := header
	return h[:]
}

// Strip removes the canonical prefix from an encoded base avatar. Anything
// that does not carry exactly that prefix is rejected rather than
// truncated.
func Strip(encoded []byte) ([]byte, error) {
	if len(encoded) <= HeaderLen || !bytes.Equal(encoded[:HeaderLen], header[:]) {
		return nil, fmt.Errorf("%w (%d bytes)", ErrIncompatible, len(encoded))
	}
	out := make([]byte, len(encoded)-HeaderLen)
	copy(out, encoded[HeaderLen:])
	return out, nil
}

// Repair prepends the canonical prefix to bytes produced by Strip.
func Repair(stripped []byte) ([]byte, error) {
	if len(stripped) == 0 {
		return nil, ErrEmpty
	}
	out := make([]byte, 0, HeaderLen+len(stripped))
	out = append(out, header[:]...)
	return append(out, stripped...), nil
}
