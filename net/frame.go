package net

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// HeaderSize is the length of the id and payload length fields.
	HeaderSize = 4
	// MaxPayloadSize is the largest payload the 16-bit length field describes.
	MaxPayloadSize = math.MaxUint16
)

// FrameHeader is the fixed prefix of every frame:
//
//	[uint16 id BE][uint16 payload length BE][payload]
type FrameHeader struct {
	ID     uint16
	Length uint16
}

// EncodeHeader writes hdr into the first HeaderSize bytes of buf.
func EncodeHeader(buf []byte, hdr FrameHeader) {
	_ = buf[HeaderSize-1]
	binary.BigEndian.PutUint16(buf[0:2], hdr.ID)
	binary.BigEndian.PutUint16(buf[2:4], hdr.Length)
}

// DecodeHeader reads the header at the start of buf.
func DecodeHeader(buf []byte) (FrameHeader, error) {
	if len(buf) < HeaderSize {
		return FrameHeader{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
	}
	return FrameHeader{
		ID:     binary.BigEndian.Uint16(buf[0:2]),
		Length: binary.BigEndian.Uint16(buf[2:4]),
	}, nil
}

// FrameSize is the total on-wire size of a frame with this header.
func (h FrameHeader) FrameSize() int {
	return HeaderSize + int(h.Length)
}
