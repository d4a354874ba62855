// Package codec implements the datagram body encoding used by neton.
//
// Every multi-byte integer is written in network byte order. Strings, byte
// blobs and homogeneous lists carry a uint16 length prefix, and float values
// travel as their decimal text so that they stay readable on the wire.
package codec

import (
	"errors"
	"math"
)

// MaxLength is the largest length or count a uint16 prefix can describe.
const MaxLength = math.MaxUint16

var (
	// ErrOutOfData is returned when a read needs more bytes than remain.
	ErrOutOfData = errors.New("codec: out of data")
	// ErrStringTooLong is returned when a string exceeds MaxLength bytes.
	ErrStringTooLong = errors.New("codec: string too long")
	// ErrBytesTooLong is returned when a byte blob exceeds MaxLength bytes.
	ErrBytesTooLong = errors.New("codec: bytes too long")
	// ErrListTooLong is returned when a list has more than MaxLength elements.
	ErrListTooLong = errors.New("codec: list too long")
	// ErrMalformedNumber is returned when a float field does not hold a decimal number.
	ErrMalformedNumber = errors.New("codec: malformed number")
	// ErrNilMessage is returned when a nil nested message is written or read.
	ErrNilMessage = errors.New("codec: nil message")

	errCodecNotInit = errors.New("codec: proto codec not init")
)

// Serializable is implemented by every message body that travels through a
// Writer and a Reader. The field order used by Serialize must match the order
// used by Deserialize; nothing checks it at runtime.
type Serializable interface {
	Serialize(w *Writer) error
	Deserialize(r *Reader) error
}
