package codec

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
)

// Writer appends encoded values to a growable buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer whose buffer starts with the given capacity.
func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}
	return &Writer{buf: make([]byte, 0, capacity)}
}

var writerPool = sync.Pool{
	New: func() any {
		return NewWriter(256)
	},
}

// AcquireWriter takes an empty Writer from the pool.
func AcquireWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// ReleaseWriter returns w to the pool. The caller must not use w or any slice
// obtained from w.Bytes afterwards.
func ReleaseWriter(w *Writer) {
	if w == nil || cap(w.buf) > 64*1024 {
		return
	}
	writerPool.Put(w)
}

// Bytes returns the encoded bytes. The slice aliases the internal buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset empties the buffer and keeps its capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// WriteRaw appends b without any prefix.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteInt8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// WriteBool writes a single byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteInt16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *Writer) WriteInt64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

// WriteString writes the UTF-8 bytes of s behind a uint16 length.
func (w *Writer) WriteString(s string) error {
	if len(s) > MaxLength {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	w.WriteUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// WriteBytes writes b behind a uint16 length.
func (w *Writer) WriteBytes(b []byte) error {
	if len(b) > MaxLength {
		return fmt.Errorf("%w: %d bytes", ErrBytesTooLong, len(b))
	}
	w.WriteUint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

// WriteFloat32 writes v as decimal text using the string encoding.
func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
}

// WriteFloat64 writes v as decimal text using the string encoding.
func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
}

// WriteMessage delegates to m.Serialize.
func (w *Writer) WriteMessage(m Serializable) error {
	if m == nil {
		return ErrNilMessage
	}
	return m.Serialize(w)
}
