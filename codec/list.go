package codec

import "fmt"

// WriteList writes len(items) as a uint16 count followed by every element.
func WriteList[T any](w *Writer, items []T, write func(*Writer, T) error) error {
	if len(items) > MaxLength {
		return fmt.Errorf("%w: %d elements", ErrListTooLong, len(items))
	}
	w.WriteUint16(uint16(len(items)))
	for i, item := range items {
		if err := write(w, item); err != nil {
			return fmt.Errorf("list element %d: %w", i, err)
		}
	}
	return nil
}

// ReadList reads a uint16 count followed by that many elements. A zero count
// yields an empty, non-nil slice.
func ReadList[T any](r *Reader, read func(*Reader) (T, error)) ([]T, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	// a corrupt count must not force a huge allocation
	hint := int(n)
	if hint > r.Remaining() {
		hint = r.Remaining()
	}
	items := make([]T, 0, hint)
	for i := 0; i < int(n); i++ {
		item, err := read(r)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// WriteMessageList writes a list of nested messages.
func WriteMessageList[T Serializable](w *Writer, items []T) error {
	return WriteList(w, items, func(w *Writer, m T) error {
		return w.WriteMessage(m)
	})
}

// ReadMessageList reads a list of nested messages, building each element with newFn.
func ReadMessageList[T Serializable](r *Reader, newFn func() T) ([]T, error) {
	return ReadList(r, func(r *Reader) (T, error) {
		m := newFn()
		err := r.ReadMessage(m)
		return m, err
	})
}

func writeFixed[T any](put func(*Writer, T)) func(*Writer, T) error {
	return func(w *Writer, v T) error {
		put(w, v)
		return nil
	}
}

func WriteBoolList(w *Writer, v []bool) error {
	return WriteList(w, v, writeFixed((*Writer).WriteBool))
}

func ReadBoolList(r *Reader) ([]bool, error) {
	return ReadList(r, (*Reader).ReadBool)
}

func WriteInt16List(w *Writer, v []int16) error {
	return WriteList(w, v, writeFixed((*Writer).WriteInt16))
}

func ReadInt16List(r *Reader) ([]int16, error) {
	return ReadList(r, (*Reader).ReadInt16)
}

func WriteUint16List(w *Writer, v []uint16) error {
	return WriteList(w, v, writeFixed((*Writer).WriteUint16))
}

func ReadUint16List(r *Reader) ([]uint16, error) {
	return ReadList(r, (*Reader).ReadUint16)
}

func WriteInt32List(w *Writer, v []int32) error {
	return WriteList(w, v, writeFixed((*Writer).WriteInt32))
}

func ReadInt32List(r *Reader) ([]int32, error) {
	return ReadList(r, (*Reader).ReadInt32)
}

func WriteUint32List(w *Writer, v []uint32) error {
	return WriteList(w, v, writeFixed((*Writer).WriteUint32))
}

func ReadUint32List(r *Reader) ([]uint32, error) {
	return ReadList(r, (*Reader).ReadUint32)
}

func WriteInt64List(w *Writer, v []int64) error {
	return WriteList(w, v, writeFixed((*Writer).WriteInt64))
}

func ReadInt64List(r *Reader) ([]int64, error) {
	return ReadList(r, (*Reader).ReadInt64)
}

func WriteUint64List(w *Writer, v []uint64) error {
	return WriteList(w, v, writeFixed((*Writer).WriteUint64))
}

func ReadUint64List(r *Reader) ([]uint64, error) {
	return ReadList(r, (*Reader).ReadUint64)
}

func WriteFloat32List(w *Writer, v []float32) error {
	return WriteList(w, v, (*Writer).WriteFloat32)
}

func ReadFloat32List(r *Reader) ([]float32, error) {
	return ReadList(r, (*Reader).ReadFloat32)
}

func WriteFloat64List(w *Writer, v []float64) error {
	return WriteList(w, v, (*Writer).WriteFloat64)
}

func ReadFloat64List(r *Reader) ([]float64, error) {
	return ReadList(r, (*Reader).ReadFloat64)
}

func WriteStringList(w *Writer, v []string) error {
	return WriteList(w, v, (*Writer).WriteString)
}

func ReadStringList(r *Reader) ([]string, error) {
	return ReadList(r, (*Reader).ReadString)
}
