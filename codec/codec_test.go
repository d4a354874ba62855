package codec

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type point struct {
	X, Y int32
	Tag  string
}

func (p *point) Serialize(w *Writer) error {
	w.WriteInt32(p.X)
	w.WriteInt32(p.Y)
	return w.WriteString(p.Tag)
}

func (p *point) Deserialize(r *Reader) (err error) {
	if p.X, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.Y, err = r.ReadInt32(); err != nil {
		return err
	}
	p.Tag, err = r.ReadString()
	return err
}

type path struct {
	Name   string
	Points []*point
	Origin *point
}

func (p *path) Serialize(w *Writer) error {
	if err := w.WriteString(p.Name); err != nil {
		return err
	}
	if err := WriteMessageList(w, p.Points); err != nil {
		return err
	}
	return w.WriteMessage(p.Origin)
}

func (p *path) Deserialize(r *Reader) (err error) {
	if p.Name, err = r.ReadString(); err != nil {
		return err
	}
	if p.Points, err = ReadMessageList(r, func() *point { return &point{} }); err != nil {
		return err
	}
	p.Origin = &point{}
	return r.ReadMessage(p.Origin)
}

func TestIntegerRoundTrip(t *testing.T) {
	w := NewWriter(0)
	for _, v := range []int16{0, -1, math.MinInt16, math.MaxInt16} {
		w.WriteInt16(v)
	}
	for _, v := range []uint16{0, 1, math.MaxUint16} {
		w.WriteUint16(v)
	}
	for _, v := range []int32{0, -1, math.MinInt32, math.MaxInt32} {
		w.WriteInt32(v)
	}
	for _, v := range []uint32{0, 1, math.MaxUint32} {
		w.WriteUint32(v)
	}
	for _, v := range []int64{0, -1, math.MinInt64, math.MaxInt64} {
		w.WriteInt64(v)
	}
	for _, v := range []uint64{0, 1, math.MaxUint64} {
		w.WriteUint64(v)
	}
	w.WriteInt8(-128)
	w.WriteUint8(255)

	r := NewReader(w.Bytes())
	for _, want := range []int16{0, -1, math.MinInt16, math.MaxInt16} {
		got, err := r.ReadInt16()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range []uint16{0, 1, math.MaxUint16} {
		got, err := r.ReadUint16()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range []int32{0, -1, math.MinInt32, math.MaxInt32} {
		got, err := r.ReadInt32()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range []uint32{0, 1, math.MaxUint32} {
		got, err := r.ReadUint32()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range []int64{0, -1, math.MinInt64, math.MaxInt64} {
		got, err := r.ReadInt64()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, want := range []uint64{0, 1, math.MaxUint64} {
		got, err := r.ReadUint64()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	i8, err := r.ReadInt8()
	require.NoError(t, err)
	assert.Equal(t, int8(-128), i8)
	u8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), u8)
	assert.Equal(t, 0, r.Remaining())
}

func TestBigEndianLayout(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint16(0x0102)
	w.WriteInt32(-2)
	w.WriteUint64(0x0102030405060708)
	assert.Equal(t, []byte{
		0x01, 0x02,
		0xff, 0xff, 0xff, 0xfe,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	}, w.Bytes())
}

func TestBool(t *testing.T) {
	w := NewWriter(0)
	w.WriteBool(true)
	w.WriteBool(false)
	assert.Equal(t, []byte{1, 0}, w.Bytes())

	r := NewReader([]byte{0, 1, 7})
	for _, want := range []bool{false, true, true} {
		got, err := r.ReadBool()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"empty", "", []byte{0, 0}},
		{"ascii", "hi", []byte{0, 2, 'h', 'i'}},
		{"utf8", "é", []byte{0, 2, 0xc3, 0xa9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(0)
			require.NoError(t, w.WriteString(tt.in))
			assert.Equal(t, tt.want, w.Bytes())

			got, err := NewReader(w.Bytes()).ReadString()
			require.NoError(t, err)
			assert.Equal(t, tt.in, got)
		})
	}
}

func TestStringTooLong(t *testing.T) {
	w := NewWriter(0)
	err := w.WriteString(strings.Repeat("a", MaxLength+1))
	assert.ErrorIs(t, err, ErrStringTooLong)
	assert.Equal(t, 0, w.Len())

	require.NoError(t, w.WriteString(strings.Repeat("a", MaxLength)))
	assert.Equal(t, MaxLength+2, w.Len())
}

func TestFloatAsText(t *testing.T) {
	w := NewWriter(0)
	require.NoError(t, w.WriteFloat64(1.5))
	assert.Equal(t, []byte{0, 3, '1', '.', '5'}, w.Bytes())

	values := []float64{0, -1, 3.141592653589793, 1e-300, math.MaxFloat64, -0.1}
	w.Reset()
	for _, v := range values {
		require.NoError(t, w.WriteFloat64(v))
	}
	require.NoError(t, w.WriteFloat32(0.1))
	require.NoError(t, w.WriteFloat32(math.MaxFloat32))

	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.ReadFloat64()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	f, err := r.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(0.1), f)
	f, err = r.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(math.MaxFloat32), f)
}

func TestMalformedNumber(t *testing.T) {
	w := NewWriter(0)
	require.NoError(t, w.WriteString("abc"))
	_, err := NewReader(w.Bytes()).ReadFloat64()
	assert.ErrorIs(t, err, ErrMalformedNumber)
}

func TestOutOfData(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(*Reader) error
	}{
		{"uint8", nil, func(r *Reader) error { _, err := r.ReadUint8(); return err }},
		{"int16", []byte{1}, func(r *Reader) error { _, err := r.ReadInt16(); return err }},
		{"int32", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.ReadInt32(); return err }},
		{"int64", []byte{1, 2, 3, 4, 5, 6, 7}, func(r *Reader) error { _, err := r.ReadInt64(); return err }},
		{"string body", []byte{0, 3, 'a'}, func(r *Reader) error { _, err := r.ReadString(); return err }},
		{"list body", []byte{0, 2, 0, 0, 0, 1}, func(r *Reader) error { _, err := ReadInt32List(r); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.read(NewReader(tt.data)), ErrOutOfData)
		})
	}
}

func TestLists(t *testing.T) {
	w := NewWriter(0)
	require.NoError(t, WriteInt32List(w, nil))
	require.NoError(t, WriteInt32List(w, []int32{1, -1, math.MaxInt32}))
	require.NoError(t, WriteStringList(w, []string{"a", "", "bc"}))
	require.NoError(t, WriteBoolList(w, []bool{true, false}))
	require.NoError(t, WriteFloat64List(w, []float64{0.25, -8}))
	require.NoError(t, WriteUint64List(w, []uint64{math.MaxUint64}))
	assert.Equal(t, []byte{0, 0}, w.Bytes()[:2])

	r := NewReader(w.Bytes())
	empty, err := ReadInt32List(r)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	ints, err := ReadInt32List(r)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -1, math.MaxInt32}, ints)

	strs, err := ReadStringList(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "bc"}, strs)

	bools, err := ReadBoolList(r)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, bools)

	floats, err := ReadFloat64List(r)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -8}, floats)

	u64s, err := ReadUint64List(r)
	require.NoError(t, err)
	assert.Equal(t, []uint64{math.MaxUint64}, u64s)
	assert.Equal(t, 0, r.Remaining())
}

func TestListTooLong(t *testing.T) {
	w := NewWriter(0)
	err := WriteUint16List(w, make([]uint16, MaxLength+1))
	assert.ErrorIs(t, err, ErrListTooLong)
}

func TestNestedMessages(t *testing.T) {
	in := &path{
		Name:   "route",
		Points: []*point{{X: 1, Y: 2, Tag: "a"}, {X: -3, Y: 4}},
		Origin: &point{Tag: "origin"},
	}
	w := NewWriter(0)
	require.NoError(t, w.WriteMessage(in))

	out := &path{}
	require.NoError(t, NewReader(w.Bytes()).ReadMessage(out))
	assert.Equal(t, in, out)
}

func TestNestedMessageTruncated(t *testing.T) {
	w := NewWriter(0)
	require.NoError(t, w.WriteMessage(&path{Name: "p", Origin: &point{Tag: "xyz"}}))
	data := w.Bytes()[:w.Len()-1]

	err := NewReader(data).ReadMessage(&path{})
	assert.ErrorIs(t, err, ErrOutOfData)
}

func TestNilMessage(t *testing.T) {
	assert.ErrorIs(t, NewWriter(0).WriteMessage(nil), ErrNilMessage)
	assert.ErrorIs(t, NewReader(nil).ReadMessage(nil), ErrNilMessage)
}

func TestBytes(t *testing.T) {
	src := []byte{9, 8, 7}
	w := NewWriter(0)
	require.NoError(t, w.WriteBytes(src))
	assert.Equal(t, []byte{0, 3, 9, 8, 7}, w.Bytes())

	got, err := NewReader(w.Bytes()).ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, src, got)
	w.Bytes()[2] = 0
	assert.Equal(t, byte(9), got[0], "ReadBytes must copy")
}

func TestProto(t *testing.T) {
	w := NewWriter(0)
	require.NoError(t, w.WriteProto(wrapperspb.String("hello")))
	w.WriteUint16(7)

	r := NewReader(w.Bytes())
	got := &wrapperspb.StringValue{}
	require.NoError(t, r.ReadProto(got))
	assert.True(t, proto.Equal(wrapperspb.String("hello"), got))

	tail, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(7), tail)
}

func TestWriterPool(t *testing.T) {
	w := AcquireWriter()
	w.WriteUint32(1)
	ReleaseWriter(w)

	w2 := AcquireWriter()
	defer ReleaseWriter(w2)
	assert.Equal(t, 0, w2.Len())
}
