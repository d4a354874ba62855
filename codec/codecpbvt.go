package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ProtoCodec marshals protobuf values embedded in a datagram body.
type ProtoCodec interface {
	Encode(m protoreflect.ProtoMessage, b []byte) ([]byte, error)
	Decode(m protoreflect.ProtoMessage, b []byte) error
}

var _protoCodec ProtoCodec = &DefaultProtoCodec{}

// SetProtoCodec replaces the codec used by WriteProto and ReadProto.
func SetProtoCodec(c ProtoCodec) {
	_protoCodec = c
}

// DefaultProtoCodec uses the protobuf binary format.
type DefaultProtoCodec struct{}

// Encode appends the binary form of m to b.
func (c *DefaultProtoCodec) Encode(m protoreflect.ProtoMessage, b []byte) ([]byte, error) {
	return proto.MarshalOptions{}.MarshalAppend(b, m)
}

// Decode fills m from b.
func (c *DefaultProtoCodec) Decode(m protoreflect.ProtoMessage, b []byte) error {
	return proto.Unmarshal(b, m)
}

// WriteProto writes m as a length-prefixed byte blob.
func (w *Writer) WriteProto(m proto.Message) error {
	if _protoCodec == nil {
		return errCodecNotInit
	}
	if m == nil {
		return ErrNilMessage
	}
	b, err := _protoCodec.Encode(m, nil)
	if err != nil {
		return err
	}
	return w.WriteBytes(b)
}

// ReadProto reads a length-prefixed byte blob into m.
func (r *Reader) ReadProto(m proto.Message) error {
	if _protoCodec == nil {
		return errCodecNotInit
	}
	if m == nil {
		return ErrNilMessage
	}
	n, err := r.ReadUint16()
	if err != nil {
		return err
	}
	b, err := r.next(int(n))
	if err != nil {
		return err
	}
	return _protoCodec.Decode(m, b)
}
