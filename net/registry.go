package net

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"

	"github.com/lcx/neton/codec"
)

// Message is one wire message body.
type Message = codec.Serializable

// Registry maps message types to 16-bit wire ids and back, and packs and
// unpacks frames. One Registry is shared by reference between every
// connection of a client or service. Registration is expected to finish
// before traffic starts.
type Registry struct {
	mu       sync.RWMutex
	idToNew  map[uint16]func() Message
	typeToID map[reflect.Type]uint16
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		idToNew:  make(map[uint16]func() Message),
		typeToID: make(map[reflect.Type]uint16),
	}
}

// RegisterMessage binds id to the type produced by newFn. Both directions are
// checked and updated together.
func (r *Registry) RegisterMessage(id uint16, newFn func() Message) error {
	if newFn == nil {
		return fmt.Errorf("%w: nil factory for id %d", ErrInvalidMessage, id)
	}
	sample := newFn()
	if sample == nil {
		return fmt.Errorf("%w: factory for id %d returned nil", ErrInvalidMessage, id)
	}
	t := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.idToNew[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateMessageID, id)
	}
	if old, ok := r.typeToID[t]; ok {
		return fmt.Errorf("%w: %s already has id %d", ErrDuplicateMessageType, t, old)
	}
	r.idToNew[id] = newFn
	r.typeToID[t] = id
	return nil
}

// Register binds id to *T, constructed as new(T).
//
//	net.Register[ChatMessage](registry, 1)
func Register[T any, PT interface {
	*T
	Message
}](r *Registry, id uint16) error {
	return r.RegisterMessage(id, func() Message { return PT(new(T)) })
}

// MustRegister is RegisterMessage for init-time tables; it panics on error.
func (r *Registry) MustRegister(id uint16, newFn func() Message) {
	if err := r.RegisterMessage(id, newFn); err != nil {
		panic(err)
	}
}

// UnregisterMessage removes the registration of msg's type. It is a no-op for
// unknown types.
func (r *Registry) UnregisterMessage(msg Message) {
	if msg == nil {
		return
	}
	t := reflect.TypeOf(msg)
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.typeToID[t]; ok {
		delete(r.typeToID, t)
		delete(r.idToNew, id)
	}
}

// UnregisterID removes the registration of id. It is a no-op for unknown ids.
func (r *Registry) UnregisterID(id uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	newFn, ok := r.idToNew[id]
	if !ok {
		return
	}
	delete(r.idToNew, id)
	delete(r.typeToID, reflect.TypeOf(newFn()))
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.idToNew)
	clear(r.typeToID)
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.idToNew)
}

// MessageID returns the id registered for msg's type.
func (r *Registry) MessageID(msg Message) (uint16, bool) {
	if msg == nil {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.typeToID[reflect.TypeOf(msg)]
	return id, ok
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.idToNew[id]
	return ok
}

// NewMessage constructs an empty message of the type registered for id.
func (r *Registry) NewMessage(id uint16) (Message, error) {
	r.mu.RLock()
	newFn, ok := r.idToNew[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageID, id)
	}
	return newFn(), nil
}

// SerializeMessage encodes the body of msg.
func (r *Registry) SerializeMessage(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, codec.ErrNilMessage
	}
	w := codec.AcquireWriter()
	defer codec.ReleaseWriter(w)
	if err := msg.Serialize(w); err != nil {
		return nil, err
	}
	return bytes.Clone(w.Bytes()), nil
}

// DeserializeMessage constructs the type registered for id and decodes
// payload into it. Bytes left after the last field are ignored.
func (r *Registry) DeserializeMessage(id uint16, payload []byte) (Message, error) {
	msg, err := r.NewMessage(id)
	if err != nil {
		return nil, err
	}
	if err := msg.Deserialize(codec.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("%w: id %d: %w", ErrDecodeFailed, id, err)
	}
	return msg, nil
}

// EnpackMessage encodes msg as a complete frame.
func (r *Registry) EnpackMessage(msg Message) ([]byte, error) {
	id, ok := r.MessageID(msg)
	if !ok {
		if msg == nil {
			return nil, codec.ErrNilMessage
		}
		return nil, fmt.Errorf("%w: %T", ErrUnregisteredMessage, msg)
	}

	w := codec.AcquireWriter()
	defer codec.ReleaseWriter(w)
	w.WriteUint16(id)
	w.WriteUint16(0)
	if err := msg.Serialize(w); err != nil {
		return nil, err
	}
	payloadLen := w.Len() - HeaderSize
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %T is %d bytes", ErrPayloadTooLarge, msg, payloadLen)
	}

	frame := bytes.Clone(w.Bytes())
	binary.BigEndian.PutUint16(frame[2:4], uint16(payloadLen))
	return frame, nil
}

// DepackMessage decodes one complete frame.
func (r *Registry) DepackMessage(frame []byte) (Message, error) {
	hdr, err := DecodeHeader(frame)
	if err != nil {
		return nil, err
	}
	if len(frame) != hdr.FrameSize() {
		return nil, fmt.Errorf("%w: header says %d payload bytes, frame has %d",
			ErrFrameLengthMismatch, hdr.Length, len(frame)-HeaderSize)
	}
	return r.DeserializeMessage(hdr.ID, frame[HeaderSize:])
}

// AnalyzeMessage extracts the next complete frame starting at buf's cursor.
//
// It returns nil, nil when the buffer does not yet hold a full frame; the
// cursor is left where it was. When the id at the cursor is not registered
// the framing is lost: the whole buffer is dropped and ErrFrameDesync is
// returned. Otherwise the frame is returned as a copy and the cursor moves
// past it.
func (r *Registry) AnalyzeMessage(buf *RecvBuffer) ([]byte, error) {
	if buf.Unread() < HeaderSize {
		return nil, nil
	}
	hdr, _ := DecodeHeader(buf.Peek(HeaderSize))
	if !r.Contains(hdr.ID) {
		dropped := buf.Len()
		buf.Reset()
		return nil, fmt.Errorf("%w: unknown id %d, dropped %d bytes", ErrFrameDesync, hdr.ID, dropped)
	}
	size := hdr.FrameSize()
	if buf.Unread() < size {
		return nil, nil
	}
	frame := bytes.Clone(buf.Peek(size))
	buf.Advance(size)
	return frame, nil
}
