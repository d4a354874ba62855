package net

import (
	"github.com/lcx/neton/codec"
)

type chatMessage struct {
	Text string
}

func (m *chatMessage) Serialize(w *codec.Writer) error {
	return w.WriteString(m.Text)
}

func (m *chatMessage) Deserialize(r *codec.Reader) (err error) {
	m.Text, err = r.ReadString()
	return err
}

type letterMessage struct {
	Letter uint8
}

func (m *letterMessage) Serialize(w *codec.Writer) error {
	w.WriteUint8(m.Letter)
	return nil
}

func (m *letterMessage) Deserialize(r *codec.Reader) (err error) {
	m.Letter, err = r.ReadUint8()
	return err
}

type statusMessage struct {
	Seq     uint32
	Online  bool
	Delta   int16
	Ratio   float64
	Tags    []string
	Scores  []int32
	Owner   chatMessage
	History []*chatMessage
}

func (m *statusMessage) Serialize(w *codec.Writer) error {
	w.WriteUint32(m.Seq)
	w.WriteBool(m.Online)
	w.WriteInt16(m.Delta)
	if err := w.WriteFloat64(m.Ratio); err != nil {
		return err
	}
	if err := codec.WriteStringList(w, m.Tags); err != nil {
		return err
	}
	if err := codec.WriteInt32List(w, m.Scores); err != nil {
		return err
	}
	if err := w.WriteMessage(&m.Owner); err != nil {
		return err
	}
	return codec.WriteMessageList(w, m.History)
}

func (m *statusMessage) Deserialize(r *codec.Reader) (err error) {
	if m.Seq, err = r.ReadUint32(); err != nil {
		return err
	}
	if m.Online, err = r.ReadBool(); err != nil {
		return err
	}
	if m.Delta, err = r.ReadInt16(); err != nil {
		return err
	}
	if m.Ratio, err = r.ReadFloat64(); err != nil {
		return err
	}
	if m.Tags, err = codec.ReadStringList(r); err != nil {
		return err
	}
	if m.Scores, err = codec.ReadInt32List(r); err != nil {
		return err
	}
	if err = r.ReadMessage(&m.Owner); err != nil {
		return err
	}
	m.History, err = codec.ReadMessageList(r, func() *chatMessage { return &chatMessage{} })
	return err
}

// bulkMessage is large enough to overflow the 16-bit payload length.
type bulkMessage struct {
	Parts []string
}

func (m *bulkMessage) Serialize(w *codec.Writer) error {
	return codec.WriteStringList(w, m.Parts)
}

func (m *bulkMessage) Deserialize(r *codec.Reader) (err error) {
	m.Parts, err = codec.ReadStringList(r)
	return err
}

const (
	chatID   uint16 = 1
	letterID uint16 = 2
	statusID uint16 = 3
	bulkID   uint16 = 4
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(chatID, func() Message { return &chatMessage{} })
	r.MustRegister(letterID, func() Message { return &letterMessage{} })
	r.MustRegister(statusID, func() Message { return &statusMessage{} })
	r.MustRegister(bulkID, func() Message { return &bulkMessage{} })
	return r
}
