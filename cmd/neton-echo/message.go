package main

import (
	"time"

	"github.com/lcx/neton/codec"
	"github.com/lcx/neton/net"
)

const (
	ChatMessageID uint16 = 1
)

// ChatMessage is a line of text stamped with its sender and send time.
type ChatMessage struct {
	From   string
	Text   string
	SentAt int64
}

func (m *ChatMessage) Serialize(w *codec.Writer) error {
	if err := w.WriteString(m.From); err != nil {
		return err
	}
	if err := w.WriteString(m.Text); err != nil {
		return err
	}
	w.WriteInt64(m.SentAt)
	return nil
}

func (m *ChatMessage) Deserialize(r *codec.Reader) (err error) {
	if m.From, err = r.ReadString(); err != nil {
		return err
	}
	if m.Text, err = r.ReadString(); err != nil {
		return err
	}
	m.SentAt, err = r.ReadInt64()
	return err
}

// Latency is the time since the message was sent.
func (m *ChatMessage) Latency() time.Duration {
	return time.Since(time.Unix(0, m.SentAt))
}

func newRegistry() *net.Registry {
	r := net.NewRegistry()
	if err := net.Register[ChatMessage](r, ChatMessageID); err != nil {
		panic(err)
	}
	return r
}
