// Package net implements neton's framed TCP transport: a message registry
// that packs typed messages into [id][length][payload] frames, a receive
// buffer that reassembles frames from arbitrary reads, a synchronous and an
// asynchronous client, and a service that accepts channels.
//
// Every connection reports what happens to it through Events, delivered by an
// Executor chosen by the application.
package net

import (
	"context"
	"net"

	"github.com/lcx/neton/discovery"
)

// Transport is implemented by every connection endpoint: Client,
// AsyncClient and Channel.
type Transport interface {
	// Send packs msg with the shared Registry and writes the frame.
	Send(msg Message) error
	// SendBytes writes raw, already framed bytes.
	SendBytes(b []byte) error
	Connected() bool
	RemoteAddr() net.Addr
}

// Registrar announces a running Service to service discovery.
type Registrar interface {
	Register(ctx context.Context, reg discovery.Registration) error
	Deregister(ctx context.Context, id string) error
}

// ConnEvents are the notifications of one connection. Every failure event
// carries a *NetError.
type ConnEvents struct {
	// Connected fires with the remote address once the connection is usable.
	Connected     Event[net.Addr]
	ConnectFailed Event[*NetError]
	// Disconnected fires once per connection with the cause, nil when the
	// close was requested locally.
	Disconnected Event[error]

	// RawSent carries the exact bytes written.
	RawSent       Event[[]byte]
	SendSucceeded Event[int]
	// MessageSent carries the original message object of a successful Send.
	MessageSent Event[Message]
	SendFailed  Event[*NetError]

	// RecvSucceeded fires after every successful read with the byte count.
	RecvSucceeded Event[int]
	RecvFailed    Event[*NetError]
	// RecvRaw carries every extracted frame, header included.
	RecvRaw      Event[[]byte]
	RecvMessage  Event[Message]
	FrameDesync  Event[*NetError]
	DecodeFailed Event[*NetError]
}

// ChannelEvent is a channel notification forwarded to the Service.
type ChannelEvent[T any] struct {
	Channel *Channel
	Value   T
}

// ServiceEvents are the Service's own notifications plus the aggregate of
// every channel's events.
type ServiceEvents struct {
	Started        Event[net.Addr]
	Stopped        Event[struct{}]
	ChannelCreated Event[*Channel]
	ChannelDeleted Event[*Channel]

	RawSent       Event[ChannelEvent[[]byte]]
	SendSucceeded Event[ChannelEvent[int]]
	MessageSent   Event[ChannelEvent[Message]]
	SendFailed    Event[ChannelEvent[*NetError]]
	RecvSucceeded Event[ChannelEvent[int]]
	RecvFailed    Event[ChannelEvent[*NetError]]
	RecvRaw       Event[ChannelEvent[[]byte]]
	RecvMessage   Event[ChannelEvent[Message]]
	FrameDesync   Event[ChannelEvent[*NetError]]
	DecodeFailed  Event[ChannelEvent[*NetError]]
}

func forward[T any](src *Event[T], dst *Event[ChannelEvent[T]], ch *Channel) func() {
	return src.Subscribe(func(v T) {
		dst.Emit(ChannelEvent[T]{Channel: ch, Value: v})
	})
}

// attach forwards every event of ch to the service and returns the detach
// functions.
func (e *ServiceEvents) attach(ch *Channel) []func() {
	return []func(){
		forward(&ch.Events.RawSent, &e.RawSent, ch),
		forward(&ch.Events.SendSucceeded, &e.SendSucceeded, ch),
		forward(&ch.Events.MessageSent, &e.MessageSent, ch),
		forward(&ch.Events.SendFailed, &e.SendFailed, ch),
		forward(&ch.Events.RecvSucceeded, &e.RecvSucceeded, ch),
		forward(&ch.Events.RecvFailed, &e.RecvFailed, ch),
		forward(&ch.Events.RecvRaw, &e.RecvRaw, ch),
		forward(&ch.Events.RecvMessage, &e.RecvMessage, ch),
		forward(&ch.Events.FrameDesync, &e.FrameDesync, ch),
		forward(&ch.Events.DecodeFailed, &e.DecodeFailed, ch),
	}
}
