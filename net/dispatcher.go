package net

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lcx/neton/log"
	"github.com/lcx/neton/metrics"
)

// ErrNoHandler is returned by Dispatch for a message nobody handles.
var ErrNoHandler = errors.New("net: no handler for message")

// Delivery is one received message on its way to a handler.
type Delivery struct {
	// Transport is the connection the message arrived on; reply through it.
	Transport Transport
	ID        uint16
	Msg       Message
}

// HandlerFunc processes one delivery.
type HandlerFunc func(d *Delivery) error

// DispatcherFilter intercepts a delivery before its handler, for concerns
// such as authentication, blocking or metrics. It calls next to continue.
type DispatcherFilter func(d *Delivery, next HandlerFunc) error

// DispatcherFilterChain runs filters in registration order.
type DispatcherFilterChain []DispatcherFilter

// Handle passes d through every filter and finally to f.
func (fc DispatcherFilterChain) Handle(d *Delivery, f HandlerFunc) error {
	if len(fc) == 0 {
		return f(d)
	}
	return fc[0](d, func(d *Delivery) error {
		return fc[1:].Handle(d, f)
	})
}

// Dispatcher routes received messages to handlers by message id.
//
//	d := NewDispatcher(registry)
//	HandleMessage(d, func(tr Transport, m *ChatMessage) error { return tr.Send(m) })
//	d.AttachService(service)
type Dispatcher struct {
	registry *Registry

	lock     sync.RWMutex
	handlers map[uint16]HandlerFunc
	filters  DispatcherFilterChain
	blocked  map[uint16]struct{}
}

// NewDispatcher creates a dispatcher resolving ids through registry. The
// block filter is always first in the chain.
func NewDispatcher(registry *Registry) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		handlers: make(map[uint16]HandlerFunc),
		blocked:  make(map[uint16]struct{}),
	}
	d.filters = append(d.filters, d.blockFilter)
	return d
}

// Handle sets the handler of id, replacing any previous one.
func (d *Dispatcher) Handle(id uint16, h HandlerFunc) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if h == nil {
		delete(d.handlers, id)
		return
	}
	d.handlers[id] = h
}

// HandleMessage registers a typed handler for *T, which must already be
// registered in the dispatcher's registry.
func HandleMessage[T any, PT interface {
	*T
	Message
}](d *Dispatcher, fn func(tr Transport, msg PT) error) error {
	id, ok := d.registry.MessageID(PT(new(T)))
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnregisteredMessage, PT(new(T)))
	}
	d.Handle(id, func(dd *Delivery) error {
		msg, ok := dd.Msg.(PT)
		if !ok {
			return fmt.Errorf("net: message id %d is %T, want %T", dd.ID, dd.Msg, msg)
		}
		return fn(dd.Transport, msg)
	})
	return nil
}

// RegDispatcherFilter appends f to the filter chain.
func (d *Dispatcher) RegDispatcherFilter(f DispatcherFilter) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.filters = append(d.filters, f)
}

// Block drops messages with the given ids before they reach any handler.
func (d *Dispatcher) Block(ids ...uint16) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, id := range ids {
		d.blocked[id] = struct{}{}
	}
}

// Unblock reverses Block.
func (d *Dispatcher) Unblock(ids ...uint16) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, id := range ids {
		delete(d.blocked, id)
	}
}

func (d *Dispatcher) blockFilter(dd *Delivery, next HandlerFunc) error {
	d.lock.RLock()
	_, blocked := d.blocked[dd.ID]
	d.lock.RUnlock()
	if blocked {
		metrics.IncrCounterWithGroup(_metricGroup, "dispatch_blocked_total", 1)
		return nil
	}
	return next(dd)
}

// Dispatch runs msg through the filters and its handler.
func (d *Dispatcher) Dispatch(tr Transport, msg Message) error {
	id, ok := d.registry.MessageID(msg)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnregisteredMessage, msg)
	}
	d.lock.RLock()
	filters := d.filters
	d.lock.RUnlock()
	return filters.Handle(&Delivery{Transport: tr, ID: id, Msg: msg}, d.handle)
}

func (d *Dispatcher) handle(dd *Delivery) error {
	d.lock.RLock()
	h, ok := d.handlers[dd.ID]
	d.lock.RUnlock()
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNoHandler, dd.ID)
	}
	return h(dd)
}

func (d *Dispatcher) dispatchAndLog(tr Transport, msg Message, logger log.Logger) {
	if err := d.Dispatch(tr, msg); err != nil {
		metrics.IncrCounterWithGroup(_metricGroup, "dispatch_error_total", 1)
		logger.Warn().Err(err).Msg("dispatch failed")
	}
}

// AttachService dispatches every message received by s's channels. The
// returned function detaches it.
func (d *Dispatcher) AttachService(s *Service) func() {
	return s.Events.RecvMessage.Subscribe(func(ev ChannelEvent[Message]) {
		d.dispatchAndLog(ev.Channel, ev.Value, ev.Channel.logger)
	})
}

// EventedTransport is a client connection that publishes its own events.
// Both *Client and *AsyncClient satisfy it.
type EventedTransport interface {
	Transport
	ClientEvents() *ConnEvents
}

// AttachClient dispatches every message received by c. Handlers reply
// through c itself, so an *AsyncClient keeps its ordered write path.
func (d *Dispatcher) AttachClient(c EventedTransport) func() {
	return c.ClientEvents().RecvMessage.Subscribe(func(msg Message) {
		d.dispatchAndLog(c, msg, log.DefaultLogger())
	})
}
