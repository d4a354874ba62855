package net

import "sync"

// Event is an ordered multi-subscriber notification. Handlers run in the
// order they subscribed. The zero value is ready to use.
type Event[T any] struct {
	mu       sync.Mutex
	handlers []eventHandler[T]
	nextID   uint64
}

type eventHandler[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe attaches fn and returns a function detaching it. Detaching is
// idempotent and safe from inside a handler.
func (e *Event[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, eventHandler[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Event[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == id {
			handlers := make([]eventHandler[T], 0, len(e.handlers)-1)
			handlers = append(handlers, e.handlers[:i]...)
			e.handlers = append(handlers, e.handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every handler attached when Emit starts.
func (e *Event[T]) Emit(v T) {
	e.mu.Lock()
	handlers := e.handlers
	e.mu.Unlock()
	for _, h := range handlers {
		h.fn(v)
	}
}

// Len returns the number of attached handlers.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// Clear detaches every handler.
func (e *Event[T]) Clear() {
	e.mu.Lock()
	e.handlers = nil
	e.mu.Unlock()
}

// post delivers v through exec, skipping the closure when nobody listens.
func post[T any](exec Executor, ev *Event[T], v T) {
	if ev.Len() == 0 {
		return
	}
	exec.Post(func() { ev.Emit(v) })
}
