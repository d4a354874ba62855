package net

import (
	"context"
	"sync"
	"time"
)

// Executor runs event callbacks. Connections post every event through their
// executor so the application decides which goroutine observes them.
type Executor interface {
	Post(fn func())
}

// InlineExecutor runs callbacks immediately on the posting goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Post(fn func()) {
	fn()
}

// EventLoop queues callbacks until the application polls it, typically once
// per tick of its main loop.
type EventLoop struct {
	mu    sync.Mutex
	queue []func()
}

// NewEventLoop creates an empty loop.
func NewEventLoop() *EventLoop {
	return &EventLoop{}
}

func (l *EventLoop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
}

// Len returns the number of queued callbacks.
func (l *EventLoop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Poll runs the callbacks queued before the call and returns how many ran.
// Callbacks posted while polling wait for the next Poll.
func (l *EventLoop) Poll() int {
	l.mu.Lock()
	queue := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// PollN runs at most limit queued callbacks in FIFO order.
func (l *EventLoop) PollN(limit int) int {
	if limit <= 0 {
		return 0
	}
	l.mu.Lock()
	n := min(limit, len(l.queue))
	batch := make([]func(), n)
	copy(batch, l.queue[:n])
	l.queue = l.queue[n:]
	if len(l.queue) == 0 {
		l.queue = nil
	}
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return n
}

// Run polls every interval until ctx is done.
func (l *EventLoop) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Poll()
			return ctx.Err()
		case <-ticker.C:
			l.Poll()
		}
	}
}
