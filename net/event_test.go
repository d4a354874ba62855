package net

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFanOutInOrder(t *testing.T) {
	var ev Event[int]
	var got []string
	ev.Subscribe(func(v int) { got = append(got, "a") })
	ev.Subscribe(func(v int) { got = append(got, "b") })
	ev.Subscribe(func(v int) { got = append(got, "c") })

	ev.Emit(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 3, ev.Len())
}

func TestEventUnsubscribe(t *testing.T) {
	var ev Event[string]
	var calls []string

	var unsubA func()
	unsubA = ev.Subscribe(func(v string) {
		calls = append(calls, "a:"+v)
		unsubA()
	})
	ev.Subscribe(func(v string) { calls = append(calls, "b:"+v) })

	ev.Emit("1")
	ev.Emit("2")
	assert.Equal(t, []string{"a:1", "b:1", "b:2"}, calls)
	assert.Equal(t, 1, ev.Len())

	unsubA()
	assert.Equal(t, 1, ev.Len())

	ev.Clear()
	assert.Equal(t, 0, ev.Len())
	ev.Emit("3")
	assert.Len(t, calls, 3)

	assert.NotPanics(t, func() { ev.Subscribe(nil)() })
}

func TestEventLoopPoll(t *testing.T) {
	loop := NewEventLoop()
	var order []int
	for i := 0; i < 5; i++ {
		loop.Post(func() { order = append(order, i) })
	}
	assert.Equal(t, 5, loop.Len())
	assert.Empty(t, order)

	assert.Equal(t, 2, loop.PollN(2))
	assert.Equal(t, []int{0, 1}, order)

	loop.Post(func() {
		order = append(order, 99)
		loop.Post(func() { order = append(order, 100) })
	})
	assert.Equal(t, 4, loop.Poll())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 99}, order)
	assert.Equal(t, 1, loop.Poll())
	assert.Equal(t, 0, loop.Poll())
	assert.Equal(t, 0, loop.PollN(0))
}

func TestEventLoopRun(t *testing.T) {
	loop := NewEventLoop()
	var ran atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, time.Millisecond) }()

	loop.Post(func() { ran.Add(1) })
	require.Eventually(t, func() bool { return ran.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestInlineExecutor(t *testing.T) {
	ran := false
	InlineExecutor{}.Post(func() { ran = true })
	assert.True(t, ran)
}

func TestNetErrorCodes(t *testing.T) {
	err := newNetError(CodeTimeout, "send", ErrOperationTimeout)
	assert.ErrorIs(t, err, ErrOperationTimeout)
	assert.Equal(t, CodeTimeout, CodeOf(err))
	assert.Equal(t, "net: send: timeout: net: operation timed out", err.Error())
	assert.Equal(t, ErrorCode(0), CodeOf(ErrClosed))
	assert.Equal(t, "code(99)", ErrorCode(99).String())
}
