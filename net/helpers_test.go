package net

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const _waitTimeout = 2 * time.Second

// startService starts s on a loopback port and stops it when the test ends.
func startService(t *testing.T, cfg *ServiceCfg, opts ...ServiceOption) (*Service, string) {
	t.Helper()
	s := NewService(cfg, newTestRegistry(), opts...)
	require.NoError(t, s.Start(context.Background(), "127.0.0.1", 0))
	t.Cleanup(func() { _ = s.Stop() })
	return s, s.Addr().String()
}

// echoService starts a service answering every chatMessage with itself.
func echoService(t *testing.T, cfg *ServiceCfg, opts ...ServiceOption) (*Service, string) {
	t.Helper()
	s, addr := startService(t, cfg, opts...)
	d := NewDispatcher(s.Registry())
	require.NoError(t, HandleMessage(d, func(tr Transport, m *chatMessage) error {
		return tr.Send(m)
	}))
	t.Cleanup(d.AttachService(s))
	return s, addr
}

func connectClient(t *testing.T, addr string, opts ...ClientOption) *Client {
	t.Helper()
	c := NewClient(nil, newTestRegistry(), opts...)
	require.NoError(t, c.Connect(context.Background(), addr))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

// capture subscribes a buffered channel to ev.
func capture[T any](ev *Event[T]) <-chan T {
	ch := make(chan T, 64)
	ev.Subscribe(func(v T) {
		select {
		case ch <- v:
		default:
		}
	})
	return ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(_waitTimeout):
		t.Fatalf("timed out waiting for %T", *new(T))
	}
	var zero T
	return zero
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}
