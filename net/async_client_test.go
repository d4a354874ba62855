package net

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncClientEcho(t *testing.T) {
	_, addr := echoService(t, nil)
	c := NewAsyncClient(nil, newTestRegistry())
	messages := capture(&c.Events.RecvMessage)

	require.NoError(t, c.Connect(context.Background(), addr))
	defer c.Disconnect()
	require.NoError(t, c.StartReceiving())

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, c.Send(&chatMessage{Text: text}))
	}
	for _, text := range []string{"one", "two", "three"} {
		assert.Equal(t, text, receive(t, messages).(*chatMessage).Text)
	}
}

func TestAsyncClientConnectFailure(t *testing.T) {
	c := NewAsyncClient(nil, newTestRegistry())
	failed := capture(&c.Events.ConnectFailed)

	err := c.Connect(context.Background(), freeAddr(t))
	assert.Equal(t, CodeSocketError, CodeOf(err))
	receive(t, failed)
}

// pipeClient returns an AsyncClient connected to one end of a synchronous
// pipe, so writes block until the peer reads.
func pipeClient(t *testing.T, timeout time.Duration) (*AsyncClient, net.Conn) {
	t.Helper()
	cfg := DefaultClientCfg()
	cfg.OpTimeout = timeout
	c := NewAsyncClient(cfg, newTestRegistry())
	local, peer := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = peer.Close()
	})
	c.mu.Lock()
	c.conn = local
	c.state = StateConnected
	c.sess = newSession(c.registry, &c.Events, c.exec, c.logger, cfg.CompactThreshold)
	c.mu.Unlock()
	return c, peer
}

func TestAsyncClientSendTimeout(t *testing.T) {
	c, peer := pipeClient(t, 30*time.Millisecond)
	succeeded := capture(&c.Events.SendSucceeded)
	failed := capture(&c.Events.SendFailed)

	err := c.Send(&chatMessage{Text: "late"})
	require.Error(t, err)
	assert.Equal(t, CodeTimeout, CodeOf(err))
	assert.ErrorIs(t, err, ErrOperationTimeout)
	assert.Empty(t, succeeded)
	assert.Empty(t, failed)

	frame, err := c.Registry().EnpackMessage(&chatMessage{Text: "late"})
	require.NoError(t, err)
	got := make([]byte, len(frame))
	_, err = io.ReadFull(peer, got)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
	assert.Equal(t, len(frame), receive(t, succeeded))
}

func TestAsyncClientKeepsSendOrder(t *testing.T) {
	c, peer := pipeClient(t, 20*time.Millisecond)

	var want []byte
	for _, text := range []string{"a", "bb", "ccc"} {
		msg := &chatMessage{Text: text}
		frame, err := c.Registry().EnpackMessage(msg)
		require.NoError(t, err)
		want = append(want, frame...)
		assert.Equal(t, CodeTimeout, CodeOf(c.Send(msg)))
	}

	got := make([]byte, len(want))
	_, err := io.ReadFull(peer, got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAsyncClientSendNotConnected(t *testing.T) {
	c := NewAsyncClient(nil, newTestRegistry())
	assert.Equal(t, CodeNotConnected, CodeOf(c.Send(&chatMessage{})))
	assert.Equal(t, CodeNotConnected, CodeOf(c.SendBytes([]byte{0})))
}

func TestAsyncClientContextCancelled(t *testing.T) {
	c, _ := pipeClient(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error)
	err := c.wait(ctx, "connect", done)
	assert.Equal(t, CodeTimeout, CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAsyncClientDefaultTimeout(t *testing.T) {
	cfg := DefaultClientCfg()
	cfg.OpTimeout = 0
	c := NewAsyncClient(cfg, newTestRegistry())
	assert.Equal(t, time.Second, c.opTimeout)
}

func TestAsyncClientConnectRetriesLeaveNoSockets(t *testing.T) {
	s, addr := startService(t, nil)
	cfg := DefaultClientCfg()
	cfg.OpTimeout = time.Microsecond
	c := NewAsyncClient(cfg, newTestRegistry())

	for i := 0; i < 20; i++ {
		_ = c.Connect(context.Background(), addr)
	}
	require.NoError(t, c.Disconnect())

	require.Eventually(t, func() bool { return s.Len() == 0 }, _waitTimeout, 5*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, s.Len())
	assert.False(t, c.Connected())
}

func TestClientOverlappingConnectsKeepOneSocket(t *testing.T) {
	s, addr := startService(t, nil)
	c := NewClient(nil, newTestRegistry())

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() { errs <- c.Connect(context.Background(), addr) }()
	}
	succeeded := 0
	for i := 0; i < 4; i++ {
		err := <-errs
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrConnectAborted)
		assert.Equal(t, CodeConnectionAborted, CodeOf(err))
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	require.Eventually(t, func() bool { return s.Len() == 1 }, _waitTimeout, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, c.Disconnect())
	require.Eventually(t, func() bool { return s.Len() == 0 }, _waitTimeout, 5*time.Millisecond)
}
