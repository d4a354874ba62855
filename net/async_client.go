package net

import (
	"context"
	"sync"
	"time"

	"github.com/lcx/neton/metrics"
)

// AsyncClient has the Client's events and receive path, but Connect and
// Send run the socket operation on another goroutine and wait at most
// OpTimeout for it.
//
// A timed out call returns a *NetError with CodeTimeout wrapping
// ErrOperationTimeout. A late Send still emits its own event; a late Connect
// is abandoned: it reports ConnectFailed, or is closed again right after
// Connected when the dial won the race with the timer.
type AsyncClient struct {
	*Client

	opTimeout time.Duration

	sendMu   sync.Mutex
	lastSend chan struct{}
}

// NewAsyncClient creates a disconnected AsyncClient. A nil cfg uses
// DefaultClientCfg.
func NewAsyncClient(cfg *ClientCfg, registry *Registry, opts ...ClientOption) *AsyncClient {
	c := NewClient(cfg, registry, opts...)
	timeout := c.cfg.OpTimeout
	if timeout <= 0 {
		timeout = 1000 * time.Millisecond
	}
	return &AsyncClient{Client: c, opTimeout: timeout}
}

// Connect dials remote, waiting at most OpTimeout. A dial still running when
// Connect returns is cancelled, so a timed out attempt never installs a
// connection behind the caller's back.
func (c *AsyncClient) Connect(ctx context.Context, remote string) error {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		epoch uint64
		err   error
	}
	result := make(chan attempt, 1)
	done := make(chan error, 1)
	go func() {
		epoch, err := c.Client.connect(dialCtx, remote)
		result <- attempt{epoch, err}
		done <- err
	}()
	completed, err := c.await(ctx, "connect", done)
	if completed {
		return err
	}
	// the dial may finish before it sees the cancel
	cancel()
	if late := <-result; late.err == nil {
		c.Client.dropEpoch(late.epoch)
	}
	return err
}

// Send packs msg and writes it, waiting at most OpTimeout.
func (c *AsyncClient) Send(msg Message) error {
	frame, err := c.enpack(msg)
	if err != nil {
		return err
	}
	return c.writeAsync(frame, msg)
}

// SendBytes writes b, waiting at most OpTimeout.
func (c *AsyncClient) SendBytes(b []byte) error {
	return c.writeAsync(b, nil)
}

// writeAsync chains every write after the previous one so frames keep their
// order even when an earlier write outlives its timeout.
func (c *AsyncClient) writeAsync(b []byte, msg Message) error {
	c.sendMu.Lock()
	prev := c.lastSend
	finished := make(chan struct{})
	c.lastSend = finished
	c.sendMu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer close(finished)
		if prev != nil {
			<-prev
		}
		done <- c.write(b, msg)
	}()
	return c.wait(context.Background(), "send", done)
}

func (c *AsyncClient) wait(ctx context.Context, op string, done <-chan error) error {
	_, err := c.await(ctx, op, done)
	return err
}

// await is wait that also reports whether done delivered the result.
func (c *AsyncClient) await(ctx context.Context, op string, done <-chan error) (bool, error) {
	timer := time.NewTimer(c.opTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return true, err
	case <-timer.C:
		metrics.IncrCounterWithDimGroup(_metricGroup, "op_timeout_total", 1, metrics.Dimension{"op": op})
		return false, newNetError(CodeTimeout, op, ErrOperationTimeout)
	case <-ctx.Done():
		return false, newNetError(CodeTimeout, op, ctx.Err())
	}
}
