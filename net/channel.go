package net

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lcx/neton/log"
	"github.com/lcx/neton/metrics"
)

type outbound struct {
	frame []byte
	msg   Message
}

// Channel is one accepted connection of a Service. It reads and reassembles
// frames on its own goroutine and writes from a queue on another, so Send
// never blocks on the socket.
type Channel struct {
	Events ConnEvents

	id         string
	service    *Service
	conn       net.Conn
	localAddr  net.Addr
	remoteAddr net.Addr
	sess       *session
	logger     *log.PeerLogger
	exec       Executor

	ctx       context.Context
	cancel    context.CancelFunc
	sendCh    chan outbound
	state     atomic.Int32
	closeOnce sync.Once

	lastReadTime  time.Time
	lastWriteTime time.Time

	detach []func()
}

const (
	channelNew int32 = iota
	channelOpen
	channelClosed
)

// newChannel builds a channel bound to ctx. Everything close touches is set
// here, before the channel is published to the service.
func newChannel(ctx context.Context, s *Service, conn net.Conn, cfg *ServiceCfg, limiter RecvLimiter) *Channel {
	id := uuid.NewString()
	logger := log.NewPeerLogger(s.parentLogger, id, conn.RemoteAddr().String())
	ch := &Channel{
		id:         id,
		service:    s,
		conn:       conn,
		localAddr:  conn.LocalAddr(),
		remoteAddr: conn.RemoteAddr(),
		logger:     logger,
		exec:       s.exec,
		sendCh:     make(chan outbound, cfg.SendChannelSize),
	}
	ch.ctx, ch.cancel = context.WithCancel(ctx)
	ch.sess = newSession(s.registry, &ch.Events, s.exec, logger, cfg.CompactThreshold)
	ch.sess.ctx = ch.ctx
	ch.sess.limiter = limiter
	return ch
}

// ID is the channel's unique id.
func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) RemoteAddr() net.Addr {
	return c.remoteAddr
}

func (c *Channel) LocalAddr() net.Addr {
	return c.localAddr
}

// Connected reports whether the channel is open. A failed read or write
// closes the channel, so this is also the liveness check used by broadcasts.
func (c *Channel) Connected() bool {
	return c.state.Load() == channelOpen
}

// Logger returns the logger stamped with this channel's id and peer.
func (c *Channel) Logger() log.Logger {
	return c.logger
}

// start launches the read and send loops inside the service's group. A
// channel closed before it started stays closed.
func (c *Channel) start() {
	if !c.state.CompareAndSwap(channelNew, channelOpen) {
		return
	}
	context.AfterFunc(c.ctx, c.Close)

	c.logger.Info().Msg("channel opened")
	post(c.exec, &c.Events.Connected, c.remoteAddr)

	c.service.group.Go(c.serveRecv)
	c.service.group.Go(c.serveSend)
}

func (c *Channel) serveRecv() error {
	buf := make([]byte, c.service.Cfg().RecvBufferSize)
	for {
		if c.ctx.Err() != nil {
			return nil
		}
		c.setReadDeadline()
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.sess.handleRead(buf[:n], false)
			post(c.exec, &c.Events.RecvSucceeded, n)
		}
		if err != nil {
			if c.state.Load() == channelClosed {
				return nil
			}
			code := classify(err)
			if code == CodeClosed {
				code = CodeConnectionAborted
			}
			nerr := newNetError(code, "recv", err)
			c.logger.Info().Err(err).Str("code", code.String()).Msg("channel receive failed")
			post(c.exec, &c.Events.RecvFailed, nerr)
			c.closeWith(nerr)
			return nil
		}
	}
}

func (c *Channel) serveSend() error {
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case out := <-c.sendCh:
			if err := c.write(out); err != nil {
				c.closeWith(err)
				return nil
			}
		}
	}
}

func (c *Channel) write(out outbound) error {
	c.setWriteDeadline()
	n, err := c.conn.Write(out.frame)
	if err != nil {
		nerr := newNetError(classify(err), "send", err)
		metrics.IncrCounterWithDimGroup(_metricGroup, "send_error_total", 1, metrics.Dimension{"code": nerr.Code.String()})
		c.logger.Warn().Err(err).Msg("channel send failed")
		post(c.exec, &c.Events.SendFailed, nerr)
		return nerr
	}
	metrics.IncrCounterWithGroup(_metricGroup, "bytes_sent_total", metrics.Value(n))
	post(c.exec, &c.Events.RawSent, out.frame)
	post(c.exec, &c.Events.SendSucceeded, n)
	if out.msg != nil {
		post(c.exec, &c.Events.MessageSent, out.msg)
	}
	return nil
}

// Send packs msg and queues the frame.
func (c *Channel) Send(msg Message) error {
	frame, err := c.service.registry.EnpackMessage(msg)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			return newNetError(CodePayloadTooLarge, "send", err)
		}
		return err
	}
	return c.enqueue(outbound{frame: frame, msg: msg})
}

// SendBytes queues b as is.
func (c *Channel) SendBytes(b []byte) error {
	return c.enqueue(outbound{frame: b})
}

func (c *Channel) enqueue(out outbound) error {
	if c.state.Load() != channelOpen {
		return newNetError(CodeClosed, "send", ErrClosed)
	}
	select {
	case c.sendCh <- out:
		return nil
	default:
		metrics.IncrCounterWithGroup(_metricGroup, "send_queue_full_total", 1)
		return ErrSendQueueFull
	}
}

// Close closes the channel. In-flight queued frames are dropped. It is
// idempotent.
func (c *Channel) Close() {
	c.closeWith(nil)
}

func (c *Channel) closeWith(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(channelClosed)
		c.cancel()
		_ = c.conn.Close()

		metrics.IncrCounterWithGroup(_metricGroup, "connection_close_total", 1)
		c.logger.Info().Err(cause).Msg("channel closed")
		c.exec.Post(func() {
			c.Events.Disconnected.Emit(cause)
			c.service.removeChannel(c)
		})
	})
}

// setReadDeadline pushes the idle deadline forward. Refreshing is throttled
// to a fraction of the timeout to keep syscalls off the hot path.
func (c *Channel) setReadDeadline() {
	idle := c.service.Cfg().IdleTimeout
	if idle <= 0 {
		return
	}
	n := time.Now()
	if n.Sub(c.lastReadTime) > min(idle/4, 5*time.Second) {
		c.lastReadTime = n
		_ = c.conn.SetReadDeadline(n.Add(idle))
	}
}

func (c *Channel) setWriteDeadline() {
	timeout := c.service.Cfg().WriteTimeout
	if timeout <= 0 {
		return
	}
	n := time.Now()
	if n.Sub(c.lastWriteTime) > min(timeout/4, 5*time.Second) {
		c.lastWriteTime = n
		_ = c.conn.SetWriteDeadline(n.Add(timeout))
	}
}
