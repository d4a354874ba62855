package net

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/neton/log"
	"github.com/lcx/neton/metrics"
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client is a TCP client with blocking Connect and Send and a callback
// driven receive loop.
//
// Each Recv issues one read. When the read fills the whole read buffer more
// data is assumed to be pending and frame extraction waits for the next,
// shorter read; the caller keeps the loop going by calling Recv again, which
// StartReceiving automates.
type Client struct {
	Events ConnEvents

	cfg          *ClientCfg
	registry     *Registry
	exec         Executor
	parentLogger *log.GameLogger

	mu    sync.Mutex
	state State
	conn  net.Conn
	sess  *session
	// epoch changes on every Connect and Disconnect. A dial that finishes
	// under a stale epoch was superseded and closes its socket.
	epoch  uint64
	logger log.Logger

	sendMu      sync.Mutex
	readBuf     []byte
	recvPending atomic.Bool
	receiving   atomic.Bool
}

// NewClient creates a disconnected client. A nil cfg uses DefaultClientCfg.
func NewClient(cfg *ClientCfg, registry *Registry, opts ...ClientOption) *Client {
	if cfg == nil {
		cfg = DefaultClientCfg()
	}
	c := &Client{
		cfg:      cfg,
		registry: registry,
		exec:     InlineExecutor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.readBuf = make([]byte, cfg.RecvBufferSize)
	c.logger = log.NewPeerLogger(c.parentLogger, "", "")
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the client holds an open connection.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// ClientEvents returns the client's event set.
func (c *Client) ClientEvents() *ConnEvents {
	return &c.Events
}

// RemoteAddr returns the peer address, or nil when disconnected.
func (c *Client) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

// Registry returns the registry shared by this client.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Connect drops any existing connection and dials remote. The result is both
// returned and reported through Connected or ConnectFailed.
//
// A Connect overtaken by a later Connect or Disconnect, or whose ctx ended
// while dialing, closes its socket and fails with ErrConnectAborted.
func (c *Client) Connect(ctx context.Context, remote string) error {
	_, err := c.connect(ctx, remote)
	return err
}

// connect is Connect that also returns the attempt's epoch.
func (c *Client) connect(ctx context.Context, remote string) (uint64, error) {
	_ = c.Disconnect()

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.state = StateConnecting
	c.mu.Unlock()

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	if c.cfg.LocalAddr != "" {
		local, err := net.ResolveTCPAddr("tcp", c.cfg.LocalAddr)
		if err != nil {
			return epoch, c.connectFailed(epoch, remote, err)
		}
		dialer.LocalAddr = local
	}

	conn, err := dialer.DialContext(ctx, "tcp", remote)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			err = errors.Join(ErrConnectAborted, err)
		}
		return epoch, c.connectFailed(epoch, remote, err)
	}

	logger := log.NewPeerLogger(c.parentLogger, "", conn.RemoteAddr().String())
	c.mu.Lock()
	if epoch != c.epoch || ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return epoch, c.connectFailed(epoch, remote, ErrConnectAborted)
	}
	c.conn = conn
	c.state = StateConnected
	c.logger = logger
	c.sess = newSession(c.registry, &c.Events, c.exec, logger, c.cfg.CompactThreshold)
	c.mu.Unlock()

	metrics.IncrCounterWithDimGroup(_metricGroup, "client_connect_total", 1, metrics.Dimension{"result": "success"})
	logger.Info().Str("local", conn.LocalAddr().String()).Msg("client connected")
	post(c.exec, &c.Events.Connected, conn.RemoteAddr())
	return epoch, nil
}

// connectFailed reports a failed attempt. Only the latest attempt moves the
// state back to disconnected.
func (c *Client) connectFailed(epoch uint64, remote string, err error) error {
	c.mu.Lock()
	if epoch == c.epoch {
		c.state = StateDisconnected
	}
	logger := c.logger
	c.mu.Unlock()

	nerr := newNetError(CodeSocketError, "connect", err)
	switch {
	case errors.Is(err, ErrConnectAborted):
		nerr.Code = CodeConnectionAborted
	case classify(err) == CodeTimeout:
		nerr.Code = CodeTimeout
	}
	metrics.IncrCounterWithDimGroup(_metricGroup, "client_connect_total", 1, metrics.Dimension{"result": "failure"})
	logger.Warn().Str("remote", remote).Err(err).Msg("client connect failed")
	post(c.exec, &c.Events.ConnectFailed, nerr)
	return nerr
}

// Send packs msg and writes the frame. MessageSent carries msg itself.
func (c *Client) Send(msg Message) error {
	frame, err := c.enpack(msg)
	if err != nil {
		return err
	}
	return c.write(frame, msg)
}

// SendBytes writes b as is.
func (c *Client) SendBytes(b []byte) error {
	return c.write(b, nil)
}

func (c *Client) enpack(msg Message) ([]byte, error) {
	frame, err := c.registry.EnpackMessage(msg)
	if err == nil {
		return frame, nil
	}
	if errors.Is(err, ErrPayloadTooLarge) {
		nerr := newNetError(CodePayloadTooLarge, "send", err)
		post(c.exec, &c.Events.SendFailed, nerr)
		return nil, nerr
	}
	return nil, err
}

func (c *Client) write(b []byte, msg Message) error {
	c.mu.Lock()
	conn, logger := c.conn, c.logger
	c.mu.Unlock()
	if conn == nil {
		nerr := newNetError(CodeNotConnected, "send", ErrNotConnected)
		post(c.exec, &c.Events.SendFailed, nerr)
		return nerr
	}

	c.sendMu.Lock()
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	n, err := conn.Write(b)
	c.sendMu.Unlock()

	if err != nil {
		nerr := newNetError(classify(err), "send", err)
		metrics.IncrCounterWithDimGroup(_metricGroup, "send_error_total", 1, metrics.Dimension{"code": nerr.Code.String()})
		logger.Warn().Err(err).Msg("client send failed")
		post(c.exec, &c.Events.SendFailed, nerr)
		return nerr
	}

	metrics.IncrCounterWithGroup(_metricGroup, "bytes_sent_total", metrics.Value(n))
	post(c.exec, &c.Events.RawSent, b)
	post(c.exec, &c.Events.SendSucceeded, n)
	if msg != nil {
		post(c.exec, &c.Events.MessageSent, msg)
	}
	return nil
}

// Recv starts one asynchronous read. Only one read may be outstanding; a
// second call returns ErrRecvPending. The outcome is reported through
// RecvSucceeded, or RecvFailed followed by Disconnected.
func (c *Client) Recv() error {
	if !c.recvPending.CompareAndSwap(false, true) {
		return ErrRecvPending
	}
	c.mu.Lock()
	conn, sess := c.conn, c.sess
	c.mu.Unlock()
	if conn == nil {
		c.recvPending.Store(false)
		return newNetError(CodeNotConnected, "recv", ErrNotConnected)
	}

	go c.readOnce(conn, sess)
	return nil
}

func (c *Client) readOnce(conn net.Conn, sess *session) {
	if c.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	n, err := conn.Read(c.readBuf)
	if n > 0 {
		sess.handleRead(c.readBuf[:n], n == len(c.readBuf))
	}
	c.recvPending.Store(false)

	if n == 0 || err != nil {
		if !c.isCurrent(conn) {
			return
		}
		code := CodeConnectionAborted
		if err != nil && classify(err) == CodeTimeout {
			code = CodeTimeout
		}
		nerr := newNetError(code, "recv", err)
		sess.logger.Info().Err(err).Str("code", code.String()).Msg("client receive failed")
		post(c.exec, &c.Events.RecvFailed, nerr)
		c.closeConn(conn, nerr)
		return
	}
	post(c.exec, &c.Events.RecvSucceeded, n)
}

// StartReceiving issues a Recv and re-arms it after every RecvSucceeded,
// forming a continuous receive loop. Calling it again is a no-op.
func (c *Client) StartReceiving() error {
	if c.receiving.CompareAndSwap(false, true) {
		c.Events.RecvSucceeded.Subscribe(func(int) {
			_ = c.Recv()
		})
	}
	err := c.Recv()
	if errors.Is(err, ErrRecvPending) {
		return nil
	}
	return err
}

// Disconnect shuts down and closes the connection and abandons any Connect
// still dialing. It is idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.epoch++
	conn := c.conn
	if conn == nil {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.closeConn(conn, nil)
}

// dropEpoch closes the connection installed by the attempt with epoch, if
// nothing has replaced it since.
func (c *Client) dropEpoch(epoch uint64) {
	c.mu.Lock()
	conn := c.conn
	if epoch != c.epoch || conn == nil {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.mu.Unlock()
	_ = c.closeConn(conn, nil)
}

func (c *Client) isCurrent(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

// closeConn closes conn if it is still the current connection and emits
// Disconnected with cause.
func (c *Client) closeConn(conn net.Conn, cause error) error {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return nil
	}
	c.conn = nil
	c.state = StateDisconnected
	logger := c.logger
	c.mu.Unlock()

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
		_ = tcp.CloseRead()
	}
	err := conn.Close()

	metrics.IncrCounterWithGroup(_metricGroup, "client_disconnect_total", 1)
	logger.Info().Err(cause).Msg("client disconnected")
	post(c.exec, &c.Events.Disconnected, cause)
	return err
}
