package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/lcx/neton/config"
	"github.com/lcx/neton/discovery"
	"github.com/lcx/neton/log"
	"github.com/lcx/neton/metrics"
)

// Service accepts TCP connections and turns each into a Channel sharing the
// service's Registry. Channel events are forwarded to the service's Events
// with the channel attached.
//
// The accept loop and the read and send loops of every channel run in one
// errgroup bound to the context given to Start.
type Service struct {
	Events ServiceEvents

	cfg          atomic.Pointer[ServiceCfg]
	registry     *Registry
	exec         Executor
	registrar    Registrar
	parentLogger *log.GameLogger

	lock     sync.RWMutex
	channels map[string]*Channel
	order    []*Channel
	limiters map[string]RecvLimiter

	running  atomic.Bool
	listener net.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
	regID    string
}

// NewService creates a stopped service. A nil cfg uses DefaultServiceCfg.
func NewService(cfg *ServiceCfg, registry *Registry, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = DefaultServiceCfg()
	}
	s := &Service{
		registry: registry,
		exec:     InlineExecutor{},
		channels: make(map[string]*Channel),
		limiters: make(map[string]RecvLimiter),
	}
	s.cfg.Store(cfg)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceWithConfigManager loads the "service" config and follows its
// hot reloads.
func NewServiceWithConfigManager(configManager config.ConfigManager, registry *Registry, opts ...ServiceOption) (*Service, error) {
	if configManager == nil {
		return nil, errors.New("configManager cannot be nil")
	}
	cfg := &ServiceCfg{}
	if err := configManager.LoadConfig("service", cfg); err != nil {
		return nil, fmt.Errorf("failed to load service config: %w", err)
	}
	s := NewService(cfg, registry, opts...)
	configManager.AddChangeListener(s)
	return s, nil
}

// OnConfigChanged implements config.ConfigChangeListener. Timeouts and
// limiter rates apply to live channels; buffer sizes apply to new channels.
func (s *Service) OnConfigChanged(configName string, newConfig, _ config.Config) error {
	if configName != "service" {
		return nil
	}
	cfg, ok := newConfig.(*ServiceCfg)
	if !ok {
		return fmt.Errorf("invalid configuration type for Service")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	old := s.cfg.Swap(cfg)

	if old.RecvLimitMode == cfg.RecvLimitMode && cfg.RecvLimitMode != RecvLimitNone {
		s.lock.RLock()
		for _, l := range s.limiters {
			l.Reload(cfg.RecvLimit, cfg.RecvBurst)
		}
		s.lock.RUnlock()
	}
	log.Info().Str("configName", configName).Msg("service configuration updated")
	return nil
}

// Cfg returns the current configuration.
func (s *Service) Cfg() *ServiceCfg {
	return s.cfg.Load()
}

// Registry returns the registry shared by every channel.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Running reports whether the service is accepting.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Addr returns the bound listener address, or nil when stopped.
func (s *Service) Addr() net.Addr {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds address:port and starts accepting. Port 0 picks a free port,
// see Addr. Start returns once the listener is up; the loops stop when ctx
// ends or Stop is called.
func (s *Service) Start(ctx context.Context, address string, port int) error {
	metrics.IncrCounterWithGroup(_metricGroup, "transport_start_total", 1)
	if s.registry == nil {
		return errors.New("service registry is nil")
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServiceRunning
	}

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.running.Store(false)
		metrics.IncrCounterWithDimGroup(_metricGroup, "transport_start_error_total", 1, metrics.Dimension{"error_type": "listen"})
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	metrics.IncrCounterWithDimGroup(_metricGroup, "transport_start_success_total", 1, metrics.Dimension{"transport_type": "tcp"})

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	s.lock.Lock()
	s.listener = listener
	s.group = group
	s.cancel = cancel
	s.lock.Unlock()

	log.Info().Str("addr", listener.Addr().String()).Msg("service started")
	post(s.exec, &s.Events.Started, listener.Addr())

	s.register(ctx, listener.Addr())

	group.Go(func() error {
		<-gctx.Done()
		_ = listener.Close()
		return nil
	})
	group.Go(func() error {
		return s.serve(gctx, listener)
	})
	return nil
}

func (s *Service) serve(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !s.running.Load() || ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			log.Error().Err(err).Msg("service accept failed")
			return err
		}

		cfg := s.Cfg()
		if cfg.MaxConnections > 0 && s.Len() >= cfg.MaxConnections {
			metrics.IncrCounterWithGroup(_metricGroup, "connection_reject_total", 1)
			log.Warn().Str("peer", conn.RemoteAddr().String()).Int("max", cfg.MaxConnections).Msg("connection rejected")
			_ = conn.Close()
			continue
		}
		if tcp, ok := conn.(*net.TCPConn); ok && cfg.MaxBufferSize > 0 {
			if err := tcp.SetReadBuffer(cfg.MaxBufferSize); err != nil {
				log.Error().Int("BufSize", cfg.MaxBufferSize).Err(err).Msg("Set read buffer err")
			}
			if err := tcp.SetWriteBuffer(cfg.MaxBufferSize); err != nil {
				log.Error().Int("BufSize", cfg.MaxBufferSize).Err(err).Msg("Set write buffer err")
			}
		}

		limiter, err := NewRecvLimiter(cfg)
		if err != nil {
			log.Error().Err(err).Msg("recv limiter disabled")
		}

		ch := newChannel(ctx, s, conn, cfg, limiter)
		s.addChannel(ch, limiter)
		ch.start()
	}
}

// addChannel wires forwarding and publishes ch under the lock.
func (s *Service) addChannel(ch *Channel, limiter RecvLimiter) {
	s.lock.Lock()
	ch.detach = s.Events.attach(ch)
	s.channels[ch.id] = ch
	s.order = append(s.order, ch)
	if limiter != nil {
		s.limiters[ch.id] = limiter
	}
	count := len(s.channels)
	s.lock.Unlock()

	metrics.IncrCounterWithGroup(_metricGroup, "connection_success_total", 1)
	metrics.UpdateGaugeWithGroup(_metricGroup, "current_connections", metrics.Value(count))
	post(s.exec, &s.Events.ChannelCreated, ch)
}

// removeChannel detaches forwarding and drops ch under the lock.
func (s *Service) removeChannel(ch *Channel) {
	s.lock.Lock()
	if _, ok := s.channels[ch.id]; !ok {
		s.lock.Unlock()
		return
	}
	for _, d := range ch.detach {
		d()
	}
	ch.detach = nil
	delete(s.channels, ch.id)
	delete(s.limiters, ch.id)
	for i, c := range s.order {
		if c == ch {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	count := len(s.channels)
	s.lock.Unlock()

	metrics.UpdateGaugeWithGroup(_metricGroup, "current_connections", metrics.Value(count))
	s.Events.ChannelDeleted.Emit(ch)
}

// Channels returns a snapshot of the live channels in accept order.
func (s *Service) Channels() []*Channel {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]*Channel, len(s.order))
	copy(out, s.order)
	return out
}

// Channel looks up a channel by id.
func (s *Service) Channel(id string) (*Channel, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ch, ok := s.channels[id]
	return ch, ok
}

// Len returns the number of live channels.
func (s *Service) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.channels)
}

// Send packs msg once and queues it on every given channel that is still
// connected. Errors of individual channels are joined.
func (s *Service) Send(msg Message, channels ...*Channel) error {
	frame, err := s.registry.EnpackMessage(msg)
	if err != nil {
		return err
	}
	var errs []error
	for _, ch := range channels {
		if ch == nil || !ch.Connected() {
			continue
		}
		if err := ch.enqueue(outbound{frame: frame, msg: msg}); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.id, err))
		}
	}
	return errors.Join(errs...)
}

// Broadcast sends msg to every channel accepted by pred; a nil pred selects
// all channels.
func (s *Service) Broadcast(msg Message, pred func(*Channel) bool) error {
	var targets []*Channel
	for _, ch := range s.Channels() {
		if pred == nil || pred(ch) {
			targets = append(targets, ch)
		}
	}
	return s.Send(msg, targets...)
}

// Stop stops accepting, closes every channel and waits for all loops to
// return. Queued frames are not flushed.
func (s *Service) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	post(s.exec, &s.Events.Stopped, struct{}{})

	s.lock.Lock()
	listener, group, cancel := s.listener, s.group, s.cancel
	s.listener = nil
	channels := make([]*Channel, len(s.order))
	copy(channels, s.order)
	s.lock.Unlock()

	// Channels are closed outside the lock: their close notification
	// removes them from the collection under the same lock.
	_ = listener.Close()
	for _, ch := range channels {
		ch.Close()
	}
	s.deregister()
	cancel()

	err := group.Wait()
	log.Info().Int("channels", len(channels)).Msg("service stopped")
	return err
}

// Wait blocks until the service's loops return.
func (s *Service) Wait() error {
	s.lock.RLock()
	group := s.group
	s.lock.RUnlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

func (s *Service) register(ctx context.Context, addr net.Addr) {
	if s.registrar == nil {
		return
	}
	reg := discovery.Registration{Name: s.Cfg().Name}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		reg.Port = tcp.Port
		if !tcp.IP.IsUnspecified() {
			reg.Address = tcp.IP.String()
		}
	}
	reg.ID = fmt.Sprintf("%s-%s-%d", reg.Name, reg.Address, reg.Port)

	if err := s.registrar.Register(ctx, reg); err != nil {
		metrics.IncrCounterWithDimGroup(_metricGroup, "discovery_error_total", 1, metrics.Dimension{"op": "register"})
		log.Error().Err(err).Str("id", reg.ID).Msg("service registration failed")
		return
	}
	s.lock.Lock()
	s.regID = reg.ID
	s.lock.Unlock()
}

func (s *Service) deregister() {
	s.lock.Lock()
	id := s.regID
	s.regID = ""
	s.lock.Unlock()
	if s.registrar == nil || id == "" {
		return
	}
	if err := s.registrar.Deregister(context.Background(), id); err != nil {
		metrics.IncrCounterWithDimGroup(_metricGroup, "discovery_error_total", 1, metrics.Dimension{"op": "deregister"})
		log.Error().Err(err).Str("id", id).Msg("service deregistration failed")
	}
}
