package net

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// RecvLimiter gates how fast a channel dispatches received messages. Take
// blocks the channel's read loop, so a flooding peer is slowed down by TCP
// backpressure instead of filling memory.
type RecvLimiter interface {
	Take(ctx context.Context) error
	// Reload swaps the limits in place.
	Reload(limit, burst int)
}

// NewRecvLimiter builds the limiter selected by cfg.RecvLimitMode, or nil
// when limiting is off.
func NewRecvLimiter(cfg *ServiceCfg) (RecvLimiter, error) {
	switch cfg.RecvLimitMode {
	case RecvLimitNone:
		return nil, nil
	case RecvLimitToken:
		return NewTokenRecvLimiter(cfg.RecvLimit, cfg.RecvBurst), nil
	case RecvLimitFunnel:
		return NewFunnelRecvLimiter(cfg.RecvLimit), nil
	default:
		return nil, fmt.Errorf("unknown recvLimitMode %q", cfg.RecvLimitMode)
	}
}

// TokenRecvLimiter is a token bucket limiter: bursts up to burst messages
// pass at once, then limit per second.
//
// The limiter lives behind an atomic pointer so Reload never races Take.
type TokenRecvLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
}

// NewTokenRecvLimiter creates a token bucket limiter.
//
//	limiter := NewTokenRecvLimiter(100, 10) // 100 messages per second, burst of 10
func NewTokenRecvLimiter(limit int, burst int) *TokenRecvLimiter {
	l := &TokenRecvLimiter{}
	l.Reload(limit, burst)
	return l
}

// Take waits for a token or for ctx to end.
func (l *TokenRecvLimiter) Take(ctx context.Context) error {
	return l.limiter.Load().Wait(ctx)
}

func (l *TokenRecvLimiter) Reload(limit int, burst int) {
	if burst <= 0 {
		burst = max(limit, 1)
	}
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
}

// FunnelRecvLimiter is a leaky bucket limiter that spaces messages evenly at
// limit per second.
type FunnelRecvLimiter struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

// NewFunnelRecvLimiter creates a leaky bucket limiter.
func NewFunnelRecvLimiter(limit int) *FunnelRecvLimiter {
	l := &FunnelRecvLimiter{}
	l.Reload(limit, 0)
	return l
}

// Take blocks until the next slot. ratelimit cannot be interrupted, so ctx is
// only checked before waiting.
func (l *FunnelRecvLimiter) Take(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	(*l.limiter.Load()).Take()
	return nil
}

// Reload sets a new rate. burst is ignored.
func (l *FunnelRecvLimiter) Reload(limit int, _ int) {
	limiter := ratelimit.New(max(limit, 1))
	l.limiter.Store(&limiter)
}

// LimiterFilter applies l to a Dispatcher, capping the combined handling rate
// of every connection it serves.
func LimiterFilter(l RecvLimiter) DispatcherFilter {
	return func(d *Delivery, next HandlerFunc) error {
		if err := l.Take(context.Background()); err != nil {
			return err
		}
		return next(d)
	}
}
