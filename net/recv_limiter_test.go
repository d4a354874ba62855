package net

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecvLimiter(t *testing.T) {
	cfg := DefaultServiceCfg()
	l, err := NewRecvLimiter(cfg)
	require.NoError(t, err)
	assert.Nil(t, l)

	cfg.RecvLimitMode = RecvLimitToken
	cfg.RecvLimit = 10
	l, err = NewRecvLimiter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &TokenRecvLimiter{}, l)

	cfg.RecvLimitMode = RecvLimitFunnel
	l, err = NewRecvLimiter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FunnelRecvLimiter{}, l)

	cfg.RecvLimitMode = "bucket"
	_, err = NewRecvLimiter(cfg)
	assert.Error(t, err)
}

func TestTokenRecvLimiter(t *testing.T) {
	l := NewTokenRecvLimiter(1, 1)
	require.NoError(t, l.Take(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Take(ctx))

	l.Reload(10000, 10)
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Take(context.Background()))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.ErrorIs(t, l.Take(cancelled), context.Canceled)
}

func TestFunnelRecvLimiter(t *testing.T) {
	l := NewFunnelRecvLimiter(100)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Take(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Take(ctx), context.Canceled)

	l.Reload(0, 0)
	require.NoError(t, l.Take(context.Background()))
}

func TestLimiterFilter(t *testing.T) {
	filter := LimiterFilter(NewTokenRecvLimiter(1000, 1000))
	called := false
	err := filter(&Delivery{ID: 1}, func(d *Delivery) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
