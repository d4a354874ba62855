package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lcx/neton/config"
	"github.com/lcx/neton/discovery"
	"github.com/lcx/neton/log"
	"github.com/lcx/neton/metrics"
	"github.com/lcx/neton/net"
)

func runServer(ctx context.Context, cm config.ConfigManager) error {
	registry := newRegistry()

	var opts []net.ServiceOption
	if *useConsul {
		registrar, err := discovery.NewConsulRegistrarWithConfigManager(cm)
		if err != nil {
			return fmt.Errorf("consul: %w", err)
		}
		opts = append(opts, net.WithRegistrar(registrar))
	}

	svc, err := net.NewServiceWithConfigManager(cm, registry, opts...)
	if err != nil {
		return err
	}

	d := net.NewDispatcher(registry)
	if err := net.HandleMessage(d, func(tr net.Transport, m *ChatMessage) error {
		log.Debug().Str("from", m.From).Str("text", m.Text).Msg("echo")
		return tr.Send(m)
	}); err != nil {
		return err
	}
	defer d.AttachService(svc)()

	svc.Events.ChannelCreated.Subscribe(func(ch *net.Channel) {
		ch.Logger().Info().Int("channels", svc.Len()).Msg("client joined")
	})
	svc.Events.ChannelDeleted.Subscribe(func(ch *net.Channel) {
		ch.Logger().Info().Int("channels", svc.Len()).Msg("client left")
	})
	svc.Events.FrameDesync.Subscribe(func(ev net.ChannelEvent[*net.NetError]) {
		ev.Channel.Logger().Warn().Err(ev.Value).Msg("peer sent garbage")
	})

	cfg := svc.Cfg()
	if err := svc.Start(ctx, cfg.Address, cfg.Port); err != nil {
		return err
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	<-ctx.Done()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return svc.Stop()
}
