package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lcx/neton/config"
	"github.com/lcx/neton/log"
	"github.com/lcx/neton/net"
)

const _tick = 10 * time.Millisecond

// runClient sends stdin lines and prints the echoes. Every callback runs on
// this goroutine through the event loop.
func runClient(ctx context.Context, cm config.ConfigManager) error {
	cfg := &net.ClientCfg{}
	if err := cm.LoadConfig("client", cfg); err != nil {
		log.Warn().Err(err).Msg("client config not loaded, using defaults")
		cfg = net.DefaultClientCfg()
	}

	from := *name
	if from == "" {
		from, _ = os.Hostname()
	}

	loop := net.NewEventLoop()
	c := net.NewAsyncClient(cfg, newRegistry(), net.WithExecutor(loop))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.Events.RecvMessage.Subscribe(func(msg net.Message) {
		if m, ok := msg.(*ChatMessage); ok {
			fmt.Printf("%s: %s (%s)\n", m.From, m.Text, m.Latency().Round(time.Microsecond))
		}
	})
	c.Events.SendFailed.Subscribe(func(err *net.NetError) {
		fmt.Fprintln(os.Stderr, "send failed:", err)
	})
	c.Events.Disconnected.Subscribe(func(err error) {
		if err != nil {
			fmt.Fprintln(os.Stderr, "disconnected:", err)
		}
		cancel()
	})

	if err := c.Connect(ctx, *addr); err != nil {
		return err
	}
	defer c.Disconnect()
	if err := c.StartReceiving(); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer cancel()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(_tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			loop.Poll()
			return nil
		case line := <-lines:
			msg := &ChatMessage{From: from, Text: line, SentAt: time.Now().UnixNano()}
			if err := c.Send(msg); err != nil {
				log.Warn().Err(err).Msg("send failed")
			}
		case <-ticker.C:
			loop.Poll()
		}
	}
}
