// Command neton-echo runs a neton echo server or an interactive client.
//
//	neton-echo -mode server -config ./configs
//	neton-echo -mode client -addr 127.0.0.1:7100
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcx/neton/config"
	"github.com/lcx/neton/log"
)

var (
	configPath  = flag.String("config", "./configs", "config directory")
	env         = flag.String("env", "development", "config environment, a subdirectory of -config")
	mode        = flag.String("mode", "server", "server or client")
	addr        = flag.String("addr", "127.0.0.1:7100", "server address, client mode only")
	name        = flag.String("name", "", "sender name, client mode only")
	metricsAddr = flag.String("metrics", ":9100", "metrics listen address, empty disables it")
	useConsul   = flag.Bool("consul", false, "register the server in consul")
)

func main() {
	flag.Parse()

	cm := config.GetInstance()
	cm.SetBasePath(*configPath)
	cm.SetEnvironment(*env)
	defer cm.Close()

	if err := log.InitializeWithConfigManager(cm); err != nil {
		log.Warn().Err(err).Msg("logger config not loaded, using defaults")
	}
	defer log.Refresh()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch *mode {
	case "server":
		err = runServer(ctx, cm)
	case "client":
		err = runClient(ctx, cm)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Error().Err(err).Msg("neton-echo exited")
		log.Refresh()
		os.Exit(1)
	}
}
