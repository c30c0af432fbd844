// tradewired is the aggregator daemon: it binds the receive side of the
// bridge, folds events into the metric store, and serves /metrics, /health,
// /analysis and /ws.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"

	"github.com/luxfi/tradewire/pkg/analyzer"
	"github.com/luxfi/tradewire/pkg/api"
	"github.com/luxfi/tradewire/pkg/bench"
	"github.com/luxfi/tradewire/pkg/bridge"
	"github.com/luxfi/tradewire/pkg/config"
	"github.com/luxfi/tradewire/pkg/ingest"
	"github.com/luxfi/tradewire/pkg/metrics"
	"github.com/luxfi/tradewire/pkg/supervisor"
	"github.com/luxfi/tradewire/pkg/wire"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	bindAddr := flag.String("bind", "", "Bridge bind address override")
	httpPort := flag.Int("http-port", 0, "HTTP listen port override")
	selfMonitor := flag.Bool("self-monitor", true, "Publish self-monitor probes through the bridge")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *bindAddr != "" {
		cfg.Bridge.BindAddr = *bindAddr
	}
	if *httpPort != 0 {
		cfg.HTTP.Port = *httpPort
	}

	level, _ := log.ToLevel(cfg.LogLevel)
	logger := log.NewTestLogger(level).New("app", "tradewired")
	logger.Info("starting",
		"transport", cfg.Transport,
		"bind", cfg.Bridge.BindAddr,
		"http", cfg.HTTPAddr(),
	)

	if err := run(logger, cfg, *selfMonitor); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("exited with fault", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(logger log.Logger, cfg config.Config, selfMonitor bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := metrics.NewStore()
	an := analyzer.New(cfg.Analyzer.Window)
	hub := api.NewHub(logger)

	service := ingest.New(logger, store, cfg.Bridge.BindAddr, receiverFor(cfg))
	service.OnTrade = func(t wire.TradeMsg) {
		an.Add(t)
		hub.Broadcast(t)
	}

	server := api.New(logger, cfg.HTTPAddr(), service, an, hub)

	sup := supervisor.New(logger)

	// The receiver must be bound before any producer sends; a bind failure
	// aborts the process rather than retrying.
	sup.Register("ingest", func(ctx context.Context) error {
		if err := service.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		service.Stop()
		return ctx.Err()
	})

	sup.Register("http-api", server.Run)

	if selfMonitor {
		sup.Register("self-monitor", func(ctx context.Context) error {
			sender, err := senderFor(cfg, cfg.Bridge.ConnectAddr)
			if err != nil {
				return fmt.Errorf("self-monitor: %w", err)
			}
			defer sender.Close()
			return bench.NewMonitor(logger, sender, cfg.Benchmark.MonitorInterval).Run(ctx)
		})
	}

	return sup.Run(ctx)
}

// receiverFor picks the bridge receive endpoint for the configured
// transport.
func receiverFor(cfg config.Config) ingest.BindFunc {
	return func() (bridge.Receiver, error) {
		switch cfg.Transport {
		case "nats":
			return bridge.NewNATSReceiver(cfg.NATS.URL, cfg.NATS.Subject, cfg.Bridge.RecvTimeout)
		default:
			return bridge.NewPullReceiver(cfg.Bridge.BindAddr, bridge.PullOptions{
				RecvTimeout: cfg.Bridge.RecvTimeout,
			})
		}
	}
}

// senderFor picks the bridge send endpoint for the configured transport.
func senderFor(cfg config.Config, addr string) (bridge.Sender, error) {
	switch cfg.Transport {
	case "nats":
		return bridge.NewNATSSender(cfg.NATS.URL, cfg.NATS.Subject)
	default:
		return bridge.NewPushSender(addr, bridge.PushOptions{SendHWM: cfg.Bridge.SendHWM})
	}
}
