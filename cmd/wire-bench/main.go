// wire-bench drives the send side of the bridge under burst or sustained
// load and reports send-latency percentiles. Results are published back
// through the bridge so they land on the aggregator's /metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/tradewire/pkg/bench"
	"github.com/luxfi/tradewire/pkg/bridge"
	"github.com/luxfi/tradewire/pkg/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (optional)")
		mode       = flag.String("mode", "burst", "Benchmark mode: burst, sustained, comprehensive, profile")
		count      = flag.Int("count", 1000, "Burst: number of trades")
		rate       = flag.Int("rate", 100, "Sustained: target trades per second")
		duration   = flag.Duration("duration", 10*time.Second, "Sustained: run length")
		maxRate    = flag.Int("max-rate", 1000, "Profile: maximum rate")
		step       = flag.Int("step", 100, "Profile: rate increment")
		connect    = flag.String("connect", "", "Bridge connect address override")
		noPublish  = flag.Bool("no-publish", false, "Do not publish results through the bridge")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *connect != "" {
		cfg.Bridge.ConnectAddr = *connect
	}

	logger := log.Root().New("app", "wire-bench")

	trades, err := newSender(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer trades.Close()

	var results bridge.Sender
	if !*noPublish {
		results, err = newSender(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer results.Close()
	}

	runner := bench.NewRunner(logger, trades, results)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "burst":
		res, err := runner.RunBurst(ctx, *count)
		exitOn(err)
		printResult(res)
	case "sustained":
		res, err := runner.RunSustained(ctx, *rate, *duration)
		exitOn(err)
		printResult(res)
	case "comprehensive":
		all, err := runner.RunComprehensive(ctx)
		for _, res := range all {
			printResult(res)
		}
		exitOn(err)
	case "profile":
		all, err := runner.RunProfile(ctx, *maxRate, *step)
		for _, res := range all {
			printResult(res)
		}
		exitOn(err)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func newSender(cfg config.Config) (bridge.Sender, error) {
	if cfg.Transport == "nats" {
		return bridge.NewNATSSender(cfg.NATS.URL, cfg.NATS.Subject)
	}
	return bridge.NewPushSender(cfg.Bridge.ConnectAddr, bridge.PushOptions{SendHWM: cfg.Bridge.SendHWM})
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printResult(res bench.Result) {
	fmt.Printf("\n=== %s ===\n", res.TestName)
	fmt.Printf("Total sends:      %d\n", res.TotalCount)
	fmt.Printf("OK:               %d\n", res.OKCount)
	fmt.Printf("Queue full:       %d\n", res.QueueFullCount)
	fmt.Printf("Errors:           %d\n", res.ErrorCount)
	fmt.Printf("Duration:         %.3fs\n", res.DurationSeconds)
	fmt.Printf("Throughput:       %.1f trades/sec\n", res.Throughput)
	fmt.Printf("Latency (us):     min=%.1f mean=%.1f p50=%.1f p95=%.1f p99=%.1f max=%.1f\n",
		res.Latency.Min, res.Latency.Mean, res.Latency.P50,
		res.Latency.P95, res.Latency.P99, res.Latency.Max)
}
