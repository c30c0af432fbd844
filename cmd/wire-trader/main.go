// wire-trader is a load producer: N traders publish randomized trades to
// the bridge at a target per-trader rate for a fixed duration.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/tradewire/pkg/bridge"
	"github.com/luxfi/tradewire/pkg/config"
	"github.com/luxfi/tradewire/pkg/wire"
)

type traderStats struct {
	sent      atomic.Uint64
	queueFull atomic.Uint64
	errors    atomic.Uint64
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (optional)")
		connect    = flag.String("connect", "", "Bridge connect address override")
		traders    = flag.Int("traders", 1, "Number of concurrent producers")
		rate       = flag.Int("rate", 100, "Trades per second per producer")
		duration   = flag.Duration("duration", 30*time.Second, "Run length")
		maxQty     = flag.Float64("max-qty", 10, "Upper bound for random quantity")
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
	if *rate <= 0 || *traders <= 0 {
		fmt.Fprintln(os.Stderr, "traders and rate must be positive")
		os.Exit(2)
	}

	fmt.Printf("wire-trader: %d producers at %d trades/sec each for %v -> %s\n",
		*traders, *rate, *duration, cfg.Bridge.ConnectAddr)

	stats := &traderStats{}
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *traders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runTrader(cfg, id, *rate, *duration, *maxQty, stats)
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start).Seconds()
	sent := stats.sent.Load()
	fmt.Printf("\n=== Final ===\n")
	fmt.Printf("Sent:       %d\n", sent)
	fmt.Printf("Queue full: %d\n", stats.queueFull.Load())
	fmt.Printf("Errors:     %d\n", stats.errors.Load())
	fmt.Printf("Rate:       %.1f trades/sec\n", float64(sent)/elapsed)
}

func runTrader(cfg config.Config, id, rate int, duration time.Duration, maxQty float64, stats *traderStats) {
	var sender bridge.Sender
	var err error
	if cfg.Transport == "nats" {
		sender, err = bridge.NewNATSSender(cfg.NATS.URL, cfg.NATS.Subject)
	} else {
		sender, err = bridge.NewPushSender(cfg.Bridge.ConnectAddr, bridge.PushOptions{SendHWM: cfg.Bridge.SendHWM})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "trader %d: %v\n", id, err)
		stats.errors.Add(1)
		return
	}
	defer sender.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	deadline := time.Now().Add(duration)

	for now := range ticker.C {
		if now.After(deadline) {
			return
		}

		side := wire.Buy
		if rng.Intn(2) == 1 {
			side = wire.Sell
		}
		msg := wire.NewTradeMsg(side, rng.Float64()*maxQty, float64(now.UnixNano())/1e9)
		frame, err := wire.Encode(msg)
		if err != nil {
			stats.errors.Add(1)
			continue
		}

		switch sendErr := sender.Send(frame); sendErr {
		case nil:
			stats.sent.Add(1)
		case bridge.ErrQueueFull:
			stats.queueFull.Add(1)
		default:
			stats.errors.Add(1)
		}
	}
}
