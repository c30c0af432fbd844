package bench

import (
	"context"
	"runtime"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/tradewire/pkg/bridge"
	"github.com/luxfi/tradewire/pkg/wire"
)

// Monitor is the self-observation loop: every interval it sends one probe
// trade through the bridge, times it, and publishes the live send latency
// together with runtime stats as benchmark events.
type Monitor struct {
	logger   log.Logger
	sender   bridge.Sender
	interval time.Duration
}

// NewMonitor builds a self-monitor around a sender. interval <= 0 defaults
// to ten seconds.
func NewMonitor(logger log.Logger, sender bridge.Sender, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		logger:   logger.New("module", "self-monitor"),
		sender:   sender,
		interval: interval,
	}
}

// Run loops until the context is cancelled. It is shaped as a supervisor
// task: cancellation is the only clean exit.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("self-monitor running", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	// The probe is itself a benchmark event so it never pollutes the trade
	// counters.
	labels := map[string]string{"test": "self_monitor"}
	probe, err := wire.Encode(wire.NewBenchmarkMsg("selfmon_heartbeat", float64(time.Now().UnixNano())/1e9, labels))
	if err != nil {
		return
	}

	t0 := time.Now()
	sendErr := m.sender.Send(probe)
	elapsedUS := float64(time.Since(t0).Nanoseconds()) / 1e3

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	events := []wire.BenchmarkMsg{
		wire.NewBenchmarkMsg("selfmon_probe_latency_microseconds", elapsedUS, labels),
		wire.NewBenchmarkMsg("selfmon_goroutines", float64(runtime.NumGoroutine()), labels),
		wire.NewBenchmarkMsg("selfmon_heap_bytes", float64(memStats.HeapAlloc), labels),
	}
	if sendErr != nil {
		events = append(events, wire.NewBenchmarkMsg("selfmon_probe_failures", 1, labels))
	}

	for _, ev := range events {
		frame, err := wire.Encode(ev)
		if err != nil {
			continue
		}
		if err := m.sender.Send(frame); err != nil {
			m.logger.Debug("self-monitor event dropped", "metric", ev.Metric, "error", err)
		}
	}
}
