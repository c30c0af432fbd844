// Package metrics is the in-memory aggregation state behind the /metrics
// endpoint. One writer (the ingestion service), many readers.
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot maps metric identity (name plus label set) to its current value.
// It is a copy; mutating it does not touch the store.
type Snapshot map[string]float64

// Key builds the snapshot identity for a metric, e.g.
// trades_total{side="buy"}.
func Key(name string, labels ...string) string {
	if len(labels) == 0 {
		return name
	}
	out := name + "{"
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%s=%q", labels[i], labels[i+1])
	}
	return out + "}"
}

// Store holds the trade counters and benchmark gauges. Every trade update
// (count, volume, last-seen timestamp) is applied as one unit under the
// writer lock; Snapshot copies under the read lock, so a reader never
// observes a partial trade.
type Store struct {
	registry *prometheus.Registry

	tradesTotal     *prometheus.CounterVec
	volumeTotal     *prometheus.CounterVec
	lastTradeTS     prometheus.Gauge
	benchTests      prometheus.Counter
	benchPublished  prometheus.Counter
	benchQueueFull  prometheus.Counter
	benchErrors     prometheus.Counter
	benchThroughput prometheus.Gauge
	benchLatency    map[string]prometheus.Gauge

	mu    sync.RWMutex
	state Snapshot
}

// latencyStats is the fixed set of latency series exposed per benchmark run.
var latencyStats = []string{"min", "mean", "p50", "p95", "p99", "max"}

// NewStore registers the metric set on a private registry.
func NewStore() *Store {
	registry := prometheus.NewRegistry()

	s := &Store{
		registry: registry,
		tradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trades_total",
			Help: "Total number of trades received",
		}, []string{"side"}),
		volumeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volume_total",
			Help: "Total traded volume",
		}, []string{"side"}),
		lastTradeTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "last_trade_ts_seconds",
			Help: "Timestamp of the most recently received trade",
		}),
		benchTests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "benchmark_tests_total",
			Help: "Benchmark runs reported",
		}),
		benchPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "benchmark_trades_published_total",
			Help: "Trades published across benchmark runs",
		}),
		benchQueueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "benchmark_queue_full_events_total",
			Help: "Sends dropped on a saturated bridge buffer",
		}),
		benchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "benchmark_errors_total",
			Help: "Sends failed with a transport fault",
		}),
		benchThroughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "benchmark_throughput_trades_per_second",
			Help: "Throughput of the last benchmark run",
		}),
		benchLatency: make(map[string]prometheus.Gauge, len(latencyStats)),
		state:        make(Snapshot),
	}

	registry.MustRegister(
		s.tradesTotal, s.volumeTotal, s.lastTradeTS,
		s.benchTests, s.benchPublished, s.benchQueueFull, s.benchErrors,
		s.benchThroughput,
	)

	for _, stat := range latencyStats {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("benchmark_latency_%s_microseconds", stat),
			Help: fmt.Sprintf("Send latency %s of the last benchmark run", stat),
		})
		registry.MustRegister(g)
		s.benchLatency[stat] = g
	}

	return s
}

// RecordTrade applies one trade: count +1, volume +qty, last-seen = ts.
// Counters only move up; there is no reset short of a process restart.
func (s *Store) RecordTrade(side string, qty, ts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tradesTotal.WithLabelValues(side).Inc()
	s.volumeTotal.WithLabelValues(side).Add(qty)
	s.lastTradeTS.Set(ts)

	s.state[Key("trades_total", "side", side)]++
	s.state[Key("volume_total", "side", side)] += qty
	s.state[Key("last_trade_ts_seconds")] = ts
}

// BenchmarkSample is one benchmark metric as it arrives off the bridge.
type BenchmarkSample struct {
	Metric string
	Value  float64
	Labels map[string]string
}

// RecordBenchmark folds a benchmark sample into the gauge set. Counter
// series accept the sample as an increment; gauges take the last value.
func (s *Store) RecordBenchmark(sample BenchmarkSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Counter series never move down; a negative increment off the wire is
	// discarded rather than fed to prometheus, which would panic.
	if sample.Value < 0 {
		switch sample.Metric {
		case "benchmark_tests_total", "benchmark_trades_published_total",
			"benchmark_queue_full_events_total", "benchmark_errors_total":
			return
		}
	}

	switch sample.Metric {
	case "benchmark_tests_total":
		s.benchTests.Add(sample.Value)
		s.state[sample.Metric] += sample.Value
	case "benchmark_trades_published_total":
		s.benchPublished.Add(sample.Value)
		s.state[sample.Metric] += sample.Value
	case "benchmark_queue_full_events_total":
		s.benchQueueFull.Add(sample.Value)
		s.state[sample.Metric] += sample.Value
	case "benchmark_errors_total":
		s.benchErrors.Add(sample.Value)
		s.state[sample.Metric] += sample.Value
	case "benchmark_throughput_trades_per_second":
		s.benchThroughput.Set(sample.Value)
		s.state[sample.Metric] = sample.Value
	default:
		for _, stat := range latencyStats {
			name := fmt.Sprintf("benchmark_latency_%s_microseconds", stat)
			if sample.Metric == name {
				s.benchLatency[stat].Set(sample.Value)
				s.state[name] = sample.Value
				return
			}
		}
		// Unknown benchmark series are kept in the snapshot only so a
		// newer harness does not silently lose data against an older
		// aggregator.
		s.state[sample.Metric] = sample.Value
	}
}

// Snapshot returns a coherent copy of the current values.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Snapshot, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// Handler serves the Prometheus text exposition for the store's registry.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
