// Package bench drives the send side of the bridge under controlled load
// and measures the synchronous cost of each non-blocking send. Results are
// pushed back through the same bridge as benchmark events, so the harness's
// own behavior is visible on the pipeline it measures.
package bench

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/tradewire/pkg/bridge"
	"github.com/luxfi/tradewire/pkg/wire"
)

// maxSamples bounds the latency buffer; older samples are evicted first.
const maxSamples = 10000

// Result is the outcome of one benchmark run. Immutable once computed.
type Result struct {
	TestName        string       `json:"test_name"`
	TotalCount      int          `json:"total_count"`
	OKCount         int          `json:"ok_count"`
	QueueFullCount  int          `json:"queue_full_count"`
	ErrorCount      int          `json:"error_count"`
	DurationSeconds float64      `json:"duration_seconds"`
	Throughput      float64      `json:"throughput"`
	Latency         LatencyStats `json:"latency_stats"`
}

// Runner publishes trades to the bridge and times each send call. A
// separate results sender carries benchmark events to the aggregator, so a
// saturated trade path cannot drop its own measurements.
type Runner struct {
	logger  log.Logger
	trades  bridge.Sender
	results bridge.Sender
	qty     float64

	samples []time.Duration
}

// NewRunner wires a harness to its trade and result endpoints. results may
// be nil; runs then only return their Result without publishing it.
func NewRunner(logger log.Logger, trades, results bridge.Sender) *Runner {
	return &Runner{
		logger:  logger.New("module", "bench"),
		trades:  trades,
		results: results,
		qty:     1.0,
		samples: make([]time.Duration, 0, maxSamples),
	}
}

// sendTimed performs one timed non-blocking send and classifies the
// outcome. Only the synchronous send call is on the clock.
func (r *Runner) sendTimed(frame []byte) (elapsed time.Duration, queueFull, failed bool) {
	t0 := time.Now()
	err := r.trades.Send(frame)
	elapsed = time.Since(t0)

	r.record(elapsed)

	switch {
	case err == nil:
	case errors.Is(err, bridge.ErrQueueFull):
		queueFull = true
	default:
		failed = true
	}
	return elapsed, queueFull, failed
}

func (r *Runner) record(d time.Duration) {
	if len(r.samples) >= maxSamples {
		r.samples = r.samples[1:]
	}
	r.samples = append(r.samples, d)
}

// RunBurst sends n trades back-to-back with no pacing.
func (r *Runner) RunBurst(ctx context.Context, n int) (Result, error) {
	r.samples = r.samples[:0]
	var okCount, queueFullCount, errorCount int

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		frame, err := wire.Encode(r.tradeAt(i))
		if err != nil {
			return Result{}, err
		}
		_, queueFull, failed := r.sendTimed(frame)
		switch {
		case queueFull:
			queueFullCount++
		case failed:
			errorCount++
		default:
			okCount++
		}
	}
	duration := time.Since(start)

	result := r.finish("burst", n, okCount, queueFullCount, errorCount, duration)
	return result, nil
}

// RunSustained targets rate sends per second for the given duration,
// sleeping max(0, 1/rate - elapsed) after each send. The sleep paces the
// run; the elapsed send time still lands in the latency sample.
func (r *Runner) RunSustained(ctx context.Context, rate int, duration time.Duration) (Result, error) {
	if rate <= 0 {
		return Result{}, errors.New("bench: sustained rate must be positive")
	}
	r.samples = r.samples[:0]
	interval := time.Second / time.Duration(rate)
	var total, okCount, queueFullCount, errorCount int

	start := time.Now()
	deadline := start.Add(duration)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		frame, err := wire.Encode(r.tradeAt(total))
		if err != nil {
			return Result{}, err
		}
		elapsed, queueFull, failed := r.sendTimed(frame)
		total++
		switch {
		case queueFull:
			queueFullCount++
		case failed:
			errorCount++
		default:
			okCount++
		}

		if pause := interval - elapsed; pause > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	actual := time.Since(start)

	result := r.finish("sustained", total, okCount, queueFullCount, errorCount, actual)
	return result, nil
}

// tradeAt alternates sides so both label sets see traffic.
func (r *Runner) tradeAt(i int) wire.TradeMsg {
	side := wire.Buy
	if i%2 == 1 {
		side = wire.Sell
	}
	return wire.NewTradeMsg(side, r.qty, float64(time.Now().UnixNano())/1e9)
}

// finish assembles the Result and publishes it through the bridge.
func (r *Runner) finish(name string, total, ok, queueFull, failed int, duration time.Duration) Result {
	result := Result{
		TestName:        name,
		TotalCount:      total,
		OKCount:         ok,
		QueueFullCount:  queueFull,
		ErrorCount:      failed,
		DurationSeconds: duration.Seconds(),
		Throughput:      float64(total) / duration.Seconds(),
		Latency:         computeStats(r.samples),
	}

	r.logger.Info("benchmark finished",
		"test", name,
		"total", total,
		"throughput", result.Throughput,
		"queue_full", queueFull,
		"errors", failed,
		"p95_us", result.Latency.P95,
	)

	r.Publish(result)
	return result
}

// Publish encodes a Result as benchmark events and pushes them to the
// aggregator. Drops on the result path are logged, never fatal.
func (r *Runner) Publish(result Result) {
	if r.results == nil {
		return
	}

	labels := map[string]string{"test": result.TestName}
	samples := []wire.BenchmarkMsg{
		wire.NewBenchmarkMsg("benchmark_tests_total", 1, labels),
		wire.NewBenchmarkMsg("benchmark_trades_published_total", float64(result.OKCount), labels),
		wire.NewBenchmarkMsg("benchmark_throughput_trades_per_second", result.Throughput, labels),
		wire.NewBenchmarkMsg("benchmark_queue_full_events_total", float64(result.QueueFullCount), labels),
		wire.NewBenchmarkMsg("benchmark_errors_total", float64(result.ErrorCount), labels),
		wire.NewBenchmarkMsg("benchmark_latency_min_microseconds", result.Latency.Min, labels),
		wire.NewBenchmarkMsg("benchmark_latency_mean_microseconds", result.Latency.Mean, labels),
		wire.NewBenchmarkMsg("benchmark_latency_p50_microseconds", result.Latency.P50, labels),
		wire.NewBenchmarkMsg("benchmark_latency_p95_microseconds", result.Latency.P95, labels),
		wire.NewBenchmarkMsg("benchmark_latency_p99_microseconds", result.Latency.P99, labels),
		wire.NewBenchmarkMsg("benchmark_latency_max_microseconds", result.Latency.Max, labels),
	}

	for _, msg := range samples {
		frame, err := wire.Encode(msg)
		if err != nil {
			r.logger.Error("encode benchmark event", "metric", msg.Metric, "error", err)
			continue
		}
		if err := r.results.Send(frame); err != nil {
			r.logger.Warn("benchmark event dropped", "metric", msg.Metric, "error", err)
		}
	}
}

// PublishStatus emits a lifecycle marker (started, running, completed,
// failed) for a named test.
func (r *Runner) PublishStatus(test, status string) {
	if r.results == nil {
		return
	}
	msg := wire.NewBenchmarkMsg("benchmark_status", 1, map[string]string{
		"test":   test,
		"status": status,
	})
	frame, err := wire.Encode(msg)
	if err != nil {
		return
	}
	if err := r.results.Send(frame); err != nil {
		r.logger.Warn("status event dropped", "test", test, "status", status, "error", err)
	}
}
