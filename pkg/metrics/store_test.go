package metrics

import (
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTrade(t *testing.T) {
	store := NewStore()

	store.RecordTrade("buy", 1, 100)
	store.RecordTrade("sell", 3, 200)

	snap := store.Snapshot()
	assert.Equal(t, 1.0, snap[Key("trades_total", "side", "buy")])
	assert.Equal(t, 1.0, snap[Key("trades_total", "side", "sell")])
	assert.Equal(t, 1.0, snap[Key("volume_total", "side", "buy")])
	assert.Equal(t, 3.0, snap[Key("volume_total", "side", "sell")])
	assert.Equal(t, 200.0, snap[Key("last_trade_ts_seconds")])
}

func TestCountersOnlyIncrease(t *testing.T) {
	store := NewStore()

	for i := 0; i < 10; i++ {
		store.RecordTrade("buy", float64(i), float64(i))
	}

	snap := store.Snapshot()
	assert.Equal(t, 10.0, snap[Key("trades_total", "side", "buy")])
	assert.Equal(t, 45.0, snap[Key("volume_total", "side", "buy")])
	// Zero-quantity trades bump the count but not the volume.
	store.RecordTrade("buy", 0, 11)
	snap = store.Snapshot()
	assert.Equal(t, 11.0, snap[Key("trades_total", "side", "buy")])
	assert.Equal(t, 45.0, snap[Key("volume_total", "side", "buy")])
}

func TestLastTradeTSFollowsReceiveOrder(t *testing.T) {
	store := NewStore()

	// Timestamps arrive out of send order; the gauge tracks arrival.
	store.RecordTrade("buy", 1, 300)
	store.RecordTrade("sell", 1, 100)

	snap := store.Snapshot()
	assert.Equal(t, 100.0, snap[Key("last_trade_ts_seconds")])
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore()
	store.RecordTrade("buy", 1, 1)

	snap := store.Snapshot()
	snap[Key("trades_total", "side", "buy")] = 999

	assert.Equal(t, 1.0, store.Snapshot()[Key("trades_total", "side", "buy")])
}

func TestRecordBenchmark(t *testing.T) {
	store := NewStore()

	store.RecordBenchmark(BenchmarkSample{Metric: "benchmark_tests_total", Value: 1})
	store.RecordBenchmark(BenchmarkSample{Metric: "benchmark_tests_total", Value: 1})
	store.RecordBenchmark(BenchmarkSample{Metric: "benchmark_throughput_trades_per_second", Value: 900})
	store.RecordBenchmark(BenchmarkSample{Metric: "benchmark_throughput_trades_per_second", Value: 450})
	store.RecordBenchmark(BenchmarkSample{Metric: "benchmark_latency_p95_microseconds", Value: 17.5})
	store.RecordBenchmark(BenchmarkSample{Metric: "benchmark_queue_full_events_total", Value: 12})

	snap := store.Snapshot()
	assert.Equal(t, 2.0, snap["benchmark_tests_total"])
	// Gauges are last-writer-wins.
	assert.Equal(t, 450.0, snap["benchmark_throughput_trades_per_second"])
	assert.Equal(t, 17.5, snap["benchmark_latency_p95_microseconds"])
	assert.Equal(t, 12.0, snap["benchmark_queue_full_events_total"])
}

func TestRecordBenchmarkIgnoresNegativeCounterDeltas(t *testing.T) {
	store := NewStore()

	store.RecordBenchmark(BenchmarkSample{Metric: "benchmark_errors_total", Value: 5})
	store.RecordBenchmark(BenchmarkSample{Metric: "benchmark_errors_total", Value: -3})

	assert.Equal(t, 5.0, store.Snapshot()["benchmark_errors_total"])
}

func TestUnknownBenchmarkSeriesKeptInSnapshot(t *testing.T) {
	store := NewStore()
	store.RecordBenchmark(BenchmarkSample{Metric: "selfmon_goroutines", Value: 12})
	assert.Equal(t, 12.0, store.Snapshot()["selfmon_goroutines"])
}

func TestHandlerExposition(t *testing.T) {
	store := NewStore()
	store.RecordTrade("buy", 2, 123)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `trades_total{side="buy"} 1`)
	assert.Contains(t, string(body), `volume_total{side="buy"} 2`)
	assert.Contains(t, string(body), "last_trade_ts_seconds 123")
}

func TestConcurrentReadersSeeWholeTrades(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			store.RecordTrade("buy", 2, float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			snap := store.Snapshot()
			count := snap[Key("trades_total", "side", "buy")]
			volume := snap[Key("volume_total", "side", "buy")]
			// Volume moves in lockstep with count: 2 per trade.
			assert.Equal(t, count*2, volume)
		}
	}()
	wg.Wait()
}

func TestKey(t *testing.T) {
	assert.Equal(t, "last_trade_ts_seconds", Key("last_trade_ts_seconds"))
	assert.Equal(t, `trades_total{side="buy"}`, Key("trades_total", "side", "buy"))
}
