package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/tradewire/pkg/bridge"
	"github.com/luxfi/tradewire/pkg/metrics"
	"github.com/luxfi/tradewire/pkg/wire"
)

// stubReceiver serves scripted frames, then times out forever.
type stubReceiver struct {
	frames chan []byte
	closed chan struct{}
}

func newStubReceiver(frames ...[]byte) *stubReceiver {
	ch := make(chan []byte, len(frames)+16)
	for _, f := range frames {
		ch <- f
	}
	return &stubReceiver{frames: ch, closed: make(chan struct{})}
}

func (r *stubReceiver) Recv() ([]byte, error) {
	select {
	case <-r.closed:
		return nil, bridge.ErrClosed
	case f := <-r.frames:
		return f, nil
	case <-time.After(10 * time.Millisecond):
		return nil, bridge.ErrTimeout
	}
}

func (r *stubReceiver) Addr() string { return "stub://test" }

func (r *stubReceiver) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

func testLogger(t *testing.T) log.Logger {
	t.Helper()
	level, _ := log.ToLevel("debug")
	return log.NewTestLogger(level)
}

func mustEncode(t *testing.T, m wire.Msg) []byte {
	t.Helper()
	data, err := wire.Encode(m)
	require.NoError(t, err)
	return data
}

func newService(t *testing.T, recv bridge.Receiver) (*Service, *metrics.Store) {
	t.Helper()
	store := metrics.NewStore()
	svc := New(testLogger(t), store, "stub://test", func() (bridge.Receiver, error) {
		return recv, nil
	})
	return svc, store
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestBindFailureIsFatal(t *testing.T) {
	store := metrics.NewStore()
	boom := errors.New("address in use")
	svc := New(testLogger(t), store, "tcp://*:5555", func() (bridge.Receiver, error) {
		return nil, boom
	})

	err := svc.Start(context.Background())
	require.Error(t, err)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "tcp://*:5555", bindErr.Addr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Stopped, svc.State())
	assert.False(t, svc.Health().Running)
}

func TestTradesReachTheStore(t *testing.T) {
	recv := newStubReceiver(
		mustEncode(t, wire.NewTradeMsg(wire.Buy, 1, 10)),
		mustEncode(t, wire.NewTradeMsg(wire.Sell, 3, 20)),
	)
	svc, _ := newService(t, recv)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	waitFor(t, func() bool {
		return svc.Snapshot()[metrics.Key("trades_total", "side", "sell")] == 1
	})

	snap := svc.Snapshot()
	assert.Equal(t, 1.0, snap[metrics.Key("trades_total", "side", "buy")])
	assert.Equal(t, 1.0, snap[metrics.Key("volume_total", "side", "buy")])
	assert.Equal(t, 3.0, snap[metrics.Key("volume_total", "side", "sell")])
	assert.Equal(t, 20.0, snap[metrics.Key("last_trade_ts_seconds")])
}

func TestBenchmarkEventsDispatch(t *testing.T) {
	recv := newStubReceiver(
		mustEncode(t, wire.NewBenchmarkMsg("benchmark_tests_total", 1, nil)),
		mustEncode(t, wire.NewBenchmarkMsg("benchmark_throughput_trades_per_second", 512, nil)),
	)
	svc, _ := newService(t, recv)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	waitFor(t, func() bool {
		return svc.Snapshot()["benchmark_throughput_trades_per_second"] == 512
	})
	assert.Equal(t, 1.0, svc.Snapshot()["benchmark_tests_total"])
}

func TestMalformedFramesAreDroppedNotFatal(t *testing.T) {
	recv := newStubReceiver(
		[]byte(`{"type":"trade","side":"hold","qty":1,"ts":1}`),
		[]byte(`{"type":"trade","side":"buy","qty":-1,"ts":1}`),
		[]byte(`{"type":"trade","side":"buy","qty":1}`),
		[]byte(`not json at all`),
		mustEncode(t, wire.NewTradeMsg(wire.Buy, 2, 99)),
	)
	svc, _ := newService(t, recv)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	// The valid trailing frame still lands; the garbage before it did not
	// kill the loop or touch the store.
	waitFor(t, func() bool {
		return svc.Snapshot()[metrics.Key("trades_total", "side", "buy")] == 1
	})
	assert.Equal(t, uint64(4), svc.Dropped())

	snap := svc.Snapshot()
	assert.Equal(t, 2.0, snap[metrics.Key("volume_total", "side", "buy")])
	assert.Zero(t, snap[metrics.Key("trades_total", "side", "sell")])
}

func TestStopIsIdempotent(t *testing.T) {
	recv := newStubReceiver()
	svc, _ := newService(t, recv)

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, Running, svc.State())
	assert.True(t, svc.Health().Running)

	svc.Stop()
	assert.Equal(t, Stopped, svc.State())

	// Again, and on a dead service: no panic, no hang.
	svc.Stop()
	assert.Equal(t, Stopped, svc.State())
}

func TestStopOnNeverStartedService(t *testing.T) {
	svc, _ := newService(t, newStubReceiver())
	svc.Stop()
	assert.Equal(t, Stopped, svc.State())
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	recv := newStubReceiver()
	svc, _ := newService(t, recv)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, Running, svc.State())
}

func TestLoopExitsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	recv := newStubReceiver()
	svc, _ := newService(t, recv)

	require.NoError(t, svc.Start(ctx))
	cancel()

	waitFor(t, func() bool { return svc.State() == Stopped })
	// The receiver was released on the way out.
	select {
	case <-recv.closed:
	default:
		t.Fatal("receiver not closed")
	}
}

func TestOnTradeHook(t *testing.T) {
	recv := newStubReceiver(mustEncode(t, wire.NewTradeMsg(wire.Sell, 5, 7)))
	svc, _ := newService(t, recv)

	got := make(chan wire.TradeMsg, 1)
	svc.OnTrade = func(m wire.TradeMsg) { got <- m }

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	select {
	case m := <-got:
		assert.Equal(t, wire.Sell, m.Side)
		assert.Equal(t, 5.0, m.Qty)
	case <-time.After(2 * time.Second):
		t.Fatal("hook not invoked")
	}
}

func TestHealthReportsBindAddress(t *testing.T) {
	svc, _ := newService(t, newStubReceiver())
	h := svc.Health()
	assert.False(t, h.Running)
	assert.Equal(t, "stub://test", h.BindAddr)
}
