// Package ingest owns the receive side of the bridge: it binds the pull
// socket, decodes frames, and applies them to the metric store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/luxfi/log"

	"github.com/luxfi/tradewire/pkg/bridge"
	"github.com/luxfi/tradewire/pkg/metrics"
	"github.com/luxfi/tradewire/pkg/wire"
)

// State is the service lifecycle position.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// BindError reports that the receiver could not acquire its address at
// startup. It is fatal: the caller aborts instead of retrying.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("ingest: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Health is the readiness view served on /health.
type Health struct {
	Running  bool   `json:"running"`
	BindAddr string `json:"bind_address"`
}

// BindFunc opens the receive side of the bridge. It runs during Starting;
// its error aborts startup.
type BindFunc func() (bridge.Receiver, error)

// Service is the single consumer of the bridge and the single writer of the
// metric store.
type Service struct {
	logger log.Logger
	store  *metrics.Store
	bind   BindFunc
	addr   string

	// OnTrade, when set before Start, observes every accepted trade.
	// It must not block; the live feed hub hangs off it.
	OnTrade func(wire.TradeMsg)

	state   atomic.Int32
	dropped atomic.Uint64

	mu       sync.Mutex
	receiver bridge.Receiver
	cancel   context.CancelFunc
	done     chan struct{}
}

// New wires a service to its store and bridge endpoint. addr is reported in
// Health; the actual bind happens in Start.
func New(logger log.Logger, store *metrics.Store, addr string, bind BindFunc) *Service {
	return &Service{
		logger: logger.New("module", "ingest"),
		store:  store,
		bind:   bind,
		addr:   addr,
	}
}

// Start binds the receiver and launches the receive loop. A bind failure
// returns *BindError and leaves the service stopped. Starting a service
// that is not stopped is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return nil
	}

	receiver, err := s.bind()
	if err != nil {
		s.state.Store(int32(Stopped))
		return &BindError{Addr: s.addr, Err: err}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.receiver = receiver
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.state.Store(int32(Running))
	s.logger.Info("ingestion started", "addr", receiver.Addr())

	go s.run(loopCtx, receiver, done)
	return nil
}

// run is the receive loop. The receiver is released on every exit path.
func (s *Service) run(ctx context.Context, receiver bridge.Receiver, done chan struct{}) {
	defer func() {
		receiver.Close()
		s.state.Store(int32(Stopped))
		close(done)
		s.logger.Info("ingestion stopped", "dropped", s.dropped.Load())
	}()

	for {
		// Shutdown is observed at each iteration boundary; Recv bounds
		// the wait to one receive interval.
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := receiver.Recv()
		if err != nil {
			if errors.Is(err, bridge.ErrTimeout) {
				continue
			}
			if errors.Is(err, bridge.ErrClosed) {
				return
			}
			s.logger.Error("receive failed", "error", err)
			continue
		}
		s.handleFrame(frame)
	}
}

// handleFrame decodes and dispatches one frame. Malformed frames are logged
// and dropped; the loop never dies on bad input.
func (s *Service) handleFrame(frame []byte) {
	msg, err := wire.Decode(frame)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("dropping undecodable frame", "error", err, "bytes", len(frame))
		return
	}

	switch m := msg.(type) {
	case wire.TradeMsg:
		s.store.RecordTrade(string(m.Side), m.Qty, m.TS)
		if s.OnTrade != nil {
			s.OnTrade(m)
		}
	case wire.BenchmarkMsg:
		s.store.RecordBenchmark(metrics.BenchmarkSample{
			Metric: m.Metric,
			Value:  m.Value,
			Labels: m.Labels,
		})
	}
}

// Stop asks the loop to exit and waits for it. Safe to call repeatedly and
// on a never-started service.
func (s *Service) Stop() {
	if !s.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		return
	}

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// State returns the current lifecycle position.
func (s *Service) State() State { return State(s.state.Load()) }

// Health reports readiness and the configured bind address.
func (s *Service) Health() Health {
	return Health{
		Running:  s.State() == Running,
		BindAddr: s.addr,
	}
}

// Snapshot returns a coherent copy of the aggregated metrics.
func (s *Service) Snapshot() metrics.Snapshot { return s.store.Snapshot() }

// MetricsHandler serves the store's Prometheus exposition.
func (s *Service) MetricsHandler() http.Handler { return s.store.Handler() }

// Dropped counts frames discarded for decode failures since startup.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }
