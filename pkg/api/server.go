// Package api exposes the read-only HTTP surface: Prometheus exposition,
// readiness, window analysis, and a websocket live trade feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/tradewire/pkg/analyzer"
	"github.com/luxfi/tradewire/pkg/ingest"
)

// Server serves the aggregator's read-only endpoints. It never blocks a
// request on the transport; every handler reads already-aggregated state.
type Server struct {
	logger   log.Logger
	service  *ingest.Service
	analyzer *analyzer.Analyzer
	hub      *Hub
	httpSrv  *http.Server
}

// New wires the server. analyzer may be nil; /analysis then returns 404.
func New(logger log.Logger, addr string, service *ingest.Service, an *analyzer.Analyzer, hub *Hub) *Server {
	s := &Server{
		logger:   logger.New("module", "api"),
		service:  service,
		analyzer: an,
		hub:      hub,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", http.HandlerFunc(s.handleMetrics))
	mux.HandleFunc("/health", s.handleHealth)
	if an != nil {
		mux.HandleFunc("/analysis", s.handleAnalysis)
	}
	if hub != nil {
		mux.HandleFunc("/ws", hub.handleWS)
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
// Shaped as a supervisor task.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("http api listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.hub != nil {
			s.hub.CloseAll()
		}
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.service.MetricsHandler().ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Health())
}

func (s *Server) handleAnalysis(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Stats())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
