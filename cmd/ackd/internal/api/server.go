package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/logger"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/stats"
)

type HealthServer struct {
	server *http.Server
	stats  *stats.Collector
	ready  atomic.Bool
}

// NewHealthServer serves /health, /ready and /stats on addr. collector may
// be nil, in which case /stats reports zero counters.
func NewHealthServer(addr string, collector *stats.Collector) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		stats: collector,
	}

	// Default to not ready until explicitly set
	hs.ready.Store(false)

	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	mux.HandleFunc("/stats", hs.handleStats)

	return hs
}

func (s *HealthServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HealthServer) Start() {
	go func() {
		logger.Info("Health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HealthServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	}
}

func (s *HealthServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats.Snapshot()); err != nil {
		logger.Warn("Failed to encode stats", "error", err)
	}
}
