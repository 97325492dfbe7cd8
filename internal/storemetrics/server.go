package storemetrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goran-ethernal/eventstore/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP server that exposes the event store's Prometheus
// metrics, for host applications that want a standalone listener rather
// than registering the handler on their own mux.
type Server struct {
	cfg    *config.MetricsConfig
	server *http.Server
	stopCh chan struct{}
}

// NewServer builds a metrics Server. Start is a no-op if cfg.Enabled is
// false.
func NewServer(cfg *config.MetricsConfig) *Server {
	return &Server{cfg: cfg, stopCh: make(chan struct{})}
}

// Start begins serving /metrics (and /health) and periodically refreshing
// the process-wide gauges.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg == nil || !s.cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	})

	s.server = &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.refreshSystemMetrics(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("eventstore metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	close(s.stopCh)
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("eventstore: shutting down metrics server: %w", err)
	}
	return nil
}

func (s *Server) refreshSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			UpdateSystemMetrics()
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}
