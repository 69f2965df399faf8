package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"tradesession/internal/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the process's Prometheus registry over HTTP so an
// external scraper can pull the instruments InitMetrics registered.
type Server struct {
	port   int
	logger domain.Logger
	srv    *http.Server
}

// NewServer builds a metrics server bound to port. A port of 0 means the
// caller should not start it.
func NewServer(port int, logger domain.Logger) *Server {
	return &Server{port: port, logger: logger}
}

// Start begins serving /metrics in the background. Safe to call with a
// zero port; it then does nothing.
func (s *Server) Start() {
	if s.port <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		s.logger.Info("starting metrics server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err.Error())
		}
	}()
}

// Stop gracefully shuts the metrics server down, if it was started.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("stopping metrics server")
	return s.srv.Shutdown(ctx)
}
