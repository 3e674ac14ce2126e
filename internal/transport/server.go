// Package transport is agentkit's external interface (§6): a stdlib
// net/http.ServeMux exposing Sessions and Tasks as REST-ish JSON
// endpoints, plus a gorilla/websocket upgrade handler streaming a
// session's pipeline events. Report rendering, a full OpenAPI surface,
// and auth (no endpoint checks credentials) are deliberately out of scope
// (spec.md §1) — this package is the thin wire adapter onto
// internal/app.App, grounded in the teacher's internal/gateway
// http_server.go (stdlib ServeMux + promhttp.Handler + a single /ws
// upgrade route).
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/agentkit/internal/app"
)

// Server owns the API listener and a second, smaller listener for
// /healthz and /metrics, kept apart the way the teacher's config
// reserves a distinct Server.MetricsPort from Server.HTTPPort so a
// scrape target doesn't share a port with user-facing traffic.
// Start/Stop mirror the teacher's gateway.ManagedServer lifecycle:
// goroutine-run ListenAndServe, context-based graceful Shutdown.
type Server struct {
	app     *app.App
	api     *http.Server
	metrics *http.Server
	logger  *slog.Logger
}

// New builds a Server routing API requests through a, with the API
// listening on host:httpPort and /healthz plus /metrics listening on
// host:metricsPort.
func New(a *app.App, host string, httpPort, metricsPort int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	apiMux := http.NewServeMux()
	registerSessionRoutes(apiMux, a, logger)
	registerTaskRoutes(apiMux, a, logger)

	opsMux := http.NewServeMux()
	opsMux.HandleFunc("GET /healthz", handleHealthz)
	opsMux.Handle("GET /metrics", promhttp.Handler())

	return &Server{
		app:     a,
		logger:  logger,
		api:     &http.Server{Addr: fmt.Sprintf("%s:%d", host, httpPort), Handler: apiMux},
		metrics: &http.Server{Addr: fmt.Sprintf("%s:%d", host, metricsPort), Handler: opsMux},
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func serveBackground(srv *http.Server, errCh chan<- error) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- err
		return
	}
	errCh <- nil
}

// Start runs both HTTP listeners and the Task Scheduler in the
// background; it returns once either listener fails for a reason other
// than a graceful Stop, or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.app.Scheduler.Start(ctx)

	errCh := make(chan error, 2)
	go serveBackground(s.api, errCh)
	go serveBackground(s.metrics, errCh)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down both HTTP listeners, waits for the
// scheduler loop to exit, and releases the Store's connection pool.
func (s *Server) Stop(ctx context.Context) error {
	apiErr := s.api.Shutdown(ctx)
	metricsErr := s.metrics.Shutdown(ctx)
	s.app.Scheduler.Stop()
	if closeErr := s.app.Close(); closeErr != nil {
		s.logger.Warn("transport: close store", "error", closeErr)
	}
	if apiErr != nil {
		return fmt.Errorf("transport: shutdown api listener: %w", apiErr)
	}
	if metricsErr != nil {
		return fmt.Errorf("transport: shutdown metrics listener: %w", metricsErr)
	}
	return nil
}
