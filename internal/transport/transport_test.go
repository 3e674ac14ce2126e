package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/app"
	"github.com/haasonsaas/agentkit/internal/config"
	"github.com/haasonsaas/agentkit/pkg/models"
)

// newTestApp builds an App against the in-memory Store with one seeded
// user, skipping config.Load's file/env plumbing since tests only need
// the defaulted shape it would have produced.
func newTestApp(t *testing.T) (*app.App, uuid.UUID) {
	t.Helper()

	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "memory"},
		Workdir:  config.WorkdirConfig{Root: t.TempDir(), ArchiveLaneSize: 2},
		Session: config.SessionConfig{
			DefaultMaxRetries:   3,
			DefaultRetryDelay:   10 * time.Millisecond,
			MetricsSnapshotTick: time.Second,
		},
		Agent: config.AgentConfig{
			BinaryPath:        "true",
			MaxConnectBackoff: time.Second,
			InterruptGrace:    time.Second,
		},
		Usage: config.UsageConfig{RateTableVersion: "test"},
		Cron:  config.CronConfig{TickInterval: time.Hour},
	}

	a, err := app.Build(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("app.Build: %v", err)
	}

	userID := uuid.New()
	user := &models.User{ID: userID, Email: "tester@example.com", Role: models.RoleUser}
	if err := a.Store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return a, userID
}

// newTestServer wires just the Sessions/Tasks API routes (no metrics
// listener, no Scheduler) over an httptest.Server for handler-level
// tests.
func newTestServer(t *testing.T, a *app.App) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	logger := slog.New(slog.DiscardHandler)
	registerSessionRoutes(mux, a, logger)
	registerTaskRoutes(mux, a, logger)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
