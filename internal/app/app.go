// Package app wires C1-C10 into one running instance: it owns the
// Store, WorkDir Manager, Policy Engine, Hook Registry, Message
// Pipeline, Executor family, Session Coordinator, Cost & Metrics
// Accountant, and Task Scheduler, plus the per-session agentclient.Client
// processes that the transport layer and internal/cron drive turns
// through. Grounded in the teacher's internal/gateway.Server
// constructor, which the same way builds every subsystem once at
// startup from one *config.Config and wires them together by
// reference rather than through a DI container.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/agentclient"
	"github.com/haasonsaas/agentkit/internal/config"
	"github.com/haasonsaas/agentkit/internal/cron"
	"github.com/haasonsaas/agentkit/internal/executor"
	"github.com/haasonsaas/agentkit/internal/hooks"
	"github.com/haasonsaas/agentkit/internal/observability"
	"github.com/haasonsaas/agentkit/internal/policy"
	"github.com/haasonsaas/agentkit/internal/process"
	"github.com/haasonsaas/agentkit/internal/session"
	"github.com/haasonsaas/agentkit/internal/store"
	"github.com/haasonsaas/agentkit/internal/store/memory"
	"github.com/haasonsaas/agentkit/internal/store/postgres"
	"github.com/haasonsaas/agentkit/internal/usage"
	"github.com/haasonsaas/agentkit/internal/workdir"
	"github.com/haasonsaas/agentkit/pkg/models"
	"github.com/haasonsaas/agentkit/pkg/protocol"
)

// App is the fully wired instance. Its fields are exported so the
// transport package and cmd/agentkitd can reach the pieces they need
// without a second wiring layer.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Store       store.Store
	Queue       *process.CommandQueue
	Workdir     *workdir.Manager
	Policy      *policy.Engine
	Hooks       *hooks.Dispatcher
	Broadcaster *Broadcaster
	Interactive *executor.InteractiveExecutor
	Forked      *executor.ForkedExecutor
	Background  *executor.BackgroundExecutor
	Sessions    *session.Coordinator
	Usage       *usage.Accountant
	Snapshots   *usage.SnapshotSupervisor
	Scheduler   *cron.Scheduler

	closeStore func() error

	mu       sync.Mutex
	agents   map[uuid.UUID]*agentclient.Client
}

// Build constructs every component from cfg. The returned App's Close
// releases the Store's connection pool, a no-op for the in-memory store.
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var st store.Store
	var closeStore func() error
	if cfg.Database.URL == "memory" {
		st = memory.New()
	} else {
		pgCfg := &postgres.Config{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}
		pg, err := postgres.NewFromDSN(cfg.Database.URL, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("app: build store: %w", err)
		}
		st = pg
		closeStore = pg.Close
	}

	queue := process.NewCommandQueue()
	wd := workdir.New(workdir.Config{Root: cfg.Workdir.Root, ArchiveConcurrency: cfg.Workdir.ArchiveLaneSize}, queue)

	rateModels := make(map[string]usage.Cost, len(cfg.Usage.Rates))
	for model, rate := range cfg.Usage.Rates {
		rateModels[model] = usage.Cost{
			Input:      rate.InputPerMTok,
			Output:     rate.OutputPerMTok,
			CacheRead:  rate.CacheReadPerMTok,
			CacheWrite: rate.CacheWritePerMTok,
		}
	}
	rateTable := &usage.RateTable{Version: cfg.Usage.RateTableVersion, Models: rateModels}
	metrics := observability.NewMetrics()
	accountant := usage.New(st, rateTable, logger.With("component", "usage")).WithMetrics(metrics)
	snapshots := usage.NewSnapshotSupervisor(accountant, cfg.Session.MetricsSnapshotTick)

	registry := hooks.NewRegistry()
	broad := NewBroadcaster()
	registry.Register(hooks.NewAuditHook(logger.With("component", "hooks"), models.HookPreToolUse, 0))
	registry.Register(hooks.NewMetricsHook(accountant, models.HookPreToolUse, 5))
	registry.Register(hooks.NewNotificationHook(broad, models.HookPostToolUse, 10))
	registry.Register(hooks.NewToolTrackingHook(st, 20))
	registry.Register(hooks.NewPersistenceHook(st, models.HookStop, 30))
	dispatcher := hooks.NewDispatcher(registry, st)

	var deniedCommands []string
	deniedCommands = append(deniedCommands, cfg.Policy.GlobalDenyCommands...)
	engine := policy.NewEngine(st,
		policy.NewPermissionModePolicy(),
		policy.NewCommandPolicy(deniedCommands),
		policy.NewFileAccessPolicy(nil, nil),
	)

	sessions := session.New(st, wd, cfg.Workdir.Root).WithMetrics(metrics)

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Store:       st,
		Queue:       queue,
		Workdir:     wd,
		Policy:      engine,
		Hooks:       dispatcher,
		Broadcaster: broad,
		Interactive: executor.NewInteractiveExecutor(queue),
		Forked:      executor.NewForkedExecutor(queue),
		Background:  executor.NewBackgroundExecutor(queue),
		Sessions:    sessions,
		Usage:       accountant,
		Snapshots:   snapshots,
		closeStore:  closeStore,
		agents:      make(map[uuid.UUID]*agentclient.Client),
	}

	a.Scheduler = cron.New(st, cron.TaskRunnerFunc(a.runTask), nil, cron.Options{TickInterval: cfg.Cron.TickInterval}, logger.With("component", "cron")).WithMetrics(metrics)

	return a, nil
}

// Close releases the Store's connection pool, if any.
func (a *App) Close() error {
	if a.closeStore != nil {
		return a.closeStore()
	}
	return nil
}

// spawnOptionsFor translates a session's stored fields into the
// protocol.SpawnOptions the agent CLI subprocess is invoked with.
func spawnOptionsFor(sess *models.Session, resumeID string) protocol.SpawnOptions {
	opts := protocol.DefaultSpawnOptions()
	opts.AllowedTools = sess.AllowedTools
	opts.IncludePartial = sess.IncludePartial
	opts.ResumeSessionID = resumeID
	switch sess.PermissionMode {
	case models.PermissionModeAcceptEdits:
		opts.PermissionMode = "acceptEdits"
	case models.PermissionModeBypass:
		opts.PermissionMode = "bypassPermissions"
	default:
		opts.PermissionMode = "default"
	}
	return opts
}

// clientFor returns sessionID's live agentclient.Client, connecting one
// on first use. Sessions are 1:1 with subprocesses for their entire
// lifetime, so the client is cached until the session terminates.
func (a *App) clientFor(ctx context.Context, sess *models.Session) (*agentclient.Client, error) {
	a.mu.Lock()
	if c, ok := a.agents[sess.ID]; ok {
		a.mu.Unlock()
		return c, nil
	}
	a.mu.Unlock()

	resume := ""
	if sess.IsFork() {
		resume = sess.ParentSessionID.String()
	}
	client := agentclient.New(agentclient.Config{
		BinaryPath:     a.Config.Agent.BinaryPath,
		WorkDir:        sess.WorkdirPath,
		Options:        spawnOptionsFor(sess, resume),
		MaxRetries:     a.Config.Session.DefaultMaxRetries,
		RetryDelayMs:   int(a.Config.Session.DefaultRetryDelay.Milliseconds()),
		InterruptGrace: a.Config.Agent.InterruptGrace,
	})
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("app: connect agent client: %w", err)
	}

	a.mu.Lock()
	a.agents[sess.ID] = client
	a.mu.Unlock()
	return client, nil
}

// dropClient removes and disconnects sessionID's cached client, called
// once a session reaches a terminal status.
func (a *App) dropClient(ctx context.Context, sessionID uuid.UUID) {
	a.Snapshots.Stop(sessionID)
	a.mu.Lock()
	client, ok := a.agents[sessionID]
	if ok {
		delete(a.agents, sessionID)
	}
	a.mu.Unlock()
	if ok {
		_, _ = client.Disconnect(ctx)
	}
}

// sessionInterrupter adapts a session's cached agent client, if any, to
// session.Interrupter without requiring the caller to hold a
// *agentclient.Client in advance; it is a no-op when none is cached.
type sessionInterrupter struct {
	app       *App
	sessionID uuid.UUID
}

func (si sessionInterrupter) Interrupt(ctx context.Context) error {
	si.app.mu.Lock()
	client, ok := si.app.agents[si.sessionID]
	si.app.mu.Unlock()
	if !ok {
		return nil
	}
	return client.Interrupt(ctx)
}
