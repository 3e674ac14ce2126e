package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/observability"
	"github.com/haasonsaas/agentkit/internal/store"
	"github.com/haasonsaas/agentkit/pkg/models"
)

// nearBudgetThreshold is the fraction of monthly_budget_usd at which
// check_budget reports NEAR instead of UNDER, per spec.md §4.9.
const nearBudgetThreshold = 0.8

// Store is the narrow persistence slice the Accountant needs.
type Store interface {
	IncrementSessionMetrics(ctx context.Context, id uuid.UUID, delta models.Metrics) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SessionsByUser(ctx context.Context, userID uuid.UUID, filter store.SessionFilter) ([]*models.Session, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	InsertMetricsSnapshot(ctx context.Context, snap *models.SessionMetricsSnapshot) error
}

// Accountant computes per-turn cost against a RateTable, aggregates it
// into session/user totals through Store, answers check_budget, and
// runs the periodic SessionMetricsSnapshot loop for active sessions.
type Accountant struct {
	store   Store
	rates   *RateTable
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New builds an Accountant pricing turns from rates and persisting
// through s. A nil rates is legal — every turn is then treated as
// free, which callers may want in a development environment without a
// rates.yaml.
func New(s Store, rates *RateTable, logger *slog.Logger) *Accountant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{store: s, rates: rates, logger: logger}
}

// WithMetrics attaches m so RecordTurn keeps cost_usd_total in sync; an
// Accountant built without calling this records no metrics.
func (a *Accountant) WithMetrics(m *observability.Metrics) *Accountant {
	a.metrics = m
	return a
}

// RecordTurn prices u under model and atomically increments
// sessionID's running Metrics, returning the computed cost.
func (a *Accountant) RecordTurn(ctx context.Context, sessionID uuid.UUID, model string, u Usage) (float64, error) {
	cost, priced := a.rates.CostFor(model)
	if !priced {
		a.logger.Warn("usage: no rate table entry for model, treating turn as free", "model", model)
	}
	costUSD := cost.Estimate(u)
	delta := models.Metrics{
		CostUSD:          costUSD,
		TokensIn:         u.InputTokens,
		TokensOut:        u.OutputTokens,
		TokensCacheRead:  u.CacheReadTokens,
		TokensCacheWrite: u.CacheWriteTokens,
	}
	if err := a.store.IncrementSessionMetrics(ctx, sessionID, delta); err != nil {
		return 0, fmt.Errorf("usage: record turn: %w", err)
	}
	if a.metrics != nil {
		a.metrics.CostUSD.WithLabelValues(model).Add(costUSD)
	}
	return costUSD, nil
}

// RecordHookExecution satisfies internal/hooks.MetricsRecorder,
// incrementing a session's hook-execution counter on every hook
// invocation regardless of kind.
func (a *Accountant) RecordHookExecution(ctx context.Context, sessionID uuid.UUID, kind models.HookKind) error {
	if err := a.store.IncrementSessionMetrics(ctx, sessionID, models.Metrics{TotalHookExecutions: 1}); err != nil {
		return fmt.Errorf("usage: record hook execution: %w", err)
	}
	if a.metrics != nil {
		a.metrics.HookExecutions.WithLabelValues(string(kind), "ok").Inc()
	}
	return nil
}

// CheckBudget sums userID's sessions created in the current
// month-to-date window and compares the total against their
// monthly_budget_usd, returning UNDER, NEAR (>=80%), or OVER.
func (a *Accountant) CheckBudget(ctx context.Context, userID uuid.UUID, now time.Time) (models.BudgetVerdict, float64, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return "", 0, fmt.Errorf("usage: check budget: load user: %w", err)
	}
	sessions, err := a.store.SessionsByUser(ctx, userID, store.SessionFilter{})
	if err != nil {
		return "", 0, fmt.Errorf("usage: check budget: list sessions: %w", err)
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var spent float64
	for _, s := range sessions {
		if s.CreatedAt.Before(monthStart) {
			continue
		}
		spent += s.Metrics.CostUSD
	}

	if user.Quotas.MonthlyBudgetUSD <= 0 {
		return models.BudgetUnder, spent, nil
	}
	ratio := spent / user.Quotas.MonthlyBudgetUSD
	switch {
	case ratio >= 1:
		return models.BudgetOver, spent, nil
	case ratio >= nearBudgetThreshold:
		return models.BudgetNear, spent, nil
	default:
		return models.BudgetUnder, spent, nil
	}
}

// SnapshotLoop copies sessionID's current Metrics into a
// SessionMetricsSnapshot row every interval until ctx is done, one
// goroutine per active session, the same ticker shape as the teacher's
// cron.Scheduler loop. Callers launch it with `go` and cancel ctx when
// the session leaves an active status.
func (a *Accountant) SnapshotLoop(ctx context.Context, sessionID uuid.UUID, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.snapshotOnce(ctx, sessionID); err != nil {
				a.logger.Warn("usage: snapshot failed", "session_id", sessionID, "error", err)
			}
		}
	}
}

func (a *Accountant) snapshotOnce(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	snap := &models.SessionMetricsSnapshot{
		ID:        uuid.New(),
		SessionID: sessionID,
		Metrics:   sess.Metrics,
		TakenAt:   time.Now(),
	}
	return a.store.InsertMetricsSnapshot(ctx, snap)
}

// SnapshotSupervisor tracks one SnapshotLoop goroutine per session so
// callers can start/stop snapshotting as sessions transition in and
// out of active statuses without leaking goroutines.
type SnapshotSupervisor struct {
	accountant *Accountant
	interval   time.Duration

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewSnapshotSupervisor builds a supervisor that snapshots every
// interval through accountant.
func NewSnapshotSupervisor(accountant *Accountant, interval time.Duration) *SnapshotSupervisor {
	return &SnapshotSupervisor{accountant: accountant, interval: interval, cancels: make(map[uuid.UUID]context.CancelFunc)}
}

// Start launches a snapshot loop for sessionID if one isn't already
// running.
func (s *SnapshotSupervisor) Start(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.cancels[sessionID]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[sessionID] = cancel
	go s.accountant.SnapshotLoop(ctx, sessionID, s.interval)
}

// Stop cancels sessionID's snapshot loop, if any.
func (s *SnapshotSupervisor) Stop(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[sessionID]; ok {
		cancel()
		delete(s.cancels, sessionID)
	}
}
