package usage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/store/memory"
	"github.com/haasonsaas/agentkit/pkg/models"
)

func newTestAccountant(rates *RateTable) (*Accountant, *memory.Store) {
	st := memory.New()
	return New(st, rates, nil), st
}

func seedSession(t *testing.T, st *memory.Store, userID uuid.UUID, createdAt time.Time) uuid.UUID {
	t.Helper()
	sess := &models.Session{ID: uuid.New(), UserID: userID, Status: models.StatusActive, CreatedAt: createdAt, UpdatedAt: createdAt}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return sess.ID
}

func TestRecordTurnAppliesRateTableAndIncrementsMetrics(t *testing.T) {
	rates := &RateTable{Version: "v1", Models: map[string]Cost{
		"claude-opus-4": {Input: 15, Output: 75},
	}}
	a, st := newTestAccountant(rates)
	userID := uuid.New()
	sessionID := seedSession(t, st, userID, time.Now())

	cost, err := a.RecordTurn(context.Background(), sessionID, "claude-opus-4", Usage{InputTokens: 1_000_000, OutputTokens: 100_000})
	if err != nil {
		t.Fatalf("RecordTurn() error = %v", err)
	}
	want := 15.0 + 7.5
	if cost != want {
		t.Errorf("cost = %v, want %v", cost, want)
	}

	sess, err := st.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.Metrics.CostUSD != want {
		t.Errorf("Metrics.CostUSD = %v, want %v", sess.Metrics.CostUSD, want)
	}
	if sess.Metrics.TokensIn != 1_000_000 {
		t.Errorf("Metrics.TokensIn = %v, want 1000000", sess.Metrics.TokensIn)
	}
}

func TestRecordTurnUnpricedModelIsFree(t *testing.T) {
	a, st := newTestAccountant(&RateTable{Version: "v1", Models: map[string]Cost{}})
	sessionID := seedSession(t, st, uuid.New(), time.Now())

	cost, err := a.RecordTurn(context.Background(), sessionID, "unknown-model", Usage{InputTokens: 1000})
	if err != nil {
		t.Fatalf("RecordTurn() error = %v", err)
	}
	if cost != 0 {
		t.Errorf("cost = %v, want 0 for an unpriced model", cost)
	}
}

func TestRecordHookExecutionIncrementsCounter(t *testing.T) {
	a, st := newTestAccountant(nil)
	sessionID := seedSession(t, st, uuid.New(), time.Now())

	if err := a.RecordHookExecution(context.Background(), sessionID, models.HookPreToolUse); err != nil {
		t.Fatalf("RecordHookExecution() error = %v", err)
	}
	sess, err := st.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.Metrics.TotalHookExecutions != 1 {
		t.Errorf("TotalHookExecutions = %d, want 1", sess.Metrics.TotalHookExecutions)
	}
}

func TestCheckBudgetReturnsUnderNearOver(t *testing.T) {
	a, st := newTestAccountant(nil)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		spentA  float64
		budget  float64
		want    models.BudgetVerdict
	}{
		{"under", 10, 100, models.BudgetUnder},
		{"near", 85, 100, models.BudgetNear},
		{"over", 150, 100, models.BudgetOver},
		{"no budget set", 9999, 0, models.BudgetUnder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			userID := uuid.New()
			if err := st.CreateUser(context.Background(), &models.User{ID: userID, Email: tc.name + "@example.com", Quotas: models.Quotas{MonthlyBudgetUSD: tc.budget}}); err != nil {
				t.Fatalf("seed user: %v", err)
			}
			sessionID := seedSession(t, st, userID, now)
			if err := st.IncrementSessionMetrics(context.Background(), sessionID, models.Metrics{CostUSD: tc.spentA}); err != nil {
				t.Fatalf("increment metrics: %v", err)
			}

			verdict, spent, err := a.CheckBudget(context.Background(), userID, now)
			if err != nil {
				t.Fatalf("CheckBudget() error = %v", err)
			}
			if verdict != tc.want {
				t.Errorf("verdict = %v, want %v", verdict, tc.want)
			}
			if spent != tc.spentA {
				t.Errorf("spent = %v, want %v", spent, tc.spentA)
			}
		})
	}
}

func TestCheckBudgetIgnoresSessionsFromPriorMonths(t *testing.T) {
	a, st := newTestAccountant(nil)
	userID := uuid.New()
	if err := st.CreateUser(context.Background(), &models.User{ID: userID, Email: "x@example.com", Quotas: models.Quotas{MonthlyBudgetUSD: 100}}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	lastMonth := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	oldSession := seedSession(t, st, userID, lastMonth)
	if err := st.IncrementSessionMetrics(context.Background(), oldSession, models.Metrics{CostUSD: 90}); err != nil {
		t.Fatalf("increment metrics: %v", err)
	}

	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	verdict, spent, err := a.CheckBudget(context.Background(), userID, now)
	if err != nil {
		t.Fatalf("CheckBudget() error = %v", err)
	}
	if spent != 0 {
		t.Errorf("spent = %v, want 0 (prior month's cost should not count)", spent)
	}
	if verdict != models.BudgetUnder {
		t.Errorf("verdict = %v, want UNDER", verdict)
	}
}

func TestSnapshotLoopInsertsSnapshotsUntilCanceled(t *testing.T) {
	a, st := newTestAccountant(nil)
	sessionID := seedSession(t, st, uuid.New(), time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	a.SnapshotLoop(ctx, sessionID, 10*time.Millisecond)

	snaps, err := st.MetricsSnapshotsBySession(context.Background(), sessionID, 0)
	if err != nil {
		t.Fatalf("MetricsSnapshotsBySession() error = %v", err)
	}
	if len(snaps) == 0 {
		t.Error("expected at least one snapshot before the loop's context expired")
	}
}

func TestSnapshotSupervisorStartStopDoesNotLeakOnDoubleStart(t *testing.T) {
	a, st := newTestAccountant(nil)
	sessionID := seedSession(t, st, uuid.New(), time.Now())

	sup := NewSnapshotSupervisor(a, 10*time.Millisecond)
	sup.Start(sessionID)
	sup.Start(sessionID) // second call must be a no-op, not a second goroutine
	time.Sleep(25 * time.Millisecond)
	sup.Stop(sessionID)
	sup.Stop(sessionID) // idempotent
}
