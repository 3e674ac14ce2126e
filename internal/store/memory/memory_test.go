package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/pkg/models"
)

func TestSessionCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	sess := &models.Session{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Mode:      models.ModeInteractive,
		Status:    models.StatusCreated,
		CreatedAt: time.Now(),
	}

	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := s.CreateSession(ctx, sess); err != apperr.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != models.StatusCreated {
		t.Errorf("Status = %v, want CREATED", got.Status)
	}

	sess.Status = models.StatusActive
	if err := s.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("UpdateSession() error = %v", err)
	}
	got, _ = s.GetSession(ctx, sess.ID)
	if got.Status != models.StatusActive {
		t.Errorf("Status after update = %v, want ACTIVE", got.Status)
	}

	// mutating the returned copy must not affect the store.
	got.Status = models.StatusFailed
	reread, _ := s.GetSession(ctx, sess.ID)
	if reread.Status != models.StatusActive {
		t.Errorf("store state leaked through caller mutation: got %v", reread.Status)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetSession(context.Background(), uuid.New()); err != apperr.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNextSequenceIsMonotonicPerSession(t *testing.T) {
	s := New()
	ctx := context.Background()
	sessionID := uuid.New()

	for i := int64(1); i <= 3; i++ {
		seq, err := s.NextSequence(ctx, sessionID)
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if seq != i {
			t.Errorf("NextSequence() = %d, want %d", seq, i)
		}
	}

	// a different session starts its own counter at 1.
	other, err := s.NextSequence(ctx, uuid.New())
	if err != nil {
		t.Fatalf("NextSequence() error = %v", err)
	}
	if other != 1 {
		t.Errorf("NextSequence() for new session = %d, want 1", other)
	}
}

func TestMessagesBySessionFiltersAfterSeq(t *testing.T) {
	s := New()
	ctx := context.Background()
	sessionID := uuid.New()

	for i := int64(1); i <= 5; i++ {
		if err := s.InsertMessage(ctx, &models.Message{
			ID:        uuid.New(),
			SessionID: sessionID,
			Sequence:  i,
			Direction: models.DirectionUserToAgent,
		}); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}

	msgs, err := s.MessagesBySession(ctx, sessionID, 2, 0)
	if err != nil {
		t.Fatalf("MessagesBySession() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	if msgs[0].Sequence != 3 {
		t.Errorf("first returned sequence = %d, want 3", msgs[0].Sequence)
	}
}

func TestIncrementSessionMetricsAccumulates(t *testing.T) {
	s := New()
	ctx := context.Background()
	sess := &models.Session{ID: uuid.New(), CreatedAt: time.Now()}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementSessionMetrics(ctx, sess.ID, models.Metrics{TotalMessages: 1, CostUSD: 0.5}); err != nil {
			t.Fatalf("IncrementSessionMetrics() error = %v", err)
		}
	}

	got, _ := s.GetSession(ctx, sess.ID)
	if got.Metrics.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3", got.Metrics.TotalMessages)
	}
	if got.Metrics.CostUSD != 1.5 {
		t.Errorf("CostUSD = %v, want 1.5", got.Metrics.CostUSD)
	}
}

func TestToolExecutionUpsertIsKeyedByToolUseID(t *testing.T) {
	s := New()
	ctx := context.Background()
	sessionID := uuid.New()

	te := &models.ToolExecution{SessionID: sessionID, ToolUseID: "tu-1", Status: models.ToolExecRunning, StartedAt: time.Now()}
	if err := s.UpsertToolExecution(ctx, te); err != nil {
		t.Fatalf("UpsertToolExecution() error = %v", err)
	}
	te.Status = models.ToolExecSuccess
	if err := s.UpsertToolExecution(ctx, te); err != nil {
		t.Fatalf("UpsertToolExecution() error = %v", err)
	}

	execs, err := s.ToolExecutionsBySession(ctx, sessionID)
	if err != nil {
		t.Fatalf("ToolExecutionsBySession() error = %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("len(execs) = %d, want 1 (upsert should not duplicate)", len(execs))
	}
	if execs[0].Status != models.ToolExecSuccess {
		t.Errorf("Status = %v, want SUCCESS", execs[0].Status)
	}
}

func TestDueTasksFiltersByNextFireAt(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	cron := "* * * * *"

	due := &models.Task{ID: uuid.New(), ScheduleEnabled: true, ScheduleCron: &cron, NextFireAt: &past}
	notDue := &models.Task{ID: uuid.New(), ScheduleEnabled: true, ScheduleCron: &cron, NextFireAt: &future}
	disabled := &models.Task{ID: uuid.New(), ScheduleEnabled: false, ScheduleCron: &cron, NextFireAt: &past}

	for _, task := range []*models.Task{due, notDue, disabled} {
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
	}

	got, err := s.DueTasks(ctx, now)
	if err != nil {
		t.Fatalf("DueTasks() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("DueTasks() = %v, want only %v", got, due.ID)
	}
}

func TestUserEmailUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := &models.User{ID: uuid.New(), Email: "a@example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	dup := &models.User{ID: uuid.New(), Email: "a@example.com"}
	if err := s.CreateUser(ctx, dup); err != apperr.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	if err := s.SoftDeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("SoftDeleteUser() error = %v", err)
	}
	got, _ := s.GetUser(ctx, u.ID)
	if got.DeletedAt == nil {
		t.Errorf("expected DeletedAt to be set after soft delete")
	}
}
