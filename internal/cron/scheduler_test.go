package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/store/memory"
	"github.com/haasonsaas/agentkit/pkg/models"
)

func strPtr(s string) *string { return &s }

func seedTask(t *testing.T, st *memory.Store, promptTemplate, cronExpr string, nextFireAt time.Time) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Name:            "nightly digest",
		PromptTemplate:  promptTemplate,
		ScheduleCron:    strPtr(cronExpr),
		ScheduleEnabled: true,
		NextFireAt:      &nextFireAt,
		CreatedAt:       nextFireAt,
		UpdatedAt:       nextFireAt,
	}
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func TestRunOnceFiresDueTaskAndReschedules(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	task := seedTask(t, st, "summarize recent activity", "* * * * *", now.Add(-time.Minute))

	var gotPrompt string
	runner := TaskRunnerFunc(func(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error) {
		gotPrompt = prompt
		return "done", uuid.New(), nil
	})

	sched := New(st, runner, nil, Options{Now: func() time.Time { return now }}, nil)
	fired := sched.RunOnce(context.Background())
	if fired != 1 {
		t.Fatalf("RunOnce() = %d, want 1", fired)
	}
	if gotPrompt != "summarize recent activity" {
		t.Errorf("prompt = %q, want %q", gotPrompt, "summarize recent activity")
	}

	updated, err := st.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if updated.ExecCount != 1 || updated.SuccessCount != 1 {
		t.Errorf("ExecCount/SuccessCount = %d/%d, want 1/1", updated.ExecCount, updated.SuccessCount)
	}
	if updated.NextFireAt == nil || !updated.NextFireAt.After(now) {
		t.Errorf("NextFireAt = %v, want advanced past %v", updated.NextFireAt, now)
	}
}

func TestRunManualRendersOverridesIntoPrompt(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	task := seedTask(t, st, "summarize {{.repo}}", "0 9 * * *", now.Add(time.Hour))

	var gotPrompt string
	runner := TaskRunnerFunc(func(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error) {
		gotPrompt = prompt
		return "ok", uuid.New(), nil
	})
	sched := New(st, runner, nil, Options{Now: func() time.Time { return now }}, nil)
	if _, err := sched.RunManual(context.Background(), task, map[string]string{"repo": "override-repo"}); err != nil {
		t.Fatalf("RunManual() error = %v", err)
	}
	if gotPrompt != "summarize override-repo" {
		t.Errorf("prompt = %q, want %q", gotPrompt, "summarize override-repo")
	}
}

func TestRunManualMissingVariableFailsExecutionWithoutRunning(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	task := seedTask(t, st, "summarize {{.repo}}", "0 9 * * *", now.Add(time.Hour))

	ran := false
	runner := TaskRunnerFunc(func(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error) {
		ran = true
		return "", uuid.Nil, nil
	})
	sched := New(st, runner, nil, Options{Now: func() time.Time { return now }}, nil)
	exec, err := sched.RunManual(context.Background(), task, map[string]string{})
	if err == nil {
		t.Fatal("expected a TemplateError for a missing variable")
	}
	if ran {
		t.Error("runner must not be invoked when template rendering fails")
	}
	if exec.Status != models.TaskExecFailed {
		t.Errorf("Status = %v, want FAILED", exec.Status)
	}
	if exec.Error == nil || *exec.Error == "" {
		t.Error("expected a non-empty Error on the execution")
	}
}

func TestFireRunnerFailureDoesNotImmediatelyRefire(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	task := seedTask(t, st, "summarize recent activity", "* * * * *", now.Add(-time.Minute))

	runner := TaskRunnerFunc(func(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error) {
		return "", uuid.Nil, errNoOp
	})
	sched := New(st, runner, nil, Options{Now: func() time.Time { return now }}, nil)
	if fired := sched.RunOnce(context.Background()); fired != 1 {
		t.Fatalf("RunOnce() = %d, want 1", fired)
	}

	updated, err := st.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if updated.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", updated.FailureCount)
	}
	want := now.Add(time.Minute)
	if updated.NextFireAt == nil || !updated.NextFireAt.Equal(want) {
		t.Errorf("NextFireAt = %v, want exactly the next normal occurrence %v (no immediate re-fire)", updated.NextFireAt, want)
	}

	fired := sched.RunOnce(context.Background())
	if fired != 0 {
		t.Errorf("RunOnce() immediately after a failure = %d, want 0 (next occurrence is a minute away)", fired)
	}
}

func TestRunOnceIgnoresUnscheduledTasks(t *testing.T) {
	st := memory.New()
	task := &models.Task{ID: uuid.New(), UserID: uuid.New(), Name: "manual-only", PromptTemplate: "hi"}
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	runner := TaskRunnerFunc(func(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error) {
		t.Fatal("runner must not fire for an unscheduled task")
		return "", uuid.Nil, nil
	})
	sched := New(st, runner, nil, Options{}, nil)
	if fired := sched.RunOnce(context.Background()); fired != 0 {
		t.Errorf("RunOnce() = %d, want 0", fired)
	}
}

func TestRunOnceGenerateReportInvokesReporterOnSuccess(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	task := seedTask(t, st, "summarize recent activity", "* * * * *", now.Add(-time.Minute))
	task.GenerateReport = true
	if err := st.UpdateTask(context.Background(), task); err != nil {
		t.Fatalf("update task: %v", err)
	}

	runner := TaskRunnerFunc(func(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error) {
		return "report body", uuid.New(), nil
	})
	rendered := false
	reporter := ReportRendererFunc(func(ctx context.Context, task *models.Task, execution *models.TaskExecution) error {
		rendered = true
		if execution.Result == nil || *execution.Result != "report body" {
			t.Errorf("execution.Result = %v, want %q", execution.Result, "report body")
		}
		return nil
	})
	sched := New(st, runner, reporter, Options{Now: func() time.Time { return now }}, nil)
	if fired := sched.RunOnce(context.Background()); fired != 1 {
		t.Fatalf("RunOnce() = %d, want 1", fired)
	}
	if !rendered {
		t.Error("expected the ReportRenderer to be invoked for a generate_report task")
	}
}

var errNoOp = &schedErr{"agent turn failed"}

type schedErr struct{ msg string }

func (e *schedErr) Error() string { return e.msg }
