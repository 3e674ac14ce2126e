// Package cron is the Task Scheduler (C10): a ticker-driven loop that
// fires due Tasks, renders their prompt_template, drives one
// BackgroundExecutor turn through a caller-supplied TaskRunner, and
// records the outcome as a TaskExecution — grounded in the teacher's
// internal/cron package (robfig/cron/v3 parser, ticker-loop Scheduler),
// adapted from the teacher's job-type-polymorphic design
// (message/agent/webhook/custom) down to agentkit's single task kind.
package cron

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/internal/observability"
	"github.com/haasonsaas/agentkit/pkg/models"
)

// Store is the narrow persistence slice the Scheduler needs.
type Store interface {
	DueTasks(ctx context.Context, now time.Time) ([]*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	CreateTaskExecution(ctx context.Context, te *models.TaskExecution) error
	UpdateTaskExecution(ctx context.Context, te *models.TaskExecution) error
}

// TaskRunner drives one Task firing to completion: creating the
// BACKGROUND session (session.Coordinator.CreateForTask), executing
// the rendered prompt through a BackgroundExecutor, and returning the
// turn's result text. Satisfied by the composition root's glue between
// C8, C5, C6, and C7 — internal/cron never builds an agent client or
// session itself.
type TaskRunner interface {
	Run(ctx context.Context, task *models.Task, prompt string) (result string, sessionID uuid.UUID, err error)
}

// TaskRunnerFunc adapts a function to a TaskRunner.
type TaskRunnerFunc func(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error)

// Run calls f.
func (f TaskRunnerFunc) Run(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error) {
	return f(ctx, task, prompt)
}

// ReportRenderer hands a completed TaskExecution off to the external
// report renderer (out of scope per spec.md §1 — HTML/PDF/Markdown/JSON
// templating is an external collaborator, not implemented here).
type ReportRenderer interface {
	Render(ctx context.Context, task *models.Task, execution *models.TaskExecution) error
}

// ReportRendererFunc adapts a function to a ReportRenderer.
type ReportRendererFunc func(ctx context.Context, task *models.Task, execution *models.TaskExecution) error

// Render calls f.
func (f ReportRendererFunc) Render(ctx context.Context, task *models.Task, execution *models.TaskExecution) error {
	return f(ctx, task, execution)
}

// Options configures the ticker loop. There is deliberately no
// execution-level retry/backoff setting here: per spec.md §4.10, a
// failed firing does not re-fire early, so the only timing knob left
// is the scan resolution itself (client-level retries already happen
// inside BackgroundExecutor, within a single firing).
type Options struct {
	TickInterval time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Scheduler pops due Tasks on a ticker and fires each one through a
// TaskRunner, one at a time, in the tick's scan order. Unlike the
// teacher's Scheduler, task state (NextFireAt, RetryCount-equivalent)
// lives in the Store, not an in-process *Job slice — every tick
// re-reads DueTasks rather than scanning a cached job list.
type Scheduler struct {
	store    Store
	runner   TaskRunner
	reporter ReportRenderer
	opts     Options
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup

	metrics *observability.Metrics
}

// New builds a Scheduler. reporter may be nil if no task ever sets
// generate_report=true.
func New(store Store, runner TaskRunner, reporter ReportRenderer, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: store, runner: runner, reporter: reporter, opts: opts.withDefaults(), logger: logger}
}

// WithMetrics attaches m so every firing is counted under
// task_executions_total; a Scheduler built without calling this records
// no metrics.
func (s *Scheduler) WithMetrics(m *observability.Metrics) *Scheduler {
	s.metrics = m
	return s
}

// Start launches the ticker loop; it is a no-op if already started.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop waits for the loop goroutine to exit; cancel the ctx passed to
// Start first.
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

// RunOnce fires every currently-due task once, returning how many
// fired. Exported primarily for tests and for a manual-trigger API
// that wants an immediate scan.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	now := s.opts.Now()
	due, err := s.store.DueTasks(ctx, now)
	if err != nil {
		s.logger.Warn("cron: list due tasks", "error", err)
		return 0
	}
	for _, task := range due {
		s.fire(ctx, task, models.TriggerScheduled, nil, now)
	}
	return len(due)
}

// RunManual fires task immediately regardless of its schedule,
// rendering overrides over the task's stored variables. It does not
// touch task.NextFireAt.
func (s *Scheduler) RunManual(ctx context.Context, task *models.Task, overrides map[string]string) (*models.TaskExecution, error) {
	return s.fire(ctx, task, models.TriggerManual, overrides, s.opts.Now())
}

func (s *Scheduler) fire(ctx context.Context, task *models.Task, trigger models.TaskTrigger, overrides map[string]string, now time.Time) (*models.TaskExecution, error) {
	vars := overrides
	if vars == nil {
		vars = map[string]string{}
	}

	exec := &models.TaskExecution{
		ID:        uuid.New(),
		TaskID:    task.ID,
		Trigger:   trigger,
		Variables: vars,
		Status:    models.TaskExecPending,
		CreatedAt: now,
	}
	if err := s.store.CreateTaskExecution(ctx, exec); err != nil {
		s.logger.Warn("cron: create task execution", "task_id", task.ID, "error", err)
		return nil, err
	}

	prompt, renderErr := renderPrompt(task.PromptTemplate, vars)
	if renderErr != nil {
		s.finishFailed(ctx, task, exec, now, renderErr)
		if trigger == models.TriggerScheduled {
			s.rescheduleAfterFiring(ctx, task, now)
		}
		s.recordExecution(trigger, "failed")
		return exec, renderErr
	}

	started := now
	exec.Status = models.TaskExecRunning
	exec.StartedAt = &started
	if err := s.store.UpdateTaskExecution(ctx, exec); err != nil {
		s.logger.Warn("cron: update task execution to running", "task_id", task.ID, "error", err)
	}

	result, sessionID, runErr := s.runner.Run(ctx, task, prompt)
	completed := s.opts.Now()
	if sessionID != uuid.Nil {
		exec.SessionID = &sessionID
	}

	if runErr != nil {
		s.finishFailed(ctx, task, exec, completed, runErr)
		if trigger == models.TriggerScheduled {
			s.rescheduleAfterFiring(ctx, task, now)
		}
		s.recordExecution(trigger, "failed")
		return exec, runErr
	}

	exec.Status = models.TaskExecCompleted
	exec.Result = &result
	exec.CompletedAt = &completed
	if err := s.store.UpdateTaskExecution(ctx, exec); err != nil {
		s.logger.Warn("cron: update task execution to completed", "task_id", task.ID, "error", err)
	}
	task.ExecCount++
	task.SuccessCount++
	s.recordExecution(trigger, "completed")

	if task.GenerateReport && s.reporter != nil {
		if err := s.reporter.Render(ctx, task, exec); err != nil {
			s.logger.Warn("cron: render report", "task_id", task.ID, "execution_id", exec.ID, "error", err)
		}
	}

	if trigger == models.TriggerScheduled {
		s.rescheduleAfterFiring(ctx, task, now)
	}
	return exec, nil
}

func (s *Scheduler) recordExecution(trigger models.TaskTrigger, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.TaskExecutions.WithLabelValues(string(trigger), outcome).Inc()
}

// finishFailed records exec as FAILED, whether it failed before
// running at all (template rendering) or after the runner returned an
// error.
func (s *Scheduler) finishFailed(ctx context.Context, task *models.Task, exec *models.TaskExecution, completed time.Time, cause error) {
	msg := cause.Error()
	exec.Status = models.TaskExecFailed
	exec.Error = &msg
	exec.CompletedAt = &completed
	if err := s.store.UpdateTaskExecution(ctx, exec); err != nil {
		s.logger.Warn("cron: update task execution to failed", "task_id", task.ID, "error", err)
	}
	task.ExecCount++
	task.FailureCount++
}

// rescheduleAfterFiring computes task's next cron fire time and
// persists it. Per spec.md §4.10, a failed execution does not trigger
// an immediate re-fire — retry_count lives on the TaskExecution for
// audit purposes only; the task's own schedule always advances to its
// next normal occurrence regardless of the outcome.
func (s *Scheduler) rescheduleAfterFiring(ctx context.Context, task *models.Task, firedAt time.Time) {
	if !task.Scheduled() {
		return
	}
	sched, err := NewSchedule(*task.ScheduleCron)
	if err != nil {
		s.logger.Warn("cron: reschedule: invalid schedule_cron", "task_id", task.ID, "error", err)
		task.ScheduleEnabled = false
		task.NextFireAt = nil
	} else {
		next := sched.Next(firedAt)
		task.NextFireAt = &next
	}
	task.UpdatedAt = s.opts.Now()
	if err := s.store.UpdateTask(ctx, task); err != nil {
		s.logger.Warn("cron: persist next_fire_at", "task_id", task.ID, "error", err)
	}
}

// renderPrompt substitutes {{.var}} placeholders in tmplText with vars,
// failing hard (missingkey=error) on any undefined variable — a
// deliberate deviation from the teacher's renderMessageContent, which
// uses missingkey=zero and silently renders an empty string. spec.md
// mandates a TemplateError on a missing variable instead.
func renderPrompt(tmplText string, vars map[string]string) (string, error) {
	tmpl, err := template.New("task").Option("missingkey=error").Parse(tmplText)
	if err != nil {
		return "", apperr.New(apperr.KindInvalidInput, "cron.renderPrompt", fmt.Errorf("parse prompt_template: %w", err))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", apperr.New(apperr.KindInvalidInput, "cron.renderPrompt", fmt.Errorf("render prompt_template: %w", err))
	}
	return buf.String(), nil
}
