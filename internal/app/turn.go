package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/internal/executor"
	"github.com/haasonsaas/agentkit/internal/pipeline"
	"github.com/haasonsaas/agentkit/internal/session"
	"github.com/haasonsaas/agentkit/pkg/models"
	"github.com/haasonsaas/agentkit/pkg/protocol"
)

// pipelineProcessor is the narrow slice of *pipeline.Pipeline RunTurn
// needs; declared here rather than imported as executor.FrameProcessor
// directly so resultCapturingProcessor can intercept every frame.
type pipelineProcessor interface {
	ProcessFrame(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) (bool, error)
}

// resultCapturingProcessor wraps the Pipeline, recording the text of
// the turn's terminal "result" frame so RunTurn's caller (an HTTP
// handler or internal/cron's TaskRunner) can return it without reaching
// back into the Pipeline's internals.
type resultCapturingProcessor struct {
	inner  pipelineProcessor
	result string
}

func newResultCapturingProcessor(p pipelineProcessor) *resultCapturingProcessor {
	return &resultCapturingProcessor{inner: p}
}

func (r *resultCapturingProcessor) ProcessFrame(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) (bool, error) {
	if f.Type == protocol.FrameResult {
		r.result = f.Result
	}
	return r.inner.ProcessFrame(ctx, sessionID, f)
}

// executorFor picks the Executor implementation matching sess.Mode,
// mirroring how internal/session.CreateOptions.Mode decided the
// session's kind at creation time.
func (a *App) executorFor(sess *models.Session) interface {
	Execute(ctx context.Context, client executor.AgentClient, proc executor.FrameProcessor, opts executor.Options) error
} {
	switch sess.Mode {
	case models.ModeBackground:
		return a.Background
	case models.ModeForked:
		return a.Forked
	default:
		return a.Interactive
	}
}

// RunTurn drives one turn of sess's agent subprocess with prompt,
// moving the session through StartQuery/TransitionToActive or Fail as
// the executor's outcome dictates, and returns the terminal result
// frame's text. The owner's monthly budget is checked first: an OVER
// verdict refuses the turn with a KindQuotaExceeded error.
func (a *App) RunTurn(ctx context.Context, sess *models.Session, prompt string) (string, error) {
	verdict, _, err := a.Usage.CheckBudget(ctx, sess.UserID, time.Now())
	if err != nil {
		return "", fmt.Errorf("app: run turn: %w", err)
	}
	if verdict == models.BudgetOver {
		return "", apperr.Newf(apperr.KindQuotaExceeded, "app.RunTurn", "user %s is over its monthly budget", sess.UserID)
	}

	client, err := a.clientFor(ctx, sess)
	if err != nil {
		return "", err
	}

	if _, err := a.Sessions.StartQuery(ctx, sess.ID); err != nil {
		return "", fmt.Errorf("app: run turn: start query: %w", err)
	}
	a.Snapshots.Start(sess.ID)

	// One Pipeline per turn, not a shared singleton: its ControlResponder
	// is this turn's live agentclient.Client, so a control_request frame
	// gets answered on the subprocess that asked, not some other
	// session's.
	pipe := pipeline.New(a.Store, a.Hooks, a.Policy, client, a.Sessions, a.Sessions, a.Broadcaster)
	proc := newResultCapturingProcessor(pipe)
	execErr := a.executorFor(sess).Execute(ctx, client, proc, executor.Options{
		SessionID:       sess.ID,
		Prompt:          prompt,
		MaxRetries:      sess.MaxRetries,
		RetryBackoff:    a.Config.Session.DefaultRetryDelay,
		MaxRetryBackoff: a.Config.Agent.MaxConnectBackoff,
	})
	if execErr != nil {
		_, _ = a.Sessions.Fail(ctx, sess.ID)
		return "", fmt.Errorf("app: run turn: %w", execErr)
	}

	if err := a.Sessions.TransitionToActive(ctx, sess.ID); err != nil {
		return "", fmt.Errorf("app: run turn: transition to active: %w", err)
	}
	return proc.result, nil
}

// Interrupt best-effort interrupts sessionID's live agent subprocess,
// a no-op if it has none (e.g. never connected).
func (a *App) Interrupt(ctx context.Context, sessionID uuid.UUID) error {
	a.mu.Lock()
	client, ok := a.agents[sessionID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return client.Interrupt(ctx)
}

// Terminate best-effort interrupts sessionID's subprocess, transitions
// it to TERMINATED, and drops its cached agent client.
func (a *App) Terminate(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	sess, err := a.Sessions.Terminate(ctx, sessionID, sessionInterrupter{app: a, sessionID: sessionID})
	a.dropClient(ctx, sessionID)
	return sess, err
}

// runTask implements cron.TaskRunner: it creates a BACKGROUND session
// for task's owner (honoring session.Coordinator.CreateForTask's
// system_task quota bypass) and drives one turn through it.
func (a *App) runTask(ctx context.Context, task *models.Task, prompt string) (string, uuid.UUID, error) {
	workdirPath, err := a.Workdir.Create(ctx, uuid.New())
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("app: run task: create workdir: %w", err)
	}
	sess, err := a.Sessions.CreateForTask(ctx, task.UserID, session.CreateOptions{
		AllowedTools: task.AllowedTools,
		WorkdirPath:  workdirPath,
	})
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("app: run task: create session: %w", err)
	}

	if _, err := a.Sessions.Connect(ctx, sess.ID); err != nil {
		return "", sess.ID, fmt.Errorf("app: run task: connect: %w", err)
	}

	result, err := a.RunTurn(ctx, sess, prompt)
	if err != nil {
		return "", sess.ID, err
	}
	if _, err := a.Sessions.Complete(ctx, sess.ID); err != nil {
		a.Logger.Warn("app: run task: complete session", "session_id", sess.ID, "error", err)
	}
	a.dropClient(ctx, sess.ID)
	return result, sess.ID, nil
}
