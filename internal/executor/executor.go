// Package executor is the Executor Family (C7): InteractiveExecutor,
// BackgroundExecutor, and ForkedExecutor each drive one turn of an
// agent client through the Message Pipeline, serialized against the
// owning session's internal/process.CommandQueue lane so a session's
// turns never run concurrently with each other.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/process"
	"github.com/haasonsaas/agentkit/pkg/protocol"
)

// AgentClient is the narrow slice of agentclient.Client an Executor
// needs to submit a prompt and drain its response frames.
type AgentClient interface {
	Query(prompt string) error
	Receive() <-chan protocol.Frame
}

// FrameProcessor is the narrow slice of pipeline.Pipeline an Executor
// needs to apply one Frame's effects.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) (turnComplete bool, err error)
}

// Options configures one turn's execution, built once per Execute call
// and shared across the InteractiveExecutor/BackgroundExecutor/
// ForkedExecutor family.
type Options struct {
	SessionID       uuid.UUID
	Prompt          string
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 100 * time.Millisecond
	}
	if o.MaxRetryBackoff <= 0 {
		o.MaxRetryBackoff = 5 * time.Second
	}
	return o
}

// runTurn submits opts.Prompt and drains frames through proc until the
// turn completes (a result frame) or the client's Receive channel
// closes (the subprocess exited mid-turn).
func runTurn(ctx context.Context, client AgentClient, proc FrameProcessor, opts Options) error {
	if err := client.Query(opts.Prompt); err != nil {
		return fmt.Errorf("executor: query: %w", err)
	}
	for {
		select {
		case frame, ok := <-client.Receive():
			if !ok {
				return nil
			}
			complete, err := proc.ProcessFrame(ctx, opts.SessionID, frame)
			if err != nil {
				return fmt.Errorf("executor: process frame: %w", err)
			}
			if complete {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// InteractiveExecutor runs exactly one turn per Execute call.
type InteractiveExecutor struct {
	queue *process.CommandQueue
}

// NewInteractiveExecutor builds an InteractiveExecutor backed by queue.
func NewInteractiveExecutor(queue *process.CommandQueue) *InteractiveExecutor {
	return &InteractiveExecutor{queue: queue}
}

// Execute runs one turn, serialized against the session's lane.
func (e *InteractiveExecutor) Execute(ctx context.Context, client AgentClient, proc FrameProcessor, opts Options) error {
	opts = opts.withDefaults()
	lane := process.SessionLane(opts.SessionID.String())
	_, err := process.EnqueueInLane(e.queue, lane, func(taskCtx context.Context) (struct{}, error) {
		return struct{}{}, runTurn(taskCtx, client, proc, opts)
	}, &process.EnqueueOptions{Context: ctx})
	return err
}

// ForkedExecutor runs exactly one turn per Execute call, identically to
// InteractiveExecutor: the fork/resume distinction is resolved before
// Execute runs, by the agentclient.Config the caller built for the
// forked session's subprocess (--resume the parent's session id).
type ForkedExecutor struct {
	*InteractiveExecutor
}

// NewForkedExecutor builds a ForkedExecutor backed by queue.
func NewForkedExecutor(queue *process.CommandQueue) *ForkedExecutor {
	return &ForkedExecutor{InteractiveExecutor: NewInteractiveExecutor(queue)}
}

// BackgroundExecutor retries a failed turn end-to-end with capped,
// jittered exponential backoff (the teacher's agent.Executor.Execute
// retry loop, reused here at turn granularity instead of per tool
// call).
type BackgroundExecutor struct {
	queue *process.CommandQueue
}

// NewBackgroundExecutor builds a BackgroundExecutor backed by queue.
func NewBackgroundExecutor(queue *process.CommandQueue) *BackgroundExecutor {
	return &BackgroundExecutor{queue: queue}
}

// Execute runs opts.MaxRetries+1 attempts of one turn, serialized
// against the session's lane, stopping at the first attempt that
// completes without error.
func (e *BackgroundExecutor) Execute(ctx context.Context, client AgentClient, proc FrameProcessor, opts Options) error {
	opts = opts.withDefaults()
	lane := process.SessionLane(opts.SessionID.String())

	_, err := process.EnqueueInLane(e.queue, lane, func(taskCtx context.Context) (struct{}, error) {
		var lastErr error
		for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
			lastErr = runTurn(taskCtx, client, proc, opts)
			if lastErr == nil {
				return struct{}{}, nil
			}
			if attempt == opts.MaxRetries {
				break
			}
			select {
			case <-time.After(backoffWithJitter(opts.RetryBackoff, attempt, opts.MaxRetryBackoff)):
			case <-taskCtx.Done():
				return struct{}{}, taskCtx.Err()
			}
		}
		return struct{}{}, fmt.Errorf("executor: turn failed after %d attempts: %w", opts.MaxRetries+1, lastErr)
	}, &process.EnqueueOptions{Context: ctx})
	return err
}

func backoffWithJitter(base time.Duration, attempt int, maxBackoff time.Duration) time.Duration {
	d := base * time.Duration(uint(1)<<uint(attempt))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	jitter := time.Duration(0)
	if d > 0 {
		jitter = time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d + jitter
}
