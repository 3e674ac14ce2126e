// Package process provides the lane-based command queue that
// serializes work within a lane while letting different lanes proceed
// concurrently. agentkit uses one lane per session id so a session's
// turns run strictly in order while other sessions make progress
// independently, plus dedicated lanes for the scheduler and for
// workdir archival so neither contends with session turn dispatch.
package process

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Lane names a queue of serialized work. Session lanes are created on
// demand via SessionLane; LaneScheduler and LaneArchive are fixed.
type Lane string

const (
	// LaneScheduler serializes the Task Scheduler's own tick-driven work.
	LaneScheduler Lane = "scheduler"
	// LaneArchive bounds concurrent workdir archive/extract operations.
	LaneArchive Lane = "archive"
)

// SessionLane returns the dedicated lane for one session id.
func SessionLane(sessionID string) Lane {
	return Lane("session:" + sessionID)
}

// DefaultWarnAfterMs is the wait threshold past which OnWait fires.
const DefaultWarnAfterMs = 2000

// queueEntry is a task waiting to run in a lane.
type queueEntry struct {
	task        func(ctx context.Context) (any, error)
	enqueuedAt  time.Time
	warnAfterMs int
	onWait      func(waitMs int, queuedAhead int)
	resultCh    chan any
	errCh       chan error
}

// laneState is the queue and concurrency bookkeeping for one lane.
type laneState struct {
	lane          Lane
	queue         []*queueEntry
	active        int
	maxConcurrent int
	draining      bool
	mu            sync.Mutex
}

// EnqueueOptions configures one EnqueueInLane call.
type EnqueueOptions struct {
	WarnAfterMs int
	OnWait      func(waitMs int, queuedAhead int)
	Context     context.Context
}

// CommandQueue manages every lane in the process.
type CommandQueue struct {
	lanes map[Lane]*laneState
	mu    sync.RWMutex
}

// NewCommandQueue returns an empty CommandQueue; lanes are created on
// first use with a default concurrency of 1.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{lanes: make(map[Lane]*laneState)}
}

func (cq *CommandQueue) ensureState(lane Lane) *laneState {
	cq.mu.RLock()
	state, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if exists {
		return state
	}

	cq.mu.Lock()
	defer cq.mu.Unlock()
	if state, exists = cq.lanes[lane]; exists {
		return state
	}
	state = &laneState{lane: lane, maxConcurrent: 1}
	cq.lanes[lane] = state
	return state
}

// SetLaneConcurrency sets the lane's concurrency limit, clamped to a
// minimum of 1, and wakes the lane in case more work can now run.
func (cq *CommandQueue) SetLaneConcurrency(lane Lane, maxConcurrent int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	state := cq.ensureState(lane)
	state.mu.Lock()
	state.maxConcurrent = maxConcurrent
	state.mu.Unlock()
	cq.drainLane(state)
}

func (cq *CommandQueue) drainLane(state *laneState) {
	state.mu.Lock()
	if state.draining {
		state.mu.Unlock()
		return
	}
	state.draining = true
	state.mu.Unlock()
	cq.pump(state)
}

func (cq *CommandQueue) pump(state *laneState) {
	for {
		state.mu.Lock()
		if state.active >= state.maxConcurrent || len(state.queue) == 0 {
			state.draining = false
			state.mu.Unlock()
			return
		}

		entry := state.queue[0]
		state.queue = state.queue[1:]
		queuedAhead := len(state.queue)

		waitedMs := int(time.Since(entry.enqueuedAt).Milliseconds())
		if waitedMs >= entry.warnAfterMs && entry.onWait != nil {
			entry.onWait(waitedMs, queuedAhead)
		}

		state.active++
		state.mu.Unlock()

		go func(e *queueEntry) {
			result, err := e.task(context.Background())

			state.mu.Lock()
			state.active--
			state.mu.Unlock()

			if err != nil {
				e.errCh <- err
			} else {
				e.resultCh <- result
			}

			cq.pump(state)
		}(entry)
	}
}

// EnqueueInLane runs task in lane, serialized against the lane's
// concurrency limit, and blocks until it completes or ctx is canceled.
func EnqueueInLane[T any](cq *CommandQueue, lane Lane, task func(ctx context.Context) (T, error), opts *EnqueueOptions) (T, error) {
	var zero T

	warnAfterMs := DefaultWarnAfterMs
	var onWait func(int, int)
	ctx := context.Background()
	if opts != nil {
		if opts.WarnAfterMs > 0 {
			warnAfterMs = opts.WarnAfterMs
		}
		onWait = opts.OnWait
		if opts.Context != nil {
			ctx = opts.Context
		}
	}

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	entry := &queueEntry{
		task: func(taskCtx context.Context) (any, error) {
			return task(taskCtx)
		},
		enqueuedAt:  time.Now(),
		warnAfterMs: warnAfterMs,
		onWait:      onWait,
		resultCh:    resultCh,
		errCh:       errCh,
	}

	state := cq.ensureState(lane)
	state.mu.Lock()
	state.queue = append(state.queue, entry)
	state.mu.Unlock()

	cq.drainLane(state)

	select {
	case result := <-resultCh:
		if result == nil {
			return zero, nil
		}
		typed, ok := result.(T)
		if !ok {
			return zero, fmt.Errorf("process: unexpected task result type %T", result)
		}
		return typed, nil
	case err := <-errCh:
		return zero, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// LaneStats summarizes one lane's load.
type LaneStats struct {
	Lane          Lane
	Pending       int
	Active        int
	MaxConcurrent int
}

// Stats returns the current stats for lane, zero-valued if unseen.
func (cq *CommandQueue) Stats(lane Lane) LaneStats {
	cq.mu.RLock()
	state, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if !exists {
		return LaneStats{Lane: lane}
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return LaneStats{
		Lane:          lane,
		Pending:       len(state.queue),
		Active:        state.active,
		MaxConcurrent: state.maxConcurrent,
	}
}

// AllStats returns stats for every lane that has been touched.
func (cq *CommandQueue) AllStats() []LaneStats {
	cq.mu.RLock()
	defer cq.mu.RUnlock()
	stats := make([]LaneStats, 0, len(cq.lanes))
	for _, state := range cq.lanes {
		state.mu.Lock()
		stats = append(stats, LaneStats{
			Lane:          state.lane,
			Pending:       len(state.queue),
			Active:        state.active,
			MaxConcurrent: state.maxConcurrent,
		})
		state.mu.Unlock()
	}
	return stats
}

// ClearLane drops every queued (not yet running) task in lane, failing
// each with context.Canceled. Returns the number removed.
func (cq *CommandQueue) ClearLane(lane Lane) int {
	cq.mu.RLock()
	state, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if !exists {
		return 0
	}

	state.mu.Lock()
	removed := len(state.queue)
	for _, entry := range state.queue {
		entry.errCh <- context.Canceled
	}
	state.queue = nil
	state.mu.Unlock()
	return removed
}
