package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// Store is the persistence dependency Dispatcher needs: one
// HookExecution row per invocation, and the C9 counter increments a
// hook invocation or error contributes.
type Store interface {
	InsertHookExecution(ctx context.Context, he *models.HookExecution) error
	IncrementSessionMetrics(ctx context.Context, sessionID uuid.UUID, delta models.Metrics) error
}

// Dispatcher fires a session's registered hooks for a given kind,
// sequentially in priority order, composing each hook's output into
// the next hook's input.
type Dispatcher struct {
	registry *Registry
	store    Store
}

func NewDispatcher(registry *Registry, store Store) *Dispatcher {
	return &Dispatcher{registry: registry, store: store}
}

// Dispatch runs kind's hook chain for sessionID, starting from data.
// It returns the final composed output map and whether execution
// should continue (false halts downstream dispatch and, for
// PRE_TOOL_USE, the tool call that triggered it).
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID uuid.UUID, kind models.HookKind, toolUseID *string, data map[string]any) (map[string]any, bool, error) {
	chain := d.registry.For(kind)
	current := data
	if current == nil {
		current = map[string]any{}
	}

	for _, hook := range chain {
		started := time.Now()
		out, errored := d.invoke(ctx, hook, Input{SessionID: sessionID, ToolUseID: toolUseID, Data: current})
		elapsed := time.Since(started)

		if err := d.record(ctx, sessionID, kind, toolUseID, current, out, errored, elapsed); err != nil {
			return current, false, err
		}

		current = mergeOutput(current, out.Data)
		if !out.ContinueExecution {
			return current, false, nil
		}
	}
	return current, true, nil
}

// invoke runs one hook, recovering from panics and converting errors
// into the safety-default ContinueExecution=true outcome (spec §4.4:
// "a hook that raises... errors don't block execution").
func (d *Dispatcher) invoke(ctx context.Context, hook Hook, in Input) (out Output, errored bool) {
	defer func() {
		if p := recover(); p != nil {
			out = Output{ContinueExecution: true}
			errored = true
		}
	}()

	result, err := hook.Execute(ctx, in)
	if err != nil {
		return Output{ContinueExecution: true}, true
	}
	return result, false
}

func (d *Dispatcher) record(ctx context.Context, sessionID uuid.UUID, kind models.HookKind, toolUseID *string, input map[string]any, out Output, errored bool, elapsed time.Duration) error {
	if d.store == nil {
		return nil
	}

	inputSnapshot, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("hooks: marshal input snapshot: %w", err)
	}
	outputSnapshot, err := json.Marshal(out.Data)
	if err != nil {
		return fmt.Errorf("hooks: marshal output snapshot: %w", err)
	}

	if err := d.store.InsertHookExecution(ctx, &models.HookExecution{
		ID:                uuid.New(),
		SessionID:         sessionID,
		HookKind:          kind,
		ToolUseID:         toolUseID,
		InputSnapshot:     inputSnapshot,
		OutputSnapshot:    outputSnapshot,
		ContinueExecution: out.ContinueExecution,
		DurationMs:        elapsed.Milliseconds(),
		ExecutedAt:        time.Now(),
	}); err != nil {
		return err
	}

	delta := models.Metrics{TotalHookExecutions: 1}
	if errored {
		delta.TotalErrors = 1
	}
	return d.store.IncrementSessionMetrics(ctx, sessionID, delta)
}

// mergeOutput layers additions on top of base, last-write-wins per
// key (spec §4.4 / Open Question 9.3), without mutating base.
func mergeOutput(base, additions map[string]any) map[string]any {
	if len(additions) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(additions))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range additions {
		merged[k] = v
	}
	return merged
}
