// Package hooks implements the Hook Registry & Dispatcher (C4):
// per-session lifecycle hooks fired sequentially, in priority order,
// on each HookKind, with outputs composing from one hook to the next.
//
// Grounded in the teacher's internal/hooks package — Registration,
// priority-sorted registries, and callHandler's panic recovery carry
// over directly. The dispatch semantics differ: the teacher's Trigger
// fans out independently and merges errors, while Dispatch here is
// sequential and output-composing (spec §4.4) and can be halted early
// by a hook returning ContinueExecution=false.
package hooks

import (
	"context"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// Input is what a Hook receives for one invocation.
type Input struct {
	SessionID uuid.UUID
	ToolUseID *string
	Data      map[string]any
}

// Output is what a Hook returns. Data is merged into the next hook's
// Input.Data (last-write-wins per key); ContinueExecution=false halts
// downstream dispatch and, for PRE_TOOL_USE, the tool invocation that
// triggered it.
type Output struct {
	Data              map[string]any
	ContinueExecution bool
}

// Hook is one registered lifecycle callback.
type Hook interface {
	Name() string
	Kind() models.HookKind
	// Priority orders hooks within a Kind; lower fires first.
	Priority() int
	Execute(ctx context.Context, in Input) (Output, error)
}

// funcHook adapts a plain function into a Hook, mirroring the
// teacher's Handler-as-function registration style.
type funcHook struct {
	name     string
	kind     models.HookKind
	priority int
	fn       func(ctx context.Context, in Input) (Output, error)
}

func NewFunc(name string, kind models.HookKind, priority int, fn func(ctx context.Context, in Input) (Output, error)) Hook {
	return &funcHook{name: name, kind: kind, priority: priority, fn: fn}
}

func (h *funcHook) Name() string      { return h.name }
func (h *funcHook) Kind() models.HookKind { return h.kind }
func (h *funcHook) Priority() int     { return h.priority }
func (h *funcHook) Execute(ctx context.Context, in Input) (Output, error) {
	return h.fn(ctx, in)
}
