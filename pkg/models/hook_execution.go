package models

import (
	"time"

	"github.com/google/uuid"
)

// HookExecution is an audit row written for every hook invocation,
// independent of success or failure (a hook that panics still produces
// one row with ContinueExecution=true, per the safety-default rule).
type HookExecution struct {
	ID                 uuid.UUID  `json:"id"`
	SessionID          uuid.UUID  `json:"session_id"`
	HookKind           HookKind   `json:"hook_kind"`
	ToolUseID          *string    `json:"tool_use_id,omitempty"`
	InputSnapshot      []byte     `json:"input_snapshot"`
	OutputSnapshot     []byte     `json:"output_snapshot"`
	ContinueExecution  bool       `json:"continue_execution"`
	DurationMs         int64      `json:"duration_ms"`
	ExecutedAt         time.Time  `json:"executed_at"`
}
