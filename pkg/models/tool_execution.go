package models

import (
	"time"

	"github.com/google/uuid"
)

// ToolExecutionStatus is the lifecycle state of one tool invocation.
type ToolExecutionStatus string

const (
	ToolExecPending ToolExecutionStatus = "PENDING"
	ToolExecRunning ToolExecutionStatus = "RUNNING"
	ToolExecSuccess ToolExecutionStatus = "SUCCESS"
	ToolExecError   ToolExecutionStatus = "ERROR"
	ToolExecDenied  ToolExecutionStatus = "DENIED"
)

// Terminal reports whether the status requires CompletedAt to be set.
func (s ToolExecutionStatus) Terminal() bool {
	switch s {
	case ToolExecSuccess, ToolExecError, ToolExecDenied:
		return true
	default:
		return false
	}
}

// PermissionDecisionKind is the outcome of a policy evaluation attached
// to a ToolExecution row (distinct from the audit PermissionDecision
// entity, which records every evaluation including cached ones).
type PermissionDecisionKind string

const (
	PermissionAllow      PermissionDecisionKind = "ALLOW"
	PermissionDeny       PermissionDecisionKind = "DENY"
	PermissionNotChecked PermissionDecisionKind = "NOT_CHECKED"
)

// ToolExecution denormalizes one tool invocation from its owning
// message for fast querying: exactly one row per (session_id,
// tool_use_id).
type ToolExecution struct {
	ID                 uuid.UUID              `json:"id"`
	SessionID          uuid.UUID              `json:"session_id"`
	ToolUseID          string                 `json:"tool_use_id"`
	ToolName           string                 `json:"tool_name"`
	Input              []byte                 `json:"input"`
	Output             *string                `json:"output,omitempty"`
	Status             ToolExecutionStatus    `json:"status"`
	ErrorMessage       *string                `json:"error_message,omitempty"`
	DurationMs         *int64                 `json:"duration_ms,omitempty"`
	PermissionDecision PermissionDecisionKind `json:"permission_decision"`
	PermissionReason   *string                `json:"permission_reason,omitempty"`
	StartedAt          time.Time              `json:"started_at"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
}
