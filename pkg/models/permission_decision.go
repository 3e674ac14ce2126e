package models

import (
	"time"

	"github.com/google/uuid"
)

// DecisionResult is the outcome of one policy evaluation.
type DecisionResult string

const (
	DecisionAllow DecisionResult = "ALLOW"
	DecisionDeny  DecisionResult = "DENY"
)

// PermissionDecision is an audit row written for every policy
// evaluation, cached or not (spec §4.3: "Every evaluation, cached or
// not, emits a PermissionDecision row").
type PermissionDecision struct {
	ID            uuid.UUID      `json:"id"`
	SessionID     uuid.UUID      `json:"session_id"`
	ToolName      string         `json:"tool_name"`
	InputSnapshot []byte         `json:"input_snapshot"`
	Decision      DecisionResult `json:"decision"`
	PolicyName    *string        `json:"policy_name,omitempty"`
	Reason        *string        `json:"reason,omitempty"`
	Interrupted   bool           `json:"interrupted"`
	DecidedAt     time.Time      `json:"decided_at"`
}
