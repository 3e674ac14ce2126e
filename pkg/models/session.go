// Package models holds the entities persisted and exchanged by agentkit:
// sessions, messages, tool executions, hooks, permissions, archives, tasks,
// and users. Types here are plain data — behavior lives in the packages
// that operate on them (session, pipeline, policy, ...).
package models

import (
	"time"

	"github.com/google/uuid"
)

// Mode identifies how a session was started and how it is driven.
type Mode string

const (
	ModeInteractive Mode = "INTERACTIVE"
	ModeBackground  Mode = "BACKGROUND"
	ModeForked      Mode = "FORKED"
)

// Status is a node in the session state machine (see package session).
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusConnecting Status = "CONNECTING"
	StatusActive     Status = "ACTIVE"
	StatusWaitingUser Status = "WAITING_USER"
	StatusProcessing Status = "PROCESSING"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusTerminated Status = "TERMINATED"
	StatusArchived   Status = "ARCHIVED"
)

// Terminal reports whether the status has no further non-archival
// transitions (i.e. only -> ARCHIVED remains legal).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	default:
		return false
	}
}

// PermissionMode is the session-wide shorthand evaluated by
// policy.PermissionModePolicy.
type PermissionMode string

const (
	PermissionModeDefault     PermissionMode = "DEFAULT"
	PermissionModeAcceptEdits PermissionMode = "ACCEPT_EDITS"
	PermissionModeBypass      PermissionMode = "BYPASS"
)

// HookKind identifies a lifecycle point hooks can attach to.
type HookKind string

const (
	HookPreToolUse        HookKind = "PRE_TOOL_USE"
	HookPostToolUse       HookKind = "POST_TOOL_USE"
	HookUserPromptSubmit  HookKind = "USER_PROMPT_SUBMIT"
	HookStop              HookKind = "STOP"
	HookSubagentStop      HookKind = "SUBAGENT_STOP"
	HookPreCompact        HookKind = "PRE_COMPACT"
)

// Metrics holds the monotonic counters tracked per session.
type Metrics struct {
	TotalMessages         int64   `json:"total_messages"`
	TotalToolCalls        int64   `json:"total_tool_calls"`
	TotalHookExecutions   int64   `json:"total_hook_executions"`
	TotalPermissionChecks int64   `json:"total_permission_checks"`
	TotalErrors           int64   `json:"total_errors"`
	TotalRetries          int64   `json:"total_retries"`
	CostUSD               float64 `json:"cost_usd"`
	TokensIn              int64   `json:"tokens_in"`
	TokensOut             int64   `json:"tokens_out"`
	TokensCacheWrite      int64   `json:"tokens_cache_write"`
	TokensCacheRead       int64   `json:"tokens_cache_read"`
	DurationMs            int64   `json:"duration_ms"`
}

// Session is the aggregate root: one interactive/background/forked
// conversation with one agent-CLI subprocess and one working directory.
type Session struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"user_id"`
	Name             string         `json:"name,omitempty"`
	Mode             Mode           `json:"mode"`
	Status           Status         `json:"status"`
	WorkdirPath      string         `json:"workdir_path"`
	ParentSessionID  *uuid.UUID     `json:"parent_session_id,omitempty"`
	SDKOptions       map[string]any `json:"sdk_options,omitempty"`
	AllowedTools     []string       `json:"allowed_tools"`
	PermissionMode   PermissionMode `json:"permission_mode"`
	HooksEnabled     []HookKind     `json:"hooks_enabled"`
	CustomPolicies   []string       `json:"custom_policies"`
	MaxRetries       int            `json:"max_retries"`
	RetryDelayMs     int            `json:"retry_delay_ms"`
	TimeoutMs        int            `json:"timeout_ms"`
	IncludePartial   bool           `json:"include_partial_messages"`

	Metrics Metrics `json:"metrics"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	ArchiveID *uuid.UUID `json:"archive_id,omitempty"`
}

// IsFork reports whether this session was produced by Fork.
func (s *Session) IsFork() bool {
	return s.Mode == ModeForked && s.ParentSessionID != nil
}
