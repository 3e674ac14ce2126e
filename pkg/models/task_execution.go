package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskTrigger identifies what caused a TaskExecution to fire.
type TaskTrigger string

const (
	TriggerManual    TaskTrigger = "MANUAL"
	TriggerScheduled TaskTrigger = "SCHEDULED"
	TriggerAPI       TaskTrigger = "API"
)

// TaskExecutionStatus is the lifecycle state of one task firing.
type TaskExecutionStatus string

const (
	TaskExecPending   TaskExecutionStatus = "PENDING"
	TaskExecRunning   TaskExecutionStatus = "RUNNING"
	TaskExecCompleted TaskExecutionStatus = "COMPLETED"
	TaskExecFailed    TaskExecutionStatus = "FAILED"
	TaskExecCancelled TaskExecutionStatus = "CANCELLED"
)

// Terminal reports whether the status requires CompletedAt to be set.
func (s TaskExecutionStatus) Terminal() bool {
	switch s {
	case TaskExecCompleted, TaskExecFailed, TaskExecCancelled:
		return true
	default:
		return false
	}
}

// TaskExecution is one firing of a Task: the rendered prompt, the
// resulting Session (if one was created), and the outcome.
type TaskExecution struct {
	ID          uuid.UUID            `json:"id"`
	TaskID      uuid.UUID            `json:"task_id"`
	SessionID   *uuid.UUID           `json:"session_id,omitempty"`
	Trigger     TaskTrigger          `json:"trigger"`
	Variables   map[string]string    `json:"variables,omitempty"`
	Status      TaskExecutionStatus  `json:"status"`
	Result      *string              `json:"result,omitempty"`
	Error       *string              `json:"error,omitempty"`
	RetryCount  int                  `json:"retry_count"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}
