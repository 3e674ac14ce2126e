package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportFormat names the rendering applied to a task's output when
// GenerateReport is set.
type ReportFormat string

const (
	ReportFormatNone     ReportFormat = "NONE"
	ReportFormatMarkdown ReportFormat = "MARKDOWN"
	ReportFormatJSON     ReportFormat = "JSON"
)

// Task is a reusable, optionally-scheduled prompt definition. Each
// firing produces one TaskExecution and (if it proceeds) one Session.
type Task struct {
	ID              uuid.UUID    `json:"id"`
	UserID          uuid.UUID    `json:"user_id"`
	Name            string       `json:"name"`
	PromptTemplate  string       `json:"prompt_template"`
	SDKOptions      []byte       `json:"sdk_options"`
	AllowedTools    []string     `json:"allowed_tools"`
	ScheduleCron    *string      `json:"schedule_cron,omitempty"`
	ScheduleEnabled bool         `json:"schedule_enabled"`
	GenerateReport  bool         `json:"generate_report"`
	ReportFormat    ReportFormat `json:"report_format"`
	Tags            []string     `json:"tags"`
	NextFireAt      *time.Time   `json:"next_fire_at,omitempty"`
	ExecCount       int64        `json:"exec_count"`
	SuccessCount    int64        `json:"success_count"`
	FailureCount    int64        `json:"failure_count"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Scheduled reports whether the task has an active cron schedule.
func (t *Task) Scheduled() bool {
	return t.ScheduleEnabled && t.ScheduleCron != nil && *t.ScheduleCron != ""
}
