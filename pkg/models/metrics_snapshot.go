package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionMetricsSnapshot is a point-in-time copy of a session's
// running Metrics counters, inserted every snapshot_interval_ms while
// the session is active, for time-series reporting.
type SessionMetricsSnapshot struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Metrics   Metrics   `json:"metrics"`
	TakenAt   time.Time `json:"taken_at"`
}

// BudgetVerdict is check_budget's three-way classification of a user's
// month-to-date spend against their monthly budget.
type BudgetVerdict string

const (
	BudgetUnder BudgetVerdict = "UNDER"
	BudgetNear  BudgetVerdict = "NEAR"
	BudgetOver  BudgetVerdict = "OVER"
)
