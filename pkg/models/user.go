package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a coarse authorization level.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleUser   Role = "USER"
	RoleViewer Role = "VIEWER"
)

// Quotas bounds what a User may consume.
type Quotas struct {
	MaxConcurrentSessions int     `json:"max_concurrent_sessions"`
	MonthlyBudgetUSD      float64 `json:"monthly_budget_usd"`
	SystemTaskBypass      bool    `json:"system_task_bypass"`
}

// User is a tenant of the service. DeletedAt implements soft-delete:
// rows are never physically removed so Sessions/Tasks keep a valid
// foreign key.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Quotas       Quotas     `json:"quotas"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the user has not been soft-deleted.
func (u *User) Active() bool {
	return u.DeletedAt == nil
}
