// Package store defines agentkit's persistence interface (C1). Concrete
// implementations live in store/memory (an in-process test double,
// grounded in the teacher's internal/jobs.MemoryStore) and
// store/postgres (grounded in internal/jobs.CockroachStore).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// SessionFilter narrows SessionsByUser.
type SessionFilter struct {
	Status *models.Status
	Mode   *models.Mode
}

// Store is the full persistence surface required by spec.md §4.1: atomic
// insert/update/soft-delete of every entity, plus the ordered queries
// the rest of the system depends on. Every method is a single
// transactional unit; callers never read-modify-write a counter through
// this interface — counter mutation is its own method.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	UpdateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SessionsByUser(ctx context.Context, userID uuid.UUID, filter SessionFilter) ([]*models.Session, error)
	ForksOf(ctx context.Context, parentID uuid.UUID) ([]*models.Session, error)
	IncrementSessionMetrics(ctx context.Context, id uuid.UUID, delta models.Metrics) error

	// Messages
	InsertMessage(ctx context.Context, m *models.Message) error
	// NextSequence atomically allocates the next monotonic sequence
	// number for sessionID, serializing concurrent inserts for the same
	// session.
	NextSequence(ctx context.Context, sessionID uuid.UUID) (int64, error)
	MessagesBySession(ctx context.Context, sessionID uuid.UUID, afterSeq int64, limit int) ([]*models.Message, error)

	// Tool executions
	UpsertToolExecution(ctx context.Context, te *models.ToolExecution) error
	ToolExecutionsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ToolExecution, error)

	// Hook executions
	InsertHookExecution(ctx context.Context, he *models.HookExecution) error
	HooksBySession(ctx context.Context, sessionID uuid.UUID, kind *models.HookKind) ([]*models.HookExecution, error)

	// Permission decisions
	InsertPermissionDecision(ctx context.Context, pd *models.PermissionDecision) error
	PermissionsBySession(ctx context.Context, sessionID uuid.UUID, result *models.DecisionResult) ([]*models.PermissionDecision, error)

	// Archives
	CreateArchive(ctx context.Context, a *models.Archive) error
	UpdateArchive(ctx context.Context, a *models.Archive) error
	PendingArchives(ctx context.Context, limit int) ([]*models.Archive, error)

	// Metrics snapshots
	InsertMetricsSnapshot(ctx context.Context, snap *models.SessionMetricsSnapshot) error
	MetricsSnapshotsBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.SessionMetricsSnapshot, error)

	// Tasks
	CreateTask(ctx context.Context, t *models.Task) error
	UpdateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
	DueTasks(ctx context.Context, now time.Time) ([]*models.Task, error)

	// Task executions
	CreateTaskExecution(ctx context.Context, te *models.TaskExecution) error
	UpdateTaskExecution(ctx context.Context, te *models.TaskExecution) error

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SoftDeleteUser(ctx context.Context, id uuid.UUID) error
}
