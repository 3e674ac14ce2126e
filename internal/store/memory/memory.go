// Package memory is an in-process map-backed store.Store implementation,
// used as a test double across every other package — the same role the
// teacher's internal/jobs.MemoryStore plays for job persistence.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/internal/store"
	"github.com/haasonsaas/agentkit/pkg/models"
)

// Store is an in-memory store.Store. Every getter returns a defensive
// copy so callers can't mutate state behind the store's back.
type Store struct {
	mu sync.RWMutex

	sessions   map[uuid.UUID]*models.Session
	sequences  map[uuid.UUID]int64
	messages   map[uuid.UUID][]*models.Message // by session
	toolExecs  map[uuid.UUID]map[string]*models.ToolExecution // session -> tool_use_id
	hooks      map[uuid.UUID][]*models.HookExecution
	perms      map[uuid.UUID][]*models.PermissionDecision
	archives   map[uuid.UUID]*models.Archive // by session
	metricsSnaps map[uuid.UUID][]*models.SessionMetricsSnapshot
	tasks      map[uuid.UUID]*models.Task
	taskExecs  map[uuid.UUID]*models.TaskExecution
	users      map[uuid.UUID]*models.User
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions:  make(map[uuid.UUID]*models.Session),
		sequences: make(map[uuid.UUID]int64),
		messages:  make(map[uuid.UUID][]*models.Message),
		toolExecs: make(map[uuid.UUID]map[string]*models.ToolExecution),
		hooks:     make(map[uuid.UUID][]*models.HookExecution),
		perms:     make(map[uuid.UUID][]*models.PermissionDecision),
		archives:  make(map[uuid.UUID]*models.Archive),
		metricsSnaps: make(map[uuid.UUID][]*models.SessionMetricsSnapshot),
		tasks:     make(map[uuid.UUID]*models.Task),
		taskExecs: make(map[uuid.UUID]*models.TaskExecution),
		users:     make(map[uuid.UUID]*models.User),
	}
}

var _ store.Store = (*Store)(nil)

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return apperr.ErrAlreadyExists
	}
	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; !exists {
		return apperr.ErrNotFound
	}
	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *Store) SessionsByUser(ctx context.Context, userID uuid.UUID, filter store.SessionFilter) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if filter.Status != nil && sess.Status != *filter.Status {
			continue
		}
		if filter.Mode != nil && sess.Mode != *filter.Mode {
			continue
		}
		clone := *sess
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ForksOf(ctx context.Context, parentID uuid.UUID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.ParentSessionID != nil && *sess.ParentSessionID == parentID {
			clone := *sess
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) IncrementSessionMetrics(ctx context.Context, id uuid.UUID, delta models.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.ErrNotFound
	}
	sess.Metrics.TotalMessages += delta.TotalMessages
	sess.Metrics.TotalToolCalls += delta.TotalToolCalls
	sess.Metrics.TotalHookExecutions += delta.TotalHookExecutions
	sess.Metrics.TotalPermissionChecks += delta.TotalPermissionChecks
	sess.Metrics.TotalErrors += delta.TotalErrors
	sess.Metrics.TotalRetries += delta.TotalRetries
	sess.Metrics.CostUSD += delta.CostUSD
	sess.Metrics.TokensIn += delta.TokensIn
	sess.Metrics.TokensOut += delta.TokensOut
	sess.Metrics.TokensCacheWrite += delta.TokensCacheWrite
	sess.Metrics.TokensCacheRead += delta.TokensCacheRead
	sess.Metrics.DurationMs += delta.DurationMs
	return nil
}

// --- Messages ---

func (s *Store) NextSequence(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[sessionID]++
	return s.sequences[sessionID], nil
}

func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *m
	s.messages[m.SessionID] = append(s.messages[m.SessionID], &clone)
	return nil
}

func (s *Store) MessagesBySession(ctx context.Context, sessionID uuid.UUID, afterSeq int64, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[sessionID]
	var out []*models.Message
	for _, m := range all {
		if m.Sequence <= afterSeq {
			continue
		}
		clone := *m
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Tool executions ---

func (s *Store) UpsertToolExecution(ctx context.Context, te *models.ToolExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySession, ok := s.toolExecs[te.SessionID]
	if !ok {
		bySession = make(map[string]*models.ToolExecution)
		s.toolExecs[te.SessionID] = bySession
	}
	clone := *te
	bySession[te.ToolUseID] = &clone
	return nil
}

func (s *Store) ToolExecutionsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ToolExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ToolExecution
	for _, te := range s.toolExecs[sessionID] {
		clone := *te
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// --- Hook executions ---

func (s *Store) InsertHookExecution(ctx context.Context, he *models.HookExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *he
	s.hooks[he.SessionID] = append(s.hooks[he.SessionID], &clone)
	return nil
}

func (s *Store) HooksBySession(ctx context.Context, sessionID uuid.UUID, kind *models.HookKind) ([]*models.HookExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.HookExecution
	for _, he := range s.hooks[sessionID] {
		if kind != nil && he.HookKind != *kind {
			continue
		}
		clone := *he
		out = append(out, &clone)
	}
	return out, nil
}

// --- Permission decisions ---

func (s *Store) InsertPermissionDecision(ctx context.Context, pd *models.PermissionDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *pd
	s.perms[pd.SessionID] = append(s.perms[pd.SessionID], &clone)
	return nil
}

func (s *Store) PermissionsBySession(ctx context.Context, sessionID uuid.UUID, result *models.DecisionResult) ([]*models.PermissionDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PermissionDecision
	for _, pd := range s.perms[sessionID] {
		if result != nil && pd.Decision != *result {
			continue
		}
		clone := *pd
		out = append(out, &clone)
	}
	return out, nil
}

// --- Archives ---

func (s *Store) CreateArchive(ctx context.Context, a *models.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *a
	s.archives[a.SessionID] = &clone
	return nil
}

func (s *Store) UpdateArchive(ctx context.Context, a *models.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archives[a.SessionID]; !ok {
		return apperr.ErrNotFound
	}
	clone := *a
	s.archives[a.SessionID] = &clone
	return nil
}

func (s *Store) PendingArchives(ctx context.Context, limit int) ([]*models.Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Archive
	for _, a := range s.archives {
		if a.Status != models.ArchiveStatusPending {
			continue
		}
		clone := *a
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Metrics snapshots ---

func (s *Store) InsertMetricsSnapshot(ctx context.Context, snap *models.SessionMetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *snap
	s.metricsSnaps[snap.SessionID] = append(s.metricsSnaps[snap.SessionID], &clone)
	return nil
}

func (s *Store) MetricsSnapshotsBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.SessionMetricsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.metricsSnaps[sessionID]
	out := make([]*models.SessionMetricsSnapshot, len(snaps))
	for i, snap := range snaps {
		clone := *snap
		out[i] = &clone
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// --- Tasks ---

func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return apperr.ErrAlreadyExists
	}
	clone := *t
	s.tasks[t.ID] = &clone
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; !exists {
		return apperr.ErrNotFound
	}
	clone := *t
	s.tasks[t.ID] = &clone
	return nil
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *Store) DueTasks(ctx context.Context, now time.Time) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if !t.Scheduled() || t.NextFireAt == nil {
			continue
		}
		if t.NextFireAt.After(now) {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextFireAt.Before(*out[j].NextFireAt) })
	return out, nil
}

// --- Task executions ---

func (s *Store) CreateTaskExecution(ctx context.Context, te *models.TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *te
	s.taskExecs[te.ID] = &clone
	return nil
}

func (s *Store) UpdateTaskExecution(ctx context.Context, te *models.TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.taskExecs[te.ID]; !exists {
		return apperr.ErrNotFound
	}
	clone := *te
	s.taskExecs[te.ID] = &clone
	return nil
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email && existing.DeletedAt == nil {
			return apperr.ErrAlreadyExists
		}
	}
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; !exists {
		return apperr.ErrNotFound
	}
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *Store) SoftDeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	now := time.Now()
	u.DeletedAt = &now
	return nil
}
