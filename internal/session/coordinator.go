// Package session implements the Session Coordinator (C8): the
// ten-state session lifecycle, quota-enforced creation, fork, and
// archival, built on the same internal/statemachine helper as
// internal/agentclient (C5).
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/internal/observability"
	"github.com/haasonsaas/agentkit/internal/policy"
	"github.com/haasonsaas/agentkit/internal/statemachine"
	"github.com/haasonsaas/agentkit/internal/store"
	"github.com/haasonsaas/agentkit/pkg/models"
)

// editTools is the fixed set of tools ACCEPT_EDITS treats as writes,
// mirroring policy.FileAccessPolicy's file-tool name list but
// narrowed to the mutating half of it.
var editTools = map[string]bool{
	"write_file": true,
	"Write":      true,
}

const (
	stCreated    = statemachine.State(models.StatusCreated)
	stConnecting = statemachine.State(models.StatusConnecting)
	stActive     = statemachine.State(models.StatusActive)
	stWaiting    = statemachine.State(models.StatusWaitingUser)
	stProcessing = statemachine.State(models.StatusProcessing)
	stPaused     = statemachine.State(models.StatusPaused)
	stCompleted  = statemachine.State(models.StatusCompleted)
	stFailed     = statemachine.State(models.StatusFailed)
	stTerminated = statemachine.State(models.StatusTerminated)
	stArchived   = statemachine.State(models.StatusArchived)
)

// transitionTable is spec.md §4.8's legal-transition graph verbatim.
func transitionTable() map[statemachine.State]map[statemachine.State]bool {
	return map[statemachine.State]map[statemachine.State]bool{
		stCreated:    {stConnecting: true, stTerminated: true},
		stConnecting: {stActive: true, stFailed: true},
		stActive:     {stWaiting: true, stProcessing: true, stPaused: true, stCompleted: true, stFailed: true, stTerminated: true},
		stWaiting:    {stActive: true, stProcessing: true, stTerminated: true},
		stProcessing: {stActive: true, stCompleted: true, stFailed: true},
		stPaused:     {stActive: true, stTerminated: true},
		stCompleted:  {stArchived: true},
		stFailed:     {stArchived: true},
		stTerminated: {stArchived: true},
		stArchived:   {},
	}
}

// Store is the narrow persistence slice the Coordinator needs.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	UpdateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SessionsByUser(ctx context.Context, userID uuid.UUID, filter store.SessionFilter) ([]*models.Session, error)
	ForksOf(ctx context.Context, parentID uuid.UUID) ([]*models.Session, error)
	CreateArchive(ctx context.Context, a *models.Archive) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	MessagesBySession(ctx context.Context, sessionID uuid.UUID, afterSeq int64, limit int) ([]*models.Message, error)
	InsertMessage(ctx context.Context, m *models.Message) error
}

// Archiver is the C2 operation Archive invokes, satisfied directly by
// internal/workdir.Manager.Archive.
type Archiver interface {
	Archive(ctx context.Context, sessionID uuid.UUID, sourcePath, destPath string, compression models.Compression) (*models.Archive, error)
}

// Interrupter is the C5 operation Terminate invokes best-effort,
// satisfied directly by internal/agentclient.Client.Interrupt.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

// CreateOptions carries the caller-configurable fields of a new
// session; everything else (ID, Status, timestamps) is the
// Coordinator's to set.
type CreateOptions struct {
	Name           string
	Mode           models.Mode
	WorkdirPath    string
	SDKOptions     map[string]any
	AllowedTools   []string
	PermissionMode models.PermissionMode
	HooksEnabled   []models.HookKind
	CustomPolicies []string
	MaxRetries     int
	RetryDelayMs   int
	TimeoutMs      int
	IncludePartial bool

	// BypassQuota skips the max_concurrent_sessions check entirely.
	// Callers must only set this for sessions whose owner carries
	// Quotas.SystemTaskBypass (internal/cron's scheduled-task
	// sessions) — never for user-initiated creation.
	BypassQuota bool
}

// Coordinator owns the session lifecycle: creation under quota,
// guarded state transitions, fork, and archival.
type Coordinator struct {
	store       Store
	archiver    Archiver
	archiveRoot string
	metrics     *observability.Metrics
}

// New builds a Coordinator persisting through s, archiving working
// directories through archiver, and writing archive blobs under
// archiveRoot.
func New(s Store, archiver Archiver, archiveRoot string) *Coordinator {
	return &Coordinator{store: s, archiver: archiver, archiveRoot: archiveRoot}
}

// WithMetrics attaches m so Create and terminal transitions keep the
// sessions_active gauge in sync; a Coordinator built without calling
// this records no metrics.
func (c *Coordinator) WithMetrics(m *observability.Metrics) *Coordinator {
	c.metrics = m
	return c
}

// Create allocates a new session for userID, rejecting with
// apperr.KindQuotaExceeded if the user already has
// max_concurrent_sessions non-terminal, non-archived sessions.
func (c *Coordinator) Create(ctx context.Context, userID uuid.UUID, opts CreateOptions) (*models.Session, error) {
	if !opts.BypassQuota {
		if err := c.checkQuota(ctx, userID); err != nil {
			return nil, err
		}
	}
	now := time.Now()
	sess := &models.Session{
		ID:             uuid.New(),
		UserID:         userID,
		Name:           opts.Name,
		Mode:           opts.Mode,
		Status:         models.StatusCreated,
		WorkdirPath:    opts.WorkdirPath,
		SDKOptions:     opts.SDKOptions,
		AllowedTools:   opts.AllowedTools,
		PermissionMode: opts.PermissionMode,
		HooksEnabled:   opts.HooksEnabled,
		CustomPolicies: opts.CustomPolicies,
		MaxRetries:     opts.MaxRetries,
		RetryDelayMs:   opts.RetryDelayMs,
		TimeoutMs:      opts.TimeoutMs,
		IncludePartial: opts.IncludePartial,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	if c.metrics != nil {
		c.metrics.SessionsActive.WithLabelValues(string(sess.Mode)).Inc()
	}
	return sess, nil
}

// Fork creates a new FORKED session under parentID's owner, inheriting
// the parent's tool/policy configuration, still subject to the same
// quota check as Create. It then copies the parent's messages with
// sequence <= forkAtMessage into the new session, preserving their
// original sequence numbers; forkAtMessage <= 0 copies the parent's
// entire history.
func (c *Coordinator) Fork(ctx context.Context, parentID uuid.UUID, workdirPath, name string, forkAtMessage int64) (*models.Session, error) {
	parent, err := c.store.GetSession(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("session: fork: load parent: %w", err)
	}
	sess, err := c.Create(ctx, parent.UserID, CreateOptions{
		Name:           name,
		Mode:           models.ModeForked,
		WorkdirPath:    workdirPath,
		SDKOptions:     parent.SDKOptions,
		AllowedTools:   parent.AllowedTools,
		PermissionMode: parent.PermissionMode,
		HooksEnabled:   parent.HooksEnabled,
		CustomPolicies: parent.CustomPolicies,
		MaxRetries:     parent.MaxRetries,
		RetryDelayMs:   parent.RetryDelayMs,
		TimeoutMs:      parent.TimeoutMs,
		IncludePartial: parent.IncludePartial,
	})
	if err != nil {
		return nil, err
	}
	sess.ParentSessionID = &parentID
	if err := c.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: fork: link parent: %w", err)
	}

	if err := c.copyHistory(ctx, parentID, sess.ID, forkAtMessage); err != nil {
		return nil, err
	}
	return sess, nil
}

// copyHistory duplicates parentID's messages with sequence <= upTo
// (or all of them, if upTo <= 0) into childID, preserving sequence
// numbers so the fork's history reads identically to the parent's up
// to the fork point.
func (c *Coordinator) copyHistory(ctx context.Context, parentID, childID uuid.UUID, upTo int64) error {
	parentMessages, err := c.store.MessagesBySession(ctx, parentID, 0, 0)
	if err != nil {
		return fmt.Errorf("session: fork: load parent messages: %w", err)
	}
	for _, m := range parentMessages {
		if upTo > 0 && m.Sequence > upTo {
			continue
		}
		copied := *m
		copied.ID = uuid.New()
		copied.SessionID = childID
		if err := c.store.InsertMessage(ctx, &copied); err != nil {
			return fmt.Errorf("session: fork: copy message seq %d: %w", m.Sequence, err)
		}
	}
	return nil
}

// CreateForTask creates a BACKGROUND session on behalf of a scheduled
// or manually-triggered Task firing, honoring userID's
// Quotas.SystemTaskBypass per spec.md §4.10 step 1.
func (c *Coordinator) CreateForTask(ctx context.Context, userID uuid.UUID, opts CreateOptions) (*models.Session, error) {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("session: create for task: load user: %w", err)
	}
	opts.Mode = models.ModeBackground
	opts.BypassQuota = user.Quotas.SystemTaskBypass
	return c.Create(ctx, userID, opts)
}

func (c *Coordinator) checkQuota(ctx context.Context, userID uuid.UUID) error {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("session: load user: %w", err)
	}
	if user.Quotas.MaxConcurrentSessions <= 0 {
		return nil
	}
	existing, err := c.store.SessionsByUser(ctx, userID, store.SessionFilter{})
	if err != nil {
		return fmt.Errorf("session: list existing: %w", err)
	}
	active := 0
	for _, s := range existing {
		if s.Status != models.StatusArchived && !s.Status.Terminal() {
			active++
		}
	}
	if active >= user.Quotas.MaxConcurrentSessions {
		return apperr.New(apperr.KindQuotaExceeded, "session.Create", apperr.ErrQuotaExceeded)
	}
	return nil
}

// Connect transitions a just-created session to CONNECTING, marking
// the attempt to spawn its agent-CLI subprocess.
func (c *Coordinator) Connect(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return c.transition(ctx, sessionID, models.StatusConnecting)
}

// StartQuery transitions an ACTIVE or WAITING_USER session to
// PROCESSING; the caller then hands the session to an Executor and
// reports the outcome via Complete/Fail/TransitionToActive.
func (c *Coordinator) StartQuery(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return c.transition(ctx, sessionID, models.StatusProcessing)
}

// TransitionToActive moves a session back to ACTIVE, satisfying
// pipeline.SessionNotifier so the Message Pipeline can report turn
// completion without importing this package's full surface.
func (c *Coordinator) TransitionToActive(ctx context.Context, sessionID uuid.UUID) error {
	_, err := c.transition(ctx, sessionID, models.StatusActive)
	return err
}

// Pause transitions an ACTIVE session to PAUSED.
func (c *Coordinator) Pause(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return c.transition(ctx, sessionID, models.StatusPaused)
}

// Resume transitions a WAITING_USER, PROCESSING, or PAUSED session
// back to ACTIVE.
func (c *Coordinator) Resume(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return c.transition(ctx, sessionID, models.StatusActive)
}

// Complete transitions an ACTIVE or PROCESSING session to COMPLETED.
func (c *Coordinator) Complete(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return c.transition(ctx, sessionID, models.StatusCompleted)
}

// Fail transitions a CONNECTING, ACTIVE, or PROCESSING session to
// FAILED.
func (c *Coordinator) Fail(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return c.transition(ctx, sessionID, models.StatusFailed)
}

// Terminate best-effort interrupts the session's agent-CLI subprocess
// (ignoring interrupter's error — termination proceeds regardless of
// whether the subprocess was reachable) and transitions the session to
// TERMINATED.
func (c *Coordinator) Terminate(ctx context.Context, sessionID uuid.UUID, interrupter Interrupter) (*models.Session, error) {
	if interrupter != nil {
		_ = interrupter.Interrupt(ctx)
	}
	return c.transition(ctx, sessionID, models.StatusTerminated)
}

// Archive is only legal once a session has reached a terminal,
// non-ARCHIVED status. On success it records a COMPLETED archive row,
// stamps the session's archive_id, and transitions it to ARCHIVED. On
// failure it records a FAILED archive row and leaves the session in
// its prior terminal status rather than transitioning it.
func (c *Coordinator) Archive(ctx context.Context, sessionID uuid.UUID) (*models.Archive, error) {
	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: archive: load session: %w", err)
	}
	if !sess.Status.Terminal() {
		return nil, apperr.Newf(apperr.KindConflict, "session.Archive", "session %s is %s, not a terminal status", sessionID, sess.Status)
	}

	destPath := filepath.Join(c.archiveRoot, sessionID.String()+".tar.gz")
	archive, archErr := c.archiver.Archive(ctx, sessionID, sess.WorkdirPath, destPath, models.CompressionGzip)
	if archErr != nil {
		reason := archErr.Error()
		failed := &models.Archive{
			ID:        uuid.New(),
			SessionID: sessionID,
			Status:    models.ArchiveStatusFailed,
			Error:     &reason,
			CreatedAt: time.Now(),
		}
		if err := c.store.CreateArchive(ctx, failed); err != nil {
			return nil, fmt.Errorf("session: archive: record failure: %w", err)
		}
		return nil, fmt.Errorf("session: archive: %w", archErr)
	}

	if err := c.store.CreateArchive(ctx, archive); err != nil {
		return nil, fmt.Errorf("session: archive: record: %w", err)
	}
	sess.ArchiveID = &archive.ID
	sess.Status = models.StatusArchived
	sess.UpdatedAt = time.Now()
	if err := c.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: archive: update session: %w", err)
	}
	return archive, nil
}

// PermissionContext builds the policy.Context for sessionID, satisfying
// pipeline.SessionInfo.
func (c *Coordinator) PermissionContext(ctx context.Context, sessionID uuid.UUID) (policy.Context, error) {
	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return policy.Context{}, fmt.Errorf("session: permission context: %w", err)
	}
	return policy.Context{
		SessionID:      sess.ID.String(),
		PermissionMode: string(sess.PermissionMode),
		EditTools:      editTools,
	}, nil
}

// transition loads sessionID's current status, validates next against
// transitionTable, persists it on success, and stamps StartedAt /
// CompletedAt where the new status implies it.
func (c *Coordinator) transition(ctx context.Context, sessionID uuid.UUID, next models.Status) (*models.Session, error) {
	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: transition: load: %w", err)
	}

	m := statemachine.New(statemachine.State(sess.Status), transitionTable())
	if err := m.Transition(statemachine.State(next)); err != nil {
		return nil, apperr.Newf(apperr.KindConflict, "session.transition", "%s -> %s: %v", sess.Status, next, apperr.ErrInvalidState)
	}

	now := time.Now()
	sess.Status = next
	sess.UpdatedAt = now
	switch next {
	case models.StatusActive:
		if sess.StartedAt == nil {
			sess.StartedAt = &now
		}
	case models.StatusCompleted, models.StatusFailed, models.StatusTerminated:
		sess.CompletedAt = &now
	}

	if err := c.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: transition: update: %w", err)
	}
	if c.metrics != nil {
		switch next {
		case models.StatusCompleted, models.StatusFailed, models.StatusTerminated:
			c.metrics.SessionsActive.WithLabelValues(string(sess.Mode)).Dec()
		}
	}
	return sess, nil
}
