package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/internal/store/memory"
	"github.com/haasonsaas/agentkit/pkg/models"
)

type fakeArchiver struct {
	archive *models.Archive
	err     error
	calls   int
}

func (a *fakeArchiver) Archive(_ context.Context, sessionID uuid.UUID, _, destPath string, _ models.Compression) (*models.Archive, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if a.archive != nil {
		return a.archive, nil
	}
	return &models.Archive{ID: uuid.New(), SessionID: sessionID, Path: destPath, Status: models.ArchiveStatusCompleted}, nil
}

type fakeInterrupter struct {
	called bool
	err    error
}

func (i *fakeInterrupter) Interrupt(_ context.Context) error {
	i.called = true
	return i.err
}

func newTestCoordinator(archiver Archiver) (*Coordinator, *memory.Store) {
	st := memory.New()
	return New(st, archiver, "/archives"), st
}

func seedUser(t *testing.T, st *memory.Store, maxConcurrent int) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	if err := st.CreateUser(context.Background(), &models.User{ID: userID, Email: "a@example.com", Quotas: models.Quotas{MaxConcurrentSessions: maxConcurrent}}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return userID
}

func TestCreateAllocatesSessionInCreatedStatus(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 5)

	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive, WorkdirPath: "/work/1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.Status != models.StatusCreated {
		t.Errorf("Status = %v, want CREATED", sess.Status)
	}
}

func TestCreateRejectsOverQuota(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 1)

	if _, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	_, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive})
	if apperr.GetKind(err) != apperr.KindQuotaExceeded {
		t.Fatalf("second Create() error = %v, want KindQuotaExceeded", err)
	}
}

func TestCreateAllowsNewSessionAfterPriorOneArchived(t *testing.T) {
	c, st := newTestCoordinator(&fakeArchiver{})
	userID := seedUser(t, st, 1)

	first, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive, WorkdirPath: "/work/1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := c.Terminate(context.Background(), first.ID, nil); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if _, err := c.Archive(context.Background(), first.ID); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	if _, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive}); err != nil {
		t.Fatalf("second Create() error = %v, want success once prior session is archived", err)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 5)
	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	steps := []struct {
		name string
		fn   func() (*models.Session, error)
		want models.Status
	}{
		{"Connect", func() (*models.Session, error) { return c.Connect(context.Background(), sess.ID) }, models.StatusConnecting},
		{"ToActive", func() (*models.Session, error) {
			return c.transition(context.Background(), sess.ID, models.StatusActive)
		}, models.StatusActive},
		{"StartQuery", func() (*models.Session, error) { return c.StartQuery(context.Background(), sess.ID) }, models.StatusProcessing},
		{"Complete", func() (*models.Session, error) { return c.Complete(context.Background(), sess.ID) }, models.StatusCompleted},
	}
	for _, step := range steps {
		got, err := step.fn()
		if err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		if got.Status != step.want {
			t.Errorf("%s: Status = %v, want %v", step.name, got.Status, step.want)
		}
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 5)
	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// CREATED cannot jump straight to PROCESSING.
	_, err = c.StartQuery(context.Background(), sess.ID)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("StartQuery() error = %v, want KindConflict", err)
	}
}

func TestTerminateCallsInterrupterBestEffort(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 5)
	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	interrupter := &fakeInterrupter{err: errors.New("subprocess already gone")}
	got, err := c.Terminate(context.Background(), sess.ID, interrupter)
	if err != nil {
		t.Fatalf("Terminate() error = %v, want nil even though Interrupt failed", err)
	}
	if !interrupter.called {
		t.Error("Interrupt was not called")
	}
	if got.Status != models.StatusTerminated {
		t.Errorf("Status = %v, want TERMINATED", got.Status)
	}
}

func TestArchiveRequiresTerminalStatus(t *testing.T) {
	c, st := newTestCoordinator(&fakeArchiver{})
	userID := seedUser(t, st, 5)
	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = c.Archive(context.Background(), sess.ID)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("Archive() error = %v, want KindConflict for a non-terminal session", err)
	}
}

func TestArchiveFailureLeavesSessionInPriorTerminalStatus(t *testing.T) {
	archiver := &fakeArchiver{err: errors.New("disk full")}
	c, st := newTestCoordinator(archiver)
	userID := seedUser(t, st, 5)
	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive, WorkdirPath: "/work/1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := c.Terminate(context.Background(), sess.ID, nil); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}

	_, err = c.Archive(context.Background(), sess.ID)
	if err == nil {
		t.Fatal("Archive() error = nil, want non-nil when the archiver fails")
	}

	reloaded, getErr := st.GetSession(context.Background(), sess.ID)
	if getErr != nil {
		t.Fatalf("GetSession() error = %v", getErr)
	}
	if reloaded.Status != models.StatusTerminated {
		t.Errorf("Status = %v, want TERMINATED to be retained after a failed archive", reloaded.Status)
	}
	if reloaded.ArchiveID != nil {
		t.Errorf("ArchiveID = %v, want nil after a failed archive", reloaded.ArchiveID)
	}
}

func TestArchiveSuccessSetsArchiveIDAndStatus(t *testing.T) {
	c, st := newTestCoordinator(&fakeArchiver{})
	userID := seedUser(t, st, 5)
	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive, WorkdirPath: "/work/1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := c.Terminate(context.Background(), sess.ID, nil); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}

	archive, err := c.Archive(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	reloaded, err := st.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if reloaded.Status != models.StatusArchived {
		t.Errorf("Status = %v, want ARCHIVED", reloaded.Status)
	}
	if reloaded.ArchiveID == nil || *reloaded.ArchiveID != archive.ID {
		t.Errorf("ArchiveID = %v, want %v", reloaded.ArchiveID, archive.ID)
	}
}

func TestForkInheritsParentConfiguration(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 5)
	parent, err := c.Create(context.Background(), userID, CreateOptions{
		Mode:           models.ModeInteractive,
		AllowedTools:   []string{"bash", "read_file"},
		PermissionMode: models.PermissionModeAcceptEdits,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	fork, err := c.Fork(context.Background(), parent.ID, "/work/fork", "my-fork", 0)
	if err != nil {
		t.Fatalf("Fork() error = %v", err)
	}
	if fork.Mode != models.ModeForked || fork.ParentSessionID == nil || *fork.ParentSessionID != parent.ID {
		t.Fatalf("fork = %+v, want ModeForked pointing at parent %v", fork, parent.ID)
	}
	if !fork.IsFork() {
		t.Error("IsFork() = false, want true")
	}
	if len(fork.AllowedTools) != 2 || fork.PermissionMode != models.PermissionModeAcceptEdits {
		t.Errorf("fork did not inherit parent configuration: %+v", fork)
	}
	if fork.Name != "my-fork" {
		t.Errorf("Name = %q, want %q", fork.Name, "my-fork")
	}
}

func TestForkCopiesMessagesUpToForkPoint(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 5)
	parent, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for seq := int64(1); seq <= 5; seq++ {
		if err := st.InsertMessage(context.Background(), &models.Message{
			ID:        uuid.New(),
			SessionID: parent.ID,
			Sequence:  seq,
			Direction: models.DirectionUserToAgent,
		}); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}

	fork, err := c.Fork(context.Background(), parent.ID, "/work/fork", "", 3)
	if err != nil {
		t.Fatalf("Fork() error = %v", err)
	}

	msgs, err := st.MessagesBySession(context.Background(), fork.ID, 0, 0)
	if err != nil {
		t.Fatalf("MessagesBySession() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Sequence != int64(i+1) {
			t.Errorf("msgs[%d].Sequence = %d, want %d", i, m.Sequence, i+1)
		}
	}

	parentMsgs, err := st.MessagesBySession(context.Background(), parent.ID, 0, 0)
	if err != nil {
		t.Fatalf("MessagesBySession(parent) error = %v", err)
	}
	if len(parentMsgs) != 5 {
		t.Errorf("parent messages mutated by fork: len = %d, want 5", len(parentMsgs))
	}
}

func TestPermissionContextReflectsSessionMode(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 5)
	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive, PermissionMode: models.PermissionModeAcceptEdits})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	pctx, err := c.PermissionContext(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("PermissionContext() error = %v", err)
	}
	if pctx.PermissionMode != string(models.PermissionModeAcceptEdits) {
		t.Errorf("PermissionMode = %v, want ACCEPT_EDITS", pctx.PermissionMode)
	}
	if !pctx.EditTools["Write"] {
		t.Errorf("EditTools = %v, want Write=true", pctx.EditTools)
	}
}

func TestTransitionToActiveSatisfiesPipelineSessionNotifier(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 5)
	sess, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := c.Connect(context.Background(), sess.ID); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.TransitionToActive(context.Background(), sess.ID); err != nil {
		t.Fatalf("TransitionToActive() error = %v", err)
	}
	reloaded, err := st.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if reloaded.Status != models.StatusActive {
		t.Errorf("Status = %v, want ACTIVE", reloaded.Status)
	}
}

func TestCreateForTaskHonorsSystemTaskBypass(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := uuid.New()
	if err := st.CreateUser(context.Background(), &models.User{
		ID:     userID,
		Email:  "scheduler@example.com",
		Quotas: models.Quotas{MaxConcurrentSessions: 1, SystemTaskBypass: true},
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}

	sess, err := c.CreateForTask(context.Background(), userID, CreateOptions{WorkdirPath: "/work/task"})
	if err != nil {
		t.Fatalf("CreateForTask() error = %v, want bypass to allow it over quota", err)
	}
	if sess.Mode != models.ModeBackground {
		t.Errorf("Mode = %v, want BACKGROUND", sess.Mode)
	}
}

func TestCreateForTaskStillEnforcesQuotaWithoutBypass(t *testing.T) {
	c, st := newTestCoordinator(nil)
	userID := seedUser(t, st, 1)
	if _, err := c.Create(context.Background(), userID, CreateOptions{Mode: models.ModeInteractive}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}

	_, err := c.CreateForTask(context.Background(), userID, CreateOptions{})
	if apperr.GetKind(err) != apperr.KindQuotaExceeded {
		t.Fatalf("CreateForTask() error = %v, want KindQuotaExceeded", err)
	}
}
