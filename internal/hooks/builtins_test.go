package hooks

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

type fakeToolExecutionStore struct {
	upserts []*models.ToolExecution
}

func (s *fakeToolExecutionStore) UpsertToolExecution(_ context.Context, te *models.ToolExecution) error {
	s.upserts = append(s.upserts, te)
	return nil
}

func TestToolTrackingHookUpsertsOnToolUseID(t *testing.T) {
	store := &fakeToolExecutionStore{}
	hook := NewToolTrackingHook(store, 0)

	toolUseID := "tu-1"
	in := Input{
		SessionID: uuid.New(),
		ToolUseID: &toolUseID,
		Data:      map[string]any{"tool_name": "Read"},
	}
	if _, err := hook.Execute(context.Background(), in); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("len(upserts) = %d, want 1", len(store.upserts))
	}
	if store.upserts[0].ToolUseID != toolUseID || store.upserts[0].ToolName != "Read" {
		t.Errorf("upsert = %+v", store.upserts[0])
	}
}

func TestToolTrackingHookSkipsWithoutToolUseID(t *testing.T) {
	store := &fakeToolExecutionStore{}
	hook := NewToolTrackingHook(store, 0)

	if _, err := hook.Execute(context.Background(), Input{SessionID: uuid.New()}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(store.upserts) != 0 {
		t.Errorf("len(upserts) = %d, want 0", len(store.upserts))
	}
}

type fakeMetricsRecorder struct {
	calls []models.HookKind
}

func (r *fakeMetricsRecorder) RecordHookExecution(_ context.Context, _ uuid.UUID, kind models.HookKind) error {
	r.calls = append(r.calls, kind)
	return nil
}

func TestMetricsHookRecordsKind(t *testing.T) {
	recorder := &fakeMetricsRecorder{}
	hook := NewMetricsHook(recorder, models.HookPostToolUse, 0)

	if _, err := hook.Execute(context.Background(), Input{SessionID: uuid.New()}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(recorder.calls) != 1 || recorder.calls[0] != models.HookPostToolUse {
		t.Errorf("calls = %v, want [POST_TOOL_USE]", recorder.calls)
	}
}

type fakeBroadcaster struct {
	events []string
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, _ uuid.UUID, event string, _ map[string]any) error {
	b.events = append(b.events, event)
	return nil
}

func TestNotificationHookBroadcasts(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	hook := NewNotificationHook(broadcaster, models.HookStop, 0)

	if _, err := hook.Execute(context.Background(), Input{SessionID: uuid.New()}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(broadcaster.events) != 1 || broadcaster.events[0] != string(models.HookStop) {
		t.Errorf("events = %v, want [STOP]", broadcaster.events)
	}
}

type fakeMessageStore struct {
	seq      int64
	messages []*models.Message
}

func (s *fakeMessageStore) NextSequence(_ context.Context, _ uuid.UUID) (int64, error) {
	s.seq++
	return s.seq, nil
}

func (s *fakeMessageStore) InsertMessage(_ context.Context, m *models.Message) error {
	s.messages = append(s.messages, m)
	return nil
}

func TestPersistenceHookWritesMessageWhenBlocksPresent(t *testing.T) {
	store := &fakeMessageStore{}
	hook := NewPersistenceHook(store, models.HookStop, 0)

	in := Input{
		SessionID: uuid.New(),
		Data: map[string]any{
			"blocks": []models.ContentBlock{{Type: models.BlockText, Text: "done"}},
		},
	}
	if _, err := hook.Execute(context.Background(), in); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(store.messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(store.messages))
	}
	if store.messages[0].Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", store.messages[0].Sequence)
	}
}

func TestPersistenceHookSkipsWithoutBlocks(t *testing.T) {
	store := &fakeMessageStore{}
	hook := NewPersistenceHook(store, models.HookStop, 0)

	if _, err := hook.Execute(context.Background(), Input{SessionID: uuid.New()}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(store.messages) != 0 {
		t.Errorf("len(messages) = %d, want 0", len(store.messages))
	}
}
