package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/policy"
	"github.com/haasonsaas/agentkit/pkg/models"
	"github.com/haasonsaas/agentkit/pkg/protocol"
)

type fakeStore struct {
	messages       []*models.Message
	toolExecutions []*models.ToolExecution
	metricDeltas   []models.Metrics
	seq            int64
}

func (s *fakeStore) InsertMessage(_ context.Context, m *models.Message) error {
	s.messages = append(s.messages, m)
	return nil
}

func (s *fakeStore) NextSequence(_ context.Context, _ uuid.UUID) (int64, error) {
	s.seq++
	return s.seq, nil
}

func (s *fakeStore) UpsertToolExecution(_ context.Context, te *models.ToolExecution) error {
	for i, existing := range s.toolExecutions {
		if existing.SessionID == te.SessionID && existing.ToolUseID == te.ToolUseID {
			s.toolExecutions[i] = te
			return nil
		}
	}
	s.toolExecutions = append(s.toolExecutions, te)
	return nil
}

func (s *fakeStore) ToolExecutionsBySession(_ context.Context, sessionID uuid.UUID) ([]*models.ToolExecution, error) {
	var out []*models.ToolExecution
	for _, te := range s.toolExecutions {
		if te.SessionID == sessionID {
			out = append(out, te)
		}
	}
	return out, nil
}

func (s *fakeStore) IncrementSessionMetrics(_ context.Context, _ uuid.UUID, delta models.Metrics) error {
	s.metricDeltas = append(s.metricDeltas, delta)
	return nil
}

type fakeHooks struct {
	continueExecution bool
	dispatched        []models.HookKind
}

func (h *fakeHooks) Dispatch(_ context.Context, _ uuid.UUID, kind models.HookKind, _ *string, data map[string]any) (map[string]any, bool, error) {
	h.dispatched = append(h.dispatched, kind)
	return data, h.continueExecution, nil
}

type fakePolicy struct {
	decision policy.Decision
}

func (p *fakePolicy) Evaluate(_ context.Context, _ uuid.UUID, _ string, _ []byte, _ policy.Context) (policy.Decision, error) {
	return p.decision, nil
}

type fakeControl struct {
	responses []protocol.ControlResponse
}

func (c *fakeControl) RespondControl(resp protocol.ControlResponse) error {
	c.responses = append(c.responses, resp)
	return nil
}

type fakeBroadcaster struct {
	events []string
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, _ uuid.UUID, event string, _ map[string]any) error {
	b.events = append(b.events, event)
	return nil
}

func newTestPipeline(store *fakeStore, hooks *fakeHooks, pol *fakePolicy, control *fakeControl, broad *fakeBroadcaster) *Pipeline {
	return New(store, hooks, pol, control, nil, nil, broad)
}

func TestProcessFrameAssistantPersistsMessageAndRunsToolUse(t *testing.T) {
	store := &fakeStore{}
	hooks := &fakeHooks{continueExecution: true}
	pol := &fakePolicy{decision: policy.Decision{Result: policy.Allow, Reason: "ok"}}
	broad := &fakeBroadcaster{}
	p := newTestPipeline(store, hooks, pol, nil, broad)

	content := []protocol.ContentBlock{
		{Type: protocol.BlockTypeToolUse, ID: "tu_1", Name: "bash", Input: json.RawMessage(`{"command":"ls"}`)},
	}
	contentJSON, _ := json.Marshal(content)
	msgJSON, _ := json.Marshal(map[string]json.RawMessage{
		"role":    json.RawMessage(`"assistant"`),
		"content": contentJSON,
	})

	sessionID := uuid.New()
	frame := protocol.Frame{Type: protocol.FrameAssistant, Message: msgJSON}

	turnComplete, err := p.ProcessFrame(context.Background(), sessionID, frame)
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if turnComplete {
		t.Errorf("turnComplete = true, want false for an assistant frame")
	}
	if len(store.messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(store.messages))
	}
	if len(store.toolExecutions) != 1 {
		t.Fatalf("len(toolExecutions) = %d, want 1", len(store.toolExecutions))
	}
	if store.toolExecutions[0].Status != models.ToolExecRunning {
		t.Errorf("toolExecutions[0].Status = %v, want RUNNING", store.toolExecutions[0].Status)
	}
	if len(broad.events) != 1 || broad.events[0] != "assistant" {
		t.Errorf("broad.events = %v, want [assistant]", broad.events)
	}
}

func TestProcessFrameAssistantDeniedByHookSkipsPolicyAndEmitsSyntheticResult(t *testing.T) {
	store := &fakeStore{}
	hooks := &fakeHooks{continueExecution: false}
	pol := &fakePolicy{decision: policy.Decision{Result: policy.Allow}}
	p := newTestPipeline(store, hooks, pol, nil, &fakeBroadcaster{})

	content := []protocol.ContentBlock{
		{Type: protocol.BlockTypeToolUse, ID: "tu_1", Name: "bash", Input: json.RawMessage(`{}`)},
	}
	contentJSON, _ := json.Marshal(content)
	msgJSON, _ := json.Marshal(map[string]json.RawMessage{"content": contentJSON})

	_, err := p.ProcessFrame(context.Background(), uuid.New(), protocol.Frame{Type: protocol.FrameAssistant, Message: msgJSON})
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	if len(store.toolExecutions) != 1 || store.toolExecutions[0].Status != models.ToolExecDenied {
		t.Fatalf("toolExecutions = %+v, want one DENIED row", store.toolExecutions)
	}
	// The assistant message plus the synthetic blocked_by_hook tool result.
	if len(store.messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(store.messages))
	}
	last := store.messages[len(store.messages)-1]
	if last.Blocks[0].Output != "blocked_by_hook" || !last.Blocks[0].IsError {
		t.Errorf("synthetic result = %+v, want blocked_by_hook error block", last.Blocks[0])
	}
}

func TestProcessFrameControlRequestRespondsDenyOnPolicyDeny(t *testing.T) {
	store := &fakeStore{}
	hooks := &fakeHooks{continueExecution: true}
	pol := &fakePolicy{decision: policy.Decision{Result: policy.Deny, Reason: "restricted path"}}
	control := &fakeControl{}
	p := newTestPipeline(store, hooks, pol, control, &fakeBroadcaster{})

	req := protocol.ControlRequest{RequestID: "req_1", ToolName: "write_file", ToolUseID: "tu_9", Input: json.RawMessage(`{"path":"/etc/passwd"}`)}
	reqJSON, _ := json.Marshal(req)

	_, err := p.ProcessFrame(context.Background(), uuid.New(), protocol.Frame{Type: protocol.FrameControlRequest, Request: reqJSON})
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if len(control.responses) != 1 {
		t.Fatalf("len(responses) = %d, want 1", len(control.responses))
	}
	resp := control.responses[0]
	if resp.Decision != "deny" || resp.Reason != "restricted path" {
		t.Errorf("response = %+v, want deny/restricted path", resp)
	}
	if store.toolExecutions[0].Status != models.ToolExecDenied {
		t.Errorf("toolExecutions[0].Status = %v, want DENIED", store.toolExecutions[0].Status)
	}
}

func TestProcessFrameResultRecordsCostAndSignalsTurnComplete(t *testing.T) {
	store := &fakeStore{}
	hooks := &fakeHooks{continueExecution: true}
	broad := &fakeBroadcaster{}
	p := newTestPipeline(store, hooks, &fakePolicy{}, nil, broad)

	frame := protocol.Frame{
		Type: protocol.FrameResult,
		Cost: &protocol.FrameCost{InputTokens: 10, OutputTokens: 20, TotalUSD: 0.05},
	}

	turnComplete, err := p.ProcessFrame(context.Background(), uuid.New(), frame)
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if !turnComplete {
		t.Errorf("turnComplete = false, want true for a result frame")
	}
	if len(store.metricDeltas) != 1 || store.metricDeltas[0].CostUSD != 0.05 {
		t.Fatalf("metricDeltas = %+v, want one entry with CostUSD=0.05", store.metricDeltas)
	}
	if len(broad.events) != 1 || broad.events[0] != "result" {
		t.Errorf("broad.events = %v, want [result]", broad.events)
	}
}

func TestProcessFrameStreamEventPersistsPartialOnBlockStop(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, &fakeHooks{continueExecution: true}, &fakePolicy{}, nil, &fakeBroadcaster{})

	sessionID := uuid.New()
	start := mustEventFrame(t, map[string]any{"type": "content_block_start", "content_block": map[string]any{"type": "text"}})
	delta := mustEventFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "hello"}})
	stop := mustEventFrame(t, map[string]any{"type": "content_block_stop"})

	for _, f := range []protocol.Frame{start, delta, stop} {
		if _, err := p.ProcessFrame(context.Background(), sessionID, f); err != nil {
			t.Fatalf("ProcessFrame() error = %v", err)
		}
	}

	if len(store.messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(store.messages))
	}
	m := store.messages[0]
	if !m.IsPartial || m.Blocks[0].Text != "hello" {
		t.Errorf("message = %+v, want partial with text=hello", m)
	}
}

func mustEventFrame(t *testing.T, event map[string]any) protocol.Frame {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return protocol.Frame{Type: protocol.FrameStreamEvent, Event: data}
}

func TestProcessFrameUserToolResultResolvesExecutionAndFiresPostToolUseHook(t *testing.T) {
	store := &fakeStore{}
	hooks := &fakeHooks{continueExecution: true}
	broad := &fakeBroadcaster{}
	p := newTestPipeline(store, hooks, &fakePolicy{}, nil, broad)
	sessionID := uuid.New()

	store.toolExecutions = append(store.toolExecutions, &models.ToolExecution{
		SessionID: sessionID,
		ToolUseID: "tu_1",
		ToolName:  "bash",
		Status:    models.ToolExecRunning,
	})

	um := protocol.UserMessage{
		Type: "user",
		Message: protocol.UserMessageBody{
			Role:    "user",
			Content: []protocol.ContentBlock{{Type: protocol.BlockTypeToolResult, ToolUseID: "tu_1", Content: "ok"}},
		},
	}
	msgJSON, err := json.Marshal(um)
	if err != nil {
		t.Fatalf("marshal user message: %v", err)
	}

	if _, err := p.ProcessFrame(context.Background(), sessionID, protocol.Frame{Type: protocol.FrameUser, Message: msgJSON}); err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	if len(store.toolExecutions) != 1 {
		t.Fatalf("len(toolExecutions) = %d, want 1", len(store.toolExecutions))
	}
	te := store.toolExecutions[0]
	if te.Status != models.ToolExecSuccess {
		t.Errorf("Status = %v, want SUCCESS", te.Status)
	}
	if te.Output == nil || *te.Output != "ok" {
		t.Errorf("Output = %v, want \"ok\"", te.Output)
	}
	if te.CompletedAt == nil || te.DurationMs == nil {
		t.Error("CompletedAt/DurationMs not set on terminal tool execution")
	}

	found := false
	for _, k := range hooks.dispatched {
		if k == models.HookPostToolUse {
			found = true
		}
	}
	if !found {
		t.Errorf("dispatched = %v, want POST_TOOL_USE included", hooks.dispatched)
	}
}

func TestProcessFrameUserToolResultErrorMarksExecutionError(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, &fakeHooks{continueExecution: true}, &fakePolicy{}, nil, &fakeBroadcaster{})
	sessionID := uuid.New()

	store.toolExecutions = append(store.toolExecutions, &models.ToolExecution{
		SessionID: sessionID,
		ToolUseID: "tu_2",
		ToolName:  "bash",
		Status:    models.ToolExecRunning,
	})

	um := protocol.UserMessage{
		Type: "user",
		Message: protocol.UserMessageBody{
			Role:    "user",
			Content: []protocol.ContentBlock{{Type: protocol.BlockTypeToolResult, ToolUseID: "tu_2", Content: "boom", IsError: true}},
		},
	}
	msgJSON, err := json.Marshal(um)
	if err != nil {
		t.Fatalf("marshal user message: %v", err)
	}

	if _, err := p.ProcessFrame(context.Background(), sessionID, protocol.Frame{Type: protocol.FrameUser, Message: msgJSON}); err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	te := store.toolExecutions[0]
	if te.Status != models.ToolExecError {
		t.Errorf("Status = %v, want ERROR", te.Status)
	}
	if te.ErrorMessage == nil || *te.ErrorMessage != "boom" {
		t.Errorf("ErrorMessage = %v, want \"boom\"", te.ErrorMessage)
	}
}

func TestProcessFrameUnknownTypeReturnsError(t *testing.T) {
	p := newTestPipeline(&fakeStore{}, &fakeHooks{}, &fakePolicy{}, nil, &fakeBroadcaster{})
	_, err := p.ProcessFrame(context.Background(), uuid.New(), protocol.Frame{Type: "bogus"})
	if err == nil {
		t.Fatal("ProcessFrame() error = nil, want non-nil for unknown frame type")
	}
}
