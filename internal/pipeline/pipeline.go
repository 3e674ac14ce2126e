package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/policy"
	"github.com/haasonsaas/agentkit/pkg/models"
	"github.com/haasonsaas/agentkit/pkg/protocol"
)

// Pipeline implements the 6-step per-Frame processing described for
// the Message Pipeline: parse, persist, pre-tool-use hooks + policy,
// post-tool-use hooks, end-of-turn bookkeeping, broadcast.
type Pipeline struct {
	store    Store
	hooks    HookDispatcher
	policies PolicyEvaluator
	control  ControlResponder
	sessions SessionInfo
	notifier SessionNotifier
	broad    Broadcaster

	mu      sync.Mutex
	streams map[uuid.UUID]*streamState
}

type streamState struct {
	block         *models.ContentBlock
	lastPartialID *uuid.UUID
}

// New builds a Pipeline. control may be nil for a subprocess invoked
// without --permission-prompt-tool stdio control_request support.
func New(store Store, hooks HookDispatcher, policies PolicyEvaluator, control ControlResponder, sessions SessionInfo, notifier SessionNotifier, broad Broadcaster) *Pipeline {
	return &Pipeline{
		store:    store,
		hooks:    hooks,
		policies: policies,
		control:  control,
		sessions: sessions,
		notifier: notifier,
		broad:    broad,
		streams:  make(map[uuid.UUID]*streamState),
	}
}

// ProcessFrame applies one Frame's effects in order, per spec.
// turnComplete reports whether f was the ResultMessage ending the
// turn — the caller's read loop should stop draining after this.
func (p *Pipeline) ProcessFrame(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) (turnComplete bool, err error) {
	switch f.Type {
	case protocol.FrameSystem:
		return false, p.broadcast(ctx, sessionID, "system", map[string]any{"subtype": f.Subtype})

	case protocol.FrameAssistant:
		return false, p.handleAssistant(ctx, sessionID, f)

	case protocol.FrameUser:
		return false, p.handleUser(ctx, sessionID, f)

	case protocol.FrameStreamEvent:
		return false, p.handleStreamEvent(ctx, sessionID, f)

	case protocol.FrameControlRequest:
		return false, p.handleControlRequest(ctx, sessionID, f)

	case protocol.FrameResult:
		return true, p.handleResult(ctx, sessionID, f)

	default:
		return false, fmt.Errorf("pipeline: unknown frame type %q", f.Type)
	}
}

func (p *Pipeline) handleAssistant(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) error {
	var am protocol.AssistantMessage
	if err := json.Unmarshal(f.Message, &am); err != nil {
		return fmt.Errorf("pipeline: decode assistant message: %w", err)
	}

	msg, err := p.persist(ctx, sessionID, models.DirectionAgentToUser, blocksFromContent(am.Content), am.Model, false)
	if err != nil {
		return err
	}

	for _, cb := range am.Content {
		if cb.Type != protocol.BlockTypeToolUse {
			continue
		}
		toolUseID := cb.ID
		decision, continued, err := p.evaluateToolUse(ctx, sessionID, &toolUseID, cb.Name, cb.Input)
		if err != nil {
			return err
		}
		if !continued {
			if _, err := p.persist(ctx, sessionID, models.DirectionUserToAgent, []models.ContentBlock{{
				Type:      models.BlockToolResult,
				ToolUseID: toolUseID,
				Output:    "blocked_by_hook",
				IsError:   true,
			}}, "", false); err != nil {
				return err
			}
			continue
		}
		if decision.Result == policy.Deny {
			if _, err := p.persist(ctx, sessionID, models.DirectionUserToAgent, []models.ContentBlock{{
				Type:      models.BlockToolResult,
				ToolUseID: toolUseID,
				Output:    decision.Reason,
				IsError:   true,
			}}, "", false); err != nil {
				return err
			}
		}
	}

	return p.broadcast(ctx, sessionID, "assistant", map[string]any{"message_id": msg.ID})
}

func (p *Pipeline) handleUser(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) error {
	var um protocol.UserMessage
	if err := json.Unmarshal(f.Message, &um); err != nil {
		return fmt.Errorf("pipeline: decode user message: %w", err)
	}
	blocks := blocksFromContent(um.Message.Content)
	if _, err := p.persist(ctx, sessionID, models.DirectionUserToAgent, blocks, "", false); err != nil {
		return err
	}

	for _, b := range blocks {
		if b.Type != models.BlockToolResult {
			continue
		}
		if err := p.handleToolResult(ctx, sessionID, b); err != nil {
			return err
		}
	}
	return nil
}

// handleToolResult resolves the ToolExecution a TOOL_RESULT content
// block answers by tool_use_id, moves it to its terminal SUCCESS/ERROR
// status, and fires POST_TOOL_USE hooks.
func (p *Pipeline) handleToolResult(ctx context.Context, sessionID uuid.UUID, b models.ContentBlock) error {
	te, err := p.findToolExecution(ctx, sessionID, b.ToolUseID)
	if err != nil {
		return err
	}
	if te == nil {
		return nil
	}

	completed := time.Now()
	durationMs := completed.Sub(te.StartedAt).Milliseconds()
	te.CompletedAt = &completed
	te.DurationMs = &durationMs
	if b.IsError {
		te.Status = models.ToolExecError
		te.ErrorMessage = &b.Output
	} else {
		te.Status = models.ToolExecSuccess
		te.Output = &b.Output
	}
	if err := p.store.UpsertToolExecution(ctx, te); err != nil {
		return fmt.Errorf("pipeline: update tool execution: %w", err)
	}

	if p.hooks != nil {
		data := map[string]any{"tool_name": te.ToolName, "is_error": b.IsError, "output": b.Output}
		if _, _, err := p.hooks.Dispatch(ctx, sessionID, models.HookPostToolUse, &b.ToolUseID, data); err != nil {
			return fmt.Errorf("pipeline: dispatch post_tool_use hooks: %w", err)
		}
	}

	return p.broadcast(ctx, sessionID, "tool_result", map[string]any{"tool_use_id": b.ToolUseID, "status": string(te.Status)})
}

func (p *Pipeline) findToolExecution(ctx context.Context, sessionID uuid.UUID, toolUseID string) (*models.ToolExecution, error) {
	execs, err := p.store.ToolExecutionsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load tool executions: %w", err)
	}
	for _, te := range execs {
		if te.ToolUseID == toolUseID {
			return te, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) handleControlRequest(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) error {
	var req protocol.ControlRequest
	if err := json.Unmarshal(f.Request, &req); err != nil {
		return fmt.Errorf("pipeline: decode control request: %w", err)
	}

	toolUseID := req.ToolUseID
	decision, continued, err := p.evaluateToolUse(ctx, sessionID, &toolUseID, req.ToolName, req.Input)
	if err != nil {
		return err
	}

	resp := protocol.ControlResponse{Type: "control_response", RequestID: req.RequestID}
	switch {
	case !continued:
		resp.Decision = "deny"
		resp.Reason = "blocked_by_hook"
	case decision.Result == policy.Deny:
		resp.Decision = "deny"
		resp.Reason = decision.Reason
	default:
		resp.Decision = "allow"
	}

	if p.control == nil {
		return nil
	}
	return p.control.RespondControl(resp)
}

func (p *Pipeline) handleResult(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) error {
	if f.Cost != nil {
		delta := models.Metrics{
			TokensIn:         f.Cost.InputTokens,
			TokensOut:        f.Cost.OutputTokens,
			TokensCacheRead:  f.Cost.CacheReadTokens,
			TokensCacheWrite: f.Cost.CacheWriteTokens,
			CostUSD:          f.Cost.TotalUSD,
		}
		if err := p.store.IncrementSessionMetrics(ctx, sessionID, delta); err != nil {
			return fmt.Errorf("pipeline: record turn cost: %w", err)
		}
	}

	if p.hooks != nil {
		if _, _, err := p.hooks.Dispatch(ctx, sessionID, models.HookStop, nil, map[string]any{"is_error": f.IsError}); err != nil {
			return fmt.Errorf("pipeline: dispatch stop hooks: %w", err)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.TransitionToActive(ctx, sessionID); err != nil {
			return fmt.Errorf("pipeline: transition session active: %w", err)
		}
	}

	p.mu.Lock()
	delete(p.streams, sessionID)
	p.mu.Unlock()

	return p.broadcast(ctx, sessionID, "result", map[string]any{"is_error": f.IsError, "result": f.Result})
}

// innerStreamEvent mirrors the Claude-CLI wrapper reference's
// content_block_start/_delta/_stop shape for stream_event frames.
type innerStreamEvent struct {
	Type         string          `json:"type"`
	ContentBlock json.RawMessage `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`
}

func (p *Pipeline) handleStreamEvent(ctx context.Context, sessionID uuid.UUID, f protocol.Frame) error {
	var inner innerStreamEvent
	if err := json.Unmarshal(f.Event, &inner); err != nil {
		return fmt.Errorf("pipeline: decode stream event: %w", err)
	}

	p.mu.Lock()
	st, ok := p.streams[sessionID]
	if !ok {
		st = &streamState{}
		p.streams[sessionID] = st
	}
	p.mu.Unlock()

	switch inner.Type {
	case "content_block_start":
		var cb struct {
			Type string `json:"type"`
			ID   string `json:"id,omitempty"`
			Name string `json:"name,omitempty"`
		}
		if err := json.Unmarshal(inner.ContentBlock, &cb); err != nil {
			return nil
		}
		switch cb.Type {
		case "text":
			st.block = &models.ContentBlock{Type: models.BlockText}
		case "tool_use":
			st.block = &models.ContentBlock{Type: models.BlockToolUse, ToolUseID: cb.ID, ToolName: cb.Name}
		}
		return nil

	case "content_block_delta":
		if st.block == nil {
			return nil
		}
		var d struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		}
		if err := json.Unmarshal(inner.Delta, &d); err != nil {
			return nil
		}
		if d.Type == "text_delta" {
			st.block.Text += d.Text
		}
		return nil

	case "content_block_stop":
		if st.block == nil {
			return nil
		}
		msg, err := p.persist(ctx, sessionID, models.DirectionAgentToUser, []models.ContentBlock{*st.block}, "", true)
		if err != nil {
			return err
		}
		st.lastPartialID = &msg.ID
		st.block = nil
		return p.broadcast(ctx, sessionID, "stream_delta", map[string]any{"message_id": msg.ID})

	default:
		return nil
	}
}

func (p *Pipeline) persist(ctx context.Context, sessionID uuid.UUID, dir models.Direction, blocks []models.ContentBlock, model string, isPartial bool) (*models.Message, error) {
	seq, err := p.store.NextSequence(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: allocate sequence: %w", err)
	}

	msg := &models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Sequence:  seq,
		Direction: dir,
		Blocks:    blocks,
		Model:     model,
		IsPartial: isPartial,
		CreatedAt: time.Now(),
	}

	if !isPartial {
		p.mu.Lock()
		if st, ok := p.streams[sessionID]; ok && st.lastPartialID != nil {
			msg.ParentMessageID = st.lastPartialID
			st.lastPartialID = nil
		}
		p.mu.Unlock()
	}

	if err := p.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("pipeline: persist message: %w", err)
	}
	return msg, nil
}

// evaluateToolUse runs the shared PRE_TOOL_USE-hook + policy-evaluate
// + ToolExecution-upsert sequence used by both an AssistantMessage's
// tool_use content block and an independent control_request frame for
// the same tool call.
func (p *Pipeline) evaluateToolUse(ctx context.Context, sessionID uuid.UUID, toolUseID *string, toolName string, input []byte) (decision policy.Decision, continued bool, err error) {
	data := map[string]any{"tool_name": toolName, "input": json.RawMessage(input)}
	if p.hooks != nil {
		out, cont, derr := p.hooks.Dispatch(ctx, sessionID, models.HookPreToolUse, toolUseID, data)
		if derr != nil {
			return policy.Decision{}, false, fmt.Errorf("pipeline: dispatch pre_tool_use hooks: %w", derr)
		}
		data = out
		if !cont {
			if err := p.upsertToolExecution(ctx, sessionID, toolUseID, toolName, input, models.ToolExecDenied, models.PermissionNotChecked, "blocked_by_hook"); err != nil {
				return policy.Decision{}, false, err
			}
			return policy.Decision{}, false, nil
		}
	}

	pctx, err := p.permissionContext(ctx, sessionID)
	if err != nil {
		return policy.Decision{}, false, err
	}

	var d policy.Decision
	if p.policies != nil {
		d, err = p.policies.Evaluate(ctx, sessionID, toolName, input, pctx)
		if err != nil {
			return policy.Decision{}, false, fmt.Errorf("pipeline: evaluate policy: %w", err)
		}
	}

	status, permKind := resolveStatus(d)
	if err := p.upsertToolExecution(ctx, sessionID, toolUseID, toolName, input, status, permKind, d.Reason); err != nil {
		return policy.Decision{}, false, err
	}
	return d, true, nil
}

func resolveStatus(d policy.Decision) (models.ToolExecutionStatus, models.PermissionDecisionKind) {
	switch d.Result {
	case policy.Deny:
		return models.ToolExecDenied, models.PermissionDeny
	case policy.Allow:
		return models.ToolExecRunning, models.PermissionAllow
	default:
		return models.ToolExecRunning, models.PermissionNotChecked
	}
}

func (p *Pipeline) upsertToolExecution(ctx context.Context, sessionID uuid.UUID, toolUseID *string, toolName string, input []byte, status models.ToolExecutionStatus, permKind models.PermissionDecisionKind, reason string) error {
	if toolUseID == nil {
		return nil
	}
	te := &models.ToolExecution{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		ToolUseID:          *toolUseID,
		ToolName:           toolName,
		Input:              input,
		Status:             status,
		PermissionDecision: permKind,
		StartedAt:          time.Now(),
	}
	if reason != "" {
		te.PermissionReason = &reason
	}
	return p.store.UpsertToolExecution(ctx, te)
}

func (p *Pipeline) permissionContext(ctx context.Context, sessionID uuid.UUID) (policy.Context, error) {
	if p.sessions == nil {
		return policy.Context{}, nil
	}
	c, err := p.sessions.PermissionContext(ctx, sessionID)
	if err != nil {
		return policy.Context{}, fmt.Errorf("pipeline: load permission context: %w", err)
	}
	return c, nil
}

func blocksFromContent(blocks []protocol.ContentBlock) []models.ContentBlock {
	out := make([]models.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		mb := models.ContentBlock{
			Text:      b.Text,
			Signature: b.Signature,
			ToolUseID: b.ID,
			ToolName:  b.Name,
			InputJSON: b.Input,
			Output:    b.Content,
			IsError:   b.IsError,
		}
		switch b.Type {
		case protocol.BlockTypeText:
			mb.Type = models.BlockText
		case protocol.BlockTypeToolUse:
			mb.Type = models.BlockToolUse
		case protocol.BlockTypeToolResult:
			mb.Type = models.BlockToolResult
			mb.ToolUseID = b.ToolUseID
		case protocol.BlockTypeThinking:
			mb.Type = models.BlockThinking
		}
		out = append(out, mb)
	}
	return out
}

func (p *Pipeline) broadcast(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any) error {
	if p.broad == nil {
		return nil
	}
	return p.broad.Broadcast(ctx, sessionID, event, payload)
}
