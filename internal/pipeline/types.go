// Package pipeline is the Message Pipeline (C6): it consumes Frames
// from an agent client's Receive() channel and, per Frame, persists
// messages, runs hooks and policy checks around tool use, updates
// session metrics, and broadcasts to any transport subscriber. It is
// grounded in the Claude-CLI wrapper reference's read-loop switch over
// stream_event/content_block_delta shapes for StreamEvent handling.
package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/hooks"
	"github.com/haasonsaas/agentkit/internal/policy"
	"github.com/haasonsaas/agentkit/pkg/models"
	"github.com/haasonsaas/agentkit/pkg/protocol"
)

// Store is the persistence surface the Pipeline needs, satisfied
// directly by internal/store.Store.
type Store interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	NextSequence(ctx context.Context, sessionID uuid.UUID) (int64, error)
	UpsertToolExecution(ctx context.Context, te *models.ToolExecution) error
	ToolExecutionsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ToolExecution, error)
	IncrementSessionMetrics(ctx context.Context, sessionID uuid.UUID, delta models.Metrics) error
}

// HookDispatcher is the narrow slice of hooks.Dispatcher the Pipeline
// needs, satisfied directly by *hooks.Dispatcher.
type HookDispatcher interface {
	Dispatch(ctx context.Context, sessionID uuid.UUID, kind models.HookKind, toolUseID *string, data map[string]any) (map[string]any, bool, error)
}

// PolicyEvaluator is the narrow slice of policy.Engine the Pipeline
// needs, satisfied directly by *policy.Engine.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, sessionID uuid.UUID, tool string, input []byte, pctx policy.Context) (policy.Decision, error)
}

// ControlResponder answers a pending control_request frame, satisfied
// directly by *agentclient.Client.
type ControlResponder interface {
	RespondControl(resp protocol.ControlResponse) error
}

// SessionInfo supplies the session-scoped facts a policy evaluation
// needs, satisfied later by internal/session.Coordinator.
type SessionInfo interface {
	PermissionContext(ctx context.Context, sessionID uuid.UUID) (policy.Context, error)
}

// SessionNotifier advances session lifecycle state on turn completion,
// satisfied later by internal/session.Coordinator.
type SessionNotifier interface {
	TransitionToActive(ctx context.Context, sessionID uuid.UUID) error
}

// Broadcaster publishes one pipeline step's effect to any subscribed
// transport (e.g. the WebSocket stream handler).
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any) error
}
