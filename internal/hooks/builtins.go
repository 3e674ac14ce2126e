package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// ToolExecutionStore is the narrow dependency NewToolTrackingHook
// needs, satisfied by internal/store.Store.
type ToolExecutionStore interface {
	UpsertToolExecution(ctx context.Context, te *models.ToolExecution) error
}

// MetricsRecorder is the narrow dependency NewMetricsHook needs. The
// Cost & Metrics Accountant (internal/usage.Accountant) satisfies this;
// its RecordHookExecution adds one to the session's hook-execution
// counter and the hook metric, separately from the counters Dispatcher
// increments for every hook it runs.
type MetricsRecorder interface {
	RecordHookExecution(ctx context.Context, sessionID uuid.UUID, kind models.HookKind) error
}

// Broadcaster is the narrow dependency NewNotificationHook needs,
// satisfied by internal/app.Broadcaster.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any) error
}

// MessageStore is the narrow dependency NewPersistenceHook needs.
type MessageStore interface {
	NextSequence(ctx context.Context, sessionID uuid.UUID) (int64, error)
	InsertMessage(ctx context.Context, m *models.Message) error
}

// NewAuditHook logs every invocation at info level with its kind,
// session id and tool use id — the teacher's AUDIT hook
// generalized from event logging to HookExecution logging (persistence
// of the HookExecution row itself is Dispatcher's job, not this
// hook's; this hook is the human-facing log line).
func NewAuditHook(logger *slog.Logger, kind models.HookKind, priority int) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return NewFunc("audit", kind, priority, func(_ context.Context, in Input) (Output, error) {
		logger.Info("hook fired",
			"kind", kind,
			"session_id", in.SessionID,
			"tool_use_id", in.ToolUseID,
		)
		return Output{Data: in.Data, ContinueExecution: true}, nil
	})
}

// NewMetricsHook reports every invocation of kind to tracker's
// RecordHookExecution; it records no cost or token usage.
func NewMetricsHook(tracker MetricsRecorder, kind models.HookKind, priority int) Hook {
	return NewFunc("metrics", kind, priority, func(ctx context.Context, in Input) (Output, error) {
		if tracker != nil {
			if err := tracker.RecordHookExecution(ctx, in.SessionID, kind); err != nil {
				return Output{}, err
			}
		}
		return Output{Data: in.Data, ContinueExecution: true}, nil
	})
}

// NewToolTrackingHook ensures a ToolExecution row exists for the tool
// call's tool_use_id, reading tool_name/input out of in.Data.
func NewToolTrackingHook(store ToolExecutionStore, priority int) Hook {
	return NewFunc("tool_tracking", models.HookPreToolUse, priority, func(ctx context.Context, in Input) (Output, error) {
		if in.ToolUseID == nil || store == nil {
			return Output{Data: in.Data, ContinueExecution: true}, nil
		}

		toolName, _ := in.Data["tool_name"].(string)
		var input []byte
		if raw, ok := in.Data["input"].([]byte); ok {
			input = raw
		}

		if err := store.UpsertToolExecution(ctx, &models.ToolExecution{
			ID:                 uuid.New(),
			SessionID:          in.SessionID,
			ToolUseID:          *in.ToolUseID,
			ToolName:           toolName,
			Input:              input,
			Status:             models.ToolExecPending,
			PermissionDecision: models.PermissionNotChecked,
			StartedAt:          startedAtFrom(in.Data),
		}); err != nil {
			return Output{}, err
		}
		return Output{Data: in.Data, ContinueExecution: true}, nil
	})
}

// NewNotificationHook emits a transport-facing event for kind, letting
// subscribed clients observe hook lifecycle without polling.
func NewNotificationHook(broadcaster Broadcaster, kind models.HookKind, priority int) Hook {
	return NewFunc("notification", kind, priority, func(ctx context.Context, in Input) (Output, error) {
		if broadcaster != nil {
			if err := broadcaster.Broadcast(ctx, in.SessionID, string(kind), in.Data); err != nil {
				return Output{}, err
			}
		}
		return Output{Data: in.Data, ContinueExecution: true}, nil
	})
}

// NewPersistenceHook is the belt-and-suspenders write spec.md names:
// an explicit Message row for kinds whose primary persistence happens
// elsewhere (e.g. a STOP hook double-checking the turn's final
// message landed), built from whatever blocks the caller staged in
// in.Data["blocks"].
func NewPersistenceHook(store MessageStore, kind models.HookKind, priority int) Hook {
	return NewFunc("persistence", kind, priority, func(ctx context.Context, in Input) (Output, error) {
		blocks, ok := in.Data["blocks"].([]models.ContentBlock)
		if !ok || len(blocks) == 0 || store == nil {
			return Output{Data: in.Data, ContinueExecution: true}, nil
		}

		seq, err := store.NextSequence(ctx, in.SessionID)
		if err != nil {
			return Output{}, err
		}
		direction, _ := in.Data["direction"].(models.Direction)
		if direction == "" {
			direction = models.DirectionAgentToUser
		}

		if err := store.InsertMessage(ctx, &models.Message{
			ID:        uuid.New(),
			SessionID: in.SessionID,
			Sequence:  seq,
			Direction: direction,
			Blocks:    blocks,
		}); err != nil {
			return Output{}, err
		}
		return Output{Data: in.Data, ContinueExecution: true}, nil
	})
}

func startedAtFrom(data map[string]any) (t time.Time) {
	if v, ok := data["started_at"].(time.Time); ok {
		return v
	}
	return time.Now()
}
