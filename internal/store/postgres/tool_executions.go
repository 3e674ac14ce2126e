package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

func (s *Store) UpsertToolExecution(ctx context.Context, te *models.ToolExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_executions (
			id, session_id, tool_use_id, tool_name, input, output, status, error_message,
			duration_ms, permission_decision, permission_reason, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (session_id, tool_use_id) DO UPDATE SET
			output=$6, status=$7, error_message=$8, duration_ms=$9,
			permission_decision=$10, permission_reason=$11, completed_at=$13
	`,
		te.ID, te.SessionID, te.ToolUseID, te.ToolName, te.Input, nullString(te.Output),
		string(te.Status), nullString(te.ErrorMessage), te.DurationMs,
		string(te.PermissionDecision), nullString(te.PermissionReason), te.StartedAt,
		nullTime(te.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert tool execution: %w", err)
	}
	return nil
}

func (s *Store) ToolExecutionsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ToolExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tool_use_id, tool_name, input, output, status, error_message,
			duration_ms, permission_decision, permission_reason, started_at, completed_at
		FROM tool_executions WHERE session_id = $1 ORDER BY started_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: tool executions by session: %w", err)
	}
	defer rows.Close()

	var out []*models.ToolExecution
	for rows.Next() {
		var (
			te                                    models.ToolExecution
			status, permDecision                  string
			output, errMsg, permReason             sql.NullString
			durationMs                             sql.NullInt64
			completedAt                            sql.NullTime
		)
		if err := rows.Scan(
			&te.ID, &te.SessionID, &te.ToolUseID, &te.ToolName, &te.Input, &output, &status,
			&errMsg, &durationMs, &permDecision, &permReason, &te.StartedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan tool execution: %w", err)
		}
		te.Status = models.ToolExecutionStatus(status)
		te.PermissionDecision = models.PermissionDecisionKind(permDecision)
		te.Output = toPtrString(output)
		te.ErrorMessage = toPtrString(errMsg)
		te.PermissionReason = toPtrString(permReason)
		te.CompletedAt = toPtrTime(completedAt)
		if durationMs.Valid {
			v := durationMs.Int64
			te.DurationMs = &v
		}
		out = append(out, &te)
	}
	return out, rows.Err()
}
