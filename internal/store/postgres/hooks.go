package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

func (s *Store) InsertHookExecution(ctx context.Context, he *models.HookExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hook_executions (
			id, session_id, hook_kind, tool_use_id, input_snapshot, output_snapshot,
			continue_execution, duration_ms, executed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		he.ID, he.SessionID, string(he.HookKind), nullString(he.ToolUseID), he.InputSnapshot,
		he.OutputSnapshot, he.ContinueExecution, he.DurationMs, he.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert hook execution: %w", err)
	}
	return nil
}

func (s *Store) HooksBySession(ctx context.Context, sessionID uuid.UUID, kind *models.HookKind) ([]*models.HookExecution, error) {
	query := `
		SELECT id, session_id, hook_kind, tool_use_id, input_snapshot, output_snapshot,
			continue_execution, duration_ms, executed_at
		FROM hook_executions WHERE session_id = $1`
	args := []any{sessionID}
	if kind != nil {
		args = append(args, string(*kind))
		query += fmt.Sprintf(" AND hook_kind = $%d", len(args))
	}
	query += " ORDER BY executed_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: hooks by session: %w", err)
	}
	defer rows.Close()

	var out []*models.HookExecution
	for rows.Next() {
		var (
			he        models.HookExecution
			hookKind  string
			toolUseID sql.NullString
		)
		if err := rows.Scan(
			&he.ID, &he.SessionID, &hookKind, &toolUseID, &he.InputSnapshot, &he.OutputSnapshot,
			&he.ContinueExecution, &he.DurationMs, &he.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan hook execution: %w", err)
		}
		he.HookKind = models.HookKind(hookKind)
		he.ToolUseID = toPtrString(toolUseID)
		out = append(out, &he)
	}
	return out, rows.Err()
}
