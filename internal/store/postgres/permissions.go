package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

func (s *Store) InsertPermissionDecision(ctx context.Context, pd *models.PermissionDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_decisions (
			id, session_id, tool_name, input_snapshot, decision, policy_name, reason,
			interrupted, decided_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		pd.ID, pd.SessionID, pd.ToolName, pd.InputSnapshot, string(pd.Decision),
		nullString(pd.PolicyName), nullString(pd.Reason), pd.Interrupted, pd.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert permission decision: %w", err)
	}
	return nil
}

func (s *Store) PermissionsBySession(ctx context.Context, sessionID uuid.UUID, result *models.DecisionResult) ([]*models.PermissionDecision, error) {
	query := `
		SELECT id, session_id, tool_name, input_snapshot, decision, policy_name, reason,
			interrupted, decided_at
		FROM permission_decisions WHERE session_id = $1`
	args := []any{sessionID}
	if result != nil {
		args = append(args, string(*result))
		query += fmt.Sprintf(" AND decision = $%d", len(args))
	}
	query += " ORDER BY decided_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: permissions by session: %w", err)
	}
	defer rows.Close()

	var out []*models.PermissionDecision
	for rows.Next() {
		var (
			pd                     models.PermissionDecision
			decision               string
			policyName, reason     sql.NullString
		)
		if err := rows.Scan(
			&pd.ID, &pd.SessionID, &pd.ToolName, &pd.InputSnapshot, &decision, &policyName,
			&reason, &pd.Interrupted, &pd.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan permission decision: %w", err)
		}
		pd.Decision = models.DecisionResult(decision)
		pd.PolicyName = toPtrString(policyName)
		pd.Reason = toPtrString(reason)
		out = append(out, &pd)
	}
	return out, rows.Err()
}
