package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

func (s *Store) InsertMetricsSnapshot(ctx context.Context, snap *models.SessionMetricsSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_metrics_snapshots (
			id, session_id, total_messages, total_tool_calls, total_hook_executions,
			total_permission_checks, total_errors, total_retries, cost_usd,
			tokens_in, tokens_out, tokens_cache_write, tokens_cache_read, duration_ms, taken_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		snap.ID, snap.SessionID, snap.Metrics.TotalMessages, snap.Metrics.TotalToolCalls,
		snap.Metrics.TotalHookExecutions, snap.Metrics.TotalPermissionChecks, snap.Metrics.TotalErrors,
		snap.Metrics.TotalRetries, snap.Metrics.CostUSD, snap.Metrics.TokensIn, snap.Metrics.TokensOut,
		snap.Metrics.TokensCacheWrite, snap.Metrics.TokensCacheRead, snap.Metrics.DurationMs, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert metrics snapshot: %w", err)
	}
	return nil
}

func (s *Store) MetricsSnapshotsBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.SessionMetricsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, total_messages, total_tool_calls, total_hook_executions,
			total_permission_checks, total_errors, total_retries, cost_usd,
			tokens_in, tokens_out, tokens_cache_write, tokens_cache_read, duration_ms, taken_at
		FROM session_metrics_snapshots WHERE session_id = $1 ORDER BY taken_at ASC LIMIT $2
	`, sessionID, nullLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: metrics snapshots by session: %w", err)
	}
	defer rows.Close()

	var out []*models.SessionMetricsSnapshot
	for rows.Next() {
		var snap models.SessionMetricsSnapshot
		if err := rows.Scan(
			&snap.ID, &snap.SessionID, &snap.Metrics.TotalMessages, &snap.Metrics.TotalToolCalls,
			&snap.Metrics.TotalHookExecutions, &snap.Metrics.TotalPermissionChecks, &snap.Metrics.TotalErrors,
			&snap.Metrics.TotalRetries, &snap.Metrics.CostUSD, &snap.Metrics.TokensIn, &snap.Metrics.TokensOut,
			&snap.Metrics.TokensCacheWrite, &snap.Metrics.TokensCacheRead, &snap.Metrics.DurationMs, &snap.TakenAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan metrics snapshot: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// nullLimit maps a non-positive limit to a value PostgreSQL's LIMIT
// clause treats as unbounded.
func nullLimit(limit int) int64 {
	if limit <= 0 {
		return 1<<62 - 1
	}
	return int64(limit)
}
