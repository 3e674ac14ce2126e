package postgres

import (
	"context"
	"fmt"

	"github.com/haasonsaas/agentkit/pkg/models"
)

func (s *Store) CreateTaskExecution(ctx context.Context, te *models.TaskExecution) error {
	vars, err := marshalJSON(te.Variables)
	if err != nil {
		return fmt.Errorf("postgres: marshal variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_executions (
			id, task_id, session_id, trigger, variables, status, result, error,
			retry_count, created_at, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		te.ID, te.TaskID, nullUUID(te.SessionID), string(te.Trigger), vars, string(te.Status),
		nullString(te.Result), nullString(te.Error), te.RetryCount, te.CreatedAt,
		nullTime(te.StartedAt), nullTime(te.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: create task execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateTaskExecution(ctx context.Context, te *models.TaskExecution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_executions SET session_id=$2, status=$3, result=$4, error=$5,
			retry_count=$6, started_at=$7, completed_at=$8
		WHERE id = $1
	`,
		te.ID, nullUUID(te.SessionID), string(te.Status), nullString(te.Result), nullString(te.Error),
		te.RetryCount, nullTime(te.StartedAt), nullTime(te.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: update task execution: %w", err)
	}
	return checkAffected(res, "task_execution")
}
