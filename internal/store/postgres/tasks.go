package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/pkg/models"
)

func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, user_id, name, prompt_template, sdk_options, allowed_tools, schedule_cron,
			schedule_enabled, generate_report, report_format, tags, next_fire_at,
			exec_count, success_count, failure_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		t.ID, t.UserID, t.Name, t.PromptTemplate, t.SDKOptions, pq.Array(t.AllowedTools),
		nullString(t.ScheduleCron), t.ScheduleEnabled, t.GenerateReport, string(t.ReportFormat),
		pq.Array(t.Tags), nullTime(t.NextFireAt), t.ExecCount, t.SuccessCount, t.FailureCount,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t *models.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET name=$2, prompt_template=$3, sdk_options=$4, allowed_tools=$5,
			schedule_cron=$6, schedule_enabled=$7, generate_report=$8, report_format=$9,
			tags=$10, next_fire_at=$11, exec_count=$12, success_count=$13, failure_count=$14,
			updated_at=$15
		WHERE id = $1
	`,
		t.ID, t.Name, t.PromptTemplate, t.SDKOptions, pq.Array(t.AllowedTools),
		nullString(t.ScheduleCron), t.ScheduleEnabled, t.GenerateReport, string(t.ReportFormat),
		pq.Array(t.Tags), nullTime(t.NextFireAt), t.ExecCount, t.SuccessCount, t.FailureCount,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update task: %w", err)
	}
	return checkAffected(res, "task")
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t                       models.Task
		reportFormat            string
		scheduleCron            sql.NullString
		allowedTools, tags      pq.StringArray
		nextFireAt              sql.NullTime
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Name, &t.PromptTemplate, &t.SDKOptions, &allowedTools,
		&scheduleCron, &t.ScheduleEnabled, &t.GenerateReport, &reportFormat, &tags,
		&nextFireAt, &t.ExecCount, &t.SuccessCount, &t.FailureCount, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.ReportFormat = models.ReportFormat(reportFormat)
	t.AllowedTools = []string(allowedTools)
	t.Tags = []string(tags)
	t.ScheduleCron = toPtrString(scheduleCron)
	t.NextFireAt = toPtrTime(nextFireAt)
	return &t, nil
}

const taskColumns = `
	id, user_id, name, prompt_template, sdk_options, allowed_tools, schedule_cron,
	schedule_enabled, generate_report, report_format, tags, next_fire_at,
	exec_count, success_count, failure_count, created_at, updated_at`

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT"+taskColumns+" FROM tasks WHERE id = $1", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get task: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete task: %w", err)
	}
	return checkAffected(res, "task")
}

func (s *Store) DueTasks(ctx context.Context, now time.Time) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+taskColumns+`
		FROM tasks WHERE schedule_enabled = true AND next_fire_at IS NOT NULL AND next_fire_at <= $1
		ORDER BY next_fire_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: due tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
