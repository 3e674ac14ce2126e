package postgres

import (
	"context"
	"fmt"
)

// schemaDDL is applied by EnsureSchema on startup. agentkit has no
// online schema-migration tooling (spec.md's transport/auth non-goals
// exclude operational tooling beyond the service itself); this is the
// one bootstrapping statement set, idempotent via IF NOT EXISTS.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	max_concurrent_sessions INT NOT NULL DEFAULT 0,
	monthly_budget_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	workdir_path TEXT NOT NULL,
	parent_session_id UUID REFERENCES sessions(id),
	sdk_options JSONB NOT NULL DEFAULT '{}',
	allowed_tools TEXT[] NOT NULL DEFAULT '{}',
	permission_mode TEXT NOT NULL,
	max_retries INT NOT NULL DEFAULT 0,
	retry_delay_ms INT NOT NULL DEFAULT 0,
	timeout_ms INT NOT NULL DEFAULT 0,
	include_partial_messages BOOLEAN NOT NULL DEFAULT FALSE,
	total_messages BIGINT NOT NULL DEFAULT 0,
	total_tool_calls BIGINT NOT NULL DEFAULT 0,
	total_hook_executions BIGINT NOT NULL DEFAULT 0,
	total_permission_checks BIGINT NOT NULL DEFAULT 0,
	total_errors BIGINT NOT NULL DEFAULT 0,
	total_retries BIGINT NOT NULL DEFAULT 0,
	cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	tokens_in BIGINT NOT NULL DEFAULT 0,
	tokens_out BIGINT NOT NULL DEFAULT 0,
	tokens_cache_write BIGINT NOT NULL DEFAULT 0,
	tokens_cache_read BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL,
	archive_id UUID
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_session_id);

CREATE TABLE IF NOT EXISTS session_sequences (
	session_id UUID PRIMARY KEY,
	next_seq BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	sequence BIGINT NOT NULL,
	direction TEXT NOT NULL,
	blocks JSONB NOT NULL DEFAULT '[]',
	model TEXT NOT NULL DEFAULT '',
	tokens_in BIGINT,
	tokens_out BIGINT,
	cost_usd DOUBLE PRECISION,
	is_partial BOOLEAN NOT NULL DEFAULT FALSE,
	parent_message_id UUID,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, sequence)
);

CREATE TABLE IF NOT EXISTS tool_executions (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	tool_use_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	input BYTEA,
	output TEXT,
	status TEXT NOT NULL,
	error_message TEXT,
	duration_ms BIGINT,
	permission_decision TEXT NOT NULL,
	permission_reason TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	UNIQUE (session_id, tool_use_id)
);

CREATE TABLE IF NOT EXISTS hook_executions (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	hook_kind TEXT NOT NULL,
	tool_use_id TEXT,
	input_snapshot JSONB,
	output_snapshot JSONB,
	continue_execution BOOLEAN NOT NULL DEFAULT TRUE,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	executed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hooks_session ON hook_executions(session_id);

CREATE TABLE IF NOT EXISTS permission_decisions (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	tool_name TEXT NOT NULL,
	input_snapshot JSONB,
	decision TEXT NOT NULL,
	policy_name TEXT,
	reason TEXT,
	interrupted BOOLEAN NOT NULL DEFAULT FALSE,
	decided_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_permissions_session ON permission_decisions(session_id);

CREATE TABLE IF NOT EXISTS archives (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	path TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	compression TEXT NOT NULL,
	manifest JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	archived_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_archives_status ON archives(status) WHERE status IN ('PENDING', 'IN_PROGRESS');

CREATE TABLE IF NOT EXISTS session_metrics_snapshots (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	total_messages BIGINT NOT NULL DEFAULT 0,
	total_tool_calls BIGINT NOT NULL DEFAULT 0,
	total_hook_executions BIGINT NOT NULL DEFAULT 0,
	total_permission_checks BIGINT NOT NULL DEFAULT 0,
	total_errors BIGINT NOT NULL DEFAULT 0,
	total_retries BIGINT NOT NULL DEFAULT 0,
	cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	tokens_in BIGINT NOT NULL DEFAULT 0,
	tokens_out BIGINT NOT NULL DEFAULT 0,
	tokens_cache_write BIGINT NOT NULL DEFAULT 0,
	tokens_cache_read BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	taken_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_snapshots_session ON session_metrics_snapshots(session_id, taken_at);

CREATE TABLE IF NOT EXISTS tasks (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	name TEXT NOT NULL,
	prompt_template TEXT NOT NULL,
	sdk_options JSONB NOT NULL DEFAULT '{}',
	allowed_tools TEXT[] NOT NULL DEFAULT '{}',
	schedule_cron TEXT,
	schedule_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	generate_report BOOLEAN NOT NULL DEFAULT FALSE,
	report_format TEXT NOT NULL DEFAULT 'NONE',
	tags TEXT[] NOT NULL DEFAULT '{}',
	next_fire_at TIMESTAMPTZ,
	exec_count BIGINT NOT NULL DEFAULT 0,
	success_count BIGINT NOT NULL DEFAULT 0,
	failure_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(next_fire_at) WHERE schedule_enabled = TRUE;

CREATE TABLE IF NOT EXISTS task_executions (
	id UUID PRIMARY KEY,
	task_id UUID NOT NULL REFERENCES tasks(id),
	session_id UUID,
	trigger TEXT NOT NULL,
	variables JSONB,
	status TEXT NOT NULL,
	result TEXT,
	error TEXT,
	retry_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_task_executions_task ON task_executions(task_id);
`

// EnsureSchema applies schemaDDL. Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
