// Package postgres implements store.Store over database/sql + lib/pq,
// grounded in the teacher's internal/jobs.CockroachStore: a ping on
// construction, pool tuning, parameterized $N queries, and explicit
// error wrapping per operation.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/internal/store"
	"github.com/haasonsaas/agentkit/pkg/models"
)

// Config tunes the underlying connection pool.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns agentkit's baseline pool settings.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Store implements store.Store against Postgres.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// NewFromDSN opens dsn, tunes the pool, and pings before returning.
func NewFromDSN(dsn string, cfg *Config) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already-opened *sql.DB (used by tests with
// go-sqlmock, which must control DB construction itself).
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func toPtrTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func toPtrString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// nullUUID converts a *uuid.UUID into uuid.NullUUID for use as a SQL
// argument. A bare nil *uuid.UUID implements driver.Valuer through
// uuid.UUID's value-receiver Value method, so passing it directly
// panics on dereference; this avoids that.
func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	sdkOpts, err := json.Marshal(sess.SDKOptions)
	if err != nil {
		return fmt.Errorf("postgres: marshal sdk_options: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, user_id, mode, status, workdir_path, parent_session_id, sdk_options,
			allowed_tools, permission_mode, max_retries, retry_delay_ms, timeout_ms,
			include_partial_messages, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		sess.ID, sess.UserID, string(sess.Mode), string(sess.Status), sess.WorkdirPath,
		nullUUID(sess.ParentSessionID), sdkOpts, pq.Array(sess.AllowedTools), string(sess.PermissionMode),
		sess.MaxRetries, sess.RetryDelayMs, sess.TimeoutMs, sess.IncludePartial,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status=$2, started_at=$3, completed_at=$4, updated_at=$5,
			permission_mode=$6, archive_id=$7
		WHERE id=$1
	`,
		sess.ID, string(sess.Status), nullTime(sess.StartedAt), nullTime(sess.CompletedAt),
		sess.UpdatedAt, string(sess.PermissionMode), nullUUID(sess.ArchiveID),
	)
	if err != nil {
		return fmt.Errorf("postgres: update session: %w", err)
	}
	return checkAffected(res, "session")
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, mode, status, workdir_path, parent_session_id, sdk_options,
			allowed_tools, permission_mode, max_retries, retry_delay_ms, timeout_ms,
			include_partial_messages, total_messages, total_tool_calls, total_hook_executions,
			total_permission_checks, total_errors, total_retries, cost_usd, tokens_in,
			tokens_out, tokens_cache_write, tokens_cache_read, duration_ms,
			created_at, started_at, completed_at, updated_at, archive_id
		FROM sessions WHERE id = $1
	`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get session: %w", err)
	}
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess                  models.Session
		mode, status, permMod string
		sdkOpts               []byte
		allowedTools          pq.StringArray
		parentID              uuid.NullUUID
		archiveID             uuid.NullUUID
		startedAt, completedAt sql.NullTime
	)
	if err := row.Scan(
		&sess.ID, &sess.UserID, &mode, &status, &sess.WorkdirPath, &parentID, &sdkOpts,
		&allowedTools, &permMod, &sess.MaxRetries, &sess.RetryDelayMs, &sess.TimeoutMs,
		&sess.IncludePartial, &sess.Metrics.TotalMessages, &sess.Metrics.TotalToolCalls,
		&sess.Metrics.TotalHookExecutions, &sess.Metrics.TotalPermissionChecks,
		&sess.Metrics.TotalErrors, &sess.Metrics.TotalRetries, &sess.Metrics.CostUSD,
		&sess.Metrics.TokensIn, &sess.Metrics.TokensOut, &sess.Metrics.TokensCacheWrite,
		&sess.Metrics.TokensCacheRead, &sess.Metrics.DurationMs,
		&sess.CreatedAt, &startedAt, &completedAt, &sess.UpdatedAt, &archiveID,
	); err != nil {
		return nil, err
	}
	sess.Mode = models.Mode(mode)
	sess.Status = models.Status(status)
	sess.PermissionMode = models.PermissionMode(permMod)
	sess.AllowedTools = []string(allowedTools)
	if parentID.Valid {
		id := parentID.UUID
		sess.ParentSessionID = &id
	}
	if archiveID.Valid {
		id := archiveID.UUID
		sess.ArchiveID = &id
	}
	sess.StartedAt = toPtrTime(startedAt)
	sess.CompletedAt = toPtrTime(completedAt)
	if len(sdkOpts) > 0 {
		if err := json.Unmarshal(sdkOpts, &sess.SDKOptions); err != nil {
			return nil, fmt.Errorf("unmarshal sdk_options: %w", err)
		}
	}
	return &sess, nil
}

func (s *Store) SessionsByUser(ctx context.Context, userID uuid.UUID, filter store.SessionFilter) ([]*models.Session, error) {
	query := `
		SELECT id, user_id, mode, status, workdir_path, parent_session_id, sdk_options,
			allowed_tools, permission_mode, max_retries, retry_delay_ms, timeout_ms,
			include_partial_messages, total_messages, total_tool_calls, total_hook_executions,
			total_permission_checks, total_errors, total_retries, cost_usd, tokens_in,
			tokens_out, tokens_cache_write, tokens_cache_read, duration_ms,
			created_at, started_at, completed_at, updated_at, archive_id
		FROM sessions WHERE user_id = $1`
	args := []any{userID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Mode != nil {
		args = append(args, string(*filter.Mode))
		query += fmt.Sprintf(" AND mode = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: sessions by user: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) ForksOf(ctx context.Context, parentID uuid.UUID) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, mode, status, workdir_path, parent_session_id, sdk_options,
			allowed_tools, permission_mode, max_retries, retry_delay_ms, timeout_ms,
			include_partial_messages, total_messages, total_tool_calls, total_hook_executions,
			total_permission_checks, total_errors, total_retries, cost_usd, tokens_in,
			tokens_out, tokens_cache_write, tokens_cache_read, duration_ms,
			created_at, started_at, completed_at, updated_at, archive_id
		FROM sessions WHERE parent_session_id = $1 ORDER BY created_at ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: forks of: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// IncrementSessionMetrics applies delta via in-place column arithmetic —
// never a Go-side read-modify-write, per spec.md §4.1's concurrency
// contract.
func (s *Store) IncrementSessionMetrics(ctx context.Context, id uuid.UUID, delta models.Metrics) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			total_messages = total_messages + $2,
			total_tool_calls = total_tool_calls + $3,
			total_hook_executions = total_hook_executions + $4,
			total_permission_checks = total_permission_checks + $5,
			total_errors = total_errors + $6,
			total_retries = total_retries + $7,
			cost_usd = cost_usd + $8,
			tokens_in = tokens_in + $9,
			tokens_out = tokens_out + $10,
			tokens_cache_write = tokens_cache_write + $11,
			tokens_cache_read = tokens_cache_read + $12,
			duration_ms = duration_ms + $13
		WHERE id = $1
	`,
		id, delta.TotalMessages, delta.TotalToolCalls, delta.TotalHookExecutions,
		delta.TotalPermissionChecks, delta.TotalErrors, delta.TotalRetries, delta.CostUSD,
		delta.TokensIn, delta.TokensOut, delta.TokensCacheWrite, delta.TokensCacheRead,
		delta.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("postgres: increment session metrics: %w", err)
	}
	return checkAffected(res, "session")
}

func checkAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
