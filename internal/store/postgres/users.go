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

const userColumns = `
	id, email, password_hash, role, max_concurrent_sessions, monthly_budget_usd,
	created_at, updated_at, deleted_at`

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		u.ID, u.Email, u.PasswordHash, string(u.Role), u.Quotas.MaxConcurrentSessions,
		u.Quotas.MonthlyBudgetUSD, u.CreatedAt, u.UpdatedAt, nullTime(u.DeletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email=$2, password_hash=$3, role=$4, max_concurrent_sessions=$5,
			monthly_budget_usd=$6, updated_at=$7, deleted_at=$8
		WHERE id = $1
	`,
		u.ID, u.Email, u.PasswordHash, string(u.Role), u.Quotas.MaxConcurrentSessions,
		u.Quotas.MonthlyBudgetUSD, u.UpdatedAt, nullTime(u.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: update user: %w", err)
	}
	return checkAffected(res, "user")
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		role      string
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &role, &u.Quotas.MaxConcurrentSessions,
		&u.Quotas.MonthlyBudgetUSD, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.DeletedAt = toPtrTime(deletedAt)
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT"+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT"+userColumns+" FROM users WHERE email = $1", email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user by email: %w", err)
	}
	return u, nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL
	`, id, now)
	if err != nil {
		return fmt.Errorf("postgres: soft delete user: %w", err)
	}
	return checkAffected(res, "user")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !asPQError(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}
