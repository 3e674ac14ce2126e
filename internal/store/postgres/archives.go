package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/haasonsaas/agentkit/pkg/models"
)

func (s *Store) CreateArchive(ctx context.Context, a *models.Archive) error {
	manifest, err := marshalJSON(a.Manifest)
	if err != nil {
		return fmt.Errorf("postgres: marshal manifest: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO archives (
			id, session_id, path, size_bytes, compression, manifest, status, error,
			created_at, archived_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		a.ID, a.SessionID, a.Path, a.SizeBytes, string(a.Compression), manifest,
		string(a.Status), nullString(a.Error), a.CreatedAt, nullTime(a.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: create archive: %w", err)
	}
	return nil
}

func (s *Store) UpdateArchive(ctx context.Context, a *models.Archive) error {
	manifest, err := marshalJSON(a.Manifest)
	if err != nil {
		return fmt.Errorf("postgres: marshal manifest: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE archives SET size_bytes=$2, manifest=$3, status=$4, error=$5, archived_at=$6
		WHERE id = $1
	`,
		a.ID, a.SizeBytes, manifest, string(a.Status), nullString(a.Error), nullTime(a.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: update archive: %w", err)
	}
	return checkAffected(res, "archive")
}

func (s *Store) PendingArchives(ctx context.Context, limit int) ([]*models.Archive, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, path, size_bytes, compression, manifest, status, error,
			created_at, archived_at
		FROM archives WHERE status IN ('PENDING','IN_PROGRESS') ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: pending archives: %w", err)
	}
	defer rows.Close()

	var out []*models.Archive
	for rows.Next() {
		var (
			a               models.Archive
			compression, status string
			manifest        []byte
			errMsg          sql.NullString
			archivedAt      sql.NullTime
		)
		if err := rows.Scan(
			&a.ID, &a.SessionID, &a.Path, &a.SizeBytes, &compression, &manifest, &status,
			&errMsg, &a.CreatedAt, &archivedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan archive: %w", err)
		}
		a.Compression = models.Compression(compression)
		a.Status = models.ArchiveStatus(status)
		a.Error = toPtrString(errMsg)
		a.ArchivedAt = toPtrTime(archivedAt)
		if len(manifest) > 0 {
			if err := unmarshalJSON(manifest, &a.Manifest); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal manifest: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
