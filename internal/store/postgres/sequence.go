package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// sequenceRetryBackoff mirrors the teacher's exponential-backoff-with-cap
// idiom (see internal/agent retry handling), scaled down for a
// transaction-serialization retry rather than a network call.
var sequenceRetryBackoff = []time.Duration{
	2 * time.Millisecond,
	8 * time.Millisecond,
	32 * time.Millisecond,
	128 * time.Millisecond,
}

const maxSequenceRetries = 5

// NextSequence allocates the next monotonic sequence number for
// sessionID inside a SERIALIZABLE transaction, retrying on the
// serialization-failure (40001) and unique-violation (23505) classes a
// concurrent allocation can raise.
func (s *Store) NextSequence(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var last error
	for attempt := 0; attempt <= maxSequenceRetries; attempt++ {
		seq, err := s.nextSequenceOnce(ctx, sessionID)
		if err == nil {
			return seq, nil
		}
		last = err
		if !isRetryableSerialization(err) {
			return 0, err
		}
		if attempt < len(sequenceRetryBackoff) {
			select {
			case <-time.After(sequenceRetryBackoff[attempt]):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}
	return 0, fmt.Errorf("postgres: next sequence: exhausted retries: %w", last)
}

func (s *Store) nextSequenceOnce(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("postgres: begin sequence tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO session_sequences (session_id, next_seq) VALUES ($1, 2)
		ON CONFLICT (session_id) DO UPDATE SET next_seq = session_sequences.next_seq + 1
		RETURNING next_seq - 1
	`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: allocate sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: commit sequence tx: %w", err)
	}
	return seq, nil
}

func isRetryableSerialization(err error) bool {
	var pqErr *pq.Error
	if !asPQError(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "23505":
		return true
	default:
		return false
	}
}

func asPQError(err error, target **pq.Error) bool {
	for err != nil {
		if pe, ok := err.(*pq.Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	blocks, err := marshalJSON(m.Blocks)
	if err != nil {
		return fmt.Errorf("postgres: marshal blocks: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, session_id, sequence, direction, blocks, model, tokens_in, tokens_out,
			cost_usd, is_partial, parent_message_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (session_id, sequence) DO UPDATE SET
			direction=$4, blocks=$5, model=$6, tokens_in=$7, tokens_out=$8,
			cost_usd=$9, is_partial=$10, parent_message_id=$11
	`,
		m.ID, m.SessionID, m.Sequence, string(m.Direction), blocks, m.Model, m.TokensIn,
		m.TokensOut, m.CostUSD, m.IsPartial, nullUUID(m.ParentMessageID), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert message: %w", err)
	}
	return nil
}

func (s *Store) MessagesBySession(ctx context.Context, sessionID uuid.UUID, afterSeq int64, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, session_id, sequence, direction, blocks, model, tokens_in, tokens_out,
			cost_usd, is_partial, parent_message_id, created_at
		FROM messages WHERE session_id = $1 AND sequence > $2 ORDER BY sequence ASC`
	args := []any{sessionID, afterSeq}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: messages by session: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var (
			msg        models.Message
			direction  string
			blocks     []byte
			parentID   uuid.NullUUID
		)
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.Sequence, &direction, &blocks, &msg.Model,
			&msg.TokensIn, &msg.TokensOut, &msg.CostUSD, &msg.IsPartial, &parentID,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		msg.Direction = models.Direction(direction)
		if parentID.Valid {
			id := parentID.UUID
			msg.ParentMessageID = &id
		}
		if len(blocks) > 0 {
			if err := unmarshalJSON(blocks, &msg.Blocks); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal blocks: %w", err)
			}
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}
