package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists audit entries in the audit_entries table. Sequence numbers
// come from the serialized Log writer, not from a database sequence, because
// SQL sequences leave gaps on rollback. For the same reason inserts always go
// through the pool, never through a surrounding request transaction: once
// Append hands out a number the row must survive regardless of how the
// caller's transaction ends, or the stored sequence would gap. Services append
// as their last step, so an entry for a rolled-back write can only appear when
// the commit itself fails.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Insert(ctx context.Context, e *Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_entries (seq, at, actor, action, target, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Seq, e.At, e.Actor, e.Action, e.Target, e.Detail)
	return err
}

func (s *PGStore) LastSeq(ctx context.Context) (int64, error) {
	var last int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM audit_entries`).Scan(&last)
	return last, err
}

func (s *PGStore) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	query := `SELECT seq, at, actor, action, target, detail FROM audit_entries WHERE seq > $1`
	args := []any{f.SinceSeq}

	if f.Actor != "" {
		args = append(args, f.Actor)
		query += fmt.Sprintf(" AND actor = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.Target != "" {
		args = append(args, f.Target)
		query += fmt.Sprintf(" AND target = $%d", len(args))
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.At, &e.Actor, &e.Action, &e.Target, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
