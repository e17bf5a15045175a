package db

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// snapshotTables are the tables whose contents define the record store's
// backup fingerprint, in a fixed order so the serialization is deterministic.
var snapshotTables = []string{
	"patients",
	"consultations",
	"studies",
	"screenings",
	"screening_followups",
	"control_reminders",
	"review_requests",
	"review_comments",
}

// SnapshotState serializes the workflow tables as one JSON document with
// deterministic row ordering. The backup manager fingerprints and archives
// the result.
func SnapshotState(ctx context.Context, pool *pgxpool.Pool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, table := range snapshotTables {
		if i > 0 {
			buf.WriteByte(',')
		}
		var rows []byte
		query := fmt.Sprintf(
			`SELECT COALESCE(json_agg(row_to_json(t) ORDER BY t.id), '[]')::text FROM %s t`, table)
		if err := pool.QueryRow(ctx, query).Scan(&rows); err != nil {
			return nil, fmt.Errorf("serialize table %s: %w", table, err)
		}
		fmt.Fprintf(&buf, "%q:", table)
		buf.Write(rows)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
