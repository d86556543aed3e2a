// Package postgres provides pgx-backed persistence for dedup marks and the
// sync history log.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	syncpipe "example.com/healthsync/internal/sync"
)

const schema = `
CREATE TABLE IF NOT EXISTS synced_records (
    record_id   TEXT PRIMARY KEY,
    measured_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_synced_records_measured_at ON synced_records (measured_at);

CREATE TABLE IF NOT EXISTS history_records (
    id           BIGSERIAL PRIMARY KEY,
    ts           BIGINT NOT NULL,
    data_type    TEXT NOT NULL,
    point_count  INTEGER NOT NULL,
    period_start BIGINT NOT NULL,
    period_end   BIGINT NOT NULL,
    source       TEXT NOT NULL
);
`

// Store persists dedup marks and history entries in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the two tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ExistingIDs returns the subset of ids that already have dedup marks.
func (s *Store) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT record_id FROM synced_records WHERE record_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// InsertMarks inserts dedup marks; a mark whose record id already exists is
// skipped silently.
func (s *Store) InsertMarks(ctx context.Context, marks []syncpipe.Mark) error {
	if len(marks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, mark := range marks {
		batch.Queue(
			`INSERT INTO synced_records (record_id, measured_at) VALUES ($1, $2)
             ON CONFLICT (record_id) DO NOTHING`,
			mark.RecordID, mark.MeasuredAt,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range marks {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMarksBefore removes marks measured strictly before the threshold.
func (s *Store) DeleteMarksBefore(ctx context.Context, thresholdMillis int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM synced_records WHERE measured_at < $1`, thresholdMillis)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertHistory appends one history entry.
func (s *Store) InsertHistory(ctx context.Context, entry syncpipe.HistoryEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO history_records (ts, data_type, point_count, period_start, period_end, source)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Timestamp, entry.DataType, entry.PointCount, entry.PeriodStart, entry.PeriodEnd, entry.Source,
	)
	return err
}

// ListHistory returns history entries newest first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]syncpipe.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, data_type, point_count, period_start, period_end, source
         FROM history_records ORDER BY ts DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]syncpipe.HistoryEntry, 0, limit)
	for rows.Next() {
		var entry syncpipe.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.DataType, &entry.PointCount,
			&entry.PeriodStart, &entry.PeriodEnd, &entry.Source); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
