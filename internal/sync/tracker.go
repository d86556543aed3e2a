// Package sync implements the extraction → dedup → map → upload pipeline and
// its periodic scheduling.
package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"example.com/healthsync/internal/health"
)

// Mark is the persisted tombstone meaning a source record has already been
// uploaded. RecordID is unique; inserting an existing id is a no-op.
type Mark struct {
	RecordID   string
	MeasuredAt int64
}

// MarkStore persists dedup marks.
type MarkStore interface {
	// ExistingIDs returns the subset of ids that already have marks.
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	// InsertMarks inserts marks, silently skipping duplicate record ids.
	InsertMarks(ctx context.Context, marks []Mark) error
	// DeleteMarksBefore removes marks with MeasuredAt strictly below the
	// threshold and reports how many were removed.
	DeleteMarksBefore(ctx context.Context, thresholdMillis int64) (int64, error)
}

// Tracker filters already-uploaded records and records new marks.
type Tracker struct {
	store  MarkStore
	logger zerolog.Logger
}

// NewTracker constructs a Tracker.
func NewTracker(store MarkStore, logger zerolog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger.With().Str("component", "dedup_tracker").Logger()}
}

// FilterNew returns the records that still need uploading. With
// allowDuplicates the input passes through unchanged. Otherwise only records
// with a non-empty id that has no existing mark survive; id-less records are
// dropped because they can never be tracked for dedup.
func (t *Tracker) FilterNew(ctx context.Context, records []health.Record, allowDuplicates bool) ([]health.Record, error) {
	if allowDuplicates {
		return records, nil
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		if record.ID != "" {
			ids = append(ids, record.ID)
		}
	}

	existing, err := t.store.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing marks: %w", err)
	}

	fresh := make([]health.Record, 0, len(records))
	for _, record := range records {
		if record.ID == "" {
			continue
		}
		if _, synced := existing[record.ID]; synced {
			continue
		}
		fresh = append(fresh, record)
	}
	if dropped := len(records) - len(fresh); dropped > 0 {
		t.logger.Debug().Int("dropped", dropped).Int("fresh", len(fresh)).Msg("filtered records")
	}
	return fresh, nil
}

// MarkSynced builds and inserts marks for the given records, deriving each
// record's measured-at time. Records without an id or a derivable time are
// skipped. Returns the marks actually constructed.
func (t *Tracker) MarkSynced(ctx context.Context, records []health.Record) ([]Mark, error) {
	marks := make([]Mark, 0, len(records))
	for _, record := range records {
		if record.ID == "" {
			continue
		}
		measuredAt, ok := record.MeasuredAt()
		if !ok {
			continue
		}
		marks = append(marks, Mark{RecordID: record.ID, MeasuredAt: measuredAt})
	}
	if len(marks) == 0 {
		return marks, nil
	}
	if err := t.store.InsertMarks(ctx, marks); err != nil {
		return nil, fmt.Errorf("insert marks: %w", err)
	}
	return marks, nil
}

// PurgeOlderThan deletes marks measured strictly before the threshold; a mark
// exactly at the threshold is retained.
func (t *Tracker) PurgeOlderThan(ctx context.Context, thresholdMillis int64) (int64, error) {
	removed, err := t.store.DeleteMarksBefore(ctx, thresholdMillis)
	if err != nil {
		return 0, fmt.Errorf("purge marks: %w", err)
	}
	if removed > 0 {
		t.logger.Info().Int64("removed", removed).Int64("threshold_ms", thresholdMillis).Msg("purged old marks")
	}
	return removed, nil
}
