package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/healthsync/internal/fhir"
	"example.com/healthsync/internal/health"
	"example.com/healthsync/internal/observability"
)

// Trigger records which path invoked a sync.
type Trigger string

const (
	TriggerManual Trigger = "Manual"
	TriggerAuto   Trigger = "Auto-Sync"
)

// HistoryEntry is one appended row of the sync history log. An entry is
// written only for runs that uploaded at least one observation.
type HistoryEntry struct {
	ID          int64
	Timestamp   int64
	DataType    string
	PointCount  int
	PeriodStart int64
	PeriodEnd   int64
	Source      string
}

// HistoryStore persists the append-only sync history.
type HistoryStore interface {
	InsertHistory(ctx context.Context, entry HistoryEntry) error
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// RecordSource reads raw records for a kind and window.
type RecordSource interface {
	IntervalRecords(ctx context.Context, kind health.Kind, start, end time.Time) ([]health.Record, error)
}

// PatientResolver yields the remote patient id.
type PatientResolver interface {
	GetOrCreateID(ctx context.Context) (string, error)
}

// ObservationMapper converts a record into zero or more Observations.
type ObservationMapper interface {
	MapRecord(patientID string, record health.Record) []fhir.Observation
}

// BatchUploader ships observations in bounded atomic chunks.
type BatchUploader interface {
	Upload(ctx context.Context, observations []fhir.Observation, onChunk fhir.ChunkCallback) (fhir.UploadResult, error)
}

// Notifier publishes completed-sync events. May be nil.
type Notifier interface {
	SyncCompleted(ctx context.Context, entry HistoryEntry) error
}

// Options tune a single sync invocation.
type Options struct {
	AllowDuplicates bool
	Trigger         Trigger
}

// Outcome is the result of syncing one kind. Expected failures never escape
// the orchestrator as errors; they surface here as Truncated plus Reason.
type Outcome struct {
	Kind        health.Kind
	Fetched     int
	Uploaded    int
	Truncated   bool
	Reason      string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Failed reports whether the run stopped before completing normally.
func (o Outcome) Failed() bool { return o.Truncated || o.Reason != "" }

// Orchestrator composes the pipeline: fetch → identity → filter → map →
// upload-and-mark → history. At most one sync is in flight at a time; the
// single-flight lock also serializes patient creation and mark writes.
type Orchestrator struct {
	mu       sync.Mutex
	source   RecordSource
	patients PatientResolver
	mapper   ObservationMapper
	uploader BatchUploader
	tracker  *Tracker
	history  HistoryStore
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewOrchestrator wires the pipeline components. notifier may be nil.
func NewOrchestrator(
	source RecordSource,
	patients PatientResolver,
	mapper ObservationMapper,
	uploader BatchUploader,
	tracker *Tracker,
	history HistoryStore,
	notifier Notifier,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		source:   source,
		patients: patients,
		mapper:   mapper,
		uploader: uploader,
		tracker:  tracker,
		history:  history,
		notifier: notifier,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
}

// SyncKind runs the full pipeline for one kind over [start, end].
func (o *Orchestrator) SyncKind(ctx context.Context, kind health.Kind, start, end time.Time, opts Options) Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	outcome := Outcome{Kind: kind, PeriodStart: start, PeriodEnd: end}
	logger := o.logger.With().Str("kind", kind.String()).Str("trigger", string(opts.Trigger)).Logger()

	patientID, err := o.patients.GetOrCreateID(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("patient resolution failed")
		outcome.Truncated = true
		outcome.Reason = "resolve patient: " + err.Error()
		observability.RecordRun(string(opts.Trigger), "failed")
		return outcome
	}

	records, err := o.source.IntervalRecords(ctx, kind, start, end)
	if err != nil {
		logger.Error().Err(err).Msg("record fetch failed")
		outcome.Truncated = true
		outcome.Reason = "fetch records: " + err.Error()
		observability.RecordRun(string(opts.Trigger), "failed")
		return outcome
	}
	outcome.Fetched = len(records)

	fresh, err := o.tracker.FilterNew(ctx, records, opts.AllowDuplicates)
	if err != nil {
		logger.Error().Err(err).Msg("dedup filter failed")
		outcome.Truncated = true
		outcome.Reason = "filter records: " + err.Error()
		observability.RecordRun(string(opts.Trigger), "failed")
		return outcome
	}
	observability.RecordFiltered(len(records) - len(fresh))

	// Map each surviving record, remembering the observation index range it
	// produced so marking can follow chunk boundaries.
	var observations []fhir.Observation
	groupEnd := make([]int, len(fresh))
	for i, record := range fresh {
		observations = append(observations, o.mapper.MapRecord(patientID, record)...)
		groupEnd[i] = len(observations)
	}

	// Mark records whose observations are fully covered by the accepted
	// prefix. Records that mapped to nothing are marked alongside, so a
	// permanent shape mismatch is not refetched forever.
	marked := 0
	onChunk := func(ctx context.Context, uploaded int) error {
		first := marked
		for marked < len(fresh) && groupEnd[marked] <= uploaded {
			marked++
		}
		if marked == first {
			return nil
		}
		_, err := o.tracker.MarkSynced(ctx, fresh[first:marked])
		return err
	}

	if len(observations) == 0 && len(fresh) > 0 {
		// Nothing mapped at all. Mark the records anyway so a shape
		// mismatch is not refetched on every run.
		if _, err := o.tracker.MarkSynced(ctx, fresh); err != nil {
			logger.Error().Err(err).Msg("marking unmappable records failed")
		}
	}

	result, uploadErr := o.uploader.Upload(ctx, observations, onChunk)
	outcome.Uploaded = result.Uploaded
	outcome.Truncated = result.Truncated
	if uploadErr != nil {
		outcome.Reason = "upload: " + uploadErr.Error()
	}

	if outcome.Uploaded > 0 {
		entry := HistoryEntry{
			Timestamp:   o.now().UnixMilli(),
			DataType:    kind.String(),
			PointCount:  outcome.Uploaded,
			PeriodStart: start.UnixMilli(),
			PeriodEnd:   end.UnixMilli(),
			Source:      string(opts.Trigger),
		}
		if err := o.history.InsertHistory(ctx, entry); err != nil {
			logger.Error().Err(err).Msg("history append failed")
		} else if o.notifier != nil {
			if err := o.notifier.SyncCompleted(ctx, entry); err != nil {
				logger.Warn().Err(err).Msg("sync event publish failed")
			}
		}
		observability.RecordUploaded(outcome.Uploaded)
	}

	status := "success"
	if outcome.Failed() {
		status = "failed"
	}
	observability.RecordRun(string(opts.Trigger), status)
	logger.Info().
		Int("fetched", outcome.Fetched).
		Int("uploaded", outcome.Uploaded).
		Bool("truncated", outcome.Truncated).
		Msg("sync finished")
	return outcome
}
