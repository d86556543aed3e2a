package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"example.com/healthsync/internal/health"
	"example.com/healthsync/internal/observability"
)

// Frequency is the persisted auto-sync cadence.
type Frequency int

const (
	FrequencyDisabled Frequency = iota
	FrequencyEvery15Min
	FrequencyHourly
	FrequencyDaily
	FrequencyWeekly
	FrequencyMonthly
)

// ParseFrequency validates a stored frequency value.
func ParseFrequency(value int) (Frequency, error) {
	if value < int(FrequencyDisabled) || value > int(FrequencyMonthly) {
		return FrequencyDisabled, fmt.Errorf("invalid auto-sync frequency: %d", value)
	}
	return Frequency(value), nil
}

// Interval is the spacing between periodic firings; zero means disabled.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyEvery15Min:
		return 15 * time.Minute
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 31 * 24 * time.Hour
	default:
		return 0
	}
}

// Window is the lookback each firing syncs, twice the firing interval so a
// missed firing cannot leave a gap.
func (f Frequency) Window() time.Duration {
	switch f {
	case FrequencyEvery15Min:
		return 30 * time.Minute
	case FrequencyHourly:
		return 2 * time.Hour
	case FrequencyDaily:
		return 2 * 24 * time.Hour
	case FrequencyWeekly:
		return 2 * 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 2 * 31 * 24 * time.Hour
	default:
		return 2 * 24 * time.Hour
	}
}

// Settings exposes the sync configuration the scheduler reads at each firing.
type Settings interface {
	AllowDuplicates() bool
	CleanupAgeDays() int
	AutoSyncFrequency() int
	AutoSyncKinds() []string
}

// Connectivity gates periodic firings on network reachability.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// KindSyncer is the orchestrator entry the scheduler drives.
type KindSyncer interface {
	SyncKind(ctx context.Context, kind health.Kind, start, end time.Time, opts Options) Outcome
}

// RunStatus classifies a periodic run. A firing with nothing to do (disabled
// frequency, empty kind set, offline) is reported skipped, distinct from
// success.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunSkipped RunStatus = "skipped"
	RunFailed  RunStatus = "failed"
)

// RunReport aggregates one periodic firing.
type RunReport struct {
	ID        string
	Status    RunStatus
	Reason    string
	Outcomes  []Outcome
	StartedAt time.Time
}

// Scheduler owns the single periodic sync slot. Reconfigure replaces the
// registration; the loop follows the Start(ctx)/Wait() idiom.
type Scheduler struct {
	syncer       KindSyncer
	tracker      *Tracker
	settings     Settings
	connectivity Connectivity
	logger       zerolog.Logger
	now          func() time.Time

	reconfigured     chan struct{}
	shutdownComplete chan struct{}
}

// NewScheduler constructs a Scheduler.
func NewScheduler(syncer KindSyncer, tracker *Tracker, settings Settings, connectivity Connectivity, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		syncer:           syncer,
		tracker:          tracker,
		settings:         settings,
		connectivity:     connectivity,
		logger:           logger.With().Str("component", "scheduler").Logger(),
		now:              time.Now,
		reconfigured:     make(chan struct{}, 1),
		shutdownComplete: make(chan struct{}),
	}
}

// Reconfigure re-arms the periodic slot after a frequency change. Safe to call
// from the preferences change hook.
func (s *Scheduler) Reconfigure() {
	select {
	case s.reconfigured <- struct{}{}:
	default:
	}
}

// Start runs the periodic loop until the context is cancelled. It should be
// called in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.shutdownComplete)
	for {
		frequency, _ := ParseFrequency(s.settings.AutoSyncFrequency())
		interval := frequency.Interval()

		var tick <-chan time.Time
		var ticker *time.Ticker
		if interval > 0 {
			ticker = time.NewTicker(interval)
			tick = ticker.C
		}
		s.logger.Info().Dur("interval", interval).Msg("periodic slot armed")

		select {
		case <-ctx.Done():
			if ticker != nil {
				ticker.Stop()
			}
			return
		case <-s.reconfigured:
			if ticker != nil {
				ticker.Stop()
			}
		case <-tick:
			ticker.Stop()
			report := s.RunOnce(ctx)
			s.logger.Info().
				Str("run_id", report.ID).
				Str("status", string(report.Status)).
				Str("reason", report.Reason).
				Int("kinds", len(report.Outcomes)).
				Msg("periodic run finished")
		}
	}
}

// Wait blocks until the loop has stopped.
func (s *Scheduler) Wait() {
	<-s.shutdownComplete
}

// RunOnce performs one periodic firing: check preconditions, compute the
// window from the configured frequency, and sync each configured kind in
// sequence. The first failed kind aborts the rest; the run is retried only at
// the next natural firing.
func (s *Scheduler) RunOnce(ctx context.Context) RunReport {
	report := RunReport{ID: uuid.NewString(), StartedAt: s.now()}

	frequency, err := ParseFrequency(s.settings.AutoSyncFrequency())
	if err != nil || frequency == FrequencyDisabled {
		report.Status = RunSkipped
		report.Reason = "auto-sync disabled"
		observability.RecordScheduledRun(string(report.Status))
		return report
	}

	kindNames := s.settings.AutoSyncKinds()
	if len(kindNames) == 0 {
		report.Status = RunSkipped
		report.Reason = "no kinds configured"
		observability.RecordScheduledRun(string(report.Status))
		return report
	}

	if s.connectivity != nil && !s.connectivity.Online(ctx) {
		report.Status = RunSkipped
		report.Reason = "offline"
		observability.RecordScheduledRun(string(report.Status))
		return report
	}

	end := s.now()
	start := end.Add(-frequency.Window())
	allowDuplicates := s.settings.AllowDuplicates()

	report.Status = RunSuccess
	for _, name := range kindNames {
		kind, err := health.ParseKind(name)
		if err != nil {
			s.logger.Warn().Str("kind", name).Msg("unknown configured kind, skipped")
			continue
		}
		outcome := s.syncer.SyncKind(ctx, kind, start, end, Options{
			AllowDuplicates: allowDuplicates,
			Trigger:         TriggerAuto,
		})
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Failed() {
			report.Status = RunFailed
			report.Reason = outcome.Reason
			break
		}
	}

	if report.Status == RunSuccess {
		s.cleanup(ctx)
	}
	observability.RecordScheduledRun(string(report.Status))
	return report
}

// cleanup purges dedup marks older than the configured age. Disabled when
// cleanupAgeDays is zero.
func (s *Scheduler) cleanup(ctx context.Context) {
	days := s.settings.CleanupAgeDays()
	if days <= 0 {
		return
	}
	threshold := s.now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	removed, err := s.tracker.PurgeOlderThan(ctx, threshold)
	if err != nil {
		s.logger.Error().Err(err).Msg("mark cleanup failed")
		return
	}
	observability.RecordPurged(removed)
}
