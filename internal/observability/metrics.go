// Package observability exposes Prometheus metrics for the sync pipeline.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	runsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Number of per-kind sync runs, labeled by trigger and status.",
	}, []string{"trigger", "status"})

	uploadedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "pipeline",
		Name:      "observations_uploaded_total",
		Help:      "Number of observations accepted by the FHIR server.",
	})

	filteredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "pipeline",
		Name:      "records_filtered_total",
		Help:      "Number of records dropped by the dedup filter.",
	})

	purgedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "dedup",
		Name:      "marks_purged_total",
		Help:      "Number of dedup marks removed by cleanup.",
	})

	scheduledRunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Number of periodic scheduler firings, labeled by status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(runsCounter, uploadedCounter, filteredCounter, purgedCounter, scheduledRunsCounter)
}

// RecordRun counts one per-kind sync run.
func RecordRun(trigger, status string) {
	runsCounter.WithLabelValues(trigger, status).Inc()
}

// RecordUploaded counts observations accepted by the server.
func RecordUploaded(count int) {
	if count > 0 {
		uploadedCounter.Add(float64(count))
	}
}

// RecordFiltered counts records dropped by the dedup filter.
func RecordFiltered(count int) {
	if count > 0 {
		filteredCounter.Add(float64(count))
	}
}

// RecordPurged counts marks removed by cleanup.
func RecordPurged(count int64) {
	if count > 0 {
		purgedCounter.Add(float64(count))
	}
}

// RecordScheduledRun counts one scheduler firing.
func RecordScheduledRun(status string) {
	scheduledRunsCounter.WithLabelValues(status).Inc()
}
