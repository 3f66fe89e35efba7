package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Commit metrics
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_ledger_commits_total",
			Help: "Total number of transaction commits by database and outcome",
		},
		[]string{"database", "outcome"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_ledger_commit_duration_seconds",
			Help:    "Time taken to build, authorize, sign and persist a commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Auth metrics
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_ledger_auth_failures_total",
			Help: "Total number of entries rejected by the auth validator, by reason",
		},
		[]string{"reason"},
	)

	// Backend metrics
	BackendEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warren_ledger_backend_entries_total",
			Help: "Total number of entries stored across all trees",
		},
	)

	BackendRootsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warren_ledger_backend_roots_total",
			Help: "Total number of distinct database roots stored",
		},
	)

	// Sync metrics
	SyncPeersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warren_ledger_sync_peers_total",
			Help: "Number of known sync peers by connection state",
		},
		[]string{"state"},
	)

	SyncEntriesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_ledger_sync_entries_sent_total",
			Help: "Total number of entries sent to peers during sync",
		},
		[]string{"peer"},
	)

	SyncEntriesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_ledger_sync_entries_received_total",
			Help: "Total number of entries received from peers during sync",
		},
		[]string{"peer"},
	)

	SyncFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warren_ledger_sync_flush_duration_seconds",
			Help:    "Time taken for a background flush cycle against all tracked peers",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncFlushFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warren_ledger_sync_flush_failures_total",
			Help: "Total number of failed flush attempts by peer",
		},
		[]string{"peer"},
	)
)

func init() {
	prometheus.MustRegister(
		CommitsTotal,
		CommitDuration,
		AuthFailuresTotal,
		BackendEntriesTotal,
		BackendRootsTotal,
		SyncPeersTotal,
		SyncEntriesSentTotal,
		SyncEntriesReceivedTotal,
		SyncFlushDuration,
		SyncFlushFailuresTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
