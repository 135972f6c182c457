// Package observability exposes Prometheus collectors shared across the service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "analytics_service",
		Subsystem: "scores",
		Name:      "resync_duration_seconds",
		Help:      "Time spent replaying a user's run history into score snapshots.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"outcome"})

	snapshotWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analytics_service",
		Subsystem: "scores",
		Name:      "snapshot_writes_total",
		Help:      "Number of score snapshots written, split by created or updated.",
	}, []string{"kind"})

	invalidRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "analytics_service",
		Subsystem: "scores",
		Name:      "invalid_runs_total",
		Help:      "Number of runs that could not be scored and contributed zero.",
	})

	lastResyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "analytics_service",
		Subsystem: "scores",
		Name:      "last_resync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful resynchronization.",
	})

	seriesCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analytics_service",
		Subsystem: "series_cache",
		Name:      "lookups_total",
		Help:      "Materialized series cache lookups by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(resyncDuration, snapshotWrites, invalidRuns, lastResyncGauge, seriesCacheLookups)
}

// RecordResync observes one resynchronization.
func RecordResync(elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	} else {
		lastResyncGauge.Set(float64(time.Now().Unix()))
	}
	resyncDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordSnapshotsWritten counts snapshot writes of one resync.
func RecordSnapshotsWritten(created, updated int) {
	snapshotWrites.WithLabelValues("created").Add(float64(created))
	snapshotWrites.WithLabelValues("updated").Add(float64(updated))
}

// RecordInvalidRun counts a run scored as zero.
func RecordInvalidRun() {
	invalidRuns.Inc()
}

// RecordCacheLookup counts a series cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		seriesCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	seriesCacheLookups.WithLabelValues("miss").Inc()
}
