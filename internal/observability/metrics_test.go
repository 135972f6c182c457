package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRecordSnapshotsWritten(t *testing.T) {
	created := testutil.ToFloat64(snapshotWrites.WithLabelValues("created"))
	updated := testutil.ToFloat64(snapshotWrites.WithLabelValues("updated"))

	RecordSnapshotsWritten(3, 2)

	require.Equal(t, created+3, testutil.ToFloat64(snapshotWrites.WithLabelValues("created")))
	require.Equal(t, updated+2, testutil.ToFloat64(snapshotWrites.WithLabelValues("updated")))
}

func TestRecordResyncOnlyAdvancesWatermarkOnSuccess(t *testing.T) {
	lastResyncGauge.Set(0)
	failures := histogramSampleCount(t, "failure")
	successes := histogramSampleCount(t, "success")

	RecordResync(time.Millisecond, errors.New("boom"))
	require.Zero(t, testutil.ToFloat64(lastResyncGauge))
	require.Equal(t, failures+1, histogramSampleCount(t, "failure"))

	RecordResync(time.Millisecond, nil)
	require.Greater(t, testutil.ToFloat64(lastResyncGauge), float64(0))
	require.Equal(t, successes+1, histogramSampleCount(t, "success"))
}

func histogramSampleCount(t *testing.T, outcome string) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	observer := resyncDuration.WithLabelValues(outcome)
	require.NoError(t, observer.(prometheus.Metric).Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(seriesCacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(seriesCacheLookups.WithLabelValues("miss"))

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)

	require.Equal(t, hits+1, testutil.ToFloat64(seriesCacheLookups.WithLabelValues("hit")))
	require.Equal(t, misses+2, testutil.ToFloat64(seriesCacheLookups.WithLabelValues("miss")))
}
