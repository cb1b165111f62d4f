package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
)

func newManualReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()

	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func setupTestMeter(t *testing.T) (*observability.REDMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader, mp := newManualReader()

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return red, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "bugzilla.mozilla.org", observability.StatusOK, 100*time.Millisecond)

	rm := collectMetrics(t, reader)

	reqTotal := findMetric(rm, "mozdata.client.requests.total")
	require.NotNil(t, reqTotal)
	assert.Equal(t, int64(1), sumValue(t, reqTotal))

	require.NotNil(t, findMetric(rm, "mozdata.client.request.duration.seconds"))
	assert.Nil(t, findMetric(rm, "mozdata.client.errors.total"))
}

func TestREDMetrics_RecordRequestError(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "crash-stats.mozilla.org", observability.StatusError, time.Second)

	rm := collectMetrics(t, reader)

	errTotal := findMetric(rm, "mozdata.client.errors.total")
	require.NotNil(t, errTotal)
	assert.Equal(t, int64(1), sumValue(t, errTotal))
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)
	ctx := context.Background()

	done := red.TrackInflight(ctx, "hg.mozilla.org")

	inflight := findMetric(collectMetrics(t, reader), "mozdata.client.inflight.requests")
	require.NotNil(t, inflight)
	assert.Equal(t, int64(1), sumValue(t, inflight))

	done()

	inflight = findMetric(collectMetrics(t, reader), "mozdata.client.inflight.requests")
	require.NotNil(t, inflight)
	assert.Equal(t, int64(0), sumValue(t, inflight))
}

func TestAnalysisMetrics_RecordItemAndCache(t *testing.T) {
	t.Parallel()

	reader, mp := newManualReader()

	am, err := observability.NewAnalysisMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	am.RecordItem(ctx, "patch", 20*time.Millisecond)
	am.RecordItem(ctx, "patch", 30*time.Millisecond)
	am.RecordCache(ctx, "identity", true)
	am.RecordCache(ctx, "identity", false)
	am.RecordCache(ctx, "identity", false)

	rm := collectMetrics(t, reader)

	items := findMetric(rm, "mozdata.analysis.items.total")
	require.NotNil(t, items)
	assert.Equal(t, int64(2), sumValue(t, items))

	hits := findMetric(rm, "mozdata.analysis.cache.hits.total")
	require.NotNil(t, hits)
	assert.Equal(t, int64(1), sumValue(t, hits))

	misses := findMetric(rm, "mozdata.analysis.cache.misses.total")
	require.NotNil(t, misses)
	assert.Equal(t, int64(2), sumValue(t, misses))
}

func TestAnalysisMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var am *observability.AnalysisMetrics

	assert.NotPanics(t, func() {
		am.RecordItem(context.Background(), "bug", time.Second)
		am.RecordCache(context.Background(), "identity", true)
	})
}

func TestREDMetrics_RecordRetry(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)
	ctx := context.Background()

	red.RecordRetry(ctx, "crash-stats.mozilla.org", "status 503")
	red.RecordRetry(ctx, "crash-stats.mozilla.org", "transport")

	retries := findMetric(collectMetrics(t, reader), "mozdata.client.retries.total")
	require.NotNil(t, retries)
	assert.Equal(t, int64(2), sumValue(t, retries))
}
