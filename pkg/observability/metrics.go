package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "mozdata.client.requests.total"
	metricRequestDuration  = "mozdata.client.request.duration.seconds"
	metricErrorsTotal      = "mozdata.client.errors.total"
	metricRetriesTotal     = "mozdata.client.retries.total"
	metricInflightRequests = "mozdata.client.inflight.requests"

	attrHost   = "host"
	attrStatus = "status"
	attrReason = "reason"
)

// Request outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 10ms to 120s, the span between a cached
// Bugzilla lookup and a full SuperSearch aggregation.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// REDMetrics counts outbound attempts per host: their rate, their errors,
// their duration, the retries they caused and how many are in flight. MCP
// tool calls are recorded the same way with the tool as host.
type REDMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	retries  metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// instrumentErr names the instrument that could not be created.
func instrumentErr(name string, err error) error {
	return fmt.Errorf("create %s: %w", name, err)
}

// NewREDMetrics creates the instruments from mt.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	var (
		rm  REDMetrics
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&rm.requests, metricRequestsTotal, "Outbound attempts by host and outcome", "{request}"},
		{&rm.errors, metricErrorsTotal, "Failed outbound attempts by host", "{error}"},
		{&rm.retries, metricRetriesTotal, "Attempts repeated by the retry policy", "{retry}"},
	}

	for _, c := range counters {
		*c.dst, err = mt.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, instrumentErr(c.name, err)
		}
	}

	rm.duration, err = mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Outbound attempt duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, instrumentErr(metricRequestDuration, err)
	}

	rm.inflight, err = mt.Int64UpDownCounter(metricInflightRequests,
		metric.WithDescription("Outbound attempts waiting for a response"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, instrumentErr(metricInflightRequests, err)
	}

	return &rm, nil
}

// RecordRequest records one completed attempt against host.
func (rm *REDMetrics) RecordRequest(ctx context.Context, host, status string, duration time.Duration) {
	hostAttr := attribute.String(attrHost, host)
	attrs := metric.WithAttributes(hostAttr, attribute.String(attrStatus, status))

	rm.requests.Add(ctx, 1, attrs)
	rm.duration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		rm.errors.Add(ctx, 1, metric.WithAttributes(hostAttr))
	}
}

// RecordRetry records that an attempt against host is repeated. reason is
// a short label such as "status 503" or "transport".
func (rm *REDMetrics) RecordRetry(ctx context.Context, host, reason string) {
	rm.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrHost, host),
		attribute.String(attrReason, reason),
	))
}

// TrackInflight increments the in-flight gauge and returns its decrement.
func (rm *REDMetrics) TrackInflight(ctx context.Context, host string) func() {
	attrs := metric.WithAttributes(attribute.String(attrHost, host))
	rm.inflight.Add(ctx, 1, attrs)

	return func() {
		rm.inflight.Add(ctx, -1, attrs)
	}
}
