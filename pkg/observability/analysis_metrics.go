package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricItemsTotal       = "mozdata.analysis.items.total"
	metricItemDuration     = "mozdata.analysis.item.duration.seconds"
	metricCacheHitsTotal   = "mozdata.analysis.cache.hits.total"
	metricCacheMissesTotal = "mozdata.analysis.cache.misses.total"

	attrAnalyzer = "analyzer"
	attrCache    = "cache"
)

// AnalysisMetrics holds OTel instruments for the analyzers (bugs, patches,
// status flags) and their caches.
type AnalysisMetrics struct {
	itemsTotal   metric.Int64Counter
	itemDuration metric.Float64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// NewAnalysisMetrics creates analysis metric instruments from the given meter.
func NewAnalysisMetrics(mt metric.Meter) (*AnalysisMetrics, error) {
	items, err := mt.Int64Counter(metricItemsTotal,
		metric.WithDescription("Total items analyzed by analyzer"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricItemsTotal, err)
	}

	itemDur, err := mt.Float64Histogram(metricItemDuration,
		metric.WithDescription("Per-item analysis duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricItemDuration, err)
	}

	hits, err := mt.Int64Counter(metricCacheHitsTotal,
		metric.WithDescription("Cache hits by cache"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheHitsTotal, err)
	}

	misses, err := mt.Int64Counter(metricCacheMissesTotal,
		metric.WithDescription("Cache misses by cache"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheMissesTotal, err)
	}

	return &AnalysisMetrics{
		itemsTotal:   items,
		itemDuration: itemDur,
		cacheHits:    hits,
		cacheMisses:  misses,
	}, nil
}

// RecordItem records one analyzed item (a bug, a patch, a status flag
// candidate). Safe to call on a nil receiver.
func (am *AnalysisMetrics) RecordItem(ctx context.Context, analyzer string, duration time.Duration) {
	if am == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrAnalyzer, analyzer))
	am.itemsTotal.Add(ctx, 1, attrs)
	am.itemDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCache records a lookup in the named cache. Safe to call on a nil
// receiver.
func (am *AnalysisMetrics) RecordCache(ctx context.Context, cache string, hit bool) {
	if am == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrCache, cache))

	if hit {
		am.cacheHits.Add(ctx, 1, attrs)

		return
	}

	am.cacheMisses.Add(ctx, 1, attrs)
}
