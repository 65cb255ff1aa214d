package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics records data key cache lookups and evictions.
type CacheMetrics interface {
	// RecordLookup records a cache lookup as a hit or a miss.
	RecordLookup(hit bool)

	// RecordEviction records entries leaving the cache. Reason is "expired" or "capacity".
	RecordEviction(reason string, count int)
}

type cacheMetrics struct {
	lookupCounter   metric.Int64Counter
	evictionCounter metric.Int64Counter
}

// NewCacheMetrics creates a CacheMetrics implementation using the provided meter provider.
func NewCacheMetrics(meterProvider metric.MeterProvider, namespace string) (CacheMetrics, error) {
	meter := meterProvider.Meter(namespace)

	lookupCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_data_key_cache_lookups_total", namespace),
		metric.WithDescription("Total number of data key cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookup counter: %w", err)
	}

	evictionCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_data_key_cache_evictions_total", namespace),
		metric.WithDescription("Total number of data keys evicted from the cache"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache eviction counter: %w", err)
	}

	return &cacheMetrics{
		lookupCounter:   lookupCounter,
		evictionCounter: evictionCounter,
	}, nil
}

// RecordLookup increments the lookup counter with a result label.
func (m *cacheMetrics) RecordLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordEviction increments the eviction counter with a reason label.
func (m *cacheMetrics) RecordEviction(reason string, count int) {
	if count <= 0 {
		return
	}
	m.evictionCounter.Add(
		context.Background(),
		int64(count),
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// NoOpCacheMetrics discards every measurement.
type NoOpCacheMetrics struct{}

// NewNoOpCacheMetrics creates a CacheMetrics that does nothing.
func NewNoOpCacheMetrics() CacheMetrics {
	return &NoOpCacheMetrics{}
}

// RecordLookup does nothing.
func (n *NoOpCacheMetrics) RecordLookup(hit bool) {}

// RecordEviction does nothing.
func (n *NoOpCacheMetrics) RecordEviction(reason string, count int) {}
