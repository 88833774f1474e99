package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/tempcast/tempcast/internal/cache"

// Metrics holds cache instruments.
type Metrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
	errors metric.Int64Counter
}

// NewMetrics creates cache instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	hits, err := meter.Int64Counter(
		"cache.hit",
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"cache.miss",
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(
		"cache.error",
		metric.WithDescription("Number of cache store errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{hits: hits, misses: misses, errors: errs}, nil
}

func (m *Metrics) hit(name string) {
	if m != nil {
		m.hits.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("cache.name", name)))
	}
}

func (m *Metrics) miss(name string) {
	if m != nil {
		m.misses.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("cache.name", name)))
	}
}

func (m *Metrics) storeError(name string) {
	if m != nil {
		m.errors.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("cache.name", name)))
	}
}
