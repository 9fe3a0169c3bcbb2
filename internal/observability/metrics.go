package observability

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles all metric groups so wiring can pass one value around.
// Any group may be nil-checked individually, but NewMetrics creates all or nothing.
type Metrics struct {
	Search     SearchMetrics
	Enrichment EnrichmentMetrics
	Cache      CacheMetrics
	HTTP       HTTPMetrics
}

// NewMetrics creates all metric groups from one meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	search, err := NewSearchMetrics(meter)
	if err != nil {
		return nil, err
	}

	enrichment, err := NewEnrichmentMetrics(meter)
	if err != nil {
		return nil, err
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, err
	}

	httpMetrics, err := NewHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Search:     search,
		Enrichment: enrichment,
		Cache:      cache,
		HTTP:       httpMetrics,
	}, nil
}
