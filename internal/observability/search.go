package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SearchMetrics records retrieval fan-out metrics (per-corpus searches, retries, partial results).
// Methods accept ctx for future exemplar support.
type SearchMetrics interface {
	RecordCorpusSearch(ctx context.Context, corpus, outcome string, duration time.Duration)
	RecordRetry(ctx context.Context, corpus string)
	RecordPartialResult(ctx context.Context, corpus string)
	RecordMatchesReturned(ctx context.Context, corpus string, count int64)
}

// searchMetrics implements SearchMetrics.
type searchMetrics struct {
	searches metric.Int64Counter
	retries  metric.Int64Counter
	partials metric.Int64Counter
	duration metric.Float64Histogram
	matches  metric.Int64Counter
}

// NewSearchMetrics creates SearchMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewSearchMetrics(meter metric.Meter) (SearchMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	searches, err := meter.Int64Counter(
		MetricNameCorpusSearches,
		metric.WithDescription("Total per-corpus hybrid searches by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create corpus searches counter: %w", err)
	}

	retries, err := meter.Int64Counter(
		MetricNameCorpusSearchRetries,
		metric.WithDescription("Total per-corpus search retries after timeout"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search retries counter: %w", err)
	}

	partials, err := meter.Int64Counter(
		MetricNamePartialResults,
		metric.WithDescription("Total corpora degraded to partial results after a second failure"),
	)
	if err != nil {
		return nil, fmt.Errorf("create partial results counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameSearchDuration,
		metric.WithDescription("Per-corpus search duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search duration histogram: %w", err)
	}

	matches, err := meter.Int64Counter(
		MetricNameMatchesReturned,
		metric.WithDescription("Total matches returned per corpus after dedup and capping"),
	)
	if err != nil {
		return nil, fmt.Errorf("create matches returned counter: %w", err)
	}

	return &searchMetrics{
		searches: searches,
		retries:  retries,
		partials: partials,
		duration: duration,
		matches:  matches,
	}, nil
}

func attrCorpus(corpus string) attribute.KeyValue {
	return attribute.String(AttrCorpus, NormalizeCorpus(corpus))
}

func (s *searchMetrics) RecordCorpusSearch(ctx context.Context, corpus, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attrCorpus(corpus),
		attribute.String(AttrOutcome, NormalizeSearchOutcome(outcome)),
	)
	s.searches.Add(ctx, 1, attrs)
	s.duration.Record(ctx, duration.Seconds(), attrs)
}

func (s *searchMetrics) RecordRetry(ctx context.Context, corpus string) {
	s.retries.Add(ctx, 1, metric.WithAttributes(attrCorpus(corpus)))
}

func (s *searchMetrics) RecordPartialResult(ctx context.Context, corpus string) {
	s.partials.Add(ctx, 1, metric.WithAttributes(attrCorpus(corpus)))
}

func (s *searchMetrics) RecordMatchesReturned(ctx context.Context, corpus string, count int64) {
	s.matches.Add(ctx, count, metric.WithAttributes(attrCorpus(corpus)))
}
