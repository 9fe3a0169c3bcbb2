package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EnrichmentMetrics records enrichment pipeline metrics (job enqueue, worker outcomes, provider errors).
type EnrichmentMetrics interface {
	RecordJobsEnqueued(ctx context.Context, count int64)
	RecordProviderError(ctx context.Context, reason string)
	RecordEnrichmentOutcome(ctx context.Context, status string)
	RecordEnrichmentDuration(ctx context.Context, duration time.Duration, status string)
	SetQueueDepth(ctx context.Context, depth int64)
}

// enrichmentMetrics implements EnrichmentMetrics.
type enrichmentMetrics struct {
	jobsEnqueued   metric.Int64Counter
	providerErrors metric.Int64Counter
	outcomes       metric.Int64Counter
	duration       metric.Float64Histogram
	queueDepth     metric.Int64Gauge
}

// NewEnrichmentMetrics creates EnrichmentMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEnrichmentMetrics(meter metric.Meter) (EnrichmentMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	jobsEnqueued, err := meter.Int64Counter(
		MetricNameEnrichmentJobsEnqueued,
		metric.WithDescription("Total enrichment jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enrichment jobs enqueued counter: %w", err)
	}

	providerErrors, err := meter.Int64Counter(
		MetricNameProviderErrors,
		metric.WithDescription("Total embedding/completion provider errors by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create provider errors counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		MetricNameEnrichmentOutcomes,
		metric.WithDescription("Total enrichment job outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enrichment outcomes counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEnrichmentDuration,
		metric.WithDescription("Enrichment job duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enrichment duration histogram: %w", err)
	}

	queueDepth, err := meter.Int64Gauge(
		MetricNameEnrichmentQueueDepth,
		metric.WithDescription("Enrichment jobs waiting in the River queue (available, retryable, or scheduled)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enrichment queue depth gauge: %w", err)
	}

	return &enrichmentMetrics{
		jobsEnqueued:   jobsEnqueued,
		providerErrors: providerErrors,
		outcomes:       outcomes,
		duration:       duration,
		queueDepth:     queueDepth,
	}, nil
}

func (e *enrichmentMetrics) RecordJobsEnqueued(ctx context.Context, count int64) {
	e.jobsEnqueued.Add(ctx, count)
}

func (e *enrichmentMetrics) RecordProviderError(ctx context.Context, reason string) {
	e.providerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (e *enrichmentMetrics) RecordEnrichmentOutcome(ctx context.Context, status string) {
	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrOutcome, NormalizeEnrichmentOutcome(status)),
	))
}

func (e *enrichmentMetrics) RecordEnrichmentDuration(ctx context.Context, duration time.Duration, status string) {
	e.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrOutcome, NormalizeEnrichmentOutcome(status)),
	))
}

func (e *enrichmentMetrics) SetQueueDepth(ctx context.Context, depth int64) {
	e.queueDepth.Record(ctx, depth)
}
