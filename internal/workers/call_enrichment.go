// Package workers provides River job workers (call enrichment).
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"golang.org/x/time/rate"

	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/observability"
	"github.com/callsift/callsift/internal/openai"
	"github.com/callsift/callsift/internal/service"
)

// analysisClient is the minimal OpenAI surface the worker needs.
type analysisClient interface {
	AnalyzeTranscript(ctx context.Context, transcript string) (*openai.CallAnalysis, error)
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// enrichmentCallsRepo provides call reads and analysis writes.
type enrichmentCallsRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Call, error)
	SetAnalysis(ctx context.Context, id uuid.UUID, summary, sentiment string, embedding []float32) error
}

// enrichmentSegmentsRepo provides segment reads and embedding writes.
type enrichmentSegmentsRepo interface {
	ListByCall(ctx context.Context, callID uuid.UUID) ([]models.TranscriptSegment, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
}

// enrichmentFeaturesRepo replaces a call's extracted feature requests.
type enrichmentFeaturesRepo interface {
	DeleteByCall(ctx context.Context, callID uuid.UUID) error
	Create(ctx context.Context, params models.CreateFeatureRequestParams) (*models.FeatureRequest, error)
}

// CallEnrichmentWorker analyzes one call's transcript (summary, sentiment,
// feature requests) and computes every embedding: the call summary, each
// transcript segment, and each extracted feature request. Feature requests are
// deleted and recreated so a rerun always reflects the latest extraction.
type CallEnrichmentWorker struct {
	river.WorkerDefaults[service.CallEnrichmentArgs]

	calls    enrichmentCallsRepo
	segments enrichmentSegmentsRepo
	features enrichmentFeaturesRepo
	ai       analysisClient
	limiter  *rate.Limiter
	metrics  observability.EnrichmentMetrics
}

// NewCallEnrichmentWorker creates the enrichment worker. limiter throttles
// embedding calls across the whole job to stay inside the provider's rate
// limit; metrics may be nil when metrics are disabled.
func NewCallEnrichmentWorker(
	calls enrichmentCallsRepo,
	segments enrichmentSegmentsRepo,
	features enrichmentFeaturesRepo,
	ai analysisClient,
	limiter *rate.Limiter,
	metrics observability.EnrichmentMetrics,
) *CallEnrichmentWorker {
	return &CallEnrichmentWorker{
		calls:    calls,
		segments: segments,
		features: features,
		ai:       ai,
		limiter:  limiter,
		metrics:  metrics,
	}
}

// A call with hundreds of segments embeds them one by one, so the job budget
// is generous compared to a single API call.
const callEnrichmentTimeout = 10 * time.Minute

// Timeout limits how long a single enrichment job can run.
func (w *CallEnrichmentWorker) Timeout(*river.Job[service.CallEnrichmentArgs]) time.Duration {
	return callEnrichmentTimeout
}

// Work runs the full enrichment pipeline for one call.
func (w *CallEnrichmentWorker) Work(ctx context.Context, job *river.Job[service.CallEnrichmentArgs]) error {
	args := job.Args
	start := time.Now()

	call, err := w.calls.GetByID(ctx, args.CallID)
	if err != nil {
		w.recordOutcome(ctx, "failed_final", start)
		slog.Error("enrichment: get call failed", "call_id", args.CallID, "error", err)

		return nil // no retry when the call row is gone
	}

	if strings.TrimSpace(call.Transcript) == "" {
		w.recordOutcome(ctx, "skipped", start)
		slog.Warn("enrichment: empty transcript, skipping", "call_id", call.ID, "external_id", call.ExternalID)

		return nil
	}

	analysis, err := w.ai.AnalyzeTranscript(ctx, call.Transcript)
	if err != nil {
		return w.providerFailure(ctx, job, start, "analysis_failed", err)
	}

	summaryEmbedding, err := w.embed(ctx, analysis.Summary)
	if err != nil {
		return w.providerFailure(ctx, job, start, "embedding_failed", err)
	}

	if err := w.calls.SetAnalysis(ctx, call.ID, analysis.Summary, normalizeSentiment(analysis.Sentiment), summaryEmbedding); err != nil {
		w.recordOutcome(ctx, "failed_final", start)
		slog.Error("enrichment: store analysis failed", "call_id", call.ID, "error", err)

		return fmt.Errorf("store analysis: %w", err)
	}

	if err := w.embedSegments(ctx, call.ID); err != nil {
		return w.providerFailure(ctx, job, start, "embedding_failed", err)
	}

	if err := w.storeFeatureRequests(ctx, call.ID, analysis.FeatureRequests); err != nil {
		return w.providerFailure(ctx, job, start, "embedding_failed", err)
	}

	w.recordOutcome(ctx, "success", start)

	slog.Info("call enriched",
		"call_id", call.ID,
		"external_id", call.ExternalID,
		"feature_requests", len(analysis.FeatureRequests),
		"sentiment", analysis.Sentiment,
		"duration", time.Since(start),
	)

	return nil
}

func (w *CallEnrichmentWorker) embedSegments(ctx context.Context, callID uuid.UUID) error {
	segments, err := w.segments.ListByCall(ctx, callID)
	if err != nil {
		return fmt.Errorf("list segments: %w", err)
	}

	for _, segment := range segments {
		if strings.TrimSpace(segment.Content) == "" {
			continue
		}

		embedding, err := w.embed(ctx, segment.Content)
		if err != nil {
			return fmt.Errorf("embed segment %s: %w", segment.ID, err)
		}

		if err := w.segments.SetEmbedding(ctx, segment.ID, embedding); err != nil {
			return fmt.Errorf("store segment embedding: %w", err)
		}
	}

	return nil
}

func (w *CallEnrichmentWorker) storeFeatureRequests(
	ctx context.Context, callID uuid.UUID, extracted []openai.ExtractedFeatureRequest,
) error {
	if err := w.features.DeleteByCall(ctx, callID); err != nil {
		return fmt.Errorf("delete previous feature requests: %w", err)
	}

	for _, fr := range extracted {
		if strings.TrimSpace(fr.Request) == "" {
			continue
		}

		// The request text alone is often terse ("SSO support"); embedding it
		// together with the surrounding quote captures what was actually asked.
		embedding, err := w.embed(ctx, strings.TrimSpace(fr.Request+" "+fr.Context))
		if err != nil {
			return fmt.Errorf("embed feature request: %w", err)
		}

		_, err = w.features.Create(ctx, models.CreateFeatureRequestParams{
			CallID:    callID,
			Request:   fr.Request,
			Quote:     fr.Context,
			Priority:  normalizePriority(fr.Priority),
			Embedding: embedding,
		})
		if err != nil {
			return fmt.Errorf("store feature request: %w", err)
		}
	}

	return nil
}

func (w *CallEnrichmentWorker) embed(ctx context.Context, text string) ([]float32, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	return w.ai.CreateEmbedding(ctx, text)
}

// providerFailure records metrics and decides between a River retry and giving up.
func (w *CallEnrichmentWorker) providerFailure(
	ctx context.Context, job *river.Job[service.CallEnrichmentArgs], start time.Time, reason string, err error,
) error {
	isLastAttempt := job.Attempt >= job.MaxAttempts

	if w.metrics != nil {
		w.metrics.RecordProviderError(ctx, reason)
	}

	if isLastAttempt {
		w.recordOutcome(ctx, "failed_final", start)
		slog.Error("enrichment failed (final attempt)", "call_id", job.Args.CallID, "reason", reason, "error", err)

		return nil
	}

	w.recordOutcome(ctx, "retry", start)
	slog.Warn("enrichment failed, will retry", "call_id", job.Args.CallID, "reason", reason, "error", err)

	return fmt.Errorf("%s: %w", reason, err)
}

func (w *CallEnrichmentWorker) recordOutcome(ctx context.Context, status string, start time.Time) {
	if w.metrics == nil {
		return
	}

	w.metrics.RecordEnrichmentOutcome(ctx, status)
	w.metrics.RecordEnrichmentDuration(ctx, time.Since(start), status)
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return "positive"
	case "negative":
		return "negative"
	default:
		return "neutral"
	}
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return models.PriorityHigh
	case "low":
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}
