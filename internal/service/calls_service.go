package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/observability"
	"github.com/callsift/callsift/internal/repository"
)

// Calls shorter than this carry no usable conversation (test dials, instant
// hang-ups) and are not worth storing or enriching.
const minCallDurationSeconds = 10

// Sentinel errors for call ingestion (used by handlers and the ingest command).
var (
	ErrCallNotFound = repository.ErrCallNotFound
	ErrCallTooShort = errors.New("call duration too short to ingest")
	ErrCallExists   = errors.New("call already ingested")
)

// CallsRepositoryForService provides the call persistence operations the service needs.
type CallsRepositoryForService interface {
	Create(ctx context.Context, params models.CreateCallParams) (*models.Call, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Call, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Call, error)
	List(ctx context.Context, filters models.ListCallsFilters) ([]models.Call, int64, error)
}

// SegmentsRepositoryForService provides the segment persistence operations the service needs.
type SegmentsRepositoryForService interface {
	CreateBatch(ctx context.Context, callID uuid.UUID, params []models.CreateTranscriptSegmentParams) ([]models.TranscriptSegment, error)
	ListByCall(ctx context.Context, callID uuid.UUID) ([]models.TranscriptSegment, error)
}

// FeatureRequestsRepositoryForService provides the feature-request reads the service needs.
type FeatureRequestsRepositoryForService interface {
	ListByCall(ctx context.Context, callID uuid.UUID) ([]models.FeatureRequest, error)
}

// CallDetail is one call with its stored segments and extracted feature requests.
type CallDetail struct {
	Call            models.Call                `json:"call"`
	Segments        []models.TranscriptSegment `json:"segments"`
	FeatureRequests []models.FeatureRequest    `json:"feature_requests"`
}

// CallsService handles call ingestion and reads. Ingestion stores the call and
// its transcript segments, then enqueues an asynchronous enrichment job that
// fills in summary, sentiment, feature requests, and embeddings.
type CallsService struct {
	calls       CallsRepositoryForService
	segments    SegmentsRepositoryForService
	features    FeatureRequestsRepositoryForService
	jobs        EnrichmentJobInserter
	maxAttempts int
	enrichment  observability.EnrichmentMetrics
	logger      *slog.Logger
}

// CallsServiceParams configures CallsService. EnrichmentMetrics may be nil
// (metrics disabled); Jobs may be nil for read-only deployments.
type CallsServiceParams struct {
	Calls    CallsRepositoryForService
	Segments SegmentsRepositoryForService
	Features FeatureRequestsRepositoryForService
	Jobs     EnrichmentJobInserter
	// EnrichmentMaxAttempts caps River retries per enrichment job; 0 keeps River's default.
	EnrichmentMaxAttempts int
	EnrichmentMetrics     observability.EnrichmentMetrics
	Logger                *slog.Logger
}

// NewCallsService creates a CallsService.
func NewCallsService(p CallsServiceParams) *CallsService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CallsService{
		calls:       p.Calls,
		segments:    p.Segments,
		features:    p.Features,
		jobs:        p.Jobs,
		maxAttempts: p.EnrichmentMaxAttempts,
		enrichment:  p.EnrichmentMetrics,
		logger:      logger,
	}
}

// IngestCall stores one call with its transcript segments and enqueues
// enrichment. Returns ErrCallExists when the external ID was already ingested
// and ErrCallTooShort for calls at or below the minimum duration.
func (s *CallsService) IngestCall(
	ctx context.Context, params models.CreateCallParams, segments []models.CreateTranscriptSegmentParams,
) (*models.Call, error) {
	if params.DurationSeconds <= minCallDurationSeconds {
		return nil, ErrCallTooShort
	}

	existing, err := s.calls.GetByExternalID(ctx, params.ExternalID)
	if err != nil && !errors.Is(err, repository.ErrCallNotFound) {
		return nil, fmt.Errorf("check existing call: %w", err)
	}

	if existing != nil {
		return existing, ErrCallExists
	}

	call, err := s.calls.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}

	if len(segments) > 0 {
		if _, err := s.segments.CreateBatch(ctx, call.ID, segments); err != nil {
			// Roll the call back so a re-run can ingest it cleanly; leaving the
			// row would make every retry hit the duplicate check with zero
			// segments stored.
			if delErr := s.calls.Delete(ctx, call.ID); delErr != nil {
				s.logger.Error("ingest: rollback of segment-less call failed",
					"call_id", call.ID, "error", delErr)
			}

			return nil, fmt.Errorf("store transcript segments: %w", err)
		}
	}

	if err := s.EnqueueEnrichment(ctx, call.ID); err != nil {
		// The call is stored; enrichment can be re-enqueued by re-running ingest.
		s.logger.Error("ingest: enqueue enrichment failed", "call_id", call.ID, "error", err)
	}

	s.logger.Info("call ingested",
		"call_id", call.ID,
		"external_id", call.ExternalID,
		"segments", len(segments),
	)

	return call, nil
}

// EnqueueEnrichment schedules the enrichment job for one call.
func (s *CallsService) EnqueueEnrichment(ctx context.Context, callID uuid.UUID) error {
	if s.jobs == nil {
		return nil
	}

	_, err := s.jobs.Insert(ctx, CallEnrichmentArgs{CallID: callID}, &river.InsertOpts{
		Queue:       EnrichmentQueueName,
		MaxAttempts: s.maxAttempts,
	})
	if err != nil {
		return fmt.Errorf("insert enrichment job: %w", err)
	}

	if s.enrichment != nil {
		s.enrichment.RecordJobsEnqueued(ctx, 1)
	}

	return nil
}

// GetCall returns one call by ID.
func (s *CallsService) GetCall(ctx context.Context, id uuid.UUID) (*models.Call, error) {
	call, err := s.calls.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCallNotFound) {
			//nolint:wrapcheck // return as-is so handler can map to 404
			return nil, err
		}

		return nil, fmt.Errorf("get call: %w", err)
	}

	return call, nil
}

// GetCallDetail returns one call with its segments and feature requests.
func (s *CallsService) GetCallDetail(ctx context.Context, id uuid.UUID) (*CallDetail, error) {
	call, err := s.GetCall(ctx, id)
	if err != nil {
		return nil, err
	}

	segments, err := s.segments.ListByCall(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	features, err := s.features.ListByCall(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list feature requests: %w", err)
	}

	return &CallDetail{Call: *call, Segments: segments, FeatureRequests: features}, nil
}

// ListFeatureRequests returns the feature requests extracted from one call.
func (s *CallsService) ListFeatureRequests(ctx context.Context, callID uuid.UUID) ([]models.FeatureRequest, error) {
	if _, err := s.GetCall(ctx, callID); err != nil {
		return nil, err
	}

	features, err := s.features.ListByCall(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("list feature requests: %w", err)
	}

	return features, nil
}

// ListCalls returns a page of calls plus the total count for the filters.
func (s *CallsService) ListCalls(ctx context.Context, filters models.ListCallsFilters) (models.ListCallsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	calls, total, err := s.calls.List(ctx, filters)
	if err != nil {
		return models.ListCallsResponse{}, fmt.Errorf("list calls: %w", err)
	}

	return models.ListCallsResponse{
		Data:   calls,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}
