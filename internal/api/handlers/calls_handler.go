package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/callsift/callsift/internal/api/response"
	"github.com/callsift/callsift/internal/api/validation"
	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/service"
)

// CallsService provides call ingestion and reads for the handler.
type CallsService interface {
	IngestCall(ctx context.Context, params models.CreateCallParams, segments []models.CreateTranscriptSegmentParams) (*models.Call, error)
	GetCallDetail(ctx context.Context, id uuid.UUID) (*service.CallDetail, error)
	ListFeatureRequests(ctx context.Context, callID uuid.UUID) ([]models.FeatureRequest, error)
	ListCalls(ctx context.Context, filters models.ListCallsFilters) (models.ListCallsResponse, error)
}

// CallsHandler handles HTTP requests for /v1/calls.
type CallsHandler struct {
	service CallsService
}

// NewCallsHandler creates a new calls handler.
func NewCallsHandler(service CallsService) *CallsHandler {
	return &CallsHandler{service: service}
}

// IngestSegment is one transcript turn in an ingest request.
type IngestSegment struct {
	Speaker       string   `json:"speaker"`
	Content       string   `json:"content" validate:"required"`
	OffsetSeconds *float64 `json:"offset_seconds"`
}

// IngestCallRequest is the body for POST /v1/calls.
type IngestCallRequest struct {
	ExternalID      string          `json:"external_id" validate:"required"`
	Title           string          `json:"title" validate:"required"`
	StartedAt       time.Time       `json:"started_at" validate:"required"`
	DurationSeconds int             `json:"duration_seconds" validate:"gte=0"`
	Transcript      string          `json:"transcript"`
	Segments        []IngestSegment `json:"segments" validate:"dive"`
}

// Ingest handles POST /v1/calls.
func (h *CallsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestCallRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if err := validation.ValidateStruct(req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	segments := make([]models.CreateTranscriptSegmentParams, 0, len(req.Segments))
	for _, seg := range req.Segments {
		segments = append(segments, models.CreateTranscriptSegmentParams{
			Speaker:       seg.Speaker,
			Content:       seg.Content,
			OffsetSeconds: seg.OffsetSeconds,
		})
	}

	call, err := h.service.IngestCall(r.Context(), models.CreateCallParams{
		ExternalID:      req.ExternalID,
		Title:           req.Title,
		StartedAt:       req.StartedAt,
		DurationSeconds: req.DurationSeconds,
		Transcript:      req.Transcript,
	}, segments)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCallExists):
			response.RespondConflict(w, "call with this external_id was already ingested")
		case errors.Is(err, service.ErrCallTooShort):
			response.RespondUnprocessableEntity(w, "call duration is too short to ingest")
		default:
			response.RespondInternalServerError(w, "Failed to ingest call")
		}

		return
	}

	response.RespondJSON(w, http.StatusCreated, call)
}

// List handles GET /v1/calls.
func (h *CallsHandler) List(w http.ResponseWriter, r *http.Request) {
	var filters models.ListCallsFilters
	if err := validation.ValidateAndDecodeQueryParams(r, &filters); err != nil {
		response.RespondBadRequest(w, err.Error())

		return
	}

	resp, err := h.service.ListCalls(r.Context(), filters)
	if err != nil {
		response.RespondInternalServerError(w, "Failed to list calls")

		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}

// Get handles GET /v1/calls/{id}.
func (h *CallsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "id must be a valid UUID")

		return
	}

	detail, err := h.service.GetCallDetail(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCallNotFound) {
			response.RespondNotFound(w, "call not found")

			return
		}

		response.RespondInternalServerError(w, "Failed to get call")

		return
	}

	response.RespondJSON(w, http.StatusOK, detail)
}

// FeatureRequestsResponse is the body for GET /v1/calls/{id}/feature-requests.
type FeatureRequestsResponse struct {
	Data []models.FeatureRequest `json:"data"`
}

// ListFeatureRequests handles GET /v1/calls/{id}/feature-requests.
func (h *CallsHandler) ListFeatureRequests(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "id must be a valid UUID")

		return
	}

	features, err := h.service.ListFeatureRequests(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCallNotFound) {
			response.RespondNotFound(w, "call not found")

			return
		}

		response.RespondInternalServerError(w, "Failed to list feature requests")

		return
	}

	if features == nil {
		features = []models.FeatureRequest{}
	}

	response.RespondJSON(w, http.StatusOK, FeatureRequestsResponse{Data: features})
}
