package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/callsift/callsift/internal/api/response"
	"github.com/callsift/callsift/internal/callerrors"
	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/search"
	"github.com/callsift/callsift/internal/service"
)

// QueryService answers questions and runs raw searches over the call corpora.
type QueryService interface {
	Search(ctx context.Context, query string, limit int, mode search.WindowMode) (search.Results, error)
	Ask(ctx context.Context, query string, limit int, mode search.WindowMode) (service.AskResult, error)
}

// QueryHandler handles HTTP requests for /v1/search and /v1/ask.
type QueryHandler struct {
	service QueryService
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(service QueryService) *QueryHandler {
	return &QueryHandler{service: service}
}

// QueryRequest is the body for POST /v1/search and POST /v1/ask.
type QueryRequest struct {
	Query string `json:"query"`
	// Limit caps results per corpus; 0 uses the server default.
	Limit int `json:"limit"`
	// Window is "all" (default) or "recent".
	Window string `json:"window"`
}

const maxQueryLimit = 50

// SearchResponse is the response for POST /v1/search.
type SearchResponse struct {
	Summaries       []models.Match  `json:"summaries"`
	Segments        []models.Match  `json:"segments"`
	FeatureRequests []models.Match  `json:"feature_requests"`
	FailedCorpora   []models.Corpus `json:"failed_corpora,omitempty"`
}

// AskResponse is the response for POST /v1/ask.
type AskResponse struct {
	Answer        string                     `json:"answer"`
	Context       string                     `json:"context"`
	Citations     map[string]search.Citation `json:"citations"`
	NoContext     bool                       `json:"no_context,omitempty"`
	FailedCorpora []models.Corpus            `json:"failed_corpora,omitempty"`
}

func (h *QueryHandler) decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return req, false
	}

	if req.Limit > maxQueryLimit {
		req.Limit = maxQueryLimit
	}

	return req, true
}

// Search handles POST /v1/search.
func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	results, err := h.service.Search(r.Context(), req.Query, req.Limit, search.WindowMode(req.Window))
	if err != nil {
		respondQueryError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, SearchResponse{
		Summaries:       results.Summaries,
		Segments:        results.Segments,
		FeatureRequests: results.FeatureRequests,
		FailedCorpora:   results.FailedCorpora,
	})
}

// Ask handles POST /v1/ask.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.service.Ask(r.Context(), req.Query, req.Limit, search.WindowMode(req.Window))
	if err != nil {
		respondQueryError(w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, AskResponse{
		Answer:        result.Answer,
		Context:       result.Context.Text,
		Citations:     result.Context.Citations,
		NoContext:     result.Context.Empty,
		FailedCorpora: result.Results.FailedCorpora,
	})
}

// respondQueryError maps service errors to HTTP statuses: caller bugs to 400,
// provider failures to 502, a fully failed search to 503.
func respondQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		response.RespondBadRequest(w, "query is required and must be non-empty")
	case errors.Is(err, callerrors.ErrInvalidArgument):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, callerrors.ErrInvalidEmbedding):
		response.RespondInternalServerError(w, "query embedding has the wrong dimensionality")
	case errors.Is(err, callerrors.ErrProvider):
		response.RespondBadGateway(w, "embedding or completion provider failed")
	case errors.Is(err, callerrors.ErrSearchUnavailable):
		response.RespondServiceUnavailable(w, "all corpora are unavailable, retry later")
	default:
		response.RespondInternalServerError(w, "Search failed")
	}
}
