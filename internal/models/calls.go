package models

import (
	"time"

	"github.com/google/uuid"
)

// Call represents one recorded sales call with its AI-derived analysis.
// Summary, Sentiment, and the stored embedding are populated by the
// enrichment worker after ingestion; the row is otherwise immutable.
type Call struct {
	ID              uuid.UUID `json:"id"`
	ExternalID      string    `json:"external_id"` // call-platform identifier, e.g. "C-1042"
	Title           string    `json:"title"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Summary         *string   `json:"summary,omitempty"`
	Sentiment       *string   `json:"sentiment,omitempty"`
	Transcript      string    `json:"transcript"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateCallParams carries the fields needed to store a newly ingested call.
// Analysis fields are absent: enrichment fills them asynchronously.
type CreateCallParams struct {
	ExternalID      string
	Title           string
	StartedAt       time.Time
	DurationSeconds int
	Transcript      string
}

// ListCallsFilters narrows GET /v1/calls.
type ListCallsFilters struct {
	Since  *time.Time `form:"since"`
	Until  *time.Time `form:"until"`
	Limit  int        `form:"limit"`
	Offset int        `form:"offset"`
}

// ListCallsResponse is the paged response for listing calls.
type ListCallsResponse struct {
	Data   []Call `json:"data"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}
