package models

import (
	"time"

	"github.com/google/uuid"
)

// FeatureRequest is a product request the enrichment model extracted from a
// call transcript, with the supporting quote and a priority label.
// Immutable after creation.
type FeatureRequest struct {
	ID            uuid.UUID `json:"id"`
	CallID        uuid.UUID `json:"call_id"`
	Request       string    `json:"request"`
	Quote         string    `json:"quote"` // the conversation sentences said around the request
	Priority      string    `json:"priority"`
	OffsetSeconds *float64  `json:"offset_seconds,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Priority labels assigned by the enrichment model based on customer emphasis.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// CreateFeatureRequestParams is one extracted request stored by the enrichment worker.
type CreateFeatureRequestParams struct {
	CallID        uuid.UUID
	Request       string
	Quote         string
	Priority      string
	OffsetSeconds *float64
	Embedding     []float32
}
