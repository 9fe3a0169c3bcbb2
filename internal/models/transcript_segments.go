package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptSegment is one speaker turn within a call's transcript.
// Segments are written in a batch when the call is ingested, never updated,
// and removed only by cascade when the owning call is deleted.
type TranscriptSegment struct {
	ID            uuid.UUID `json:"id"`
	CallID        uuid.UUID `json:"call_id"`
	Speaker       string    `json:"speaker"`
	Content       string    `json:"content"`
	OffsetSeconds *float64  `json:"offset_seconds,omitempty"` // position within the call, from the first sentence
	CreatedAt     time.Time `json:"created_at"`
}

// CreateTranscriptSegmentParams is one segment in the batch insert at ingestion time.
type CreateTranscriptSegmentParams struct {
	CallID        uuid.UUID
	Speaker       string
	Content       string
	OffsetSeconds *float64
}
