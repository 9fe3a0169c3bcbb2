package models

import (
	"time"

	"github.com/google/uuid"
)

// Corpus selects which record set a hybrid search runs against.
type Corpus string

// The three searchable corpora.
const (
	CorpusSummaries       Corpus = "summaries"
	CorpusSegments        Corpus = "segments"
	CorpusFeatureRequests Corpus = "feature_requests"
)

// Valid reports whether c names a known corpus.
func (c Corpus) Valid() bool {
	switch c {
	case CorpusSummaries, CorpusSegments, CorpusFeatureRequests:
		return true
	}

	return false
}

// MatchReason says which rule produced a match's similarity.
type MatchReason string

// Match reasons, in rank order: exact-id (1.0) > title-match (0.99) > vector (> threshold).
const (
	ReasonExactID    MatchReason = "exact-id"
	ReasonTitleMatch MatchReason = "title-match"
	ReasonVector     MatchReason = "vector"
)

// Candidate is one raw row a corpus repository returns for scoring.
// The repository computes the lexical flags and vector similarities;
// final scoring, deduplication, and ordering happen in the matcher.
type Candidate struct {
	EntityID       uuid.UUID // the summary's call ID, segment ID, or feature request ID
	CallID         uuid.UUID
	CallExternalID string
	CallTitle      string
	Content        string // summary text, segment content, or request text
	Speaker        *string
	Quote          *string
	Priority       *string
	OffsetSeconds  *float64
	CreatedAt      time.Time // owning call's created_at (used for recency tie-breaks and windows)

	ExactID    bool    // query text equals the call's external identifier
	TitleMatch bool    // query text is a case-insensitive substring of the title/request field
	Similarity float64 // cosine similarity against the record's own embedding, 1 - distance
	// CallSimilarity is the cosine similarity against the parent call's embedding.
	// Only populated for feature requests, whose score is the max of both signals.
	CallSimilarity *float64
}

// Match is one ranked, deduplicated hybrid-search result.
type Match struct {
	EntityID       uuid.UUID   `json:"entity_id"`
	Corpus         Corpus      `json:"corpus"`
	CallID         uuid.UUID   `json:"call_id"`
	CallExternalID string      `json:"call_external_id"`
	CallTitle      string      `json:"call_title"`
	Content        string      `json:"content"`
	Speaker        *string     `json:"speaker,omitempty"`
	Quote          *string     `json:"quote,omitempty"`
	Priority       *string     `json:"priority,omitempty"`
	OffsetSeconds  *float64    `json:"offset_seconds,omitempty"`
	Similarity     float64     `json:"similarity"`
	Reason         MatchReason `json:"reason"`
	CreatedAt      time.Time   `json:"created_at"`
}
