package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callsift/callsift/internal/callerrors"
	"github.com/callsift/callsift/internal/models"
)

// Similarity assigned to lexical matches. Exact identifier equality outranks
// everything; a title substring match outranks any vector score, which is
// capped below 0.99 in practice.
const (
	exactIDScore    = 1.0
	titleMatchScore = 0.99
)

// CorpusSearcher fetches raw scoring candidates for one corpus. The
// repositories implement this against pgvector; tests implement it in memory.
type CorpusSearcher interface {
	SearchCandidates(
		ctx context.Context,
		queryText string,
		queryEmbedding []float32,
		threshold float64,
		limit int,
		windowStart *time.Time,
	) ([]models.Candidate, error)
}

// Matcher applies the hybrid scoring policy to one corpus: lexical rules
// first (exact ID, then title substring), vector similarity above threshold
// otherwise, with per-entity max-score deduplication and deterministic
// ordering.
type Matcher struct {
	dimensions int
}

// NewMatcher creates a matcher expecting query embeddings of the given dimensionality.
func NewMatcher(dimensions int) *Matcher {
	return &Matcher{dimensions: dimensions}
}

// Match runs a hybrid search against one corpus and returns at most limit
// ranked matches. Every returned similarity is 1.0 (exact-id), 0.99
// (title-match), or strictly greater than threshold (vector).
func (m *Matcher) Match(
	ctx context.Context,
	searcher CorpusSearcher,
	corpus models.Corpus,
	queryText string,
	queryEmbedding []float32,
	threshold float64,
	limit int,
	window TimeWindow,
) ([]models.Match, error) {
	if !corpus.Valid() {
		return nil, callerrors.NewInvalidArgumentError("corpus", "unknown corpus: "+string(corpus))
	}

	if strings.TrimSpace(queryText) == "" {
		return nil, callerrors.NewInvalidArgumentError("query", "query text must not be empty")
	}

	if limit <= 0 {
		return nil, callerrors.NewInvalidArgumentError("limit", "limit must be positive")
	}

	if threshold < 0 || threshold > 1 {
		return nil, callerrors.NewInvalidArgumentError("threshold", "threshold must be in [0, 1]")
	}

	if len(queryEmbedding) != m.dimensions {
		return nil, callerrors.NewInvalidEmbeddingError(len(queryEmbedding), m.dimensions)
	}

	candidates, err := searcher.SearchCandidates(ctx, queryText, queryEmbedding, threshold, limit, window.StartTime())
	if err != nil {
		return nil, err
	}

	// One best match per entity. The repositories already return one row per
	// entity, but the scoring rules can still overlap (a record reachable via
	// both a lexical rule and a vector score), so keep the explicit max here.
	best := make(map[uuid.UUID]models.Match, len(candidates))

	for _, cand := range candidates {
		if !window.Includes(cand.CreatedAt) {
			continue
		}

		match, ok := score(corpus, cand, threshold)
		if !ok {
			continue
		}

		if prev, seen := best[match.EntityID]; !seen || match.Similarity > prev.Similarity {
			best[match.EntityID] = match
		}
	}

	matches := make([]models.Match, 0, len(best))
	for _, match := range best {
		matches = append(matches, match)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}

		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}

		return matches[i].EntityID.String() < matches[j].EntityID.String()
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// score applies the scoring policy to one candidate. Returns false when the
// candidate matches no rule, which happens when its only signal is a vector
// similarity at or below the threshold.
func score(corpus models.Corpus, cand models.Candidate, threshold float64) (models.Match, bool) {
	match := models.Match{
		EntityID:       cand.EntityID,
		Corpus:         corpus,
		CallID:         cand.CallID,
		CallExternalID: cand.CallExternalID,
		CallTitle:      cand.CallTitle,
		Content:        cand.Content,
		Speaker:        cand.Speaker,
		Quote:          cand.Quote,
		Priority:       cand.Priority,
		OffsetSeconds:  cand.OffsetSeconds,
		CreatedAt:      cand.CreatedAt,
	}

	switch {
	case cand.ExactID:
		match.Similarity = exactIDScore
		match.Reason = models.ReasonExactID
	case cand.TitleMatch:
		match.Similarity = titleMatchScore
		match.Reason = models.ReasonTitleMatch
	default:
		// Feature requests carry their parent call's similarity as a second
		// signal; the record scores with the larger of the two.
		similarity := cand.Similarity
		if cand.CallSimilarity != nil && *cand.CallSimilarity > similarity {
			similarity = *cand.CallSimilarity
		}

		if similarity <= threshold {
			return models.Match{}, false
		}

		match.Similarity = similarity
		match.Reason = models.ReasonVector
	}

	return match, true
}
