package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsift/callsift/internal/callerrors"
	"github.com/callsift/callsift/internal/models"
)

type fakeSearcher struct {
	searchFn func(ctx context.Context, queryText string, queryEmbedding []float32, threshold float64, limit int, windowStart *time.Time) ([]models.Candidate, error)
}

func (f *fakeSearcher) SearchCandidates(
	ctx context.Context, queryText string, queryEmbedding []float32, threshold float64, limit int, windowStart *time.Time,
) ([]models.Candidate, error) {
	return f.searchFn(ctx, queryText, queryEmbedding, threshold, limit, windowStart)
}

func staticSearcher(candidates []models.Candidate) *fakeSearcher {
	return &fakeSearcher{
		searchFn: func(context.Context, string, []float32, float64, int, *time.Time) ([]models.Candidate, error) {
			return candidates, nil
		},
	}
}

func candidate(similarity float64, createdAt time.Time) models.Candidate {
	return models.Candidate{
		EntityID:       uuid.New(),
		CallID:         uuid.New(),
		CallExternalID: "C-1",
		CallTitle:      "Acme kickoff",
		Content:        "some content",
		Similarity:     similarity,
		CreatedAt:      createdAt,
	}
}

var queryVec = []float32{1, 0, 0}

func TestMatcherValidation(t *testing.T) {
	matcher := NewMatcher(3)
	searcher := staticSearcher(nil)

	t.Run("rejects non-positive limit", func(t *testing.T) {
		_, err := matcher.Match(context.Background(), searcher, models.CorpusSummaries, "q", queryVec, 0.6, 0, TimeWindow{})
		require.Error(t, err)
		assert.ErrorIs(t, err, callerrors.ErrInvalidArgument)
	})

	t.Run("rejects empty query text", func(t *testing.T) {
		_, err := matcher.Match(context.Background(), searcher, models.CorpusSummaries, "   ", queryVec, 0.6, 5, TimeWindow{})
		require.Error(t, err)
		assert.ErrorIs(t, err, callerrors.ErrInvalidArgument)
	})

	t.Run("rejects threshold outside unit interval", func(t *testing.T) {
		_, err := matcher.Match(context.Background(), searcher, models.CorpusSummaries, "q", queryVec, 1.5, 5, TimeWindow{})
		require.Error(t, err)
		assert.ErrorIs(t, err, callerrors.ErrInvalidArgument)
	})

	t.Run("rejects unknown corpus", func(t *testing.T) {
		_, err := matcher.Match(context.Background(), searcher, models.Corpus("emails"), "q", queryVec, 0.6, 5, TimeWindow{})
		require.Error(t, err)
		assert.ErrorIs(t, err, callerrors.ErrInvalidArgument)
	})

	t.Run("rejects wrong embedding dimensionality", func(t *testing.T) {
		_, err := matcher.Match(context.Background(), searcher, models.CorpusSummaries, "q", []float32{1, 0}, 0.6, 5, TimeWindow{})
		require.Error(t, err)
		assert.ErrorIs(t, err, callerrors.ErrInvalidEmbedding)

		var dimErr *callerrors.InvalidEmbeddingError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 2, dimErr.Got)
		assert.Equal(t, 3, dimErr.Want)
	})
}

func TestMatcherScoring(t *testing.T) {
	matcher := NewMatcher(3)
	now := time.Now()

	t.Run("exact external id outranks every vector score", func(t *testing.T) {
		exact := candidate(0.42, now)
		exact.CallExternalID = "C-1042"
		exact.ExactID = true

		strong := candidate(0.97, now)

		matches, err := matcher.Match(
			context.Background(), staticSearcher([]models.Candidate{strong, exact}),
			models.CorpusSummaries, "C-1042", queryVec, 0.6, 5, TimeWindow{},
		)
		require.NoError(t, err)
		require.Len(t, matches, 2)

		assert.Equal(t, "C-1042", matches[0].CallExternalID)
		assert.Equal(t, 1.0, matches[0].Similarity)
		assert.Equal(t, models.ReasonExactID, matches[0].Reason)
		assert.Equal(t, models.ReasonVector, matches[1].Reason)
	})

	t.Run("title match scores just below exact id", func(t *testing.T) {
		titled := candidate(0.1, now)
		titled.TitleMatch = true

		matches, err := matcher.Match(
			context.Background(), staticSearcher([]models.Candidate{titled}),
			models.CorpusSummaries, "kickoff", queryVec, 0.6, 5, TimeWindow{},
		)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 0.99, matches[0].Similarity)
		assert.Equal(t, models.ReasonTitleMatch, matches[0].Reason)
	})

	t.Run("only vector scores strictly above threshold survive", func(t *testing.T) {
		matches, err := matcher.Match(
			context.Background(),
			staticSearcher([]models.Candidate{
				candidate(0.91, now), candidate(0.80, now), candidate(0.60, now),
			}),
			models.CorpusFeatureRequests, "onboarding delays", queryVec, 0.75, 5, TimeWindow{},
		)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, 0.91, matches[0].Similarity)
		assert.Equal(t, 0.80, matches[1].Similarity)
	})

	t.Run("similarity equal to threshold is excluded", func(t *testing.T) {
		matches, err := matcher.Match(
			context.Background(), staticSearcher([]models.Candidate{candidate(0.75, now)}),
			models.CorpusSummaries, "q", queryVec, 0.75, 5, TimeWindow{},
		)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("feature request scores with the larger of its own and parent call similarity", func(t *testing.T) {
		callSim := 0.88
		fr := candidate(0.2, now)
		fr.CallSimilarity = &callSim

		matches, err := matcher.Match(
			context.Background(), staticSearcher([]models.Candidate{fr}),
			models.CorpusFeatureRequests, "q", queryVec, 0.6, 5, TimeWindow{},
		)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 0.88, matches[0].Similarity)
	})

	t.Run("deduplicates per entity keeping the best score", func(t *testing.T) {
		id := uuid.New()

		viaVector := candidate(0.8, now)
		viaVector.EntityID = id

		viaTitle := candidate(0.1, now)
		viaTitle.EntityID = id
		viaTitle.TitleMatch = true

		matches, err := matcher.Match(
			context.Background(), staticSearcher([]models.Candidate{viaVector, viaTitle}),
			models.CorpusSummaries, "kickoff", queryVec, 0.6, 5, TimeWindow{},
		)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 0.99, matches[0].Similarity)
	})
}

func TestMatcherOrderingAndLimits(t *testing.T) {
	matcher := NewMatcher(3)
	now := time.Now()

	t.Run("caps results at limit", func(t *testing.T) {
		candidates := []models.Candidate{
			candidate(0.95, now), candidate(0.9, now), candidate(0.85, now), candidate(0.8, now),
		}

		matches, err := matcher.Match(
			context.Background(), staticSearcher(candidates),
			models.CorpusSegments, "q", queryVec, 0.6, 2, TimeWindow{},
		)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, 0.95, matches[0].Similarity)
		assert.Equal(t, 0.9, matches[1].Similarity)
	})

	t.Run("equal similarities order by recency", func(t *testing.T) {
		older := candidate(0.8, now.Add(-48*time.Hour))
		newer := candidate(0.8, now)

		matches, err := matcher.Match(
			context.Background(), staticSearcher([]models.Candidate{older, newer}),
			models.CorpusSummaries, "q", queryVec, 0.6, 5, TimeWindow{},
		)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.True(t, matches[0].CreatedAt.After(matches[1].CreatedAt))
	})

	t.Run("similarities are non-increasing", func(t *testing.T) {
		candidates := []models.Candidate{
			candidate(0.7, now), candidate(0.95, now), candidate(0.82, now),
		}

		matches, err := matcher.Match(
			context.Background(), staticSearcher(candidates),
			models.CorpusSummaries, "q", queryVec, 0.6, 5, TimeWindow{},
		)
		require.NoError(t, err)

		for i := 1; i < len(matches); i++ {
			assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
		}
	})
}

func TestMatcherTimeWindow(t *testing.T) {
	matcher := NewMatcher(3)
	now := time.Now()

	window, err := NewTimeWindow(WindowRecent, now, 30*24*time.Hour)
	require.NoError(t, err)

	t.Run("excludes calls created before the window start", func(t *testing.T) {
		inside := candidate(0.8, now.Add(-24*time.Hour))
		outside := candidate(0.99, now.Add(-60*24*time.Hour))

		matches, err := matcher.Match(
			context.Background(), staticSearcher([]models.Candidate{inside, outside}),
			models.CorpusSummaries, "q", queryVec, 0.6, 5, window,
		)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, inside.EntityID, matches[0].EntityID)
	})

	t.Run("passes window start to the repository", func(t *testing.T) {
		var gotStart *time.Time

		searcher := &fakeSearcher{
			searchFn: func(_ context.Context, _ string, _ []float32, _ float64, _ int, windowStart *time.Time) ([]models.Candidate, error) {
				gotStart = windowStart

				return nil, nil
			},
		}

		_, err := matcher.Match(context.Background(), searcher, models.CorpusSummaries, "q", queryVec, 0.6, 5, window)
		require.NoError(t, err)
		require.NotNil(t, gotStart)
		assert.Equal(t, *window.Start, *gotStart)
	})

	t.Run("unknown window mode is rejected", func(t *testing.T) {
		_, err := NewTimeWindow("yesterday", now, time.Hour)
		require.Error(t, err)
		assert.ErrorIs(t, err, callerrors.ErrInvalidArgument)
	})
}
