package search

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsift/callsift/internal/models"
)

func match(corpus models.Corpus, content string) models.Match {
	return models.Match{
		EntityID:       uuid.New(),
		Corpus:         corpus,
		CallID:         uuid.New(),
		CallExternalID: "C-7",
		CallTitle:      "Acme kickoff",
		Content:        content,
		Similarity:     0.9,
		Reason:         models.ReasonVector,
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAssembleSections(t *testing.T) {
	results := Results{
		Summaries:       []models.Match{match(models.CorpusSummaries, "summary text")},
		Segments:        []models.Match{match(models.CorpusSegments, "segment text")},
		FeatureRequests: []models.Match{match(models.CorpusFeatureRequests, "feature text")},
	}

	ctx := Assemble(results, 10_000)

	require.False(t, ctx.Empty)

	// Fixed section order: summaries, then excerpts, then feature requests.
	iSummaries := strings.Index(ctx.Text, "## Call summaries")
	iSegments := strings.Index(ctx.Text, "## Transcript excerpts")
	iFeatures := strings.Index(ctx.Text, "## Feature requests")

	require.NotEqual(t, -1, iSummaries)
	require.NotEqual(t, -1, iSegments)
	require.NotEqual(t, -1, iFeatures)
	assert.Less(t, iSummaries, iSegments)
	assert.Less(t, iSegments, iFeatures)

	assert.Len(t, ctx.Citations, 3)

	for key, citation := range ctx.Citations {
		assert.Contains(t, ctx.Text, "["+key+"]")
		assert.Equal(t, "Acme kickoff", citation.CallTitle)
	}
}

func TestAssembleEmpty(t *testing.T) {
	t.Run("all-empty input yields the sentinel, never an empty string", func(t *testing.T) {
		ctx := Assemble(Results{}, 10_000)

		assert.True(t, ctx.Empty)
		assert.Equal(t, NoRelevantContext, ctx.Text)
		assert.Empty(t, ctx.Citations)
	})

	t.Run("empty input still reports failed corpora", func(t *testing.T) {
		ctx := Assemble(Results{FailedCorpora: []models.Corpus{models.CorpusSegments}}, 10_000)

		assert.True(t, ctx.Empty)
		assert.Contains(t, ctx.Text, NoRelevantContext)
		assert.Contains(t, ctx.Text, "transcript excerpts source was unavailable")
	})

	t.Run("caveats survive when truncation drops every entry", func(t *testing.T) {
		results := Results{
			Summaries:     []models.Match{match(models.CorpusSummaries, strings.Repeat("x", 400))},
			FailedCorpora: []models.Corpus{models.CorpusSegments},
		}

		// Budget too small for any entry, so everything is dropped.
		ctx := Assemble(results, 50)

		assert.True(t, ctx.Empty)
		assert.Contains(t, ctx.Text, NoRelevantContext)
		assert.Contains(t, ctx.Text, "transcript excerpts source was unavailable")
	})
}

func TestAssembleBudget(t *testing.T) {
	long := strings.Repeat("x", 400)

	results := Results{
		Summaries: []models.Match{match(models.CorpusSummaries, long)},
		Segments: []models.Match{
			match(models.CorpusSegments, long),
			match(models.CorpusSegments, long),
		},
		FeatureRequests: []models.Match{
			match(models.CorpusFeatureRequests, long),
			match(models.CorpusFeatureRequests, long),
		},
	}

	t.Run("never exceeds max chars", func(t *testing.T) {
		for _, budget := range []int{500, 1000, 1500, 2500} {
			ctx := Assemble(results, budget)
			if !ctx.Empty {
				assert.LessOrEqual(t, len(ctx.Text), budget, "budget %d", budget)
			}
		}
	})

	t.Run("drops feature requests before excerpts before summaries", func(t *testing.T) {
		full := Assemble(results, 100_000)
		require.Len(t, full.Citations, 5)

		// Tight enough to force drops but roomy enough to keep the summary.
		trimmed := Assemble(results, len(full.Text)-1)

		var kept struct{ summaries, segments, features int }

		for _, citation := range trimmed.Citations {
			switch citation.Corpus {
			case models.CorpusSummaries:
				kept.summaries++
			case models.CorpusSegments:
				kept.segments++
			case models.CorpusFeatureRequests:
				kept.features++
			}
		}

		assert.Equal(t, 1, kept.summaries)
		assert.Equal(t, 2, kept.segments)
		assert.Equal(t, 1, kept.features)
	})

	t.Run("summary survives longest", func(t *testing.T) {
		ctx := Assemble(results, 600)

		require.False(t, ctx.Empty)

		for _, citation := range ctx.Citations {
			assert.Equal(t, models.CorpusSummaries, citation.Corpus)
		}
	})
}

func TestAssemblePartialCaveat(t *testing.T) {
	results := Results{
		Summaries:     []models.Match{match(models.CorpusSummaries, "summary text")},
		FailedCorpora: []models.Corpus{models.CorpusFeatureRequests},
	}

	ctx := Assemble(results, 10_000)

	require.False(t, ctx.Empty)
	assert.Contains(t, ctx.Text, "feature requests source was unavailable")
}

func TestAssembleEntryFormat(t *testing.T) {
	speaker := "Jordan (Acme)"
	quote := "we really need SSO"
	priority := models.PriorityHigh

	seg := match(models.CorpusSegments, "we talked about onboarding")
	seg.Speaker = &speaker

	fr := match(models.CorpusFeatureRequests, "SSO support")
	fr.Quote = &quote
	fr.Priority = &priority

	ctx := Assemble(Results{Segments: []models.Match{seg}, FeatureRequests: []models.Match{fr}}, 10_000)

	assert.Contains(t, ctx.Text, "Jordan (Acme)")
	assert.Contains(t, ctx.Text, `"we really need SSO"`)
	assert.Contains(t, ctx.Text, "(priority: High)")
	assert.Contains(t, ctx.Text, "segment:"+seg.EntityID.String())
	assert.Contains(t, ctx.Text, "feature:"+fr.EntityID.String())
}
