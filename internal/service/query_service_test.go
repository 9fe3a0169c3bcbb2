package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/search"
)

type stubEmbedder struct {
	calls atomic.Int32
	err   error
}

func (s *stubEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	s.calls.Add(1)

	if s.err != nil {
		return nil, s.err
	}

	return []float32{1, 0, 0}, nil
}

type stubCompleter struct {
	gotSystem string
	gotUser   string
	answer    string
	err       error
}

func (s *stubCompleter) Complete(_ context.Context, systemPrompt, userPrompt string, _ float64) (string, error) {
	s.gotSystem = systemPrompt
	s.gotUser = userPrompt

	return s.answer, s.err
}

type stubCorpus struct {
	candidates []models.Candidate
}

func (s *stubCorpus) SearchCandidates(
	context.Context, string, []float32, float64, int, *time.Time,
) ([]models.Candidate, error) {
	return s.candidates, nil
}

func summaryCandidate(content string) models.Candidate {
	return models.Candidate{
		EntityID:       uuid.New(),
		CallID:         uuid.New(),
		CallExternalID: "C-9",
		CallTitle:      "Quarterly review",
		Content:        content,
		Similarity:     0.9,
		CreatedAt:      time.Now(),
	}
}

func newQueryService(t *testing.T, embedder *stubEmbedder, completer *stubCompleter, summaries []models.Candidate) *QueryService {
	t.Helper()

	fanout := search.NewFanout(
		search.NewMatcher(3),
		search.Searchers{
			Summaries:       &stubCorpus{candidates: summaries},
			Segments:        &stubCorpus{},
			FeatureRequests: &stubCorpus{},
		},
		search.Thresholds{Summaries: 0.6, Segments: 0.6, FeatureRequests: 0.6},
		time.Second,
		search.Hooks{},
	)

	cache, err := lru.New[string, []float32](16)
	require.NoError(t, err)

	return NewQueryService(QueryServiceParams{
		EmbeddingClient:  embedder,
		CompletionClient: completer,
		Fanout:           fanout,
		DefaultLimit:     5,
		RecentLookback:   30 * 24 * time.Hour,
		ContextMaxChars:  12_000,
		QueryCache:       cache,
	})
}

func TestQueryServiceSearch(t *testing.T) {
	t.Run("rejects empty query", func(t *testing.T) {
		svc := newQueryService(t, &stubEmbedder{}, &stubCompleter{}, nil)

		_, err := svc.Search(context.Background(), "   ", 5, search.WindowAll)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("returns ranked matches", func(t *testing.T) {
		svc := newQueryService(t, &stubEmbedder{}, &stubCompleter{}, []models.Candidate{summaryCandidate("renewal risks discussed")})

		results, err := svc.Search(context.Background(), "renewal risks", 5, search.WindowAll)
		require.NoError(t, err)
		require.Len(t, results.Summaries, 1)
		assert.Equal(t, "renewal risks discussed", results.Summaries[0].Content)
	})

	t.Run("caches the query embedding", func(t *testing.T) {
		embedder := &stubEmbedder{}
		svc := newQueryService(t, embedder, &stubCompleter{}, nil)

		_, err := svc.Search(context.Background(), "same query", 5, search.WindowAll)
		require.NoError(t, err)
		_, err = svc.Search(context.Background(), "same query", 5, search.WindowAll)
		require.NoError(t, err)

		assert.Equal(t, int32(1), embedder.calls.Load())
	})
}

type stubCacheMetrics struct {
	hits   atomic.Int32
	misses atomic.Int32
}

func (s *stubCacheMetrics) RecordHit(context.Context, string)  { s.hits.Add(1) }
func (s *stubCacheMetrics) RecordMiss(context.Context, string) { s.misses.Add(1) }

// gatedEmbedder blocks inside the load until released, so a test can hold a
// query-embedding flight open while other callers arrive.
type gatedEmbedder struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	g.calls.Add(1)
	g.entered <- struct{}{}
	<-g.release

	return []float32{1, 0, 0}, nil
}

func TestQueryEmbeddingCacheMetrics(t *testing.T) {
	newService := func(embedder EmbeddingClient, metrics *stubCacheMetrics) *QueryService {
		cache, err := lru.New[string, []float32](16)
		require.NoError(t, err)

		return NewQueryService(QueryServiceParams{
			EmbeddingClient: embedder,
			Fanout: search.NewFanout(
				search.NewMatcher(3),
				search.Searchers{Summaries: &stubCorpus{}, Segments: &stubCorpus{}, FeatureRequests: &stubCorpus{}},
				search.Thresholds{Summaries: 0.6, Segments: 0.6, FeatureRequests: 0.6},
				time.Second,
				search.Hooks{},
			),
			DefaultLimit:    5,
			RecentLookback:  30 * 24 * time.Hour,
			ContextMaxChars: 12_000,
			QueryCache:      cache,
			CacheMetrics:    metrics,
		})
	}

	t.Run("records one miss then one hit", func(t *testing.T) {
		metrics := &stubCacheMetrics{}
		svc := newService(&stubEmbedder{}, metrics)

		_, err := svc.Search(context.Background(), "same query", 5, search.WindowAll)
		require.NoError(t, err)
		_, err = svc.Search(context.Background(), "same query", 5, search.WindowAll)
		require.NoError(t, err)

		assert.Equal(t, int32(1), metrics.misses.Load())
		assert.Equal(t, int32(1), metrics.hits.Load())
	})

	t.Run("concurrent identical queries count as one miss", func(t *testing.T) {
		embedder := &gatedEmbedder{entered: make(chan struct{}, 1), release: make(chan struct{})}
		metrics := &stubCacheMetrics{}
		svc := newService(embedder, metrics)

		var wg sync.WaitGroup

		for range 2 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, err := svc.Search(context.Background(), "same query", 5, search.WindowAll)
				assert.NoError(t, err)
			}()
		}

		<-embedder.entered
		// Give the second caller time to join the in-flight load.
		time.Sleep(20 * time.Millisecond)
		close(embedder.release)
		wg.Wait()

		assert.Equal(t, int32(1), embedder.calls.Load())
		assert.Equal(t, int32(1), metrics.misses.Load())
	})
}

func TestQueryServiceAsk(t *testing.T) {
	t.Run("synthesizes an answer from the assembled context", func(t *testing.T) {
		completer := &stubCompleter{answer: "They discussed renewal risks [call:C-9]."}
		svc := newQueryService(t, &stubEmbedder{}, completer, []models.Candidate{summaryCandidate("renewal risks discussed")})

		result, err := svc.Ask(context.Background(), "what were the renewal risks?", 5, search.WindowAll)
		require.NoError(t, err)

		assert.Equal(t, "They discussed renewal risks [call:C-9].", result.Answer)
		assert.False(t, result.Context.Empty)
		assert.Contains(t, completer.gotUser, "renewal risks discussed")
		assert.True(t, strings.HasSuffix(completer.gotUser, "Question: what were the renewal risks?"))
		assert.Contains(t, result.Context.Citations, "call:C-9")
	})

	t.Run("skips the model when no context was found", func(t *testing.T) {
		completer := &stubCompleter{answer: "should not be used"}
		svc := newQueryService(t, &stubEmbedder{}, completer, nil)

		result, err := svc.Ask(context.Background(), "anything", 5, search.WindowAll)
		require.NoError(t, err)

		assert.True(t, result.Context.Empty)
		assert.NotEqual(t, "should not be used", result.Answer)
		assert.NotEmpty(t, result.Answer)
		assert.Empty(t, completer.gotUser)
	})
}
