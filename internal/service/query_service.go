// Package service contains the application services: query orchestration
// (embed, fan-out search, context assembly, answer synthesis), call ingestion,
// and the enrichment job payloads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/callsift/callsift/internal/callerrors"
	"github.com/callsift/callsift/internal/observability"
	"github.com/callsift/callsift/internal/search"
)

const queryEmbeddingCacheName = "query_embedding"

// Sentinel errors for query handling (used by handlers for status mapping).
var (
	ErrEmptyQuery = errors.New("query is required and must be non-empty")
)

// EmbeddingClient turns query text into a fixed-length vector.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// CompletionClient generates the final answer from the assembled context.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// AskResult is one answered query: the synthesized answer plus the context and
// citation index it was generated from.
type AskResult struct {
	Answer  string
	Context search.Context
	Results search.Results
}

// QueryService answers natural-language questions over the call corpora.
// It embeds the query (with an LRU cache in front of the provider), fans the
// search out to the three corpora, assembles the cited context, and hands it
// to the completion model.
type QueryService struct {
	embeddingClient  EmbeddingClient
	completionClient CompletionClient
	fanout           *search.Fanout
	defaultLimit     int
	recentLookback   time.Duration
	contextMaxChars  int
	queryCache       *lru.Cache[string, []float32]
	queryLoadGroup   singleflight.Group
	cacheMetrics     observability.CacheMetrics
	logger           *slog.Logger
}

// QueryServiceParams configures QueryService. QueryCache and CacheMetrics may
// be nil (no caching); CompletionClient may be nil for search-only deployments.
type QueryServiceParams struct {
	EmbeddingClient  EmbeddingClient
	CompletionClient CompletionClient
	Fanout           *search.Fanout
	DefaultLimit     int
	RecentLookback   time.Duration
	ContextMaxChars  int
	QueryCache       *lru.Cache[string, []float32]
	CacheMetrics     observability.CacheMetrics
	Logger           *slog.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(p QueryServiceParams) *QueryService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &QueryService{
		embeddingClient:  p.EmbeddingClient,
		completionClient: p.CompletionClient,
		fanout:           p.Fanout,
		defaultLimit:     p.DefaultLimit,
		recentLookback:   p.RecentLookback,
		contextMaxChars:  p.ContextMaxChars,
		queryCache:       p.QueryCache,
		cacheMetrics:     p.CacheMetrics,
		logger:           logger,
	}
}

// Search embeds the query and runs the three-corpus fan-out, returning ranked
// matches per corpus. limit <= 0 falls back to the configured default.
func (s *QueryService) Search(
	ctx context.Context, query string, limit int, mode search.WindowMode,
) (search.Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return search.Results{}, ErrEmptyQuery
	}

	if limit <= 0 {
		limit = s.defaultLimit
	}

	window, err := search.NewTimeWindow(mode, time.Now(), s.recentLookback)
	if err != nil {
		return search.Results{}, err
	}

	embedding, err := s.queryEmbedding(ctx, query)
	if err != nil {
		s.logger.Error("search: query embedding failed", "error", err)

		return search.Results{}, callerrors.NewProviderError("openai", err.Error())
	}

	results, err := s.fanout.Search(ctx, query, embedding, limit, window)
	if err != nil {
		return search.Results{}, fmt.Errorf("fan-out search: %w", err)
	}

	return results, nil
}

const answerSystemPrompt = `You are an assistant that answers questions about recorded sales calls.
Answer using ONLY the provided context. Cite sources using the bracketed keys
from the context (for example [call:C-1042]). If the context does not contain
the answer, say so plainly instead of guessing.`

// Ask answers a natural-language question: search, assemble the cited context,
// and synthesize an answer. When no corpus contributed any context the model
// is skipped and a fixed not-found answer is returned.
func (s *QueryService) Ask(
	ctx context.Context, query string, limit int, mode search.WindowMode,
) (AskResult, error) {
	results, err := s.Search(ctx, query, limit, mode)
	if err != nil {
		return AskResult{}, err
	}

	assembled := search.Assemble(results, s.contextMaxChars)

	out := AskResult{Context: assembled, Results: results}

	if assembled.Empty {
		out.Answer = "I could not find any relevant calls for that question."

		return out, nil
	}

	userPrompt := fmt.Sprintf("Context:\n\n%s\n\nQuestion: %s", assembled.Text, query)

	answer, err := s.completionClient.Complete(ctx, answerSystemPrompt, userPrompt, 0.2)
	if err != nil {
		s.logger.Error("ask: answer synthesis failed", "error", err)

		return AskResult{}, callerrors.NewProviderError("openai", err.Error())
	}

	out.Answer = answer

	return out, nil
}

func (s *QueryService) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if s.queryCache == nil {
		return s.embeddingClient.CreateEmbedding(ctx, query)
	}

	if vec, ok := s.queryCache.Get(query); ok {
		if s.cacheMetrics != nil {
			s.cacheMetrics.RecordHit(ctx, queryEmbeddingCacheName)
		}

		return vec, nil
	}

	val, err, _ := s.queryLoadGroup.Do(query, func() (any, error) {
		// Recorded inside the flight so concurrent callers sharing this load
		// count as one miss, not one per caller.
		if s.cacheMetrics != nil {
			s.cacheMetrics.RecordMiss(ctx, queryEmbeddingCacheName)
		}

		vec, loadErr := s.embeddingClient.CreateEmbedding(ctx, query)
		if loadErr != nil {
			return nil, fmt.Errorf("create embedding: %w", loadErr)
		}

		s.queryCache.Add(query, vec)

		return vec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	return val.([]float32), nil
}
