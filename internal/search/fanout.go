package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/callsift/callsift/internal/callerrors"
	"github.com/callsift/callsift/internal/models"
)

// Searchers groups the three corpus backends a query fans out to.
type Searchers struct {
	Summaries       CorpusSearcher
	Segments        CorpusSearcher
	FeatureRequests CorpusSearcher
}

// Thresholds carries the per-corpus similarity cutoffs.
type Thresholds struct {
	Summaries       float64
	Segments        float64
	FeatureRequests float64
}

// Results is the joined output of one fan-out query. FailedCorpora lists
// corpora that were skipped after their retry also failed; the context
// assembler turns these into user-visible caveats.
type Results struct {
	Summaries       []models.Match
	Segments        []models.Match
	FeatureRequests []models.Match
	FailedCorpora   []models.Corpus
}

// Partial reports whether at least one corpus was skipped.
func (r Results) Partial() bool {
	return len(r.FailedCorpora) > 0
}

// Fanout runs the three per-corpus searches concurrently and joins them.
// Each corpus search gets a bounded timeout and one retry; a second failure
// degrades that corpus to a partial-results condition instead of failing the
// query. Only when all three corpora fail does the query fail as a whole.
type Fanout struct {
	matcher    *Matcher
	searchers  Searchers
	thresholds Thresholds
	timeout    time.Duration
	hooks      Hooks
}

// NewFanout wires a fan-out searcher. timeout bounds each individual corpus
// attempt, not the whole query.
func NewFanout(matcher *Matcher, searchers Searchers, thresholds Thresholds, timeout time.Duration, hooks Hooks) *Fanout {
	return &Fanout{
		matcher:    matcher,
		searchers:  searchers,
		thresholds: thresholds,
		timeout:    timeout,
		hooks:      hooks,
	}
}

type corpusOutcome struct {
	corpus  models.Corpus
	matches []models.Match
	err     error
}

// Search fans the query out to all three corpora and joins the results.
// Caller-bug errors (invalid argument, invalid embedding) fail immediately;
// they would fail identically on every corpus and on retry.
func (f *Fanout) Search(
	ctx context.Context, queryText string, queryEmbedding []float32, limit int, window TimeWindow,
) (Results, error) {
	targets := []struct {
		corpus    models.Corpus
		searcher  CorpusSearcher
		threshold float64
	}{
		{models.CorpusSummaries, f.searchers.Summaries, f.thresholds.Summaries},
		{models.CorpusSegments, f.searchers.Segments, f.thresholds.Segments},
		{models.CorpusFeatureRequests, f.searchers.FeatureRequests, f.thresholds.FeatureRequests},
	}

	outcomes := make([]corpusOutcome, len(targets))

	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)

		go func() {
			defer wg.Done()

			matches, err := f.searchCorpus(ctx, target.searcher, target.corpus, queryText, queryEmbedding, target.threshold, limit, window)
			outcomes[i] = corpusOutcome{corpus: target.corpus, matches: matches, err: err}
		}()
	}

	wg.Wait()

	var results Results

	for _, outcome := range outcomes {
		if outcome.err != nil {
			if isCallerBug(outcome.err) {
				return Results{}, outcome.err
			}

			results.FailedCorpora = append(results.FailedCorpora, outcome.corpus)

			continue
		}

		switch outcome.corpus {
		case models.CorpusSummaries:
			results.Summaries = outcome.matches
		case models.CorpusSegments:
			results.Segments = outcome.matches
		case models.CorpusFeatureRequests:
			results.FeatureRequests = outcome.matches
		}
	}

	if len(results.FailedCorpora) == len(targets) {
		names := make([]string, 0, len(results.FailedCorpora))
		for _, corpus := range results.FailedCorpora {
			names = append(names, string(corpus))
		}

		return Results{}, callerrors.NewSearchUnavailableError(names)
	}

	return results, nil
}

// searchCorpus runs one corpus search with a per-attempt timeout and a single retry.
func (f *Fanout) searchCorpus(
	ctx context.Context,
	searcher CorpusSearcher,
	corpus models.Corpus,
	queryText string,
	queryEmbedding []float32,
	threshold float64,
	limit int,
	window TimeWindow,
) ([]models.Match, error) {
	f.hooks.searchStart(corpus)

	start := time.Now()

	matches, err := f.attempt(ctx, searcher, corpus, queryText, queryEmbedding, threshold, limit, window)
	if err == nil || isCallerBug(err) {
		f.hooks.searchDone(corpus, outcomeFor(err), time.Since(start), len(matches))

		return matches, err
	}

	f.hooks.retry(corpus, err)

	matches, err = f.attempt(ctx, searcher, corpus, queryText, queryEmbedding, threshold, limit, window)
	f.hooks.searchDone(corpus, outcomeFor(err), time.Since(start), len(matches))

	if err != nil {
		f.hooks.partialResult(corpus, err)

		return nil, err
	}

	return matches, nil
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, callerrors.ErrSearchTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func (f *Fanout) attempt(
	ctx context.Context,
	searcher CorpusSearcher,
	corpus models.Corpus,
	queryText string,
	queryEmbedding []float32,
	threshold float64,
	limit int,
	window TimeWindow,
) ([]models.Match, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	matches, err := f.matcher.Match(attemptCtx, searcher, corpus, queryText, queryEmbedding, threshold, limit, window)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, callerrors.NewSearchTimeoutError(string(corpus))
		}

		return nil, err
	}

	return matches, nil
}

func isCallerBug(err error) bool {
	return errors.Is(err, callerrors.ErrInvalidArgument) || errors.Is(err, callerrors.ErrInvalidEmbedding)
}
