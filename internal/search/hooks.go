package search

import (
	"time"

	"github.com/callsift/callsift/internal/models"
)

// Hooks receives notifications at defined points of a fan-out search.
// All fields are optional; nil fields are skipped. Callers use these to drive
// logging and metrics without threading observability through the matcher.
type Hooks struct {
	// OnSearchStart fires once per corpus before the first attempt.
	OnSearchStart func(corpus models.Corpus)
	// OnRetry fires when a corpus search failed its first attempt and is retried.
	OnRetry func(corpus models.Corpus, err error)
	// OnPartialResult fires when a corpus is dropped after its retry also failed.
	OnPartialResult func(corpus models.Corpus, err error)
	// OnSearchDone fires once per corpus with the final outcome
	// ("success", "timeout", or "error"), total duration, and match count.
	OnSearchDone func(corpus models.Corpus, outcome string, duration time.Duration, matches int)
}

func (h Hooks) searchStart(corpus models.Corpus) {
	if h.OnSearchStart != nil {
		h.OnSearchStart(corpus)
	}
}

func (h Hooks) retry(corpus models.Corpus, err error) {
	if h.OnRetry != nil {
		h.OnRetry(corpus, err)
	}
}

func (h Hooks) partialResult(corpus models.Corpus, err error) {
	if h.OnPartialResult != nil {
		h.OnPartialResult(corpus, err)
	}
}

func (h Hooks) searchDone(corpus models.Corpus, outcome string, duration time.Duration, matches int) {
	if h.OnSearchDone != nil {
		h.OnSearchDone(corpus, outcome, duration, matches)
	}
}
