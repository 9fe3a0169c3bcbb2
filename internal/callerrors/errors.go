// Package callerrors provides sentinel and custom error types for the application.
package callerrors

import "strings"

// ErrInvalidArgument represents malformed caller input (zero/negative limit, empty query).
// Fail fast, never retried.
var ErrInvalidArgument = &InvalidArgumentError{}

// InvalidArgumentError is a sentinel error for invalid caller input.
type InvalidArgumentError struct {
	Field   string
	Message string
}

// NewInvalidArgumentError creates an InvalidArgumentError with a custom message.
func NewInvalidArgumentError(field, message string) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "invalid argument: " + e.Field
	}

	return "invalid argument"
}

// Is implements the error interface for error comparison.
func (e *InvalidArgumentError) Is(target error) bool {
	_, ok := target.(*InvalidArgumentError)

	return ok
}

// ErrInvalidEmbedding represents a query embedding whose dimensionality does not
// match the corpus embedding columns. A caller bug, never retried.
var ErrInvalidEmbedding = &InvalidEmbeddingError{}

// InvalidEmbeddingError is a sentinel error for embedding dimension mismatches.
type InvalidEmbeddingError struct {
	Got  int
	Want int
}

// NewInvalidEmbeddingError creates an InvalidEmbeddingError recording both dimensions.
func NewInvalidEmbeddingError(got, want int) *InvalidEmbeddingError {
	return &InvalidEmbeddingError{Got: got, Want: want}
}

// Error implements the error interface.
func (e *InvalidEmbeddingError) Error() string {
	if e.Got == 0 && e.Want == 0 {
		return "invalid embedding"
	}

	return "invalid embedding: dimension mismatch"
}

// Is implements the error interface for error comparison.
func (e *InvalidEmbeddingError) Is(target error) bool {
	_, ok := target.(*InvalidEmbeddingError)

	return ok
}

// ErrSearchTimeout represents a corpus search that exceeded its deadline after one retry.
var ErrSearchTimeout = &SearchTimeoutError{}

// SearchTimeoutError is a sentinel error for search deadline expiry.
type SearchTimeoutError struct {
	Corpus string
}

// NewSearchTimeoutError creates a SearchTimeoutError naming the corpus that timed out.
func NewSearchTimeoutError(corpus string) *SearchTimeoutError {
	return &SearchTimeoutError{Corpus: corpus}
}

// Error implements the error interface.
func (e *SearchTimeoutError) Error() string {
	if e.Corpus != "" {
		return "search timed out: " + e.Corpus
	}

	return "search timed out"
}

// Is implements the error interface for error comparison.
func (e *SearchTimeoutError) Is(target error) bool {
	_, ok := target.(*SearchTimeoutError)

	return ok
}

// ErrProvider represents an embedding or generation provider failure (rate limit, network).
// Retried once locally, then surfaced in the SearchTimeout class to the matcher's caller.
var ErrProvider = &ProviderError{}

// ProviderError is a sentinel error for external AI provider failures.
type ProviderError struct {
	Provider string
	Message  string
}

// NewProviderError creates a ProviderError with a custom message.
func NewProviderError(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Message: message}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Provider != "" {
		return e.Provider + " provider error"
	}

	return "provider error"
}

// Is implements the error interface for error comparison.
func (e *ProviderError) Is(target error) bool {
	_, ok := target.(*ProviderError)

	return ok
}

// ErrSearchUnavailable represents all three corpora failing: the caller should
// tell the user to retry later rather than synthesize an answer from nothing.
var ErrSearchUnavailable = &SearchUnavailableError{}

// SearchUnavailableError is a sentinel error for a fully failed query.
type SearchUnavailableError struct {
	Corpora []string
}

// NewSearchUnavailableError creates a SearchUnavailableError listing the failed corpora.
func NewSearchUnavailableError(corpora []string) *SearchUnavailableError {
	return &SearchUnavailableError{Corpora: corpora}
}

// Error implements the error interface.
func (e *SearchUnavailableError) Error() string {
	if len(e.Corpora) > 0 {
		return "search unavailable: " + strings.Join(e.Corpora, ", ")
	}

	return "search unavailable"
}

// Is implements the error interface for error comparison.
func (e *SearchUnavailableError) Is(target error) bool {
	_, ok := target.(*SearchUnavailableError)

	return ok
}
