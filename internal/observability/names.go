// Package observability provides OpenTelemetry metrics, tracing, and log enrichment for the callsift API.
package observability

// Metric names (OpenTelemetry / Prometheus).
const (
	MetricNameCorpusSearches      = "callsift_corpus_searches_total"
	MetricNameCorpusSearchRetries = "callsift_corpus_search_retries_total"
	MetricNamePartialResults      = "callsift_partial_results_total"
	MetricNameSearchDuration      = "callsift_corpus_search_duration_seconds"
	MetricNameMatchesReturned     = "callsift_matches_returned_total"

	MetricNameEnrichmentJobsEnqueued = "callsift_enrichment_jobs_enqueued_total"
	MetricNameEnrichmentOutcomes     = "callsift_enrichment_outcomes_total"
	MetricNameEnrichmentDuration     = "callsift_enrichment_duration_seconds"
	MetricNameProviderErrors         = "callsift_provider_errors_total"
	MetricNameEnrichmentQueueDepth   = "callsift_enrichment_queue_depth"

	MetricNameCacheHits   = "callsift_cache_hits_total"
	MetricNameCacheMisses = "callsift_cache_misses_total"

	MetricNameHTTPRequests        = "callsift_http_requests_total"
	MetricNameHTTPRequestDuration = "callsift_http_request_duration_seconds"
	MetricNameBodyTooLarge        = "callsift_http_request_body_too_large_total"
)

// Attribute keys.
const (
	AttrCorpus  = "corpus"
	AttrOutcome = "outcome"
	AttrReason  = "reason"
)

// AllowedCorpora bounds the corpus attribute (metric cardinality).
var AllowedCorpora = map[string]bool{
	"summaries":        true,
	"segments":         true,
	"feature_requests": true,
}

// AllowedSearchOutcomes for callsift_corpus_searches_total and the duration histogram.
var AllowedSearchOutcomes = map[string]bool{
	"success": true,
	"timeout": true,
	"error":   true,
}

// AllowedEnrichmentOutcomes for callsift_enrichment_outcomes_total.
var AllowedEnrichmentOutcomes = map[string]bool{
	"success":      true,
	"retry":        true,
	"skipped":      true,
	"failed_final": true,
}

// AllowedCacheNames bounds the cache attribute.
var AllowedCacheNames = map[string]bool{
	"query_embedding": true,
}

// NormalizeCorpus returns corpus if allowed, otherwise "unknown".
func NormalizeCorpus(corpus string) string {
	if AllowedCorpora[corpus] {
		return corpus
	}

	return "unknown"
}

// NormalizeSearchOutcome returns outcome if allowed, otherwise "unknown".
func NormalizeSearchOutcome(outcome string) string {
	if AllowedSearchOutcomes[outcome] {
		return outcome
	}

	return "unknown"
}

// NormalizeEnrichmentOutcome returns outcome if allowed, otherwise "unknown".
func NormalizeEnrichmentOutcome(outcome string) string {
	if AllowedEnrichmentOutcomes[outcome] {
		return outcome
	}

	return "unknown"
}

// NormalizeCacheName returns name if allowed, otherwise "unknown".
func NormalizeCacheName(name string) string {
	if AllowedCacheNames[name] {
		return name
	}

	return "unknown"
}
