package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callsift/callsift/internal/models"
)

// NoRelevantContext is returned instead of an empty context so callers can
// short-circuit answer generation rather than prompting the model with nothing.
const NoRelevantContext = "No relevant context was found for this query."

// Citation maps a citation key back to its source record.
type Citation struct {
	Key            string        `json:"key"`
	Corpus         models.Corpus `json:"corpus"`
	CallID         uuid.UUID     `json:"call_id"`
	CallExternalID string        `json:"call_external_id"`
	CallTitle      string        `json:"call_title"`
	CreatedAt      time.Time     `json:"created_at"`
	OffsetSeconds  *float64      `json:"offset_seconds,omitempty"`
}

// Context is the assembled prompt context: the rendered text block plus the
// citation index the synthesizer's cited output is reconciled against.
type Context struct {
	Text      string              `json:"text"`
	Citations map[string]Citation `json:"citations"`
	// Empty is true when no corpus contributed a record and Text holds the
	// no-relevant-context sentinel.
	Empty bool `json:"empty"`
}

type contextEntry struct {
	text     string
	citation Citation
}

type contextSection struct {
	header  string
	entries []contextEntry
}

// Assemble merges ranked matches from the three corpora into one bounded,
// cited context block. Sections appear in a fixed order: call summaries, then
// transcript excerpts, then feature requests. When the rendered text would
// exceed maxChars, entries are dropped from the tail of the lowest-priority
// section first (feature requests, then transcript excerpts, then summaries);
// summaries survive longest since they are the primary context.
func Assemble(results Results, maxChars int) Context {
	sections := []contextSection{
		{header: "## Call summaries", entries: summaryEntries(results.Summaries)},
		{header: "## Transcript excerpts", entries: segmentEntries(results.Segments)},
		{header: "## Feature requests", entries: featureEntries(results.FeatureRequests)},
	}

	caveats := caveatLines(results.FailedCorpora)

	if countEntries(sections) == 0 {
		return emptyContext(caveats)
	}

	// Drop order: feature requests from the tail, then excerpts, then summaries.
	text := render(sections, caveats)
	for len(text) > maxChars {
		if !dropTail(sections) {
			break
		}

		text = render(sections, caveats)
	}

	if countEntries(sections) == 0 {
		return emptyContext(caveats)
	}

	citations := make(map[string]Citation)

	for _, section := range sections {
		for _, entry := range section.entries {
			citations[entry.citation.Key] = entry.citation
		}
	}

	return Context{Text: text, Citations: citations}
}

func summaryEntries(matches []models.Match) []contextEntry {
	entries := make([]contextEntry, 0, len(matches))

	for _, m := range matches {
		key := "call:" + m.CallExternalID
		text := fmt.Sprintf("[%s] %s (%s)\n%s", key, m.CallTitle, m.CreatedAt.Format("2006-01-02"), m.Content)

		entries = append(entries, contextEntry{text: text, citation: citationFor(key, m)})
	}

	return entries
}

func segmentEntries(matches []models.Match) []contextEntry {
	entries := make([]contextEntry, 0, len(matches))

	for _, m := range matches {
		key := "segment:" + m.EntityID.String()

		speaker := "Unknown speaker"
		if m.Speaker != nil && *m.Speaker != "" {
			speaker = *m.Speaker
		}

		text := fmt.Sprintf("[%s] %s, %s:\n%q", key, m.CallTitle, speaker, m.Content)

		entries = append(entries, contextEntry{text: text, citation: citationFor(key, m)})
	}

	return entries
}

func featureEntries(matches []models.Match) []contextEntry {
	entries := make([]contextEntry, 0, len(matches))

	for _, m := range matches {
		key := "feature:" + m.EntityID.String()

		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s", key, m.Content)

		if m.Priority != nil && *m.Priority != "" {
			fmt.Fprintf(&b, " (priority: %s)", *m.Priority)
		}

		fmt.Fprintf(&b, "\nFrom call: %s", m.CallTitle)

		if m.Quote != nil && *m.Quote != "" {
			fmt.Fprintf(&b, "\nQuote: %q", *m.Quote)
		}

		entries = append(entries, contextEntry{text: b.String(), citation: citationFor(key, m)})
	}

	return entries
}

func citationFor(key string, m models.Match) Citation {
	return Citation{
		Key:            key,
		Corpus:         m.Corpus,
		CallID:         m.CallID,
		CallExternalID: m.CallExternalID,
		CallTitle:      m.CallTitle,
		CreatedAt:      m.CreatedAt,
		OffsetSeconds:  m.OffsetSeconds,
	}
}

// emptyContext is the no-context result; degraded-corpus caveats still appear
// so the caller can tell "nothing matched" from "a source was down".
func emptyContext(caveats []string) Context {
	text := NoRelevantContext
	if len(caveats) > 0 {
		text += "\n\n" + strings.Join(caveats, "\n")
	}

	return Context{Text: text, Citations: map[string]Citation{}, Empty: true}
}

func caveatLines(failed []models.Corpus) []string {
	labels := map[models.Corpus]string{
		models.CorpusSummaries:       "call summaries",
		models.CorpusSegments:        "transcript excerpts",
		models.CorpusFeatureRequests: "feature requests",
	}

	lines := make([]string, 0, len(failed))
	for _, corpus := range failed {
		lines = append(lines, fmt.Sprintf("Note: the %s source was unavailable for this query; results may be incomplete.", labels[corpus]))
	}

	return lines
}

func countEntries(sections []contextSection) int {
	var n int
	for _, section := range sections {
		n += len(section.entries)
	}

	return n
}

// dropTail removes the last entry of the lowest-priority non-empty section.
// Sections are ordered summaries, excerpts, feature requests, so it scans
// from the back. Returns false when nothing is left to drop.
func dropTail(sections []contextSection) bool {
	for i := len(sections) - 1; i >= 0; i-- {
		if n := len(sections[i].entries); n > 0 {
			sections[i].entries = sections[i].entries[:n-1]

			return true
		}
	}

	return false
}

func render(sections []contextSection, caveats []string) string {
	var blocks []string

	for _, section := range sections {
		if len(section.entries) == 0 {
			continue
		}

		parts := make([]string, 0, len(section.entries)+1)
		parts = append(parts, section.header)

		for _, entry := range section.entries {
			parts = append(parts, entry.text)
		}

		blocks = append(blocks, strings.Join(parts, "\n\n"))
	}

	blocks = append(blocks, caveats...)

	return strings.Join(blocks, "\n\n")
}
