// Package search implements hybrid lexical+vector retrieval over the three
// corpora (call summaries, transcript segments, feature requests): per-corpus
// scoring and deduplication, time-window filtering, concurrent fan-out with
// retry and partial-results degradation, and assembly of the cited context
// block handed to the answer synthesizer.
package search

import (
	"time"

	"github.com/callsift/callsift/internal/callerrors"
)

// WindowMode selects how far back a query looks.
type WindowMode string

// Window modes.
const (
	WindowAll    WindowMode = "all"
	WindowRecent WindowMode = "recent"
)

// TimeWindow restricts matches to calls created at or after Start.
// The zero value (WindowAll, nil Start) includes everything.
type TimeWindow struct {
	Mode  WindowMode
	Start *time.Time
}

// NewTimeWindow builds a window for the given mode. WindowRecent anchors the
// start at now minus lookback; WindowAll has no start.
func NewTimeWindow(mode WindowMode, now time.Time, lookback time.Duration) (TimeWindow, error) {
	switch mode {
	case WindowAll, "":
		return TimeWindow{Mode: WindowAll}, nil
	case WindowRecent:
		start := now.Add(-lookback)

		return TimeWindow{Mode: WindowRecent, Start: &start}, nil
	default:
		return TimeWindow{}, callerrors.NewInvalidArgumentError("window", "unknown window mode: "+string(mode))
	}
}

// Includes reports whether a record whose owning call was created at t falls
// inside the window. Applied as a pre-filter, before the result cap, so the
// cap is never filled with excluded rows.
func (w TimeWindow) Includes(t time.Time) bool {
	if w.Start == nil {
		return true
	}

	return !t.Before(*w.Start)
}

// StartTime returns the inclusive window start, or nil for an unbounded window.
// Repositories push this into the SQL WHERE clause.
func (w TimeWindow) StartTime() *time.Time {
	return w.Start
}
