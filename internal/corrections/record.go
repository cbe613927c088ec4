// Package corrections reads the human review feed and turns it into
// revision recommendations for a single pattern.
package corrections

import (
	"time"

	"github.com/google/uuid"
)

// Action is the outcome a reviewer chose for an extracted obligation.
type Action string

const (
	Confirmed Action = "confirmed"
	Edited    Action = "edited"
	Rejected  Action = "rejected"
)

// IsCorrection reports whether the action disagrees with the extraction.
func (a Action) IsCorrection() bool {
	return a == Edited || a == Rejected
}

// Record is one completed or pending review of a pattern-produced
// extraction. A nil ReviewedAt means the review is not finished.
type Record struct {
	ID            uuid.UUID      `json:"id"`
	PatternIDUsed string         `json:"pattern_id_used"`
	ReviewAction  Action         `json:"review_action"`
	OriginalData  map[string]any `json:"original_data"`
	EditedData    map[string]any `json:"edited_data"`
	ReviewedAt    *time.Time     `json:"reviewed_at"`
}

// Window is an inclusive time range over reviewed_at.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Last returns the window ending at now and spanning days.
func Last(now time.Time, days int) Window {
	return Window{From: now.AddDate(0, 0, -days), To: now}
}
