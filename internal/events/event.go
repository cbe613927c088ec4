// Package events implements the append-only pattern lifecycle ledger.
// Events are written only inside a pattern unit of work and are never
// updated or deleted.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle transition.
type Type string

const (
	Created    Type = "CREATED"
	Updated    Type = "UPDATED"
	Activated  Type = "ACTIVATED"
	Rollback   Type = "ROLLBACK"
	Deprecated Type = "DEPRECATED"
)

// Types returns every event type in lifecycle order.
func Types() []Type {
	return []Type{Created, Updated, Activated, Rollback, Deprecated}
}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case Created, Updated, Activated, Rollback, Deprecated:
		return true
	}
	return false
}

// UnmarshalJSON accepts any case and rejects unknown types.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Type(strings.ToUpper(s))
	if !v.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	*t = v
	return nil
}

// Event is one immutable lifecycle record. A nil PerformedBy marks a
// system-initiated transition.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	PatternID   string         `json:"pattern_id"`
	Type        Type           `json:"event_type"`
	FromVersion *string        `json:"from_version"`
	ToVersion   *string        `json:"to_version"`
	Data        map[string]any `json:"event_data"`
	Reason      string         `json:"reason,omitempty"`
	PerformedBy *string        `json:"performed_by"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Version returns a pointer to v, or nil when v is empty.
func Version(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Stamp fills ID and OccurredAt when unset.
func (e *Event) Stamp(now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now.UTC()
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
}
