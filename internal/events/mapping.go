package events

import (
	"github.com/JaimeStill/tenet/pkg/query"
	"github.com/JaimeStill/tenet/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "pattern_events", "e").
	Project("id", "ID").
	Project("pattern_id", "PatternID").
	Project("event_type", "Type").
	Project("from_version", "FromVersion").
	Project("to_version", "ToVersion").
	Project("event_data", "Data").
	Project("reason", "Reason").
	Project("performed_by", "PerformedBy").
	Project("occurred_at", "OccurredAt")

// Ledger order: oldest first, id as tiebreaker for events in the same instant.
var chronological = []query.SortField{
	{Field: "OccurredAt"},
	{Field: "ID"},
}

// Filters narrows a history query. Zero values are ignored.
type Filters struct {
	PatternID string
	Types     []Type
}

func (f Filters) apply(b *query.Builder) *query.Builder {
	if f.PatternID != "" {
		b.WhereEquals("PatternID", f.PatternID)
	}
	types := make([]any, len(f.Types))
	for i, t := range f.Types {
		types[i] = string(t)
	}
	return b.WhereIn("Type", types...)
}

func (f Filters) match(e Event) bool {
	if f.PatternID != "" && e.PatternID != f.PatternID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}

func scanEvent(s repository.Scanner) (Event, error) {
	var e Event
	var reason *string
	var data []byte

	err := s.Scan(
		&e.ID,
		&e.PatternID,
		&e.Type,
		&e.FromVersion,
		&e.ToVersion,
		&data,
		&reason,
		&e.PerformedBy,
		&e.OccurredAt,
	)
	if err != nil {
		return e, err
	}

	if reason != nil {
		e.Reason = *reason
	}

	e.Data = map[string]any{}
	if err := repository.UnmarshalJSON(data, &e.Data, "event_data"); err != nil {
		return e, err
	}

	return e, nil
}
