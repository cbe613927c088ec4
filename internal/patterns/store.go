package patterns

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tenet/internal/events"
)

// Reader is the read-only view of the pattern table. Reads tolerate
// eventual consistency and never block writers.
type Reader interface {
	Find(ctx context.Context, id uuid.UUID) (*Pattern, error)
	FindActive(ctx context.Context, patternID string) (*Pattern, error)
	FindVersion(ctx context.Context, patternID, version string) (*Pattern, error)
	// ListActive returns every active row ordered by pattern_id.
	ListActive(ctx context.Context) ([]Pattern, error)
	// Versions returns every row of patternID ordered by version.
	Versions(ctx context.Context, patternID string) ([]Pattern, error)
}

// Writer mutates rows of a single pattern_id inside a unit of work.
// Mutating a row of another pattern_id fails with ErrOutOfScope.
type Writer interface {
	Reader
	// ActiveRows returns every active row of the unit's pattern_id.
	ActiveRows(ctx context.Context) ([]Pattern, error)
	Insert(ctx context.Context, p Pattern) (*Pattern, error)
	Deactivate(ctx context.Context, id uuid.UUID, d Deprecation) error
	// Activate marks the row active and clears its deprecation fields.
	Activate(ctx context.Context, id uuid.UUID, notes string) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Record appends a lifecycle event committed with the unit.
	Record(ctx context.Context, e events.Event) (*events.Event, error)
}

// Store is the pattern table plus its ledger.
type Store interface {
	Reader
	// Events returns the ledger read side.
	Events() events.Log
	// Update runs fn as one unit of work for patternID. Writers of the same
	// pattern_id run one at a time. If fn returns an error nothing is
	// persisted; otherwise the recorded events are returned after commit.
	Update(ctx context.Context, patternID string, fn func(w Writer) error) ([]events.Event, error)
}
