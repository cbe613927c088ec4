package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/tenet/pkg/pagination"
	"github.com/JaimeStill/tenet/pkg/query"
	"github.com/JaimeStill/tenet/pkg/repository"
)

// Log is the read side of the ledger consumed by audit tooling.
type Log interface {
	// List returns one page of events in chronological order.
	List(ctx context.Context, filters Filters, page pagination.PageRequest) (*pagination.PageResult[Event], error)
	// History returns every event for patternID in chronological order.
	History(ctx context.Context, patternID string) ([]Event, error)
}

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a Postgres-backed Log.
func New(db *sql.DB, logger *slog.Logger, cfg pagination.Config) Log {
	return &repo{
		db:         db,
		logger:     logger.With("system", "events"),
		pagination: cfg,
	}
}

func (r *repo) List(ctx context.Context, filters Filters, page pagination.PageRequest) (*pagination.PageResult[Event], error) {
	page.Normalize(r.pagination)

	qb := filters.apply(query.NewBuilder(projection, chronological...))

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) History(ctx context.Context, patternID string) ([]Event, error) {
	q, args := Filters{PatternID: patternID}.apply(query.NewBuilder(projection, chronological...)).Build()

	items, err := repository.QueryMany(ctx, r.db, q, args, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("query history %s: %w", patternID, err)
	}
	return items, nil
}

// Append writes e through conn, which is normally the transaction that
// carries the pattern mutation the event describes.
func Append(ctx context.Context, conn repository.Querier, e Event) (Event, error) {
	if e.PatternID == "" || !e.Type.Valid() {
		return Event{}, ErrMissingFields
	}
	e.Stamp(time.Now())

	data, err := repository.JSON(e.Data)
	if err != nil {
		return Event{}, err
	}

	var reason *string
	if e.Reason != "" {
		reason = &e.Reason
	}

	q := `
		INSERT INTO pattern_events(id, pattern_id, event_type, from_version, to_version,
			event_data, reason, performed_by, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, pattern_id, event_type, from_version, to_version,
			event_data, reason, performed_by, occurred_at`

	args := []any{
		e.ID, e.PatternID, string(e.Type), e.FromVersion, e.ToVersion,
		data, reason, e.PerformedBy, e.OccurredAt,
	}

	stored, err := repository.QueryOne(ctx, conn, q, args, scanEvent)
	if err != nil {
		return Event{}, fmt.Errorf("append %s event: %w", e.Type, err)
	}
	return stored, nil
}
