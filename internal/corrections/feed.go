package corrections

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/tenet/pkg/query"
	"github.com/JaimeStill/tenet/pkg/repository"
)

// Feed is the read side of the review workflow's correction table.
type Feed interface {
	// Corrections returns the edited or rejected reviews of patternID
	// completed within w.
	Corrections(ctx context.Context, patternID string, w Window) ([]Record, error)
	// ReviewCount counts every review of patternID completed within w,
	// whatever its action.
	ReviewCount(ctx context.Context, patternID string, w Window) (int, error)
}

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Postgres-backed Feed.
func New(db *sql.DB, logger *slog.Logger) Feed {
	return &repo{
		db:     db,
		logger: logger.With("system", "corrections"),
	}
}

func (r *repo) Corrections(ctx context.Context, patternID string, w Window) ([]Record, error) {
	q, args := windowed(patternID, w).
		WhereIn("ReviewAction", string(Edited), string(Rejected)).
		Build()

	records, err := repository.QueryMany(ctx, r.db, q, args, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("query corrections %s: %w", patternID, err)
	}
	return records, nil
}

func (r *repo) ReviewCount(ctx context.Context, patternID string, w Window) (int, error) {
	q, args := windowed(patternID, w).BuildCount()

	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reviews %s: %w", patternID, err)
	}
	return n, nil
}

func windowed(patternID string, w Window) *query.Builder {
	return query.NewBuilder(projection, byReviewed...).
		WhereEquals("PatternIDUsed", patternID).
		WhereNotNull("ReviewedAt").
		WhereAtLeast("ReviewedAt", w.From.UTC()).
		WhereAtMost("ReviewedAt", w.To.UTC())
}
