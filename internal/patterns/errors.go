package patterns

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("pattern not found")
	ErrDuplicate      = errors.New("pattern version already exists")
	ErrActiveConflict = errors.New("pattern already has an active version")
	ErrOutOfScope     = errors.New("row belongs to a different pattern_id")
)

// activeIndex is the partial unique index allowing one active row per pattern_id.
const activeIndex = "patterns_one_active_idx"

func isActiveIndexViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == activeIndex
}
