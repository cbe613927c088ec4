package patterns

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/pkg/pagination"
	"github.com/JaimeStill/tenet/pkg/query"
	"github.com/JaimeStill/tenet/pkg/repository"
	"github.com/JaimeStill/tenet/pkg/versioning"
)

type repo struct {
	db     *sql.DB
	events events.Log
	logger *slog.Logger
}

// New creates a Postgres-backed Store. Per-pattern serialization uses a
// transaction-scoped advisory lock; the partial unique index on
// (pattern_id) WHERE is_active backs it at the schema level.
func New(db *sql.DB, logger *slog.Logger, cfg pagination.Config) Store {
	return &repo{
		db:     db,
		events: events.New(db, logger, cfg),
		logger: logger.With("system", "patterns"),
	}
}

func (r *repo) Events() events.Log {
	return r.events
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Pattern, error) {
	return findByID(ctx, r.db, id)
}

func (r *repo) FindActive(ctx context.Context, patternID string) (*Pattern, error) {
	return findActive(ctx, r.db, patternID)
}

func (r *repo) FindVersion(ctx context.Context, patternID, version string) (*Pattern, error) {
	return findVersion(ctx, r.db, patternID, version)
}

func (r *repo) ListActive(ctx context.Context) ([]Pattern, error) {
	q, args := query.NewBuilder(projection, byPatternID).
		WhereEquals("IsActive", true).
		Build()

	rows, err := repository.QueryMany(ctx, r.db, q, args, scanPattern)
	if err != nil {
		return nil, fmt.Errorf("list active patterns: %w", err)
	}
	return rows, nil
}

func (r *repo) Versions(ctx context.Context, patternID string) ([]Pattern, error) {
	return versions(ctx, r.db, patternID)
}

func (r *repo) Update(ctx context.Context, patternID string, fn func(w Writer) error) ([]events.Event, error) {
	recorded, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) ([]events.Event, error) {
		if err := repository.LockKey(ctx, tx, "pattern:"+patternID); err != nil {
			return nil, err
		}

		w := &sqlWriter{tx: tx, patternID: patternID}
		if err := fn(w); err != nil {
			return nil, err
		}
		return w.recorded, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("pattern unit committed", "pattern_id", patternID, "events", len(recorded))
	return recorded, nil
}

type sqlWriter struct {
	tx        *sql.Tx
	patternID string
	recorded  []events.Event
}

func (w *sqlWriter) Find(ctx context.Context, id uuid.UUID) (*Pattern, error) {
	return findByID(ctx, w.tx, id)
}

func (w *sqlWriter) FindActive(ctx context.Context, patternID string) (*Pattern, error) {
	return findActive(ctx, w.tx, patternID)
}

func (w *sqlWriter) FindVersion(ctx context.Context, patternID, version string) (*Pattern, error) {
	return findVersion(ctx, w.tx, patternID, version)
}

func (w *sqlWriter) ListActive(ctx context.Context) ([]Pattern, error) {
	q, args := query.NewBuilder(projection, byPatternID).WhereEquals("IsActive", true).Build()
	return repository.QueryMany(ctx, w.tx, q, args, scanPattern)
}

func (w *sqlWriter) Versions(ctx context.Context, patternID string) ([]Pattern, error) {
	return versions(ctx, w.tx, patternID)
}

func (w *sqlWriter) ActiveRows(ctx context.Context) ([]Pattern, error) {
	q, args := query.NewBuilder(projection, byCreated...).
		WhereEquals("PatternID", w.patternID).
		WhereEquals("IsActive", true).
		ForUpdate().
		Build()

	rows, err := repository.QueryMany(ctx, w.tx, q, args, scanPattern)
	if err != nil {
		return nil, fmt.Errorf("lock active rows: %w", err)
	}
	return rows, nil
}

func (w *sqlWriter) Insert(ctx context.Context, p Pattern) (*Pattern, error) {
	if p.PatternID != w.patternID {
		return nil, ErrOutOfScope
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	cols, err := encodeColumns(p)
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO patterns(id, pattern_id, pattern_version, priority, display_name,
			description, matching, extraction_template, applicability, performance,
			is_active, base_version, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + returning

	args := []any{
		p.ID, p.PatternID, p.Version, p.Priority, p.DisplayName,
		p.Description, cols.matching, cols.template, cols.applicability, cols.performance,
		p.IsActive, p.BaseVersion, p.Notes,
	}

	stored, err := repository.QueryOne(ctx, w.tx, q, args, scanPattern)
	if err != nil {
		return nil, fmt.Errorf("insert %s %s: %w", p.PatternID, p.Version, mapWriteError(err))
	}
	return &stored, nil
}

func (w *sqlWriter) Deactivate(ctx context.Context, id uuid.UUID, d Deprecation) error {
	err := repository.ExecExpectOne(ctx, w.tx, `
		UPDATE patterns
		SET is_active = false, deprecated_at = $1, deprecated_reason = $2,
			replaced_by_pattern_id = $3, updated_at = $1
		WHERE id = $4 AND pattern_id = $5`,
		d.At.UTC(), d.Reason, d.ReplacedBy, id, w.patternID,
	)
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", id, w.scopeError(ctx, id, err))
	}
	return nil
}

func (w *sqlWriter) Activate(ctx context.Context, id uuid.UUID, notes string) error {
	err := repository.ExecExpectOne(ctx, w.tx, `
		UPDATE patterns
		SET is_active = true, deprecated_at = NULL, deprecated_reason = NULL,
			replaced_by_pattern_id = NULL,
			notes = CASE WHEN $1 = '' THEN notes ELSE $1 END,
			updated_at = $2
		WHERE id = $3 AND pattern_id = $4`,
		notes, time.Now().UTC(), id, w.patternID,
	)
	if err != nil {
		return fmt.Errorf("activate %s: %w", id, w.scopeError(ctx, id, err))
	}
	return nil
}

func (w *sqlWriter) Delete(ctx context.Context, id uuid.UUID) error {
	err := repository.ExecExpectOne(ctx, w.tx,
		"DELETE FROM patterns WHERE id = $1 AND pattern_id = $2",
		id, w.patternID,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, w.scopeError(ctx, id, err))
	}
	return nil
}

func (w *sqlWriter) Record(ctx context.Context, e events.Event) (*events.Event, error) {
	if e.PatternID != w.patternID {
		return nil, ErrOutOfScope
	}
	stored, err := events.Append(ctx, w.tx, e)
	if err != nil {
		return nil, err
	}
	w.recorded = append(w.recorded, stored)
	return &stored, nil
}

// scopeError distinguishes a missing row from a row owned by another
// pattern_id when an UPDATE or DELETE matched nothing.
func (w *sqlWriter) scopeError(ctx context.Context, id uuid.UUID, err error) error {
	if mapped := mapWriteError(err); mapped != ErrNotFound {
		return mapped
	}
	if p, findErr := findByID(ctx, w.tx, id); findErr == nil && p.PatternID != w.patternID {
		return ErrOutOfScope
	}
	return ErrNotFound
}

func mapWriteError(err error) error {
	if repository.IsCode(err, "23505") && isActiveIndexViolation(err) {
		return ErrActiveConflict
	}
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func findByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*Pattern, error) {
	stmt, args := query.NewBuilder(projection).WhereEquals("ID", id).BuildFirst()
	p, err := repository.QueryOne(ctx, q, stmt, args, scanPattern)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &p, nil
}

func findActive(ctx context.Context, q repository.Querier, patternID string) (*Pattern, error) {
	stmt, args := query.NewBuilder(projection).
		WhereEquals("PatternID", patternID).
		WhereEquals("IsActive", true).
		BuildFirst()
	p, err := repository.QueryOne(ctx, q, stmt, args, scanPattern)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &p, nil
}

func findVersion(ctx context.Context, q repository.Querier, patternID, version string) (*Pattern, error) {
	stmt, args := query.NewBuilder(projection).
		WhereEquals("PatternID", patternID).
		WhereEquals("Version", version).
		BuildFirst()
	p, err := repository.QueryOne(ctx, q, stmt, args, scanPattern)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &p, nil
}

func versions(ctx context.Context, q repository.Querier, patternID string) ([]Pattern, error) {
	stmt, args := query.NewBuilder(projection, byCreated...).WhereEquals("PatternID", patternID).Build()
	rows, err := repository.QueryMany(ctx, q, stmt, args, scanPattern)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", patternID, err)
	}
	sortByVersion(rows)
	return rows, nil
}

func sortByVersion(rows []Pattern) {
	slices.SortStableFunc(rows, func(a, b Pattern) int {
		return versioning.Compare(a.Version, b.Version)
	})
}
