// Package promotion moves the active pointer of a pattern: it promotes
// back-tested drafts, rolls back to earlier versions, and deprecates
// patterns permanently.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
)

// MinImprovement is the inclusive back-test improvement a draft needs.
const MinImprovement = 0.05

const unknownVersion = "unknown"

var (
	tracer   = otel.Tracer("tenet.promotion")
	validate = validator.New()
)

// BacktestResults is the outcome of replaying a draft against labelled
// history. Rates are fractions; improvement is unbounded while accuracy
// change stays within [-1, 1].
type BacktestResults struct {
	ImprovementRate float64 `json:"improvement_rate"`
	AccuracyChange  float64 `json:"accuracy_change" validate:"gte=-1,lte=1"`
}

func (r BacktestResults) data() map[string]any {
	return map[string]any{
		"improvement_rate": r.ImprovementRate,
		"accuracy_change":  r.AccuracyChange,
	}
}

// Outcome describes a committed transition.
type Outcome struct {
	PatternID   string         `json:"pattern_id"`
	FromVersion string         `json:"from_version"`
	ToVersion   string         `json:"to_version"`
	Active      uuid.UUID      `json:"active_id"`
	Replaced    []uuid.UUID    `json:"replaced_ids"`
	Events      []events.Event `json:"events"`
}

type Manager struct {
	store     patterns.Store
	observers events.Observers
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Manager. Observers are notified after each commit.
func New(store patterns.Store, logger *slog.Logger, observers ...events.Observer) *Manager {
	return &Manager{
		store:     store,
		observers: observers,
		logger:    logger.With("system", "promotion"),
		now:       time.Now,
	}
}

// ActivateDraftPattern reports whether the draft was promoted. A draft
// below the improvement threshold is deleted and reported as false.
func (m *Manager) ActivateDraftPattern(ctx context.Context, draftID uuid.UUID, results BacktestResults) bool {
	_, err := m.Activate(ctx, draftID, results)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrBelowThreshold):
		return false
	default:
		m.logger.Error("draft activation failed", "draft_id", draftID, "error", err)
		return false
	}
}

// Activate promotes draftID when its improvement rate reaches
// MinImprovement, deactivating every active row of the pattern in the
// same unit of work. Below the threshold the draft is deleted and
// ErrBelowThreshold returned.
func (m *Manager) Activate(ctx context.Context, draftID uuid.UUID, results BacktestResults) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "promotion.Activate",
		trace.WithAttributes(
			attribute.String("draft.id", draftID.String()),
			attribute.Float64("backtest.improvement_rate", results.ImprovementRate),
		),
	)
	defer span.End()

	if err := validate.Struct(results); err != nil {
		return nil, fail(span, fmt.Errorf("%w: %v", ErrInvalidResults, err))
	}

	draft, err := m.store.Find(ctx, draftID)
	if err != nil {
		return nil, fail(span, fmt.Errorf("load draft %s: %w", draftID, err))
	}
	span.SetAttributes(attribute.String("pattern.id", draft.PatternID))

	if draft.IsActive {
		return nil, fail(span, fmt.Errorf("draft %s: %w", draftID, ErrAlreadyActive))
	}

	if results.ImprovementRate < MinImprovement {
		return nil, m.discard(ctx, span, *draft, results)
	}

	outcome := &Outcome{PatternID: draft.PatternID, ToVersion: draft.Version, Active: draftID}

	recorded, err := m.store.Update(ctx, draft.PatternID, func(w patterns.Writer) error {
		current, err := w.Find(ctx, draftID)
		if err != nil {
			return fmt.Errorf("reload draft: %w", err)
		}
		if current.IsActive {
			return ErrAlreadyActive
		}

		active, err := w.ActiveRows(ctx)
		if err != nil {
			return err
		}
		if stale(*current, active) {
			return fmt.Errorf("draft %s of %s: %w", current.Version, current.PatternID, ErrStaleDraft)
		}

		prior := unknownVersion
		if len(active) > 0 {
			prior = active[len(active)-1].Version
		}
		outcome.FromVersion = prior

		now := m.now()
		replacedBy := current.PatternID
		for _, row := range active {
			err := w.Deactivate(ctx, row.ID, patterns.Deprecation{
				At:         now,
				Reason:     fmt.Sprintf("Replaced by version %s", current.Version),
				ReplacedBy: &replacedBy,
			})
			if err != nil {
				return err
			}
			outcome.Replaced = append(outcome.Replaced, row.ID)
		}

		notes := fmt.Sprintf("Activated with %.1f%% improvement over %s", results.ImprovementRate*100, prior)
		if err := w.Activate(ctx, current.ID, notes); err != nil {
			return err
		}

		_, err = w.Record(ctx, events.Event{
			PatternID:   current.PatternID,
			Type:        events.Activated,
			FromVersion: events.Version(prior),
			ToVersion:   events.Version(current.Version),
			Data:        results.data(),
		})
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}

	outcome.Events = recorded
	m.observers.Notify(ctx, recorded...)

	m.logger.Info("draft activated",
		"pattern_id", outcome.PatternID,
		"from_version", outcome.FromVersion,
		"to_version", outcome.ToVersion,
		"improvement_rate", results.ImprovementRate,
	)
	return outcome, nil
}

// discard deletes a draft that failed its back-test. No event is recorded.
func (m *Manager) discard(ctx context.Context, span trace.Span, draft patterns.Pattern, results BacktestResults) error {
	_, err := m.store.Update(ctx, draft.PatternID, func(w patterns.Writer) error {
		current, err := w.Find(ctx, draft.ID)
		if err != nil {
			return err
		}
		if current.IsActive {
			return ErrAlreadyActive
		}
		return w.Delete(ctx, draft.ID)
	})
	if err != nil {
		return fail(span, fmt.Errorf("discard draft %s: %w", draft.ID, err))
	}

	m.logger.Info("draft discarded",
		"pattern_id", draft.PatternID,
		"version", draft.Version,
		"improvement_rate", results.ImprovementRate,
	)
	span.SetAttributes(attribute.Bool("draft.discarded", true))
	return ErrBelowThreshold
}

// stale reports whether a version other than the draft's base is active.
// Rows without a base version predate drafting and are never stale, and a
// draft of a deprecated pattern may be promoted with nothing to replace.
func stale(draft patterns.Pattern, active []patterns.Pattern) bool {
	if draft.BaseVersion == nil || len(active) == 0 {
		return false
	}
	for _, row := range active {
		if row.Version == *draft.BaseVersion {
			return false
		}
	}
	return true
}

// RollbackPatternVersion reports whether patternID was rolled back to
// targetVersion.
func (m *Manager) RollbackPatternVersion(ctx context.Context, patternID, targetVersion, reason string) bool {
	if _, err := m.Rollback(ctx, patternID, targetVersion, reason); err != nil {
		m.logger.Error("rollback failed",
			"pattern_id", patternID,
			"target_version", targetVersion,
			"error", err,
		)
		return false
	}
	return true
}

// Rollback deactivates the active version of patternID and reactivates
// targetVersion, recording a system-initiated ROLLBACK event. The target
// must have been promoted and since deprecated; pending drafts are refused.
func (m *Manager) Rollback(ctx context.Context, patternID, targetVersion, reason string) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "promotion.Rollback",
		trace.WithAttributes(
			attribute.String("pattern.id", patternID),
			attribute.String("pattern.target_version", targetVersion),
		),
	)
	defer span.End()

	outcome := &Outcome{PatternID: patternID, ToVersion: targetVersion}

	recorded, err := m.store.Update(ctx, patternID, func(w patterns.Writer) error {
		current, err := w.FindActive(ctx, patternID)
		if err != nil {
			return fmt.Errorf("load active %s: %w", patternID, err)
		}
		target, err := w.FindVersion(ctx, patternID, targetVersion)
		if err != nil {
			return fmt.Errorf("load %s %s: %w", patternID, targetVersion, err)
		}
		if target.ID == current.ID {
			return fmt.Errorf("%s %s: %w", patternID, targetVersion, ErrAlreadyActive)
		}
		if target.DeprecatedAt == nil {
			return fmt.Errorf("%s %s: %w", patternID, targetVersion, ErrNotRollbackTarget)
		}

		outcome.FromVersion = current.Version
		outcome.Active = target.ID
		outcome.Replaced = []uuid.UUID{current.ID}

		replacedBy := patternID
		err = w.Deactivate(ctx, current.ID, patterns.Deprecation{
			At:         m.now(),
			Reason:     fmt.Sprintf("Rolled back to %s: %s", targetVersion, reason),
			ReplacedBy: &replacedBy,
		})
		if err != nil {
			return err
		}
		if err := w.Activate(ctx, target.ID, ""); err != nil {
			return err
		}

		_, err = w.Record(ctx, events.Event{
			PatternID:   patternID,
			Type:        events.Rollback,
			FromVersion: events.Version(current.Version),
			ToVersion:   events.Version(targetVersion),
			Reason:      reason,
		})
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}

	outcome.Events = recorded
	m.observers.Notify(ctx, recorded...)

	m.logger.Info("pattern rolled back",
		"pattern_id", patternID,
		"from_version", outcome.FromVersion,
		"to_version", targetVersion,
	)
	return outcome, nil
}

// DeprecatePattern reports whether the active version of patternID was
// retired.
func (m *Manager) DeprecatePattern(ctx context.Context, patternID, reason string, performedBy *string) bool {
	if _, err := m.Deprecate(ctx, patternID, reason, performedBy); err != nil {
		m.logger.Error("deprecation failed", "pattern_id", patternID, "error", err)
		return false
	}
	return true
}

// Deprecate retires the active version of patternID without a
// replacement, leaving the pattern with no active row.
func (m *Manager) Deprecate(ctx context.Context, patternID, reason string, performedBy *string) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "promotion.Deprecate",
		trace.WithAttributes(attribute.String("pattern.id", patternID)),
	)
	defer span.End()

	outcome := &Outcome{PatternID: patternID}

	recorded, err := m.store.Update(ctx, patternID, func(w patterns.Writer) error {
		active, err := w.ActiveRows(ctx)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return fmt.Errorf("deprecate %s: %w", patternID, patterns.ErrNotFound)
		}

		now := m.now()
		for _, row := range active {
			if err := w.Deactivate(ctx, row.ID, patterns.Deprecation{At: now, Reason: reason}); err != nil {
				return err
			}
			outcome.Replaced = append(outcome.Replaced, row.ID)
		}
		outcome.FromVersion = active[len(active)-1].Version

		_, err = w.Record(ctx, events.Event{
			PatternID:   patternID,
			Type:        events.Deprecated,
			FromVersion: events.Version(outcome.FromVersion),
			Reason:      reason,
			PerformedBy: performedBy,
		})
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}

	outcome.Events = recorded
	m.observers.Notify(ctx, recorded...)

	m.logger.Info("pattern deprecated", "pattern_id", patternID, "version", outcome.FromVersion)
	return outcome, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
