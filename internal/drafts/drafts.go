// Package drafts cuts inactive draft versions from active patterns and
// seeds new patterns. Drafts wait for back-test results before promotion.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/pkg/versioning"
)

var tracer = otel.Tracer("tenet.drafts")

type Manager struct {
	store     patterns.Store
	observers events.Observers
	logger    *slog.Logger
}

// New creates a Manager. Observers are notified after each commit.
func New(store patterns.Store, logger *slog.Logger, observers ...events.Observer) *Manager {
	return &Manager{
		store:     store,
		observers: observers,
		logger:    logger.With("system", "drafts"),
	}
}

// CreateDraftPattern cuts a draft and reports only its id. Failures are
// logged and return uuid.Nil, false.
func (m *Manager) CreateDraftPattern(ctx context.Context, patternID string, changes Changes) (uuid.UUID, bool) {
	draft, err := m.Create(ctx, patternID, changes)
	if err != nil {
		m.logger.Error("draft creation failed", "pattern_id", patternID, "error", err)
		return uuid.Nil, false
	}
	return draft.ID, true
}

// Create inserts an inactive copy of the active version of patternID with
// changes applied and the minor version bumped, and records an UPDATED
// event in the same unit of work.
func (m *Manager) Create(ctx context.Context, patternID string, changes Changes) (*patterns.Pattern, error) {
	ctx, span := tracer.Start(ctx, "drafts.Create",
		trace.WithAttributes(attribute.String("pattern.id", patternID)),
	)
	defer span.End()

	if err := changes.validate(); err != nil {
		return nil, fail(span, err)
	}

	var draft *patterns.Pattern
	recorded, err := m.store.Update(ctx, patternID, func(w patterns.Writer) error {
		active, err := w.FindActive(ctx, patternID)
		if err != nil {
			return fmt.Errorf("load active %s: %w", patternID, err)
		}

		next, err := versioning.NextMinor(active.Version)
		if err != nil {
			return err
		}

		inserted, err := w.Insert(ctx, cut(*active, next, changes))
		if err != nil {
			return fmt.Errorf("insert draft: %w", err)
		}

		_, err = w.Record(ctx, events.Event{
			PatternID:   patternID,
			Type:        events.Updated,
			FromVersion: events.Version(active.Version),
			ToVersion:   events.Version(next),
			Data: map[string]any{
				"changes":  changes.data(),
				"draft_id": inserted.ID.String(),
			},
			Reason:      changes.Reason,
			PerformedBy: changes.PerformedBy,
		})
		if err != nil {
			return fmt.Errorf("record draft event: %w", err)
		}

		draft = inserted
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	m.observers.Notify(ctx, recorded...)

	span.SetAttributes(attribute.String("pattern.version", draft.Version))
	m.logger.Info("draft created",
		"pattern_id", patternID,
		"draft_id", draft.ID,
		"version", draft.Version,
		"base_version", *draft.BaseVersion,
	)
	return draft, nil
}

// Seed inserts the first, active version of a pattern with a CREATED
// event. A pattern_id that already has rows fails with
// patterns.ErrDuplicate.
func (m *Manager) Seed(ctx context.Context, cmd SeedCommand) (*patterns.Pattern, error) {
	ctx, span := tracer.Start(ctx, "drafts.Seed",
		trace.WithAttributes(attribute.String("pattern.id", cmd.PatternID)),
	)
	defer span.End()

	if err := cmd.finalize(); err != nil {
		return nil, fail(span, err)
	}

	var seeded *patterns.Pattern
	recorded, err := m.store.Update(ctx, cmd.PatternID, func(w patterns.Writer) error {
		existing, err := w.Versions(ctx, cmd.PatternID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("seed %s: %w", cmd.PatternID, patterns.ErrDuplicate)
		}

		inserted, err := w.Insert(ctx, patterns.Pattern{
			PatternID:          cmd.PatternID,
			Version:            cmd.Version,
			Priority:           cmd.Priority,
			DisplayName:        cmd.DisplayName,
			Description:        cmd.Description,
			Matching:           cmd.Matching,
			ExtractionTemplate: cmd.ExtractionTemplate,
			Applicability:      cmd.Applicability,
			IsActive:           true,
			Notes:              "Initial version",
		})
		if err != nil {
			return fmt.Errorf("insert seed: %w", err)
		}

		_, err = w.Record(ctx, events.Event{
			PatternID:   cmd.PatternID,
			Type:        events.Created,
			ToVersion:   events.Version(cmd.Version),
			Data:        map[string]any{"pattern_uuid": inserted.ID.String()},
			Reason:      cmd.Reason,
			PerformedBy: cmd.PerformedBy,
		})
		if err != nil {
			return fmt.Errorf("record seed event: %w", err)
		}

		seeded = inserted
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	m.observers.Notify(ctx, recorded...)
	m.logger.Info("pattern seeded", "pattern_id", cmd.PatternID, "version", cmd.Version)
	return seeded, nil
}

// cut derives the draft row from the active version.
func cut(active patterns.Pattern, version string, changes Changes) patterns.Pattern {
	base := active.Version

	draft := active.Clone()
	draft.ID = uuid.Nil
	draft.Version = version
	draft.IsActive = false
	draft.Performance = patterns.Performance{}
	draft.DeprecatedAt = nil
	draft.DeprecatedReason = nil
	draft.ReplacedByPatternID = nil
	draft.BaseVersion = &base
	draft.Notes = fmt.Sprintf("Draft of version %s", base)

	changes.apply(&draft)
	return draft
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// IsValidation reports whether err came from rejected input rather than
// the store.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidChanges) ||
		errors.Is(err, ErrInvalidSeed) ||
		errors.Is(err, versioning.ErrInvalidVersion)
}
