package promotion_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JaimeStill/tenet/internal/drafts"
	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/internal/promotion"
	"github.com/JaimeStill/tenet/pkg/pagination"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Observe(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	store    *patterns.Memory
	drafts   *drafts.Manager
	manager  *promotion.Manager
	observed *recorder
	seed     patterns.Pattern
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := patterns.NewMemory(events.NewMemory(pagination.Config{}))
	seed := patterns.Pattern{
		ID:                 uuid.New(),
		PatternID:          "P1",
		Version:            "1.0.0",
		Priority:           5,
		Matching:           patterns.Matching{Primary: patterns.Rule{Kind: "keyword", Expression: "shall"}},
		ExtractionTemplate: patterns.ExtractionTemplate{Category: "reporting"},
		IsActive:           true,
	}
	require.NoError(t, store.Load(seed))

	rec := &recorder{}
	return &fixture{
		store:    store,
		drafts:   drafts.New(store, discard()),
		manager:  promotion.New(store, discard(), rec),
		observed: rec,
		seed:     seed,
	}
}

func (f *fixture) draft(t *testing.T, priority int) uuid.UUID {
	t.Helper()
	d, err := f.drafts.Create(context.Background(), "P1", drafts.Changes{Priority: &priority})
	require.NoError(t, err)
	return d.ID
}

func (f *fixture) activeCount(t *testing.T) int {
	t.Helper()
	rows, err := f.store.Versions(context.Background(), "P1")
	require.NoError(t, err)
	n := 0
	for _, r := range rows {
		if r.IsActive {
			n++
		}
	}
	return n
}

func (f *fixture) history(t *testing.T, types ...events.Type) []events.Event {
	t.Helper()
	page, err := f.store.Events().List(context.Background(),
		events.Filters{PatternID: "P1", Types: types},
		pagination.PageRequest{Page: 1, PageSize: 100},
	)
	require.NoError(t, err)
	return page.Data
}

func TestImprovementGate(t *testing.T) {
	ctx := context.Background()

	t.Run("below threshold deletes draft", func(t *testing.T) {
		f := setup(t)
		id := f.draft(t, 9)

		ok := f.manager.ActivateDraftPattern(ctx, id, promotion.BacktestResults{ImprovementRate: 0.049})
		assert.False(t, ok)

		_, err := f.store.Find(ctx, id)
		assert.ErrorIs(t, err, patterns.ErrNotFound)

		active, err := f.store.FindActive(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, f.seed.ID, active.ID)
		assert.Empty(t, f.history(t, events.Activated))
		assert.Empty(t, f.observed.events)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		f := setup(t)
		id := f.draft(t, 9)

		ok := f.manager.ActivateDraftPattern(ctx, id, promotion.BacktestResults{ImprovementRate: 0.05, AccuracyChange: 0.02})
		require.True(t, ok)

		active, err := f.store.FindActive(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, id, active.ID)
		assert.Equal(t, "Activated with 5.0% improvement over 1.0.0", active.Notes)

		prior, err := f.store.Find(ctx, f.seed.ID)
		require.NoError(t, err)
		assert.False(t, prior.IsActive)
		assert.Equal(t, "Replaced by version 1.1.0", *prior.DeprecatedReason)
		assert.Equal(t, "P1", *prior.ReplacedByPatternID)
		assert.NotNil(t, prior.DeprecatedAt)

		activated := f.history(t, events.Activated)
		require.Len(t, activated, 1)
		assert.Equal(t, "1.0.0", *activated[0].FromVersion)
		assert.Equal(t, "1.1.0", *activated[0].ToVersion)
		assert.InDelta(t, 0.05, activated[0].Data["improvement_rate"], 1e-9)
		assert.Nil(t, activated[0].PerformedBy)
		assert.Len(t, f.observed.events, 1)
		assert.Equal(t, 1, f.activeCount(t))
	})
}

func TestActivateErrors(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.manager.Activate(ctx, uuid.New(), promotion.BacktestResults{ImprovementRate: 0.2})
	assert.ErrorIs(t, err, patterns.ErrNotFound)

	_, err = f.manager.Activate(ctx, f.seed.ID, promotion.BacktestResults{ImprovementRate: 0.2})
	assert.ErrorIs(t, err, promotion.ErrAlreadyActive)

	id := f.draft(t, 9)
	_, err = f.manager.Activate(ctx, id, promotion.BacktestResults{ImprovementRate: 0.2, AccuracyChange: 3})
	assert.ErrorIs(t, err, promotion.ErrInvalidResults)
}

func TestActivateLargeImprovement(t *testing.T) {
	f := setup(t)
	id := f.draft(t, 9)

	outcome, err := f.manager.Activate(context.Background(), id, promotion.BacktestResults{ImprovementRate: 1.5})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", outcome.ToVersion)
	assert.Equal(t, 1, f.activeCount(t))
}

func TestActivateDraftOfDeprecatedPattern(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	id := f.draft(t, 9)
	require.True(t, f.manager.DeprecatePattern(ctx, "P1", "regulation withdrawn", nil))
	assert.Equal(t, 0, f.activeCount(t))

	outcome, err := f.manager.Activate(ctx, id, promotion.BacktestResults{ImprovementRate: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "unknown", outcome.FromVersion)
	assert.Equal(t, "1.1.0", outcome.ToVersion)
	assert.Empty(t, outcome.Replaced)
	assert.Equal(t, 1, f.activeCount(t))

	activated := f.history(t, events.Activated)
	require.Len(t, activated, 1)
	assert.Equal(t, "unknown", *activated[0].FromVersion)
}

func TestActivateWithoutPriorActive(t *testing.T) {
	ctx := context.Background()
	store := patterns.NewMemory(events.NewMemory(pagination.Config{}))
	orphan := patterns.Pattern{ID: uuid.New(), PatternID: "P1", Version: "2.0.0"}
	require.NoError(t, store.Load(orphan))

	outcome, err := promotion.New(store, discard()).
		Activate(ctx, orphan.ID, promotion.BacktestResults{ImprovementRate: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "unknown", outcome.FromVersion)
	assert.Empty(t, outcome.Replaced)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, "unknown", *outcome.Events[0].FromVersion)
}

// loadDraft stores an inactive row cut from 1.0.0 without going through
// the draft manager, which would refuse a second 1.x draft.
func (f *fixture) loadDraft(t *testing.T, version string) uuid.UUID {
	t.Helper()
	base := "1.0.0"
	d := f.seed.Clone()
	d.ID = uuid.New()
	d.Version = version
	d.IsActive = false
	d.BaseVersion = &base
	require.NoError(t, f.store.Load(d))
	return d.ID
}

func TestStaleDraftRejected(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	first := f.draft(t, 7)
	second := f.loadDraft(t, "1.5.0")

	require.True(t, f.manager.ActivateDraftPattern(ctx, first, promotion.BacktestResults{ImprovementRate: 0.1}))

	_, err := f.manager.Activate(ctx, second, promotion.BacktestResults{ImprovementRate: 0.3})
	assert.ErrorIs(t, err, promotion.ErrStaleDraft)

	active, err := f.store.FindActive(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, first, active.ID)

	stale, err := f.store.Find(ctx, second)
	require.NoError(t, err)
	assert.False(t, stale.IsActive)
}

func TestConcurrentPromotionsOfSameBase(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	ids := []uuid.UUID{
		f.loadDraft(t, "1.1.0"),
		f.loadDraft(t, "1.2.0"),
		f.loadDraft(t, "1.3.0"),
		f.loadDraft(t, "1.4.0"),
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, id := range ids {
		wg.Go(func() {
			if f.manager.ActivateDraftPattern(ctx, id, promotion.BacktestResults{ImprovementRate: 0.2}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, f.activeCount(t))
	assert.Len(t, f.history(t, events.Activated), 1)
}

func TestRollbackRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	b := f.draft(t, 9)
	require.True(t, f.manager.ActivateDraftPattern(ctx, b, promotion.BacktestResults{ImprovementRate: 0.12}))
	assert.Equal(t, 1, f.activeCount(t))

	require.True(t, f.manager.RollbackPatternVersion(ctx, "P1", "1.0.0", "regression in production"))
	assert.Equal(t, 1, f.activeCount(t))

	a, err := f.store.FindActive(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, f.seed.ID, a.ID)
	assert.Nil(t, a.DeprecatedAt)
	assert.Nil(t, a.DeprecatedReason)
	assert.Nil(t, a.ReplacedByPatternID)

	deprecated, err := f.store.Find(ctx, b)
	require.NoError(t, err)
	assert.False(t, deprecated.IsActive)
	assert.Equal(t, "Rolled back to 1.0.0: regression in production", *deprecated.DeprecatedReason)
	assert.Equal(t, "P1", *deprecated.ReplacedByPatternID)

	transitions := f.history(t, events.Activated, events.Rollback)
	require.Len(t, transitions, 2)
	assert.Equal(t, events.Activated, transitions[0].Type)
	assert.Equal(t, events.Rollback, transitions[1].Type)
	assert.Equal(t, "1.1.0", *transitions[1].FromVersion)
	assert.Equal(t, "1.0.0", *transitions[1].ToVersion)
	assert.Nil(t, transitions[1].PerformedBy)
	assert.Equal(t, "regression in production", transitions[1].Reason)
}

func TestRollbackErrors(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.manager.Rollback(ctx, "P1", "9.9.9", "missing")
	assert.ErrorIs(t, err, patterns.ErrNotFound)

	_, err = f.manager.Rollback(ctx, "P404", "1.0.0", "missing")
	assert.ErrorIs(t, err, patterns.ErrNotFound)

	_, err = f.manager.Rollback(ctx, "P1", "1.0.0", "noop")
	assert.ErrorIs(t, err, promotion.ErrAlreadyActive)

	draft := f.draft(t, 9)
	_, err = f.manager.Rollback(ctx, "P1", "1.1.0", "forward")
	assert.ErrorIs(t, err, promotion.ErrNotRollbackTarget)
	assert.False(t, f.manager.RollbackPatternVersion(ctx, "P1", "1.1.0", "forward"))

	pending, err := f.store.Find(ctx, draft)
	require.NoError(t, err)
	assert.False(t, pending.IsActive)

	assert.False(t, f.manager.RollbackPatternVersion(ctx, "P1", "9.9.9", "missing"))
	assert.Empty(t, f.history(t, events.Rollback))
	assert.Equal(t, 1, f.activeCount(t))
}

func TestDeprecate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	by := "compliance-lead"

	require.True(t, f.manager.DeprecatePattern(ctx, "P1", "regulation repealed", &by))
	assert.Equal(t, 0, f.activeCount(t))

	row, err := f.store.Find(ctx, f.seed.ID)
	require.NoError(t, err)
	assert.Equal(t, "regulation repealed", *row.DeprecatedReason)
	assert.Nil(t, row.ReplacedByPatternID)

	deprecated := f.history(t, events.Deprecated)
	require.Len(t, deprecated, 1)
	assert.Equal(t, "1.0.0", *deprecated[0].FromVersion)
	assert.Nil(t, deprecated[0].ToVersion)
	assert.Equal(t, by, *deprecated[0].PerformedBy)

	assert.False(t, f.manager.DeprecatePattern(ctx, "P1", "again", nil))
}

func TestSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx := context.Background()
	f := setup(t)
	id := f.draft(t, 9)
	exporter.Reset()

	_, err := f.manager.Activate(ctx, id, promotion.BacktestResults{ImprovementRate: 0.01})
	require.ErrorIs(t, err, promotion.ErrBelowThreshold)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "promotion.Activate", spans[0].Name)

	var discarded bool
	for _, a := range spans[0].Attributes {
		if a.Key == "draft.discarded" {
			discarded = a.Value.AsBool()
		}
	}
	assert.True(t, discarded)
}
