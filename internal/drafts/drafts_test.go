package drafts_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tenet/internal/drafts"
	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/pkg/pagination"
	"github.com/JaimeStill/tenet/pkg/versioning"
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

func p1() patterns.Pattern {
	return patterns.Pattern{
		ID:          uuid.New(),
		PatternID:   "P1",
		Version:     "1.0.0",
		Priority:    5,
		DisplayName: "Annual report filing",
		Matching: patterns.Matching{
			Primary: patterns.Rule{Kind: "regex", Expression: `shall file .* annual`},
		},
		ExtractionTemplate: patterns.ExtractionTemplate{Category: "reporting", Frequency: "annual"},
		Performance:        patterns.Performance{UsageCount: 100, SuccessRate: 0.8},
		IsActive:           true,
	}
}

func setup(t *testing.T, rows ...patterns.Pattern) (*patterns.Memory, *drafts.Manager, *recorder) {
	t.Helper()
	store := patterns.NewMemory(events.NewMemory(pagination.Config{}))
	require.NoError(t, store.Load(rows...))
	rec := &recorder{}
	return store, drafts.New(store, discard(), rec), rec
}

func intPtr(v int) *int { return &v }

func TestCreateDraftPattern(t *testing.T) {
	ctx := context.Background()
	active := p1()
	store, m, rec := setup(t, active)
	by := "analyst@example.com"

	id, ok := m.CreateDraftPattern(ctx, "P1", drafts.Changes{
		Priority:    intPtr(9),
		Reason:      "high correction rate",
		PerformedBy: &by,
	})
	require.True(t, ok)
	require.NotEqual(t, uuid.Nil, id)

	draft, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", draft.Version)
	assert.False(t, draft.IsActive)
	assert.Equal(t, 9, draft.Priority)
	assert.Equal(t, "Draft of version 1.0.0", draft.Notes)
	assert.Equal(t, "1.0.0", *draft.BaseVersion)
	assert.Zero(t, draft.Performance.UsageCount)
	assert.Equal(t, active.Matching, draft.Matching)

	current, err := store.FindActive(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, active.ID, current.ID)
	assert.Equal(t, 5, current.Priority)

	history, err := store.Events().History(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	e := history[0]
	assert.Equal(t, events.Updated, e.Type)
	assert.Equal(t, "1.0.0", *e.FromVersion)
	assert.Equal(t, "1.1.0", *e.ToVersion)
	assert.Equal(t, "high correction rate", e.Reason)
	assert.Equal(t, by, *e.PerformedBy)
	assert.Equal(t, id.String(), e.Data["draft_id"])
	assert.Equal(t, map[string]any{"priority": 9}, e.Data["changes"])

	require.Len(t, rec.events, 1)
	assert.Equal(t, e.ID, rec.events[0].ID)
}

func TestCreateRejectsEmptyChanges(t *testing.T) {
	_, m, rec := setup(t, p1())

	_, err := m.Create(context.Background(), "P1", drafts.Changes{Reason: "nothing"})
	assert.ErrorIs(t, err, drafts.ErrInvalidChanges)
	assert.True(t, drafts.IsValidation(err))
	assert.Empty(t, rec.events)
}

func TestCreateAcceptsNegativePriority(t *testing.T) {
	_, m, _ := setup(t, p1())

	draft, err := m.Create(context.Background(), "P1", drafts.Changes{Priority: intPtr(-3)})
	require.NoError(t, err)
	assert.Equal(t, -3, draft.Priority)
}

func TestCreateRejectsBadRegex(t *testing.T) {
	_, m, _ := setup(t, p1())

	_, err := m.Create(context.Background(), "P1", drafts.Changes{
		Matching: &patterns.Matching{Primary: patterns.Rule{Kind: "regex", Expression: "(unclosed"}},
	})
	assert.ErrorIs(t, err, drafts.ErrInvalidChanges)
}

func TestCreateWithoutActiveVersion(t *testing.T) {
	inactive := p1()
	inactive.IsActive = false
	_, m, _ := setup(t, inactive)

	_, err := m.Create(context.Background(), "P1", drafts.Changes{Priority: intPtr(1)})
	assert.ErrorIs(t, err, patterns.ErrNotFound)

	id, ok := m.CreateDraftPattern(context.Background(), "missing", drafts.Changes{Priority: intPtr(1)})
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)
}

func TestCreateVersionCollisionLeavesNoState(t *testing.T) {
	ctx := context.Background()
	existing := p1()
	existing.ID = uuid.New()
	existing.Version = "1.1.0"
	existing.IsActive = false

	store, m, rec := setup(t, p1(), existing)

	_, err := m.Create(ctx, "P1", drafts.Changes{Priority: intPtr(1)})
	assert.ErrorIs(t, err, patterns.ErrDuplicate)

	versions, err := store.Versions(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	history, err := store.Events().History(ctx, "P1")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, rec.events)
}

func TestCreateMalformedVersion(t *testing.T) {
	bad := p1()
	bad.Version = "v1"
	_, m, _ := setup(t, bad)

	_, err := m.Create(context.Background(), "P1", drafts.Changes{Priority: intPtr(1)})
	assert.ErrorIs(t, err, versioning.ErrInvalidVersion)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store, m, rec := setup(t)

	seeded, err := m.Seed(ctx, drafts.SeedCommand{
		PatternID:   "P2",
		DisplayName: "Record retention",
		Matching: patterns.Matching{
			Primary: patterns.Rule{Kind: "keyword", Expression: "retain"},
		},
		ExtractionTemplate: patterns.ExtractionTemplate{Category: "record_keeping"},
	})
	require.NoError(t, err)
	assert.Equal(t, versioning.Initial, seeded.Version)
	assert.True(t, seeded.IsActive)

	active, err := store.FindActive(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, active.ID)

	history, err := store.Events().History(ctx, "P2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, events.Created, history[0].Type)
	assert.Nil(t, history[0].FromVersion)
	assert.Len(t, rec.events, 1)

	_, err = m.Seed(ctx, drafts.SeedCommand{
		PatternID:          "P2",
		DisplayName:        "again",
		Matching:           patterns.Matching{Primary: patterns.Rule{Kind: "keyword", Expression: "retain"}},
		ExtractionTemplate: patterns.ExtractionTemplate{Category: "record_keeping"},
	})
	assert.ErrorIs(t, err, patterns.ErrDuplicate)
}

func TestSeedValidation(t *testing.T) {
	_, m, _ := setup(t)

	tests := []struct {
		name string
		cmd  drafts.SeedCommand
	}{
		{"missing pattern id", drafts.SeedCommand{DisplayName: "x"}},
		{"missing rule", drafts.SeedCommand{PatternID: "P", DisplayName: "x",
			ExtractionTemplate: patterns.ExtractionTemplate{Category: "c"}}},
		{"bad version", drafts.SeedCommand{PatternID: "P", DisplayName: "x", Version: "1.0"}},
		{"unknown rule kind", drafts.SeedCommand{PatternID: "P", DisplayName: "x",
			Matching:           patterns.Matching{Primary: patterns.Rule{Kind: "fuzzy", Expression: "x"}},
			ExtractionTemplate: patterns.ExtractionTemplate{Category: "c"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Seed(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, drafts.ErrInvalidSeed)
		})
	}
}
