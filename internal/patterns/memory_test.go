package patterns_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/pkg/pagination"
)

func newStore(t *testing.T, rows ...patterns.Pattern) *patterns.Memory {
	t.Helper()
	store := patterns.NewMemory(events.NewMemory(pagination.Config{DefaultPageSize: 25, MaxPageSize: 200}))
	require.NoError(t, store.Load(rows...))
	return store
}

func row(patternID, version string, active bool) patterns.Pattern {
	return patterns.Pattern{
		ID:        uuid.New(),
		PatternID: patternID,
		Version:   version,
		IsActive:  active,
	}
}

func TestLoadRejectsSecondActive(t *testing.T) {
	store := patterns.NewMemory(events.NewMemory(pagination.Config{}))
	err := store.Load(row("OBL-1", "1.0.0", true), row("OBL-1", "1.1.0", true))
	assert.ErrorIs(t, err, patterns.ErrActiveConflict)
}

func TestLoadRejectsDuplicateVersion(t *testing.T) {
	store := patterns.NewMemory(events.NewMemory(pagination.Config{}))
	err := store.Load(row("OBL-1", "1.0.0", true), row("OBL-1", "1.0.0", false))
	assert.ErrorIs(t, err, patterns.ErrDuplicate)
}

func TestUpdateCommitsRowsWithEvents(t *testing.T) {
	ctx := context.Background()
	v1 := row("OBL-1", "1.0.0", true)
	store := newStore(t, v1)

	recorded, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		draft, err := w.Insert(ctx, row("OBL-1", "1.1.0", false))
		if err != nil {
			return err
		}
		if err := w.Deactivate(ctx, v1.ID, patterns.Deprecation{At: time.Now(), Reason: "replaced"}); err != nil {
			return err
		}
		if err := w.Activate(ctx, draft.ID, "promoted"); err != nil {
			return err
		}
		_, err = w.Record(ctx, events.Event{
			PatternID:   "OBL-1",
			Type:        events.Activated,
			FromVersion: events.Version("1.0.0"),
			ToVersion:   events.Version("1.1.0"),
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.NotEqual(t, uuid.Nil, recorded[0].ID)

	active, err := store.FindActive(ctx, "OBL-1")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", active.Version)
	assert.Equal(t, "promoted", active.Notes)

	old, err := store.Find(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.Equal(t, "replaced", *old.DeprecatedReason)

	history, err := store.Events().History(ctx, "OBL-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUpdateErrorDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	v1 := row("OBL-1", "1.0.0", true)
	store := newStore(t, v1)
	boom := errors.New("boom")

	_, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		if _, err := w.Insert(ctx, row("OBL-1", "1.1.0", false)); err != nil {
			return err
		}
		if err := w.Deactivate(ctx, v1.ID, patterns.Deprecation{At: time.Now()}); err != nil {
			return err
		}
		if _, err := w.Record(ctx, events.Event{PatternID: "OBL-1", Type: events.Updated}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	versions, err := store.Versions(ctx, "OBL-1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].IsActive)

	history, err := store.Events().History(ctx, "OBL-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestWriterRejectsSecondActive(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, row("OBL-1", "1.0.0", true))

	_, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		_, err := w.Insert(ctx, row("OBL-1", "1.1.0", true))
		return err
	})
	assert.ErrorIs(t, err, patterns.ErrActiveConflict)

	_, err = store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		draft, err := w.Insert(ctx, row("OBL-1", "1.1.0", false))
		if err != nil {
			return err
		}
		return w.Activate(ctx, draft.ID, "")
	})
	assert.ErrorIs(t, err, patterns.ErrActiveConflict)
}

func TestWriterScope(t *testing.T) {
	ctx := context.Background()
	other := row("OBL-2", "1.0.0", true)
	store := newStore(t, row("OBL-1", "1.0.0", true), other)

	_, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		return w.Deactivate(ctx, other.ID, patterns.Deprecation{At: time.Now()})
	})
	assert.ErrorIs(t, err, patterns.ErrOutOfScope)

	_, err = store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		_, err := w.Insert(ctx, row("OBL-2", "1.1.0", false))
		return err
	})
	assert.ErrorIs(t, err, patterns.ErrOutOfScope)

	_, err = store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		_, err := w.Record(ctx, events.Event{PatternID: "OBL-2", Type: events.Updated})
		return err
	})
	assert.ErrorIs(t, err, patterns.ErrOutOfScope)

	_, err = store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		return w.Delete(ctx, uuid.New())
	})
	assert.ErrorIs(t, err, patterns.ErrNotFound)
}

func TestWriterDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, row("OBL-1", "1.0.0", true), row("OBL-1", "1.1.0", false))

	_, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		_, err := w.Insert(ctx, row("OBL-1", "1.1.0", false))
		return err
	})
	assert.ErrorIs(t, err, patterns.ErrDuplicate)
}

func TestVersionsOrderedBySemver(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		row("OBL-1", "1.10.0", false),
		row("OBL-1", "1.2.0", false),
		row("OBL-1", "1.0.0", true),
	)

	versions, err := store.Versions(ctx, "OBL-1")
	require.NoError(t, err)

	got := make([]string, len(versions))
	for i, v := range versions {
		got[i] = v.Version
	}
	assert.Equal(t, []string{"1.0.0", "1.2.0", "1.10.0"}, got)
}

func TestListActiveSorted(t *testing.T) {
	ctx := context.Background()
	store := newStore(t,
		row("OBL-B", "1.0.0", true),
		row("OBL-A", "1.0.0", true),
		row("OBL-A", "1.1.0", false),
	)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "OBL-A", active[0].PatternID)
	assert.Equal(t, "OBL-B", active[1].PatternID)
}

func TestUpdateSerializesPerPattern(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, row("OBL-1", "1.0.0", true))

	var (
		mu      sync.Mutex
		inside  int
		overlap bool
		wg      sync.WaitGroup
	)

	for range 8 {
		wg.Go(func() {
			_, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
				mu.Lock()
				inside++
				if inside > 1 {
					overlap = true
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.False(t, overlap)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	p := row("OBL-1", "1.0.0", true)
	p.Applicability.Modules = []string{"aml"}
	store := newStore(t, p)

	got, err := store.Find(ctx, p.ID)
	require.NoError(t, err)
	got.Applicability.Modules[0] = "changed"

	again, err := store.Find(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "aml", again.Applicability.Modules[0])
}

func TestSetPerformance(t *testing.T) {
	ctx := context.Background()
	p := row("OBL-1", "1.0.0", true)
	store := newStore(t, p)

	require.NoError(t, store.SetPerformance(p.ID, patterns.Performance{UsageCount: 20, SuccessRate: 0.5}))
	assert.ErrorIs(t, store.SetPerformance(uuid.New(), patterns.Performance{}), patterns.ErrNotFound)

	got, err := store.Find(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 20, got.Performance.UsageCount)
}
