package patterns_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/internal/schema"
	"github.com/JaimeStill/tenet/pkg/pagination"
)

func postgresStore(t *testing.T) patterns.Store {
	t.Helper()
	if os.Getenv("TENET_INTEGRATION") != "1" {
		t.Skip("set TENET_INTEGRATION=1 to run against Postgres")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("tenet"),
		postgres.WithUsername("tenet"),
		postgres.WithPassword("tenet"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, schema.Up(dsn))

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return patterns.New(db, logger, pagination.Config{DefaultPageSize: 25, MaxPageSize: 200})
}

func TestPostgresLifecycle(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		p := row("OBL-1", "1.0.0", true)
		p.Matching.SemanticKeywords = []string{"shall"}
		if _, err := w.Insert(ctx, p); err != nil {
			return err
		}
		_, err := w.Record(ctx, events.Event{PatternID: "OBL-1", Type: events.Created, ToVersion: events.Version("1.0.0")})
		return err
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		_, err := w.Insert(ctx, row("OBL-1", "1.0.0", false))
		return err
	})
	assert.ErrorIs(t, err, patterns.ErrDuplicate)

	_, err = store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		draft, err := w.Insert(ctx, row("OBL-1", "1.1.0", false))
		if err != nil {
			return err
		}
		return w.Activate(ctx, draft.ID, "")
	})
	assert.ErrorIs(t, err, patterns.ErrActiveConflict)

	recorded, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		current, err := w.FindActive(ctx, "OBL-1")
		if err != nil {
			return err
		}
		draft, err := w.Insert(ctx, row("OBL-1", "1.1.0", false))
		if err != nil {
			return err
		}
		if err := w.Deactivate(ctx, current.ID, patterns.Deprecation{At: time.Now(), Reason: "replaced"}); err != nil {
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
			Data:        map[string]any{"improvement_rate": 0.1},
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, recorded, 1)

	active, err := store.FindActive(ctx, "OBL-1")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", active.Version)

	first, err := store.FindVersion(ctx, "OBL-1", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"shall"}, first.Matching.SemanticKeywords)
	assert.False(t, first.IsActive)

	history, err := store.Events().History(ctx, "OBL-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, events.Created, history[0].Type)
	assert.Equal(t, events.Activated, history[1].Type)
	assert.InDelta(t, 0.1, history[1].Data["improvement_rate"], 1e-9)
}

func TestPostgresSerializesWriters(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
		_, err := w.Insert(ctx, row("OBL-1", "1.0.0", true))
		return err
	})
	require.NoError(t, err)

	versions := []string{"1.1.0", "1.2.0", "1.3.0", "1.4.0"}
	var wg sync.WaitGroup
	for _, v := range versions {
		wg.Go(func() {
			_, err := store.Update(ctx, "OBL-1", func(w patterns.Writer) error {
				active, err := w.ActiveRows(ctx)
				if err != nil {
					return err
				}
				draft, err := w.Insert(ctx, row("OBL-1", v, false))
				if err != nil {
					return err
				}
				for _, a := range active {
					if err := w.Deactivate(ctx, a.ID, patterns.Deprecation{At: time.Now()}); err != nil {
						return err
					}
				}
				return w.Activate(ctx, draft.ID, "")
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	rows, err := store.Versions(ctx, "OBL-1")
	require.NoError(t, err)
	require.Len(t, rows, len(versions)+1)

	active := 0
	for _, r := range rows {
		if r.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}
