// Package infrastructure assembles the shared systems every tenet command
// needs: logging, the database pool, and the optional cache, broadcast,
// storage, metrics, and tracing backends.
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JaimeStill/tenet/internal/broadcast"
	"github.com/JaimeStill/tenet/internal/config"
	"github.com/JaimeStill/tenet/pkg/cache"
	"github.com/JaimeStill/tenet/pkg/database"
	"github.com/JaimeStill/tenet/pkg/storage"
	"github.com/JaimeStill/tenet/pkg/telemetry"
)

// Infrastructure holds the systems shared by the engine. Cache, NATS, and
// Storage are nil when their configuration is disabled.
type Infrastructure struct {
	Logger   *slog.Logger
	Database database.System
	Cache    cache.System
	NATS     *nats.Conn
	Storage  storage.System
	Registry *prometheus.Registry

	shutdown telemetry.Shutdown
}

// New creates an Infrastructure from the application configuration. No
// network round trip is made until Start.
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	rdb, err := cache.New(&cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("cache init failed: %w", err)
	}

	nc, err := broadcast.Connect(&cfg.Broadcast, logger)
	if err != nil {
		return nil, fmt.Errorf("broadcast init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, &cfg.Telemetry, telemetry.Service{
		Name:        "tenet",
		Version:     cfg.Version,
		Environment: cfg.Env(),
	}, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Infrastructure{
		Logger:   logger,
		Database: db,
		Cache:    rdb,
		NATS:     nc,
		Storage:  store,
		Registry: reg,
		shutdown: shutdown,
	}, nil
}

// Start verifies the database is reachable and prepares storage. An
// unreachable cache is logged and left to the cache-aside fallback.
func (i *Infrastructure) Start(ctx context.Context) error {
	if err := i.Database.Ping(ctx); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}

	if i.Cache != nil {
		if err := i.Cache.Ping(ctx); err != nil {
			i.Logger.Warn("cache unavailable, reading through to the store", "error", err)
		}
	}

	if i.Storage != nil {
		if err := i.Storage.Init(ctx); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}

	return nil
}

// Close drains NATS, flushes spans, and releases every pool.
func (i *Infrastructure) Close(ctx context.Context) error {
	var errs []error

	if i.NATS != nil {
		if err := i.NATS.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := i.Database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if err := i.shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}

	return errors.Join(errs...)
}
