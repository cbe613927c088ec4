// Package database opens and manages the PostgreSQL connection pool.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// System owns the connection pool.
type System interface {
	// Connection returns the underlying pool.
	Connection() *sql.DB
	// Ping verifies the database is reachable within the configured timeout.
	Ping(ctx context.Context) error
	// Close releases the pool.
	Close() error
}

type database struct {
	conn        *sql.DB
	logger      *slog.Logger
	connTimeout time.Duration
}

// New configures a pool from cfg. No connection is made until first use
// or Ping.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:        db,
		logger:      logger.With("system", "database"),
		connTimeout: cfg.ConnTimeoutDuration(),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, d.connTimeout)
	defer cancel()

	if err := d.conn.PingContext(pingCtx); err != nil {
		d.logger.Error("database ping failed", "error", err)
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	d.logger.Debug("database connection established")
	return nil
}

func (d *database) Close() error {
	if err := d.conn.Close(); err != nil {
		d.logger.Error("database close failed", "error", err)
		return err
	}
	d.logger.Debug("database connection closed")
	return nil
}
