// Package cache provides the Redis client used for cache-aside reads.
package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// System owns a Redis client.
type System interface {
	// Client returns the underlying client.
	Client() *redis.Client
	// Key prefixes name with the configured key prefix.
	Key(name string) string
	// Ping verifies Redis is reachable.
	Ping(ctx context.Context) error
	// Close releases the client.
	Close() error
}

type client struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

// New creates a Redis-backed System. It returns nil, nil when cfg is not
// enabled so callers can treat caching as optional.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	timeout := cfg.TimeoutDuration()
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	return &client{
		rdb:    rdb,
		prefix: cfg.KeyPrefix,
		logger: logger.With("system", "cache"),
	}, nil
}

func (c *client) Client() *redis.Client {
	return c.rdb
}

func (c *client) Key(name string) string {
	return c.prefix + name
}

func (c *client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	c.logger.Debug("redis connection established")
	return nil
}

func (c *client) Close() error {
	return c.rdb.Close()
}
