package cache_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tenet/pkg/cache"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewDisabled(t *testing.T) {
	cfg := cache.Config{}
	require.NoError(t, cfg.Finalize(nil))

	sys, err := cache.New(&cfg, discard())
	require.NoError(t, err)
	assert.Nil(t, sys)
}

func TestNewPingAndKey(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := cache.Config{Addr: mr.Addr(), KeyPrefix: "test:"}
	require.NoError(t, cfg.Finalize(nil))

	sys, err := cache.New(&cfg, discard())
	require.NoError(t, err)
	require.NotNil(t, sys)
	t.Cleanup(func() { sys.Close() })

	require.NoError(t, sys.Ping(context.Background()))
	assert.Equal(t, "test:patterns:active", sys.Key("patterns:active"))
}

func TestFinalize(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis:6379")
	t.Setenv("TEST_REDIS_TTL", "90s")

	cfg := cache.Config{}
	require.NoError(t, cfg.Finalize(&cache.Env{Addr: "TEST_REDIS_ADDR", TTL: "TEST_REDIS_TTL"}))

	assert.True(t, cfg.Enabled())
	assert.Equal(t, 90*time.Second, cfg.TTLDuration())
	assert.Equal(t, "tenet:", cfg.KeyPrefix)

	bad := cache.Config{TTL: "0s"}
	assert.Error(t, bad.Finalize(nil))
}
