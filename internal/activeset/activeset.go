// Package activeset serves the active pattern set to the live matching
// path. Reads go through Redis when a cache is configured and fall back to
// the pattern store otherwise.
package activeset

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/pkg/cache"
)

const keyName = "patterns:active"

// Set is the read-through view of every active pattern row.
type Set struct {
	store  patterns.Reader
	cache  cache.System
	ttl    time.Duration
	group  singleflight.Group
	gen    atomic.Uint64
	logger *slog.Logger
}

// New creates a Set. A nil cache disables caching.
func New(store patterns.Reader, c cache.System, ttl time.Duration, logger *slog.Logger) *Set {
	return &Set{
		store:  store,
		cache:  c,
		ttl:    ttl,
		logger: logger.With("system", "activeset"),
	}
}

// Active returns every active row ordered by pattern_id. Concurrent
// misses within one cache generation share a single store read.
func (s *Set) Active(ctx context.Context) ([]patterns.Pattern, error) {
	if rows, ok := s.cached(ctx); ok {
		return rows, nil
	}

	gen := s.gen.Load()
	v, err, _ := s.group.Do(keyName+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		rows, err := s.store.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		s.fill(ctx, gen, rows)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.([]patterns.Pattern)
	rows := make([]patterns.Pattern, len(shared))
	for i, p := range shared {
		rows[i] = p.Clone()
	}
	return rows, nil
}

// ForScope returns the active rows applicable to scope, highest priority
// first and pattern_id within a priority.
func (s *Set) ForScope(ctx context.Context, scope patterns.Scope) ([]patterns.Pattern, error) {
	rows, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}

	out := slices.DeleteFunc(rows, func(p patterns.Pattern) bool {
		return !p.Applicability.Matches(scope)
	})
	slices.SortFunc(out, func(a, b patterns.Pattern) int {
		return cmp.Or(
			cmp.Compare(b.Priority, a.Priority),
			strings.Compare(a.PatternID, b.PatternID),
		)
	})
	return out, nil
}

// Invalidate drops the cached set and starts a new cache generation.
// Loads begun before the call never leave their rows in the cache.
func (s *Set) Invalidate(ctx context.Context) error {
	s.gen.Add(1)
	if s.cache == nil {
		return nil
	}
	return s.cache.Client().Del(ctx, s.cache.Key(keyName)).Err()
}

// Observe invalidates the cache on every lifecycle event.
func (s *Set) Observe(ctx context.Context, e events.Event) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("active set invalidation failed",
			"pattern_id", e.PatternID,
			"event_type", e.Type,
			"error", err,
		)
	}
}

func (s *Set) cached(ctx context.Context) ([]patterns.Pattern, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Client().Get(ctx, s.cache.Key(keyName)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("active set cache read failed", "error", err)
		}
		return nil, false
	}

	var rows []patterns.Pattern
	if err := json.Unmarshal(raw, &rows); err != nil {
		s.logger.Warn("active set cache entry corrupt", "error", err)
		return nil, false
	}
	return rows, true
}

// fill caches rows read during generation gen. A write that races an
// Invalidate is removed again: either the recheck sees the new generation
// or the invalidating Del lands after the Set.
func (s *Set) fill(ctx context.Context, gen uint64, rows []patterns.Pattern) {
	if s.cache == nil || s.gen.Load() != gen {
		return
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		s.logger.Warn("active set encode failed", "error", err)
		return
	}
	key := s.cache.Key(keyName)
	if err := s.cache.Client().Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("active set cache write failed", "error", err)
		return
	}
	if s.gen.Load() != gen {
		if err := s.cache.Client().Del(ctx, key).Err(); err != nil {
			s.logger.Warn("active set stale entry removal failed", "error", err)
		}
	}
}
