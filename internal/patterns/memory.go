package patterns

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tenet/internal/events"
)

// Memory is an in-process Store. Units of work stage their changes on a
// private copy of the pattern's rows and publish them atomically on commit.
type Memory struct {
	mu     sync.RWMutex
	rows   map[uuid.UUID]Pattern
	ledger *events.Memory
	locks  keyedMutex
	now    func() time.Time
}

// NewMemory creates an empty store writing events to ledger.
func NewMemory(ledger *events.Memory) *Memory {
	return &Memory{
		rows:   make(map[uuid.UUID]Pattern),
		ledger: ledger,
		locks:  keyedMutex{locks: make(map[string]*keyLock)},
		now:    time.Now,
	}
}

// Load inserts rows as-is, bypassing the lifecycle. It is the seeding path
// for fixtures and snapshots and still refuses a second active row.
func (m *Memory) Load(rows ...Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[uuid.UUID]Pattern, len(m.rows)+len(rows))
	for id, p := range m.rows {
		staged[id] = p
	}

	for _, p := range rows {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = m.now().UTC()
			p.UpdatedAt = p.CreatedAt
		}
		for _, existing := range staged {
			if existing.PatternID == p.PatternID && existing.Version == p.Version && existing.ID != p.ID {
				return ErrDuplicate
			}
		}
		staged[p.ID] = p.Clone()
	}

	if err := checkSingleActive(staged); err != nil {
		return err
	}

	m.rows = staged
	return nil
}

// SetPerformance replaces a row's usage summary the way the external
// telemetry writer does.
func (m *Memory) SetPerformance(id uuid.UUID, perf Performance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	p.Performance = perf
	m.rows[id] = p
	return nil
}

func (m *Memory) Events() events.Log {
	return m.ledger
}

func (m *Memory) Find(_ context.Context, id uuid.UUID) (*Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := p.Clone()
	return &c, nil
}

func (m *Memory) FindActive(_ context.Context, patternID string) (*Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findIn(m.rows, func(p Pattern) bool {
		return p.PatternID == patternID && p.IsActive
	})
}

func (m *Memory) FindVersion(_ context.Context, patternID, version string) (*Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findIn(m.rows, func(p Pattern) bool {
		return p.PatternID == patternID && p.Version == version
	})
}

func (m *Memory) ListActive(_ context.Context) ([]Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := filterIn(m.rows, func(p Pattern) bool { return p.IsActive })
	slices.SortFunc(out, func(a, b Pattern) int { return strings.Compare(a.PatternID, b.PatternID) })
	return out, nil
}

func (m *Memory) Versions(_ context.Context, patternID string) ([]Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := filterIn(m.rows, func(p Pattern) bool { return p.PatternID == patternID })
	sortByVersion(out)
	return out, nil
}

func (m *Memory) Update(ctx context.Context, patternID string, fn func(w Writer) error) ([]events.Event, error) {
	unlock := m.locks.lock(patternID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	staged := make(map[uuid.UUID]Pattern)
	for id, p := range m.rows {
		if p.PatternID == patternID {
			staged[id] = p.Clone()
		}
	}
	m.mu.RUnlock()

	w := &memoryWriter{store: m, patternID: patternID, rows: staged, deleted: make(map[uuid.UUID]bool)}
	if err := fn(w); err != nil {
		return nil, err
	}

	if err := checkSingleActive(w.rows); err != nil {
		return nil, err
	}

	return m.commit(w)
}

func (m *Memory) commit(w *memoryWriter) ([]events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range w.deleted {
		delete(m.rows, id)
	}
	for id, p := range w.rows {
		m.rows[id] = p
	}

	committed := make([]events.Event, 0, len(w.pending))
	for _, e := range w.pending {
		stored, err := m.ledger.Append(e)
		if err != nil {
			return nil, err
		}
		committed = append(committed, stored)
	}
	return committed, nil
}

type memoryWriter struct {
	store     *Memory
	patternID string
	rows      map[uuid.UUID]Pattern
	deleted   map[uuid.UUID]bool
	pending   []events.Event
}

func (w *memoryWriter) Find(ctx context.Context, id uuid.UUID) (*Pattern, error) {
	if p, ok := w.rows[id]; ok {
		c := p.Clone()
		return &c, nil
	}
	if w.deleted[id] {
		return nil, ErrNotFound
	}
	return w.store.Find(ctx, id)
}

func (w *memoryWriter) FindActive(ctx context.Context, patternID string) (*Pattern, error) {
	if patternID != w.patternID {
		return w.store.FindActive(ctx, patternID)
	}
	return findIn(w.rows, func(p Pattern) bool { return p.IsActive })
}

func (w *memoryWriter) FindVersion(ctx context.Context, patternID, version string) (*Pattern, error) {
	if patternID != w.patternID {
		return w.store.FindVersion(ctx, patternID, version)
	}
	return findIn(w.rows, func(p Pattern) bool { return p.Version == version })
}

func (w *memoryWriter) ListActive(ctx context.Context) ([]Pattern, error) {
	all, err := w.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(all, func(p Pattern) bool { return p.PatternID == w.patternID })
	out = append(out, filterIn(w.rows, func(p Pattern) bool { return p.IsActive })...)
	slices.SortFunc(out, func(a, b Pattern) int { return strings.Compare(a.PatternID, b.PatternID) })
	return out, nil
}

func (w *memoryWriter) Versions(ctx context.Context, patternID string) ([]Pattern, error) {
	if patternID != w.patternID {
		return w.store.Versions(ctx, patternID)
	}
	out := filterIn(w.rows, func(Pattern) bool { return true })
	sortByVersion(out)
	return out, nil
}

func (w *memoryWriter) ActiveRows(_ context.Context) ([]Pattern, error) {
	out := filterIn(w.rows, func(p Pattern) bool { return p.IsActive })
	slices.SortFunc(out, func(a, b Pattern) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (w *memoryWriter) Insert(_ context.Context, p Pattern) (*Pattern, error) {
	if p.PatternID != w.patternID {
		return nil, ErrOutOfScope
	}
	for _, existing := range w.rows {
		if existing.Version == p.Version {
			return nil, ErrDuplicate
		}
		if p.IsActive && existing.IsActive {
			return nil, ErrActiveConflict
		}
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := w.store.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	w.rows[p.ID] = p.Clone()
	delete(w.deleted, p.ID)
	return &p, nil
}

func (w *memoryWriter) Deactivate(ctx context.Context, id uuid.UUID, d Deprecation) error {
	p, err := w.owned(ctx, id)
	if err != nil {
		return err
	}
	p.deprecate(d)
	w.rows[id] = p
	return nil
}

func (w *memoryWriter) Activate(ctx context.Context, id uuid.UUID, notes string) error {
	p, err := w.owned(ctx, id)
	if err != nil {
		return err
	}
	for otherID, other := range w.rows {
		if otherID != id && other.IsActive {
			return ErrActiveConflict
		}
	}
	p.activate(notes, w.store.now())
	w.rows[id] = p
	return nil
}

func (w *memoryWriter) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := w.owned(ctx, id); err != nil {
		return err
	}
	delete(w.rows, id)
	w.deleted[id] = true
	return nil
}

func (w *memoryWriter) Record(_ context.Context, e events.Event) (*events.Event, error) {
	if e.PatternID != w.patternID {
		return nil, ErrOutOfScope
	}
	if e.PatternID == "" || !e.Type.Valid() {
		return nil, events.ErrMissingFields
	}
	e.Stamp(w.store.now())
	w.pending = append(w.pending, e)
	return &e, nil
}

func (w *memoryWriter) owned(ctx context.Context, id uuid.UUID) (Pattern, error) {
	if p, ok := w.rows[id]; ok {
		return p, nil
	}
	if w.deleted[id] {
		return Pattern{}, ErrNotFound
	}
	if _, err := w.store.Find(ctx, id); err == nil {
		return Pattern{}, ErrOutOfScope
	}
	return Pattern{}, ErrNotFound
}

func findIn(rows map[uuid.UUID]Pattern, match func(Pattern) bool) (*Pattern, error) {
	for _, p := range rows {
		if match(p) {
			c := p.Clone()
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func filterIn(rows map[uuid.UUID]Pattern, match func(Pattern) bool) []Pattern {
	out := make([]Pattern, 0)
	for _, p := range rows {
		if match(p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func checkSingleActive(rows map[uuid.UUID]Pattern) error {
	active := make(map[string]bool)
	for _, p := range rows {
		if !p.IsActive {
			continue
		}
		if active[p.PatternID] {
			return ErrActiveConflict
		}
		active[p.PatternID] = true
	}
	return nil
}

type keyLock struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
