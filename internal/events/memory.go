package events

import (
	"context"
	"sync"
	"time"

	"github.com/JaimeStill/tenet/pkg/pagination"
)

// Memory is an in-process ledger. It backs the in-memory pattern store.
type Memory struct {
	mu         sync.RWMutex
	events     []Event
	pagination pagination.Config
	now        func() time.Time
}

// NewMemory creates an empty ledger.
func NewMemory(cfg pagination.Config) *Memory {
	return &Memory{pagination: cfg, now: time.Now}
}

// Append stamps and records e.
func (m *Memory) Append(e Event) (Event, error) {
	if e.PatternID == "" || !e.Type.Valid() {
		return Event{}, ErrMissingFields
	}
	e.Stamp(m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return e, nil
}

func (m *Memory) List(_ context.Context, filters Filters, page pagination.PageRequest) (*pagination.PageResult[Event], error) {
	page.Normalize(m.pagination)
	result := pagination.Slice(m.filter(filters), page)
	return &result, nil
}

func (m *Memory) History(_ context.Context, patternID string) ([]Event, error) {
	return m.filter(Filters{PatternID: patternID}), nil
}

// Ledger insertion order is chronological because appends happen under
// the per-pattern write lock.
func (m *Memory) filter(f Filters) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0)
	for _, e := range m.events {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out
}
