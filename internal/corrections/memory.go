package corrections

import (
	"context"
	"sync"
)

// Memory is an in-process Feed used by tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemory creates a feed holding records.
func NewMemory(records ...Record) *Memory {
	return &Memory{records: records}
}

// Add appends records to the feed.
func (m *Memory) Add(records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
}

func (m *Memory) Corrections(_ context.Context, patternID string, w Window) ([]Record, error) {
	return m.filter(patternID, w, true), nil
}

func (m *Memory) ReviewCount(_ context.Context, patternID string, w Window) (int, error) {
	return len(m.filter(patternID, w, false)), nil
}

func (m *Memory) filter(patternID string, w Window, correctionsOnly bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0)
	for _, r := range m.records {
		if r.PatternIDUsed != patternID || r.ReviewedAt == nil || !w.Contains(*r.ReviewedAt) {
			continue
		}
		if correctionsOnly && !r.ReviewAction.IsCorrection() {
			continue
		}
		out = append(out, r)
	}
	return out
}
