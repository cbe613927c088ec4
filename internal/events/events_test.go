package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/pkg/pagination"
)

var pageCfg = pagination.Config{DefaultPageSize: 2, MaxPageSize: 10}

func TestTypeUnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    events.Type
		wantErr bool
	}{
		{`"ACTIVATED"`, events.Activated, false},
		{`"rollback"`, events.Rollback, false},
		{`"Deprecated"`, events.Deprecated, false},
		{`"PURGED"`, "", true},
		{`""`, "", true},
		{`3`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var got events.Type
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypes(t *testing.T) {
	types := events.Types()
	require.Len(t, types, 5)
	for _, ty := range types {
		assert.True(t, ty.Valid(), ty)
	}
}

func TestStamp(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.FixedZone("x", 3600))

	var e events.Event
	e.Stamp(now)

	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, now.UTC(), e.OccurredAt)
	assert.NotNil(t, e.Data)

	id := e.ID
	e.Stamp(now.Add(time.Hour))
	assert.Equal(t, id, e.ID, "stamp must not overwrite an existing id")
	assert.Equal(t, now.UTC(), e.OccurredAt)
}

func TestVersion(t *testing.T) {
	assert.Nil(t, events.Version(""))
	require.NotNil(t, events.Version("1.0.0"))
	assert.Equal(t, "1.0.0", *events.Version("1.0.0"))
}

func TestMemoryAppendRejectsIncompleteEvents(t *testing.T) {
	m := events.NewMemory(pageCfg)

	_, err := m.Append(events.Event{Type: events.Created})
	assert.ErrorIs(t, err, events.ErrMissingFields)

	_, err = m.Append(events.Event{PatternID: "P1", Type: "BOGUS"})
	assert.ErrorIs(t, err, events.ErrMissingFields)
}

func TestMemoryHistoryAndList(t *testing.T) {
	ctx := context.Background()
	m := events.NewMemory(pageCfg)

	seq := []events.Event{
		{PatternID: "P1", Type: events.Created, ToVersion: events.Version("1.0.0")},
		{PatternID: "P2", Type: events.Created, ToVersion: events.Version("1.0.0")},
		{PatternID: "P1", Type: events.Updated, FromVersion: events.Version("1.0.0"), ToVersion: events.Version("1.1.0")},
		{PatternID: "P1", Type: events.Activated, FromVersion: events.Version("1.0.0"), ToVersion: events.Version("1.1.0")},
	}
	for _, e := range seq {
		_, err := m.Append(e)
		require.NoError(t, err)
	}

	history, err := m.History(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, events.Created, history[0].Type)
	assert.Equal(t, events.Updated, history[1].Type)
	assert.Equal(t, events.Activated, history[2].Type)

	page, err := m.List(ctx, events.Filters{PatternID: "P1"}, pagination.PageRequest{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, events.Activated, page.Data[0].Type)

	typed, err := m.List(ctx, events.Filters{Types: []events.Type{events.Created}}, pagination.PageRequest{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, typed.Total)
}
