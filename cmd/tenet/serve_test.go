package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tenet/internal/patterns"
)

func (h *harness) session(t *testing.T) *session {
	t.Helper()
	s, err := h.open(context.Background(), "")
	require.NoError(t, err)
	return s
}

func TestServerRoutes(t *testing.T) {
	h := newHarness(t)
	srv, err := newServer(context.Background(), h.session(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.lc.Shutdown(time.Second) })

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		srv.http.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	require.NoError(t, srv.lc.Start())
	assert.Equal(t, http.StatusOK, get("/readyz").Code)

	w := get("/api/patterns/active")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []patterns.Pattern
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Empty(t, rows)

	w = get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tenet_health_sweep_duration_seconds_count 0")

	assert.Equal(t, http.StatusNotFound, get("/scalar").Code)
}

func TestServeRunsUntilCancelled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Load(patterns.Pattern{
		PatternID:   "P1",
		Version:     "1.0.0",
		IsActive:    true,
		Performance: patterns.Performance{UsageCount: 100, SuccessRate: 0.8},
	}))
	h.cfg.Server.SweepInterval = "20ms"

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := newServer(ctx, h.session(t))
	require.NoError(t, err)

	addrs := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() { done <- srv.run(func(a net.Addr) { addrs <- a }) }()

	var addr net.Addr
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	}

	resp, err := http.Get("http://" + addr.String() + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(h.reg, "tenet_health_declining_patterns")
		return err == nil && n > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.lc.Ready())
}

func TestServeListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { taken.Close() })

	h := newHarness(t)
	h.cfg.Server.Port = taken.Addr().(*net.TCPAddr).Port

	srv, err := newServer(context.Background(), h.session(t))
	require.NoError(t, err)
	assert.Error(t, srv.run(nil))
}
