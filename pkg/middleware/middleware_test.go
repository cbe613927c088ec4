package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JaimeStill/tenet/pkg/middleware"
)

func tag(name string, order *[]string) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	var c middleware.Chain
	c.Use(tag("outer", &order), tag("inner", &order))

	h := c.Then(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := middleware.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/patterns/active?regulator=SEC", nil))

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "status=503")
	assert.Contains(t, out, "uri=\"/patterns/active?regulator=SEC\"")
}

func TestLoggerDefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := middleware.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "status=200")
}

func TestTraceNamesSpanByRoute(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /patterns/{pattern_id}/versions", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	h := middleware.Trace()(mux)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/patterns/P1/versions", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /patterns/{pattern_id}/versions", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestCORS(t *testing.T) {
	cfg := &middleware.CORSConfig{
		Enabled:          true,
		Origins:          []string{"https://review.example.com"},
		AllowCredentials: true,
	}
	require.NoError(t, cfg.Finalize(nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := middleware.CORS(cfg)(next)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://review.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.Equal(t, "https://review.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://elsewhere.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://review.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		off := &middleware.CORSConfig{Origins: cfg.Origins}
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://review.example.com")
		w := httptest.NewRecorder()
		middleware.CORS(off)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestCORSConfigEnv(t *testing.T) {
	t.Setenv("TEST_CORS_ENABLED", "true")
	t.Setenv("TEST_CORS_ORIGINS", " https://a.example.com, ,https://b.example.com ")
	t.Setenv("TEST_CORS_MAX_AGE", "60")

	var cfg middleware.CORSConfig
	require.NoError(t, cfg.Finalize(&middleware.CORSEnv{
		Enabled: "TEST_CORS_ENABLED",
		Origins: "TEST_CORS_ORIGINS",
		MaxAge:  "TEST_CORS_MAX_AGE",
	}))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Origins)
	assert.Equal(t, 60, cfg.MaxAge)
	assert.Equal(t, []string{"Content-Type", "Authorization"}, cfg.AllowedHeaders)
}

func TestCORSConfigMerge(t *testing.T) {
	base := middleware.CORSConfig{Origins: []string{"https://a.example.com"}, MaxAge: 10}
	base.Merge(&middleware.CORSConfig{Enabled: true, MaxAge: 0})

	assert.True(t, base.Enabled)
	assert.Equal(t, []string{"https://a.example.com"}, base.Origins)
	assert.Equal(t, 10, base.MaxAge)
}
