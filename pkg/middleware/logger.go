package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logger logs each request with its status and duration. 5xx responses
// log at error level.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"status", rec.status,
				"addr", r.RemoteAddr,
				"duration", time.Since(start),
			)
		})
	}
}
