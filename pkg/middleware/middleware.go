// Package middleware provides the HTTP middleware stack applied to
// mounted modules: request logging, tracing, and CORS.
package middleware

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain is an ordered middleware stack. The first entry is outermost.
type Chain []Middleware

// Use appends mw to the chain.
func (c *Chain) Use(mw ...Middleware) {
	*c = append(*c, mw...)
}

// Then wraps h with every middleware in the chain.
func (c Chain) Then(h http.Handler) http.Handler {
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}
	return h
}

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func record(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
