// Package module mounts self-contained HTTP handlers under single-level
// path prefixes, each with its own middleware chain.
package module

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JaimeStill/tenet/pkg/middleware"
)

// ErrInvalidPrefix is returned for prefixes that are empty, relative, or
// nested.
var ErrInvalidPrefix = errors.New("invalid module prefix")

// Module serves requests under its prefix. The prefix is stripped before
// the inner handler sees the request.
type Module struct {
	prefix  string
	handler http.Handler
	chain   middleware.Chain
}

// New creates a Module for a prefix such as "/api".
func New(prefix string, handler http.Handler) (*Module, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	return &Module{prefix: prefix, handler: handler}, nil
}

// Prefix returns the mount prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use appends middleware to the module chain.
func (m *Module) Use(mw ...middleware.Middleware) {
	m.chain.Use(mw...)
}

// ServeHTTP strips the prefix and dispatches through the middleware chain.
func (m *Module) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, m.prefix)
	if path == "" {
		path = "/"
	}

	inner := r.Clone(r.Context())
	inner.URL.Path = path
	inner.URL.RawPath = ""

	m.chain.Then(m.handler).ServeHTTP(w, inner)
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("%w: empty", ErrInvalidPrefix)
	case !strings.HasPrefix(prefix, "/"):
		return fmt.Errorf("%w: %q must start with /", ErrInvalidPrefix, prefix)
	case strings.Count(prefix, "/") != 1 || prefix == "/":
		return fmt.Errorf("%w: %q must be a single path segment", ErrInvalidPrefix, prefix)
	}
	return nil
}
