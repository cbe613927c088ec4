package module

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrDuplicatePrefix is returned when two modules claim the same prefix.
var ErrDuplicatePrefix = errors.New("module prefix already mounted")

// Router sends each request to the module owning its first path segment.
// Anything else falls through to a plain ServeMux.
type Router struct {
	modules map[string]*Module
	native  *http.ServeMux
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		modules: make(map[string]*Module),
		native:  http.NewServeMux(),
	}
}

// Handle registers a handler for requests no module owns.
func (r *Router) Handle(pattern string, h http.Handler) {
	r.native.Handle(pattern, h)
}

// Mount claims m's prefix.
func (r *Router) Mount(m *Module) error {
	if _, ok := r.modules[m.prefix]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePrefix, m.prefix)
	}
	r.modules[m.prefix] = m
	return nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if m, ok := r.modules[firstSegment(req.URL.Path)]; ok {
		m.ServeHTTP(w, req)
		return
	}
	r.native.ServeHTTP(w, req)
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return "/" + path
}
