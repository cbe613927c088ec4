// Package routes declares HTTP routes as nested groups and registers them
// on a ServeMux using method-qualified patterns.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler. Summary is
// optional documentation.
type Route struct {
	Method  string
	Pattern string
	Summary string
	Handler http.HandlerFunc
}

// Group organizes routes under a common prefix. Child prefixes are
// appended to the parent's.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds every route of groups to mux and returns the registered
// patterns in declaration order.
func Register(mux *http.ServeMux, groups ...Group) []string {
	var patterns []string
	for _, g := range groups {
		Walk(g, func(method, path string, r Route) {
			pattern := method + " " + path
			mux.HandleFunc(pattern, r.Handler)
			patterns = append(patterns, pattern)
		})
	}
	return patterns
}

// Walk visits every route of g with its full path.
func Walk(g Group, visit func(method, path string, r Route)) {
	walk("", g, visit)
}

func walk(parent string, g Group, visit func(method, path string, r Route)) {
	prefix := parent + g.Prefix
	for _, r := range g.Routes {
		visit(r.Method, prefix+r.Pattern, r)
	}
	for _, child := range g.Children {
		walk(prefix, child, visit)
	}
}
