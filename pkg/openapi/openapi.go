// Package openapi builds an OpenAPI 3.1 document from declared routes.
package openapi

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/JaimeStill/tenet/pkg/routes"
)

const Version = "3.1.0"

var pathParam = regexp.MustCompile(`\{([a-z_]+)(\.\.\.)?\}`)

// Info is the document metadata.
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

type Server struct {
	URL string `json:"url"`
}

// Spec is the served document. Paths map a templated path to its
// operations keyed by lower-case method.
type Spec struct {
	OpenAPI    string                           `json:"openapi"`
	Info       Info                             `json:"info"`
	Servers    []Server                         `json:"servers,omitempty"`
	Paths      map[string]map[string]*Operation `json:"paths"`
	Components Components                       `json:"components"`
}

type Operation struct {
	Summary    string               `json:"summary,omitempty"`
	Tags       []string             `json:"tags,omitempty"`
	Parameters []Parameter          `json:"parameters,omitempty"`
	Responses  map[string]*Response `json:"responses"`
}

type Parameter struct {
	Name     string `json:"name"`
	In       string `json:"in"`
	Required bool   `json:"required"`
	Schema   Schema `json:"schema"`
}

type Response struct {
	Description string               `json:"description,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty"`
	Ref         string               `json:"$ref,omitempty"`
}

type MediaType struct {
	Schema Schema `json:"schema"`
}

type Schema struct {
	Type       string            `json:"type,omitempty"`
	Properties map[string]Schema `json:"properties,omitempty"`
}

type Components struct {
	Responses map[string]*Response `json:"responses"`
}

// errorResponses are the shared failure shapes, keyed by status code.
var errorResponses = map[string]string{
	"400": "Invalid request",
	"404": "Not found",
	"409": "Conflicts with the current pattern state",
	"422": "Rejected by the promotion gate",
	"500": "Internal error",
}

// Build describes every route of groups as served under basePath.
func Build(info Info, basePath string, groups ...routes.Group) *Spec {
	spec := &Spec{
		OpenAPI: Version,
		Info:    info,
		Paths:   make(map[string]map[string]*Operation),
		Components: Components{
			Responses: make(map[string]*Response, len(errorResponses)),
		},
	}
	if basePath != "" {
		spec.Servers = []Server{{URL: basePath}}
	}

	errorBody := map[string]MediaType{
		"application/json": {Schema: Schema{
			Type:       "object",
			Properties: map[string]Schema{"error": {Type: "string"}},
		}},
	}
	for code, desc := range errorResponses {
		spec.Components.Responses[code] = &Response{Description: desc, Content: errorBody}
	}

	for _, g := range groups {
		routes.Walk(g, func(method, path string, r routes.Route) {
			spec.add(method, path, r)
		})
	}
	return spec
}

func (s *Spec) add(method, path string, r routes.Route) {
	template := pathParam.ReplaceAllString(path, "{$1}")
	if template == "" {
		template = "/"
	}

	op := &Operation{
		Summary: r.Summary,
		Responses: map[string]*Response{
			"200": {Description: "OK"},
			"500": {Ref: "#/components/responses/500"},
		},
	}
	if method == http.MethodPost {
		op.Responses["400"] = &Response{Ref: "#/components/responses/400"}
	}
	if tag := firstSegment(path); tag != "" {
		op.Tags = []string{tag}
	}
	for _, m := range pathParam.FindAllStringSubmatch(path, -1) {
		op.Parameters = append(op.Parameters, Parameter{
			Name:     m[1],
			In:       "path",
			Required: true,
			Schema:   Schema{Type: "string"},
		})
	}

	item, ok := s.Paths[template]
	if !ok {
		item = make(map[string]*Operation)
		s.Paths[template] = item
	}
	item[strings.ToLower(method)] = op
}

func firstSegment(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return seg
}

// Handler serves spec as JSON. The document is encoded once.
func Handler(spec *Spec) (http.HandlerFunc, error) {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, err
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(data)
	}, nil
}
