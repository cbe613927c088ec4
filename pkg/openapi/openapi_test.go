package openapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tenet/pkg/openapi"
	"github.com/JaimeStill/tenet/pkg/routes"
)

func groups() routes.Group {
	return routes.Group{
		Prefix: "/patterns",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/active", Summary: "List active patterns"},
		},
		Children: []routes.Group{{
			Prefix: "/{pattern_id}",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/versions", Summary: "List versions"},
				{Method: "POST", Pattern: "/rollback", Summary: "Roll back"},
			},
		}},
	}
}

func TestBuild(t *testing.T) {
	spec := openapi.Build(openapi.Info{Title: "tenet", Version: "0.1.0"}, "/api", groups(), routes.Group{
		Prefix: "/reports",
		Routes: []routes.Route{{Method: "GET", Pattern: "/{key...}"}},
	})

	assert.Equal(t, openapi.Version, spec.OpenAPI)
	assert.Equal(t, "/api", spec.Servers[0].URL)
	require.Len(t, spec.Paths, 4)

	active := spec.Paths["/patterns/active"]["get"]
	require.NotNil(t, active)
	assert.Equal(t, "List active patterns", active.Summary)
	assert.Equal(t, []string{"patterns"}, active.Tags)
	assert.Empty(t, active.Parameters)
	assert.NotContains(t, active.Responses, "400")

	rollback := spec.Paths["/patterns/{pattern_id}/rollback"]["post"]
	require.NotNil(t, rollback)
	require.Len(t, rollback.Parameters, 1)
	assert.Equal(t, "pattern_id", rollback.Parameters[0].Name)
	assert.Equal(t, "#/components/responses/400", rollback.Responses["400"].Ref)

	report := spec.Paths["/reports/{key}"]["get"]
	require.NotNil(t, report)
	assert.Equal(t, "key", report.Parameters[0].Name)

	assert.Contains(t, spec.Components.Responses, "409")
}

func TestHandler(t *testing.T) {
	h, err := openapi.Handler(openapi.Build(openapi.Info{Title: "tenet"}, "", groups()))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc["openapi"])
	assert.NotContains(t, doc, "servers")
}
