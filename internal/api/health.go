package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/JaimeStill/tenet/internal/engine"
	"github.com/JaimeStill/tenet/pkg/handlers"
	"github.com/JaimeStill/tenet/pkg/routes"
)

type healthHandler struct {
	domain *engine.Domain
	logger *slog.Logger
}

func newHealthHandler(d *engine.Domain, logger *slog.Logger) *healthHandler {
	return &healthHandler{domain: d, logger: logger.With("handler", "health")}
}

func (h *healthHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/health",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Summary: "Report declining active patterns", Handler: h.declining},
			{Method: "POST", Pattern: "/sweep", Summary: "Run a health sweep with optional analysis and archive", Handler: h.sweep},
		},
	}
}

// declining runs a read-only sweep.
func (h *healthHandler) declining(w http.ResponseWriter, r *http.Request) {
	minUsage, err := intParam(r, "min_usage")
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	result, err := h.domain.Sweep(r.Context(), engine.SweepOptions{MinUsage: int64(minUsage)})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result.Report)
}

// sweep runs a full sweep with the options in the query string.
func (h *healthHandler) sweep(w http.ResponseWriter, r *http.Request) {
	minUsage, err := intParam(r, "min_usage")
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	windowDays, err := intParam(r, "window_days")
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	q := r.URL.Query()
	opts := engine.SweepOptions{
		MinUsage:   int64(minUsage),
		WindowDays: windowDays,
		Analyze:    flag(q.Get("analyze")),
		Archive:    flag(q.Get("archive")),
	}

	result, err := h.domain.Sweep(r.Context(), opts)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

func flag(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
