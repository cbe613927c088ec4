package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/JaimeStill/tenet/internal/health"
	"github.com/JaimeStill/tenet/internal/reports"
	"github.com/JaimeStill/tenet/pkg/handlers"
	"github.com/JaimeStill/tenet/pkg/routes"
)

type reportHandler struct {
	archive *reports.Archive
	logger  *slog.Logger
}

func newReportHandler(archive *reports.Archive, logger *slog.Logger) *reportHandler {
	return &reportHandler{archive: archive, logger: logger.With("handler", "reports")}
}

func (h *reportHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/reports",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/latest", Summary: "Fetch the newest archived report of a day", Handler: h.latest},
			{Method: "GET", Pattern: "/{key...}", Summary: "Fetch an archived report by key", Handler: h.find},
		},
	}
}

type latestResponse struct {
	Key    string         `json:"key"`
	Report *health.Report `json:"report"`
}

// latest returns the newest report of ?day=YYYY-MM-DD, today by default.
func (h *reportHandler) latest(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("day"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			err = fmt.Errorf("%w: day must be YYYY-MM-DD", errBadRequest)
			handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
			return
		}
		day = t
	}

	report, key, err := h.archive.Latest(r.Context(), day)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, latestResponse{Key: key, Report: report})
}

func (h *reportHandler) find(w http.ResponseWriter, r *http.Request) {
	report, err := h.archive.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, report)
}
