package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/JaimeStill/tenet/internal/config"
	"github.com/JaimeStill/tenet/internal/drafts"
	"github.com/JaimeStill/tenet/internal/engine"
	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/pkg/handlers"
	"github.com/JaimeStill/tenet/pkg/pagination"
	"github.com/JaimeStill/tenet/pkg/routes"
)

type patternHandler struct {
	domain     *engine.Domain
	logger     *slog.Logger
	pagination pagination.Config
	maxBody    int64
}

func newPatternHandler(d *engine.Domain, logger *slog.Logger, cfg *config.Config) *patternHandler {
	return &patternHandler{
		domain:     d,
		logger:     logger.With("handler", "patterns"),
		pagination: cfg.Pagination,
		maxBody:    cfg.Server.MaxBodyBytes(),
	}
}

func (h *patternHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/patterns",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/active", Summary: "List the active pattern set, optionally narrowed to a scope", Handler: h.active},
			{Method: "POST", Pattern: "", Summary: "Create the first active version of a new pattern", Handler: h.seed},
		},
		Children: []routes.Group{{
			Prefix: "/{pattern_id}",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/versions", Summary: "List every version of a pattern", Handler: h.versions},
				{Method: "GET", Pattern: "/history", Summary: "Page lifecycle events of a pattern, oldest first", Handler: h.history},
				{Method: "GET", Pattern: "/analysis", Summary: "Analyze reviewer corrections of a pattern", Handler: h.analysis},
				{Method: "POST", Pattern: "/drafts", Summary: "Cut an inactive draft from the active version", Handler: h.draft},
				{Method: "POST", Pattern: "/rollback", Summary: "Reactivate a previous version", Handler: h.rollback},
				{Method: "POST", Pattern: "/deprecate", Summary: "Retire the active version without replacement", Handler: h.deprecate},
			},
		}},
	}
}

func (h *patternHandler) fail(w http.ResponseWriter, err error) {
	handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
}

func (h *patternHandler) active(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := patterns.Scope{
		Module:       q.Get("module"),
		Regulator:    q.Get("regulator"),
		DocumentType: q.Get("document_type"),
	}

	rows, err := h.domain.Active.ForScope(r.Context(), scope)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, rows)
}

func (h *patternHandler) versions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.domain.Patterns.Versions(r.Context(), r.PathValue("pattern_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if len(rows) == 0 {
		h.fail(w, fmt.Errorf("%s: %w", r.PathValue("pattern_id"), patterns.ErrNotFound))
		return
	}
	handlers.RespondJSON(w, http.StatusOK, rows)
}

func (h *patternHandler) history(w http.ResponseWriter, r *http.Request) {
	filters := events.Filters{PatternID: r.PathValue("pattern_id")}
	for _, t := range r.URL.Query()["type"] {
		var typ events.Type
		if err := typ.UnmarshalJSON([]byte(strconv.Quote(t))); err != nil {
			h.fail(w, err)
			return
		}
		filters.Types = append(filters.Types, typ)
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	result, err := h.domain.Events.List(r.Context(), filters, page)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *patternHandler) analysis(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "window_days")
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK,
		h.domain.Analyzer.AnalyzeCorrections(r.Context(), r.PathValue("pattern_id"), days))
}

func (h *patternHandler) seed(w http.ResponseWriter, r *http.Request) {
	var cmd drafts.SeedCommand
	if err := decode(w, r, &cmd, h.maxBody); err != nil {
		h.fail(w, err)
		return
	}

	p, err := h.domain.Drafts.Seed(r.Context(), cmd)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusCreated, p)
}

func (h *patternHandler) draft(w http.ResponseWriter, r *http.Request) {
	var changes drafts.Changes
	if err := decode(w, r, &changes, h.maxBody); err != nil {
		h.fail(w, err)
		return
	}

	p, err := h.domain.Drafts.Create(r.Context(), r.PathValue("pattern_id"), changes)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusCreated, p)
}

type rollbackRequest struct {
	Version string `json:"version"`
	Reason  string `json:"reason"`
}

func (h *patternHandler) rollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := decode(w, r, &req, h.maxBody); err != nil {
		h.fail(w, err)
		return
	}
	if req.Version == "" || req.Reason == "" {
		h.fail(w, fmt.Errorf("%w: version and reason are required", errBadRequest))
		return
	}

	outcome, err := h.domain.Promotion.Rollback(r.Context(), r.PathValue("pattern_id"), req.Version, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, outcome)
}

type deprecateRequest struct {
	Reason      string  `json:"reason"`
	PerformedBy *string `json:"performed_by"`
}

func (h *patternHandler) deprecate(w http.ResponseWriter, r *http.Request) {
	var req deprecateRequest
	if err := decode(w, r, &req, h.maxBody); err != nil {
		h.fail(w, err)
		return
	}
	if req.Reason == "" {
		h.fail(w, fmt.Errorf("%w: reason is required", errBadRequest))
		return
	}

	outcome, err := h.domain.Promotion.Deprecate(r.Context(), r.PathValue("pattern_id"), req.Reason, req.PerformedBy)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, outcome)
}

func decode(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	if err := handlers.DecodeJSON(w, r, dst, limit); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// intParam reads an optional non-negative integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}
