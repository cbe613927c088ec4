package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tenet/internal/engine"
	"github.com/JaimeStill/tenet/internal/promotion"
	"github.com/JaimeStill/tenet/pkg/handlers"
	"github.com/JaimeStill/tenet/pkg/routes"
)

type draftHandler struct {
	domain  *engine.Domain
	logger  *slog.Logger
	maxBody int64
}

func newDraftHandler(d *engine.Domain, logger *slog.Logger, maxBody int64) *draftHandler {
	return &draftHandler{domain: d, logger: logger.With("handler", "drafts"), maxBody: maxBody}
}

func (h *draftHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/drafts/{id}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Summary: "Fetch a draft or any pattern row by id", Handler: h.find},
			{Method: "POST", Pattern: "/activate", Summary: "Promote a draft through the back-test gate", Handler: h.activate},
		},
	}
}

func (h *draftHandler) id(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid draft id %q", errBadRequest, r.PathValue("id"))
	}
	return id, nil
}

func (h *draftHandler) find(w http.ResponseWriter, r *http.Request) {
	id, err := h.id(r)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	p, err := h.domain.Patterns.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, p)
}

func (h *draftHandler) activate(w http.ResponseWriter, r *http.Request) {
	id, err := h.id(r)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	var results promotion.BacktestResults
	if err := decode(w, r, &results, h.maxBody); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	outcome, err := h.domain.Promotion.Activate(r.Context(), id, results)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, outcome)
}
