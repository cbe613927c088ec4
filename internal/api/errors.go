package api

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/tenet/internal/drafts"
	"github.com/JaimeStill/tenet/internal/engine"
	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/internal/promotion"
	"github.com/JaimeStill/tenet/internal/reports"
	"github.com/JaimeStill/tenet/pkg/storage"
)

// errBadRequest marks malformed path, query, or body input.
var errBadRequest = errors.New("bad request")

// MapHTTPStatus maps domain errors to response status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		drafts.IsValidation(err),
		errors.Is(err, promotion.ErrInvalidResults),
		errors.Is(err, events.ErrInvalidType),
		errors.Is(err, storage.ErrEmptyKey),
		errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, patterns.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, reports.ErrNoReports):
		return http.StatusNotFound
	case errors.Is(err, patterns.ErrDuplicate),
		errors.Is(err, patterns.ErrActiveConflict),
		errors.Is(err, promotion.ErrAlreadyActive),
		errors.Is(err, promotion.ErrStaleDraft),
		errors.Is(err, promotion.ErrNotRollbackTarget),
		errors.Is(err, engine.ErrArchiveDisabled):
		return http.StatusConflict
	case errors.Is(err, promotion.ErrBelowThreshold):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
