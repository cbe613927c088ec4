// Package handlers provides JSON request and response helpers for HTTP
// handlers.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// MaxBodyBytes caps decoded request bodies when no limit is given.
const MaxBodyBytes = 1 << 20

// RespondJSON writes data as JSON with the given status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError logs err and writes it as {"error": "..."}. Server errors
// log at error level, client errors at warn.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}
	RespondJSON(w, status, map[string]string{"error": err.Error()})
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields
// and bodies over limit bytes. A limit below one uses MaxBodyBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	if limit < 1 {
		limit = MaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
