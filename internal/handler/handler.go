// Package handler contains HTTP request handlers for the matching and
// pricing API.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lauraedgell33/freightmatch/internal/service"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeServiceError maps the service error taxonomy to HTTP statuses:
// bad input → 400, missing entity → 404, illegal transition → 409,
// anything else → 500 with the detail kept in the log, not the response.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_input",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrInvalidState):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	default:
		log.Printf("[handler] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}
