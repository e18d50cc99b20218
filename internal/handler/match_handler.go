package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lauraedgell33/freightmatch/internal/service"
)

// MatchHandler handles match search and feedback HTTP requests.
type MatchHandler struct {
	matcher *service.MatchingService
}

// NewMatchHandler creates a new handler wired to the matching service.
func NewMatchHandler(matcher *service.MatchingService) *MatchHandler {
	return &MatchHandler{matcher: matcher}
}

// FindMatches handles POST /api/v1/matches/{request_id}
//
// Runs the full matching pass for one freight request and returns the
// ranked suggestions with their factor breakdowns. The optional ?limit=
// query parameter caps the result (default 10).
func (h *MatchHandler) FindMatches(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(mux.Vars(r)["request_id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request_id: must be an integer",
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid limit: must be a positive integer",
			})
			return
		}
	}

	matches, err := h.matcher.FindMatchesByID(r.Context(), requestID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID,
		"count":      len(matches),
		"matches":    matches,
	})
}

// RespondRequest is the JSON body for POST /api/v1/matches/{match_id}/response.
type RespondRequest struct {
	Action string `json:"action"` // "accept" or "reject"
	Reason string `json:"reason,omitempty"`
}

// Respond handles POST /api/v1/matches/{match_id}/response
//
// Records an accept/reject decision on a suggested match. Responding to
// an already-resolved match returns 409.
func (h *MatchHandler) Respond(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(mux.Vars(r)["match_id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid match_id: must be an integer",
		})
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}

	if err := h.matcher.RespondToSuggestion(r.Context(), matchID, req.Action, req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match_id": matchID,
		"action":   req.Action,
	})
}

// BatchRequest is the JSON body for POST /api/v1/matches/batch.
type BatchRequest struct {
	HoursBack       int `json:"hours_back"`
	LimitPerRequest int `json:"limit_per_request"`
}

// Batch handles POST /api/v1/matches/batch
//
// Sweeps recent freight requests and reports those with a strong best
// match. Intended for periodic invocation, not interactive use.
func (h *MatchHandler) Batch(w http.ResponseWriter, r *http.Request) {
	req := BatchRequest{HoursBack: 24, LimitPerRequest: 5}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON body",
			})
			return
		}
	}
	if req.HoursBack <= 0 || req.LimitPerRequest <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "hours_back and limit_per_request must be positive",
		})
		return
	}

	reports, err := h.matcher.BatchMatch(r.Context(), req.HoursBack, req.LimitPerRequest)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(reports),
		"reports": reports,
	})
}
