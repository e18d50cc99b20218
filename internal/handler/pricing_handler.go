package handler

import (
	"encoding/json"
	"net/http"

	"github.com/lauraedgell33/freightmatch/internal/service"
)

// PricingHandler handles quote HTTP requests.
type PricingHandler struct {
	pricer *service.PricingService
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(pricer *service.PricingService) *PricingHandler {
	return &PricingHandler{pricer: pricer}
}

// Quote handles POST /api/v1/quotes
//
// Request body:
//
//	{
//	  "origin_country": "DE", "dest_country": "FR",
//	  "vehicle_type": "standard_truck",
//	  "distance_km": 900, "weight_kg": 18000
//	}
//
// Response: the full quote with price range, confidence, market
// comparison, applied rules, and the underlying route statistics.
func (h *PricingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}

	quote, err := h.pricer.Quote(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}
