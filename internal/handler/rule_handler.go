package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lauraedgell33/freightmatch/internal/model"
	"github.com/lauraedgell33/freightmatch/internal/repository"
)

// RuleHandler exposes CRUD for pricing rules. The engine only reads
// rules; everything here is the authoring surface.
type RuleHandler struct {
	rules *repository.RuleRepository
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(rules *repository.RuleRepository) *RuleHandler {
	return &RuleHandler{rules: rules}
}

var validRuleTypes = map[model.RuleType]bool{
	model.RuleBaseRate:      true,
	model.RuleSurcharge:     true,
	model.RuleMultiplier:    true,
	model.RuleDiscount:      true,
	model.RuleMinimum:       true,
	model.RuleMaximum:       true,
	model.RuleFuelSurcharge: true,
	model.RuleSeasonal:      true,
}

func validateRule(rule *model.PricingRule) string {
	if strings.TrimSpace(rule.Name) == "" {
		return "name is required"
	}
	if !validRuleTypes[rule.RuleType] {
		return "unknown rule_type"
	}
	if rule.ValidFrom != nil && rule.ValidUntil != nil && rule.ValidUntil.Before(*rule.ValidFrom) {
		return "valid_until must not precede valid_from"
	}
	return ""
}

// Create handles POST /api/v1/rules
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var rule model.PricingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if msg := validateRule(&rule); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	if err := h.rules.CreateRule(r.Context(), &rule); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// List handles GET /api/v1/rules
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListRules(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rules),
		"rules": rules,
	})
}

// Get handles GET /api/v1/rules/{id}
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}

	rule, err := h.rules.GetRule(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Update handles PUT /api/v1/rules/{id}
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}

	var rule model.PricingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	rule.ID = id
	if msg := validateRule(&rule); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	if err := h.rules.UpdateRule(r.Context(), &rule); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Delete handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}

	if err := h.rules.DeleteRule(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule id: must be an integer",
		})
		return 0, false
	}
	return id, true
}
