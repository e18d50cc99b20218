package service

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/lauraedgell33/freightmatch/internal/model"
)

// ─── Rule Engine ────────────────────────────────────────────
//
// The rule engine is stateless: it selects the active rules matching a
// shipment, orders them by ascending priority, and applies them
// sequentially to a running price. Application is strictly sequential —
// each rule sees the output of the previous one — so it must never be
// parallelized.

// ruleImpactEpsilon is the smallest price delta worth logging as an
// applied-rule impact.
const ruleImpactEpsilon = 0.001

// RuleScope carries the route/vehicle attributes a rule's scoping fields
// are matched against. Empty rule fields are wildcards.
type RuleScope struct {
	OriginCountry string
	DestCountry   string
	VehicleType   string
	CargoType     string
}

// MatchRules selects the rules that apply to a shipment: active, within
// their validity window, scope-compatible, and with every declared
// condition satisfied by the shipment context. The result is sorted by
// ascending priority (ties broken by id so the ordering is stable).
//
// Reordering the input never changes the outcome — the engine always
// sorts before applying.
func MatchRules(rules []model.PricingRule, scope RuleScope, shipment map[string]any, at time.Time) []model.PricingRule {
	matched := make([]model.PricingRule, 0, len(rules))
	for _, r := range rules {
		if !r.IsActive || !r.InValidityWindow(at) {
			continue
		}
		if !scopeMatches(&r, scope) {
			continue
		}
		if !conditionsSatisfied(r.Conditions, shipment) {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}

func scopeMatches(r *model.PricingRule, scope RuleScope) bool {
	if r.OriginCountry != "" && r.OriginCountry != scope.OriginCountry {
		return false
	}
	if r.DestCountry != "" && r.DestCountry != scope.DestCountry {
		return false
	}
	if r.VehicleType != "" && r.VehicleType != scope.VehicleType {
		return false
	}
	if r.CargoType != "" && r.CargoType != scope.CargoType {
		return false
	}
	return true
}

// conditionsSatisfied checks every condition key the rule declares.
// A key the shipment context lacks is treated as satisfied — the
// conservative default: a rule about pallet count should not be blocked
// just because the caller didn't supply one.
func conditionsSatisfied(conditions map[string]model.RuleCondition, shipment map[string]any) bool {
	for key, cond := range conditions {
		val, ok := shipment[key]
		if !ok {
			continue
		}
		if !conditionHolds(cond, val) {
			return false
		}
	}
	return true
}

func conditionHolds(cond model.RuleCondition, val any) bool {
	if cond.Min != nil || cond.Max != nil {
		num, ok := asFloat(val)
		if !ok {
			return false
		}
		if cond.Min != nil && num < *cond.Min {
			return false
		}
		if cond.Max != nil && num > *cond.Max {
			return false
		}
		return true
	}
	if len(cond.In) > 0 {
		s := asString(val)
		for _, allowed := range cond.In {
			if s == allowed {
				return true
			}
		}
		return false
	}
	if cond.Equals != nil {
		return looselyEqual(cond.Equals, val)
	}
	// An empty condition constrains nothing.
	return true
}

// looselyEqual compares scalars numerically when both sides parse as
// numbers, otherwise by string form. Rule values arrive from JSON where
// "22" and 22 should mean the same thing.
func looselyEqual(a, b any) bool {
	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	if okA && okB {
		return fa == fb
	}
	return asString(a) == asString(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func asString(v any) string {
	return fmt.Sprint(v)
}

// ─── Rule application ───────────────────────────────────────

// ApplyRule dispatches on the rule type and returns the new price.
// The switch covers the closed set of rule kinds; an unknown type is a
// deliberate no-op so a newly authored kind cannot corrupt prices before
// the engine learns about it.
func ApplyRule(r *model.PricingRule, price, distanceKm float64) float64 {
	switch r.RuleType {
	case model.RuleBaseRate:
		// Replaces the running price with a base-rate override.
		return r.Value * distanceKm
	case model.RuleSurcharge:
		if r.ValueType == model.ValuePercentage {
			return price * (1 + r.Value/100)
		}
		return price + r.Value
	case model.RuleMultiplier:
		return price * r.Value
	case model.RuleDiscount:
		if r.ValueType == model.ValuePercentage {
			return price * (1 - r.Value/100)
		}
		return price - r.Value
	case model.RuleMinimum:
		return math.Max(price, r.Value)
	case model.RuleMaximum:
		return math.Min(price, r.Value)
	case model.RuleFuelSurcharge:
		return price * (1 + r.Value/100)
	case model.RuleSeasonal:
		return price * r.Value
	default:
		return price
	}
}

// ApplyRules runs the (already matched and ordered) rules over the
// starting price and logs every application that moved the price by more
// than the impact epsilon.
func ApplyRules(rules []model.PricingRule, price, distanceKm float64) (float64, []model.AppliedRuleImpact) {
	var impacts []model.AppliedRuleImpact

	for i := range rules {
		r := &rules[i]
		next := ApplyRule(r, price, distanceKm)
		delta := next - price
		if math.Abs(delta) > ruleImpactEpsilon {
			impact := model.AppliedRuleImpact{
				RuleID:         r.ID,
				Name:           r.Name,
				Type:           r.RuleType,
				AbsoluteImpact: delta,
			}
			if price > 0 {
				impact.PctImpact = delta / price * 100
			}
			impacts = append(impacts, impact)
		}
		price = next
	}
	return price, impacts
}
