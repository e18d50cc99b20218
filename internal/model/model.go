// Package model contains domain models for the freight matching and
// dynamic pricing engine. These structs map to the PostgreSQL schema
// (freight_requests, vehicles, match_results, pricing_rules, price_quotes).
package model

import (
	"math"
	"time"
)

// ─── Enums ──────────────────────────────────────────────────

// MatchStatus is the lifecycle state of a persisted match suggestion.
// A result moves suggested → accepted or suggested → rejected exactly once.
type MatchStatus string

const (
	MatchSuggested MatchStatus = "suggested"
	MatchAccepted  MatchStatus = "accepted"
	MatchRejected  MatchStatus = "rejected"
)

// MatchTier is the discrete quality label derived from the total score.
type MatchTier string

const (
	TierExcellent MatchTier = "excellent" // total ≥ 85
	TierGood      MatchTier = "good"      // total ≥ 70
	TierFair      MatchTier = "fair"      // total ≥ 55
	TierLow       MatchTier = "low"
)

// TierForScore maps a total score to its tier.
func TierForScore(total float64) MatchTier {
	switch {
	case total >= 85:
		return TierExcellent
	case total >= 70:
		return TierGood
	case total >= 55:
		return TierFair
	default:
		return TierLow
	}
}

// VehicleStatus tracks whether a vehicle can take new freight.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehicleBooked    VehicleStatus = "booked"
	VehicleOffline   VehicleStatus = "offline"
)

// TrendDirection classifies the price trend of a route.
type TrendDirection string

const (
	TrendRising           TrendDirection = "rising"
	TrendFalling          TrendDirection = "falling"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Scoring factors & weights ──────────────────────────────

// Factor identifies one of the eight scoring dimensions.
type Factor string

const (
	FactorDistance    Factor = "distance"
	FactorCapacity    Factor = "capacity"
	FactorTiming      Factor = "timing"
	FactorReliability Factor = "reliability"
	FactorPrice       Factor = "price"
	FactorCarbon      Factor = "carbon"
	FactorRouteCompat Factor = "route_compat"
	FactorHistory     Factor = "history"
)

// CoreFactors are the six factors whose weights are learned from feedback.
// Together they carry 88% of the weight mass; route_compat and history
// stay fixed at 7% and 5%.
var CoreFactors = []Factor{
	FactorDistance, FactorCapacity, FactorTiming,
	FactorReliability, FactorPrice, FactorCarbon,
}

// AllFactors lists every factor in canonical order.
var AllFactors = []Factor{
	FactorDistance, FactorCapacity, FactorTiming, FactorReliability,
	FactorPrice, FactorCarbon, FactorRouteCompat, FactorHistory,
}

// Fixed weight shares for the non-learned factors.
const (
	RouteCompatWeight = 0.07
	HistoryWeight     = 0.05
	CoreWeightMass    = 0.88
)

// WeightVector maps each factor to its weight. A valid vector covers all
// eight factors and sums to 1.0 (±rounding). Vectors are replaced
// wholesale on recalibration, never mutated in place.
type WeightVector map[Factor]float64

// DefaultWeights returns the static, hand-tuned weight vector used until
// enough feedback exists to learn one.
func DefaultWeights() WeightVector {
	return WeightVector{
		FactorDistance:    0.20,
		FactorCapacity:    0.15,
		FactorTiming:      0.15,
		FactorReliability: 0.15,
		FactorPrice:       0.18,
		FactorCarbon:      0.05,
		FactorRouteCompat: RouteCompatWeight,
		FactorHistory:     HistoryWeight,
	}
}

// Sum returns the total weight mass across all factors.
func (w WeightVector) Sum() float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}

// Valid reports whether the vector covers all eight factors, is
// non-negative, and sums to 1.0 within tolerance.
func (w WeightVector) Valid() bool {
	if len(w) != len(AllFactors) {
		return false
	}
	for _, f := range AllFactors {
		v, ok := w[f]
		if !ok || v < 0 {
			return false
		}
	}
	return math.Abs(w.Sum()-1.0) < 1e-6
}

// FactorScores holds the 0–100 score for each factor.
type FactorScores map[Factor]float64

// ScoreBreakdown is the full scoring output for one (request, candidate)
// pair: per-factor scores, the weighted total, a confidence value, the
// tier, the weight vector used, and a human-readable note per factor.
type ScoreBreakdown struct {
	Factors      FactorScores      `json:"factors"`
	Total        float64           `json:"total"`      // 0–100, one decimal
	Confidence   float64           `json:"confidence"` // 30–99
	Tier         MatchTier         `json:"tier"`
	Weights      WeightVector      `json:"weights"`
	Explanations map[Factor]string `json:"explanations"`
}

// ─── Matching entities ──────────────────────────────────────

// FreightRequest is the freight side of a match. Immutable once scored
// within a single matching pass.
type FreightRequest struct {
	ID                    int64      `json:"id"`
	CompanyID             int64      `json:"company_id"`
	Origin                *Location  `json:"origin,omitempty"`
	Destination           *Location  `json:"destination,omitempty"`
	OriginCountry         string     `json:"origin_country"`
	OriginCity            string     `json:"origin_city,omitempty"`
	DestCountry           string     `json:"dest_country"`
	DestCity              string     `json:"dest_city,omitempty"`
	WeightKg              float64    `json:"weight_kg"`
	VolumeM3              float64    `json:"volume_m3,omitempty"`
	VehicleType           string     `json:"vehicle_type,omitempty"`
	Hazardous             bool       `json:"hazardous"`
	TemperatureControlled bool       `json:"temperature_controlled"`
	ListedPrice           float64    `json:"listed_price,omitempty"` // EUR
	DistanceKm            float64    `json:"distance_km,omitempty"`
	LoadingDate           *time.Time `json:"loading_date,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// VehicleCandidate is the vehicle side of a match.
type VehicleCandidate struct {
	ID                    int64         `json:"id"`
	CompanyID             int64         `json:"company_id"`
	Position              *Location     `json:"position,omitempty"`
	CapacityKg            float64       `json:"capacity_kg"`
	CapacityM3            float64       `json:"capacity_m3,omitempty"`
	VehicleType           string        `json:"vehicle_type"`
	EmissionClass         string        `json:"emission_class,omitempty"` // euro5, euro6, hybrid, electric, ...
	ADRCertified          bool          `json:"adr_certified"`
	TemperatureControlled bool          `json:"temperature_controlled"`
	PricePerKm            float64       `json:"price_per_km,omitempty"` // EUR/km, 0 = not listed
	AvailableFrom         *time.Time    `json:"available_from,omitempty"`
	DestCountry           string        `json:"dest_country,omitempty"`
	DestCity              string        `json:"dest_city,omitempty"`
	CompanyRating         float64       `json:"company_rating,omitempty"` // 0–5, 0 = unrated
	Status                VehicleStatus `json:"status"`
}

// MatchResult is a persisted top-K suggestion. It is the feedback
// substrate for weight learning and is only ever mutated through the
// accept/reject transition.
type MatchResult struct {
	ID               int64          `json:"id"`
	RequestID        int64          `json:"request_id"`
	VehicleID        int64          `json:"vehicle_id"`
	FreightCompanyID int64          `json:"freight_company_id"`
	VehicleCompanyID int64          `json:"vehicle_company_id"`
	Breakdown        ScoreBreakdown `json:"breakdown"`
	Status           MatchStatus    `json:"status"`
	SuggestedAt      time.Time      `json:"suggested_at"`
	RespondedAt      *time.Time     `json:"responded_at,omitempty"`
	RejectReason     string         `json:"reject_reason,omitempty"`
}

// ─── Pricing rules ──────────────────────────────────────────

// RuleType enumerates the closed set of pricing rule kinds.
type RuleType string

const (
	RuleBaseRate      RuleType = "base_rate"
	RuleSurcharge     RuleType = "surcharge"
	RuleMultiplier    RuleType = "multiplier"
	RuleDiscount      RuleType = "discount"
	RuleMinimum       RuleType = "minimum"
	RuleMaximum       RuleType = "maximum"
	RuleFuelSurcharge RuleType = "fuel_surcharge"
	RuleSeasonal      RuleType = "seasonal"
)

// ValueType controls how surcharge/discount values are interpreted.
type ValueType string

const (
	ValueAbsolute   ValueType = "absolute"
	ValuePercentage ValueType = "percentage"
)

// RuleCondition constrains one shipment context field. Exactly one of the
// three forms is populated: an exact value, a numeric {min,max} range, or
// an in-set membership list.
type RuleCondition struct {
	Equals any      `json:"equals,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	In     []string `json:"in,omitempty"`
}

// PricingRule is an externally authored pricing adjustment. The engine
// reads active, scope-matching, condition-satisfying rules ordered by
// ascending priority and applies them sequentially to a running price.
type PricingRule struct {
	ID            int64                    `json:"id"`
	Name          string                   `json:"name"`
	RuleType      RuleType                 `json:"rule_type"`
	OriginCountry string                   `json:"origin_country,omitempty"` // empty = wildcard
	DestCountry   string                   `json:"dest_country,omitempty"`
	VehicleType   string                   `json:"vehicle_type,omitempty"`
	CargoType     string                   `json:"cargo_type,omitempty"`
	Value         float64                  `json:"value"`
	ValueType     ValueType                `json:"value_type,omitempty"` // surcharge/discount only
	Conditions    map[string]RuleCondition `json:"conditions,omitempty"`
	Priority      int                      `json:"priority"` // ascending = applied first
	IsActive      bool                     `json:"is_active"`
	ValidFrom     *time.Time               `json:"valid_from,omitempty"`
	ValidUntil    *time.Time               `json:"valid_until,omitempty"`
}

// InValidityWindow reports whether the rule is valid at the given time.
// An unset bound is open-ended.
func (r *PricingRule) InValidityWindow(at time.Time) bool {
	if r.ValidFrom != nil && at.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && at.After(*r.ValidUntil) {
		return false
	}
	return true
}

// AppliedRuleImpact is one audit-log entry for a rule application that
// moved the price by more than the impact epsilon.
type AppliedRuleImpact struct {
	RuleID         int64    `json:"rule_id"`
	Name           string   `json:"name"`
	Type           RuleType `json:"type"`
	AbsoluteImpact float64  `json:"absolute_impact"` // EUR/km delta
	PctImpact      float64  `json:"pct_impact"`
}

// ─── Historical price statistics ────────────────────────────

// Percentiles holds the quartile cut points of a price series.
type Percentiles struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
}

// HistoricalPriceStats is the pure statistical summary of a route's
// historical per-km prices. Recomputed on demand and cached with a TTL;
// never persisted as mutable state.
type HistoricalPriceStats struct {
	SampleSize       int            `json:"sample_size"`
	PeriodDays       int            `json:"period_days"`
	EWMAPricePerKm   float64        `json:"ewma_price_per_km"`
	AvgPricePerKm    float64        `json:"avg_price_per_km"`
	MinPricePerKm    float64        `json:"min_price_per_km"`
	MaxPricePerKm    float64        `json:"max_price_per_km"`
	StdDev           float64        `json:"std_dev"`
	Volatility       float64        `json:"volatility"` // std_dev / mean
	TrendCoefficient float64        `json:"trend_coefficient"`
	TrendDirection   TrendDirection `json:"trend_direction"`
	Percentiles      Percentiles    `json:"percentiles"`
}

// ─── Quotes ─────────────────────────────────────────────────

// PriceRange is the volatility band around the engine price.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// QuoteConfidence describes how much the engine trusts its own quote.
type QuoteConfidence struct {
	Score   float64  `json:"score"` // 0–100
	Level   string   `json:"level"` // high | medium | low
	Factors []string `json:"factors,omitempty"`
}

// MarketComparison relates the engine price to the market average.
type MarketComparison struct {
	MarketAvg    float64 `json:"market_avg"`
	EnginePrice  float64 `json:"engine_price"`
	DeviationPct float64 `json:"deviation_pct"`
	Assessment   string  `json:"assessment"` // market_aligned | above_market | below_market
}

// DynamicPriceQuote is a write-once audit record. Re-quoting produces a
// new record with a fresh id, never an update.
type DynamicPriceQuote struct {
	ID               string               `json:"id"`
	OriginCountry    string               `json:"origin_country"`
	DestCountry      string               `json:"dest_country"`
	VehicleType      string               `json:"vehicle_type,omitempty"`
	PricePerKm       float64              `json:"price_per_km"`
	TotalPrice       *float64             `json:"total_price,omitempty"`
	Range            PriceRange           `json:"price_range"`
	Confidence       QuoteConfidence      `json:"confidence"`
	MarketComparison MarketComparison     `json:"market_comparison"`
	AppliedRules     []AppliedRuleImpact  `json:"applied_rules,omitempty"`
	Stats            HistoricalPriceStats `json:"stats"`
	ValidFrom        time.Time            `json:"valid_from"`
	ValidUntil       time.Time            `json:"valid_until"`
	CreatedAt        time.Time            `json:"created_at"`
}
