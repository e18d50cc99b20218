package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/lauraedgell33/freightmatch/internal/model"
	"github.com/lauraedgell33/freightmatch/pkg/cache"
)

// ─── Fallback base rates ────────────────────────────────────

// baseRateFallback is the static per-vehicle-type EUR/km table used when
// a route has no historical samples at all (cold start).
var baseRateFallback = map[string]float64{
	"van":            0.95,
	"box_truck":      1.10,
	"standard_truck": 1.20,
	"mega_trailer":   1.30,
	"refrigerated":   1.55,
	"low_loader":     1.65,
}

// defaultBaseRate covers vehicle types missing from the table.
const defaultBaseRate = 1.25

// marketAlignedBandPct is the ± deviation band treated as market-aligned.
const marketAlignedBandPct = 5.0

// Weight surcharge tiers. The two components stack, so the surcharge
// stays continuous across the 24 t boundary.
const (
	surchargeTier1Kg    = 20000.0
	surchargeTier1PerKg = 0.002 // EUR per excess kg per 100 km
	surchargeTier2Kg    = 24000.0
	surchargeTier2PerKg = 0.003
)

// Quote confidence component saturation points and level thresholds.
const (
	confidenceSizeSaturation = 50  // samples at which the size component maxes out
	confidenceVolSaturation  = 0.5 // volatility at which the component bottoms out
	confidenceHighThreshold  = 70.0
	confidenceMedThreshold   = 45.0
)

// ─── Store contracts ────────────────────────────────────────

// RouteKey identifies a route/vehicle-type combination for stats and
// demand lookups. An empty VehicleType means all types.
type RouteKey struct {
	OriginCountry string
	DestCountry   string
	VehicleType   string
}

// PriceHistoryStore supplies historical per-km price observations for a
// route (chronological, oldest first) and the aggregate fallback rate
// used when no direct samples exist.
type PriceHistoryStore interface {
	PriceSeries(ctx context.Context, route RouteKey, windowDays int) ([]float64, error)
	FallbackRate(ctx context.Context, route RouteKey) (float64, bool, error)
}

// MarketActivityStore counts live demand (open freight requests) and
// supply (available vehicles) for a route over a trailing window.
type MarketActivityStore interface {
	DemandSupplyCounts(ctx context.Context, route RouteKey, windowDays int) (demand, supply int, err error)
}

// RuleStore reads the active pricing rules whose scope can match a
// route. Rule authoring happens through the rule handler; the pricing
// pipeline consumes rules read-only.
type RuleStore interface {
	ActiveRules(ctx context.Context, scope RuleScope) ([]model.PricingRule, error)
}

// QuoteStore persists write-once quote audit records.
type QuoteStore interface {
	SaveQuote(ctx context.Context, quote *model.DynamicPriceQuote) error
}

// ─── PricingService ─────────────────────────────────────────

// QuoteRequest is the input to Quote.
type QuoteRequest struct {
	OriginCountry         string     `json:"origin_country"`
	DestCountry           string     `json:"dest_country"`
	VehicleType           string     `json:"vehicle_type,omitempty"`
	DistanceKm            float64    `json:"distance_km,omitempty"`
	WeightKg              float64    `json:"weight_kg,omitempty"`
	CargoType             string     `json:"cargo_type,omitempty"`
	LoadingDate           *time.Time `json:"loading_date,omitempty"`
	Hazardous             bool       `json:"hazardous"`
	TemperatureControlled bool       `json:"temperature_controlled"`
}

// PricingService computes explainable per-km quotes from historical
// market statistics, supply/demand elasticity, and the rule engine:
//
//	EWMA base → ×(1+trend) → ×elasticity → rules → total + weight surcharge
//
// Every enrichment step degrades gracefully: missing history falls back
// to static base rates, an unreachable rule store yields an empty rule
// set, a failed demand query assumes a balanced market. A quote never
// fails for those reasons.
type PricingService struct {
	history PriceHistoryStore
	market  MarketActivityStore
	rules   RuleStore
	quotes  QuoteStore
	cache   cache.Cache

	statsWindowDays  int
	statsCacheTTL    time.Duration
	demandWindowDays int
	quoteValidity    time.Duration

	now   func() time.Time
	newID func() string
}

// NewPricingService wires a pricing service with its stores and cache.
func NewPricingService(
	history PriceHistoryStore,
	market MarketActivityStore,
	rules RuleStore,
	quotes QuoteStore,
	c cache.Cache,
	statsWindowDays int,
	statsCacheTTL time.Duration,
	demandWindowDays int,
	quoteValidity time.Duration,
) *PricingService {
	return &PricingService{
		history:          history,
		market:           market,
		rules:            rules,
		quotes:           quotes,
		cache:            c,
		statsWindowDays:  statsWindowDays,
		statsCacheTTL:    statsCacheTTL,
		demandWindowDays: demandWindowDays,
		quoteValidity:    quoteValidity,
		now:              time.Now,
		newID:            uuid.NewString,
	}
}

// Quote runs the full pricing pipeline and persists an audit record.
func (s *PricingService) Quote(ctx context.Context, req QuoteRequest) (*model.DynamicPriceQuote, error) {
	if req.OriginCountry == "" || req.DestCountry == "" {
		return nil, fmt.Errorf("%w: origin and destination countries are required", ErrInvalidInput)
	}

	route := RouteKey{OriginCountry: req.OriginCountry, DestCountry: req.DestCountry, VehicleType: req.VehicleType}
	now := s.now()

	// ── Base price from route history ───────────────────
	stats := s.routeStats(ctx, route)
	price := stats.EWMAPricePerKm
	if stats.SampleSize == 0 && price <= 0 {
		price = fallbackBaseRate(req.VehicleType)
		log.Printf("[pricing] %s→%s: no history, static base rate %.2f EUR/km", req.OriginCountry, req.DestCountry, price)
	}

	// ── Trend and elasticity adjustments ────────────────
	price *= 1 + stats.TrendCoefficient

	multiplier := s.elasticity(ctx, route)
	price *= multiplier

	// ── Rule engine ─────────────────────────────────────
	price, impacts := s.applyRules(ctx, req, price, now)

	// ── Total with heavy-load surcharge ─────────────────
	var totalPrice *float64
	if req.DistanceKm > 0 {
		total := round2(price*req.DistanceKm + weightSurcharge(req.WeightKg, req.DistanceKm))
		totalPrice = &total
	}

	pricePerKm := round2(price)

	quote := &model.DynamicPriceQuote{
		ID:            s.newID(),
		OriginCountry: req.OriginCountry,
		DestCountry:   req.DestCountry,
		VehicleType:   req.VehicleType,
		PricePerKm:    pricePerKm,
		TotalPrice:    totalPrice,
		Range: model.PriceRange{
			Low:  round2(pricePerKm * (1 - stats.Volatility)),
			High: round2(pricePerKm * (1 + stats.Volatility)),
		},
		Confidence:       quoteConfidence(stats),
		MarketComparison: marketComparison(stats.AvgPricePerKm, pricePerKm),
		AppliedRules:     impacts,
		Stats:            stats,
		ValidFrom:        now,
		ValidUntil:       now.Add(s.quoteValidity),
		CreatedAt:        now,
	}

	// Audit persistence is best-effort: the quote is already computed
	// and the caller should get it even when the write fails.
	if err := s.quotes.SaveQuote(ctx, quote); err != nil {
		log.Printf("[pricing] WARNING: quote audit persist failed: %v", err)
	}

	log.Printf("[pricing] %s→%s %s: %.2f EUR/km (trend %+.1f%%, elasticity %.2fx, %d rules applied)",
		req.OriginCountry, req.DestCountry, req.VehicleType,
		pricePerKm, stats.TrendCoefficient*100, multiplier, len(impacts))
	return quote, nil
}

// routeStats returns the cached stats for a route, computing and caching
// them on miss. A failing history store degrades to an insufficient_data
// result instead of failing the quote.
func (s *PricingService) routeStats(ctx context.Context, route RouteKey) model.HistoricalPriceStats {
	key := fmt.Sprintf("pricing:stats:%s:%s:%s:%dd",
		route.OriginCountry, route.DestCountry, route.VehicleType, s.statsWindowDays)

	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var stats model.HistoricalPriceStats
		if err := json.Unmarshal(raw, &stats); err == nil {
			return stats
		}
	}

	series, err := s.history.PriceSeries(ctx, route, s.statsWindowDays)
	if err != nil {
		log.Printf("[pricing] WARNING: price history unavailable for %s→%s: %v — using fallback stats",
			route.OriginCountry, route.DestCountry, err)
		series = nil
	}

	fallback := 0.0
	if len(series) == 0 {
		if rate, ok, err := s.history.FallbackRate(ctx, route); err == nil && ok {
			fallback = rate
		}
	}

	stats := AnalyzePriceSeries(series, s.statsWindowDays, fallback)

	if raw, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.statsCacheTTL); err != nil {
			log.Printf("[pricing] stats cache write failed: %v", err)
		}
	}
	return stats
}

// elasticity computes the demand/supply multiplier for a route,
// defaulting to a balanced market when counts are unavailable.
func (s *PricingService) elasticity(ctx context.Context, route RouteKey) float64 {
	demand, supply, err := s.market.DemandSupplyCounts(ctx, route, s.demandWindowDays)
	if err != nil {
		log.Printf("[pricing] WARNING: demand/supply query failed: %v — assuming balanced market", err)
		return 1.0
	}
	return ElasticityMultiplier(DemandRatio(demand, supply))
}

// applyRules fetches, matches, and applies the pricing rules.
func (s *PricingService) applyRules(ctx context.Context, req QuoteRequest, price float64, now time.Time) (float64, []model.AppliedRuleImpact) {
	scope := RuleScope{
		OriginCountry: req.OriginCountry,
		DestCountry:   req.DestCountry,
		VehicleType:   req.VehicleType,
		CargoType:     req.CargoType,
	}
	rules, err := s.rules.ActiveRules(ctx, scope)
	if err != nil {
		log.Printf("[pricing] WARNING: rule store unavailable: %v — pricing without rules", err)
		return price, nil
	}

	shipment := map[string]any{
		"weight_kg":              req.WeightKg,
		"distance_km":            req.DistanceKm,
		"cargo_type":             req.CargoType,
		"hazardous":              req.Hazardous,
		"temperature_controlled": req.TemperatureControlled,
	}
	if req.LoadingDate != nil {
		shipment["loading_month"] = int(req.LoadingDate.Month())
	}

	matched := MatchRules(rules, scope, shipment, now)
	return ApplyRules(matched, price, req.DistanceKm)
}

// ─── Pure helpers ───────────────────────────────────────────

func fallbackBaseRate(vehicleType string) float64 {
	if rate, ok := baseRateFallback[vehicleType]; ok {
		return rate
	}
	return defaultBaseRate
}

// weightSurcharge is the tiered heavy-load surcharge added to the total
// price. Loads above 20 t pay per excess kg scaled by distance; above
// 24 t a second component accumulates on top.
func weightSurcharge(weightKg, distanceKm float64) float64 {
	var surcharge float64
	if weightKg > surchargeTier1Kg {
		surcharge += (weightKg - surchargeTier1Kg) * surchargeTier1PerKg * (distanceKm / 100)
	}
	if weightKg > surchargeTier2Kg {
		surcharge += (weightKg - surchargeTier2Kg) * surchargeTier2PerKg * (distanceKm / 100)
	}
	return surcharge
}

// quoteConfidence scores how much to trust a quote: sample size (40 pts,
// saturating at 50 samples), inverse volatility (40 pts, zero at 0.5),
// and window recency (20 pts, full marks at ≤90 days).
func quoteConfidence(stats model.HistoricalPriceStats) model.QuoteConfidence {
	sizePts := math.Min(float64(stats.SampleSize), confidenceSizeSaturation) / confidenceSizeSaturation * 40
	volPts := (1 - clamp(stats.Volatility/confidenceVolSaturation, 0, 1)) * 40
	recencyPts := 20.0
	if stats.PeriodDays > 90 {
		recencyPts = 20 * 90 / float64(stats.PeriodDays)
	}

	score := round1(sizePts + volPts + recencyPts)
	level := "low"
	switch {
	case score >= confidenceHighThreshold:
		level = "high"
	case score >= confidenceMedThreshold:
		level = "medium"
	}

	return model.QuoteConfidence{
		Score: score,
		Level: level,
		Factors: []string{
			fmt.Sprintf("%d samples over %d days", stats.SampleSize, stats.PeriodDays),
			fmt.Sprintf("volatility %.2f", stats.Volatility),
			fmt.Sprintf("trend %s", stats.TrendDirection),
		},
	}
}

// marketComparison relates the engine price to the market average.
func marketComparison(marketAvg, enginePrice float64) model.MarketComparison {
	cmp := model.MarketComparison{
		MarketAvg:   round2(marketAvg),
		EnginePrice: enginePrice,
	}
	if marketAvg <= 0 {
		cmp.Assessment = "no_market_data"
		return cmp
	}

	cmp.DeviationPct = round2((enginePrice - marketAvg) / marketAvg * 100)
	switch {
	case math.Abs(cmp.DeviationPct) <= marketAlignedBandPct:
		cmp.Assessment = "market_aligned"
	case cmp.DeviationPct > 0:
		cmp.Assessment = "above_market"
	default:
		cmp.Assessment = "below_market"
	}
	return cmp
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
