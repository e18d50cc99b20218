package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/lauraedgell33/freightmatch/internal/model"
	"github.com/lauraedgell33/freightmatch/pkg/geo"
)

// ─── Scoring Constants ──────────────────────────────────────

const (
	// NeutralScore is used when a factor cannot be computed (missing
	// coordinates, dates, or destination).
	NeutralScore = 50.0

	// NeutralPriceScore is the price factor when either side lacks a
	// price — slightly above neutral since an unlisted price is not a
	// mismatch signal.
	NeutralPriceScore = 65.0

	// DefaultCompanyRating stands in for an unrated carrier (0–5 scale).
	DefaultCompanyRating = 3.0

	// DefaultCompletionRate is the cold-start smoothing applied when a
	// carrier has fewer than MinOrdersForCompletionRate historical orders.
	DefaultCompletionRate = 0.7

	// MinOrdersForCompletionRate is the history size below which the
	// completion rate falls back to DefaultCompletionRate.
	MinOrdersForCompletionRate = 5

	// MinResolvedPairMatches is the minimum number of resolved matches
	// between two companies before their history influences the score.
	MinResolvedPairMatches = 3

	// ConfidenceFloor / ConfidenceCeiling bound the match confidence.
	ConfidenceFloor   = 30.0
	ConfidenceCeiling = 99.0

	// confidenceSpreadPenalty scales how much disagreement among the key
	// factors reduces confidence.
	confidenceSpreadPenalty = 0.4
)

// CandidateHistory carries the historical context ScoringEngine needs for
// the reliability and history factors. MatchingService assembles it from
// the company and match-result stores so that scoring itself stays a pure
// function with no side effects.
type CandidateHistory struct {
	CompletedOrders int
	CancelledOrders int
	FailedOrders    int
	PairResolved    int // resolved (accepted or rejected) matches between the two companies
	PairAccepted    int
}

// CompletionRate returns the carrier's completed/(completed+cancelled+failed)
// ratio, smoothed to DefaultCompletionRate below the cold-start threshold.
func (h CandidateHistory) CompletionRate() float64 {
	total := h.CompletedOrders + h.CancelledOrders + h.FailedOrders
	if total < MinOrdersForCompletionRate {
		return DefaultCompletionRate
	}
	return float64(h.CompletedOrders) / float64(total)
}

// ─── ScoringEngine ──────────────────────────────────────────

// Score computes the eight-factor weighted match score between one
// freight request and one vehicle candidate.
//
// Pure function: everything it needs arrives through its parameters, so
// the same inputs always produce the same breakdown. The caller decides
// what, if anything, to persist.
func Score(req *model.FreightRequest, cand *model.VehicleCandidate, hist CandidateHistory, weights model.WeightVector) model.ScoreBreakdown {
	factors := make(model.FactorScores, len(model.AllFactors))
	explain := make(map[model.Factor]string, len(model.AllFactors))

	factors[model.FactorDistance], explain[model.FactorDistance] = distanceScore(req, cand)
	factors[model.FactorCapacity], explain[model.FactorCapacity] = capacityScore(req, cand)
	factors[model.FactorTiming], explain[model.FactorTiming] = timingScore(req, cand)
	factors[model.FactorReliability], explain[model.FactorReliability] = reliabilityScore(cand, hist)
	factors[model.FactorPrice], explain[model.FactorPrice] = priceScore(req, cand)
	factors[model.FactorCarbon], explain[model.FactorCarbon] = carbonScore(cand)
	factors[model.FactorRouteCompat], explain[model.FactorRouteCompat] = routeCompatScore(req, cand)
	factors[model.FactorHistory], explain[model.FactorHistory] = historyScore(hist)

	var total float64
	for _, f := range model.AllFactors {
		total += factors[f] * weights[f]
	}
	total = math.Round(total*10) / 10

	return model.ScoreBreakdown{
		Factors:      factors,
		Total:        total,
		Confidence:   matchConfidence(factors),
		Tier:         model.TierForScore(total),
		Weights:      weights,
		Explanations: explain,
	}
}

// ─── Individual factors ─────────────────────────────────────

// distanceScore rewards vehicles close to the pickup point:
// 100 at zero km, dropping one point per 5 km of deadhead.
func distanceScore(req *model.FreightRequest, cand *model.VehicleCandidate) (float64, string) {
	if req.Origin == nil || cand.Position == nil {
		return NeutralScore, "position unknown, neutral distance score"
	}
	km := geo.HaversineKm(*req.Origin, *cand.Position)
	score := clamp(100-km/5, 0, 100)
	return score, fmt.Sprintf("vehicle %.0f km (~%.1f h) from pickup", km, geo.EstimateTransitHours(*cand.Position, *req.Origin))
}

// capacityScore rewards efficient utilization: 80–100% of capacity is
// ideal, lower utilization wastes the vehicle.
func capacityScore(req *model.FreightRequest, cand *model.VehicleCandidate) (float64, string) {
	if cand.CapacityKg <= 0 {
		return NeutralScore, "capacity unknown, neutral score"
	}
	utilization := req.WeightKg / cand.CapacityKg

	var score float64
	switch {
	case utilization >= 0.8 && utilization <= 1.0:
		score = 100
	case utilization >= 0.7:
		score = 90
	case utilization >= 0.5:
		score = 75
	case utilization >= 0.3:
		score = 55
	default:
		score = 35
	}
	return score, fmt.Sprintf("%.0f%% capacity utilization", utilization*100)
}

// timingScore rewards vehicles available at or just before the loading
// date. A vehicle that only becomes available after loading cannot make
// the pickup and scores the bottom tier.
func timingScore(req *model.FreightRequest, cand *model.VehicleCandidate) (float64, string) {
	if req.LoadingDate == nil || cand.AvailableFrom == nil {
		return NeutralScore, "loading or availability date unknown, neutral score"
	}
	days := req.LoadingDate.Sub(*cand.AvailableFrom).Hours() / 24

	var score float64
	switch {
	case days < 0:
		score = 15
	case days <= 1:
		score = 100
	case days <= 2:
		score = 90
	case days <= 3:
		score = 75
	case days <= 5:
		score = 55
	case days <= 7:
		score = 35
	default:
		score = 15
	}
	return score, fmt.Sprintf("available %.1f days before loading", days)
}

// reliabilityScore combines the carrier's rating with its historical
// completion rate: rating·12 + completionRate·40, capped at 100.
func reliabilityScore(cand *model.VehicleCandidate, hist CandidateHistory) (float64, string) {
	rating := cand.CompanyRating
	if rating <= 0 {
		rating = DefaultCompanyRating
	}
	completion := hist.CompletionRate()
	score := clamp(rating*12+completion*40, 0, 100)
	return score, fmt.Sprintf("rating %.1f/5, %.0f%% completion rate", rating, completion*100)
}

// priceScore compares the candidate's asking total against the listed
// price: the cheaper the carrier relative to the listing, the better.
func priceScore(req *model.FreightRequest, cand *model.VehicleCandidate) (float64, string) {
	if cand.PricePerKm <= 0 || req.ListedPrice <= 0 || req.DistanceKm <= 0 {
		return NeutralPriceScore, "no price to compare, neutral score"
	}
	ratio := (cand.PricePerKm * req.DistanceKm) / req.ListedPrice

	var score float64
	switch {
	case ratio <= 0.85:
		score = 100
	case ratio <= 0.95:
		score = 90
	case ratio <= 1.05:
		score = 80
	case ratio <= 1.15:
		score = 60
	case ratio <= 1.30:
		score = 40
	default:
		score = 20
	}
	return score, fmt.Sprintf("asking price is %.0f%% of listed price", ratio*100)
}

// carbonScore is a discrete lookup on the vehicle's emission class token.
func carbonScore(cand *model.VehicleCandidate) (float64, string) {
	class := strings.ToLower(cand.EmissionClass)

	var score float64
	switch class {
	case "electric", "hydrogen":
		score = 100
	case "hybrid":
		score = 90
	case "lng", "cng":
		score = 75
	case "euro6":
		score = 65
	case "euro5":
		score = 50
	default:
		score = 40
	}
	if class == "" {
		return score, "emission class unknown"
	}
	return score, fmt.Sprintf("emission class %s", class)
}

// routeCompatScore checks whether the vehicle is heading where the
// freight needs to go. A city-level match counts as a full match even
// when the country strings disagree in form.
func routeCompatScore(req *model.FreightRequest, cand *model.VehicleCandidate) (float64, string) {
	if req.DestCountry == "" || cand.DestCountry == "" {
		return NeutralScore, "destination unknown on one side, neutral score"
	}
	if strings.EqualFold(req.DestCountry, cand.DestCountry) {
		return 100, "destination countries match"
	}
	if req.DestCity != "" && cand.DestCity != "" && strings.EqualFold(req.DestCity, cand.DestCity) {
		return 100, "destination cities match"
	}
	return 40, "destinations differ"
}

// historyScore is the acceptance fraction of past resolved matches
// between this exact freight-company/carrier pair.
func historyScore(hist CandidateHistory) (float64, string) {
	if hist.PairResolved < MinResolvedPairMatches {
		return NeutralScore, "no shared match history yet"
	}
	score := float64(hist.PairAccepted) / float64(hist.PairResolved) * 100
	return score, fmt.Sprintf("%d of %d past suggestions accepted", hist.PairAccepted, hist.PairResolved)
}

// ─── Confidence ─────────────────────────────────────────────

// matchConfidence measures agreement among the key factors (distance,
// capacity, timing, reliability): their mean minus a penalty for spread,
// clamped to [30, 99]. Factors that agree produce a confident score;
// divergence means the total is balancing strong and weak signals.
func matchConfidence(factors model.FactorScores) float64 {
	key := []float64{
		factors[model.FactorDistance],
		factors[model.FactorCapacity],
		factors[model.FactorTiming],
		factors[model.FactorReliability],
	}
	mean := meanOf(key)
	spread := popStdDev(key, mean)
	return clamp(mean-confidenceSpreadPenalty*spread, ConfidenceFloor, ConfidenceCeiling)
}
