package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lauraedgell33/freightmatch/internal/model"
)

func TestCapacityScoreTiers(t *testing.T) {
	req := &model.FreightRequest{}
	cand := &model.VehicleCandidate{CapacityKg: 10000}

	cases := []struct {
		weight float64
		want   float64
	}{
		{9000, 100}, // 90% utilization
		{8000, 100}, // exactly 80%
		{7500, 90},
		{6000, 75},
		{4000, 55},
		{2000, 35},
	}
	for _, tc := range cases {
		req.WeightKg = tc.weight
		got, _ := capacityScore(req, cand)
		assert.Equal(t, tc.want, got, "weight %.0f", tc.weight)
	}

	cand.CapacityKg = 0
	got, _ := capacityScore(req, cand)
	assert.Equal(t, NeutralScore, got)
}

func TestTimingScoreTiers(t *testing.T) {
	loading := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	req := &model.FreightRequest{LoadingDate: &loading}

	cases := []struct {
		availableDaysBefore float64
		want                float64
	}{
		{0.5, 100},
		{1.5, 90},
		{2.5, 75},
		{4, 55},
		{6, 35},
		{10, 15},
		{-1, 15}, // available only after loading: cannot make the pickup
	}
	for _, tc := range cases {
		avail := loading.Add(-time.Duration(tc.availableDaysBefore * 24 * float64(time.Hour)))
		cand := &model.VehicleCandidate{AvailableFrom: &avail}
		got, _ := timingScore(req, cand)
		assert.Equal(t, tc.want, got, "%.1f days before", tc.availableDaysBefore)
	}

	got, _ := timingScore(req, &model.VehicleCandidate{})
	assert.Equal(t, NeutralScore, got)
}

func TestPriceScoreTiers(t *testing.T) {
	req := &model.FreightRequest{ListedPrice: 1000, DistanceKm: 500}

	cases := []struct {
		perKm float64
		want  float64
	}{
		{1.60, 100}, // asking 800, 80% of listed
		{1.90, 90},
		{2.00, 80},
		{2.20, 60},
		{2.50, 40},
		{3.00, 20},
	}
	for _, tc := range cases {
		got, _ := priceScore(req, &model.VehicleCandidate{PricePerKm: tc.perKm})
		assert.Equal(t, tc.want, got, "%.2f EUR/km", tc.perKm)
	}

	got, _ := priceScore(req, &model.VehicleCandidate{})
	assert.Equal(t, NeutralPriceScore, got)
}

func TestCarbonScoreClasses(t *testing.T) {
	cases := map[string]float64{
		"electric": 100,
		"hydrogen": 100,
		"hybrid":   90,
		"lng":      75,
		"euro6":    65,
		"euro5":    50,
		"euro3":    40,
		"":         40,
	}
	for class, want := range cases {
		got, _ := carbonScore(&model.VehicleCandidate{EmissionClass: class})
		assert.Equal(t, want, got, "class %q", class)
	}
}

func TestRouteCompatScore(t *testing.T) {
	req := &model.FreightRequest{DestCountry: "FR", DestCity: "Lyon"}

	got, _ := routeCompatScore(req, &model.VehicleCandidate{DestCountry: "fr"})
	assert.Equal(t, 100.0, got, "country match is case-insensitive")

	got, _ = routeCompatScore(req, &model.VehicleCandidate{DestCountry: "France", DestCity: "LYON"})
	assert.Equal(t, 100.0, got, "city match overrides country form mismatch")

	got, _ = routeCompatScore(req, &model.VehicleCandidate{DestCountry: "PL", DestCity: "Warsaw"})
	assert.Equal(t, 40.0, got)

	got, _ = routeCompatScore(req, &model.VehicleCandidate{})
	assert.Equal(t, NeutralScore, got)
}

func TestHistoryScore(t *testing.T) {
	got, _ := historyScore(CandidateHistory{PairResolved: 2, PairAccepted: 2})
	assert.Equal(t, NeutralScore, got, "below the resolved-match threshold")

	got, _ = historyScore(CandidateHistory{PairResolved: 4, PairAccepted: 3})
	assert.Equal(t, 75.0, got)
}

func TestCompletionRateColdStart(t *testing.T) {
	assert.Equal(t, DefaultCompletionRate, CandidateHistory{CompletedOrders: 3}.CompletionRate())
	assert.Equal(t, 0.9, CandidateHistory{CompletedOrders: 18, CancelledOrders: 2}.CompletionRate())
}

func TestScoreBoundsOnArbitraryInput(t *testing.T) {
	loading := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	avail := loading.Add(-36 * time.Hour)
	req := &model.FreightRequest{
		Origin:      &model.Location{Lat: 52.52, Lon: 13.40},
		DestCountry: "FR", WeightKg: 5000, ListedPrice: 800, DistanceKm: 600,
		LoadingDate: &loading,
	}
	cand := &model.VehicleCandidate{
		ID: 7, Position: &model.Location{Lat: 48.85, Lon: 2.35},
		CapacityKg: 24000, PricePerKm: 2.5, EmissionClass: "euro5",
		DestCountry: "ES", AvailableFrom: &avail, CompanyRating: 2.1,
	}

	b := Score(req, cand, CandidateHistory{}, model.DefaultWeights())

	for f, v := range b.Factors {
		assert.GreaterOrEqual(t, v, 0.0, "factor %s", f)
		assert.LessOrEqual(t, v, 100.0, "factor %s", f)
	}
	assert.GreaterOrEqual(t, b.Total, 0.0)
	assert.LessOrEqual(t, b.Total, 100.0)
	assert.GreaterOrEqual(t, b.Confidence, ConfidenceFloor)
	assert.LessOrEqual(t, b.Confidence, ConfidenceCeiling)
	assert.Len(t, b.Explanations, len(model.AllFactors))
}

// A strong match: right-sized vehicle already at the pickup, available
// same day, reliable carrier, under-bidding the listed price, heading to
// the same destination.
func TestScoreStrongMatchScenario(t *testing.T) {
	loading := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	avail := loading.Add(-12 * time.Hour)
	berlin := model.Location{Lat: 52.52, Lon: 13.40}

	req := &model.FreightRequest{
		ID: 1, CompanyID: 10,
		Origin: &berlin, OriginCountry: "DE",
		DestCountry: "FR", DestCity: "Paris",
		WeightKg: 18000, ListedPrice: 1200, DistanceKm: 900,
		LoadingDate: &loading,
	}
	cand := &model.VehicleCandidate{
		ID: 2, CompanyID: 20,
		Position: &berlin, CapacityKg: 24000,
		PricePerKm: 1.10, EmissionClass: "euro6",
		DestCountry: "FR", AvailableFrom: &avail,
		CompanyRating: 4.5,
	}
	hist := CandidateHistory{CompletedOrders: 18, CancelledOrders: 2}

	b := Score(req, cand, hist, model.DefaultWeights())

	assert.Equal(t, 100.0, b.Factors[model.FactorDistance])
	assert.Equal(t, 90.0, b.Factors[model.FactorCapacity]) // 75% utilization
	assert.Equal(t, 100.0, b.Factors[model.FactorTiming])
	assert.Equal(t, 90.0, b.Factors[model.FactorReliability]) // 4.5·12 + 0.9·40
	assert.Equal(t, 100.0, b.Factors[model.FactorPrice])      // asking 990 vs 1200 listed
	assert.Equal(t, 65.0, b.Factors[model.FactorCarbon])
	assert.Equal(t, 100.0, b.Factors[model.FactorRouteCompat])
	assert.Equal(t, NeutralScore, b.Factors[model.FactorHistory])

	require.GreaterOrEqual(t, b.Total, 85.0)
	assert.Equal(t, model.TierExcellent, b.Tier)
	assert.GreaterOrEqual(t, b.Confidence, 70.0)
}

func TestScoreWeightsShiftTotal(t *testing.T) {
	req := &model.FreightRequest{WeightKg: 9000, DestCountry: "FR"}
	cand := &model.VehicleCandidate{ID: 1, CapacityKg: 10000, DestCountry: "PL", EmissionClass: "electric"}

	base := Score(req, cand, CandidateHistory{}, model.DefaultWeights())

	carbonHeavy := model.WeightVector{
		model.FactorDistance: 0.05, model.FactorCapacity: 0.15, model.FactorTiming: 0.10,
		model.FactorReliability: 0.10, model.FactorPrice: 0.10, model.FactorCarbon: 0.38,
		model.FactorRouteCompat: 0.07, model.FactorHistory: 0.05,
	}
	require.True(t, carbonHeavy.Valid())

	shifted := Score(req, cand, CandidateHistory{}, carbonHeavy)
	assert.Greater(t, shifted.Total, base.Total, "up-weighting the candidate's best factor must raise the total")
}

func TestMatchConfidencePenalizesDisagreement(t *testing.T) {
	agreeing := model.FactorScores{
		model.FactorDistance: 80, model.FactorCapacity: 80,
		model.FactorTiming: 80, model.FactorReliability: 80,
	}
	diverging := model.FactorScores{
		model.FactorDistance: 100, model.FactorCapacity: 20,
		model.FactorTiming: 100, model.FactorReliability: 100,
	}

	assert.Equal(t, 80.0, matchConfidence(agreeing))
	assert.Less(t, matchConfidence(diverging), 80.0)
}
