package service

import (
	"math"
	"sort"

	"github.com/lauraedgell33/freightmatch/internal/model"
)

// ─── Stats Constants ────────────────────────────────────────

const (
	// EWMADecay is the per-step decay applied to older observations.
	// The most recent sample gets weight decay^0, the oldest decay^(n-1).
	EWMADecay = 0.94

	// DefaultVolatility is assumed when a route has no samples at all.
	DefaultVolatility = 0.15

	// TrendClamp bounds the normalized regression slope to ±10% so a
	// handful of outliers cannot swing the base price.
	TrendClamp = 0.10

	// trendStableEpsilon is the band around zero treated as "stable".
	trendStableEpsilon = 0.01
)

// ─── StatsAnalyzer ──────────────────────────────────────────

// AnalyzePriceSeries computes descriptive and trend statistics over a
// chronological series of per-km price observations (oldest first).
//
// It is a pure function of its inputs: no clock, no I/O, no hidden state.
// Callers cache the result keyed by (origin, destination, vehicle type,
// window) with a TTL.
//
// An empty series yields an insufficient_data result carrying only the
// fallback value (or zero when none is known), a zero trend, and the
// default volatility.
func AnalyzePriceSeries(series []float64, periodDays int, fallback float64) model.HistoricalPriceStats {
	if len(series) == 0 {
		return model.HistoricalPriceStats{
			SampleSize:     0,
			PeriodDays:     periodDays,
			EWMAPricePerKm: fallback,
			AvgPricePerKm:  fallback,
			Volatility:     DefaultVolatility,
			TrendDirection: model.TrendInsufficientData,
		}
	}

	n := len(series)
	mean := meanOf(series)
	stdDev := popStdDev(series, mean)

	volatility := 0.0
	if mean > 0 {
		volatility = stdDev / mean
	}

	minP, maxP := series[0], series[0]
	for _, v := range series[1:] {
		minP = math.Min(minP, v)
		maxP = math.Max(maxP, v)
	}

	trend := trendCoefficient(series, mean)

	return model.HistoricalPriceStats{
		SampleSize:       n,
		PeriodDays:       periodDays,
		EWMAPricePerKm:   EWMA(series, EWMADecay),
		AvgPricePerKm:    mean,
		MinPricePerKm:    minP,
		MaxPricePerKm:    maxP,
		StdDev:           stdDev,
		Volatility:       volatility,
		TrendCoefficient: trend,
		TrendDirection:   directionFor(trend),
		Percentiles: model.Percentiles{
			P25: percentile(series, 0.25),
			P50: percentile(series, 0.50),
			P75: percentile(series, 0.75),
		},
	}
}

// EWMA returns the exponentially-weighted moving average of a
// chronological series (oldest first). The most recent observation gets
// weight decay^0; the weight total normalizes the result.
func EWMA(series []float64, decay float64) float64 {
	n := len(series)
	if n == 0 {
		return 0
	}

	var weighted, total float64
	for i, v := range series {
		w := math.Pow(decay, float64(n-1-i))
		weighted += v * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// trendCoefficient fits an ordinary least-squares slope of price against
// sequence index, normalizes it by the mean, and clamps to ±TrendClamp.
//
// Slope formula: b = (n·ΣXY − ΣX·ΣY) / (n·ΣX² − (ΣX)²)
func trendCoefficient(series []float64, mean float64) float64 {
	n := len(series)
	if n < 2 || mean <= 0 {
		return 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	fn := float64(n)
	denominator := fn*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denominator

	normalized := slope / mean
	return clamp(normalized, -TrendClamp, TrendClamp)
}

func directionFor(trend float64) model.TrendDirection {
	switch {
	case trend > trendStableEpsilon:
		return model.TrendRising
	case trend < -trendStableEpsilon:
		return model.TrendFalling
	default:
		return model.TrendStable
	}
}

// percentile returns the nearest-rank percentile using floor(n*q)
// indexing into the ascending-sorted series.
func percentile(series []float64, q float64) float64 {
	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(len(sorted)) * q))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ─── Shared numeric helpers ─────────────────────────────────

func meanOf(series []float64) float64 {
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// popStdDev is the population standard deviation (divide by n, not n-1).
func popStdDev(series []float64, mean float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range series {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(series)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
