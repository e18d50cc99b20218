package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lauraedgell33/freightmatch/internal/model"
)

func TestAnalyzePriceSeriesEmpty(t *testing.T) {
	stats := AnalyzePriceSeries(nil, 90, 1.35)

	assert.Equal(t, 0, stats.SampleSize)
	assert.Equal(t, 90, stats.PeriodDays)
	assert.Equal(t, 1.35, stats.EWMAPricePerKm)
	assert.Equal(t, 1.35, stats.AvgPricePerKm)
	assert.Equal(t, DefaultVolatility, stats.Volatility)
	assert.Equal(t, 0.0, stats.TrendCoefficient)
	assert.Equal(t, model.TrendInsufficientData, stats.TrendDirection)
}

func TestEWMAFavorsRecentSamples(t *testing.T) {
	// A recent jump must pull the EWMA above the plain average.
	series := []float64{10, 10, 10, 20}
	ewma := EWMA(series, EWMADecay)
	mean := (10.0 + 10 + 10 + 20) / 4

	assert.Greater(t, ewma, mean)
	assert.Less(t, ewma, 20.0)
}

func TestEWMASingleSample(t *testing.T) {
	assert.Equal(t, 1.42, EWMA([]float64{1.42}, EWMADecay))
}

func TestEWMAConstantSeries(t *testing.T) {
	assert.InDelta(t, 1.2, EWMA([]float64{1.2, 1.2, 1.2, 1.2, 1.2}, EWMADecay), 1e-9)
}

func TestTrendClampedOnSpike(t *testing.T) {
	// A 10x spike produces a huge raw slope; the coefficient must stay
	// within the ±10% clamp.
	series := []float64{1.0, 1.0, 1.0, 10.0}
	stats := AnalyzePriceSeries(series, 90, 0)

	assert.Equal(t, TrendClamp, stats.TrendCoefficient)
	assert.Equal(t, model.TrendRising, stats.TrendDirection)
}

func TestTrendDirections(t *testing.T) {
	rising := AnalyzePriceSeries([]float64{1.00, 1.05, 1.10, 1.15}, 90, 0)
	assert.Equal(t, model.TrendRising, rising.TrendDirection)
	assert.Greater(t, rising.TrendCoefficient, 0.0)

	falling := AnalyzePriceSeries([]float64{1.15, 1.10, 1.05, 1.00}, 90, 0)
	assert.Equal(t, model.TrendFalling, falling.TrendDirection)
	assert.Less(t, falling.TrendCoefficient, 0.0)

	stable := AnalyzePriceSeries([]float64{1.20, 1.20, 1.20, 1.20}, 90, 0)
	assert.Equal(t, model.TrendStable, stable.TrendDirection)
	assert.InDelta(t, 0, stable.TrendCoefficient, 1e-9)
}

func TestPercentilesNearestRank(t *testing.T) {
	// floor(n*q) indexing on the sorted series: n=4 → p25 at index 1,
	// p50 at index 2, p75 at index 3.
	series := []float64{4, 1, 3, 2}
	stats := AnalyzePriceSeries(series, 90, 0)

	assert.Equal(t, 2.0, stats.Percentiles.P25)
	assert.Equal(t, 3.0, stats.Percentiles.P50)
	assert.Equal(t, 4.0, stats.Percentiles.P75)
	assert.Equal(t, 1.0, stats.MinPricePerKm)
	assert.Equal(t, 4.0, stats.MaxPricePerKm)
}

func TestVolatilityIsStdDevOverMean(t *testing.T) {
	series := []float64{1.0, 1.4}
	stats := AnalyzePriceSeries(series, 90, 0)

	require.Equal(t, 1.2, stats.AvgPricePerKm)
	assert.InDelta(t, 0.2, stats.StdDev, 1e-9)
	assert.InDelta(t, 0.2/1.2, stats.Volatility, 1e-9)
}

func TestPercentileSortLeavesInputIntact(t *testing.T) {
	series := []float64{3, 1, 2}
	AnalyzePriceSeries(series, 90, 0)
	assert.Equal(t, []float64{3, 1, 2}, series)
}
