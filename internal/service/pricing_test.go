package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lauraedgell33/freightmatch/internal/model"
	"github.com/lauraedgell33/freightmatch/pkg/cache"
)

// ─── Fakes ──────────────────────────────────────────────────

type fakeHistoryStore struct {
	series       []float64
	seriesErr    error
	fallback     float64
	fallbackOK   bool
	seriesCalls  int
	lastRoute    RouteKey
}

func (f *fakeHistoryStore) PriceSeries(_ context.Context, route RouteKey, _ int) ([]float64, error) {
	f.seriesCalls++
	f.lastRoute = route
	return f.series, f.seriesErr
}

func (f *fakeHistoryStore) FallbackRate(context.Context, RouteKey) (float64, bool, error) {
	return f.fallback, f.fallbackOK, nil
}

type fakeMarketStore struct {
	demand, supply int
	err            error
}

func (f *fakeMarketStore) DemandSupplyCounts(context.Context, RouteKey, int) (int, int, error) {
	return f.demand, f.supply, f.err
}

type fakeRuleStore struct {
	rules []model.PricingRule
	err   error
}

func (f *fakeRuleStore) ActiveRules(context.Context, RuleScope) ([]model.PricingRule, error) {
	return f.rules, f.err
}

type fakeQuoteStore struct {
	saved []*model.DynamicPriceQuote
	err   error
}

func (f *fakeQuoteStore) SaveQuote(_ context.Context, q *model.DynamicPriceQuote) error {
	f.saved = append(f.saved, q)
	return f.err
}

// ─── Fixtures ───────────────────────────────────────────────

// steadySeries alternates 1.15/1.25: mean 1.20, population std-dev 0.05.
func steadySeries(n int) []float64 {
	series := make([]float64, n)
	for i := range series {
		if i%2 == 0 {
			series[i] = 1.15
		} else {
			series[i] = 1.25
		}
	}
	return series
}

func newTestPricingService(h PriceHistoryStore, m MarketActivityStore, r RuleStore, q QuoteStore) *PricingService {
	svc := NewPricingService(h, m, r, q, cache.NewMemory(), 90, 30*time.Minute, 7, 6*time.Hour)
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	svc.newID = func() string { return "quote-test-id" }
	return svc
}

func quoteRequest() QuoteRequest {
	return QuoteRequest{
		OriginCountry: "DE", DestCountry: "FR",
		VehicleType: "standard_truck",
		DistanceKm:  900, WeightKg: 18000,
	}
}

// ─── Tests ──────────────────────────────────────────────────

func TestQuoteRequiresRoute(t *testing.T) {
	svc := newTestPricingService(&fakeHistoryStore{}, &fakeMarketStore{}, &fakeRuleStore{}, &fakeQuoteStore{})

	_, err := svc.Quote(context.Background(), QuoteRequest{DestCountry: "FR"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Quote(context.Background(), QuoteRequest{OriginCountry: "DE"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// Healthy route with 20 samples around 1.20 EUR/km, balanced market, and
// a minimum rule below the price: the quote lands near the market average
// with high confidence and no rule impacts.
func TestQuoteSteadyMarket(t *testing.T) {
	history := &fakeHistoryStore{series: steadySeries(20)}
	market := &fakeMarketStore{demand: 6, supply: 6}
	rules := &fakeRuleStore{rules: []model.PricingRule{
		{ID: 1, Name: "contract floor", RuleType: model.RuleMinimum, Value: 1.15, IsActive: true},
	}}
	quotes := &fakeQuoteStore{}
	svc := newTestPricingService(history, market, rules, quotes)

	q, err := svc.Quote(context.Background(), quoteRequest())
	require.NoError(t, err)

	assert.InDelta(t, 1.20, q.PricePerKm, 0.03)
	assert.Empty(t, q.AppliedRules, "a non-binding minimum leaves no impact entry")
	assert.Equal(t, "high", q.Confidence.Level)
	assert.Equal(t, "market_aligned", q.MarketComparison.Assessment)
	assert.Equal(t, 20, q.Stats.SampleSize)

	require.NotNil(t, q.TotalPrice)
	assert.InDelta(t, q.PricePerKm*900, *q.TotalPrice, 5.0, "18 t load carries no weight surcharge")

	assert.Less(t, q.Range.Low, q.PricePerKm)
	assert.Greater(t, q.Range.High, q.PricePerKm)

	assert.Equal(t, "quote-test-id", q.ID)
	assert.Equal(t, 6*time.Hour, q.ValidUntil.Sub(q.ValidFrom))
	require.Len(t, quotes.saved, 1)
	assert.Equal(t, q, quotes.saved[0])
}

func TestQuoteColdStartUsesStaticBaseRate(t *testing.T) {
	svc := newTestPricingService(&fakeHistoryStore{}, &fakeMarketStore{demand: 1, supply: 1}, &fakeRuleStore{}, &fakeQuoteStore{})

	req := quoteRequest()
	req.VehicleType = "refrigerated"
	q, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1.55, q.PricePerKm)
	assert.Equal(t, 0, q.Stats.SampleSize)
	assert.NotEqual(t, "high", q.Confidence.Level, "no samples cannot yield high confidence")
	assert.Equal(t, "no_market_data", q.MarketComparison.Assessment)
}

func TestQuoteColdStartUnknownVehicleType(t *testing.T) {
	svc := newTestPricingService(&fakeHistoryStore{}, &fakeMarketStore{demand: 1, supply: 1}, &fakeRuleStore{}, &fakeQuoteStore{})

	req := quoteRequest()
	req.VehicleType = "hovercraft"
	q, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, defaultBaseRate, q.PricePerKm)
}

func TestQuotePrefersBarometerOverStaticRate(t *testing.T) {
	// No direct samples, but the wider-route aggregate knows a rate.
	history := &fakeHistoryStore{fallback: 1.40, fallbackOK: true}
	svc := newTestPricingService(history, &fakeMarketStore{demand: 1, supply: 1}, &fakeRuleStore{}, &fakeQuoteStore{})

	q, err := svc.Quote(context.Background(), quoteRequest())
	require.NoError(t, err)
	assert.Equal(t, 1.40, q.PricePerKm)
}

func TestQuoteSurvivesCollaboratorOutages(t *testing.T) {
	history := &fakeHistoryStore{seriesErr: errors.New("pg down")}
	market := &fakeMarketStore{err: errors.New("redis down")}
	rules := &fakeRuleStore{err: errors.New("pg down")}
	quotes := &fakeQuoteStore{err: errors.New("pg down")}
	svc := newTestPricingService(history, market, rules, quotes)

	q, err := svc.Quote(context.Background(), quoteRequest())
	require.NoError(t, err, "outages degrade, never fail the quote")

	assert.Equal(t, 1.20, q.PricePerKm, "static standard_truck rate, balanced market assumed")
	assert.Empty(t, q.AppliedRules)
}

func TestQuoteHighDemandRaisesPrice(t *testing.T) {
	balanced := newTestPricingService(&fakeHistoryStore{series: steadySeries(20)}, &fakeMarketStore{demand: 5, supply: 5}, &fakeRuleStore{}, &fakeQuoteStore{})
	squeezed := newTestPricingService(&fakeHistoryStore{series: steadySeries(20)}, &fakeMarketStore{demand: 10, supply: 2}, &fakeRuleStore{}, &fakeQuoteStore{})

	qBalanced, err := balanced.Quote(context.Background(), quoteRequest())
	require.NoError(t, err)
	qSqueezed, err := squeezed.Quote(context.Background(), quoteRequest())
	require.NoError(t, err)

	assert.Greater(t, qSqueezed.PricePerKm, qBalanced.PricePerKm)
	// Ratio 5 saturates the logistic near +35%.
	assert.InDelta(t, qBalanced.PricePerKm*1.35, qSqueezed.PricePerKm, 0.02)
}

func TestQuoteAppliesRulesInPriorityOrder(t *testing.T) {
	history := &fakeHistoryStore{series: steadySeries(20)}
	rules := &fakeRuleStore{rules: []model.PricingRule{
		{ID: 2, Name: "fuel", RuleType: model.RuleFuelSurcharge, Value: 10, Priority: 20, IsActive: true},
		{ID: 1, Name: "hazmat uplift", RuleType: model.RuleSurcharge, Value: 0.30, ValueType: model.ValueAbsolute, Priority: 10, IsActive: true},
	}}
	svc := newTestPricingService(history, &fakeMarketStore{demand: 1, supply: 1}, rules, &fakeQuoteStore{})

	q, err := svc.Quote(context.Background(), quoteRequest())
	require.NoError(t, err)

	require.Len(t, q.AppliedRules, 2)
	assert.Equal(t, int64(1), q.AppliedRules[0].RuleID, "priority 10 applies before priority 20")
	assert.Equal(t, int64(2), q.AppliedRules[1].RuleID)
	// (≈1.20 + 0.30) · 1.10 ≈ 1.65: the fuel surcharge compounds on the uplift.
	assert.InDelta(t, 1.65, q.PricePerKm, 0.03)
}

func TestQuoteConditionGatedRule(t *testing.T) {
	history := &fakeHistoryStore{series: steadySeries(20)}
	rules := &fakeRuleStore{rules: []model.PricingRule{
		{
			ID: 1, Name: "heavy load uplift", RuleType: model.RuleSurcharge,
			Value: 15, ValueType: model.ValuePercentage, IsActive: true,
			Conditions: map[string]model.RuleCondition{"weight_kg": {Min: floatPtr(20000)}},
		},
	}}
	svc := newTestPricingService(history, &fakeMarketStore{demand: 1, supply: 1}, rules, &fakeQuoteStore{})

	light, err := svc.Quote(context.Background(), quoteRequest()) // 18 t
	require.NoError(t, err)
	assert.Empty(t, light.AppliedRules)

	heavyReq := quoteRequest()
	heavyReq.WeightKg = 22000
	heavy, err := svc.Quote(context.Background(), heavyReq)
	require.NoError(t, err)
	require.Len(t, heavy.AppliedRules, 1)
	assert.InDelta(t, light.PricePerKm*1.15, heavy.PricePerKm, 0.03)
}

func TestQuoteWeightSurchargeTiersStack(t *testing.T) {
	assert.Equal(t, 0.0, weightSurcharge(18000, 500))
	// 26 t over 500 km: 6000·0.002·5 + 2000·0.003·5 = 60 + 30.
	assert.InDelta(t, 90.0, weightSurcharge(26000, 500), 1e-9)
	// Continuity at the 24 t boundary.
	assert.InDelta(t, weightSurcharge(23999.9, 500), weightSurcharge(24000.1, 500), 0.02)

	history := &fakeHistoryStore{series: steadySeries(20)}
	svc := newTestPricingService(history, &fakeMarketStore{demand: 1, supply: 1}, &fakeRuleStore{}, &fakeQuoteStore{})

	req := quoteRequest()
	req.WeightKg = 26000
	req.DistanceKm = 500
	q, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, q.TotalPrice)
	assert.InDelta(t, q.PricePerKm*500+90, *q.TotalPrice, 3.0)
}

func TestQuoteStatsAreCached(t *testing.T) {
	history := &fakeHistoryStore{series: steadySeries(20)}
	svc := newTestPricingService(history, &fakeMarketStore{demand: 1, supply: 1}, &fakeRuleStore{}, &fakeQuoteStore{})

	ctx := context.Background()
	_, err := svc.Quote(ctx, quoteRequest())
	require.NoError(t, err)
	_, err = svc.Quote(ctx, quoteRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, history.seriesCalls, "second quote must hit the stats cache")

	// A different route misses the cache.
	other := quoteRequest()
	other.DestCountry = "ES"
	_, err = svc.Quote(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, history.seriesCalls)
}

func TestQuoteConfidenceLevels(t *testing.T) {
	// 20 samples, low volatility: 16 + ~36.7 + 20 ≈ 72.7 → high.
	high := quoteConfidence(model.HistoricalPriceStats{SampleSize: 20, PeriodDays: 90, AvgPricePerKm: 1.20, Volatility: 0.05 / 1.20})
	assert.Equal(t, "high", high.Level)

	// No samples, default volatility: 0 + 28 + 20 = 48 → medium.
	medium := quoteConfidence(model.HistoricalPriceStats{SampleSize: 0, PeriodDays: 90, Volatility: DefaultVolatility})
	assert.Equal(t, "medium", medium.Level)

	// Few samples, wild volatility: 4 + 0 + 20 = 24 → low.
	low := quoteConfidence(model.HistoricalPriceStats{SampleSize: 5, PeriodDays: 90, Volatility: 0.8})
	assert.Equal(t, "low", low.Level)
}

func TestMarketComparisonAssessments(t *testing.T) {
	assert.Equal(t, "market_aligned", marketComparison(1.20, 1.23).Assessment)
	assert.Equal(t, "above_market", marketComparison(1.20, 1.40).Assessment)
	assert.Equal(t, "below_market", marketComparison(1.20, 1.00).Assessment)
	assert.Equal(t, "no_market_data", marketComparison(0, 1.20).Assessment)

	cmp := marketComparison(1.00, 1.10)
	assert.InDelta(t, 10.0, cmp.DeviationPct, 1e-9)
}
