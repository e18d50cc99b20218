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

type fakeFeedbackStore struct {
	agg   FeedbackAggregates
	err   error
	calls int
}

func (f *fakeFeedbackStore) FactorAggregates(context.Context) (FeedbackAggregates, error) {
	f.calls++
	return f.agg, f.err
}

func uniformAggregates(accepted, rejected int, acceptedAvg, rejectedAvg float64) FeedbackAggregates {
	agg := FeedbackAggregates{
		AcceptedCount: accepted,
		RejectedCount: rejected,
		AcceptedAvg:   make(model.FactorScores),
		RejectedAvg:   make(model.FactorScores),
	}
	for _, f := range model.CoreFactors {
		agg.AcceptedAvg[f] = acceptedAvg
		agg.RejectedAvg[f] = rejectedAvg
	}
	return agg
}

func TestCurrentWeightsColdStart(t *testing.T) {
	store := &fakeFeedbackStore{agg: uniformAggregates(10, 5, 80, 40)}
	l := NewWeightLearner(store, cache.NewMemory(), time.Hour, 30)

	w := l.CurrentWeights(context.Background())
	assert.Equal(t, model.DefaultWeights(), w, "below the accepted threshold the defaults apply")
}

func TestCurrentWeightsNoRejections(t *testing.T) {
	store := &fakeFeedbackStore{agg: uniformAggregates(100, 0, 80, 0)}
	l := NewWeightLearner(store, cache.NewMemory(), time.Hour, 30)

	w := l.CurrentWeights(context.Background())
	assert.Equal(t, model.DefaultWeights(), w, "one-sided feedback cannot estimate weights")
}

func TestCurrentWeightsLearnsFromDiscrimination(t *testing.T) {
	agg := uniformAggregates(100, 50, 60, 50)
	// Distance separates accepted from rejected far more than the rest.
	agg.AcceptedAvg[model.FactorDistance] = 95
	agg.RejectedAvg[model.FactorDistance] = 30

	store := &fakeFeedbackStore{agg: agg}
	l := NewWeightLearner(store, cache.NewMemory(), time.Hour, 30)

	w := l.CurrentWeights(context.Background())
	require.True(t, w.Valid())

	for _, f := range model.CoreFactors {
		if f == model.FactorDistance {
			continue
		}
		assert.Greater(t, w[model.FactorDistance], w[f], "distance should outweigh %s", f)
	}
	assert.Equal(t, model.RouteCompatWeight, w[model.FactorRouteCompat])
	assert.Equal(t, model.HistoryWeight, w[model.FactorHistory])
	assert.InDelta(t, 1.0, w.Sum(), 1e-6)
}

func TestCurrentWeightsFloorsNegativeDifferences(t *testing.T) {
	agg := uniformAggregates(100, 50, 60, 50)
	// Rejected matches scored HIGHER on carbon; the floor keeps its
	// weight positive anyway.
	agg.AcceptedAvg[model.FactorCarbon] = 30
	agg.RejectedAvg[model.FactorCarbon] = 70

	store := &fakeFeedbackStore{agg: agg}
	l := NewWeightLearner(store, cache.NewMemory(), time.Hour, 30)

	w := l.CurrentWeights(context.Background())
	require.True(t, w.Valid())
	assert.Greater(t, w[model.FactorCarbon], 0.0)
	assert.InDelta(t, 1.0, w.Sum(), 1e-6)
}

func TestCurrentWeightsStoreFailureFallsBack(t *testing.T) {
	store := &fakeFeedbackStore{err: errors.New("connection refused")}
	l := NewWeightLearner(store, cache.NewMemory(), time.Hour, 30)

	w := l.CurrentWeights(context.Background())
	assert.Equal(t, model.DefaultWeights(), w)
}

func TestCurrentWeightsCachedUntilTTL(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := &fakeFeedbackStore{agg: uniformAggregates(100, 50, 80, 40)}
	l := NewWeightLearner(store, cache.NewMemoryWithClock(clock), time.Hour, 30)

	ctx := context.Background()
	first := l.CurrentWeights(ctx)
	second := l.CurrentWeights(ctx)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.calls, "second read must come from the cache")

	now = now.Add(2 * time.Hour)
	l.CurrentWeights(ctx)
	assert.Equal(t, 2, store.calls, "expired cache forces a re-derive")
}

func TestRecalibrateInvalidatesCache(t *testing.T) {
	store := &fakeFeedbackStore{agg: uniformAggregates(100, 50, 80, 40)}
	l := NewWeightLearner(store, cache.NewMemory(), time.Hour, 30)

	ctx := context.Background()
	l.CurrentWeights(ctx)
	require.Equal(t, 1, store.calls)

	_, err := l.Recalibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls, "recalibration bypasses the cache")

	l.CurrentWeights(ctx)
	assert.Equal(t, 2, store.calls, "recalibration republishes the cached vector")
}
