package service

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"github.com/lauraedgell33/freightmatch/internal/model"
	"github.com/lauraedgell33/freightmatch/pkg/cache"
)

// ─── Weight learning ────────────────────────────────────────
//
// Scoring weights are learned from feedback: for each core factor, the
// gap between its average score on accepted matches and its average on
// rejected ones measures how well that factor discriminates. Factors that
// separate accepted from rejected matches earn more weight.

const (
	// weightsCacheKey holds the current weight vector (JSON).
	weightsCacheKey = "matching:weights:current"

	// minFactorDiff floors each accepted-minus-rejected difference so no
	// learned weight can go non-positive.
	minFactorDiff = 0.01
)

// FeedbackAggregates is the grouped factor-score summary the learner
// consumes: per-factor averages over accepted and rejected matches.
type FeedbackAggregates struct {
	AcceptedCount int                `json:"accepted_count"`
	RejectedCount int                `json:"rejected_count"`
	AcceptedAvg   model.FactorScores `json:"accepted_avg"`
	RejectedAvg   model.FactorScores `json:"rejected_avg"`
}

// FeedbackStatsStore reads accepted/rejected factor aggregates from the
// match-result store.
type FeedbackStatsStore interface {
	FactorAggregates(ctx context.Context) (FeedbackAggregates, error)
}

// WeightLearner derives scoring weights from historical feedback,
// caching the result with a TTL and recomputing on explicit
// recalibration. All state lives in the cache; the learner itself is
// safe for concurrent use.
type WeightLearner struct {
	store       FeedbackStatsStore
	cache       cache.Cache
	ttl         time.Duration
	minAccepted int
}

// NewWeightLearner creates a learner. minAccepted is the cold-start
// threshold below which the hand-tuned defaults are used.
func NewWeightLearner(store FeedbackStatsStore, c cache.Cache, ttl time.Duration, minAccepted int) *WeightLearner {
	return &WeightLearner{
		store:       store,
		cache:       c,
		ttl:         ttl,
		minAccepted: minAccepted,
	}
}

// CurrentWeights returns the weight vector to score with: the cached
// learned vector when fresh, otherwise a newly derived one. Any
// collaborator failure degrades to the defaults — matching never fails
// because the learner couldn't reach its data.
func (l *WeightLearner) CurrentWeights(ctx context.Context) model.WeightVector {
	if raw, ok, err := l.cache.Get(ctx, weightsCacheKey); err == nil && ok {
		var w model.WeightVector
		if err := json.Unmarshal(raw, &w); err == nil && w.Valid() {
			return w
		}
	} else if err != nil {
		log.Printf("[weights] cache read failed: %v — recomputing", err)
	}

	w, err := l.derive(ctx)
	if err != nil {
		log.Printf("[weights] WARNING: aggregate query failed: %v — using defaults", err)
		return model.DefaultWeights()
	}
	l.publish(ctx, w)
	return w
}

// Recalibrate invalidates the cached vector and recomputes it. Called
// by MatchingService roughly every 50 feedback events; the trigger is
// best-effort under concurrent writers (at-least-once, never missed
// forever thanks to the cache TTL).
func (l *WeightLearner) Recalibrate(ctx context.Context) (model.WeightVector, error) {
	if err := l.cache.Invalidate(ctx, weightsCacheKey); err != nil {
		log.Printf("[weights] cache invalidate failed: %v", err)
	}
	w, err := l.derive(ctx)
	if err != nil {
		return model.DefaultWeights(), err
	}
	l.publish(ctx, w)
	log.Printf("[weights] recalibrated: %v", w)
	return w, nil
}

// publish swaps the cached vector wholesale. Readers concurrent with a
// recalibration observe either the old or the new complete vector, never
// a partial update.
func (l *WeightLearner) publish(ctx context.Context, w model.WeightVector) {
	raw, err := json.Marshal(w)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, weightsCacheKey, raw, l.ttl); err != nil {
		log.Printf("[weights] cache write failed: %v", err)
	}
}

// derive computes the learned vector, falling back to the defaults when
// the feedback base is too thin to trust:
//
//   - fewer accepted matches than the cold-start threshold, or
//   - no rejected matches at all — a single-sided accepted population
//     cannot estimate discriminative weight.
func (l *WeightLearner) derive(ctx context.Context) (model.WeightVector, error) {
	agg, err := l.store.FactorAggregates(ctx)
	if err != nil {
		return nil, err
	}

	if agg.AcceptedCount < l.minAccepted || agg.RejectedCount == 0 {
		return model.DefaultWeights(), nil
	}

	diffs := make(map[model.Factor]float64, len(model.CoreFactors))
	var diffSum float64
	for _, f := range model.CoreFactors {
		d := math.Max(agg.AcceptedAvg[f]-agg.RejectedAvg[f], minFactorDiff)
		diffs[f] = d
		diffSum += d
	}
	if diffSum <= 0 {
		return model.DefaultWeights(), nil
	}

	w := make(model.WeightVector, len(model.AllFactors))
	for _, f := range model.CoreFactors {
		w[f] = diffs[f] / diffSum * model.CoreWeightMass
	}
	w[model.FactorRouteCompat] = model.RouteCompatWeight
	w[model.FactorHistory] = model.HistoryWeight
	return w, nil
}
