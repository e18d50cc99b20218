// Package service contains the matching and dynamic pricing engine for
// the freight marketplace: statistics over historical route prices, the
// pricing rule pipeline, supply/demand elasticity, eight-factor match
// scoring, feedback-driven weight learning, and the two orchestrators
// (MatchingService, PricingService) that tie them together.
package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lauraedgell33/freightmatch/internal/model"
	"github.com/lauraedgell33/freightmatch/pkg/cache"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// overFetchMultiplier over-fetches candidates relative to the
	// requested limit so post-filter ranking has room to work with.
	overFetchMultiplier = 4

	// persistTopK is how many ranked suggestions are persisted per request.
	persistTopK = 10

	// scoreConcurrency bounds parallel candidate scoring. Scoring is
	// CPU-cheap; the bound mostly caps concurrent history lookups.
	scoreConcurrency = 8

	// feedbackCounterKey is the rolling counter of feedback events.
	feedbackCounterKey = "matching:feedback:counter"

	// feedbackWindow is the rolling-day window for the counter.
	feedbackWindow = 24 * time.Hour

)

// AnalyticsAggregatesKey caches the accepted/rejected factor aggregates.
// The feedback stats store writes it; the matching service invalidates it
// whenever new feedback lands.
const AnalyticsAggregatesKey = "matching:analytics:aggregates"

// Feedback actions accepted by RespondToSuggestion.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// ─── Store contracts ────────────────────────────────────────

// CandidateFilter is the explicit predicate object passed to the
// candidate store. The engine never assembles queries itself.
type CandidateFilter struct {
	MinCapacityKg      float64
	VehicleType        string // empty = any
	RequireADR         bool
	RequireTemperature bool
	Limit              int
}

// CandidateStore loads freight requests and queries vehicle candidates.
type CandidateStore interface {
	GetRequest(ctx context.Context, id int64) (*model.FreightRequest, error)
	RecentRequests(ctx context.Context, since time.Time, limit int) ([]model.FreightRequest, error)
	FindCandidates(ctx context.Context, filter CandidateFilter) ([]model.VehicleCandidate, error)
}

// MatchResultStore persists and mutates match suggestions. Upsert is
// keyed by (request, vehicle): re-running matching for the same pair
// updates scores instead of duplicating rows.
type MatchResultStore interface {
	UpsertSuggestion(ctx context.Context, result *model.MatchResult) error
	GetResult(ctx context.Context, id int64) (*model.MatchResult, error)
	SetResponse(ctx context.Context, id int64, status model.MatchStatus, at time.Time, reason string) error
	PairHistory(ctx context.Context, freightCompanyID, vehicleCompanyID int64) (resolved, accepted int, err error)
}

// CompanyStore reads per-company order outcome counts for reliability
// scoring.
type CompanyStore interface {
	OrderCounts(ctx context.Context, companyID int64) (completed, cancelled, failed int, err error)
}

// ─── MatchingService ────────────────────────────────────────

// Match pairs a scored candidate with its breakdown, ranked best-first.
type Match struct {
	Candidate model.VehicleCandidate `json:"candidate"`
	Breakdown model.ScoreBreakdown   `json:"breakdown"`
}

// BatchReport summarizes one freight request from a batch sweep whose
// best match cleared the reporting threshold.
type BatchReport struct {
	RequestID     int64           `json:"request_id"`
	MatchCount    int             `json:"match_count"`
	BestVehicleID int64           `json:"best_vehicle_id"`
	BestTotal     float64         `json:"best_total"`
	BestTier      model.MatchTier `json:"best_tier"`
}

// MatchingService orchestrates candidate filtering, scoring, ranking,
// persistence of top suggestions, and feedback ingestion.
//
// Scoring of independent candidates runs concurrently; the final ranking
// is deterministic (stable sort by descending total, ties broken by
// ascending vehicle id).
type MatchingService struct {
	candidates CandidateStore
	results    MatchResultStore
	companies  CompanyStore
	learner    *WeightLearner
	cache      cache.Cache
	counter    cache.Counter

	recalibrateEvery int
	batchCap         int
	batchThreshold   float64

	now func() time.Time
}

// NewMatchingService wires a matching service.
func NewMatchingService(
	candidates CandidateStore,
	results MatchResultStore,
	companies CompanyStore,
	learner *WeightLearner,
	c cache.Cache,
	counter cache.Counter,
	recalibrateEvery, batchCap int,
	batchThreshold float64,
) *MatchingService {
	return &MatchingService{
		candidates:       candidates,
		results:          results,
		companies:        companies,
		learner:          learner,
		cache:            c,
		counter:          counter,
		recalibrateEvery: recalibrateEvery,
		batchCap:         batchCap,
		batchThreshold:   batchThreshold,
		now:              time.Now,
	}
}

// FindMatches ranks available vehicle candidates against a freight
// request and persists the top suggestions.
//
// Steps:
//  1. FILTER: capacity, availability, equipment (hard constraints),
//     over-fetching limit×4 candidates.
//  2. SCORE: eight-factor weighted score per candidate, concurrently.
//  3. RANK: stable sort by descending total, ties by vehicle id.
//  4. PERSIST: upsert the top 10 as suggested MatchResults.
func (s *MatchingService) FindMatches(ctx context.Context, req *model.FreightRequest, limit int) ([]Match, error) {
	if req == nil || req.WeightKg <= 0 || req.OriginCountry == "" || req.DestCountry == "" {
		return nil, fmt.Errorf("%w: request needs origin country, destination country, and a positive weight", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = persistTopK
	}

	filter := CandidateFilter{
		MinCapacityKg:      req.WeightKg,
		VehicleType:        req.VehicleType,
		RequireADR:         req.Hazardous,
		RequireTemperature: req.TemperatureControlled,
		Limit:              limit * overFetchMultiplier,
	}

	candidates, err := s.candidates.FindCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	log.Printf("[match] request #%d: %d candidates after hard filters", req.ID, len(candidates))
	if len(candidates) == 0 {
		return nil, nil
	}

	weights := s.learner.CurrentWeights(ctx)

	// Score independent candidates concurrently; each slot writes only
	// its own index so no further synchronization is needed.
	matches := make([]Match, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)
	for i := range candidates {
		i := i
		g.Go(func() error {
			cand := candidates[i]
			hist := s.candidateHistory(gctx, req, &cand)
			matches[i] = Match{Candidate: cand, Breakdown: Score(req, &cand, hist, weights)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Breakdown.Total != matches[j].Breakdown.Total {
			return matches[i].Breakdown.Total > matches[j].Breakdown.Total
		}
		return matches[i].Candidate.ID < matches[j].Candidate.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.persistTop(ctx, req, matches)
	return matches, nil
}

// candidateHistory assembles the reliability and pair-history context for
// one candidate. Lookup failures degrade to the cold-start defaults —
// history is enrichment, never a reason to fail the match pass.
func (s *MatchingService) candidateHistory(ctx context.Context, req *model.FreightRequest, cand *model.VehicleCandidate) CandidateHistory {
	var hist CandidateHistory

	completed, cancelled, failed, err := s.companies.OrderCounts(ctx, cand.CompanyID)
	if err != nil {
		log.Printf("[match] WARNING: order counts for company %d: %v — using cold-start defaults", cand.CompanyID, err)
	} else {
		hist.CompletedOrders = completed
		hist.CancelledOrders = cancelled
		hist.FailedOrders = failed
	}

	resolved, accepted, err := s.results.PairHistory(ctx, req.CompanyID, cand.CompanyID)
	if err != nil {
		log.Printf("[match] WARNING: pair history %d↔%d: %v — scoring neutral", req.CompanyID, cand.CompanyID, err)
	} else {
		hist.PairResolved = resolved
		hist.PairAccepted = accepted
	}
	return hist
}

// persistTop upserts the best suggestions. Persistence problems are
// logged, not propagated: the caller still gets the ranked list.
func (s *MatchingService) persistTop(ctx context.Context, req *model.FreightRequest, matches []Match) {
	top := matches
	if len(top) > persistTopK {
		top = top[:persistTopK]
	}
	now := s.now()
	for i := range top {
		result := &model.MatchResult{
			RequestID:        req.ID,
			VehicleID:        top[i].Candidate.ID,
			FreightCompanyID: req.CompanyID,
			VehicleCompanyID: top[i].Candidate.CompanyID,
			Breakdown:        top[i].Breakdown,
			Status:           model.MatchSuggested,
			SuggestedAt:      now,
		}
		if err := s.results.UpsertSuggestion(ctx, result); err != nil {
			log.Printf("[match] WARNING: persist suggestion request=%d vehicle=%d: %v", req.ID, top[i].Candidate.ID, err)
		}
	}
}

// FindMatchesByID loads the request and runs FindMatches.
func (s *MatchingService) FindMatchesByID(ctx context.Context, requestID int64, limit int) ([]Match, error) {
	req, err := s.candidates.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: freight request %d", ErrNotFound, requestID)
	}
	return s.FindMatches(ctx, req, limit)
}

// ─── Feedback ───────────────────────────────────────────────

// RespondToSuggestion records an accept or reject decision on a
// suggested match. The transition happens exactly once: feedback against
// an already-resolved result returns ErrInvalidState and mutates nothing.
//
// Every 50th feedback event within a rolling day triggers a weight
// recalibration. Concurrent submissions may race on the trigger — the
// semantics are at-least-once, which is acceptable for a periodic
// retrain heuristic.
func (s *MatchingService) RespondToSuggestion(ctx context.Context, matchID int64, action, reason string) error {
	var status model.MatchStatus
	switch action {
	case ActionAccept:
		status = model.MatchAccepted
	case ActionReject:
		status = model.MatchRejected
	default:
		return fmt.Errorf("%w: action must be %q or %q", ErrInvalidInput, ActionAccept, ActionReject)
	}

	result, err := s.results.GetResult(ctx, matchID)
	if err != nil {
		return fmt.Errorf("%w: match result %d", ErrNotFound, matchID)
	}
	if result.Status != model.MatchSuggested {
		return fmt.Errorf("%w: already %s", ErrInvalidState, result.Status)
	}

	if status != model.MatchRejected {
		reason = "" // reasons accompany rejections only
	}
	if err := s.results.SetResponse(ctx, matchID, status, s.now(), reason); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	log.Printf("[match] result #%d → %s", matchID, status)

	if err := s.cache.Invalidate(ctx, AnalyticsAggregatesKey); err != nil {
		log.Printf("[match] analytics cache invalidate failed: %v", err)
	}

	n, err := s.counter.Increment(ctx, feedbackCounterKey, feedbackWindow)
	if err != nil {
		log.Printf("[match] feedback counter failed: %v", err)
		return nil
	}
	if s.recalibrateEvery > 0 && n%int64(s.recalibrateEvery) == 0 {
		log.Printf("[match] feedback event %d — triggering weight recalibration", n)
		if _, err := s.learner.Recalibrate(ctx); err != nil {
			log.Printf("[match] WARNING: recalibration failed: %v", err)
		}
	}
	return nil
}

// ─── Batch sweep ────────────────────────────────────────────

// BatchMatch runs FindMatches over every freight request created within
// the trailing window (capped) and reports those whose best match clears
// the threshold. A coarse monitoring sweep, not a transactional
// guarantee: individual request failures are logged and skipped.
func (s *MatchingService) BatchMatch(ctx context.Context, hoursBack, limitPerFreight int) ([]BatchReport, error) {
	since := s.now().Add(-time.Duration(hoursBack) * time.Hour)
	requests, err := s.candidates.RecentRequests(ctx, since, s.batchCap)
	if err != nil {
		return nil, fmt.Errorf("recent requests: %w", err)
	}

	var (
		mu      sync.Mutex
		reports []BatchReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)
	for i := range requests {
		req := requests[i]
		g.Go(func() error {
			matches, err := s.FindMatches(gctx, &req, limitPerFreight)
			if err != nil {
				log.Printf("[match] batch: request #%d skipped: %v", req.ID, err)
				return nil
			}
			if len(matches) == 0 || matches[0].Breakdown.Total < s.batchThreshold {
				return nil
			}
			mu.Lock()
			reports = append(reports, BatchReport{
				RequestID:     req.ID,
				MatchCount:    len(matches),
				BestVehicleID: matches[0].Candidate.ID,
				BestTotal:     matches[0].Breakdown.Total,
				BestTier:      matches[0].Breakdown.Tier,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].RequestID < reports[j].RequestID })
	log.Printf("[match] batch sweep: %d/%d requests above threshold %.0f", len(reports), len(requests), s.batchThreshold)
	return reports, nil
}
