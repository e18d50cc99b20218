// Package repository provides PostgreSQL access for the matching and
// pricing engine, with Redis-backed fast paths for the hot read spots
// (demand/supply counts, feedback aggregates).
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lauraedgell33/freightmatch/internal/model"
	"github.com/lauraedgell33/freightmatch/internal/service"
	"github.com/lauraedgell33/freightmatch/pkg/cache"
)

// analyticsCacheTTL bounds staleness of the feedback aggregates between
// invalidations.
const analyticsCacheTTL = 5 * time.Minute

// MatchRepository persists freight requests, vehicle candidates, and
// match results. It backs three of the matching service's store
// contracts (candidates, results, feedback aggregates).
type MatchRepository struct {
	pool  *pgxpool.Pool
	cache cache.Cache
}

// NewMatchRepository creates a new match repository.
func NewMatchRepository(pool *pgxpool.Pool, c cache.Cache) *MatchRepository {
	return &MatchRepository{pool: pool, cache: c}
}

// ─── Freight requests ───────────────────────────────────────

const freightRequestColumns = `
	id, company_id, origin_lat, origin_lon, dest_lat, dest_lon,
	origin_country, origin_city, dest_country, dest_city,
	weight_kg, volume_m3, vehicle_type, hazardous, temperature_controlled,
	listed_price, distance_km, loading_date, created_at`

// GetRequest loads one freight request by id.
func (r *MatchRepository) GetRequest(ctx context.Context, id int64) (*model.FreightRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+freightRequestColumns+`
		FROM freight_requests
		WHERE id = $1
	`, id)

	req, err := scanFreightRequest(row)
	if err != nil {
		return nil, fmt.Errorf("get freight request %d: %w", id, err)
	}
	return req, nil
}

// RecentRequests returns open freight requests created after the cutoff,
// newest first, for the batch sweep.
func (r *MatchRepository) RecentRequests(ctx context.Context, since time.Time, limit int) ([]model.FreightRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+freightRequestColumns+`
		FROM freight_requests
		WHERE status = 'open'
		  AND created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent requests: %w", err)
	}
	defer rows.Close()

	var requests []model.FreightRequest
	for rows.Next() {
		req, err := scanFreightRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("recent requests: %w", err)
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

func scanFreightRequest(row pgx.Row) (*model.FreightRequest, error) {
	var (
		req                model.FreightRequest
		oLat, oLon         *float64
		dLat, dLon         *float64
		originCity         *string
		destCity           *string
		vehicleType        *string
	)
	err := row.Scan(
		&req.ID, &req.CompanyID, &oLat, &oLon, &dLat, &dLon,
		&req.OriginCountry, &originCity, &req.DestCountry, &destCity,
		&req.WeightKg, &req.VolumeM3, &vehicleType, &req.Hazardous, &req.TemperatureControlled,
		&req.ListedPrice, &req.DistanceKm, &req.LoadingDate, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if oLat != nil && oLon != nil {
		req.Origin = &model.Location{Lat: *oLat, Lon: *oLon}
	}
	if dLat != nil && dLon != nil {
		req.Destination = &model.Location{Lat: *dLat, Lon: *dLon}
	}
	if originCity != nil {
		req.OriginCity = *originCity
	}
	if destCity != nil {
		req.DestCity = *destCity
	}
	if vehicleType != nil {
		req.VehicleType = *vehicleType
	}
	return &req, nil
}

// ─── Candidate queries ──────────────────────────────────────

// FindCandidates applies the hard constraints in SQL: availability,
// capacity, required equipment, and the optional vehicle-type pin. Soft
// preferences (deadhead distance, timing, price) stay out of the query —
// they are the scoring engine's job.
func (r *MatchRepository) FindCandidates(ctx context.Context, filter service.CandidateFilter) ([]model.VehicleCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.company_id, v.current_lat, v.current_lon,
		       v.capacity_kg, v.capacity_m3, v.vehicle_type, v.emission_class,
		       v.adr_certified, v.temperature_controlled, v.price_per_km,
		       v.available_from, v.dest_country, v.dest_city,
		       COALESCE(c.rating, 0), v.status
		FROM vehicles v
		JOIN companies c ON c.id = v.company_id
		WHERE v.status = 'available'
		  AND v.capacity_kg >= $1
		  AND ($2 = '' OR v.vehicle_type = $2)
		  AND (NOT $3 OR v.adr_certified)
		  AND (NOT $4 OR v.temperature_controlled)
		ORDER BY v.id
		LIMIT $5
	`, filter.MinCapacityKg, filter.VehicleType, filter.RequireADR, filter.RequireTemperature, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.VehicleCandidate
	for rows.Next() {
		var (
			cand          model.VehicleCandidate
			lat, lon      *float64
			emissionClass *string
			destCountry   *string
			destCity      *string
		)
		err := rows.Scan(
			&cand.ID, &cand.CompanyID, &lat, &lon,
			&cand.CapacityKg, &cand.CapacityM3, &cand.VehicleType, &emissionClass,
			&cand.ADRCertified, &cand.TemperatureControlled, &cand.PricePerKm,
			&cand.AvailableFrom, &destCountry, &destCity,
			&cand.CompanyRating, &cand.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("find candidates: scan: %w", err)
		}
		if lat != nil && lon != nil {
			cand.Position = &model.Location{Lat: *lat, Lon: *lon}
		}
		if emissionClass != nil {
			cand.EmissionClass = *emissionClass
		}
		if destCountry != nil {
			cand.DestCountry = *destCountry
		}
		if destCity != nil {
			cand.DestCity = *destCity
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// ─── Match results ──────────────────────────────────────────

// UpsertSuggestion inserts or refreshes a suggestion keyed by
// (request, vehicle). Re-running matching updates the scores of a still
// suggested pair; a pair the shipper already resolved is left untouched,
// so feedback can never be silently overwritten by a re-match.
func (r *MatchRepository) UpsertSuggestion(ctx context.Context, result *model.MatchResult) error {
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return fmt.Errorf("upsert suggestion: marshal breakdown: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO match_results
			(request_id, vehicle_id, freight_company_id, vehicle_company_id,
			 breakdown, status, suggested_at)
		VALUES ($1, $2, $3, $4, $5, 'suggested', $6)
		ON CONFLICT (request_id, vehicle_id) DO UPDATE
		SET breakdown = EXCLUDED.breakdown,
		    suggested_at = EXCLUDED.suggested_at
		WHERE match_results.status = 'suggested'
		RETURNING id
	`, result.RequestID, result.VehicleID, result.FreightCompanyID, result.VehicleCompanyID,
		breakdown, result.SuggestedAt).Scan(&result.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		// The pair was already accepted or rejected; nothing to refresh.
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert suggestion request=%d vehicle=%d: %w", result.RequestID, result.VehicleID, err)
	}
	return nil
}

// GetResult loads one match result by id.
func (r *MatchRepository) GetResult(ctx context.Context, id int64) (*model.MatchResult, error) {
	var (
		result    model.MatchResult
		breakdown []byte
		reason    *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, request_id, vehicle_id, freight_company_id, vehicle_company_id,
		       breakdown, status, suggested_at, responded_at, reject_reason
		FROM match_results
		WHERE id = $1
	`, id).Scan(
		&result.ID, &result.RequestID, &result.VehicleID,
		&result.FreightCompanyID, &result.VehicleCompanyID,
		&breakdown, &result.Status, &result.SuggestedAt, &result.RespondedAt, &reason,
	)
	if err != nil {
		return nil, fmt.Errorf("get match result %d: %w", id, err)
	}
	if err := json.Unmarshal(breakdown, &result.Breakdown); err != nil {
		return nil, fmt.Errorf("get match result %d: unmarshal breakdown: %w", id, err)
	}
	if reason != nil {
		result.RejectReason = *reason
	}
	return &result, nil
}

// SetResponse records the accept/reject transition. The status guard in
// the WHERE clause makes the transition race-safe: two concurrent
// responses cannot both succeed, whatever the service layer saw first.
func (r *MatchRepository) SetResponse(ctx context.Context, id int64, status model.MatchStatus, at time.Time, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE match_results
		SET status = $2, responded_at = $3, reject_reason = NULLIF($4, '')
		WHERE id = $1 AND status = 'suggested'
	`, id, status, at, reason)
	if err != nil {
		return fmt.Errorf("set response %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set response %d: result is no longer suggested", id)
	}
	return nil
}

// PairHistory counts resolved and accepted suggestions between a freight
// company and a vehicle company.
func (r *MatchRepository) PairHistory(ctx context.Context, freightCompanyID, vehicleCompanyID int64) (resolved, accepted int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status IN ('accepted', 'rejected'))::int,
		       COUNT(*) FILTER (WHERE status = 'accepted')::int
		FROM match_results
		WHERE freight_company_id = $1
		  AND vehicle_company_id = $2
	`, freightCompanyID, vehicleCompanyID).Scan(&resolved, &accepted)
	if err != nil {
		return 0, 0, fmt.Errorf("pair history %d/%d: %w", freightCompanyID, vehicleCompanyID, err)
	}
	return resolved, accepted, nil
}

// ─── Feedback aggregates ────────────────────────────────────

// FactorAggregates returns per-factor average scores grouped by feedback
// outcome, for the weight learner.
//
// The aggregation scans every resolved match result, so the result is
// cached; the matching service invalidates the key when feedback lands.
func (r *MatchRepository) FactorAggregates(ctx context.Context) (service.FeedbackAggregates, error) {
	if raw, ok, err := r.cache.Get(ctx, service.AnalyticsAggregatesKey); err == nil && ok {
		var agg service.FeedbackAggregates
		if err := json.Unmarshal(raw, &agg); err == nil {
			return agg, nil
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status,
		       COUNT(*)::int,
		       AVG((breakdown->'factors'->>'distance')::float8),
		       AVG((breakdown->'factors'->>'capacity')::float8),
		       AVG((breakdown->'factors'->>'timing')::float8),
		       AVG((breakdown->'factors'->>'reliability')::float8),
		       AVG((breakdown->'factors'->>'price')::float8),
		       AVG((breakdown->'factors'->>'carbon')::float8)
		FROM match_results
		WHERE status IN ('accepted', 'rejected')
		GROUP BY status
	`)
	if err != nil {
		return service.FeedbackAggregates{}, fmt.Errorf("factor aggregates: %w", err)
	}
	defer rows.Close()

	agg := service.FeedbackAggregates{
		AcceptedAvg: make(model.FactorScores),
		RejectedAvg: make(model.FactorScores),
	}
	for rows.Next() {
		var (
			status model.MatchStatus
			count  int
			avgs   [6]*float64
		)
		err := rows.Scan(&status, &count, &avgs[0], &avgs[1], &avgs[2], &avgs[3], &avgs[4], &avgs[5])
		if err != nil {
			return service.FeedbackAggregates{}, fmt.Errorf("factor aggregates: scan: %w", err)
		}

		scores := make(model.FactorScores, len(model.CoreFactors))
		for i, f := range model.CoreFactors {
			if avgs[i] != nil {
				scores[f] = *avgs[i]
			}
		}
		switch status {
		case model.MatchAccepted:
			agg.AcceptedCount = count
			agg.AcceptedAvg = scores
		case model.MatchRejected:
			agg.RejectedCount = count
			agg.RejectedAvg = scores
		}
	}
	if err := rows.Err(); err != nil {
		return service.FeedbackAggregates{}, fmt.Errorf("factor aggregates: %w", err)
	}

	if raw, err := json.Marshal(agg); err == nil {
		_ = r.cache.Set(ctx, service.AnalyticsAggregatesKey, raw, analyticsCacheTTL)
	}
	return agg, nil
}
