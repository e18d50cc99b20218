package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lauraedgell33/freightmatch/internal/service"
)

// PriceHistoryRepository reads completed-order price observations and
// live demand/supply counts for the pricing pipeline. It backs both the
// price history and market activity store contracts.
type PriceHistoryRepository struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewPriceHistoryRepository creates a new price history repository.
func NewPriceHistoryRepository(pool *pgxpool.Pool, rdb *redis.Client) *PriceHistoryRepository {
	return &PriceHistoryRepository{pool: pool, redis: rdb}
}

// ─── Historical prices ──────────────────────────────────────

// PriceSeries returns per-km prices of completed orders on a route,
// oldest first, within the trailing window. An empty vehicle type widens
// the query to all types.
func (r *PriceHistoryRepository) PriceSeries(ctx context.Context, route service.RouteKey, windowDays int) ([]float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT total_price / distance_km
		FROM orders
		WHERE status = 'completed'
		  AND origin_country = $1
		  AND dest_country = $2
		  AND ($3 = '' OR vehicle_type = $3)
		  AND distance_km > 0
		  AND completed_at >= NOW() - make_interval(days => $4)
		ORDER BY completed_at ASC
	`, route.OriginCountry, route.DestCountry, route.VehicleType, windowDays)
	if err != nil {
		return nil, fmt.Errorf("price series %s→%s: %w", route.OriginCountry, route.DestCountry, err)
	}
	defer rows.Close()

	var series []float64
	for rows.Next() {
		var perKm float64
		if err := rows.Scan(&perKm); err != nil {
			return nil, fmt.Errorf("price series: scan: %w", err)
		}
		series = append(series, perKm)
	}
	return series, rows.Err()
}

// FallbackRate is the route barometer: the average per-km price over the
// same origin/destination pair across ALL vehicle types in the last
// year. It gives a quoted route with no type-specific history something
// better than the static table. ok is false when even the widened query
// finds nothing.
func (r *PriceHistoryRepository) FallbackRate(ctx context.Context, route service.RouteKey) (float64, bool, error) {
	var avg *float64
	err := r.pool.QueryRow(ctx, `
		SELECT AVG(total_price / distance_km)
		FROM orders
		WHERE status = 'completed'
		  AND origin_country = $1
		  AND dest_country = $2
		  AND distance_km > 0
		  AND completed_at >= NOW() - INTERVAL '365 days'
	`, route.OriginCountry, route.DestCountry).Scan(&avg)
	if err != nil {
		return 0, false, fmt.Errorf("fallback rate %s→%s: %w", route.OriginCountry, route.DestCountry, err)
	}
	if avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}

// ─── Demand / supply counts ─────────────────────────────────

const (
	marketDemandKeyPrefix = "market:demand:"
	marketSupplyKeyPrefix = "market:supply:"
	marketCountsTTL       = 30 * time.Second // short TTL keeps elasticity responsive
)

func routeCountsKey(route service.RouteKey) string {
	return fmt.Sprintf("%s:%s:%s", route.OriginCountry, route.DestCountry, route.VehicleType)
}

// DemandSupplyCounts returns open freight requests (demand) and
// available vehicles heading to the destination (supply) for a route.
//
// Strategy, same shape as every hot read here:
//  1. Redis fast path, sub-millisecond.
//  2. On miss, one Postgres round trip, then cache both counts briefly.
func (r *PriceHistoryRepository) DemandSupplyCounts(ctx context.Context, route service.RouteKey, windowDays int) (demand, supply int, err error) {
	key := routeCountsKey(route)
	demandKey := marketDemandKeyPrefix + key
	supplyKey := marketSupplyKeyPrefix + key

	demandVal, errD := r.redis.Get(ctx, demandKey).Int()
	supplyVal, errS := r.redis.Get(ctx, supplyKey).Int()
	if errD == nil && errS == nil {
		return demandVal, supplyVal, nil
	}

	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*)
			 FROM freight_requests
			 WHERE status = 'open'
			   AND origin_country = $1
			   AND dest_country = $2
			   AND ($3 = '' OR vehicle_type = $3)
			   AND created_at >= NOW() - make_interval(days => $4)
			)::int AS demand,
			(SELECT COUNT(*)
			 FROM vehicles
			 WHERE status = 'available'
			   AND (dest_country = '' OR dest_country = $2)
			   AND ($3 = '' OR vehicle_type = $3)
			)::int AS supply
	`, route.OriginCountry, route.DestCountry, route.VehicleType, windowDays).Scan(&demand, &supply)
	if err != nil {
		return 0, 0, fmt.Errorf("demand/supply %s→%s: %w", route.OriginCountry, route.DestCountry, err)
	}

	// Fire-and-forget cache writes; a miss next time just re-queries.
	_ = r.redis.Set(ctx, demandKey, demand, marketCountsTTL).Err()
	_ = r.redis.Set(ctx, supplyKey, supply, marketCountsTTL).Err()
	return demand, supply, nil
}

// InvalidateMarketCounts clears the cached counts for a route. Called
// when a request is created or a vehicle changes status, so the next
// quote sees fresh numbers.
func (r *PriceHistoryRepository) InvalidateMarketCounts(ctx context.Context, route service.RouteKey) {
	key := routeCountsKey(route)
	_ = r.redis.Del(ctx, marketDemandKeyPrefix+key).Err()
	_ = r.redis.Del(ctx, marketSupplyKeyPrefix+key).Err()
}
