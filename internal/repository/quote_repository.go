package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lauraedgell33/freightmatch/internal/model"
)

// QuoteRepository persists write-once quote audit records. There is no
// update path: re-quoting a route inserts a new row.
type QuoteRepository struct {
	pool *pgxpool.Pool
}

// NewQuoteRepository creates a new quote repository.
func NewQuoteRepository(pool *pgxpool.Pool) *QuoteRepository {
	return &QuoteRepository{pool: pool}
}

// SaveQuote inserts the audit record. The structured parts (confidence,
// market comparison, applied rules, stats) go in as JSONB so the audit
// trail survives schema drift in the engine internals.
func (r *QuoteRepository) SaveQuote(ctx context.Context, quote *model.DynamicPriceQuote) error {
	confidence, err := json.Marshal(quote.Confidence)
	if err != nil {
		return fmt.Errorf("save quote: marshal confidence: %w", err)
	}
	comparison, err := json.Marshal(quote.MarketComparison)
	if err != nil {
		return fmt.Errorf("save quote: marshal comparison: %w", err)
	}
	appliedRules, err := json.Marshal(quote.AppliedRules)
	if err != nil {
		return fmt.Errorf("save quote: marshal applied rules: %w", err)
	}
	stats, err := json.Marshal(quote.Stats)
	if err != nil {
		return fmt.Errorf("save quote: marshal stats: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO price_quotes
			(id, origin_country, dest_country, vehicle_type,
			 price_per_km, total_price, range_low, range_high,
			 confidence, market_comparison, applied_rules, stats,
			 valid_from, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, quote.ID, quote.OriginCountry, quote.DestCountry, quote.VehicleType,
		quote.PricePerKm, quote.TotalPrice, quote.Range.Low, quote.Range.High,
		confidence, comparison, appliedRules, stats,
		quote.ValidFrom, quote.ValidUntil, quote.CreatedAt)
	if err != nil {
		return fmt.Errorf("save quote %s: %w", quote.ID, err)
	}
	return nil
}
