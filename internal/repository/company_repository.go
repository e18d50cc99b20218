package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CompanyRepository reads per-company order outcome counts for the
// reliability factor.
type CompanyRepository struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository creates a new company repository.
func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepository {
	return &CompanyRepository{pool: pool}
}

// OrderCounts returns how many of a carrier's orders completed, were
// cancelled, or failed.
func (r *CompanyRepository) OrderCounts(ctx context.Context, companyID int64) (completed, cancelled, failed int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'completed')::int,
		       COUNT(*) FILTER (WHERE status = 'cancelled')::int,
		       COUNT(*) FILTER (WHERE status = 'failed')::int
		FROM orders
		WHERE carrier_company_id = $1
	`, companyID).Scan(&completed, &cancelled, &failed)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("order counts company %d: %w", companyID, err)
	}
	return completed, cancelled, failed, nil
}
