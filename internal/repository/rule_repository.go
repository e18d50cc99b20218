package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lauraedgell33/freightmatch/internal/model"
	"github.com/lauraedgell33/freightmatch/internal/service"
)

// RuleRepository stores externally authored pricing rules. Scoping
// columns use '' as the wildcard; conditions are a JSONB document the
// rule engine interprets.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

const ruleColumns = `
	id, name, rule_type, origin_country, dest_country, vehicle_type, cargo_type,
	value, value_type, conditions, priority, is_active, valid_from, valid_until`

// ─── Engine read path ───────────────────────────────────────

// ActiveRules returns the active rules whose scoping columns are
// compatible with the route (exact value or wildcard). Validity windows
// and conditions are evaluated by the rule engine, not here — the query
// only narrows the set.
func (r *RuleRepository) ActiveRules(ctx context.Context, scope service.RuleScope) ([]model.PricingRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE is_active
		  AND origin_country IN ('', $1)
		  AND dest_country IN ('', $2)
		  AND vehicle_type IN ('', $3)
		  AND cargo_type IN ('', $4)
		ORDER BY priority, id
	`, scope.OriginCountry, scope.DestCountry, scope.VehicleType, scope.CargoType)
	if err != nil {
		return nil, fmt.Errorf("active rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// ─── Authoring CRUD ─────────────────────────────────────────

// CreateRule inserts a rule and fills in its id.
func (r *RuleRepository) CreateRule(ctx context.Context, rule *model.PricingRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("create rule: marshal conditions: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO pricing_rules
			(name, rule_type, origin_country, dest_country, vehicle_type, cargo_type,
			 value, value_type, conditions, priority, is_active, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, rule.Name, rule.RuleType, rule.OriginCountry, rule.DestCountry, rule.VehicleType,
		rule.CargoType, rule.Value, rule.ValueType, conditions, rule.Priority,
		rule.IsActive, rule.ValidFrom, rule.ValidUntil).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// GetRule loads one rule by id.
func (r *RuleRepository) GetRule(ctx context.Context, id int64) (*model.PricingRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE id = $1
	`, id)

	rule, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	return rule, nil
}

// ListRules returns every rule, active or not, in application order.
func (r *RuleRepository) ListRules(ctx context.Context) ([]model.PricingRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		ORDER BY priority, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// UpdateRule replaces every mutable column of an existing rule.
func (r *RuleRepository) UpdateRule(ctx context.Context, rule *model.PricingRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("update rule: marshal conditions: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE pricing_rules
		SET name = $2, rule_type = $3, origin_country = $4, dest_country = $5,
		    vehicle_type = $6, cargo_type = $7, value = $8, value_type = $9,
		    conditions = $10, priority = $11, is_active = $12,
		    valid_from = $13, valid_until = $14
		WHERE id = $1
	`, rule.ID, rule.Name, rule.RuleType, rule.OriginCountry, rule.DestCountry,
		rule.VehicleType, rule.CargoType, rule.Value, rule.ValueType, conditions,
		rule.Priority, rule.IsActive, rule.ValidFrom, rule.ValidUntil)
	if err != nil {
		return fmt.Errorf("update rule %d: %w", rule.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update rule %d: no such rule", rule.ID)
	}
	return nil
}

// DeleteRule removes a rule. Quotes already issued keep their applied
// impact records; deletion only stops future applications.
func (r *RuleRepository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete rule %d: no such rule", id)
	}
	return nil
}

// ─── Scan helpers ───────────────────────────────────────────

func scanRule(row pgx.Row) (*model.PricingRule, error) {
	var (
		rule       model.PricingRule
		conditions []byte
		valueType  *string
	)
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.RuleType,
		&rule.OriginCountry, &rule.DestCountry, &rule.VehicleType, &rule.CargoType,
		&rule.Value, &valueType, &conditions, &rule.Priority, &rule.IsActive,
		&rule.ValidFrom, &rule.ValidUntil,
	)
	if err != nil {
		return nil, err
	}
	if valueType != nil {
		rule.ValueType = model.ValueType(*valueType)
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal conditions: %w", err)
		}
	}
	return &rule, nil
}

func collectRules(rows pgx.Rows) ([]model.PricingRule, error) {
	var rules []model.PricingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}
