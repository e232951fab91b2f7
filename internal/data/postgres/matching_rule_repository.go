package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/matchingrule"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// MatchingRuleRepository implements matchingrule.Repository for PostgreSQL.
// Conditions and actions live in jsonb columns.
type MatchingRuleRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewMatchingRuleRepository creates a new PostgreSQL matching rule repository
func NewMatchingRuleRepository(logger *slog.Logger, db *persistence.PostgresDB) matchingrule.Repository {
	return &MatchingRuleRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *MatchingRuleRepository) WithTx(tx pgx.Tx) matchingrule.Repository {
	return &MatchingRuleRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new matching rule
func (r *MatchingRuleRepository) Create(ctx context.Context, rule *matchingrule.Rule) error {
	conditions, err := rule.MarshalConditions()
	if err != nil {
		return fmt.Errorf("failed to marshal rule conditions: %w", err)
	}
	actions, err := rule.MarshalActions()
	if err != nil {
		return fmt.Errorf("failed to marshal rule actions: %w", err)
	}

	query := `
		INSERT INTO matching_rules (id, company_id, name, priority, active, conditions, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.querier.Exec(ctx, query,
		rule.ID,
		rule.CompanyID,
		rule.Name,
		rule.Priority,
		rule.Active,
		conditions,
		actions,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create matching rule", "rule_id", rule.ID.String(), "error", err)
		return fmt.Errorf("failed to create matching rule: %w", err)
	}

	return nil
}

// GetByID retrieves a matching rule by its ID
func (r *MatchingRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*matchingrule.Rule, error) {
	query := `
		SELECT id, company_id, name, priority, active, conditions, actions, created_at, updated_at
		FROM matching_rules
		WHERE id = $1
	`

	rule, err := r.scanRule(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, matchingrule.ErrRuleNotFound{RuleID: id}
		}
		r.logger.Error("Failed to get matching rule", "rule_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get matching rule: %w", err)
	}

	return rule, nil
}

// ListActive returns a company's active rules sorted ascending by priority,
// the order the rule engine evaluates them in
func (r *MatchingRuleRepository) ListActive(ctx context.Context, companyID uuid.UUID) ([]*matchingrule.Rule, error) {
	query := `
		SELECT id, company_id, name, priority, active, conditions, actions, created_at, updated_at
		FROM matching_rules
		WHERE company_id = $1 AND active = TRUE
		ORDER BY priority ASC, created_at ASC
	`

	return r.queryRules(ctx, query, companyID)
}

// ListByCompany returns all of a company's rules, active or not
func (r *MatchingRuleRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*matchingrule.Rule, error) {
	query := `
		SELECT id, company_id, name, priority, active, conditions, actions, created_at, updated_at
		FROM matching_rules
		WHERE company_id = $1
		ORDER BY priority ASC, created_at ASC
	`

	return r.queryRules(ctx, query, companyID)
}

// Update overwrites a rule's definition
func (r *MatchingRuleRepository) Update(ctx context.Context, rule *matchingrule.Rule) error {
	conditions, err := rule.MarshalConditions()
	if err != nil {
		return fmt.Errorf("failed to marshal rule conditions: %w", err)
	}
	actions, err := rule.MarshalActions()
	if err != nil {
		return fmt.Errorf("failed to marshal rule actions: %w", err)
	}

	query := `
		UPDATE matching_rules
		SET name = $1, priority = $2, active = $3, conditions = $4, actions = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := r.querier.Exec(ctx, query,
		rule.Name,
		rule.Priority,
		rule.Active,
		conditions,
		actions,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update matching rule", "rule_id", rule.ID.String(), "error", err)
		return fmt.Errorf("failed to update matching rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return matchingrule.ErrRuleNotFound{RuleID: rule.ID}
	}

	return nil
}

// Delete removes a rule permanently
func (r *MatchingRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.querier.Exec(ctx, `DELETE FROM matching_rules WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete matching rule", "rule_id", id.String(), "error", err)
		return fmt.Errorf("failed to delete matching rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return matchingrule.ErrRuleNotFound{RuleID: id}
	}

	return nil
}

func (r *MatchingRuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*matchingrule.Rule, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list matching rules", "error", err)
		return nil, fmt.Errorf("failed to list matching rules: %w", err)
	}
	defer rows.Close()

	var rules []*matchingrule.Rule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan matching rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over matching rules: %w", err)
	}

	return rules, nil
}

func (r *MatchingRuleRepository) scanRule(row pgx.Row) (*matchingrule.Rule, error) {
	var (
		rule       matchingrule.Rule
		conditions []byte
		actions    []byte
	)
	err := row.Scan(
		&rule.ID,
		&rule.CompanyID,
		&rule.Name,
		&rule.Priority,
		&rule.Active,
		&conditions,
		&actions,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule conditions: %w", err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule actions: %w", err)
	}
	return &rule, nil
}
