package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/customer"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// CustomerRepository implements customer.Repository for PostgreSQL. The
// matching core only ever reads customers.
type CustomerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewCustomerRepository creates a new PostgreSQL customer repository
func NewCustomerRepository(logger *slog.Logger, db *persistence.PostgresDB) customer.Repository {
	return &CustomerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// GetByID retrieves a customer by its ID
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	query := `
		SELECT id, company_id, display_name
		FROM customers
		WHERE id = $1
	`

	var c customer.Customer
	err := r.querier.QueryRow(ctx, query, id).Scan(&c.ID, &c.CompanyID, &c.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrCustomerNotFound{CustomerID: id}
		}
		r.logger.Error("Failed to get customer", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &c, nil
}

// GetByIDs batch-loads customers for the scorer's name signal. Missing ids
// are simply absent from the result map.
func (r *CustomerRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*customer.Customer, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*customer.Customer{}, nil
	}

	query := `
		SELECT id, company_id, display_name
		FROM customers
		WHERE id = ANY($1)
	`

	rows, err := r.querier.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error("Failed to batch-load customers", "count", len(ids), "error", err)
		return nil, fmt.Errorf("failed to batch-load customers: %w", err)
	}
	defer rows.Close()

	customers := make(map[uuid.UUID]*customer.Customer, len(ids))
	for rows.Next() {
		var c customer.Customer
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers[c.ID] = &c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over customers: %w", err)
	}

	return customers, nil
}
