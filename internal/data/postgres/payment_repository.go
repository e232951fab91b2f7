package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// PaymentRepository implements payment.Repository for PostgreSQL. The
// unique index on (company_id, source_type, source_id) is the posting
// idempotency key.
type PaymentRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewPaymentRepository creates a new PostgreSQL payment repository
func NewPaymentRepository(logger *slog.Logger, db *persistence.PostgresDB) payment.Repository {
	return &PaymentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *PaymentRepository) WithTx(tx pgx.Tx) payment.Repository {
	return &PaymentRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const paymentColumns = `id, company_id, invoice_id, amount, currency, exchange_rate,
		source_type, source_id, created_at`

// Create inserts a payment, mapping an idempotency-key collision to
// ErrDuplicatePayment so the caller can fetch and adopt the winner
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.CompanyID,
		p.InvoiceID,
		p.Amount,
		p.Currency,
		p.ExchangeRate,
		p.Source.Kind,
		p.Source.ID,
		p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.ErrDuplicatePayment{Source: p.Source}
		}
		r.logger.Error("Failed to create payment", "invoice_id", p.InvoiceID.String(), "error", err)
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by its ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = $1
	`

	p, err := r.scanPayment(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound{PaymentID: id}
		}
		r.logger.Error("Failed to get payment", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return p, nil
}

// GetBySource retrieves the payment posted for an idempotency key
func (r *PaymentRepository) GetBySource(ctx context.Context, companyID uuid.UUID, source payment.Source) (*payment.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE company_id = $1 AND source_type = $2 AND source_id = $3
	`

	p, err := r.scanPayment(r.querier.QueryRow(ctx, query, companyID, source.Kind, source.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound{PaymentID: uuid.Nil}
		}
		r.logger.Error("Failed to get payment by source",
			"company_id", companyID.String(),
			"source_type", string(source.Kind),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get payment by source: %w", err)
	}

	return p, nil
}

// ListByInvoice retrieves an invoice's payments, oldest first
func (r *PaymentRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*payment.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.querier.Query(ctx, query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to list payments", "invoice_id", invoiceID.String(), "error", err)
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over payments: %w", err)
	}

	return payments, nil
}

func (r *PaymentRepository) scanPayment(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(
		&p.ID,
		&p.CompanyID,
		&p.InvoiceID,
		&p.Amount,
		&p.Currency,
		&p.ExchangeRate,
		&p.Source.Kind,
		&p.Source.ID,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
