package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// InvoiceRepository implements invoice.Repository for PostgreSQL
type InvoiceRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewInvoiceRepository creates a new PostgreSQL invoice repository
func NewInvoiceRepository(logger *slog.Logger, db *persistence.PostgresDB) invoice.Repository {
	return &InvoiceRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *InvoiceRepository) WithTx(tx pgx.Tx) invoice.Repository {
	return &InvoiceRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const invoiceColumns = `id, company_id, customer_id, number, sequence_number,
		total_amount, due_amount, currency, due_date, status`

// GetByID retrieves an invoice by its ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE id = $1
	`

	inv, err := r.scanInvoice(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrInvoiceNotFound{InvoiceID: id}
		}
		r.logger.Error("Failed to get invoice", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return inv, nil
}

// GetByNumber retrieves a company's invoice by its human-readable number
func (r *InvoiceRepository) GetByNumber(ctx context.Context, companyID uuid.UUID, number string) (*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE company_id = $1 AND number = $2
	`

	inv, err := r.scanInvoice(r.querier.QueryRow(ctx, query, companyID, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrInvoiceNotFound{InvoiceID: uuid.Nil}
		}
		r.logger.Error("Failed to get invoice by number",
			"company_id", companyID.String(), "number", number, "error", err)
		return nil, fmt.Errorf("failed to get invoice by number: %w", err)
	}

	return inv, nil
}

// ListOpenCandidates returns open and partially paid invoices inside the
// filter's date window whose due amount is within the relative tolerance of
// the transaction amount. This is the scorer's candidate pool.
func (r *InvoiceRepository) ListOpenCandidates(ctx context.Context, companyID uuid.UUID, filter invoice.CandidateFilter) ([]*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE company_id = $1
			AND status IN ('OPEN', 'PARTIALLY_PAID')
			AND due_date BETWEEN $2 AND $3
			AND due_amount > 0
			AND ABS($4 - due_amount) <= due_amount * $5
		ORDER BY due_date ASC
		LIMIT $6
	`

	rows, err := r.querier.Query(ctx, query,
		companyID,
		filter.DateFrom,
		filter.DateTo,
		filter.Amount,
		filter.AmountTolerance,
		filter.Limit,
	)
	if err != nil {
		r.logger.Error("Failed to list candidate invoices", "company_id", companyID.String(), "error", err)
		return nil, fmt.Errorf("failed to list candidate invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*invoice.Invoice
	for rows.Next() {
		inv, err := r.scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over invoices: %w", err)
	}

	return invoices, nil
}

// LockForPosting takes a row lock on the invoice inside the posting
// transaction, serializing competing settlements
func (r *InvoiceRepository) LockForPosting(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE id = $1
		FOR UPDATE
	`

	inv, err := r.scanInvoice(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrInvoiceNotFound{InvoiceID: id}
		}
		r.logger.Error("Failed to lock invoice for posting", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock invoice for posting: %w", err)
	}

	return inv, nil
}

// ApplyPayment persists the due-amount decrement and derived status
func (r *InvoiceRepository) ApplyPayment(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		UPDATE invoices
		SET due_amount = $1, status = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, inv.DueAmount, inv.Status, inv.ID)
	if err != nil {
		r.logger.Error("Failed to apply payment to invoice", "id", inv.ID.String(), "error", err)
		return fmt.Errorf("failed to apply payment to invoice: %w", err)
	}
	if result.RowsAffected() == 0 {
		return invoice.ErrInvoiceNotFound{InvoiceID: inv.ID}
	}

	return nil
}

func (r *InvoiceRepository) scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.CompanyID,
		&inv.CustomerID,
		&inv.Number,
		&inv.SequenceNumber,
		&inv.TotalAmount,
		&inv.DueAmount,
		&inv.Currency,
		&inv.DueDate,
		&inv.Status,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
