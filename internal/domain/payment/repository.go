package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines payment persistence operations
type Repository interface {
	// Create inserts a payment. A uniqueness violation on the
	// (company_id, source kind, source id) key surfaces as
	// ErrDuplicatePayment; callers resolve it with GetBySource.
	Create(ctx context.Context, p *Payment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetBySource(ctx context.Context, companyID uuid.UUID, source Source) (*Payment, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrPaymentNotFound indicates a missing payment
type ErrPaymentNotFound struct {
	PaymentID uuid.UUID
}

func (e ErrPaymentNotFound) Error() string {
	return "payment not found: " + e.PaymentID.String()
}

// ErrDuplicatePayment indicates the idempotency key already has a payment
type ErrDuplicatePayment struct {
	Source Source
}

func (e ErrDuplicatePayment) Error() string {
	return "payment already posted for source " + string(e.Source.Kind) + ":" + e.Source.ID.String()
}
