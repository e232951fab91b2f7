package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CandidateFilter bounds the scorer's candidate pool. Invoices outside the
// date window or the relative amount tolerance are excluded from candidacy
// entirely rather than scored zero, keeping the pool small.
type CandidateFilter struct {
	Amount          decimal.Decimal
	AmountTolerance decimal.Decimal // relative, e.g. 0.20
	DateFrom        time.Time
	DateTo          time.Time
	Limit           int
}

// Repository defines the invoice store contract consumed by the core
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByNumber(ctx context.Context, companyID uuid.UUID, number string) (*Invoice, error)

	// ListOpenCandidates returns open and partially paid invoices for the
	// company that pass the candidate filter.
	ListOpenCandidates(ctx context.Context, companyID uuid.UUID, filter CandidateFilter) ([]*Invoice, error)

	// LockForPosting takes a row lock on the invoice inside the posting
	// transaction, serializing competing settlements.
	LockForPosting(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// ApplyPayment persists the due-amount decrement and derived status.
	// Only the posting service calls this.
	ApplyPayment(ctx context.Context, inv *Invoice) error

	WithTx(tx pgx.Tx) Repository
}

// ErrInvoiceNotFound indicates a missing invoice
type ErrInvoiceNotFound struct {
	InvoiceID uuid.UUID
}

func (e ErrInvoiceNotFound) Error() string {
	return "invoice not found: " + e.InvoiceID.String()
}
