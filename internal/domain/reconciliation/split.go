package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Split allocates part of a reconciliation's transaction amount to one
// invoice. The sum of allocated amounts across a reconciliation's splits
// never exceeds the parent transaction's amount; each split corresponds to
// exactly one payment once posted.
type Split struct {
	ID               uuid.UUID       `json:"id"`
	ReconciliationID uuid.UUID       `json:"reconciliation_id"`
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	AllocatedAmount  decimal.Decimal `json:"allocated_amount"`
	PaymentID        *uuid.UUID      `json:"payment_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewSplit builds an unposted split for an allocation
func NewSplit(reconciliationID, invoiceID uuid.UUID, amount decimal.Decimal) *Split {
	return &Split{
		ID:               uuid.New(),
		ReconciliationID: reconciliationID,
		InvoiceID:        invoiceID,
		AllocatedAmount:  amount,
		CreatedAt:        time.Now(),
	}
}

// Posted reports whether a payment has been created for this split
func (s *Split) Posted() bool {
	return s.PaymentID != nil
}
