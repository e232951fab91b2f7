package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status defines invoice settlement states as seen by the matching core
type Status string

const (
	StatusOpen          Status = "OPEN"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusCancelled     Status = "CANCELLED"
)

// Invoice is the matching core's read model of an invoice. The core never
// owns invoice lifecycle; due-amount and status updates flow exclusively
// through the posting service.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	CompanyID      uuid.UUID       `json:"company_id"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	Number         string          `json:"number"`
	SequenceNumber int64           `json:"sequence_number"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DueAmount      decimal.Decimal `json:"due_amount"`
	Currency       string          `json:"currency"`
	DueDate        time.Time       `json:"due_date"`
	Status         Status          `json:"status"`
}

// Open reports whether the invoice can still receive allocations
func (i *Invoice) Open() bool {
	return i.Status == StatusOpen || i.Status == StatusPartiallyPaid
}

// RevertPayment restores the due amount after a downstream payment
// reversal and derives the resulting status
func (i *Invoice) RevertPayment(amount decimal.Decimal) {
	i.DueAmount = i.DueAmount.Add(amount)
	if i.DueAmount.GreaterThanOrEqual(i.TotalAmount) {
		i.DueAmount = i.TotalAmount
		i.Status = StatusOpen
		return
	}
	i.Status = StatusPartiallyPaid
}

// ApplyPayment reduces the due amount and derives the resulting status
func (i *Invoice) ApplyPayment(amount decimal.Decimal) {
	i.DueAmount = i.DueAmount.Sub(amount)
	if i.DueAmount.Sign() <= 0 {
		i.DueAmount = decimal.Zero
		i.Status = StatusPaid
		return
	}
	i.Status = StatusPartiallyPaid
}
