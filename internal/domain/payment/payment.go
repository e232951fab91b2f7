package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSourceKind = errors.New("invalid payment source kind")
	ErrNonPositiveAmount = errors.New("payment amount must be positive")
)

// SourceKind identifies what settled an invoice
type SourceKind string

const (
	SourceBankTransaction SourceKind = "bank_transaction"
	SourcePaymentLink     SourceKind = "payment_link"
	SourceManual          SourceKind = "manual"
)

// Source is the tagged settlement origin. Together with the company it
// forms the posting idempotency key: (company_id, kind, id) is unique, so
// posting the same source twice returns the first payment instead of
// creating a second one.
type Source struct {
	Kind SourceKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

// Valid reports whether the source kind is one the core understands
func (s Source) Valid() bool {
	switch s.Kind {
	case SourceBankTransaction, SourcePaymentLink, SourceManual:
		return s.ID != uuid.Nil
	}
	return false
}

// Payment settles (part of) one invoice from one settlement source
type Payment struct {
	ID           uuid.UUID        `json:"id"`
	CompanyID    uuid.UUID        `json:"company_id"`
	InvoiceID    uuid.UUID        `json:"invoice_id"`
	Amount       decimal.Decimal  `json:"amount"`
	Currency     string           `json:"currency"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
	Source       Source           `json:"source"`
	CreatedAt    time.Time        `json:"created_at"`
}

// New validates and builds a payment
func New(companyID, invoiceID uuid.UUID, amount decimal.Decimal, currency string, source Source) (*Payment, error) {
	if !source.Valid() {
		return nil, ErrInvalidSourceKind
	}
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	return &Payment{
		ID:        uuid.New(),
		CompanyID: companyID,
		InvoiceID: invoiceID,
		Amount:    amount,
		Currency:  currency,
		Source:    source,
		CreatedAt: time.Now(),
	}, nil
}
