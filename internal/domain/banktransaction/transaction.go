package banktransaction

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
	ErrMissingCompany        = errors.New("company id is required")
	ErrMissingBankAccount    = errors.New("bank account id is required")
	ErrZeroAmount            = errors.New("amount cannot be zero")
)

// Transaction represents one externally sourced bank movement. Rows are
// immutable after ingestion except for the status fields; they are never
// deleted (audit requirement).
type Transaction struct {
	ID                   uuid.UUID                              `json:"id"`
	CompanyID            uuid.UUID                              `json:"company_id"`
	BankAccountID        uuid.UUID                              `json:"bank_account_id"`
	Amount               decimal.Decimal                        `json:"amount"` // signed, positive = credit
	Currency             string                                 `json:"currency"`
	TransactionDate      time.Time                              `json:"transaction_date"`
	BookingDate          time.Time                              `json:"booking_date"`
	ValueDate            *time.Time                             `json:"value_date,omitempty"`
	Description          string                                 `json:"description"`
	CounterpartyName     string                                 `json:"counterparty_name"`
	CounterpartyIBAN     string                                 `json:"counterparty_iban"`
	ExternalID           string                                 `json:"external_id,omitempty"`
	Fingerprint          string                                 `json:"fingerprint"`
	ReconciliationStatus shared.TransactionReconciliationStatus `json:"reconciliation_status"`
	ProcessingStatus     shared.ProcessingStatus                `json:"processing_status"`
	IsDuplicate          bool                                   `json:"is_duplicate"`
	DuplicateOf          *uuid.UUID                             `json:"duplicate_of,omitempty"`
	ImportBatchID        *uuid.UUID                             `json:"import_batch_id,omitempty"`
	CreatedAt            time.Time                              `json:"created_at"`
}

// New validates and builds a transaction from a normalized feed payload,
// computing its fingerprint in the process.
func New(companyID, bankAccountID uuid.UUID, amount decimal.Decimal, currency string, bookingDate, transactionDate time.Time, description, counterpartyName, counterpartyIBAN, externalID string) (*Transaction, error) {
	if companyID == uuid.Nil {
		return nil, ErrMissingCompany
	}
	if bankAccountID == uuid.Nil {
		return nil, ErrMissingBankAccount
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrencyFormat
	}
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}

	tx := &Transaction{
		ID:                   uuid.New(),
		CompanyID:            companyID,
		BankAccountID:        bankAccountID,
		Amount:               amount,
		Currency:             strings.ToUpper(currency),
		TransactionDate:      transactionDate,
		BookingDate:          bookingDate,
		Description:          strings.TrimSpace(description),
		CounterpartyName:     strings.TrimSpace(counterpartyName),
		CounterpartyIBAN:     normalizeIBAN(counterpartyIBAN),
		ExternalID:           strings.TrimSpace(externalID),
		ReconciliationStatus: shared.TransactionUnreconciled,
		ProcessingStatus:     shared.ProcessingStatusPending,
		CreatedAt:            time.Now(),
	}
	tx.Fingerprint = Fingerprint(tx)
	return tx, nil
}

// MarkDuplicate tags the transaction as a re-delivery of an already
// ingested row. Duplicates are persisted for audit but never matched.
func (t *Transaction) MarkDuplicate(originalID uuid.UUID) {
	t.IsDuplicate = true
	t.DuplicateOf = &originalID
	t.ProcessingStatus = shared.ProcessingStatusProcessed
}

// IsCredit reports whether the movement is an incoming payment
func (t *Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}
