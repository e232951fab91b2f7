// Package settlement turns confirmed reconciliations into money movements:
// the allocator records how a transaction's amount is divided across
// invoices, and the posting service converts those allocations into
// idempotent payments.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
)

// TxRunner runs a function inside one database transaction, rolling back
// on error or panic. Satisfied by persistence.PostgresDB.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Allocation is one requested slice of a transaction's amount
type Allocation struct {
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// ErrInvalidAllocation rejects a split request before anything is written
type ErrInvalidAllocation struct {
	Reason string
}

func (e ErrInvalidAllocation) Error() string {
	return "invalid allocation: " + e.Reason
}

// ErrAllocationExceedsDue indicates one slice is larger than the invoice's
// remaining due amount and overpayment is not enabled
type ErrAllocationExceedsDue struct {
	InvoiceID uuid.UUID
	Allocated decimal.Decimal
	Due       decimal.Decimal
}

func (e ErrAllocationExceedsDue) Error() string {
	return fmt.Sprintf("allocation %s exceeds remaining due %s on invoice %s",
		e.Allocated.String(), e.Due.String(), e.InvoiceID.String())
}

// ErrOverAllocation indicates the slices together exceed the transaction
type ErrOverAllocation struct {
	Allocated decimal.Decimal
	Available decimal.Decimal
}

func (e ErrOverAllocation) Error() string {
	return fmt.Sprintf("allocations total %s exceeds transaction amount %s",
		e.Allocated.String(), e.Available.String())
}

// Allocator validates split requests and records them against the active
// reconciliation. Posted splits are immutable; re-allocating replaces only
// the splits that have not produced a payment yet.
type Allocator struct {
	txRunner    TxRunner
	invoiceRepo invoice.Repository
	reconRepo   reconciliation.Repository
	logger      *slog.Logger
}

func NewAllocator(txRunner TxRunner, invoiceRepo invoice.Repository, reconRepo reconciliation.Repository, logger *slog.Logger) *Allocator {
	return &Allocator{
		txRunner:    txRunner,
		invoiceRepo: invoiceRepo,
		reconRepo:   reconRepo,
		logger:      logger,
	}
}

// Allocate validates the requested slices against the transaction and the
// target invoices, then atomically replaces the reconciliation's unposted
// splits with the new set. Slices covering the transaction amount exactly
// move the reconciliation to matched, anything less to partial; posting
// turns the recorded splits into payments afterwards.
func (a *Allocator) Allocate(ctx context.Context, rec *reconciliation.Reconciliation, tx *banktransaction.Transaction, allocations []Allocation, allowOverpayment bool) ([]*reconciliation.Split, error) {
	if rec.SupersededBy != nil {
		return nil, reconciliation.ErrSuperseded
	}
	if rec.TransactionID != tx.ID {
		return nil, ErrInvalidAllocation{Reason: "reconciliation does not belong to this transaction"}
	}

	total, err := ValidateAllocations(allocations, tx.Amount.Abs())
	if err != nil {
		return nil, err
	}

	splits := make([]*reconciliation.Split, 0, len(allocations))
	for _, alloc := range allocations {
		inv, err := a.invoiceRepo.GetByID(ctx, alloc.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv.CompanyID != tx.CompanyID {
			return nil, ErrInvalidAllocation{Reason: "invoice belongs to a different company"}
		}
		if !inv.Open() {
			return nil, ErrAlreadySettled{InvoiceID: inv.ID}
		}
		if inv.Currency != tx.Currency {
			return nil, ErrCurrencyMismatch{TransactionCurrency: tx.Currency, InvoiceCurrency: inv.Currency}
		}
		if !allowOverpayment && alloc.Amount.GreaterThan(inv.DueAmount) {
			return nil, ErrAllocationExceedsDue{InvoiceID: inv.ID, Allocated: alloc.Amount, Due: inv.DueAmount}
		}
		splits = append(splits, reconciliation.NewSplit(rec.ID, inv.ID, alloc.Amount))
	}

	target := shared.ReconciliationStatusPartial
	if total.Equal(tx.Amount.Abs()) {
		target = shared.ReconciliationStatusMatched
	}

	err = a.txRunner.ExecuteTx(ctx, func(dbTx pgx.Tx) error {
		reconTx := a.reconRepo.WithTx(dbTx)
		if err := reconTx.ReplaceSplits(ctx, rec.ID, splits); err != nil {
			return err
		}
		if rec.Status == target {
			return nil
		}
		if err := rec.Transition(target); err != nil {
			return err
		}
		if target == shared.ReconciliationStatusMatched && rec.MatchedAt == nil {
			now := time.Now()
			rec.MatchedAt = &now
		}
		return reconTx.Update(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("Recorded split allocation",
		"reconciliation_id", rec.ID.String(),
		"transaction_id", tx.ID.String(),
		"splits", len(splits),
		"allocated", total.String(),
		"status", string(rec.Status),
	)
	return splits, nil
}

// ValidateAllocations checks the request shape without touching storage:
// at least one slice, every amount positive, no invoice repeated, and the
// total within the available transaction amount.
func ValidateAllocations(allocations []Allocation, available decimal.Decimal) (decimal.Decimal, error) {
	if len(allocations) == 0 {
		return decimal.Zero, ErrInvalidAllocation{Reason: "at least one allocation is required"}
	}

	seen := make(map[uuid.UUID]struct{}, len(allocations))
	total := decimal.Zero
	for _, alloc := range allocations {
		if alloc.InvoiceID == uuid.Nil {
			return decimal.Zero, ErrInvalidAllocation{Reason: "allocation is missing an invoice id"}
		}
		if !alloc.Amount.IsPositive() {
			return decimal.Zero, ErrInvalidAllocation{Reason: "allocation amount must be positive for invoice " + alloc.InvoiceID.String()}
		}
		if _, dup := seen[alloc.InvoiceID]; dup {
			return decimal.Zero, ErrInvalidAllocation{Reason: "invoice " + alloc.InvoiceID.String() + " appears more than once"}
		}
		seen[alloc.InvoiceID] = struct{}{}
		total = total.Add(alloc.Amount)
	}

	if total.GreaterThan(available) {
		return decimal.Zero, ErrOverAllocation{Allocated: total, Available: available}
	}
	return total, nil
}
