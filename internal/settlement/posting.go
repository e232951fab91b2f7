package settlement

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
)

// ErrAlreadySettled indicates the invoice has no remaining due amount
type ErrAlreadySettled struct {
	InvoiceID uuid.UUID
}

func (e ErrAlreadySettled) Error() string {
	return "invoice already settled: " + e.InvoiceID.String()
}

// ErrCurrencyMismatch indicates transaction and invoice currencies differ
// and no exchange rate is available
type ErrCurrencyMismatch struct {
	TransactionCurrency string
	InvoiceCurrency     string
}

func (e ErrCurrencyMismatch) Error() string {
	return "currency mismatch: transaction " + e.TransactionCurrency + " vs invoice " + e.InvoiceCurrency
}

// PostingService converts a reconciliation's splits into payments. Every
// split posts in its own database transaction under a per-invoice advisory
// lock, so competing settlements of the same invoice serialize and a failed
// split never rolls back its already-posted siblings.
type PostingService struct {
	txRunner    TxRunner
	invoiceRepo invoice.Repository
	paymentRepo payment.Repository
	reconRepo   reconciliation.Repository
	logger      *slog.Logger
}

func NewPostingService(txRunner TxRunner, invoiceRepo invoice.Repository, paymentRepo payment.Repository, reconRepo reconciliation.Repository, logger *slog.Logger) *PostingService {
	return &PostingService{
		txRunner:    txRunner,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		reconRepo:   reconRepo,
		logger:      logger,
	}
}

// PostReconciliation settles every unposted split of the reconciliation.
// A full single-invoice match without recorded splits gets one synthesized
// split covering the whole transaction amount. On success the
// reconciliation advances to matched (fully allocated) or partial; on a
// posting failure it reverts to the manual queue and the error is
// returned with whatever payments did post.
func (s *PostingService) PostReconciliation(ctx context.Context, tx *banktransaction.Transaction, rec *reconciliation.Reconciliation) ([]*payment.Payment, error) {
	logger := s.logger.With("reconciliation_id", rec.ID.String(), "transaction_id", tx.ID.String())

	splits, err := s.reconRepo.GetSplits(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load splits for reconciliation %s: %w", rec.ID.String(), err)
	}

	if len(splits) == 0 {
		if rec.InvoiceID == nil {
			return nil, ErrInvalidAllocation{Reason: "reconciliation has neither splits nor a matched invoice"}
		}
		full := reconciliation.NewSplit(rec.ID, *rec.InvoiceID, tx.Amount.Abs())
		if err := s.reconRepo.ReplaceSplits(ctx, rec.ID, []*reconciliation.Split{full}); err != nil {
			return nil, err
		}
		splits = []*reconciliation.Split{full}
	}

	payments := make([]*payment.Payment, 0, len(splits))
	for _, split := range splits {
		if split.Posted() {
			continue
		}
		p, err := s.postSplit(ctx, tx, split)
		if err != nil {
			logger.Warn("Split posting failed, reverting reconciliation to manual review",
				"split_id", split.ID.String(),
				"invoice_id", split.InvoiceID.String(),
				"error", err,
			)
			s.revertToManual(ctx, rec, logger)
			return payments, err
		}
		payments = append(payments, p)
	}

	if err := s.finalizeStatus(ctx, tx, rec, splits); err != nil {
		return payments, err
	}

	logger.Info("Reconciliation posted", "payments", len(payments), "status", string(rec.Status))
	return payments, nil
}

// postSplit creates the payment for one split and applies it to the
// invoice, all inside a single database transaction guarded by a
// per-invoice advisory lock. A concurrent posting of the same split loses
// the race on the payment idempotency key and adopts the winner's payment.
func (s *PostingService) postSplit(ctx context.Context, tx *banktransaction.Transaction, split *reconciliation.Split) (*payment.Payment, error) {
	var posted *payment.Payment

	err := s.txRunner.ExecuteTx(ctx, func(dbTx pgx.Tx) error {
		if _, err := dbTx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey(split.InvoiceID)); err != nil {
			return fmt.Errorf("failed to take advisory lock on invoice %s: %w", split.InvoiceID.String(), err)
		}

		invoiceTx := s.invoiceRepo.WithTx(dbTx)
		inv, err := invoiceTx.LockForPosting(ctx, split.InvoiceID)
		if err != nil {
			return err
		}
		if !inv.Open() {
			return ErrAlreadySettled{InvoiceID: inv.ID}
		}
		if inv.Currency != tx.Currency {
			return ErrCurrencyMismatch{TransactionCurrency: tx.Currency, InvoiceCurrency: inv.Currency}
		}

		source := payment.Source{Kind: payment.SourceBankTransaction, ID: split.ID}
		p, err := payment.New(tx.CompanyID, inv.ID, split.AllocatedAmount, inv.Currency, source)
		if err != nil {
			return err
		}

		paymentTx := s.paymentRepo.WithTx(dbTx)
		if err := paymentTx.Create(ctx, p); err != nil {
			var dup payment.ErrDuplicatePayment
			if errors.As(err, &dup) {
				existing, getErr := paymentTx.GetBySource(ctx, tx.CompanyID, source)
				if getErr != nil {
					return fmt.Errorf("duplicate payment for split %s but lookup failed: %w", split.ID.String(), getErr)
				}
				posted = existing
				return nil
			}
			return err
		}

		inv.ApplyPayment(split.AllocatedAmount)
		if err := invoiceTx.ApplyPayment(ctx, inv); err != nil {
			return err
		}

		if err := s.reconRepo.WithTx(dbTx).SetSplitPayment(ctx, split.ID, p.ID); err != nil {
			return err
		}

		posted = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	split.PaymentID = &posted.ID
	return posted, nil
}

// finalizeStatus advances the reconciliation after all splits posted:
// matched when the allocations cover the whole transaction amount, partial
// otherwise.
func (s *PostingService) finalizeStatus(ctx context.Context, tx *banktransaction.Transaction, rec *reconciliation.Reconciliation, splits []*reconciliation.Split) error {
	total := decimalSum(splits)

	target := shared.ReconciliationStatusPartial
	if total.Equal(tx.Amount.Abs()) {
		target = shared.ReconciliationStatusMatched
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
	return s.reconRepo.Update(ctx, rec)
}

// revertToManual parks the reconciliation for operator review after a
// posting failure. A row that an exact-sum allocation already moved to
// matched is terminal, so it is superseded by a fresh manual row instead
// of transitioned, the same unwind a provider rejection uses.
func (s *PostingService) revertToManual(ctx context.Context, rec *reconciliation.Reconciliation, logger *slog.Logger) {
	if rec.CanTransition(shared.ReconciliationStatusManual) {
		if err := rec.Transition(shared.ReconciliationStatusManual); err != nil {
			return
		}
		if err := s.reconRepo.Update(ctx, rec); err != nil {
			logger.Error("Failed to persist manual revert after posting failure", "error", err)
		}
		return
	}

	if rec.Status != shared.ReconciliationStatusMatched || rec.SupersededBy != nil {
		return
	}
	replacement := reconciliation.New(rec.CompanyID, rec.TransactionID)
	if err := replacement.MarkManual(rec.Candidates, rec.MatchDetails); err != nil {
		return
	}
	err := s.txRunner.ExecuteTx(ctx, func(dbTx pgx.Tx) error {
		return s.reconRepo.WithTx(dbTx).Supersede(ctx, rec, replacement)
	})
	if err != nil {
		logger.Error("Failed to supersede reconciliation after posting failure",
			"replacement_id", replacement.ID.String(), "error", err)
	}
}

func decimalSum(splits []*reconciliation.Split) (total decimal.Decimal) {
	for _, split := range splits {
		total = total.Add(split.AllocatedAmount)
	}
	return total
}

// advisoryLockKey folds an invoice id into the bigint keyspace of
// pg_advisory_xact_lock
func advisoryLockKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}
