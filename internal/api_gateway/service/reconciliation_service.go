package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/settlement"
)

// ErrInvoiceCompanyMismatch rejects matching a reconciliation against an
// invoice of another company
type ErrInvoiceCompanyMismatch struct {
	InvoiceID uuid.UUID
}

func (e ErrInvoiceCompanyMismatch) Error() string {
	return "invoice belongs to a different company: " + e.InvoiceID.String()
}

// SplitAllocator replaces a reconciliation's unposted splits
type SplitAllocator interface {
	Allocate(ctx context.Context, rec *reconciliation.Reconciliation, tx *banktransaction.Transaction, allocations []settlement.Allocation, allowOverpayment bool) ([]*reconciliation.Split, error)
}

// Poster posts a reconciliation's allocations as payments
type Poster interface {
	PostReconciliation(ctx context.Context, tx *banktransaction.Transaction, rec *reconciliation.Reconciliation) ([]*payment.Payment, error)
}

// ReconciliationServiceImpl implements the ReconciliationService interface
type ReconciliationServiceImpl struct {
	reconRepo        reconciliation.Repository
	feedbackRepo     reconciliation.FeedbackRepository
	txRepo           banktransaction.Repository
	invoiceRepo      invoice.Repository
	allocator        SplitAllocator
	poster           Poster
	auditTrail       AuditTrail
	allowOverpayment bool
	logger           *slog.Logger
}

// NewReconciliationService creates a new reconciliation review service
func NewReconciliationService(
	logger *slog.Logger,
	reconRepo reconciliation.Repository,
	feedbackRepo reconciliation.FeedbackRepository,
	txRepo banktransaction.Repository,
	invoiceRepo invoice.Repository,
	allocator SplitAllocator,
	poster Poster,
	auditTrail AuditTrail,
	allowOverpayment bool,
) *ReconciliationServiceImpl {
	return &ReconciliationServiceImpl{
		reconRepo:        reconRepo,
		feedbackRepo:     feedbackRepo,
		txRepo:           txRepo,
		invoiceRepo:      invoiceRepo,
		allocator:        allocator,
		poster:           poster,
		auditTrail:       auditTrail,
		allowOverpayment: allowOverpayment,
		logger:           logger,
	}
}

// List returns one page of the company's reconciliations in the given
// status, newest first, with the total count for pagination
func (s *ReconciliationServiceImpl) List(ctx context.Context, companyID uuid.UUID, status shared.ReconciliationStatus, page, perPage int) ([]*reconciliation.Reconciliation, int64, error) {
	offset := (page - 1) * perPage

	recs, err := s.reconRepo.ListByStatus(ctx, companyID, status, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.reconRepo.CountByStatus(ctx, companyID, status)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// Get returns a reconciliation with its splits. Returns nil without error
// when the id is unknown.
func (s *ReconciliationServiceImpl) Get(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, []*reconciliation.Split, error) {
	rec, err := s.reconRepo.GetByID(ctx, id)
	if err != nil {
		var notFound reconciliation.ErrReconciliationNotFound
		if errors.As(err, &notFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	splits, err := s.reconRepo.GetSplits(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, splits, nil
}

// SelectInvoice records the operator's invoice choice. The reconciliation
// stays in manual until Approve settles it, so a mis-click costs nothing.
func (s *ReconciliationServiceImpl) SelectInvoice(ctx context.Context, reconciliationID, invoiceID, matchedBy uuid.UUID) (*reconciliation.Reconciliation, error) {
	rec, err := s.reconRepo.GetByID(ctx, reconciliationID)
	if err != nil {
		return nil, err
	}
	if !rec.CanTransition(shared.ReconciliationStatusMatched) {
		return nil, reconciliation.ErrInvalidTransition
	}

	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.CompanyID != rec.CompanyID {
		return nil, ErrInvoiceCompanyMismatch{InvoiceID: invoiceID}
	}

	rec.InvoiceID = &invoiceID
	rec.MatchType = shared.MatchTypeManual
	rec.MatchedBy = &matchedBy
	if err := s.reconRepo.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.auditTrail.Record(ctx, rec.CompanyID, rec.TransactionID, &rec.ID, audit.EventManualMatched, map[string]string{
		"invoice_id": invoiceID.String(),
		"matched_by": matchedBy.String(),
	})
	return rec, nil
}

// Allocate replaces the reconciliation's unposted splits with the
// requested allocations
func (s *ReconciliationServiceImpl) Allocate(ctx context.Context, reconciliationID uuid.UUID, allocations []settlement.Allocation) ([]*reconciliation.Split, error) {
	rec, err := s.reconRepo.GetByID(ctx, reconciliationID)
	if err != nil {
		return nil, err
	}
	tx, err := s.txRepo.GetByID(ctx, rec.TransactionID)
	if err != nil {
		return nil, err
	}

	splits, err := s.allocator.Allocate(ctx, rec, tx, allocations, s.allowOverpayment)
	if err != nil {
		return nil, err
	}

	s.auditTrail.Record(ctx, rec.CompanyID, rec.TransactionID, &rec.ID, audit.EventManualMatched, map[string]any{
		"splits": len(splits),
	})
	return splits, nil
}

// Approve settles the reconciliation: every allocation becomes a payment
// and the linked transaction's settlement status is updated
func (s *ReconciliationServiceImpl) Approve(ctx context.Context, reconciliationID uuid.UUID) (*reconciliation.Reconciliation, []*payment.Payment, error) {
	rec, err := s.reconRepo.GetByID(ctx, reconciliationID)
	if err != nil {
		return nil, nil, err
	}
	tx, err := s.txRepo.GetByID(ctx, rec.TransactionID)
	if err != nil {
		return nil, nil, err
	}

	payments, err := s.poster.PostReconciliation(ctx, tx, rec)
	if err != nil {
		s.auditTrail.Record(ctx, rec.CompanyID, rec.TransactionID, &rec.ID, audit.EventPostingFailed, map[string]string{
			"error": err.Error(),
		})
		return rec, payments, fmt.Errorf("failed to post reconciliation %s: %w", rec.ID.String(), err)
	}

	settlementStatus := shared.TransactionPartial
	if rec.Status == shared.ReconciliationStatusMatched {
		settlementStatus = shared.TransactionReconciled
	}
	if err := s.txRepo.UpdateReconciliationStatus(ctx, rec.TransactionID, settlementStatus); err != nil {
		s.logger.Error("Failed to update transaction settlement status after approval",
			"transaction_id", rec.TransactionID.String(), "error", err)
	}

	s.auditTrail.Record(ctx, rec.CompanyID, rec.TransactionID, &rec.ID, audit.EventPosted, map[string]any{
		"payments": len(payments),
		"status":   string(rec.Status),
	})
	return rec, payments, nil
}

// Ignore parks the transaction permanently; ignored rows never settle
func (s *ReconciliationServiceImpl) Ignore(ctx context.Context, reconciliationID uuid.UUID) error {
	rec, err := s.reconRepo.GetByID(ctx, reconciliationID)
	if err != nil {
		return err
	}
	if err := rec.Transition(shared.ReconciliationStatusIgnored); err != nil {
		return err
	}
	if err := s.reconRepo.Update(ctx, rec); err != nil {
		return err
	}

	s.auditTrail.Record(ctx, rec.CompanyID, rec.TransactionID, &rec.ID, audit.EventIgnored, nil)
	return nil
}

// SubmitFeedback appends a verdict for the offline weight calibration
func (s *ReconciliationServiceImpl) SubmitFeedback(ctx context.Context, reconciliationID uuid.UUID, verdict shared.FeedbackVerdict, correctInvoiceID *uuid.UUID, submittedBy uuid.UUID) (*reconciliation.Feedback, error) {
	rec, err := s.reconRepo.GetByID(ctx, reconciliationID)
	if err != nil {
		return nil, err
	}

	fb, err := reconciliation.NewFeedback(rec, verdict, correctInvoiceID, submittedBy)
	if err != nil {
		return nil, err
	}
	if err := s.feedbackRepo.Create(ctx, fb); err != nil {
		return nil, err
	}

	s.auditTrail.Record(ctx, rec.CompanyID, rec.TransactionID, &rec.ID, audit.EventFeedbackGiven, map[string]string{
		"verdict":      string(verdict),
		"submitted_by": submittedBy.String(),
	})
	return fb, nil
}
