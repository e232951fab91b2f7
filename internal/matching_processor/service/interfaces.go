package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/customer"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/matching/scoring"
)

// MatchService defines the interface for processing match requests.
type MatchService interface {
	ProcessMatchRequest(ctx context.Context, request *shared.MatchRequest) error
}

// ScoringConfigResolver resolves the effective scoring configuration for a
// company: defaults overridden by the calibrated per-company profile.
type ScoringConfigResolver interface {
	Resolve(ctx context.Context, companyID uuid.UUID) (scoring.Config, error)
}

// CandidateLoader loads the scorer's inputs for a transaction
type CandidateLoader interface {
	Load(ctx context.Context, tx *banktransaction.Transaction, cfg scoring.Config) ([]*invoice.Invoice, map[string]*customer.Customer, error)
}

// ReconciliationRecorder persists reconciliation outcomes, superseding a
// prior active row when one exists
type ReconciliationRecorder interface {
	Record(ctx context.Context, rec *reconciliation.Reconciliation) error
}

// Poster posts a matched reconciliation's splits as payments
type Poster interface {
	PostReconciliation(ctx context.Context, tx *banktransaction.Transaction, rec *reconciliation.Reconciliation) ([]*payment.Payment, error)
}

// AuditTrail records decisions for explainability. Implementations are
// best-effort: a failed audit write never fails the pipeline.
type AuditTrail interface {
	Record(ctx context.Context, companyID, transactionID uuid.UUID, reconciliationID *uuid.UUID, event audit.Event, details any)
}
