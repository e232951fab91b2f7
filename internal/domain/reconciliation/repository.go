package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/shared"
)

// Repository defines reconciliation persistence operations
type Repository interface {
	Create(ctx context.Context, rec *Reconciliation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reconciliation, error)

	// GetActiveByTransaction returns the one non-superseded row for a
	// transaction, or ErrReconciliationNotFound.
	GetActiveByTransaction(ctx context.Context, transactionID uuid.UUID) (*Reconciliation, error)

	// GetByPayment returns the reconciliation whose split was settled by
	// the given payment. Used when a provider retroactively rejects a
	// posted payment.
	GetByPayment(ctx context.Context, paymentID uuid.UUID) (*Reconciliation, error)

	Update(ctx context.Context, rec *Reconciliation) error

	// Supersede atomically stamps old as replaced and inserts replacement.
	// The active-row uniqueness constraint guarantees at most one live
	// reconciliation per transaction survives the swap.
	Supersede(ctx context.Context, old *Reconciliation, replacement *Reconciliation) error

	ListByStatus(ctx context.Context, companyID uuid.UUID, status shared.ReconciliationStatus, limit, offset int) ([]*Reconciliation, error)
	CountByStatus(ctx context.Context, companyID uuid.UUID, status shared.ReconciliationStatus) (int64, error)

	// Splits
	ReplaceSplits(ctx context.Context, reconciliationID uuid.UUID, splits []*Split) error
	GetSplits(ctx context.Context, reconciliationID uuid.UUID) ([]*Split, error)
	SetSplitPayment(ctx context.Context, splitID, paymentID uuid.UUID) error

	WithTx(tx pgx.Tx) Repository
}

// FeedbackRepository defines feedback persistence and aggregation
type FeedbackRepository interface {
	Create(ctx context.Context, fb *Feedback) error
	ListByCompany(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]*Feedback, error)

	// AggregateVerdicts returns verdict counts per company for the
	// offline weight calibration job.
	AggregateVerdicts(ctx context.Context, companyID uuid.UUID) (map[shared.FeedbackVerdict]int64, error)

	// ListCompaniesWithFeedback returns companies that received feedback
	// since the given time, for the calibration job to iterate.
	ListCompaniesWithFeedback(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// ErrReconciliationNotFound indicates a missing reconciliation
type ErrReconciliationNotFound struct {
	ID uuid.UUID
}

func (e ErrReconciliationNotFound) Error() string {
	return "reconciliation not found: " + e.ID.String()
}

// ErrActiveReconciliationExists indicates the one-active-row constraint
// rejected an insert; callers should supersede instead.
type ErrActiveReconciliationExists struct {
	TransactionID uuid.UUID
}

func (e ErrActiveReconciliationExists) Error() string {
	return "transaction already has an active reconciliation: " + e.TransactionID.String()
}
