package banktransaction

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/shared"
)

// Repository defines bank transaction persistence operations
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByFingerprint returns the active (non-duplicate) row for a
	// (company, fingerprint) pair, or ErrTransactionNotFound.
	GetByFingerprint(ctx context.Context, companyID uuid.UUID, fingerprint string) (*Transaction, error)

	UpdateProcessingStatus(ctx context.Context, id uuid.UUID, status shared.ProcessingStatus) error
	UpdateReconciliationStatus(ctx context.Context, id uuid.UUID, status shared.TransactionReconciliationStatus) error
	ListByImportBatch(ctx context.Context, batchID uuid.UUID, limit, offset int) ([]*Transaction, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates a missing bank transaction
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "bank transaction not found: " + e.TransactionID.String()
}

// ErrDuplicateTransaction indicates a dedup fingerprint collision. It is a
// recoverable condition: the caller tags the incoming row as a duplicate of
// OriginalID instead of failing the batch.
type ErrDuplicateTransaction struct {
	OriginalID  uuid.UUID
	Fingerprint string
}

func (e ErrDuplicateTransaction) Error() string {
	return "duplicate bank transaction, fingerprint already ingested as " + e.OriginalID.String()
}
