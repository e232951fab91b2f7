// Package postgres provides PostgreSQL implementations of the domain
// repositories. It handles all database operations while maintaining
// transaction safety and proper error handling for the reconciliation core.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// BankTransactionRepository implements banktransaction.Repository for PostgreSQL
type BankTransactionRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewBankTransactionRepository creates a new PostgreSQL bank transaction repository
func NewBankTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) banktransaction.Repository {
	return &BankTransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic
// operations across multiple repository calls
func (r *BankTransactionRepository) WithTx(tx pgx.Tx) banktransaction.Repository {
	return &BankTransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const bankTransactionColumns = `id, company_id, bank_account_id, amount, currency,
		transaction_date, booking_date, value_date, description, counterparty_name,
		counterparty_iban, external_id, fingerprint, reconciliation_status,
		processing_status, is_duplicate, duplicate_of, import_batch_id, created_at`

// Create stores a new bank transaction. A violation of the per-company
// fingerprint uniqueness surfaces as ErrDuplicateTransaction carrying the
// original row's id, so callers can persist the redelivery as a duplicate.
func (r *BankTransactionRepository) Create(ctx context.Context, t *banktransaction.Transaction) error {
	query := `
		INSERT INTO bank_transactions (` + bankTransactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.querier.Exec(ctx, query,
		t.ID,
		t.CompanyID,
		t.BankAccountID,
		t.Amount,
		t.Currency,
		t.TransactionDate,
		t.BookingDate,
		t.ValueDate,
		t.Description,
		t.CounterpartyName,
		t.CounterpartyIBAN,
		t.ExternalID,
		t.Fingerprint,
		t.ReconciliationStatus,
		t.ProcessingStatus,
		t.IsDuplicate,
		t.DuplicateOf,
		t.ImportBatchID,
		t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			original, lookupErr := r.GetByFingerprint(ctx, t.CompanyID, t.Fingerprint)
			if lookupErr != nil {
				return fmt.Errorf("duplicate transaction but original lookup failed: %w", lookupErr)
			}
			return banktransaction.ErrDuplicateTransaction{
				OriginalID:  original.ID,
				Fingerprint: t.Fingerprint,
			}
		}
		r.logger.Error("Failed to create bank transaction", "error", err)
		return fmt.Errorf("failed to create bank transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a bank transaction by its ID
func (r *BankTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*banktransaction.Transaction, error) {
	query := `
		SELECT ` + bankTransactionColumns + `
		FROM bank_transactions
		WHERE id = $1
	`

	t, err := r.scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, banktransaction.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get bank transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get bank transaction: %w", err)
	}

	return t, nil
}

// GetByFingerprint retrieves the canonical (non-duplicate) row for a
// company fingerprint
func (r *BankTransactionRepository) GetByFingerprint(ctx context.Context, companyID uuid.UUID, fingerprint string) (*banktransaction.Transaction, error) {
	query := `
		SELECT ` + bankTransactionColumns + `
		FROM bank_transactions
		WHERE company_id = $1 AND fingerprint = $2 AND is_duplicate = FALSE
	`

	t, err := r.scanTransaction(r.querier.QueryRow(ctx, query, companyID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, banktransaction.ErrTransactionNotFound{TransactionID: uuid.Nil}
		}
		r.logger.Error("Failed to get bank transaction by fingerprint",
			"company_id", companyID.String(), "error", err)
		return nil, fmt.Errorf("failed to get bank transaction by fingerprint: %w", err)
	}

	return t, nil
}

// UpdateProcessingStatus moves a transaction through the matching pipeline
func (r *BankTransactionRepository) UpdateProcessingStatus(ctx context.Context, id uuid.UUID, status shared.ProcessingStatus) error {
	query := `
		UPDATE bank_transactions
		SET processing_status = $1
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error("Failed to update processing status", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update processing status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return banktransaction.ErrTransactionNotFound{TransactionID: id}
	}

	return nil
}

// UpdateReconciliationStatus records how much of the transaction is settled
func (r *BankTransactionRepository) UpdateReconciliationStatus(ctx context.Context, id uuid.UUID, status shared.TransactionReconciliationStatus) error {
	query := `
		UPDATE bank_transactions
		SET reconciliation_status = $1
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error("Failed to update reconciliation status", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update reconciliation status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return banktransaction.ErrTransactionNotFound{TransactionID: id}
	}

	return nil
}

// ListByImportBatch retrieves transactions of one import, duplicates included
func (r *BankTransactionRepository) ListByImportBatch(ctx context.Context, batchID uuid.UUID, limit, offset int) ([]*banktransaction.Transaction, error) {
	query := `
		SELECT ` + bankTransactionColumns + `
		FROM bank_transactions
		WHERE import_batch_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, batchID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list transactions by import batch", "batch_id", batchID.String(), "error", err)
		return nil, fmt.Errorf("failed to list transactions by import batch: %w", err)
	}
	defer rows.Close()

	var transactions []*banktransaction.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over bank transactions: %w", err)
	}

	return transactions, nil
}

func (r *BankTransactionRepository) scanTransaction(row pgx.Row) (*banktransaction.Transaction, error) {
	var t banktransaction.Transaction
	err := row.Scan(
		&t.ID,
		&t.CompanyID,
		&t.BankAccountID,
		&t.Amount,
		&t.Currency,
		&t.TransactionDate,
		&t.BookingDate,
		&t.ValueDate,
		&t.Description,
		&t.CounterpartyName,
		&t.CounterpartyIBAN,
		&t.ExternalID,
		&t.Fingerprint,
		&t.ReconciliationStatus,
		&t.ProcessingStatus,
		&t.IsDuplicate,
		&t.DuplicateOf,
		&t.ImportBatchID,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
