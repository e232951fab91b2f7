package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// ReconciliationRepository implements reconciliation.Repository for
// PostgreSQL. A partial unique index on (transaction_id) where
// superseded_by is null enforces the one-active-row invariant at the
// storage layer.
type ReconciliationRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewReconciliationRepository creates a new PostgreSQL reconciliation repository
func NewReconciliationRepository(logger *slog.Logger, db *persistence.PostgresDB) reconciliation.Repository {
	return &ReconciliationRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *ReconciliationRepository) WithTx(tx pgx.Tx) reconciliation.Repository {
	return &ReconciliationRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const reconciliationColumns = `id, company_id, transaction_id, invoice_id, status, match_type,
		confidence, match_details, candidates, matched_by, matched_at, superseded_by, created_at`

// Create inserts a reconciliation. The active-row unique index turns a
// concurrent second insert for the same transaction into
// ErrActiveReconciliationExists.
func (r *ReconciliationRepository) Create(ctx context.Context, rec *reconciliation.Reconciliation) error {
	candidates, err := marshalCandidates(rec.Candidates)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reconciliations (` + reconciliationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.querier.Exec(ctx, query,
		rec.ID,
		rec.CompanyID,
		rec.TransactionID,
		rec.InvoiceID,
		rec.Status,
		rec.MatchType,
		rec.Confidence,
		rec.MatchDetails,
		candidates,
		rec.MatchedBy,
		rec.MatchedAt,
		rec.SupersededBy,
		rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return reconciliation.ErrActiveReconciliationExists{TransactionID: rec.TransactionID}
		}
		r.logger.Error("Failed to create reconciliation",
			"transaction_id", rec.TransactionID.String(), "error", err)
		return fmt.Errorf("failed to create reconciliation: %w", err)
	}

	return nil
}

// GetByID retrieves a reconciliation by its ID
func (r *ReconciliationRepository) GetByID(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, error) {
	query := `
		SELECT ` + reconciliationColumns + `
		FROM reconciliations
		WHERE id = $1
	`

	rec, err := r.scanReconciliation(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reconciliation.ErrReconciliationNotFound{ID: id}
		}
		r.logger.Error("Failed to get reconciliation", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get reconciliation: %w", err)
	}

	return rec, nil
}

// GetActiveByTransaction returns the one non-superseded row for a transaction
func (r *ReconciliationRepository) GetActiveByTransaction(ctx context.Context, transactionID uuid.UUID) (*reconciliation.Reconciliation, error) {
	query := `
		SELECT ` + reconciliationColumns + `
		FROM reconciliations
		WHERE transaction_id = $1 AND superseded_by IS NULL
	`

	rec, err := r.scanReconciliation(r.querier.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reconciliation.ErrReconciliationNotFound{ID: transactionID}
		}
		r.logger.Error("Failed to get active reconciliation",
			"transaction_id", transactionID.String(), "error", err)
		return nil, fmt.Errorf("failed to get active reconciliation: %w", err)
	}

	return rec, nil
}

// GetByPayment returns the reconciliation whose split was settled by the
// given payment
func (r *ReconciliationRepository) GetByPayment(ctx context.Context, paymentID uuid.UUID) (*reconciliation.Reconciliation, error) {
	query := `
		SELECT ` + reconciliationColumns + `
		FROM reconciliations
		WHERE id = (
			SELECT reconciliation_id
			FROM reconciliation_splits
			WHERE payment_id = $1
		)
	`

	rec, err := r.scanReconciliation(r.querier.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reconciliation.ErrReconciliationNotFound{ID: paymentID}
		}
		r.logger.Error("Failed to get reconciliation by payment",
			"payment_id", paymentID.String(), "error", err)
		return nil, fmt.Errorf("failed to get reconciliation by payment: %w", err)
	}

	return rec, nil
}

// Update persists the mutable portion of a reconciliation
func (r *ReconciliationRepository) Update(ctx context.Context, rec *reconciliation.Reconciliation) error {
	candidates, err := marshalCandidates(rec.Candidates)
	if err != nil {
		return err
	}

	query := `
		UPDATE reconciliations
		SET invoice_id = $1, status = $2, match_type = $3, confidence = $4,
			match_details = $5, candidates = $6, matched_by = $7, matched_at = $8,
			superseded_by = $9
		WHERE id = $10
	`

	result, err := r.querier.Exec(ctx, query,
		rec.InvoiceID,
		rec.Status,
		rec.MatchType,
		rec.Confidence,
		rec.MatchDetails,
		candidates,
		rec.MatchedBy,
		rec.MatchedAt,
		rec.SupersededBy,
		rec.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update reconciliation", "id", rec.ID.String(), "error", err)
		return fmt.Errorf("failed to update reconciliation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reconciliation.ErrReconciliationNotFound{ID: rec.ID}
	}

	return nil
}

// Supersede stamps old as replaced and inserts the replacement in one
// step. Requires a transactional querier; the caller wraps it in WithTx so
// the old row's superseded_by and the new row commit or roll back together.
// Whether old may be replaced at all (terminal rows only yield to a
// provider reversal) is the caller's decision.
func (r *ReconciliationRepository) Supersede(ctx context.Context, old, replacement *reconciliation.Reconciliation) error {
	result, err := r.querier.Exec(ctx, `
		UPDATE reconciliations
		SET superseded_by = $1
		WHERE id = $2 AND superseded_by IS NULL
	`, replacement.ID, old.ID)
	if err != nil {
		r.logger.Error("Failed to supersede reconciliation", "id", old.ID.String(), "error", err)
		return fmt.Errorf("failed to supersede reconciliation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reconciliation.ErrReconciliationNotFound{ID: old.ID}
	}

	return r.Create(ctx, replacement)
}

// ListByStatus pages through a company's reconciliations in one status,
// active rows only, newest first
func (r *ReconciliationRepository) ListByStatus(ctx context.Context, companyID uuid.UUID, status shared.ReconciliationStatus, limit, offset int) ([]*reconciliation.Reconciliation, error) {
	query := `
		SELECT ` + reconciliationColumns + `
		FROM reconciliations
		WHERE company_id = $1 AND status = $2 AND superseded_by IS NULL
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.querier.Query(ctx, query, companyID, status, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list reconciliations", "company_id", companyID.String(), "error", err)
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	defer rows.Close()

	var recs []*reconciliation.Reconciliation
	for rows.Next() {
		rec, err := r.scanReconciliation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over reconciliations: %w", err)
	}

	return recs, nil
}

// CountByStatus counts a company's active reconciliations in one status
func (r *ReconciliationRepository) CountByStatus(ctx context.Context, companyID uuid.UUID, status shared.ReconciliationStatus) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM reconciliations
		WHERE company_id = $1 AND status = $2 AND superseded_by IS NULL
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, companyID, status).Scan(&count); err != nil {
		r.logger.Error("Failed to count reconciliations", "company_id", companyID.String(), "error", err)
		return 0, fmt.Errorf("failed to count reconciliations: %w", err)
	}

	return count, nil
}

// ReplaceSplits swaps the unposted splits of a reconciliation for the new
// set. Splits that already produced a payment are never touched.
func (r *ReconciliationRepository) ReplaceSplits(ctx context.Context, reconciliationID uuid.UUID, splits []*reconciliation.Split) error {
	_, err := r.querier.Exec(ctx, `
		DELETE FROM reconciliation_splits
		WHERE reconciliation_id = $1 AND payment_id IS NULL
	`, reconciliationID)
	if err != nil {
		r.logger.Error("Failed to clear unposted splits",
			"reconciliation_id", reconciliationID.String(), "error", err)
		return fmt.Errorf("failed to clear unposted splits: %w", err)
	}

	for _, split := range splits {
		_, err := r.querier.Exec(ctx, `
			INSERT INTO reconciliation_splits (id, reconciliation_id, invoice_id, allocated_amount, payment_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			split.ID,
			split.ReconciliationID,
			split.InvoiceID,
			split.AllocatedAmount,
			split.PaymentID,
			split.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to insert split",
				"reconciliation_id", reconciliationID.String(),
				"invoice_id", split.InvoiceID.String(),
				"error", err,
			)
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}

	return nil
}

// GetSplits retrieves a reconciliation's splits in creation order
func (r *ReconciliationRepository) GetSplits(ctx context.Context, reconciliationID uuid.UUID) ([]*reconciliation.Split, error) {
	query := `
		SELECT id, reconciliation_id, invoice_id, allocated_amount, payment_id, created_at
		FROM reconciliation_splits
		WHERE reconciliation_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.querier.Query(ctx, query, reconciliationID)
	if err != nil {
		r.logger.Error("Failed to get splits", "reconciliation_id", reconciliationID.String(), "error", err)
		return nil, fmt.Errorf("failed to get splits: %w", err)
	}
	defer rows.Close()

	var splits []*reconciliation.Split
	for rows.Next() {
		var split reconciliation.Split
		err := rows.Scan(
			&split.ID,
			&split.ReconciliationID,
			&split.InvoiceID,
			&split.AllocatedAmount,
			&split.PaymentID,
			&split.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		splits = append(splits, &split)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over splits: %w", err)
	}

	return splits, nil
}

// SetSplitPayment stamps a split with the payment that settled it
func (r *ReconciliationRepository) SetSplitPayment(ctx context.Context, splitID, paymentID uuid.UUID) error {
	result, err := r.querier.Exec(ctx, `
		UPDATE reconciliation_splits
		SET payment_id = $1
		WHERE id = $2
	`, paymentID, splitID)
	if err != nil {
		r.logger.Error("Failed to set split payment", "split_id", splitID.String(), "error", err)
		return fmt.Errorf("failed to set split payment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reconciliation.ErrReconciliationNotFound{ID: splitID}
	}

	return nil
}

func (r *ReconciliationRepository) scanReconciliation(row pgx.Row) (*reconciliation.Reconciliation, error) {
	var (
		rec        reconciliation.Reconciliation
		candidates []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.CompanyID,
		&rec.TransactionID,
		&rec.InvoiceID,
		&rec.Status,
		&rec.MatchType,
		&rec.Confidence,
		&rec.MatchDetails,
		&candidates,
		&rec.MatchedBy,
		&rec.MatchedAt,
		&rec.SupersededBy,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(candidates) > 0 {
		if err := json.Unmarshal(candidates, &rec.Candidates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal candidates: %w", err)
		}
	}
	return &rec, nil
}

func marshalCandidates(candidates []reconciliation.Candidate) ([]byte, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candidates: %w", err)
	}
	return raw, nil
}
