package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/matching_processor/service"
	"github.com/bank-reconciliation/internal/settlement"
)

// ErrActiveTerminal means the transaction's active reconciliation is
// matched or ignored and cannot be replaced by re-evaluation
var ErrActiveTerminal = errors.New("active reconciliation is terminal")

// ReconRecorderImpl persists reconciliation outcomes. When a transaction
// already has an active reconciliation the new one supersedes it instead of
// failing, preserving the decision history.
type ReconRecorderImpl struct {
	txRunner  settlement.TxRunner
	reconRepo reconciliation.Repository
	logger    *slog.Logger
}

// NewReconRecorder creates a new reconciliation recorder
func NewReconRecorder(txRunner settlement.TxRunner, reconRepo reconciliation.Repository, logger *slog.Logger) service.ReconciliationRecorder {
	return &ReconRecorderImpl{
		txRunner:  txRunner,
		reconRepo: reconRepo,
		logger:    logger,
	}
}

// Record inserts the reconciliation, superseding the transaction's current
// active row if the one-active-row constraint rejects the insert. Terminal
// reconciliations are never superseded; their money has moved.
func (r *ReconRecorderImpl) Record(ctx context.Context, rec *reconciliation.Reconciliation) error {
	err := r.reconRepo.Create(ctx, rec)
	if err == nil {
		return nil
	}

	var exists reconciliation.ErrActiveReconciliationExists
	if !errors.As(err, &exists) {
		return err
	}

	active, err := r.reconRepo.GetActiveByTransaction(ctx, rec.TransactionID)
	if err != nil {
		return fmt.Errorf("active reconciliation lookup failed: %w", err)
	}
	if active.Status.Terminal() {
		return ErrActiveTerminal
	}

	r.logger.Info("Superseding active reconciliation",
		"transaction_id", rec.TransactionID.String(),
		"old_id", active.ID.String(),
		"new_id", rec.ID.String(),
	)

	return r.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		return r.reconRepo.WithTx(tx).Supersede(ctx, active, rec)
	})
}
