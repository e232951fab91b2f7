package components

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/matching_processor/service"
)

// AuditRecorderImpl writes the explainability trail to the audit store.
// Writes are best-effort: matching must not fail because the trail is
// temporarily unavailable.
type AuditRecorderImpl struct {
	auditRepo audit.Repository
	logger    *slog.Logger
}

// NewAuditRecorder creates a new audit recorder
func NewAuditRecorder(auditRepo audit.Repository, logger *slog.Logger) service.AuditTrail {
	return &AuditRecorderImpl{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// Record appends one audit event. Details are marshaled as-is; a value that
// cannot be marshaled is recorded without details.
func (a *AuditRecorderImpl) Record(ctx context.Context, companyID, transactionID uuid.UUID, reconciliationID *uuid.UUID, event audit.Event, details any) {
	var raw json.RawMessage
	if details != nil {
		marshaled, err := json.Marshal(details)
		if err != nil {
			a.logger.Warn("Failed to marshal audit details",
				"transaction_id", transactionID.String(),
				"event", string(event),
				"error", err,
			)
		} else {
			raw = marshaled
		}
	}

	record := audit.NewRecord(companyID, transactionID, event, raw)
	if reconciliationID != nil {
		record.WithReconciliation(*reconciliationID)
	}

	if err := a.auditRepo.Create(ctx, record); err != nil {
		a.logger.Error("Failed to write audit record",
			"transaction_id", transactionID.String(),
			"event", string(event),
			"error", err,
		)
	}
}
