package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/matching_processor/service"
	"github.com/bank-reconciliation/internal/platform/messaging/producers"
)

// MatchEventHandler handles incoming match request messages from Kafka
type MatchEventHandler struct {
	matchService service.MatchService
	producer     producers.DeadLetterPublisher
	logger       *slog.Logger
}

// NewMatchEventHandler creates a new handler
func NewMatchEventHandler(
	logger *slog.Logger,
	matchService service.MatchService,
	producer producers.DeadLetterPublisher,
) *MatchEventHandler {
	return &MatchEventHandler{
		matchService: matchService,
		producer:     producer,
		logger:       logger,
	}
}

// HandleMessage processes Kafka messages
func (h *MatchEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var request shared.MatchRequest
	if err := json.Unmarshal(value, &request); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal match request from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		// Send to DLQ if available
		if h.producer != nil {
			dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
			if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
				h.logger.Error("Failed to publish message to DLQ after unmarshal error",
					"dlq_error", dlqErr,
					"original_error", err,
					"message_key", string(key),
				)
				// Return original error if DLQ fails
			} else {
				h.logger.Info("Successfully published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
				// Message handled, commit offset
				return nil
			}
		}
		// Allow Kafka retries
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	// Add correlation ID to logger
	logger := h.logger
	if request.CorrelationID != "" {
		logger = h.logger.With("correlation_id", request.CorrelationID)
	}

	logger.Info("Received match request",
		"transaction_id", request.TransactionID.String(),
		"company_id", request.CompanyID.String(),
		"reason", string(request.Reason),
	)

	if err := h.matchService.ProcessMatchRequest(ctx, &request); err != nil {
		logger.Error("Failed to process match request",
			"transaction_id", request.TransactionID.String(),
			"company_id", request.CompanyID.String(),
			"error", err,
		)
		return fmt.Errorf("matching transaction %s failed: %w", request.TransactionID.String(), err)
	}

	logger.Info("Successfully processed match request", "transaction_id", request.TransactionID.String())
	return nil // Success, commit offset
}
