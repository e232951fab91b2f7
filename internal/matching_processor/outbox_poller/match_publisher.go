package outbox_poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bank-reconciliation/internal/domain/outbox"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/platform/messaging/producers"
)

// MatchPublisher publishes outbox messages to the match request topic
type MatchPublisher interface {
	PublishMatchRequest(ctx context.Context, message *outbox.Message) error
}

// MatchPublisherImpl implements MatchPublisher
type MatchPublisherImpl struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewMatchPublisher creates a new publisher
func NewMatchPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) MatchPublisher {
	return &MatchPublisherImpl{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishMatchRequest publishes one outbox message to Kafka and marks it
// processed. A payload that cannot be unmarshaled is unpublishable and is
// failed immediately rather than retried.
func (p *MatchPublisherImpl) PublishMatchRequest(ctx context.Context, message *outbox.Message) error {
	var request shared.MatchRequest
	if err := json.Unmarshal(message.Payload, &request); err != nil {
		p.logger.Error("Failed to unmarshal match request from outbox payload",
			"outbox_id", message.ID, "transaction_id", message.TransactionID, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	// Add correlation ID to logger
	logger := p.logger
	if request.CorrelationID != "" {
		logger = p.logger.With("correlation_id", request.CorrelationID)
	}

	logger.Info("Attempting to publish outbox message to match request topic",
		"outbox_id", message.ID, "transaction_id", message.TransactionID)

	// Key by transaction so redeliveries and re-evaluations stay ordered
	// within one partition.
	if err := p.producer.Publish(ctx, message.TransactionID.String(), &request); err != nil {
		logger.Error("Failed to publish match request to Kafka", "outbox_id", message.ID, "transaction_id", message.TransactionID, "error", err)
		return fmt.Errorf("failed to publish match request for transaction %s: %w", message.TransactionID, err)
	}

	// Mark outbox message as processed
	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "transaction_id", message.TransactionID, "error", err,
		)
		return fmt.Errorf("publish for %s OK, but failed to mark outbox %d as PROCESSED: %w", message.TransactionID, message.ID, err)
	}

	logger.Info("Outbox message successfully published and marked as PROCESSED", "outbox_id", message.ID, "transaction_id", message.TransactionID)
	return nil
}
