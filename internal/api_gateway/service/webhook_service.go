package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bank-reconciliation/internal/domain/webhook"
)

// WebhookIntakeServiceImpl implements the WebhookIntakeService interface.
// Intake only persists events; the dispatcher in the matching processor
// applies them, so provider bursts never block the HTTP surface.
type WebhookIntakeServiceImpl struct {
	webhookRepo webhook.Repository
	logger      *slog.Logger
}

// NewWebhookIntakeService creates a new webhook intake service
func NewWebhookIntakeService(logger *slog.Logger, webhookRepo webhook.Repository) *WebhookIntakeServiceImpl {
	return &WebhookIntakeServiceImpl{
		webhookRepo: webhookRepo,
		logger:      logger,
	}
}

// Accept validates and stores a provider event. A redelivered
// (provider, event id) pair is absorbed without error so providers that
// retry on anything but 2xx settle down.
func (s *WebhookIntakeServiceImpl) Accept(ctx context.Context, provider, eventID string, eventType webhook.EventType, payload []byte) (*webhook.Event, bool, error) {
	event, err := webhook.NewEvent(provider, eventID, eventType, payload)
	if err != nil {
		return nil, false, err
	}

	if err := s.webhookRepo.Create(ctx, event); err != nil {
		var dup webhook.ErrDuplicateEvent
		if errors.As(err, &dup) {
			s.logger.Info("Webhook event redelivered, absorbing",
				"provider", provider, "event_id", eventID)
			return nil, false, nil
		}
		return nil, false, err
	}

	s.logger.Info("Webhook event accepted",
		"provider", provider,
		"event_id", eventID,
		"event_type", string(eventType),
	)
	return event, true, nil
}
