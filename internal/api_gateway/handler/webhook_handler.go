package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/bank-reconciliation/internal/api_gateway/service"
	"github.com/bank-reconciliation/internal/domain/webhook"
)

// WebhookHandler accepts provider callbacks. It only persists the event;
// the dispatcher applies it asynchronously, so the provider always gets a
// fast answer.
type WebhookHandler struct {
	intakeService service.WebhookIntakeService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new webhook intake handler
func NewWebhookHandler(logger *slog.Logger, intakeService service.WebhookIntakeService) *WebhookHandler {
	return &WebhookHandler{
		intakeService: intakeService,
		logger:        logger,
	}
}

// Receive stores one provider event. Redeliveries answer 200 so providers
// that retry on anything but 2xx settle down.
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := c.Param("provider")

	var req WebhookEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	event, accepted, err := h.intakeService.Accept(c.Request.Context(), provider, req.EventID, webhook.EventType(req.EventType), req.Payload)
	if err != nil {
		if errors.Is(err, webhook.ErrEmptyProvider) || errors.Is(err, webhook.ErrEmptyEventID) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to accept webhook event",
			"provider", provider, "event_id", req.EventID, "error", err)
		RespondInternalError(c)
		return
	}

	if !accepted {
		RespondOK(c, gin.H{"event_id": req.EventID, "status": "ALREADY_RECEIVED"})
		return
	}
	RespondAccepted(c, gin.H{"id": event.ID.String(), "event_id": event.EventID, "status": string(event.Status)})
}
