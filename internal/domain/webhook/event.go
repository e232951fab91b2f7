package webhook

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/shared"
)

var (
	ErrEmptyProvider = errors.New("webhook provider cannot be empty")
	ErrEmptyEventID  = errors.New("webhook event id cannot be empty")
)

// EventType classifies provider callbacks the core reacts to
type EventType string

const (
	// EventPaymentAccepted confirms a posted payment downstream
	EventPaymentAccepted EventType = "payment.accepted"
	// EventPaymentRejected retroactively fails a posted payment; the
	// reconciliation returns to the manual queue.
	EventPaymentRejected EventType = "payment.rejected"
	// EventPaymentDuplicate flags a payment the provider saw twice
	EventPaymentDuplicate EventType = "payment.duplicate"
)

// Event is one provider callback. (provider, event_id) is unique, so a
// redelivered webhook is absorbed without reprocessing.
type Event struct {
	ID            uuid.UUID                 `json:"id"`
	Provider      string                    `json:"provider"`
	EventID       string                    `json:"event_id"`
	EventType     EventType                 `json:"event_type"`
	Payload       json.RawMessage           `json:"payload"`
	Status        shared.WebhookEventStatus `json:"status"`
	Attempts      int                       `json:"attempts"`
	NextAttemptAt time.Time                 `json:"next_attempt_at"`
	LastError     string                    `json:"last_error,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// NewEvent validates and builds a pending webhook event
func NewEvent(provider, eventID string, eventType EventType, payload json.RawMessage) (*Event, error) {
	if provider == "" {
		return nil, ErrEmptyProvider
	}
	if eventID == "" {
		return nil, ErrEmptyEventID
	}

	now := time.Now()
	return &Event{
		ID:            uuid.New(),
		Provider:      provider,
		EventID:       eventID,
		EventType:     eventType,
		Payload:       payload,
		Status:        shared.WebhookEventStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// ScheduleRetry records a failed attempt and computes the next try with
// exponential backoff. Once maxAttempts is reached the event goes dead and
// is surfaced for manual inspection.
func (e *Event) ScheduleRetry(cause error, base, max time.Duration, maxAttempts int) {
	e.Attempts++
	e.LastError = cause.Error()
	if e.Attempts >= maxAttempts {
		e.Status = shared.WebhookEventStatusDead
		return
	}
	backoff := base << uint(e.Attempts-1)
	if backoff > max {
		backoff = max
	}
	e.Status = shared.WebhookEventStatusFailed
	e.NextAttemptAt = time.Now().Add(backoff)
}

// MarkProcessed finalizes a successfully applied event
func (e *Event) MarkProcessed() {
	e.Status = shared.WebhookEventStatusProcessed
}
