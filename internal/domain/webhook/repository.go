package webhook

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines webhook event persistence operations
type Repository interface {
	// Create inserts an event; a (provider, event_id) collision surfaces
	// as ErrDuplicateEvent, which intake treats as already-delivered.
	Create(ctx context.Context, event *Event) error

	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)

	// GetDue returns pending and retryable failed events whose
	// next_attempt_at has passed, oldest first.
	GetDue(ctx context.Context, limit int) ([]*Event, error)

	Update(ctx context.Context, event *Event) error
}

// ErrEventNotFound indicates a missing webhook event
type ErrEventNotFound struct {
	ID uuid.UUID
}

func (e ErrEventNotFound) Error() string {
	return "webhook event not found: " + e.ID.String()
}

// ErrDuplicateEvent indicates the provider redelivered a known event
type ErrDuplicateEvent struct {
	Provider string
	EventID  string
}

func (e ErrDuplicateEvent) Error() string {
	return "webhook event already received: " + e.Provider + "/" + e.EventID
}
