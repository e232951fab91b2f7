package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/domain/webhook"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// WebhookEventRepository implements webhook.Repository for PostgreSQL. The
// unique index on (provider, event_id) absorbs provider redeliveries.
type WebhookEventRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewWebhookEventRepository creates a new PostgreSQL webhook event repository
func NewWebhookEventRepository(logger *slog.Logger, db *persistence.PostgresDB) webhook.Repository {
	return &WebhookEventRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

const webhookEventColumns = `id, provider, event_id, event_type, payload, status,
		attempts, next_attempt_at, last_error, created_at`

// Create inserts a webhook event, mapping a (provider, event_id) collision
// to ErrDuplicateEvent
func (r *WebhookEventRepository) Create(ctx context.Context, event *webhook.Event) error {
	query := `
		INSERT INTO webhook_events (` + webhookEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		event.ID,
		event.Provider,
		event.EventID,
		event.EventType,
		event.Payload,
		event.Status,
		event.Attempts,
		event.NextAttemptAt,
		event.LastError,
		event.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return webhook.ErrDuplicateEvent{Provider: event.Provider, EventID: event.EventID}
		}
		r.logger.Error("Failed to create webhook event",
			"provider", event.Provider, "event_id", event.EventID, "error", err)
		return fmt.Errorf("failed to create webhook event: %w", err)
	}

	return nil
}

// GetByID retrieves a webhook event by its ID
func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*webhook.Event, error) {
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE id = $1
	`

	event, err := r.scanEvent(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, webhook.ErrEventNotFound{ID: id}
		}
		r.logger.Error("Failed to get webhook event", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return event, nil
}

// GetDue returns pending and retryable failed events whose next attempt
// time has passed, oldest first
func (r *WebhookEventRepository) GetDue(ctx context.Context, limit int) ([]*webhook.Event, error) {
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE status IN ($1, $2) AND next_attempt_at <= $3
		ORDER BY next_attempt_at ASC
		LIMIT $4
	`

	rows, err := r.querier.Query(ctx, query,
		shared.WebhookEventStatusPending,
		shared.WebhookEventStatusFailed,
		time.Now(),
		limit,
	)
	if err != nil {
		r.logger.Error("Failed to get due webhook events", "error", err)
		return nil, fmt.Errorf("failed to get due webhook events: %w", err)
	}
	defer rows.Close()

	var events []*webhook.Event
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over webhook events: %w", err)
	}

	return events, nil
}

// Update persists an event's processing outcome
func (r *WebhookEventRepository) Update(ctx context.Context, event *webhook.Event) error {
	query := `
		UPDATE webhook_events
		SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4
		WHERE id = $5
	`

	result, err := r.querier.Exec(ctx, query,
		event.Status,
		event.Attempts,
		event.NextAttemptAt,
		event.LastError,
		event.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update webhook event", "id", event.ID.String(), "error", err)
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return webhook.ErrEventNotFound{ID: event.ID}
	}

	return nil
}

func (r *WebhookEventRepository) scanEvent(row pgx.Row) (*webhook.Event, error) {
	var event webhook.Event
	err := row.Scan(
		&event.ID,
		&event.Provider,
		&event.EventID,
		&event.EventType,
		&event.Payload,
		&event.Status,
		&event.Attempts,
		&event.NextAttemptAt,
		&event.LastError,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
