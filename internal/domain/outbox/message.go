package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/shared"
)

// Message stores a match request for reliable publishing. The row is
// written in the same database transaction as the ingested bank
// transaction, so a crash between ingestion and publication never loses a
// matching run.
type Message struct {
	ID            int64               `json:"id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	CompanyID     uuid.UUID           `json:"company_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(request *shared.MatchRequest) (*Message, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	return &Message{
		TransactionID: request.TransactionID,
		CompanyID:     request.CompanyID,
		Payload:       payload,
		Status:        shared.OutboxStatusPending,
		Attempts:      0,
		CreatedAt:     time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// GetMatchRequest extracts the match request from the payload
func (m *Message) GetMatchRequest() (*shared.MatchRequest, error) {
	var request shared.MatchRequest
	if err := json.Unmarshal(m.Payload, &request); err != nil {
		return nil, err
	}
	return &request, nil
}
