package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidMatchReason = errors.New("invalid match request reason")
)

// MatchReason explains why a transaction was queued for matching
type MatchReason string

const (
	// MatchReasonIngested is set when a transaction first clears deduplication
	MatchReasonIngested MatchReason = "INGESTED"
	// MatchReasonReevaluate is set when rules changed or weights were recalibrated
	MatchReasonReevaluate MatchReason = "REEVALUATE"
)

// MatchRequest defines a Kafka message asking the processor to match one
// bank transaction against the company's open invoices
type MatchRequest struct {
	TransactionID uuid.UUID   `json:"transaction_id"`
	CompanyID     uuid.UUID   `json:"company_id"`
	BankAccountID uuid.UUID   `json:"bank_account_id"`
	Reason        MatchReason `json:"reason"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}
