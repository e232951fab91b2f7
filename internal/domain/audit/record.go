// Package audit defines the append-only explainability trail. Every
// decision the matching core takes about a transaction is recorded with
// the evidence it was taken on, so a reviewer can reconstruct why a
// reconciliation looks the way it does.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event classifies what happened to a reconciliation
type Event string

const (
	EventRuleMatched    Event = "RULE_MATCHED"
	EventAutoMatched    Event = "AUTO_MATCHED"
	EventManualReview   Event = "MANUAL_REVIEW"
	EventManualMatched  Event = "MANUAL_MATCHED"
	EventIgnored        Event = "IGNORED"
	EventSuperseded     Event = "SUPERSEDED"
	EventPosted         Event = "POSTED"
	EventPostingFailed  Event = "POSTING_FAILED"
	EventDuplicate      Event = "DUPLICATE"
	EventFeedbackGiven  Event = "FEEDBACK_GIVEN"
	EventPaymentConfirm Event = "PAYMENT_CONFIRMED"
)

// Record is one immutable audit event. Details carries the verbatim
// evidence of the decision (scorer output, rule id, feedback verdict);
// records are never updated or deleted.
type Record struct {
	ID               uuid.UUID       `bson:"id" json:"id"`
	CompanyID        uuid.UUID       `bson:"company_id" json:"company_id"`
	TransactionID    uuid.UUID       `bson:"transaction_id" json:"transaction_id"`
	ReconciliationID *uuid.UUID      `bson:"reconciliation_id,omitempty" json:"reconciliation_id,omitempty"`
	Event            Event           `bson:"event" json:"event"`
	Details          json.RawMessage `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt        time.Time       `bson:"created_at" json:"created_at"`
}

// NewRecord builds an audit record for a transaction-level event
func NewRecord(companyID, transactionID uuid.UUID, event Event, details json.RawMessage) *Record {
	return &Record{
		ID:            uuid.New(),
		CompanyID:     companyID,
		TransactionID: transactionID,
		Event:         event,
		Details:       details,
		CreatedAt:     time.Now(),
	}
}

// WithReconciliation links the record to the reconciliation it concerns
func (r *Record) WithReconciliation(reconciliationID uuid.UUID) *Record {
	r.ReconciliationID = &reconciliationID
	return r
}
