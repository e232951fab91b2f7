package reconciliation

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/shared"
)

// Common errors
var (
	ErrInvalidTransition = errors.New("invalid reconciliation state transition")
	ErrSuperseded        = errors.New("reconciliation has been superseded")
)

// Candidate is one ranked entry of the scorer output, preserved verbatim on
// manual reconciliations so operators see exactly what the scorer saw.
type Candidate struct {
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	DueAmount      decimal.Decimal `json:"due_amount"`
	DueDate        time.Time       `json:"due_date"`
	Confidence     decimal.Decimal `json:"confidence"`
	AmountScore    float64         `json:"amount_score"`
	ReferenceScore float64         `json:"reference_score"`
	NameScore      float64         `json:"name_score"`
	DateScore      float64         `json:"date_score"`
}

// Reconciliation records how (or whether) one bank transaction was matched.
// A transaction has at most one active reconciliation; re-matching creates a
// new row and stamps the old one superseded rather than mutating history.
type Reconciliation struct {
	ID            uuid.UUID                   `json:"id"`
	CompanyID     uuid.UUID                   `json:"company_id"`
	TransactionID uuid.UUID                   `json:"transaction_id"`
	InvoiceID     *uuid.UUID                  `json:"invoice_id,omitempty"`
	Status        shared.ReconciliationStatus `json:"status"`
	MatchType     shared.MatchType            `json:"match_type"`
	Confidence    *decimal.Decimal            `json:"confidence,omitempty"` // nil for manual/rule matches
	MatchDetails  json.RawMessage             `json:"match_details,omitempty"`
	Candidates    []Candidate                 `json:"candidates,omitempty"`
	MatchedBy     *uuid.UUID                  `json:"matched_by,omitempty"`
	MatchedAt     *time.Time                  `json:"matched_at,omitempty"`
	SupersededBy  *uuid.UUID                  `json:"superseded_by,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}

// New creates a pending reconciliation for a transaction
func New(companyID, transactionID uuid.UUID) *Reconciliation {
	return &Reconciliation{
		ID:            uuid.New(),
		CompanyID:     companyID,
		TransactionID: transactionID,
		Status:        shared.ReconciliationStatusPending,
		MatchType:     shared.MatchTypeAuto,
		CreatedAt:     time.Now(),
	}
}

// transitions maps each status to the set it may move to. Matched and
// ignored are terminal; partial and manual may still close out.
var transitions = map[shared.ReconciliationStatus][]shared.ReconciliationStatus{
	shared.ReconciliationStatusPending: {
		shared.ReconciliationStatusMatched,
		shared.ReconciliationStatusPartial,
		shared.ReconciliationStatusManual,
		shared.ReconciliationStatusIgnored,
	},
	shared.ReconciliationStatusPartial: {
		shared.ReconciliationStatusMatched,
		shared.ReconciliationStatusManual,
	},
	shared.ReconciliationStatusManual: {
		shared.ReconciliationStatusMatched,
		shared.ReconciliationStatusPartial,
		shared.ReconciliationStatusIgnored,
	},
}

// CanTransition reports whether the state machine permits moving to target
func (r *Reconciliation) CanTransition(target shared.ReconciliationStatus) bool {
	for _, allowed := range transitions[r.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Transition moves the reconciliation to target, enforcing the state machine
func (r *Reconciliation) Transition(target shared.ReconciliationStatus) error {
	if r.SupersededBy != nil {
		return ErrSuperseded
	}
	if !r.CanTransition(target) {
		return ErrInvalidTransition
	}
	r.Status = target
	return nil
}

// MarkMatched finalizes the reconciliation against a single invoice
func (r *Reconciliation) MarkMatched(invoiceID uuid.UUID, matchType shared.MatchType, confidence *decimal.Decimal, matchedBy *uuid.UUID) error {
	if err := r.Transition(shared.ReconciliationStatusMatched); err != nil {
		return err
	}
	now := time.Now()
	r.InvoiceID = &invoiceID
	r.MatchType = matchType
	r.Confidence = confidence
	r.MatchedBy = matchedBy
	r.MatchedAt = &now
	return nil
}

// MarkManual parks the reconciliation in the operator queue with the ranked
// candidate list attached
func (r *Reconciliation) MarkManual(candidates []Candidate, details json.RawMessage) error {
	if err := r.Transition(shared.ReconciliationStatusManual); err != nil {
		return err
	}
	r.Candidates = candidates
	r.MatchDetails = details
	return nil
}

// Supersede stamps this row as replaced by a newer reconciliation.
// Terminal rows keep their history; only non-terminal rows can be replaced.
func (r *Reconciliation) Supersede(byID uuid.UUID) error {
	if r.Status.Terminal() {
		return ErrInvalidTransition
	}
	r.SupersededBy = &byID
	return nil
}

// Reviewable reports whether feedback may be recorded against this row
func (r *Reconciliation) Reviewable() bool {
	switch r.Status {
	case shared.ReconciliationStatusMatched, shared.ReconciliationStatusPartial, shared.ReconciliationStatusManual:
		return true
	}
	return false
}
