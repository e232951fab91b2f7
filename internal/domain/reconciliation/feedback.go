package reconciliation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/shared"
)

var (
	ErrFeedbackNotReviewable = errors.New("feedback requires a matched, partial or manual reconciliation")
	ErrFeedbackMissingUser   = errors.New("feedback requires a submitting user")
)

// Feedback is a user verdict on a completed reconciliation. Rows are
// append-only; they feed the offline weight recalibration, never the
// synchronous matching path.
type Feedback struct {
	ID               uuid.UUID              `json:"id"`
	CompanyID        uuid.UUID              `json:"company_id"`
	ReconciliationID uuid.UUID              `json:"reconciliation_id"`
	Verdict          shared.FeedbackVerdict `json:"verdict"`
	CorrectInvoiceID *uuid.UUID             `json:"correct_invoice_id,omitempty"` // set when verdict is WRONG
	SubmittedBy      uuid.UUID              `json:"submitted_by"`
	CreatedAt        time.Time              `json:"created_at"`
}

// NewFeedback validates and builds a verdict against a reconciliation
func NewFeedback(rec *Reconciliation, verdict shared.FeedbackVerdict, correctInvoiceID *uuid.UUID, submittedBy uuid.UUID) (*Feedback, error) {
	if !rec.Reviewable() {
		return nil, ErrFeedbackNotReviewable
	}
	if submittedBy == uuid.Nil {
		return nil, ErrFeedbackMissingUser
	}

	return &Feedback{
		ID:               uuid.New(),
		CompanyID:        rec.CompanyID,
		ReconciliationID: rec.ID,
		Verdict:          verdict,
		CorrectInvoiceID: correctInvoiceID,
		SubmittedBy:      submittedBy,
		CreatedAt:        time.Now(),
	}, nil
}
