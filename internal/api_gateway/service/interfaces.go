package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/domain/matchingrule"
	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/domain/webhook"
	"github.com/bank-reconciliation/internal/settlement"
)

// TransactionInput is one normalized feed or file row before ingestion
type TransactionInput struct {
	Amount           decimal.Decimal
	Currency         string
	BookingDate      time.Time
	TransactionDate  time.Time
	ValueDate        *time.Time
	Description      string
	CounterpartyName string
	CounterpartyIBAN string
	ExternalID       string
}

// IngestOutcome classifies what happened to a single ingested row
type IngestOutcome string

const (
	// IngestAccepted means the row was stored and queued for matching
	IngestAccepted IngestOutcome = "ACCEPTED"
	// IngestDuplicate means the fingerprint was already ingested; the row
	// is kept for audit but never matched
	IngestDuplicate IngestOutcome = "DUPLICATE"
	// IngestConflict means the bank redelivered a known external id with a
	// different payload; treated as a duplicate but flagged for review
	IngestConflict IngestOutcome = "CONFLICT"
	// IngestRejected means the row failed validation and was not stored
	IngestRejected IngestOutcome = "REJECTED"
)

// RowResult reports the per-row outcome of an ingestion call
type RowResult struct {
	Index         int           `json:"index"`
	TransactionID *uuid.UUID    `json:"transaction_id,omitempty"`
	Outcome       IngestOutcome `json:"outcome"`
	Error         string        `json:"error,omitempty"`
}

// IngestSummary aggregates an ingestion run
type IngestSummary struct {
	ImportBatchID *uuid.UUID  `json:"import_batch_id,omitempty"`
	Accepted      int         `json:"accepted"`
	Duplicates    int         `json:"duplicates"`
	Conflicts     int         `json:"conflicts"`
	Rejected      int         `json:"rejected"`
	Cancelled     bool        `json:"cancelled"`
	Rows          []RowResult `json:"rows"`
}

// IngestionService accepts external bank movements, deduplicates them by
// fingerprint and queues accepted rows for matching via the outbox.
type IngestionService interface {
	// IngestBatch stores a feed delivery. Each accepted row commits
	// together with its outbox message; duplicates are stored without one.
	IngestBatch(ctx context.Context, companyID, bankAccountID uuid.UUID, rows []TransactionInput, correlationID string) (*IngestSummary, error)

	// ImportCSV streams a transaction file, committing in batches. The
	// returned summary carries the import batch id; a concurrent
	// CancelImport with that id stops the run at the next batch boundary.
	ImportCSV(ctx context.Context, companyID, bankAccountID uuid.UUID, file io.Reader, correlationID string) (*IngestSummary, error)

	// CancelImport flags a running import for cancellation. Returns
	// ErrImportNotFound when no import with that id is running.
	CancelImport(importID uuid.UUID) error
}

// ReconciliationService exposes the operator review queue and its actions
type ReconciliationService interface {
	List(ctx context.Context, companyID uuid.UUID, status shared.ReconciliationStatus, page, perPage int) ([]*reconciliation.Reconciliation, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, []*reconciliation.Split, error)

	// SelectInvoice records the operator's invoice choice on a manual
	// reconciliation. Settlement only happens on Approve.
	SelectInvoice(ctx context.Context, reconciliationID, invoiceID, matchedBy uuid.UUID) (*reconciliation.Reconciliation, error)

	// Allocate replaces the reconciliation's unposted splits
	Allocate(ctx context.Context, reconciliationID uuid.UUID, allocations []settlement.Allocation) ([]*reconciliation.Split, error)

	// Approve posts the reconciliation's allocations as payments
	Approve(ctx context.Context, reconciliationID uuid.UUID) (*reconciliation.Reconciliation, []*payment.Payment, error)

	Ignore(ctx context.Context, reconciliationID uuid.UUID) error

	SubmitFeedback(ctx context.Context, reconciliationID uuid.UUID, verdict shared.FeedbackVerdict, correctInvoiceID *uuid.UUID, submittedBy uuid.UUID) (*reconciliation.Feedback, error)
}

// RuleService manages company-scoped matching rules
type RuleService interface {
	Create(ctx context.Context, companyID uuid.UUID, name string, priority int, conditions []matchingrule.Condition, actions []matchingrule.Action) (*matchingrule.Rule, error)
	Get(ctx context.Context, id uuid.UUID) (*matchingrule.Rule, error)
	List(ctx context.Context, companyID uuid.UUID) ([]*matchingrule.Rule, error)
	Update(ctx context.Context, id uuid.UUID, name string, priority int, active bool, conditions []matchingrule.Condition, actions []matchingrule.Action) (*matchingrule.Rule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// WebhookIntakeService persists provider callbacks for asynchronous
// dispatch. Intake never mutates reconciliation state.
type WebhookIntakeService interface {
	// Accept stores the event. A redelivered (provider, event id) pair is
	// absorbed: accepted is false and err is nil.
	Accept(ctx context.Context, provider, eventID string, eventType webhook.EventType, payload []byte) (event *webhook.Event, accepted bool, err error)
}

// AuditTrail records review decisions in the append-only explainability
// trail. Same contract as the processor's recorder; failures are logged,
// never surfaced to the caller.
type AuditTrail interface {
	Record(ctx context.Context, companyID, transactionID uuid.UUID, reconciliationID *uuid.UUID, event audit.Event, details any)
}
