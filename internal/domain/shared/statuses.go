package shared

// ReconciliationStatus defines the states of the matching state machine
type ReconciliationStatus string

const (
	ReconciliationStatusPending ReconciliationStatus = "PENDING"
	ReconciliationStatusMatched ReconciliationStatus = "MATCHED"
	ReconciliationStatusPartial ReconciliationStatus = "PARTIAL"
	ReconciliationStatusManual  ReconciliationStatus = "MANUAL"
	ReconciliationStatusIgnored ReconciliationStatus = "IGNORED"
)

// Terminal reports whether a reconciliation in this status can still transition
func (s ReconciliationStatus) Terminal() bool {
	return s == ReconciliationStatusMatched || s == ReconciliationStatusIgnored
}

// MatchType defines how a reconciliation was produced
type MatchType string

const (
	MatchTypeAuto   MatchType = "AUTO"
	MatchTypeManual MatchType = "MANUAL"
	MatchTypeRule   MatchType = "RULE"
)

// TransactionReconciliationStatus tracks how much of a bank transaction is settled
type TransactionReconciliationStatus string

const (
	TransactionUnreconciled TransactionReconciliationStatus = "UNRECONCILED"
	TransactionPartial      TransactionReconciliationStatus = "PARTIAL"
	TransactionReconciled   TransactionReconciliationStatus = "RECONCILED"
)

// ProcessingStatus tracks a transaction's progress through the matching pipeline
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "PENDING"
	ProcessingStatusProcessing ProcessingStatus = "PROCESSING"
	ProcessingStatusProcessed  ProcessingStatus = "PROCESSED"
	ProcessingStatusFailed     ProcessingStatus = "FAILED"
)

// OutboxStatus defines match-request publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// WebhookEventStatus defines provider-event processing states
type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "PENDING"
	WebhookEventStatusProcessed WebhookEventStatus = "PROCESSED"
	WebhookEventStatusFailed    WebhookEventStatus = "FAILED"
	WebhookEventStatusDead      WebhookEventStatus = "DEAD"
)

// FeedbackVerdict defines user verdicts on completed reconciliations
type FeedbackVerdict string

const (
	FeedbackVerdictCorrect FeedbackVerdict = "CORRECT"
	FeedbackVerdictWrong   FeedbackVerdict = "WRONG"
	FeedbackVerdictPartial FeedbackVerdict = "PARTIAL"
)
