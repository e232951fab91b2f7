package matchingrule

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrEmptyRuleName    = errors.New("rule name cannot be empty")
	ErrNoConditions     = errors.New("rule must have at least one condition")
	ErrNoActions        = errors.New("rule must have at least one action")
	ErrNegativePriority = errors.New("rule priority cannot be negative")
)

// ConditionField identifies the transaction attribute a condition inspects
type ConditionField string

const (
	FieldDescription      ConditionField = "description"
	FieldCounterpartyName ConditionField = "counterparty_name"
	FieldCounterpartyIBAN ConditionField = "counterparty_iban"
	FieldReference        ConditionField = "reference"
	FieldAmount           ConditionField = "amount"
)

// ConditionOperator identifies the comparison a condition performs
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorRegex       ConditionOperator = "regex"
	OperatorGreaterThan ConditionOperator = "gt"
	OperatorLessThan    ConditionOperator = "lt"
	OperatorAmountRange ConditionOperator = "amount_range"
)

// Condition is one predicate of a rule. Conditions within a rule are
// evaluated as a conjunction. Value carries the comparison operand for
// string operators; Min/Max carry the bounds for amount operators.
type Condition struct {
	Field    ConditionField    `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value,omitempty"`
	Min      *decimal.Decimal  `json:"min,omitempty"`
	Max      *decimal.Decimal  `json:"max,omitempty"`
}

// ActionKind identifies what a matched rule does with the transaction
type ActionKind string

const (
	// ActionMatchInvoice settles the transaction against a fixed invoice
	// with a confidence-100 reconciliation tagged match_type=RULE.
	ActionMatchInvoice ActionKind = "match_invoice"
	// ActionAssignCustomer attaches a customer without settling
	ActionAssignCustomer ActionKind = "assign_customer"
	// ActionIgnore excludes the transaction from matching entirely
	ActionIgnore ActionKind = "ignore"
	// ActionCategorize tags the transaction without settling
	ActionCategorize ActionKind = "categorize"
)

// Action is a tagged variant; exactly the fields relevant to its Kind are
// set. Unknown kinds are rejected at evaluation time, not silently ignored.
type Action struct {
	Kind       ActionKind `json:"kind"`
	InvoiceID  *uuid.UUID `json:"invoice_id,omitempty"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	Category   string     `json:"category,omitempty"`
}

// Rule is a company-scoped, priority-ordered predicate/action pair. Lower
// priority numbers are evaluated first; the first fully matching active
// rule wins and short-circuits statistical scoring.
type Rule struct {
	ID         uuid.UUID   `json:"id"`
	CompanyID  uuid.UUID   `json:"company_id"`
	Name       string      `json:"name"`
	Priority   int         `json:"priority"`
	Active     bool        `json:"active"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// New validates and builds a matching rule
func New(companyID uuid.UUID, name string, priority int, conditions []Condition, actions []Action) (*Rule, error) {
	if name == "" {
		return nil, ErrEmptyRuleName
	}
	if priority < 0 {
		return nil, ErrNegativePriority
	}
	if len(conditions) == 0 {
		return nil, ErrNoConditions
	}
	if len(actions) == 0 {
		return nil, ErrNoActions
	}

	now := time.Now()
	return &Rule{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       name,
		Priority:   priority,
		Active:     true,
		Conditions: conditions,
		Actions:    actions,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// MarshalConditions serializes the condition list for the jsonb column
func (r *Rule) MarshalConditions() ([]byte, error) {
	return json.Marshal(r.Conditions)
}

// MarshalActions serializes the action list for the jsonb column
func (r *Rule) MarshalActions() ([]byte, error) {
	return json.Marshal(r.Actions)
}
