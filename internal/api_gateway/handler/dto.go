package handler

import (
	"encoding/json"
	"time"

	"github.com/bank-reconciliation/internal/domain/matchingrule"
	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
)

// FeedTransactionRequest is one row of a PSD2-style feed delivery
type FeedTransactionRequest struct {
	Amount           string  `json:"amount" binding:"required"`
	Currency         string  `json:"currency" binding:"required,len=3"`
	BookingDate      string  `json:"booking_date" binding:"required"`
	TransactionDate  string  `json:"transaction_date" binding:"required"`
	ValueDate        *string `json:"value_date,omitempty"`
	Description      string  `json:"description"`
	CounterpartyName string  `json:"counterparty_name"`
	CounterpartyIBAN string  `json:"counterparty_iban"`
	ExternalID       string  `json:"external_id,omitempty"`
}

// FeedBatchRequest is the body of a feed ingestion call
type FeedBatchRequest struct {
	CompanyID    string                   `json:"company_id" binding:"required,uuid"`
	Transactions []FeedTransactionRequest `json:"transactions" binding:"required,min=1,dive"`
}

// ManualMatchRequest selects an invoice for a reconciliation under review
type ManualMatchRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required,uuid"`
	MatchedBy string `json:"matched_by" binding:"required,uuid"`
}

// AllocationRequest is one requested slice of the transaction amount
type AllocationRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required,uuid"`
	Amount    string `json:"amount" binding:"required"`
}

// SplitsRequest replaces a reconciliation's unposted splits
type SplitsRequest struct {
	Allocations []AllocationRequest `json:"allocations" binding:"required,min=1,dive"`
}

// FeedbackRequest records a verdict on a reviewed reconciliation
type FeedbackRequest struct {
	Verdict          string `json:"verdict" binding:"required,oneof=CORRECT WRONG PARTIAL"`
	CorrectInvoiceID string `json:"correct_invoice_id,omitempty" binding:"omitempty,uuid"`
	SubmittedBy      string `json:"submitted_by" binding:"required,uuid"`
}

// CreateRuleRequest creates a matching rule
type CreateRuleRequest struct {
	CompanyID  string                   `json:"company_id" binding:"required,uuid"`
	Name       string                   `json:"name" binding:"required"`
	Priority   int                      `json:"priority" binding:"min=0"`
	Conditions []matchingrule.Condition `json:"conditions" binding:"required,min=1"`
	Actions    []matchingrule.Action    `json:"actions" binding:"required,min=1"`
}

// UpdateRuleRequest replaces a rule's definition
type UpdateRuleRequest struct {
	Name       string                   `json:"name" binding:"required"`
	Priority   int                      `json:"priority" binding:"min=0"`
	Active     bool                     `json:"active"`
	Conditions []matchingrule.Condition `json:"conditions" binding:"required,min=1"`
	Actions    []matchingrule.Action    `json:"actions" binding:"required,min=1"`
}

// WebhookEventRequest is a provider callback body
type WebhookEventRequest struct {
	EventID   string          `json:"event_id" binding:"required"`
	EventType string          `json:"event_type" binding:"required"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
}

// ReconciliationResponse represents a reconciliation in API responses
type ReconciliationResponse struct {
	ID            string                     `json:"id"`
	CompanyID     string                     `json:"company_id"`
	TransactionID string                     `json:"transaction_id"`
	InvoiceID     string                     `json:"invoice_id,omitempty"`
	Status        string                     `json:"status"`
	MatchType     string                     `json:"match_type"`
	Confidence    string                     `json:"confidence,omitempty"`
	MatchDetails  json.RawMessage            `json:"match_details,omitempty"`
	Candidates    []reconciliation.Candidate `json:"candidates,omitempty"`
	MatchedBy     string                     `json:"matched_by,omitempty"`
	MatchedAt     string                     `json:"matched_at,omitempty"`
	SupersededBy  string                     `json:"superseded_by,omitempty"`
	CreatedAt     string                     `json:"created_at"`
	Splits        []SplitResponse            `json:"splits,omitempty"`
}

// SplitResponse represents one allocation in API responses
type SplitResponse struct {
	ID              string `json:"id"`
	InvoiceID       string `json:"invoice_id"`
	AllocatedAmount string `json:"allocated_amount"`
	PaymentID       string `json:"payment_id,omitempty"`
}

// PaymentResponse represents a posted payment in API responses
type PaymentResponse struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// RuleResponse represents a matching rule in API responses
type RuleResponse struct {
	ID         string                   `json:"id"`
	CompanyID  string                   `json:"company_id"`
	Name       string                   `json:"name"`
	Priority   int                      `json:"priority"`
	Active     bool                     `json:"active"`
	Conditions []matchingrule.Condition `json:"conditions"`
	Actions    []matchingrule.Action    `json:"actions"`
	CreatedAt  string                   `json:"created_at"`
	UpdatedAt  string                   `json:"updated_at"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

func mapReconciliationToResponse(rec *reconciliation.Reconciliation, splits []*reconciliation.Split) ReconciliationResponse {
	response := ReconciliationResponse{
		ID:            rec.ID.String(),
		CompanyID:     rec.CompanyID.String(),
		TransactionID: rec.TransactionID.String(),
		Status:        string(rec.Status),
		MatchType:     string(rec.MatchType),
		MatchDetails:  rec.MatchDetails,
		Candidates:    rec.Candidates,
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.InvoiceID != nil {
		response.InvoiceID = rec.InvoiceID.String()
	}
	if rec.Confidence != nil {
		response.Confidence = rec.Confidence.StringFixed(2)
	}
	if rec.MatchedBy != nil {
		response.MatchedBy = rec.MatchedBy.String()
	}
	if rec.MatchedAt != nil {
		response.MatchedAt = rec.MatchedAt.Format(time.RFC3339)
	}
	if rec.SupersededBy != nil {
		response.SupersededBy = rec.SupersededBy.String()
	}
	for _, split := range splits {
		response.Splits = append(response.Splits, mapSplitToResponse(split))
	}
	return response
}

func mapSplitToResponse(split *reconciliation.Split) SplitResponse {
	response := SplitResponse{
		ID:              split.ID.String(),
		InvoiceID:       split.InvoiceID.String(),
		AllocatedAmount: split.AllocatedAmount.String(),
	}
	if split.PaymentID != nil {
		response.PaymentID = split.PaymentID.String()
	}
	return response
}

func mapPaymentToResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:        p.ID.String(),
		InvoiceID: p.InvoiceID.String(),
		Amount:    p.Amount.String(),
		Currency:  p.Currency,
	}
}

func mapRuleToResponse(rule *matchingrule.Rule) RuleResponse {
	return RuleResponse{
		ID:         rule.ID.String(),
		CompanyID:  rule.CompanyID.String(),
		Name:       rule.Name,
		Priority:   rule.Priority,
		Active:     rule.Active,
		Conditions: rule.Conditions,
		Actions:    rule.Actions,
		CreatedAt:  rule.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  rule.UpdatedAt.Format(time.RFC3339),
	}
}
