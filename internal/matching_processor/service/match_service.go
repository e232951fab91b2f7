package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/domain/matchingrule"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/matching/rules"
	"github.com/bank-reconciliation/internal/matching/scoring"
)

// ruleConfidence is recorded on rule-produced matches; a deterministic rule
// is by definition fully confident.
var ruleConfidence = decimal.NewFromInt(100)

type MatchServiceImpl struct {
	txRepo          banktransaction.Repository
	ruleRepo        matchingrule.Repository
	invoiceRepo     invoice.Repository
	reconRepo       reconciliation.Repository
	engine          *rules.Engine
	scorer          *scoring.Scorer
	configResolver  ScoringConfigResolver
	candidateLoader CandidateLoader
	recorder        ReconciliationRecorder
	poster          Poster
	auditTrail      AuditTrail
	logger          *slog.Logger
}

func NewMatchService(
	txRepo banktransaction.Repository,
	ruleRepo matchingrule.Repository,
	invoiceRepo invoice.Repository,
	reconRepo reconciliation.Repository,
	engine *rules.Engine,
	scorer *scoring.Scorer,
	configResolver ScoringConfigResolver,
	candidateLoader CandidateLoader,
	recorder ReconciliationRecorder,
	poster Poster,
	auditTrail AuditTrail,
	logger *slog.Logger,
) MatchService {
	return &MatchServiceImpl{
		txRepo:          txRepo,
		ruleRepo:        ruleRepo,
		invoiceRepo:     invoiceRepo,
		reconRepo:       reconRepo,
		engine:          engine,
		scorer:          scorer,
		configResolver:  configResolver,
		candidateLoader: candidateLoader,
		recorder:        recorder,
		poster:          poster,
		auditTrail:      auditTrail,
		logger:          logger,
	}
}

// ProcessMatchRequest handles the core logic for matching one transaction:
// active rules first, the weighted scorer second, with every decision
// recorded as a reconciliation and an audit event.
func (s *MatchServiceImpl) ProcessMatchRequest(ctx context.Context, request *shared.MatchRequest) error {
	logger := s.logger
	if request.CorrelationID != "" {
		logger = s.logger.With("correlation_id", request.CorrelationID)
	}

	logger.Info("Processing match request",
		"transaction_id", request.TransactionID.String(),
		"company_id", request.CompanyID.String(),
		"reason", string(request.Reason),
	)

	tx, err := s.txRepo.GetByID(ctx, request.TransactionID)
	if err != nil {
		var notFound banktransaction.ErrTransactionNotFound
		if errors.As(err, &notFound) {
			// Acknowledge: the row will never appear, retrying is pointless
			logger.Warn("Match request references unknown transaction",
				"transaction_id", request.TransactionID.String())
			return nil
		}
		return err // Let Kafka retry
	}

	if tx.IsDuplicate {
		logger.Info("Skipping duplicate transaction", "transaction_id", tx.ID.String())
		return nil
	}

	// Idempotency: a redelivered ingest request for an already reconciled
	// transaction is a no-op, and terminal reconciliations are never
	// reopened by re-evaluation.
	active, err := s.activeReconciliation(ctx, tx)
	if err != nil {
		return err
	}
	if active != nil {
		if request.Reason == shared.MatchReasonIngested {
			logger.Info("Transaction already reconciled, acknowledging redelivery",
				"transaction_id", tx.ID.String(),
				"reconciliation_id", active.ID.String(),
			)
			return nil
		}
		if active.Status.Terminal() {
			logger.Info("Active reconciliation is terminal, skipping re-evaluation",
				"transaction_id", tx.ID.String(),
				"status", string(active.Status),
			)
			return nil
		}
	}

	if err := s.txRepo.UpdateProcessingStatus(ctx, tx.ID, shared.ProcessingStatusProcessing); err != nil {
		return err
	}

	if err := s.matchTransaction(ctx, logger, tx); err != nil {
		logger.Error("Matching failed", "transaction_id", tx.ID.String(), "error", err)
		if statusErr := s.txRepo.UpdateProcessingStatus(ctx, tx.ID, shared.ProcessingStatusFailed); statusErr != nil {
			logger.Error("Failed to mark transaction processing as failed",
				"transaction_id", tx.ID.String(), "error", statusErr)
		}
		return err // Let Kafka retry
	}

	if err := s.txRepo.UpdateProcessingStatus(ctx, tx.ID, shared.ProcessingStatusProcessed); err != nil {
		return err
	}

	logger.Info("Match request processed", "transaction_id", tx.ID.String())
	return nil
}

func (s *MatchServiceImpl) activeReconciliation(ctx context.Context, tx *banktransaction.Transaction) (*reconciliation.Reconciliation, error) {
	active, err := s.reconRepo.GetActiveByTransaction(ctx, tx.ID)
	if err != nil {
		var notFound reconciliation.ErrReconciliationNotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return active, nil
}

func (s *MatchServiceImpl) matchTransaction(ctx context.Context, logger *slog.Logger, tx *banktransaction.Transaction) error {
	ruleSet, err := s.ruleRepo.ListActive(ctx, tx.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to load matching rules: %w", err)
	}

	if outcome := s.engine.Evaluate(tx, ruleSet); outcome != nil {
		handled, err := s.applyRuleOutcome(ctx, logger, tx, outcome)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}

	return s.scoreAndRecord(ctx, logger, tx)
}

// ruleDetails is the audit payload for rule decisions
type ruleDetails struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Action   string `json:"action"`
}

// applyRuleOutcome executes the winning rule's actions. Ignore and
// match_invoice conclude the transaction; annotation actions are recorded
// and the transaction falls through to the scorer.
func (s *MatchServiceImpl) applyRuleOutcome(ctx context.Context, logger *slog.Logger, tx *banktransaction.Transaction, outcome *rules.Outcome) (bool, error) {
	for _, action := range outcome.Actions {
		details := ruleDetails{
			RuleID:   outcome.Rule.ID.String(),
			RuleName: outcome.Rule.Name,
			Action:   string(action.Kind),
		}

		switch action.Kind {
		case matchingrule.ActionIgnore:
			rec := reconciliation.New(tx.CompanyID, tx.ID)
			rec.MatchType = shared.MatchTypeRule
			rec.MatchDetails, _ = json.Marshal(details)
			if err := rec.Transition(shared.ReconciliationStatusIgnored); err != nil {
				return false, err
			}
			if err := s.recorder.Record(ctx, rec); err != nil {
				return false, err
			}
			logger.Info("Transaction ignored by rule",
				"transaction_id", tx.ID.String(),
				"rule_id", outcome.Rule.ID.String(),
			)
			s.auditTrail.Record(ctx, tx.CompanyID, tx.ID, &rec.ID, audit.EventIgnored, details)
			return true, nil

		case matchingrule.ActionMatchInvoice:
			inv, err := s.invoiceRepo.GetByID(ctx, *action.InvoiceID)
			if err != nil || inv.CompanyID != tx.CompanyID {
				// Stale rule target; fall back to scoring
				logger.Warn("Rule targets a missing or foreign invoice",
					"rule_id", outcome.Rule.ID.String(),
					"invoice_id", action.InvoiceID.String(),
				)
				return false, nil
			}

			rec := reconciliation.New(tx.CompanyID, tx.ID)
			rec.InvoiceID = &inv.ID
			rec.MatchType = shared.MatchTypeRule
			confidence := ruleConfidence
			rec.Confidence = &confidence
			rec.MatchDetails, _ = json.Marshal(details)
			if err := s.recorder.Record(ctx, rec); err != nil {
				return false, err
			}
			s.auditTrail.Record(ctx, tx.CompanyID, tx.ID, &rec.ID, audit.EventRuleMatched, details)
			s.postMatched(ctx, logger, tx, rec)
			return true, nil

		case matchingrule.ActionAssignCustomer, matchingrule.ActionCategorize:
			// Annotations only; the transaction still needs a match
			s.auditTrail.Record(ctx, tx.CompanyID, tx.ID, nil, audit.EventRuleMatched, details)
		}
	}
	return false, nil
}

// scoreAndRecord runs the weighted scorer and records the outcome: an
// auto-approved match that posts immediately, or a manual-review row
// carrying the ranked candidates.
func (s *MatchServiceImpl) scoreAndRecord(ctx context.Context, logger *slog.Logger, tx *banktransaction.Transaction) error {
	cfg, err := s.configResolver.Resolve(ctx, tx.CompanyID)
	if err != nil {
		return err
	}

	candidates, customers, err := s.candidateLoader.Load(ctx, tx, cfg)
	if err != nil {
		return err
	}

	result := s.scorer.Score(tx, candidates, customers, cfg)
	details := result.Details()
	rawDetails, _ := json.Marshal(details)

	rec := reconciliation.New(tx.CompanyID, tx.ID)

	if result.AutoApprovable(tx.Amount) {
		top := result.Top()
		confidence := top.Confidence
		rec.InvoiceID = &top.Invoice.ID
		rec.MatchType = shared.MatchTypeAuto
		rec.Confidence = &confidence
		rec.MatchDetails = rawDetails
		if err := s.recorder.Record(ctx, rec); err != nil {
			return err
		}
		logger.Info("Auto-approved match",
			"transaction_id", tx.ID.String(),
			"invoice_id", top.Invoice.ID.String(),
			"confidence", confidence.String(),
		)
		s.auditTrail.Record(ctx, tx.CompanyID, tx.ID, &rec.ID, audit.EventAutoMatched, details)
		s.postMatched(ctx, logger, tx, rec)
		return nil
	}

	if err := rec.MarkManual(toCandidates(result.Ranked), rawDetails); err != nil {
		return err
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		return err
	}
	logger.Info("Queued for manual review",
		"transaction_id", tx.ID.String(),
		"candidates", len(rec.Candidates),
		"ambiguous", result.IsAmbiguous(),
	)
	s.auditTrail.Record(ctx, tx.CompanyID, tx.ID, &rec.ID, audit.EventManualReview, details)
	return nil
}

// postMatched posts the recorded match. Posting failures are business
// outcomes, not pipeline errors: the posting service has already parked
// the reconciliation for manual review, so the request is acknowledged.
func (s *MatchServiceImpl) postMatched(ctx context.Context, logger *slog.Logger, tx *banktransaction.Transaction, rec *reconciliation.Reconciliation) {
	payments, err := s.poster.PostReconciliation(ctx, tx, rec)
	if err != nil {
		logger.Warn("Posting failed, reconciliation parked for manual review",
			"transaction_id", tx.ID.String(),
			"reconciliation_id", rec.ID.String(),
			"error", err,
		)
		s.auditTrail.Record(ctx, tx.CompanyID, tx.ID, &rec.ID, audit.EventPostingFailed,
			map[string]string{"error": err.Error()})
		return
	}

	s.auditTrail.Record(ctx, tx.CompanyID, tx.ID, &rec.ID, audit.EventPosted,
		map[string]int{"payments": len(payments)})

	target := shared.TransactionPartial
	if rec.Status == shared.ReconciliationStatusMatched {
		target = shared.TransactionReconciled
	}
	if err := s.txRepo.UpdateReconciliationStatus(ctx, tx.ID, target); err != nil {
		logger.Error("Failed to update transaction settlement status",
			"transaction_id", tx.ID.String(), "error", err)
	}
}

func toCandidates(ranked []scoring.RankedCandidate) []reconciliation.Candidate {
	out := make([]reconciliation.Candidate, 0, len(ranked))
	for _, rc := range ranked {
		out = append(out, reconciliation.Candidate{
			InvoiceID:      rc.Invoice.ID,
			InvoiceNumber:  rc.Invoice.Number,
			DueAmount:      rc.Invoice.DueAmount,
			DueDate:        rc.Invoice.DueDate,
			Confidence:     rc.Confidence,
			AmountScore:    rc.SubScores.Amount,
			ReferenceScore: rc.SubScores.Reference,
			NameScore:      rc.SubScores.Name,
			DateScore:      rc.SubScores.Date,
		})
	}
	return out
}
