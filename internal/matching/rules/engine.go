// Package rules evaluates user-defined matching rules against incoming bank
// transactions ahead of statistical scoring. Evaluation is pure: the engine
// never touches storage.
package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/matchingrule"
)

// ErrRuleEvaluation marks a malformed rule. The engine skips the rule with
// a warning and keeps evaluating the remaining ones; it is never fatal to
// the ingestion pipeline.
type ErrRuleEvaluation struct {
	RuleID string
	Cause  error
}

func (e ErrRuleEvaluation) Error() string {
	return "rule evaluation failed for rule " + e.RuleID + ": " + e.Cause.Error()
}

func (e ErrRuleEvaluation) Unwrap() error {
	return e.Cause
}

// Outcome is the result of evaluating one transaction against a company's
// rules: the first fully matching active rule and its actions, or nothing.
type Outcome struct {
	Rule    *matchingrule.Rule
	Actions []matchingrule.Action
}

// Engine evaluates rules in priority order
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate runs the transaction through the given rules. Rules are expected
// pre-filtered to active and sorted ascending by priority (the repository
// contract). Conditions are a conjunction; the first rule whose conditions
// all hold wins and evaluation stops. A nil outcome means no rule matched
// and the transaction proceeds to the candidate scorer.
func (e *Engine) Evaluate(tx *banktransaction.Transaction, ruleSet []*matchingrule.Rule) *Outcome {
	for _, rule := range ruleSet {
		matched, err := e.ruleMatches(tx, rule)
		if err != nil {
			e.logger.Warn("Skipping malformed matching rule",
				"rule_id", rule.ID.String(),
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}
		if matched {
			return &Outcome{Rule: rule, Actions: rule.Actions}
		}
	}
	return nil
}

func (e *Engine) ruleMatches(tx *banktransaction.Transaction, rule *matchingrule.Rule) (bool, error) {
	if len(rule.Conditions) == 0 {
		return false, ErrRuleEvaluation{RuleID: rule.ID.String(), Cause: matchingrule.ErrNoConditions}
	}
	for _, action := range rule.Actions {
		if err := validateAction(action); err != nil {
			return false, ErrRuleEvaluation{RuleID: rule.ID.String(), Cause: err}
		}
	}

	for _, cond := range rule.Conditions {
		ok, err := e.conditionHolds(tx, cond)
		if err != nil {
			return false, ErrRuleEvaluation{RuleID: rule.ID.String(), Cause: err}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) conditionHolds(tx *banktransaction.Transaction, cond matchingrule.Condition) (bool, error) {
	switch cond.Operator {
	case matchingrule.OperatorEquals, matchingrule.OperatorContains, matchingrule.OperatorRegex:
		subject, err := extractText(tx, cond.Field)
		if err != nil {
			return false, err
		}
		return textConditionHolds(subject, cond)

	case matchingrule.OperatorGreaterThan, matchingrule.OperatorLessThan, matchingrule.OperatorAmountRange:
		if cond.Field != matchingrule.FieldAmount {
			return false, fmt.Errorf("operator %q requires the amount field, got %q", cond.Operator, cond.Field)
		}
		return amountConditionHolds(tx, cond)

	default:
		return false, fmt.Errorf("unknown condition operator %q", cond.Operator)
	}
}

func textConditionHolds(subject string, cond matchingrule.Condition) (bool, error) {
	switch cond.Operator {
	case matchingrule.OperatorEquals:
		return strings.EqualFold(subject, cond.Value), nil
	case matchingrule.OperatorContains:
		return strings.Contains(strings.ToUpper(subject), strings.ToUpper(cond.Value)), nil
	case matchingrule.OperatorRegex:
		re, err := regexp.Compile(cond.Value)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", cond.Value, err)
		}
		return re.MatchString(subject), nil
	}
	return false, fmt.Errorf("unknown text operator %q", cond.Operator)
}

func amountConditionHolds(tx *banktransaction.Transaction, cond matchingrule.Condition) (bool, error) {
	amount := tx.Amount.Abs()
	switch cond.Operator {
	case matchingrule.OperatorGreaterThan:
		if cond.Min == nil {
			return false, fmt.Errorf("gt condition is missing its bound")
		}
		return amount.GreaterThan(*cond.Min), nil
	case matchingrule.OperatorLessThan:
		if cond.Max == nil {
			return false, fmt.Errorf("lt condition is missing its bound")
		}
		return amount.LessThan(*cond.Max), nil
	case matchingrule.OperatorAmountRange:
		if cond.Min == nil || cond.Max == nil {
			return false, fmt.Errorf("amount_range condition is missing a bound")
		}
		return amount.GreaterThanOrEqual(*cond.Min) && amount.LessThanOrEqual(*cond.Max), nil
	}
	return false, fmt.Errorf("unknown amount operator %q", cond.Operator)
}

func extractText(tx *banktransaction.Transaction, field matchingrule.ConditionField) (string, error) {
	switch field {
	case matchingrule.FieldDescription:
		return tx.Description, nil
	case matchingrule.FieldCounterpartyName:
		return tx.CounterpartyName, nil
	case matchingrule.FieldCounterpartyIBAN:
		return tx.CounterpartyIBAN, nil
	case matchingrule.FieldReference:
		// Remittance references arrive embedded in the description for
		// most feeds; external id covers the rest.
		if tx.ExternalID != "" {
			return tx.Description + " " + tx.ExternalID, nil
		}
		return tx.Description, nil
	default:
		return "", fmt.Errorf("unknown condition field %q", field)
	}
}

func validateAction(action matchingrule.Action) error {
	switch action.Kind {
	case matchingrule.ActionMatchInvoice:
		if action.InvoiceID == nil {
			return fmt.Errorf("match_invoice action is missing an invoice id")
		}
	case matchingrule.ActionAssignCustomer:
		if action.CustomerID == nil {
			return fmt.Errorf("assign_customer action is missing a customer id")
		}
	case matchingrule.ActionCategorize:
		if action.Category == "" {
			return fmt.Errorf("categorize action is missing a category")
		}
	case matchingrule.ActionIgnore:
		// no payload
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
	return nil
}
