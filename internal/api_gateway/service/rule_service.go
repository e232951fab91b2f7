package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/matchingrule"
)

// RuleServiceImpl implements the RuleService interface
type RuleServiceImpl struct {
	ruleRepo matchingrule.Repository
	logger   *slog.Logger
}

// NewRuleService creates a new matching rule service
func NewRuleService(logger *slog.Logger, ruleRepo matchingrule.Repository) *RuleServiceImpl {
	return &RuleServiceImpl{
		ruleRepo: ruleRepo,
		logger:   logger,
	}
}

// Create validates and stores a new rule. New rules are active immediately;
// the next matching run of any affected transaction picks them up.
func (s *RuleServiceImpl) Create(ctx context.Context, companyID uuid.UUID, name string, priority int, conditions []matchingrule.Condition, actions []matchingrule.Action) (*matchingrule.Rule, error) {
	rule, err := matchingrule.New(companyID, name, priority, conditions, actions)
	if err != nil {
		return nil, err
	}
	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Info("Matching rule created",
		"rule_id", rule.ID.String(),
		"company_id", companyID.String(),
		"name", name,
		"priority", priority,
	)
	return rule, nil
}

func (s *RuleServiceImpl) Get(ctx context.Context, id uuid.UUID) (*matchingrule.Rule, error) {
	return s.ruleRepo.GetByID(ctx, id)
}

func (s *RuleServiceImpl) List(ctx context.Context, companyID uuid.UUID) ([]*matchingrule.Rule, error) {
	return s.ruleRepo.ListByCompany(ctx, companyID)
}

// Update replaces the rule's definition. The same validation as Create
// applies, so a rule can never be updated into an unevaluable state.
func (s *RuleServiceImpl) Update(ctx context.Context, id uuid.UUID, name string, priority int, active bool, conditions []matchingrule.Condition, actions []matchingrule.Action) (*matchingrule.Rule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	validated, err := matchingrule.New(rule.CompanyID, name, priority, conditions, actions)
	if err != nil {
		return nil, err
	}

	rule.Name = validated.Name
	rule.Priority = validated.Priority
	rule.Active = active
	rule.Conditions = validated.Conditions
	rule.Actions = validated.Actions
	rule.UpdatedAt = time.Now()

	if err := s.ruleRepo.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Info("Matching rule updated", "rule_id", rule.ID.String(), "active", active)
	return rule, nil
}

func (s *RuleServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.ruleRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Matching rule deleted", "rule_id", id.String())
	return nil
}
