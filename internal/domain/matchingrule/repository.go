package matchingrule

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines matching rule persistence operations
type Repository interface {
	Create(ctx context.Context, rule *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)

	// ListActive returns the company's active rules sorted ascending by
	// priority, the order the engine evaluates them in.
	ListActive(ctx context.Context, companyID uuid.UUID) ([]*Rule, error)

	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*Rule, error)
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ErrRuleNotFound indicates a missing matching rule
type ErrRuleNotFound struct {
	RuleID uuid.UUID
}

func (e ErrRuleNotFound) Error() string {
	return "matching rule not found: " + e.RuleID.String()
}
