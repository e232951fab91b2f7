package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/scoringprofile"
	"github.com/bank-reconciliation/internal/matching/scoring"
	"github.com/bank-reconciliation/internal/matching_processor/service"
)

// ScoringConfigResolverImpl layers the calibrated company profile over the
// configured defaults
type ScoringConfigResolverImpl struct {
	profileRepo scoringprofile.Repository
	defaults    scoring.Config
	logger      *slog.Logger
}

// NewScoringConfigResolver creates a new resolver
func NewScoringConfigResolver(profileRepo scoringprofile.Repository, defaults scoring.Config, logger *slog.Logger) service.ScoringConfigResolver {
	return &ScoringConfigResolverImpl{
		profileRepo: profileRepo,
		defaults:    defaults,
		logger:      logger,
	}
}

// Resolve returns the company's effective scoring configuration. Companies
// without a calibrated profile score with the defaults.
func (r *ScoringConfigResolverImpl) Resolve(ctx context.Context, companyID uuid.UUID) (scoring.Config, error) {
	profile, err := r.profileRepo.GetByCompany(ctx, companyID)
	if err != nil {
		var notFound scoringprofile.ErrProfileNotFound
		if errors.As(err, &notFound) {
			return r.defaults, nil
		}
		return scoring.Config{}, fmt.Errorf("failed to resolve scoring profile: %w", err)
	}

	cfg := r.defaults
	cfg.Weights = scoring.Weights{
		Amount:    profile.AmountWeight,
		Reference: profile.ReferenceWeight,
		Name:      profile.NameWeight,
		Date:      profile.DateWeight,
	}.Normalized()
	if profile.AutoApproveThreshold.GreaterThan(decimal.Zero) {
		cfg.AutoApproveThreshold = profile.AutoApproveThreshold
	}

	r.logger.Debug("Resolved calibrated scoring profile",
		"company_id", companyID.String(),
		"threshold", cfg.AutoApproveThreshold.String(),
	)
	return cfg, nil
}
