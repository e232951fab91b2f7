package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/domain/scoringprofile"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// ScoringProfileRepository implements scoringprofile.Repository for
// PostgreSQL. The matching processor reads profiles; the calibrator writes
// them.
type ScoringProfileRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewScoringProfileRepository creates a new PostgreSQL scoring profile repository
func NewScoringProfileRepository(logger *slog.Logger, db *persistence.PostgresDB) scoringprofile.Repository {
	return &ScoringProfileRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// GetByCompany retrieves a company's calibrated scoring profile
func (r *ScoringProfileRepository) GetByCompany(ctx context.Context, companyID uuid.UUID) (*scoringprofile.Profile, error) {
	query := `
		SELECT company_id, amount_weight, reference_weight, name_weight, date_weight,
			auto_approve_threshold, calibrated_at
		FROM company_scoring_weights
		WHERE company_id = $1
	`

	var p scoringprofile.Profile
	err := r.querier.QueryRow(ctx, query, companyID).Scan(
		&p.CompanyID,
		&p.AmountWeight,
		&p.ReferenceWeight,
		&p.NameWeight,
		&p.DateWeight,
		&p.AutoApproveThreshold,
		&p.CalibratedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scoringprofile.ErrProfileNotFound{CompanyID: companyID}
		}
		r.logger.Error("Failed to get scoring profile", "company_id", companyID.String(), "error", err)
		return nil, fmt.Errorf("failed to get scoring profile: %w", err)
	}

	return &p, nil
}

// Upsert writes a company's profile, replacing any previous calibration
func (r *ScoringProfileRepository) Upsert(ctx context.Context, p *scoringprofile.Profile) error {
	query := `
		INSERT INTO company_scoring_weights
			(company_id, amount_weight, reference_weight, name_weight, date_weight, auto_approve_threshold, calibrated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id) DO UPDATE SET
			amount_weight = EXCLUDED.amount_weight,
			reference_weight = EXCLUDED.reference_weight,
			name_weight = EXCLUDED.name_weight,
			date_weight = EXCLUDED.date_weight,
			auto_approve_threshold = EXCLUDED.auto_approve_threshold,
			calibrated_at = EXCLUDED.calibrated_at
	`

	_, err := r.querier.Exec(ctx, query,
		p.CompanyID,
		p.AmountWeight,
		p.ReferenceWeight,
		p.NameWeight,
		p.DateWeight,
		p.AutoApproveThreshold,
		p.CalibratedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert scoring profile", "company_id", p.CompanyID.String(), "error", err)
		return fmt.Errorf("failed to upsert scoring profile: %w", err)
	}

	return nil
}
