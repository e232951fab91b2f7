package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// FeedbackRepository implements reconciliation.FeedbackRepository for
// PostgreSQL. The table is append-only; there is no update or delete path.
type FeedbackRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewFeedbackRepository creates a new PostgreSQL feedback repository
func NewFeedbackRepository(logger *slog.Logger, db *persistence.PostgresDB) reconciliation.FeedbackRepository {
	return &FeedbackRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Create appends a feedback verdict
func (r *FeedbackRepository) Create(ctx context.Context, fb *reconciliation.Feedback) error {
	query := `
		INSERT INTO match_feedback (id, company_id, reconciliation_id, verdict, correct_invoice_id, submitted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.querier.Exec(ctx, query,
		fb.ID,
		fb.CompanyID,
		fb.ReconciliationID,
		fb.Verdict,
		fb.CorrectInvoiceID,
		fb.SubmittedBy,
		fb.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create feedback",
			"reconciliation_id", fb.ReconciliationID.String(), "error", err)
		return fmt.Errorf("failed to create feedback: %w", err)
	}

	return nil
}

// ListByCompany pages through a company's feedback, newest first
func (r *FeedbackRepository) ListByCompany(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]*reconciliation.Feedback, error) {
	query := `
		SELECT id, company_id, reconciliation_id, verdict, correct_invoice_id, submitted_by, created_at
		FROM match_feedback
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, companyID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list feedback", "company_id", companyID.String(), "error", err)
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var feedback []*reconciliation.Feedback
	for rows.Next() {
		var fb reconciliation.Feedback
		err := rows.Scan(
			&fb.ID,
			&fb.CompanyID,
			&fb.ReconciliationID,
			&fb.Verdict,
			&fb.CorrectInvoiceID,
			&fb.SubmittedBy,
			&fb.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		feedback = append(feedback, &fb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over feedback: %w", err)
	}

	return feedback, nil
}

// AggregateVerdicts returns the company's verdict counts
func (r *FeedbackRepository) AggregateVerdicts(ctx context.Context, companyID uuid.UUID) (map[shared.FeedbackVerdict]int64, error) {
	query := `
		SELECT verdict, COUNT(*)
		FROM match_feedback
		WHERE company_id = $1
		GROUP BY verdict
	`

	rows, err := r.querier.Query(ctx, query, companyID)
	if err != nil {
		r.logger.Error("Failed to aggregate verdicts", "company_id", companyID.String(), "error", err)
		return nil, fmt.Errorf("failed to aggregate verdicts: %w", err)
	}
	defer rows.Close()

	counts := make(map[shared.FeedbackVerdict]int64)
	for rows.Next() {
		var (
			verdict shared.FeedbackVerdict
			count   int64
		)
		if err := rows.Scan(&verdict, &count); err != nil {
			return nil, fmt.Errorf("failed to scan verdict count: %w", err)
		}
		counts[verdict] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over verdict counts: %w", err)
	}

	return counts, nil
}

// ListCompaniesWithFeedback returns companies with feedback since the
// given time, for the calibration job
func (r *FeedbackRepository) ListCompaniesWithFeedback(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT company_id
		FROM match_feedback
		WHERE created_at >= $1
	`

	rows, err := r.querier.Query(ctx, query, since)
	if err != nil {
		r.logger.Error("Failed to list companies with feedback", "error", err)
		return nil, fmt.Errorf("failed to list companies with feedback: %w", err)
	}
	defer rows.Close()

	var companies []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan company id: %w", err)
		}
		companies = append(companies, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over companies: %w", err)
	}

	return companies, nil
}
