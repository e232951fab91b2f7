package scoringprofile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Profile holds one company's tuned scoring parameters. Companies without a
// profile score with the configured defaults; the offline calibrator is the
// only writer.
type Profile struct {
	CompanyID            uuid.UUID       `json:"company_id"`
	AmountWeight         float64         `json:"amount_weight"`
	ReferenceWeight      float64         `json:"reference_weight"`
	NameWeight           float64         `json:"name_weight"`
	DateWeight           float64         `json:"date_weight"`
	AutoApproveThreshold decimal.Decimal `json:"auto_approve_threshold"`
	CalibratedAt         time.Time       `json:"calibrated_at"`
}

// Repository defines the scoring profile store contract
type Repository interface {
	GetByCompany(ctx context.Context, companyID uuid.UUID) (*Profile, error)
	Upsert(ctx context.Context, profile *Profile) error
}

// ErrProfileNotFound indicates the company has never been calibrated
type ErrProfileNotFound struct {
	CompanyID uuid.UUID
}

func (e ErrProfileNotFound) Error() string {
	return "scoring profile not found for company: " + e.CompanyID.String()
}
