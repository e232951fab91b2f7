package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

// Weights combine the four sub-scores into one confidence value. They are
// company-tunable: defaults come from configuration, and the offline
// calibrator overwrites them per company from feedback aggregates.
type Weights struct {
	Amount    float64 `json:"amount"`
	Reference float64 `json:"reference"`
	Name      float64 `json:"name"`
	Date      float64 `json:"date"`
}

// Normalized returns the weights scaled so they sum to 1. Degenerate
// all-zero weights fall back to the defaults.
func (w Weights) Normalized() Weights {
	sum := w.Amount + w.Reference + w.Name + w.Date
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Amount:    w.Amount / sum,
		Reference: w.Reference / sum,
		Name:      w.Name / sum,
		Date:      w.Date / sum,
	}
}

func DefaultWeights() Weights {
	return Weights{Amount: 0.35, Reference: 0.30, Name: 0.20, Date: 0.15}
}

// Config carries a single company's scoring tunables. It is passed into the
// scorer per call; there is no global mutable scoring state.
type Config struct {
	Weights Weights

	// AutoApproveThreshold is the minimum confidence (0-100) at which a
	// unique best candidate is matched without human review.
	AutoApproveThreshold decimal.Decimal

	// TieEpsilon is the confidence band within which two candidates count
	// as tied; ties always land in the manual queue.
	TieEpsilon decimal.Decimal

	// AmountTolerance is the relative difference beyond which the amount
	// sub-score is zero and the invoice drops out of candidacy.
	AmountTolerance decimal.Decimal

	// DateWindow bounds candidacy around the transaction date; invoices
	// due outside it are excluded entirely, not scored zero.
	DateWindow time.Duration

	// AllowOverpayment permits split allocations above an invoice's
	// remaining due amount.
	AllowOverpayment bool
}

func DefaultConfig() Config {
	return Config{
		Weights:              DefaultWeights(),
		AutoApproveThreshold: decimal.NewFromInt(85),
		TieEpsilon:           decimal.NewFromInt(2),
		AmountTolerance:      decimal.NewFromFloat(0.20),
		DateWindow:           30 * 24 * time.Hour,
	}
}
