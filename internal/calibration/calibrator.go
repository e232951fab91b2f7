// Package calibration recomputes per-company scoring weights from operator
// feedback. It runs strictly offline; the matching path only ever reads the
// profiles this package writes.
package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/scoringprofile"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/matching/scoring"
)

const (
	// minFeedbackSample is the minimum verdict count before a company's
	// weights are touched at all.
	minFeedbackSample = 10

	// maxStepPerSignal bounds how far one calibration run may move a
	// single weight, as a fraction of its current value.
	maxStepPerSignal = 0.10

	// feedbackPageSize is how many feedback rows one run inspects
	feedbackPageSize = 500

	// wrongShareForThresholdBump is the wrong-verdict share above which
	// the auto-approve threshold is raised.
	wrongShareForThresholdBump = 0.25
)

var (
	thresholdBump    = decimal.NewFromInt(2)
	thresholdCeiling = decimal.NewFromInt(95)
)

// Calibrator derives updated scoring profiles from feedback verdicts and
// the sub-scores recorded with each reconciliation decision.
type Calibrator struct {
	feedbackRepo reconciliation.FeedbackRepository
	reconRepo    reconciliation.Repository
	profileRepo  scoringprofile.Repository
	defaults     scoring.Config
	logger       *slog.Logger
}

func NewCalibrator(feedbackRepo reconciliation.FeedbackRepository, reconRepo reconciliation.Repository, profileRepo scoringprofile.Repository, defaults scoring.Config, logger *slog.Logger) *Calibrator {
	return &Calibrator{
		feedbackRepo: feedbackRepo,
		reconRepo:    reconRepo,
		profileRepo:  profileRepo,
		defaults:     defaults,
		logger:       logger,
	}
}

// Run calibrates every company that received feedback since the given time
func (c *Calibrator) Run(ctx context.Context, since time.Time) error {
	companies, err := c.feedbackRepo.ListCompaniesWithFeedback(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list companies with feedback: %w", err)
	}
	c.logger.Info("Starting calibration run", "companies", len(companies), "since", since)

	var failed int
	for _, companyID := range companies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.CalibrateCompany(ctx, companyID); err != nil {
			c.logger.Error("Company calibration failed", "company_id", companyID.String(), "error", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("calibration failed for %d of %d companies", failed, len(companies))
	}
	return nil
}

// CalibrateCompany recomputes one company's profile. Returns nil without
// writing when the feedback sample is too small to act on.
func (c *Calibrator) CalibrateCompany(ctx context.Context, companyID uuid.UUID) (*scoringprofile.Profile, error) {
	counts, err := c.feedbackRepo.AggregateVerdicts(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate verdicts for company %s: %w", companyID.String(), err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	if total < minFeedbackSample {
		c.logger.Info("Skipping calibration, feedback sample too small",
			"company_id", companyID.String(), "sample", total)
		return nil, nil
	}

	good, bad, err := c.collectSignalEvidence(ctx, companyID)
	if err != nil {
		return nil, err
	}

	profile := c.currentProfile(ctx, companyID)
	weights := adjustWeights(scoring.Weights{
		Amount:    profile.AmountWeight,
		Reference: profile.ReferenceWeight,
		Name:      profile.NameWeight,
		Date:      profile.DateWeight,
	}, good, bad)

	profile.AmountWeight = weights.Amount
	profile.ReferenceWeight = weights.Reference
	profile.NameWeight = weights.Name
	profile.DateWeight = weights.Date

	wrongShare := float64(counts[shared.FeedbackVerdictWrong]) / float64(total)
	if wrongShare > wrongShareForThresholdBump {
		bumped := profile.AutoApproveThreshold.Add(thresholdBump)
		if bumped.GreaterThan(thresholdCeiling) {
			bumped = thresholdCeiling
		}
		profile.AutoApproveThreshold = bumped
	}
	profile.CalibratedAt = time.Now()

	if err := c.profileRepo.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to store profile for company %s: %w", companyID.String(), err)
	}

	c.logger.Info("Calibrated scoring profile",
		"company_id", companyID.String(),
		"sample", total,
		"wrong_share", wrongShare,
		"amount_weight", profile.AmountWeight,
		"reference_weight", profile.ReferenceWeight,
		"name_weight", profile.NameWeight,
		"date_weight", profile.DateWeight,
		"threshold", profile.AutoApproveThreshold.String(),
	)
	return profile, nil
}

// signalAverages accumulates mean sub-scores over a verdict class
type signalAverages struct {
	sub scoring.SubScores
	n   int
}

func (a *signalAverages) add(s scoring.SubScores) {
	a.sub.Amount += s.Amount
	a.sub.Reference += s.Reference
	a.sub.Name += s.Name
	a.sub.Date += s.Date
	a.n++
}

func (a *signalAverages) mean() scoring.SubScores {
	if a.n == 0 {
		return scoring.SubScores{}
	}
	f := float64(a.n)
	return scoring.SubScores{
		Amount:    a.sub.Amount / f,
		Reference: a.sub.Reference / f,
		Name:      a.sub.Name / f,
		Date:      a.sub.Date / f,
	}
}

// collectSignalEvidence splits the recorded sub-scores of reviewed matches
// into those confirmed correct and those rejected, so the adjustment can
// favor signals that told the two classes apart.
func (c *Calibrator) collectSignalEvidence(ctx context.Context, companyID uuid.UUID) (good, bad scoring.SubScores, err error) {
	feedback, err := c.feedbackRepo.ListByCompany(ctx, companyID, feedbackPageSize, 0)
	if err != nil {
		return good, bad, fmt.Errorf("failed to list feedback for company %s: %w", companyID.String(), err)
	}

	var correct, wrong signalAverages
	for _, fb := range feedback {
		rec, err := c.reconRepo.GetByID(ctx, fb.ReconciliationID)
		if err != nil {
			var notFound reconciliation.ErrReconciliationNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return good, bad, err
		}

		sub, ok := matchedSubScores(rec)
		if !ok {
			continue
		}
		switch fb.Verdict {
		case shared.FeedbackVerdictCorrect:
			correct.add(sub)
		case shared.FeedbackVerdictWrong:
			wrong.add(sub)
		}
	}
	return correct.mean(), wrong.mean(), nil
}

// matchedSubScores recovers the sub-scores of the invoice the decision
// settled on from the stored match details
func matchedSubScores(rec *reconciliation.Reconciliation) (scoring.SubScores, bool) {
	if len(rec.MatchDetails) == 0 {
		return scoring.SubScores{}, false
	}
	var details scoring.Details
	if err := json.Unmarshal(rec.MatchDetails, &details); err != nil || len(details.Ranked) == 0 {
		return scoring.SubScores{}, false
	}

	if rec.InvoiceID != nil {
		for _, cand := range details.Ranked {
			if cand.Invoice != nil && cand.Invoice.ID == *rec.InvoiceID {
				return cand.SubScores, true
			}
		}
	}
	return details.Ranked[0].SubScores, true
}

// adjustWeights nudges each weight proportionally to how much better the
// signal scored on confirmed matches than on rejected ones, each step
// bounded, then renormalizes so the weights sum to 1.
func adjustWeights(current scoring.Weights, good, bad scoring.SubScores) scoring.Weights {
	adjusted := scoring.Weights{
		Amount:    current.Amount * (1 + boundedStep(good.Amount-bad.Amount)),
		Reference: current.Reference * (1 + boundedStep(good.Reference-bad.Reference)),
		Name:      current.Name * (1 + boundedStep(good.Name-bad.Name)),
		Date:      current.Date * (1 + boundedStep(good.Date-bad.Date)),
	}
	return adjusted.Normalized()
}

func boundedStep(gap float64) float64 {
	step := gap * maxStepPerSignal
	if step > maxStepPerSignal {
		return maxStepPerSignal
	}
	if step < -maxStepPerSignal {
		return -maxStepPerSignal
	}
	return step
}

// currentProfile loads the stored profile or seeds one from the defaults
func (c *Calibrator) currentProfile(ctx context.Context, companyID uuid.UUID) *scoringprofile.Profile {
	profile, err := c.profileRepo.GetByCompany(ctx, companyID)
	if err == nil {
		return profile
	}

	var notFound scoringprofile.ErrProfileNotFound
	if !errors.As(err, &notFound) {
		c.logger.Warn("Failed to load scoring profile, seeding from defaults",
			"company_id", companyID.String(), "error", err)
	}

	w := c.defaults.Weights.Normalized()
	return &scoringprofile.Profile{
		CompanyID:            companyID,
		AmountWeight:         w.Amount,
		ReferenceWeight:      w.Reference,
		NameWeight:           w.Name,
		DateWeight:           w.Date,
		AutoApproveThreshold: c.defaults.AutoApproveThreshold,
	}
}
