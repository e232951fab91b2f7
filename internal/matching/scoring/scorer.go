// Package scoring ranks open invoices as settlement candidates for a bank
// transaction using a weighted multi-signal confidence model. Scoring is
// pure; candidate fetch and persistence live with the caller.
package scoring

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/customer"
	"github.com/bank-reconciliation/internal/domain/invoice"
)

// referencePartialDigits is how many trailing digits of an invoice number
// still earn partial reference credit when the full number is absent.
const referencePartialDigits = 4

// SubScores records each signal's normalized [0,1] contribution. It is
// preserved verbatim in match_details for audit and explainability.
type SubScores struct {
	Amount    float64 `json:"amount"`
	Reference float64 `json:"reference"`
	Name      float64 `json:"name"`
	Date      float64 `json:"date"`
}

// RankedCandidate is one scored invoice
type RankedCandidate struct {
	Invoice    *invoice.Invoice `json:"invoice"`
	Confidence decimal.Decimal  `json:"confidence"` // 0-100
	SubScores  SubScores        `json:"sub_scores"`
}

// Details is the structured explanation persisted with every decision
type Details struct {
	Weights        Weights           `json:"weights"`
	CandidateCount int               `json:"candidate_count"`
	Ranked         []RankedCandidate `json:"ranked"`
}

// Result is the ranked outcome of scoring one transaction
type Result struct {
	Ranked []RankedCandidate
	Config Config
}

// Scorer computes weighted confidence scores
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// Score ranks the candidate invoices for the transaction. Candidates are
// expected pre-filtered by the repository to the config's date window and
// amount tolerance; invoices whose amount sub-score still lands at zero are
// dropped here as well. Customers supplies display names for the
// counterparty signal and may be missing entries.
func (s *Scorer) Score(tx *banktransaction.Transaction, candidates []*invoice.Invoice, customers map[string]*customer.Customer, cfg Config) *Result {
	weights := cfg.Weights.Normalized()
	amount := tx.Amount.Abs()

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, inv := range candidates {
		if !inv.Open() {
			continue
		}

		sub := SubScores{
			Amount:    amountScore(amount, inv.DueAmount, cfg.AmountTolerance),
			Reference: referenceScore(tx.Description, inv),
			Date:      dateScore(tx.TransactionDate, inv.DueDate, cfg.DateWindow),
		}
		if c, ok := customers[inv.CustomerID.String()]; ok {
			sub.Name = nameSimilarity(tx.CounterpartyName, c.DisplayName)
		}

		combined := weights.Amount*sub.Amount +
			weights.Reference*sub.Reference +
			weights.Name*sub.Name +
			weights.Date*sub.Date

		ranked = append(ranked, RankedCandidate{
			Invoice:    inv,
			Confidence: decimal.NewFromFloat(combined * 100).Round(2),
			SubScores:  sub,
		})
	}

	// Rank by confidence descending; exact ties prefer the earlier due
	// date so the oldest obligation settles first.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence.Equal(ranked[j].Confidence) {
			return ranked[i].Invoice.DueDate.Before(ranked[j].Invoice.DueDate)
		}
		return ranked[i].Confidence.GreaterThan(ranked[j].Confidence)
	})

	return &Result{Ranked: ranked, Config: cfg}
}

// Top returns the best candidate, or nil when the pool was empty
func (r *Result) Top() *RankedCandidate {
	if len(r.Ranked) == 0 {
		return nil
	}
	return &r.Ranked[0]
}

// IsAmbiguous reports whether a second candidate scores within the tie
// epsilon of the top one. Ambiguous results are never auto-approved; they
// surface all tied candidates to manual review.
func (r *Result) IsAmbiguous() bool {
	if len(r.Ranked) < 2 {
		return false
	}
	gap := r.Ranked[0].Confidence.Sub(r.Ranked[1].Confidence)
	return gap.LessThanOrEqual(r.Config.TieEpsilon)
}

// AutoApprovable reports whether the top candidate clears the auto-approve
// bar: confidence at or above the threshold, uniquely best, and the
// transaction amount covered exactly by the invoice's due amount.
func (r *Result) AutoApprovable(txAmount decimal.Decimal) bool {
	top := r.Top()
	if top == nil || r.IsAmbiguous() {
		return false
	}
	if top.Confidence.LessThan(r.Config.AutoApproveThreshold) {
		return false
	}
	return txAmount.Abs().Equal(top.Invoice.DueAmount)
}

// Details builds the audit payload for the result
func (r *Result) Details() Details {
	return Details{
		Weights:        r.Config.Weights.Normalized(),
		CandidateCount: len(r.Ranked),
		Ranked:         r.Ranked,
	}
}

// amountScore is 1 for an exact match, decays with the relative difference
// for near-matches (the basis for partial-settlement suggestions), and is 0
// beyond the relative tolerance.
func amountScore(txAmount, dueAmount, tolerance decimal.Decimal) float64 {
	if dueAmount.Sign() <= 0 {
		return 0
	}
	if txAmount.Equal(dueAmount) {
		return 1
	}
	relDiff := txAmount.Sub(dueAmount).Abs().Div(dueAmount)
	if relDiff.GreaterThan(tolerance) {
		return 0
	}
	score, _ := decimal.NewFromInt(1).Sub(relDiff).Float64()
	return score
}

// referenceScore is 1 when the normalized invoice number (or its sequence
// number) appears contiguously in the remittance text, 0.5 for a trailing
// digits match, 0 otherwise.
func referenceScore(description string, inv *invoice.Invoice) float64 {
	desc := normalizeReference(description)
	if desc == "" {
		return 0
	}

	number := normalizeReference(inv.Number)
	if number != "" && strings.Contains(desc, number) {
		return 1
	}
	if inv.SequenceNumber > 0 {
		if seq := strconv.FormatInt(inv.SequenceNumber, 10); strings.Contains(desc, seq) {
			return 1
		}
	}

	if tail := lastDigits(number, referencePartialDigits); len(tail) == referencePartialDigits && strings.Contains(desc, tail) {
		return 0.5
	}
	return 0
}

// dateScore decays linearly from 1 at zero distance to 0 at the window
// edge. Candidates outside the window never reach the scorer; the clamp
// only guards rounding at the boundary.
func dateScore(txDate, dueDate time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	diff := txDate.Sub(dueDate)
	if diff < 0 {
		diff = -diff
	}
	score := 1 - float64(diff)/float64(window)
	if score < 0 {
		return 0
	}
	return score
}
