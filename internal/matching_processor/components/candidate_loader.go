package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/customer"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/matching/scoring"
	"github.com/bank-reconciliation/internal/matching_processor/service"
)

// CandidateLoaderImpl loads open invoices inside the configured date window
// and amount tolerance, plus the customers needed for name scoring
type CandidateLoaderImpl struct {
	invoiceRepo    invoice.Repository
	customerRepo   customer.Repository
	candidateLimit int
	logger         *slog.Logger
}

// NewCandidateLoader creates a new candidate loader
func NewCandidateLoader(invoiceRepo invoice.Repository, customerRepo customer.Repository, candidateLimit int, logger *slog.Logger) service.CandidateLoader {
	return &CandidateLoaderImpl{
		invoiceRepo:    invoiceRepo,
		customerRepo:   customerRepo,
		candidateLimit: candidateLimit,
		logger:         logger,
	}
}

// Load returns the candidate pool for the transaction. Customers that
// cannot be resolved are simply absent from the map; the scorer treats a
// missing customer as a zero name signal.
func (l *CandidateLoaderImpl) Load(ctx context.Context, tx *banktransaction.Transaction, cfg scoring.Config) ([]*invoice.Invoice, map[string]*customer.Customer, error) {
	filter := invoice.CandidateFilter{
		Amount:          tx.Amount.Abs(),
		AmountTolerance: cfg.AmountTolerance,
		DateFrom:        tx.TransactionDate.Add(-cfg.DateWindow),
		DateTo:          tx.TransactionDate.Add(cfg.DateWindow),
		Limit:           l.candidateLimit,
	}

	candidates, err := l.invoiceRepo.ListOpenCandidates(ctx, tx.CompanyID, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load candidate invoices: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	customerIDs := make([]uuid.UUID, 0, len(candidates))
	seen := make(map[uuid.UUID]bool, len(candidates))
	for _, inv := range candidates {
		if !seen[inv.CustomerID] {
			seen[inv.CustomerID] = true
			customerIDs = append(customerIDs, inv.CustomerID)
		}
	}

	byID, err := l.customerRepo.GetByIDs(ctx, customerIDs)
	if err != nil {
		// Name is one signal of four; score without it rather than fail
		l.logger.Warn("Failed to load customers for name scoring",
			"company_id", tx.CompanyID.String(),
			"error", err,
		)
		byID = nil
	}

	customers := make(map[string]*customer.Customer, len(byID))
	for id, c := range byID {
		customers[id.String()] = c
	}

	return candidates, customers, nil
}
