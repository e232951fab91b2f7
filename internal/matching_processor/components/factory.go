package components

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/config"
	"github.com/bank-reconciliation/internal/data/postgres"
	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/matching/rules"
	"github.com/bank-reconciliation/internal/matching/scoring"
	"github.com/bank-reconciliation/internal/matching_processor/service"
	"github.com/bank-reconciliation/internal/platform/persistence"
	"github.com/bank-reconciliation/internal/settlement"
)

// ScoringConfigFromMatching translates the application configuration into
// the scorer's defaults. Company profiles overlay these per company.
func ScoringConfigFromMatching(cfg config.MatchingConfig) scoring.Config {
	return scoring.Config{
		Weights: scoring.Weights{
			Amount:    cfg.AmountWeight,
			Reference: cfg.ReferenceWeight,
			Name:      cfg.NameWeight,
			Date:      cfg.DateWeight,
		}.Normalized(),
		AutoApproveThreshold: decimal.NewFromFloat(cfg.AutoApproveThreshold),
		TieEpsilon:           decimal.NewFromFloat(cfg.TieEpsilon),
		AmountTolerance:      decimal.NewFromFloat(cfg.AmountTolerance),
		DateWindow:           time.Duration(cfg.DateWindowDays) * 24 * time.Hour,
		AllowOverpayment:     cfg.AllowOverpayment,
	}
}

// CreateMatchService creates a new MatchService with all its dependencies.
func CreateMatchService(
	pgDB *persistence.PostgresDB,
	auditRepo audit.Repository,
	logger *slog.Logger,
	cfg *config.Config,
) service.MatchService {
	txRepo := postgres.NewBankTransactionRepository(logger, pgDB)
	ruleRepo := postgres.NewMatchingRuleRepository(logger, pgDB)
	invoiceRepo := postgres.NewInvoiceRepository(logger, pgDB)
	customerRepo := postgres.NewCustomerRepository(logger, pgDB)
	paymentRepo := postgres.NewPaymentRepository(logger, pgDB)
	reconRepo := postgres.NewReconciliationRepository(logger, pgDB)
	profileRepo := postgres.NewScoringProfileRepository(logger, pgDB)

	defaults := ScoringConfigFromMatching(cfg.Matching)

	configResolver := NewScoringConfigResolver(profileRepo, defaults, logger)
	candidateLoader := NewCandidateLoader(invoiceRepo, customerRepo, cfg.Matching.CandidateLimit, logger)
	recorder := NewReconRecorder(pgDB, reconRepo, logger)
	poster := settlement.NewPostingService(pgDB, invoiceRepo, paymentRepo, reconRepo, logger)
	auditTrail := NewAuditRecorder(auditRepo, logger)

	baseService := service.NewMatchService(
		txRepo,
		ruleRepo,
		invoiceRepo,
		reconRepo,
		rules.NewEngine(logger),
		scoring.NewScorer(),
		configResolver,
		candidateLoader,
		recorder,
		poster,
		auditTrail,
		logger,
	)

	workerPoolService, err := service.NewWorkerPoolMatchService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)

	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool match service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
