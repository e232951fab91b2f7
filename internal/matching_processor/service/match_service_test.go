package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/customer"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/domain/matchingrule"
	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/matching/rules"
	"github.com/bank-reconciliation/internal/matching/scoring"
)

// MockTransactionRepo mocks banktransaction.Repository
type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) Create(ctx context.Context, tx *banktransaction.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*banktransaction.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*banktransaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) GetByFingerprint(ctx context.Context, companyID uuid.UUID, fingerprint string) (*banktransaction.Transaction, error) {
	args := m.Called(ctx, companyID, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*banktransaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) UpdateProcessingStatus(ctx context.Context, id uuid.UUID, status shared.ProcessingStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockTransactionRepo) UpdateReconciliationStatus(ctx context.Context, id uuid.UUID, status shared.TransactionReconciliationStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockTransactionRepo) ListByImportBatch(ctx context.Context, batchID uuid.UUID, limit, offset int) ([]*banktransaction.Transaction, error) {
	args := m.Called(ctx, batchID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*banktransaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) WithTx(tx pgx.Tx) banktransaction.Repository {
	args := m.Called(tx)
	return args.Get(0).(banktransaction.Repository)
}

// MockRuleRepo mocks matchingrule.Repository
type MockRuleRepo struct {
	mock.Mock
}

func (m *MockRuleRepo) Create(ctx context.Context, rule *matchingrule.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*matchingrule.Rule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*matchingrule.Rule), args.Error(1)
}

func (m *MockRuleRepo) ListActive(ctx context.Context, companyID uuid.UUID) ([]*matchingrule.Rule, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*matchingrule.Rule), args.Error(1)
}

func (m *MockRuleRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*matchingrule.Rule, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*matchingrule.Rule), args.Error(1)
}

func (m *MockRuleRepo) Update(ctx context.Context, rule *matchingrule.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockInvoiceRepo mocks invoice.Repository
type MockInvoiceRepo struct {
	mock.Mock
}

func (m *MockInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepo) GetByNumber(ctx context.Context, companyID uuid.UUID, number string) (*invoice.Invoice, error) {
	args := m.Called(ctx, companyID, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepo) ListOpenCandidates(ctx context.Context, companyID uuid.UUID, filter invoice.CandidateFilter) ([]*invoice.Invoice, error) {
	args := m.Called(ctx, companyID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepo) LockForPosting(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepo) ApplyPayment(ctx context.Context, inv *invoice.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvoiceRepo) WithTx(tx pgx.Tx) invoice.Repository {
	args := m.Called(tx)
	return args.Get(0).(invoice.Repository)
}

// MockReconRepo mocks reconciliation.Repository
type MockReconRepo struct {
	mock.Mock
}

func (m *MockReconRepo) Create(ctx context.Context, rec *reconciliation.Reconciliation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockReconRepo) GetByID(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Reconciliation), args.Error(1)
}

func (m *MockReconRepo) GetActiveByTransaction(ctx context.Context, transactionID uuid.UUID) (*reconciliation.Reconciliation, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Reconciliation), args.Error(1)
}

func (m *MockReconRepo) GetByPayment(ctx context.Context, paymentID uuid.UUID) (*reconciliation.Reconciliation, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Reconciliation), args.Error(1)
}

func (m *MockReconRepo) Update(ctx context.Context, rec *reconciliation.Reconciliation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockReconRepo) Supersede(ctx context.Context, old, replacement *reconciliation.Reconciliation) error {
	args := m.Called(ctx, old, replacement)
	return args.Error(0)
}

func (m *MockReconRepo) ListByStatus(ctx context.Context, companyID uuid.UUID, status shared.ReconciliationStatus, limit, offset int) ([]*reconciliation.Reconciliation, error) {
	args := m.Called(ctx, companyID, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reconciliation.Reconciliation), args.Error(1)
}

func (m *MockReconRepo) CountByStatus(ctx context.Context, companyID uuid.UUID, status shared.ReconciliationStatus) (int64, error) {
	args := m.Called(ctx, companyID, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReconRepo) ReplaceSplits(ctx context.Context, reconciliationID uuid.UUID, splits []*reconciliation.Split) error {
	args := m.Called(ctx, reconciliationID, splits)
	return args.Error(0)
}

func (m *MockReconRepo) GetSplits(ctx context.Context, reconciliationID uuid.UUID) ([]*reconciliation.Split, error) {
	args := m.Called(ctx, reconciliationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reconciliation.Split), args.Error(1)
}

func (m *MockReconRepo) SetSplitPayment(ctx context.Context, splitID, paymentID uuid.UUID) error {
	args := m.Called(ctx, splitID, paymentID)
	return args.Error(0)
}

func (m *MockReconRepo) WithTx(tx pgx.Tx) reconciliation.Repository {
	args := m.Called(tx)
	return args.Get(0).(reconciliation.Repository)
}

// MockConfigResolver mocks ScoringConfigResolver
type MockConfigResolver struct {
	mock.Mock
}

func (m *MockConfigResolver) Resolve(ctx context.Context, companyID uuid.UUID) (scoring.Config, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).(scoring.Config), args.Error(1)
}

// MockCandidateLoader mocks CandidateLoader
type MockCandidateLoader struct {
	mock.Mock
}

func (m *MockCandidateLoader) Load(ctx context.Context, tx *banktransaction.Transaction, cfg scoring.Config) ([]*invoice.Invoice, map[string]*customer.Customer, error) {
	args := m.Called(ctx, tx, cfg)
	var invoices []*invoice.Invoice
	if args.Get(0) != nil {
		invoices = args.Get(0).([]*invoice.Invoice)
	}
	var customers map[string]*customer.Customer
	if args.Get(1) != nil {
		customers = args.Get(1).(map[string]*customer.Customer)
	}
	return invoices, customers, args.Error(2)
}

// MockRecorder mocks ReconciliationRecorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, rec *reconciliation.Reconciliation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// MockPoster mocks Poster
type MockPoster struct {
	mock.Mock
}

func (m *MockPoster) PostReconciliation(ctx context.Context, tx *banktransaction.Transaction, rec *reconciliation.Reconciliation) ([]*payment.Payment, error) {
	args := m.Called(ctx, tx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Payment), args.Error(1)
}

// MockAuditTrail mocks AuditTrail
type MockAuditTrail struct {
	mock.Mock
}

func (m *MockAuditTrail) Record(ctx context.Context, companyID, transactionID uuid.UUID, reconciliationID *uuid.UUID, event audit.Event, details any) {
	m.Called(ctx, companyID, transactionID, reconciliationID, event, details)
}

type matchServiceMocks struct {
	txRepo      *MockTransactionRepo
	ruleRepo    *MockRuleRepo
	invoiceRepo *MockInvoiceRepo
	reconRepo   *MockReconRepo
	resolver    *MockConfigResolver
	loader      *MockCandidateLoader
	recorder    *MockRecorder
	poster      *MockPoster
	auditTrail  *MockAuditTrail
}

func newMatchService(t *testing.T) (MatchService, *matchServiceMocks) {
	t.Helper()
	logger := slog.Default()
	m := &matchServiceMocks{
		txRepo:      &MockTransactionRepo{},
		ruleRepo:    &MockRuleRepo{},
		invoiceRepo: &MockInvoiceRepo{},
		reconRepo:   &MockReconRepo{},
		resolver:    &MockConfigResolver{},
		loader:      &MockCandidateLoader{},
		recorder:    &MockRecorder{},
		poster:      &MockPoster{},
		auditTrail:  &MockAuditTrail{},
	}
	svc := NewMatchService(
		m.txRepo,
		m.ruleRepo,
		m.invoiceRepo,
		m.reconRepo,
		rules.NewEngine(logger),
		scoring.NewScorer(),
		m.resolver,
		m.loader,
		m.recorder,
		m.poster,
		m.auditTrail,
		logger,
	)
	return svc, m
}

func (m *matchServiceMocks) assertExpectations(t *testing.T) {
	t.Helper()
	m.txRepo.AssertExpectations(t)
	m.ruleRepo.AssertExpectations(t)
	m.invoiceRepo.AssertExpectations(t)
	m.reconRepo.AssertExpectations(t)
	m.resolver.AssertExpectations(t)
	m.loader.AssertExpectations(t)
	m.recorder.AssertExpectations(t)
	m.poster.AssertExpectations(t)
	m.auditTrail.AssertExpectations(t)
}

func sampleRequest(tx *banktransaction.Transaction, reason shared.MatchReason) *shared.MatchRequest {
	return &shared.MatchRequest{
		TransactionID: tx.ID,
		CompanyID:     tx.CompanyID,
		BankAccountID: tx.BankAccountID,
		Reason:        reason,
		CorrelationID: "corr1",
		Timestamp:     time.Now(),
	}
}

func sampleMatchTransaction(t *testing.T, amount string) *banktransaction.Transaction {
	t.Helper()
	tx, err := banktransaction.New(
		uuid.New(),
		uuid.New(),
		decimal.RequireFromString(amount),
		"EUR",
		time.Now(),
		time.Now(),
		"Payment INV-2024-0042",
		"ACME GmbH",
		"DE89370400440532013000",
		"ext-1",
	)
	assert.NoError(t, err)
	return tx
}

func sampleCandidate(companyID uuid.UUID, due string) *invoice.Invoice {
	return &invoice.Invoice{
		ID:         uuid.New(),
		CompanyID:  companyID,
		CustomerID: uuid.New(),
		Number:     "INV-2024-0042",
		DueAmount:  decimal.RequireFromString(due),
		Currency:   "EUR",
		DueDate:    time.Now(),
		Status:     invoice.StatusOpen,
	}
}

// amountOnlyConfig isolates the amount signal so test scenarios control
// confidence through the due amount alone.
func amountOnlyConfig(threshold int64) scoring.Config {
	return scoring.Config{
		Weights:              scoring.Weights{Amount: 1},
		AutoApproveThreshold: decimal.NewFromInt(threshold),
		TieEpsilon:           decimal.NewFromInt(2),
		AmountTolerance:      decimal.NewFromFloat(0.2),
		DateWindow:           30 * 24 * time.Hour,
	}
}

func TestProcessMatchRequest_TransactionLookup(t *testing.T) {
	t.Run("unknown transaction is acknowledged", func(t *testing.T) {
		svc, m := newMatchService(t)
		txID := uuid.New()
		m.txRepo.On("GetByID", mock.Anything, txID).
			Return(nil, banktransaction.ErrTransactionNotFound{TransactionID: txID}).Once()

		err := svc.ProcessMatchRequest(context.Background(), &shared.MatchRequest{
			TransactionID: txID,
			CompanyID:     uuid.New(),
			Reason:        shared.MatchReasonIngested,
		})

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("lookup failure propagates for retry", func(t *testing.T) {
		svc, m := newMatchService(t)
		txID := uuid.New()
		m.txRepo.On("GetByID", mock.Anything, txID).Return(nil, errors.New("db down")).Once()

		err := svc.ProcessMatchRequest(context.Background(), &shared.MatchRequest{
			TransactionID: txID,
			Reason:        shared.MatchReasonIngested,
		})

		assert.Error(t, err)
		m.assertExpectations(t)
	})

	t.Run("duplicate transaction is skipped", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "100.00")
		tx.IsDuplicate = true
		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()

		err := svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})
}

func TestProcessMatchRequest_Idempotency(t *testing.T) {
	t.Run("redelivered ingest request is acknowledged", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "100.00")
		active := reconciliation.New(tx.CompanyID, tx.ID)

		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).Return(active, nil).Once()

		err := svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("terminal reconciliation blocks re-evaluation", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "100.00")
		active := reconciliation.New(tx.CompanyID, tx.ID)
		confidence := decimal.NewFromInt(95)
		assert.NoError(t, active.MarkMatched(uuid.New(), shared.MatchTypeAuto, &confidence, nil))

		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).Return(active, nil).Once()

		err := svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonReevaluate))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})
}

func TestProcessMatchRequest_Rules(t *testing.T) {
	t.Run("ignore rule concludes the transaction", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "-4.90")
		tx.Description = "Account maintenance FEE"

		rule, err := matchingrule.New(tx.CompanyID, "ignore fees", 10,
			[]matchingrule.Condition{{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "FEE"}},
			[]matchingrule.Action{{Kind: matchingrule.ActionIgnore}},
		)
		assert.NoError(t, err)

		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).
			Return(nil, reconciliation.ErrReconciliationNotFound{ID: tx.ID}).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessing).Return(nil).Once()
		m.ruleRepo.On("ListActive", mock.Anything, tx.CompanyID).Return([]*matchingrule.Rule{rule}, nil).Once()
		m.recorder.On("Record", mock.Anything, mock.MatchedBy(func(rec *reconciliation.Reconciliation) bool {
			return rec.Status == shared.ReconciliationStatusIgnored && rec.MatchType == shared.MatchTypeRule
		})).Return(nil).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventIgnored, mock.Anything).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessed).Return(nil).Once()

		err = svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("invoice rule settles against the pinned invoice", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "250.00")
		inv := sampleCandidate(tx.CompanyID, "250.00")

		rule, err := matchingrule.New(tx.CompanyID, "pin rent", 5,
			[]matchingrule.Condition{{Field: matchingrule.FieldCounterpartyName, Operator: matchingrule.OperatorEquals, Value: "acme gmbh"}},
			[]matchingrule.Action{{Kind: matchingrule.ActionMatchInvoice, InvoiceID: &inv.ID}},
		)
		assert.NoError(t, err)

		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).
			Return(nil, reconciliation.ErrReconciliationNotFound{ID: tx.ID}).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessing).Return(nil).Once()
		m.ruleRepo.On("ListActive", mock.Anything, tx.CompanyID).Return([]*matchingrule.Rule{rule}, nil).Once()
		m.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil).Once()
		m.recorder.On("Record", mock.Anything, mock.MatchedBy(func(rec *reconciliation.Reconciliation) bool {
			return rec.MatchType == shared.MatchTypeRule &&
				rec.InvoiceID != nil && *rec.InvoiceID == inv.ID &&
				rec.Confidence != nil && rec.Confidence.Equal(decimal.NewFromInt(100))
		})).Return(nil).Once()
		m.poster.On("PostReconciliation", mock.Anything, tx, mock.Anything).
			Run(func(args mock.Arguments) {
				rec := args.Get(2).(*reconciliation.Reconciliation)
				rec.Status = shared.ReconciliationStatusMatched
			}).
			Return([]*payment.Payment{{}}, nil).Once()
		m.txRepo.On("UpdateReconciliationStatus", mock.Anything, tx.ID, shared.TransactionReconciled).Return(nil).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessed).Return(nil).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventRuleMatched, mock.Anything).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventPosted, mock.Anything).Once()

		err = svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("rule with stale invoice falls back to scoring", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "250.00")
		staleID := uuid.New()

		rule, err := matchingrule.New(tx.CompanyID, "pin rent", 5,
			[]matchingrule.Condition{{Field: matchingrule.FieldCounterpartyName, Operator: matchingrule.OperatorEquals, Value: "acme gmbh"}},
			[]matchingrule.Action{{Kind: matchingrule.ActionMatchInvoice, InvoiceID: &staleID}},
		)
		assert.NoError(t, err)

		cfg := amountOnlyConfig(99)
		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).
			Return(nil, reconciliation.ErrReconciliationNotFound{ID: tx.ID}).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessing).Return(nil).Once()
		m.ruleRepo.On("ListActive", mock.Anything, tx.CompanyID).Return([]*matchingrule.Rule{rule}, nil).Once()
		m.invoiceRepo.On("GetByID", mock.Anything, staleID).
			Return(nil, invoice.ErrInvoiceNotFound{InvoiceID: staleID}).Once()
		m.resolver.On("Resolve", mock.Anything, tx.CompanyID).Return(cfg, nil).Once()
		m.loader.On("Load", mock.Anything, tx, cfg).Return(nil, nil, nil).Once()
		m.recorder.On("Record", mock.Anything, mock.MatchedBy(func(rec *reconciliation.Reconciliation) bool {
			return rec.Status == shared.ReconciliationStatusManual && len(rec.Candidates) == 0
		})).Return(nil).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventManualReview, mock.Anything).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessed).Return(nil).Once()

		err = svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})
}

func TestProcessMatchRequest_Scoring(t *testing.T) {
	t.Run("high confidence match is auto approved and posted", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "100.00")
		inv := sampleCandidate(tx.CompanyID, "100.00")
		cfg := amountOnlyConfig(90)

		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).
			Return(nil, reconciliation.ErrReconciliationNotFound{ID: tx.ID}).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessing).Return(nil).Once()
		m.ruleRepo.On("ListActive", mock.Anything, tx.CompanyID).Return([]*matchingrule.Rule{}, nil).Once()
		m.resolver.On("Resolve", mock.Anything, tx.CompanyID).Return(cfg, nil).Once()
		m.loader.On("Load", mock.Anything, tx, cfg).Return([]*invoice.Invoice{inv}, nil, nil).Once()
		m.recorder.On("Record", mock.Anything, mock.MatchedBy(func(rec *reconciliation.Reconciliation) bool {
			return rec.Status == shared.ReconciliationStatusPending &&
				rec.MatchType == shared.MatchTypeAuto &&
				rec.InvoiceID != nil && *rec.InvoiceID == inv.ID
		})).Return(nil).Once()
		m.poster.On("PostReconciliation", mock.Anything, tx, mock.Anything).
			Run(func(args mock.Arguments) {
				rec := args.Get(2).(*reconciliation.Reconciliation)
				rec.Status = shared.ReconciliationStatusMatched
			}).
			Return([]*payment.Payment{{}}, nil).Once()
		m.txRepo.On("UpdateReconciliationStatus", mock.Anything, tx.ID, shared.TransactionReconciled).Return(nil).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessed).Return(nil).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventAutoMatched, mock.Anything).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventPosted, mock.Anything).Once()

		err := svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("low confidence goes to manual review with candidates", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "100.00")
		inv := sampleCandidate(tx.CompanyID, "110.00")
		cfg := amountOnlyConfig(99)

		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).
			Return(nil, reconciliation.ErrReconciliationNotFound{ID: tx.ID}).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessing).Return(nil).Once()
		m.ruleRepo.On("ListActive", mock.Anything, tx.CompanyID).Return([]*matchingrule.Rule{}, nil).Once()
		m.resolver.On("Resolve", mock.Anything, tx.CompanyID).Return(cfg, nil).Once()
		m.loader.On("Load", mock.Anything, tx, cfg).Return([]*invoice.Invoice{inv}, nil, nil).Once()
		m.recorder.On("Record", mock.Anything, mock.MatchedBy(func(rec *reconciliation.Reconciliation) bool {
			return rec.Status == shared.ReconciliationStatusManual &&
				len(rec.Candidates) == 1 &&
				rec.Candidates[0].InvoiceID == inv.ID
		})).Return(nil).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventManualReview, mock.Anything).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessed).Return(nil).Once()

		err := svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("posting failure is acknowledged after parking for review", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "100.00")
		inv := sampleCandidate(tx.CompanyID, "100.00")
		cfg := amountOnlyConfig(90)

		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).
			Return(nil, reconciliation.ErrReconciliationNotFound{ID: tx.ID}).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessing).Return(nil).Once()
		m.ruleRepo.On("ListActive", mock.Anything, tx.CompanyID).Return([]*matchingrule.Rule{}, nil).Once()
		m.resolver.On("Resolve", mock.Anything, tx.CompanyID).Return(cfg, nil).Once()
		m.loader.On("Load", mock.Anything, tx, cfg).Return([]*invoice.Invoice{inv}, nil, nil).Once()
		m.recorder.On("Record", mock.Anything, mock.Anything).Return(nil).Once()
		m.poster.On("PostReconciliation", mock.Anything, tx, mock.Anything).
			Return(nil, errors.New("currency mismatch")).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessed).Return(nil).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventAutoMatched, mock.Anything).Once()
		m.auditTrail.On("Record", mock.Anything, tx.CompanyID, tx.ID, mock.Anything, audit.EventPostingFailed, mock.Anything).Once()

		err := svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("recorder failure marks processing failed", func(t *testing.T) {
		svc, m := newMatchService(t)
		tx := sampleMatchTransaction(t, "100.00")
		cfg := amountOnlyConfig(99)

		m.txRepo.On("GetByID", mock.Anything, tx.ID).Return(tx, nil).Once()
		m.reconRepo.On("GetActiveByTransaction", mock.Anything, tx.ID).
			Return(nil, reconciliation.ErrReconciliationNotFound{ID: tx.ID}).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusProcessing).Return(nil).Once()
		m.ruleRepo.On("ListActive", mock.Anything, tx.CompanyID).Return([]*matchingrule.Rule{}, nil).Once()
		m.resolver.On("Resolve", mock.Anything, tx.CompanyID).Return(cfg, nil).Once()
		m.loader.On("Load", mock.Anything, tx, cfg).Return(nil, nil, nil).Once()
		m.recorder.On("Record", mock.Anything, mock.Anything).Return(errors.New("insert failed")).Once()
		m.txRepo.On("UpdateProcessingStatus", mock.Anything, tx.ID, shared.ProcessingStatusFailed).Return(nil).Once()

		err := svc.ProcessMatchRequest(context.Background(), sampleRequest(tx, shared.MatchReasonIngested))

		assert.Error(t, err)
		m.assertExpectations(t)
	})
}
