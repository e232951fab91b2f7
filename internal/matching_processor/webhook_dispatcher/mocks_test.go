package webhook_dispatcher

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/domain/webhook"
)

// fakeTxRunner executes the callback against a nil transaction; the mocks
// below ignore the handle entirely.
type fakeTxRunner struct{}

func (fakeTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

type MockWebhookRepo struct {
	mock.Mock
}

func (m *MockWebhookRepo) Create(ctx context.Context, event *webhook.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockWebhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*webhook.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.Event), args.Error(1)
}

func (m *MockWebhookRepo) GetDue(ctx context.Context, limit int) ([]*webhook.Event, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*webhook.Event), args.Error(1)
}

func (m *MockWebhookRepo) Update(ctx context.Context, event *webhook.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockPaymentRepo struct {
	mock.Mock
}

func (m *MockPaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentRepo) GetBySource(ctx context.Context, companyID uuid.UUID, source payment.Source) (*payment.Payment, error) {
	args := m.Called(ctx, companyID, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentRepo) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*payment.Payment, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Payment), args.Error(1)
}

func (m *MockPaymentRepo) WithTx(tx pgx.Tx) payment.Repository {
	return m
}

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
	return m
}

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
	return m
}

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
	return m
}

type MockAuditTrail struct {
	mock.Mock
}

func (m *MockAuditTrail) Record(ctx context.Context, companyID, transactionID uuid.UUID, reconciliationID *uuid.UUID, event audit.Event, details any) {
	m.Called(ctx, companyID, transactionID, reconciliationID, event, details)
}
