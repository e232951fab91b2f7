package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-reconciliation/internal/domain/payment"
)

func samplePayment(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.New(uuid.New(), uuid.New(), decimal.NewFromInt(7000), "EUR",
		payment.Source{Kind: payment.SourceBankTransaction, ID: uuid.New()})
	require.NoError(t, err)
	return p
}

func paymentRows(p *payment.Payment) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "company_id", "invoice_id", "amount", "currency", "exchange_rate",
		"source_type", "source_id", "created_at",
	}).AddRow(
		p.ID, p.CompanyID, p.InvoiceID, p.Amount, p.Currency, p.ExchangeRate,
		p.Source.Kind, p.Source.ID, p.CreatedAt,
	)
}

func TestPaymentRepository_Create(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PaymentRepository{querier: mock, logger: logger}
	p := samplePayment(t)

	insertQuery := `INSERT INTO payments`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(insertQuery).
			WithArgs(p.ID, p.CompanyID, p.InvoiceID, p.Amount, p.Currency, p.ExchangeRate,
				p.Source.Kind, p.Source.ID, p.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.Create(ctx, p)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("idempotency key collision maps to duplicate payment", func(t *testing.T) {
		mock.ExpectExec(insertQuery).
			WithArgs(p.ID, p.CompanyID, p.InvoiceID, p.Amount, p.Currency, p.ExchangeRate,
				p.Source.Kind, p.Source.ID, p.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

		err := repo.Create(ctx, p)
		var dupErr payment.ErrDuplicatePayment
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, p.Source, dupErr.Source)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(insertQuery).
			WithArgs(p.ID, p.CompanyID, p.InvoiceID, p.Amount, p.Currency, p.ExchangeRate,
				p.Source.Kind, p.Source.ID, p.CreatedAt).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, p)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create payment")
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepository_GetBySource(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PaymentRepository{querier: mock, logger: logger}
	p := samplePayment(t)

	query := `FROM payments\s+WHERE company_id = \$1 AND source_type = \$2 AND source_id = \$3`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(p.CompanyID, p.Source.Kind, p.Source.ID).
			WillReturnRows(paymentRows(p))

		got, err := repo.GetBySource(ctx, p.CompanyID, p.Source)
		assert.NoError(t, err)
		assert.Equal(t, p, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(p.CompanyID, p.Source.Kind, p.Source.ID).
			WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetBySource(ctx, p.CompanyID, p.Source)
		assert.Nil(t, got)
		var notFoundErr payment.ErrPaymentNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
