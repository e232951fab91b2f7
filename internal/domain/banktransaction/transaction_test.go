package banktransaction

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-reconciliation/internal/domain/shared"
)

func TestNew_Validation(t *testing.T) {
	companyID := uuid.New()
	accountID := uuid.New()
	bookingDate := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("99.50")

	tests := []struct {
		name      string
		companyID uuid.UUID
		accountID uuid.UUID
		amount    decimal.Decimal
		currency  string
		wantErr   error
	}{
		{name: "valid", companyID: companyID, accountID: accountID, amount: amount, currency: "EUR"},
		{name: "missing company", companyID: uuid.Nil, accountID: accountID, amount: amount, currency: "EUR", wantErr: ErrMissingCompany},
		{name: "missing bank account", companyID: companyID, accountID: uuid.Nil, amount: amount, currency: "EUR", wantErr: ErrMissingBankAccount},
		{name: "bad currency", companyID: companyID, accountID: accountID, amount: amount, currency: "EURO", wantErr: ErrInvalidCurrencyFormat},
		{name: "zero amount", companyID: companyID, accountID: accountID, amount: decimal.Zero, currency: "EUR", wantErr: ErrZeroAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := New(tt.companyID, tt.accountID, tt.amount, tt.currency, bookingDate, bookingDate, "desc", "name", "", "")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, tx)
			} else {
				require.NoError(t, err)
				assert.Equal(t, shared.TransactionUnreconciled, tx.ReconciliationStatus)
				assert.Equal(t, shared.ProcessingStatusPending, tx.ProcessingStatus)
				assert.NotEmpty(t, tx.Fingerprint)
			}
		})
	}
}

func TestNew_NormalizesInput(t *testing.T) {
	tx, err := New(
		uuid.New(), uuid.New(),
		decimal.RequireFromString("-42.10"), "eur",
		time.Now(), time.Now(),
		"  payment  ", "  ACME GmbH ", "de89 3704 0044 0532 0130 00", " SEPA-1 ",
	)

	require.NoError(t, err)
	assert.Equal(t, "EUR", tx.Currency)
	assert.Equal(t, "payment", tx.Description)
	assert.Equal(t, "ACME GmbH", tx.CounterpartyName)
	assert.Equal(t, "DE89370400440532013000", tx.CounterpartyIBAN)
	assert.Equal(t, "SEPA-1", tx.ExternalID)
	assert.False(t, tx.IsCredit())
}

func TestMarkDuplicate(t *testing.T) {
	tx, err := New(uuid.New(), uuid.New(), decimal.NewFromInt(10), "EUR", time.Now(), time.Now(), "d", "n", "", "")
	require.NoError(t, err)
	originalID := uuid.New()

	tx.MarkDuplicate(originalID)

	assert.True(t, tx.IsDuplicate)
	require.NotNil(t, tx.DuplicateOf)
	assert.Equal(t, originalID, *tx.DuplicateOf)
	assert.Equal(t, shared.ProcessingStatusProcessed, tx.ProcessingStatus)
}
