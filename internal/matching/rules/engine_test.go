package rules

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/matchingrule"
)

func testTransaction(t *testing.T, description, counterparty string, amount string) *banktransaction.Transaction {
	t.Helper()
	amt, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	tx, err := banktransaction.New(
		uuid.New(), uuid.New(), amt, "EUR",
		time.Now(), time.Now(),
		description, counterparty, "DE02120300000000202051", "",
	)
	require.NoError(t, err)
	return tx
}

func activeRule(t *testing.T, priority int, conditions []matchingrule.Condition, actions []matchingrule.Action) *matchingrule.Rule {
	t.Helper()
	rule, err := matchingrule.New(uuid.New(), "test rule", priority, conditions, actions)
	require.NoError(t, err)
	return rule
}

func TestEngine_Evaluate_ConditionOperators(t *testing.T) {
	engine := NewEngine(slog.Default())
	min := decimal.NewFromInt(100)
	max := decimal.NewFromInt(500)

	tests := []struct {
		name      string
		condition matchingrule.Condition
		tx        *banktransaction.Transaction
		match     bool
	}{
		{
			name:      "contains on description, case insensitive",
			condition: matchingrule.Condition{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "subscription"},
			tx:        testTransaction(t, "Monthly SUBSCRIPTION fee", "Acme", "-49.90"),
			match:     true,
		},
		{
			name:      "equals on counterparty name",
			condition: matchingrule.Condition{Field: matchingrule.FieldCounterpartyName, Operator: matchingrule.OperatorEquals, Value: "acme gmbh"},
			tx:        testTransaction(t, "payment", "Acme GmbH", "120.00"),
			match:     true,
		},
		{
			name:      "regex on description",
			condition: matchingrule.Condition{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorRegex, Value: `INV-\d{3}`},
			tx:        testTransaction(t, "settles INV-042", "Acme", "250.00"),
			match:     true,
		},
		{
			name:      "regex no match",
			condition: matchingrule.Condition{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorRegex, Value: `INV-\d{3}`},
			tx:        testTransaction(t, "no reference here", "Acme", "250.00"),
			match:     false,
		},
		{
			name:      "amount range uses absolute amount",
			condition: matchingrule.Condition{Field: matchingrule.FieldAmount, Operator: matchingrule.OperatorAmountRange, Min: &min, Max: &max},
			tx:        testTransaction(t, "debit", "Acme", "-250.00"),
			match:     true,
		},
		{
			name:      "greater than",
			condition: matchingrule.Condition{Field: matchingrule.FieldAmount, Operator: matchingrule.OperatorGreaterThan, Min: &min},
			tx:        testTransaction(t, "credit", "Acme", "99.99"),
			match:     false,
		},
		{
			name:      "less than",
			condition: matchingrule.Condition{Field: matchingrule.FieldAmount, Operator: matchingrule.OperatorLessThan, Max: &max},
			tx:        testTransaction(t, "credit", "Acme", "250.00"),
			match:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := activeRule(t, 0, []matchingrule.Condition{tt.condition}, []matchingrule.Action{{Kind: matchingrule.ActionIgnore}})
			outcome := engine.Evaluate(tt.tx, []*matchingrule.Rule{rule})
			if tt.match {
				require.NotNil(t, outcome)
				assert.Equal(t, rule.ID, outcome.Rule.ID)
			} else {
				assert.Nil(t, outcome)
			}
		})
	}
}

func TestEngine_Evaluate_ConditionsAreConjunction(t *testing.T) {
	engine := NewEngine(slog.Default())
	min := decimal.NewFromInt(1000)

	rule := activeRule(t, 0, []matchingrule.Condition{
		{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "RENT"},
		{Field: matchingrule.FieldAmount, Operator: matchingrule.OperatorGreaterThan, Min: &min},
	}, []matchingrule.Action{{Kind: matchingrule.ActionCategorize, Category: "rent"}})

	t.Run("all conditions hold", func(t *testing.T) {
		outcome := engine.Evaluate(testTransaction(t, "RENT march", "Landlord", "-1500.00"), []*matchingrule.Rule{rule})
		require.NotNil(t, outcome)
		assert.Equal(t, matchingrule.ActionCategorize, outcome.Actions[0].Kind)
	})

	t.Run("one condition fails", func(t *testing.T) {
		outcome := engine.Evaluate(testTransaction(t, "RENT march", "Landlord", "-500.00"), []*matchingrule.Rule{rule})
		assert.Nil(t, outcome)
	})
}

func TestEngine_Evaluate_FirstMatchingRuleWins(t *testing.T) {
	engine := NewEngine(slog.Default())

	first := activeRule(t, 1, []matchingrule.Condition{
		{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "SUBSCRIPTION"},
	}, []matchingrule.Action{{Kind: matchingrule.ActionIgnore}})
	second := activeRule(t, 2, []matchingrule.Condition{
		{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "SUBSCRIPTION"},
	}, []matchingrule.Action{{Kind: matchingrule.ActionCategorize, Category: "fees"}})

	outcome := engine.Evaluate(testTransaction(t, "SUBSCRIPTION renewal", "SaaS Co", "-19.00"), []*matchingrule.Rule{first, second})
	require.NotNil(t, outcome)
	assert.Equal(t, first.ID, outcome.Rule.ID)
	assert.Equal(t, matchingrule.ActionIgnore, outcome.Actions[0].Kind)
}

func TestEngine_Evaluate_MalformedRuleIsSkipped(t *testing.T) {
	engine := NewEngine(slog.Default())

	// Invalid regex: evaluation must skip this rule, not abort
	broken := activeRule(t, 1, []matchingrule.Condition{
		{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorRegex, Value: "("},
	}, []matchingrule.Action{{Kind: matchingrule.ActionIgnore}})

	healthy := activeRule(t, 2, []matchingrule.Condition{
		{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "FEE"},
	}, []matchingrule.Action{{Kind: matchingrule.ActionCategorize, Category: "fees"}})

	outcome := engine.Evaluate(testTransaction(t, "FEE charged", "Bank", "-5.00"), []*matchingrule.Rule{broken, healthy})
	require.NotNil(t, outcome)
	assert.Equal(t, healthy.ID, outcome.Rule.ID)
}

func TestEngine_Evaluate_UnknownKindsAreRejected(t *testing.T) {
	engine := NewEngine(slog.Default())

	t.Run("unknown operator", func(t *testing.T) {
		rule := activeRule(t, 1, []matchingrule.Condition{
			{Field: matchingrule.FieldDescription, Operator: "fuzzy", Value: "X"},
		}, []matchingrule.Action{{Kind: matchingrule.ActionIgnore}})
		assert.Nil(t, engine.Evaluate(testTransaction(t, "X", "Y", "1.00"), []*matchingrule.Rule{rule}))
	})

	t.Run("unknown action kind", func(t *testing.T) {
		rule := activeRule(t, 1, []matchingrule.Condition{
			{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "X"},
		}, []matchingrule.Action{{Kind: "explode"}})
		assert.Nil(t, engine.Evaluate(testTransaction(t, "X", "Y", "1.00"), []*matchingrule.Rule{rule}))
	})

	t.Run("match_invoice without invoice id", func(t *testing.T) {
		rule := activeRule(t, 1, []matchingrule.Condition{
			{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "X"},
		}, []matchingrule.Action{{Kind: matchingrule.ActionMatchInvoice}})
		assert.Nil(t, engine.Evaluate(testTransaction(t, "X", "Y", "1.00"), []*matchingrule.Rule{rule}))
	})
}

func TestEngine_Evaluate_NoRuleMatches(t *testing.T) {
	engine := NewEngine(slog.Default())
	rule := activeRule(t, 1, []matchingrule.Condition{
		{Field: matchingrule.FieldDescription, Operator: matchingrule.OperatorContains, Value: "SOMETHING ELSE"},
	}, []matchingrule.Action{{Kind: matchingrule.ActionIgnore}})

	assert.Nil(t, engine.Evaluate(testTransaction(t, "ordinary transfer", "Acme", "10.00"), []*matchingrule.Rule{rule}))
}
