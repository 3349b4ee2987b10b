package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

func payday(year int, month time.Month, n int) time.Time {
	return time.Date(year, month, n, 0, 0, 0, 0, time.UTC)
}

func dividend(id, instrument string, vpu, qty, total, tax string, paid time.Time) *IncomeEvent {
	return &IncomeEvent{
		IncomeID:         id,
		AccountID:        "ACC1",
		InstrumentID:     instrument,
		Type:             IncomeDividend,
		ValuePerUnit:     decimal.RequireFromString(vpu),
		AffectedQuantity: decimal.RequireFromString(qty),
		TotalValue:       decimal.RequireFromString(total),
		TaxWithheld:      decimal.RequireFromString(tax),
		PaymentDate:      paid,
	}
}

func TestValidate_CleanDividend(t *testing.T) {
	t.Parallel()

	warnings, err := dividend("INC-1", "PETR4", "1.5", "100", "150", "22.5", payday(2024, time.May, 10)).Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidate_TotalDriftWarnsWithinTolerance(t *testing.T) {
	t.Parallel()

	// off by exactly 0.01: tolerated
	e := dividend("INC-1", "PETR4", "1.5", "100", "150.01", "0", payday(2024, time.May, 10))
	warnings, err := e.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// off by more: warned, not rejected
	e.TotalValue = decimal.RequireFromString("151")
	warnings, err = e.Validate()
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "differs")
}

func TestValidate_TaxExceedsTotalFails(t *testing.T) {
	t.Parallel()

	e := dividend("INC-1", "PETR4", "1.5", "100", "150", "200", payday(2024, time.May, 10))
	_, err := e.Validate()
	assert.ErrorIs(t, err, ErrTaxExceedsTotal)
}

func TestValidate_RequiredFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(e *IncomeEvent)
	}{
		{"missing account", func(e *IncomeEvent) { e.AccountID = "" }},
		{"missing instrument", func(e *IncomeEvent) { e.InstrumentID = "" }},
		{"zero payment date", func(e *IncomeEvent) { e.PaymentDate = time.Time{} }},
		{"zero quantity", func(e *IncomeEvent) { e.AffectedQuantity = decimal.Zero }},
		{"negative tax", func(e *IncomeEvent) { e.TaxWithheld = decimal.NewFromInt(-1) }},
		{"unknown type", func(e *IncomeEvent) { e.Type = "COUPON" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := dividend("INC-1", "PETR4", "1.5", "100", "150", "0", payday(2024, time.May, 10))
			tt.mutate(e)
			_, err := e.Validate()
			assert.Error(t, err)
		})
	}
}

func TestValidate_BonusNeedsFactor(t *testing.T) {
	t.Parallel()

	e := &IncomeEvent{
		IncomeID:     "INC-2",
		AccountID:    "ACC1",
		InstrumentID: "PETR4",
		Type:         IncomeBonus,
		PaymentDate:  payday(2024, time.May, 10),
	}
	_, err := e.Validate()
	assert.ErrorIs(t, err, ErrIncomeInvalid)

	e.BonusFactor = decimal.NewFromInt(10)
	_, err = e.Validate()
	assert.NoError(t, err)
}

func TestYieldPercent(t *testing.T) {
	t.Parallel()

	e := dividend("INC-1", "PETR4", "1.5", "100", "150", "0", payday(2024, time.May, 10))

	y, _ := e.YieldPercent(decimal.NewFromInt(30)).Float64()
	assert.InDelta(t, 5.0, y, 1e-9)
	assert.True(t, e.YieldPercent(decimal.Zero).IsZero())
}

func TestNetValue(t *testing.T) {
	t.Parallel()

	e := dividend("INC-1", "PETR4", "1.5", "100", "150", "22.5", payday(2024, time.May, 10))
	assert.True(t, e.NetValue().Equal(decimal.RequireFromString("127.5")))
}

func TestApply_CashIncomeAccruesGross(t *testing.T) {
	t.Parallel()

	pos := ledgerdomain.Position{
		AccountID:     "ACC1",
		InstrumentID:  "PETR4",
		Quantity:      decimal.NewFromInt(100),
		AverageCost:   decimal.NewFromInt(30),
		TotalInvested: decimal.NewFromInt(3000),
	}

	e := dividend("INC-1", "PETR4", "1.5", "100", "150", "22.5", payday(2024, time.May, 10))
	after, err := e.Apply(pos)
	require.NoError(t, err)

	assert.True(t, after.TotalIncome.Equal(decimal.NewFromInt(150)))
	assert.True(t, after.Quantity.Equal(pos.Quantity))
	assert.True(t, after.AverageCost.Equal(pos.AverageCost))
	// caller copy untouched
	assert.True(t, pos.TotalIncome.IsZero())
}

func TestApply_BonusDilutesLikeCorporateBonus(t *testing.T) {
	t.Parallel()

	pos := ledgerdomain.Position{
		AccountID:     "ACC1",
		InstrumentID:  "PETR4",
		Quantity:      decimal.NewFromInt(100),
		AverageCost:   decimal.NewFromInt(18000),
		TotalInvested: decimal.NewFromInt(1800000),
	}
	e := &IncomeEvent{
		IncomeID:     "INC-3",
		AccountID:    "ACC1",
		InstrumentID: "PETR4",
		Type:         IncomeBonus,
		BonusFactor:  decimal.NewFromInt(10),
		PaymentDate:  payday(2024, time.May, 10),
	}

	after, err := e.Apply(pos)
	require.NoError(t, err)

	assert.True(t, after.Quantity.Equal(decimal.NewFromInt(110)))
	avg, _ := after.AverageCost.Round(2).Float64()
	assert.InDelta(t, 16363.64, avg, 0.01)
	assert.True(t, after.TotalInvested.Equal(decimal.NewFromInt(1800000)))
}

func TestApply_WrongHoldingFails(t *testing.T) {
	t.Parallel()

	pos := ledgerdomain.Position{AccountID: "ACC2", InstrumentID: "PETR4"}
	e := dividend("INC-1", "PETR4", "1.5", "100", "150", "0", payday(2024, time.May, 10))

	_, err := e.Apply(pos)
	assert.ErrorIs(t, err, ErrIncomeWrongHolding)
}
