package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, time.January, n, 0, 0, 0, 0, time.UTC)
}

func op(kind OperationKind, qty, price, fees string, executed time.Time, seq uint64) Operation {
	return Operation{
		OperationID:  "OP-test",
		AccountID:    "ACC1",
		InstrumentID: "PETR4",
		Kind:         kind,
		Quantity:     decimal.RequireFromString(qty),
		UnitPrice:    decimal.RequireFromString(price),
		Fees:         decimal.RequireFromString(fees),
		ExecutedAt:   executed,
		Sequence:     seq,
	}
}

func TestApplyBuy_WeightedAverageCost(t *testing.T) {
	t.Parallel()

	pos := NewPosition("ACC1", "PETR4")

	_, err := pos.Apply(op(OperationBuy, "10", "18000", "100", day(1), 1))
	require.NoError(t, err)
	assert.True(t, pos.TotalInvested.Equal(decimal.RequireFromString("180100")), "invested=%s", pos.TotalInvested)
	assert.True(t, pos.AverageCost.Equal(decimal.RequireFromString("18010")), "avg=%s", pos.AverageCost)

	_, err = pos.Apply(op(OperationBuy, "5", "18500", "50", day(2), 2))
	require.NoError(t, err)
	assert.True(t, pos.TotalInvested.Equal(decimal.RequireFromString("272650")), "invested=%s", pos.TotalInvested)
	avg, _ := pos.AverageCost.Round(2).Float64()
	assert.InDelta(t, 18176.67, avg, 0.01)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(15)))
}

func TestApplyBuy_InvestedIsSumOfGross(t *testing.T) {
	t.Parallel()

	buys := []Operation{
		op(OperationBuy, "3", "21.50", "4.90", day(1), 1),
		op(OperationBuy, "7", "22.10", "4.90", day(3), 2),
		op(OperationBuy, "12", "19.80", "0", day(9), 3),
	}

	pos := NewPosition("ACC1", "PETR4")
	expected := decimal.Zero
	for _, b := range buys {
		_, err := pos.Apply(b)
		require.NoError(t, err)
		expected = expected.Add(b.Quantity.Mul(b.UnitPrice).Add(b.Fees))
	}

	assert.True(t, pos.TotalInvested.Equal(expected))
	assert.True(t, pos.AverageCost.Equal(expected.Div(decimal.NewFromInt(22))))
}

func TestApplySell_RealizedProfitAndUnchangedAverage(t *testing.T) {
	t.Parallel()

	pos := NewPosition("ACC1", "PETR4")
	_, err := pos.Apply(op(OperationBuy, "10", "100", "0", day(1), 1))
	require.NoError(t, err)

	avgBefore := pos.AverageCost
	_, err = pos.Apply(op(OperationSell, "4", "120", "3", day(2), 2))
	require.NoError(t, err)

	// proceeds 4*120+3=483, cost of sold 4*100=400
	assert.True(t, pos.RealizedProfit.Equal(decimal.NewFromInt(83)), "realized=%s", pos.RealizedProfit)
	assert.True(t, pos.TotalInvested.Equal(decimal.NewFromInt(600)))
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)))
	assert.True(t, pos.AverageCost.Equal(avgBefore))
}

func TestApplySell_InsufficientQuantityLeavesPositionUntouched(t *testing.T) {
	t.Parallel()

	pos := NewPosition("ACC1", "PETR4")
	_, err := pos.Apply(op(OperationBuy, "5", "100", "0", day(1), 1))
	require.NoError(t, err)
	before := *pos

	_, err = pos.Apply(op(OperationSell, "8", "120", "0", day(2), 2))

	var insufficient *InsufficientQuantityError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Requested.Equal(decimal.NewFromInt(8)))
	assert.True(t, insufficient.Available.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, before.Quantity.String(), pos.Quantity.String())
	assert.Equal(t, before.TotalInvested.String(), pos.TotalInvested.String())
	assert.Equal(t, before.RealizedProfit.String(), pos.RealizedProfit.String())
}

func TestApplyIncome_DoesNotTouchQuantityOrCost(t *testing.T) {
	t.Parallel()

	pos := NewPosition("ACC1", "PETR4")
	_, err := pos.Apply(op(OperationBuy, "10", "100", "0", day(1), 1))
	require.NoError(t, err)

	_, err = pos.Apply(op(OperationDividend, "10", "1.25", "0", day(5), 2))
	require.NoError(t, err)
	_, err = pos.Apply(op(OperationInterest, "10", "0.40", "0", day(6), 3))
	require.NoError(t, err)

	assert.True(t, pos.TotalIncome.Equal(decimal.RequireFromString("16.5")), "income=%s", pos.TotalIncome)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, pos.AverageCost.Equal(decimal.NewFromInt(100)))
}

func TestValuation(t *testing.T) {
	t.Parallel()

	pos := NewPosition("ACC1", "PETR4")
	_, err := pos.Apply(op(OperationBuy, "10", "100", "0", day(1), 1))
	require.NoError(t, err)

	price := decimal.NewFromInt(110)
	assert.True(t, pos.MarketValue(price).Equal(decimal.NewFromInt(1100)))
	assert.True(t, pos.UnrealizedProfit(price).Equal(decimal.NewFromInt(100)))
	assert.True(t, pos.TotalReturn(price).Equal(decimal.NewFromInt(100)))
	assert.True(t, pos.ReturnPercent(price).Equal(decimal.NewFromInt(10)))
}

func TestReturnPercent_ZeroInvested(t *testing.T) {
	t.Parallel()

	pos := NewPosition("ACC1", "PETR4")
	assert.True(t, pos.ReturnPercent(decimal.NewFromInt(100)).IsZero())
}

func TestOperationValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Operation)
		wantErr bool
	}{
		{"valid", func(o *Operation) {}, false},
		{"zero quantity", func(o *Operation) { o.Quantity = decimal.Zero }, true},
		{"negative price", func(o *Operation) { o.UnitPrice = decimal.NewFromInt(-1) }, true},
		{"negative fees", func(o *Operation) { o.Fees = decimal.NewFromInt(-1) }, true},
		{"unknown kind", func(o *Operation) { o.Kind = "SHORT" }, true},
		{"missing account", func(o *Operation) { o.AccountID = "" }, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := op(OperationBuy, "1", "10", "0", day(1), 1)
			tt.mutate(&o)
			errs := o.Validate()
			if tt.wantErr {
				assert.NotEmpty(t, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}
