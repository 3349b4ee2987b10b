package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

func historyOp(id, instrument string, qty, price string, executed time.Time) ledgerdomain.Operation {
	return ledgerdomain.Operation{
		OperationID:  id,
		AccountID:    "ACC1",
		InstrumentID: instrument,
		Kind:         ledgerdomain.OperationBuy,
		Quantity:     decimal.RequireFromString(qty),
		UnitPrice:    decimal.RequireFromString(price),
		Fees:         decimal.Zero,
		ExecutedAt:   executed,
	}
}

func TestAdjustHistory_SplitRewritesPriorOperations(t *testing.T) {
	t.Parallel()

	ops := []ledgerdomain.Operation{
		historyOp("OP-1", "PETR4", "10", "40", day(1)),
		historyOp("OP-2", "VALE3", "10", "40", day(2)),
		historyOp("OP-3", "PETR4", "5", "44", day(15)),
	}

	adjusted, warnings, err := AdjustHistory(ops, splitEvent(EventSplit, "2"))
	require.NoError(t, err)

	// dated before the effective date: rewritten
	assert.True(t, adjusted[0].Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, adjusted[0].UnitPrice.Equal(decimal.NewFromInt(20)))
	// other instrument: untouched
	assert.True(t, adjusted[1].Quantity.Equal(decimal.NewFromInt(10)))
	// dated after: untouched, warned
	assert.True(t, adjusted[2].Quantity.Equal(decimal.NewFromInt(5)))
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "OP-3")

	// original slice not mutated
	assert.True(t, ops[0].Quantity.Equal(decimal.NewFromInt(10)))
}

func TestAdjustHistory_ReverseSplit(t *testing.T) {
	t.Parallel()

	ops := []ledgerdomain.Operation{historyOp("OP-1", "PETR4", "100", "4", day(1))}

	adjusted, warnings, err := AdjustHistory(ops, splitEvent(EventReverseSplit, "10"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, adjusted[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, adjusted[0].UnitPrice.Equal(decimal.NewFromInt(40)))
}

func TestAdjustHistory_BonusNeverRewrites(t *testing.T) {
	t.Parallel()

	ops := []ledgerdomain.Operation{historyOp("OP-1", "PETR4", "10", "40", day(1))}

	adjusted, warnings, err := AdjustHistory(ops, splitEvent(EventBonus, "10"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, adjusted[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, adjusted[0].UnitPrice.Equal(decimal.NewFromInt(40)))
}

func TestAdjustHistory_ExplicitPriceFactorWins(t *testing.T) {
	t.Parallel()

	e := splitEvent(EventSplit, "2")
	e.PriceFactor = decimal.RequireFromString("0.4")
	ops := []ledgerdomain.Operation{historyOp("OP-1", "PETR4", "10", "40", day(1))}

	adjusted, _, err := AdjustHistory(ops, e)
	require.NoError(t, err)
	assert.True(t, adjusted[0].UnitPrice.Equal(decimal.NewFromInt(16)))
}

func TestApplyAll_EffectiveDateOrder(t *testing.T) {
	t.Parallel()

	later := splitEvent(EventBonus, "10")
	later.EventID = "CA-bonus"
	later.EffectiveDate = day(20)

	earlier := splitEvent(EventSplit, "2")
	earlier.EventID = "CA-split"
	earlier.EffectiveDate = day(5)

	// input deliberately out of order
	result, err := ApplyAll([]*CorporateEvent{later, earlier}, holding("100", "20", "2000"))
	require.NoError(t, err)

	// split first: 200 @ 10; then bonus: +20 shares, avg = 2000/220
	assert.True(t, result.Position.Quantity.Equal(decimal.NewFromInt(220)), "qty=%s", result.Position.Quantity)
	avg, _ := result.Position.AverageCost.Round(2).Float64()
	assert.InDelta(t, 9.09, avg, 0.01)
	assert.True(t, result.Position.TotalInvested.Equal(decimal.NewFromInt(2000)))
}

func TestApplyAll_SkipsOtherInstruments(t *testing.T) {
	t.Parallel()

	other := splitEvent(EventSplit, "2")
	other.InstrumentID = "VALE3"

	result, err := ApplyAll([]*CorporateEvent{other}, holding("100", "20", "2000"))
	require.NoError(t, err)
	assert.True(t, result.Position.Quantity.Equal(decimal.NewFromInt(100)))
}
