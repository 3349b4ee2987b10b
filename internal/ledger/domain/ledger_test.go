package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortOperations_DateThenSequence(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		op(OperationSell, "1", "10", "0", day(5), 9),
		op(OperationBuy, "1", "10", "0", day(5), 2),
		op(OperationBuy, "1", "10", "0", day(1), 7),
	}

	sorted := SortOperations(ops)
	assert.Equal(t, uint64(7), sorted[0].Sequence)
	assert.Equal(t, uint64(2), sorted[1].Sequence)
	assert.Equal(t, uint64(9), sorted[2].Sequence)
	// input untouched
	assert.Equal(t, uint64(9), ops[0].Sequence)
}

func TestReplay_OrderInvariance(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		op(OperationBuy, "10", "18000", "100", day(1), 1),
		op(OperationBuy, "5", "18500", "50", day(2), 2),
		op(OperationSell, "3", "19000", "20", day(3), 3),
		op(OperationDividend, "12", "55", "0", day(4), 4),
	}
	shuffled := []Operation{ops[3], ops[1], ops[0], ops[2]}

	a, _, err := Replay("ACC1", "PETR4", ops)
	require.NoError(t, err)
	b, _, err := Replay("ACC1", "PETR4", shuffled)
	require.NoError(t, err)

	assert.Equal(t, a.Quantity.String(), b.Quantity.String())
	assert.Equal(t, a.AverageCost.String(), b.AverageCost.String())
	assert.Equal(t, a.TotalInvested.String(), b.TotalInvested.String())
	assert.Equal(t, a.RealizedProfit.String(), b.RealizedProfit.String())
	assert.Equal(t, a.TotalIncome.String(), b.TotalIncome.String())
}

func TestReplay_SellBeforeBuyFails(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		op(OperationSell, "1", "10", "0", day(1), 1),
		op(OperationBuy, "5", "10", "0", day(2), 2),
	}

	_, _, err := Replay("ACC1", "PETR4", ops)
	var insufficient *InsufficientQuantityError
	require.ErrorAs(t, err, &insufficient)
}

func TestCompute_SnapshotAggregates(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		op(OperationBuy, "10", "100", "0", day(1), 1),
		{
			OperationID: "OP-2", AccountID: "ACC1", InstrumentID: "VALE3",
			Kind: OperationBuy, Quantity: decimal.NewFromInt(4),
			UnitPrice: decimal.NewFromInt(50), Fees: decimal.Zero,
			ExecutedAt: day(2), Sequence: 2,
		},
		{
			OperationID: "OP-3", AccountID: "ACC2", InstrumentID: "PETR4",
			Kind: OperationBuy, Quantity: decimal.NewFromInt(2),
			UnitPrice: decimal.NewFromInt(100), Fees: decimal.Zero,
			ExecutedAt: day(3), Sequence: 3,
		},
	}
	prices := map[string]decimal.Decimal{
		"PETR4": decimal.NewFromInt(110),
		"VALE3": decimal.NewFromInt(40),
	}

	snap, err := Compute(ops, prices)
	require.NoError(t, err)

	require.Len(t, snap.Positions, 3)
	assert.Equal(t, 2, snap.Aggregates.InstrumentCount)
	assert.Equal(t, 3, snap.Aggregates.OperationCount)
	assert.True(t, snap.Aggregates.TotalInvested.Equal(decimal.NewFromInt(1400)))
	// 10*110 + 4*40 + 2*110
	assert.True(t, snap.Aggregates.CurrentValue.Equal(decimal.NewFromInt(1480)), "value=%s", snap.Aggregates.CurrentValue)
	assert.Empty(t, snap.Failures)

	// deterministic ordering: ACC1 before ACC2, PETR4 before VALE3
	assert.Equal(t, "ACC1", snap.Positions[0].AccountID)
	assert.Equal(t, "PETR4", snap.Positions[0].InstrumentID)
	assert.Equal(t, "VALE3", snap.Positions[1].InstrumentID)
	assert.Equal(t, "ACC2", snap.Positions[2].AccountID)
}

func TestCompute_FailedKeyIsIsolated(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		op(OperationBuy, "10", "100", "0", day(1), 1),
		{
			OperationID: "OP-bad", AccountID: "ACC2", InstrumentID: "VALE3",
			Kind: OperationSell, Quantity: decimal.NewFromInt(1),
			UnitPrice: decimal.NewFromInt(10), Fees: decimal.Zero,
			ExecutedAt: day(1), Sequence: 2,
		},
	}

	snap, err := Compute(ops, nil)
	require.Error(t, err)
	require.Len(t, snap.Failures, 1)
	assert.Equal(t, Key{AccountID: "ACC2", InstrumentID: "VALE3"}, snap.Failures[0].Key)
	// the clean key still folded
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "ACC1", snap.Positions[0].AccountID)
}

func TestCompute_MissingPriceWarns(t *testing.T) {
	t.Parallel()

	ops := []Operation{op(OperationBuy, "10", "100", "0", day(1), 1)}

	snap, err := Compute(ops, nil)
	require.NoError(t, err)
	assert.True(t, snap.Aggregates.CurrentValue.IsZero())
	require.NotEmpty(t, snap.Warnings)
	assert.Contains(t, snap.Warnings[0], "no current price")
}

func TestCompute_Idempotent(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		op(OperationBuy, "10", "100", "1", day(1), 1),
		op(OperationSell, "5", "110", "1", day(2), 2),
	}

	first, err := Compute(ops, nil)
	require.NoError(t, err)
	second, err := Compute(ops, nil)
	require.NoError(t, err)

	require.Len(t, second.Positions, len(first.Positions))
	for i := range first.Positions {
		assert.Equal(t, first.Positions[i].Quantity.String(), second.Positions[i].Quantity.String())
		assert.Equal(t, first.Positions[i].TotalInvested.String(), second.Positions[i].TotalInvested.String())
	}
}
