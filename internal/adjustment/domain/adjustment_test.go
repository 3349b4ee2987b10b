package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

func targetPosition() *ledgerdomain.Position {
	return &ledgerdomain.Position{
		AccountID:     "ACC1",
		InstrumentID:  "PETR4",
		Quantity:      decimal.NewFromInt(100),
		AverageCost:   decimal.NewFromInt(30),
		TotalInvested: decimal.NewFromInt(3000),
	}
}

const validReason = "stock split missed by the upstream feed"

func TestPropose_CapturesPreviousValue(t *testing.T) {
	t.Parallel()

	result := Propose("ADJ-1", targetPosition(), FieldQuantity, decimal.NewFromInt(120), validReason, "alice")
	require.Empty(t, result.Errors)
	require.NotNil(t, result.Adjustment)

	a := result.Adjustment
	assert.Equal(t, AdjustmentStatusPending, a.Status)
	assert.True(t, a.PreviousValue.Equal(decimal.NewFromInt(100)))
	assert.True(t, a.ProposedValue.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, "alice", a.RequestedBy)
	assert.Empty(t, result.Warnings)
}

// Tripling a quantity draws both magnitude warnings but no errors.
func TestPropose_LargeChangeWarnsTwiceWithoutBlocking(t *testing.T) {
	t.Parallel()

	result := Propose("ADJ-1", targetPosition(), FieldQuantity, decimal.NewFromInt(300), validReason, "alice")
	assert.Empty(t, result.Errors)
	require.NotNil(t, result.Adjustment)
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], "50%")
	assert.Contains(t, result.Warnings[1], "doubles")
}

func TestPropose_ValidationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pos      *ledgerdomain.Position
		field    AdjustmentField
		proposed decimal.Decimal
		reason   string
		actor    string
		contains string
	}{
		{"nil position", nil, FieldQuantity, decimal.NewFromInt(1), validReason, "alice", "position is required"},
		{"short reason", targetPosition(), FieldQuantity, decimal.NewFromInt(1), "typo", "alice", "at least 10"},
		{"missing actor", targetPosition(), FieldQuantity, decimal.NewFromInt(1), validReason, "", "actor is required"},
		{"negative quantity", targetPosition(), FieldQuantity, decimal.NewFromInt(-5), validReason, "alice", "not be negative"},
		{"zero average cost", targetPosition(), FieldAverageCost, decimal.Zero, validReason, "alice", "greater than zero"},
		{"negative invested", targetPosition(), FieldTotalInvested, decimal.NewFromInt(-1), validReason, "alice", "not be negative"},
		{"unknown field", targetPosition(), "REALIZED", decimal.NewFromInt(1), validReason, "alice", "unknown field"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := Propose("ADJ-1", tt.pos, tt.field, tt.proposed, tt.reason, tt.actor)
			assert.Nil(t, result.Adjustment)
			assert.Contains(t, strings.Join(result.Errors, "; "), tt.contains)
		})
	}
}

func TestApprove_AppliesFieldAndStamps(t *testing.T) {
	t.Parallel()

	pos := targetPosition()
	a := Propose("ADJ-1", pos, FieldAverageCost, decimal.NewFromInt(25), validReason, "alice").Adjustment
	require.NotNil(t, a)

	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	after, err := a.Approve(*pos, "bob", now)
	require.NoError(t, err)

	assert.True(t, after.AverageCost.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, now, after.LastUpdatedAt)
	assert.Equal(t, AdjustmentStatusApproved, a.Status)
	assert.Equal(t, "bob", a.DecidedBy)
	require.NotNil(t, a.DecidedAt)
	// caller copy untouched
	assert.True(t, pos.AverageCost.Equal(decimal.NewFromInt(30)))
}

func TestApprove_RejectsSelfApproval(t *testing.T) {
	t.Parallel()

	pos := targetPosition()
	a := Propose("ADJ-1", pos, FieldQuantity, decimal.NewFromInt(120), validReason, "alice").Adjustment
	require.NotNil(t, a)

	_, err := a.Approve(*pos, "alice", time.Now())
	assert.ErrorIs(t, err, ErrSelfApproval)
	assert.Equal(t, AdjustmentStatusPending, a.Status)
}

func TestReject_LeavesStateUntouched(t *testing.T) {
	t.Parallel()

	pos := targetPosition()
	a := Propose("ADJ-1", pos, FieldQuantity, decimal.NewFromInt(120), validReason, "alice").Adjustment
	require.NotNil(t, a)

	require.NoError(t, a.Reject("bob", "no supporting broker statement", time.Now()))
	assert.Equal(t, AdjustmentStatusRejected, a.Status)
	assert.Equal(t, "no supporting broker statement", a.DecisionReason)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(100)))

	// decided adjustments cannot be re-decided
	_, err := a.Approve(*pos, "carol", time.Now())
	assert.ErrorIs(t, err, ErrAdjustmentNotPending)
}

func TestApprove_WrongPositionFails(t *testing.T) {
	t.Parallel()

	pos := targetPosition()
	a := Propose("ADJ-1", pos, FieldQuantity, decimal.NewFromInt(120), validReason, "alice").Adjustment
	require.NotNil(t, a)

	other := *pos
	other.InstrumentID = "VALE3"
	_, err := a.Approve(other, "bob", time.Now())
	assert.ErrorIs(t, err, ErrWrongPosition)
}
