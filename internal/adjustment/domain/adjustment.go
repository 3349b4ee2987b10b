// Package domain implements the manual correction workflow: a proposed change
// to one field of a position that sits PENDING until a second operator
// approves or rejects it. Only approval mutates the target.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

type AdjustmentField string

const (
	FieldQuantity      AdjustmentField = "QUANTITY"
	FieldAverageCost   AdjustmentField = "AVERAGE_COST"
	FieldTotalInvested AdjustmentField = "TOTAL_INVESTED"
)

type AdjustmentStatus string

const (
	AdjustmentStatusPending  AdjustmentStatus = "PENDING"
	AdjustmentStatusApproved AdjustmentStatus = "APPROVED"
	AdjustmentStatusRejected AdjustmentStatus = "REJECTED"
)

const minReasonLength = 10

var (
	ErrAdjustmentInvalid    = errors.New("adjustment failed validation")
	ErrAdjustmentNotPending = errors.New("adjustment is not pending")
	ErrSelfApproval         = errors.New("adjustment cannot be decided by its proposer")
	ErrUnknownField         = errors.New("unknown adjustment field")
	ErrWrongPosition        = errors.New("adjustment does not target this position")
)

// ManualAdjustment proposes setting one field of a position to a new value.
type ManualAdjustment struct {
	gorm.Model
	AdjustmentID   string           `gorm:"column:adjustment_id;type:varchar(64);uniqueIndex;not null" json:"adjustment_id"`
	AccountID      string           `gorm:"column:account_id;type:varchar(32);index;not null" json:"account_id"`
	InstrumentID   string           `gorm:"column:instrument_id;type:varchar(32);index;not null" json:"instrument_id"`
	Field          AdjustmentField  `gorm:"column:field;type:varchar(16);not null" json:"field"`
	PreviousValue  decimal.Decimal  `gorm:"column:previous_value;type:decimal(20,8)" json:"previous_value"`
	ProposedValue  decimal.Decimal  `gorm:"column:proposed_value;type:decimal(20,8)" json:"proposed_value"`
	Reason         string           `gorm:"column:reason;type:text;not null" json:"reason"`
	Status         AdjustmentStatus `gorm:"column:status;type:varchar(16);not null;default:'PENDING'" json:"status"`
	RequestedBy    string           `gorm:"column:requested_by;type:varchar(64);not null" json:"requested_by"`
	DecidedBy      string           `gorm:"column:decided_by;type:varchar(64)" json:"decided_by,omitempty"`
	DecisionReason string           `gorm:"column:decision_reason;type:text" json:"decision_reason,omitempty"`
	DecidedAt      *time.Time       `gorm:"column:decided_at" json:"decided_at,omitempty"`
}

func (ManualAdjustment) TableName() string { return "manual_adjustments" }

// ProposalResult carries the stored adjustment or the reasons it was refused.
// Warnings are advisory and never block storage.
type ProposalResult struct {
	Adjustment *ManualAdjustment `json:"adjustment,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// Propose validates the request and, when clean, returns a PENDING adjustment
// capturing the current value of the targeted field.
func Propose(adjustmentID string, pos *ledgerdomain.Position, field AdjustmentField, proposed decimal.Decimal, reason, requestedBy string) *ProposalResult {
	result := &ProposalResult{}

	if pos == nil {
		result.Errors = append(result.Errors, "target position is required")
		return result
	}
	if requestedBy == "" {
		result.Errors = append(result.Errors, "requesting actor is required")
	}
	if len(reason) < minReasonLength {
		result.Errors = append(result.Errors, fmt.Sprintf("reason must be at least %d characters", minReasonLength))
	}

	var previous decimal.Decimal
	switch field {
	case FieldQuantity:
		previous = pos.Quantity
		if proposed.IsNegative() {
			result.Errors = append(result.Errors, "quantity must not be negative")
		}
	case FieldAverageCost:
		previous = pos.AverageCost
		if !proposed.IsPositive() {
			result.Errors = append(result.Errors, "average cost must be greater than zero")
		}
	case FieldTotalInvested:
		previous = pos.TotalInvested
		if proposed.IsNegative() {
			result.Errors = append(result.Errors, "total invested must not be negative")
		}
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unknown field %q", field))
	}

	if len(result.Errors) > 0 {
		return result
	}

	result.Warnings = changeMagnitudeWarnings(previous, proposed)
	result.Adjustment = &ManualAdjustment{
		AdjustmentID:  adjustmentID,
		AccountID:     pos.AccountID,
		InstrumentID:  pos.InstrumentID,
		Field:         field,
		PreviousValue: previous,
		ProposedValue: proposed,
		Reason:        reason,
		Status:        AdjustmentStatusPending,
		RequestedBy:   requestedBy,
	}
	return result
}

// changeMagnitudeWarnings flags large relative changes. A change over 50%
// warns once; over 100% warns again. Both are advisory.
func changeMagnitudeWarnings(previous, proposed decimal.Decimal) []string {
	if previous.IsZero() {
		return nil
	}
	pct := proposed.Sub(previous).Abs().Div(previous.Abs()).Mul(decimal.NewFromInt(100))
	var warnings []string
	if pct.GreaterThan(decimal.NewFromInt(50)) {
		warnings = append(warnings, fmt.Sprintf("proposed change of %s%% exceeds 50%% of the current value", pct.Round(2)))
	}
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		warnings = append(warnings, fmt.Sprintf("proposed change of %s%% more than doubles or erases the current value", pct.Round(2)))
	}
	return warnings
}

// Approve applies the adjustment to the target position. The decider must
// differ from the proposer. Returns the mutated copy; the input position is
// untouched.
func (a *ManualAdjustment) Approve(pos ledgerdomain.Position, decidedBy string, now time.Time) (*ledgerdomain.Position, error) {
	if err := a.checkDecision(decidedBy); err != nil {
		return nil, err
	}
	if pos.AccountID != a.AccountID || pos.InstrumentID != a.InstrumentID {
		return nil, fmt.Errorf("%w: adjustment targets %s/%s, position is %s/%s",
			ErrWrongPosition, a.AccountID, a.InstrumentID, pos.AccountID, pos.InstrumentID)
	}

	switch a.Field {
	case FieldQuantity:
		pos.Quantity = a.ProposedValue
	case FieldAverageCost:
		pos.AverageCost = a.ProposedValue
	case FieldTotalInvested:
		pos.TotalInvested = a.ProposedValue
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, a.Field)
	}
	pos.LastUpdatedAt = now

	a.Status = AdjustmentStatusApproved
	a.DecidedBy = decidedBy
	a.DecidedAt = &now
	return &pos, nil
}

// Reject records the refusal and reason. The target position is never touched.
func (a *ManualAdjustment) Reject(decidedBy, reason string, now time.Time) error {
	if err := a.checkDecision(decidedBy); err != nil {
		return err
	}
	a.Status = AdjustmentStatusRejected
	a.DecidedBy = decidedBy
	a.DecisionReason = reason
	a.DecidedAt = &now
	return nil
}

func (a *ManualAdjustment) checkDecision(decidedBy string) error {
	if a.Status != AdjustmentStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrAdjustmentNotPending, a.AdjustmentID, a.Status)
	}
	if decidedBy == "" {
		return fmt.Errorf("%w: deciding actor is required", ErrAdjustmentInvalid)
	}
	if decidedBy == a.RequestedBy {
		return fmt.Errorf("%w: %s proposed %s", ErrSelfApproval, decidedBy, a.AdjustmentID)
	}
	return nil
}

// AdjustmentRepository persists manual adjustments.
type AdjustmentRepository interface {
	Save(ctx context.Context, adjustment *ManualAdjustment) error
	Update(ctx context.Context, adjustment *ManualAdjustment) error
	GetByAdjustmentID(ctx context.Context, adjustmentID string) (*ManualAdjustment, error)
	ListByStatus(ctx context.Context, status AdjustmentStatus) ([]*ManualAdjustment, error)
	ListByKey(ctx context.Context, accountID, instrumentID string) ([]*ManualAdjustment, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
