// Package domain models income events (proventos): dividends, interest and
// bonus-share payments attributable to a held instrument, together with their
// per-event arithmetic and per-instrument consolidation.
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

type IncomeType string

const (
	IncomeDividend IncomeType = "DIVIDEND"
	IncomeInterest IncomeType = "INTEREST"
	IncomeBonus    IncomeType = "BONUS"
)

var (
	ErrTaxExceedsTotal    = errors.New("tax withheld exceeds total value")
	ErrIncomeInvalid      = errors.New("income event failed validation")
	ErrUnknownIncomeType  = errors.New("unknown income type")
	ErrIncomeWrongHolding = errors.New("income event does not match this position")
)

// totalValueTolerance is the accepted drift between the declared total and
// value-per-unit times quantity before a consistency warning is raised.
var totalValueTolerance = decimal.RequireFromString("0.01")

// IncomeEvent is a single payment (or bonus issuance) on a holding.
type IncomeEvent struct {
	gorm.Model
	IncomeID         string          `gorm:"column:income_id;type:varchar(64);uniqueIndex;not null" json:"income_id"`
	AccountID        string          `gorm:"column:account_id;type:varchar(32);index;not null" json:"account_id"`
	InstrumentID     string          `gorm:"column:instrument_id;type:varchar(32);index;not null" json:"instrument_id"`
	Type             IncomeType      `gorm:"column:type;type:varchar(16);not null" json:"type"`
	ValuePerUnit     decimal.Decimal `gorm:"column:value_per_unit;type:decimal(20,8)" json:"value_per_unit"`
	AffectedQuantity decimal.Decimal `gorm:"column:affected_quantity;type:decimal(20,8)" json:"affected_quantity"`
	TotalValue       decimal.Decimal `gorm:"column:total_value;type:decimal(20,8)" json:"total_value"`
	TaxWithheld      decimal.Decimal `gorm:"column:tax_withheld;type:decimal(20,8)" json:"tax_withheld"`
	BonusFactor      decimal.Decimal `gorm:"column:bonus_factor;type:decimal(20,8)" json:"bonus_factor"`
	PaymentDate      time.Time       `gorm:"column:payment_date;index;not null" json:"payment_date"`
}

func (IncomeEvent) TableName() string { return "income_events" }

// Validate checks the event on creation. Numeric drift between the declared
// total and value-per-unit times quantity is a warning; tax exceeding the
// total is a hard error.
func (e *IncomeEvent) Validate() ([]string, error) {
	switch {
	case e.AccountID == "" || e.InstrumentID == "":
		return nil, fmt.Errorf("%w: account and instrument are required", ErrIncomeInvalid)
	case e.PaymentDate.IsZero():
		return nil, fmt.Errorf("%w: payment date is required", ErrIncomeInvalid)
	}

	var warnings []string
	switch e.Type {
	case IncomeDividend, IncomeInterest:
		if !e.AffectedQuantity.IsPositive() {
			return nil, fmt.Errorf("%w: affected quantity must be positive", ErrIncomeInvalid)
		}
		if e.TotalValue.IsNegative() {
			return nil, fmt.Errorf("%w: total value must not be negative", ErrIncomeInvalid)
		}
		expected := e.ValuePerUnit.Mul(e.AffectedQuantity)
		if expected.Sub(e.TotalValue).Abs().GreaterThan(totalValueTolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"declared total %s differs from value per unit x quantity (%s) by more than %s",
				e.TotalValue, expected, totalValueTolerance))
		}
	case IncomeBonus:
		if !e.BonusFactor.IsPositive() {
			return nil, fmt.Errorf("%w: bonus factor must be positive", ErrIncomeInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIncomeType, e.Type)
	}

	if e.TaxWithheld.IsNegative() {
		return warnings, fmt.Errorf("%w: tax withheld must not be negative", ErrIncomeInvalid)
	}
	if e.TaxWithheld.GreaterThan(e.TotalValue) {
		return warnings, fmt.Errorf("%w: tax %s, total %s", ErrTaxExceedsTotal, e.TaxWithheld, e.TotalValue)
	}
	return warnings, nil
}

// NetValue is the total after withheld tax.
func (e *IncomeEvent) NetValue() decimal.Decimal {
	return e.TotalValue.Sub(e.TaxWithheld)
}

// YieldPercent relates the per-unit payment to the average cost the holder
// carried at payment time. Zero average cost yields zero.
func (e *IncomeEvent) YieldPercent(averageCostAtPayment decimal.Decimal) decimal.Decimal {
	if averageCostAtPayment.IsZero() {
		return decimal.Zero
	}
	return e.ValuePerUnit.Div(averageCostAtPayment).Mul(decimal.NewFromInt(100))
}

// BonusShares is the whole number of shares a BONUS issuance grants on the
// given holding quantity. Fractional entitlements are floored.
func (e *IncomeEvent) BonusShares(heldQuantity decimal.Decimal) decimal.Decimal {
	if e.Type != IncomeBonus || !e.BonusFactor.IsPositive() {
		return decimal.Zero
	}
	return heldQuantity.Div(e.BonusFactor).Floor()
}

// Apply folds the event into a position. Cash income accrues gross to total
// income; a bonus enlarges the quantity and dilutes the average cost, leaving
// invested capital untouched. The input is taken by value.
func (e *IncomeEvent) Apply(pos ledgerdomain.Position) (*ledgerdomain.Position, error) {
	if pos.AccountID != e.AccountID || pos.InstrumentID != e.InstrumentID {
		return nil, fmt.Errorf("%w: event is for %s/%s, position is %s/%s",
			ErrIncomeWrongHolding, e.AccountID, e.InstrumentID, pos.AccountID, pos.InstrumentID)
	}

	switch e.Type {
	case IncomeDividend, IncomeInterest:
		pos.TotalIncome = pos.TotalIncome.Add(e.TotalValue)
	case IncomeBonus:
		pos.Quantity = pos.Quantity.Add(e.BonusShares(pos.Quantity))
		if pos.Quantity.IsZero() {
			pos.AverageCost = decimal.Zero
		} else {
			pos.AverageCost = pos.TotalInvested.Div(pos.Quantity)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIncomeType, e.Type)
	}

	pos.LastUpdatedAt = e.PaymentDate
	return &pos, nil
}

// IncomeRepository persists income events.
type IncomeRepository interface {
	Save(ctx context.Context, event *IncomeEvent) error
	GetByIncomeID(ctx context.Context, incomeID string) (*IncomeEvent, error)
	ListByInstrument(ctx context.Context, instrumentID string) ([]*IncomeEvent, error)
	ListByAccount(ctx context.Context, accountID string) ([]*IncomeEvent, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
