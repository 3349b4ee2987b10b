package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrUnknownOperationKind = errors.New("unknown operation kind")
)

// InsufficientQuantityError signals a SELL that exceeds the quantity held at
// that point of the fold. The position is left at its pre-sale state.
type InsufficientQuantityError struct {
	AccountID    string
	InstrumentID string
	Requested    decimal.Decimal
	Available    decimal.Decimal
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity for %s/%s: requested %s, available %s",
		e.AccountID, e.InstrumentID, e.Requested, e.Available)
}

// Position is the aggregated holding state for one (account, instrument) key.
// Quantity never goes below zero; a flat position (zero quantity, zero
// invested) is kept around for history rather than deleted.
type Position struct {
	gorm.Model
	AccountID      string          `gorm:"column:account_id;type:varchar(32);uniqueIndex:idx_position_key;not null" json:"account_id"`
	InstrumentID   string          `gorm:"column:instrument_id;type:varchar(32);uniqueIndex:idx_position_key;not null" json:"instrument_id"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:decimal(20,8);not null;default:0" json:"quantity"`
	AverageCost    decimal.Decimal `gorm:"column:average_cost;type:decimal(20,8);not null;default:0" json:"average_cost"`
	TotalInvested  decimal.Decimal `gorm:"column:total_invested;type:decimal(20,8);not null;default:0" json:"total_invested"`
	RealizedProfit decimal.Decimal `gorm:"column:realized_profit;type:decimal(20,8);not null;default:0" json:"realized_profit"`
	TotalIncome    decimal.Decimal `gorm:"column:total_income;type:decimal(20,8);not null;default:0" json:"total_income"`
	LastUpdatedAt  time.Time       `gorm:"column:last_updated_at" json:"last_updated_at"`
}

func (Position) TableName() string { return "ledger_positions" }

func NewPosition(accountID, instrumentID string) *Position {
	return &Position{
		AccountID:      accountID,
		InstrumentID:   instrumentID,
		Quantity:       decimal.Zero,
		AverageCost:    decimal.Zero,
		TotalInvested:  decimal.Zero,
		RealizedProfit: decimal.Zero,
		TotalIncome:    decimal.Zero,
	}
}

// Apply folds one operation into the position. Returned warnings are advisory
// (e.g. an average cost reset after a division guard); a returned error means
// the operation was rejected and the position is unchanged.
func (p *Position) Apply(op Operation) ([]string, error) {
	var warnings []string

	switch op.Kind {
	case OperationBuy:
		warnings = p.applyBuy(op)
	case OperationSell:
		if err := p.applySell(op); err != nil {
			return nil, err
		}
	case OperationDividend, OperationInterest:
		p.applyIncome(op)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperationKind, op.Kind)
	}

	p.LastUpdatedAt = op.ExecutedAt
	return warnings, nil
}

func (p *Position) applyBuy(op Operation) []string {
	gross := op.Quantity.Mul(op.UnitPrice).Add(op.Fees)
	p.Quantity = p.Quantity.Add(op.Quantity)
	p.TotalInvested = p.TotalInvested.Add(gross)
	if p.Quantity.IsZero() {
		// quantity > 0 is validated upstream; guard the division regardless
		p.AverageCost = decimal.Zero
		return []string{fmt.Sprintf("average cost for %s/%s reset to zero: zero quantity after buy", p.AccountID, p.InstrumentID)}
	}
	p.AverageCost = p.TotalInvested.Div(p.Quantity)
	return nil
}

// applySell books realized profit against the running average cost. Proceeds
// are quantity*price plus fees: this matches the historical books this ledger
// carries forward, and changing the sign would restate every past sale.
func (p *Position) applySell(op Operation) error {
	if p.Quantity.LessThan(op.Quantity) {
		return &InsufficientQuantityError{
			AccountID:    p.AccountID,
			InstrumentID: p.InstrumentID,
			Requested:    op.Quantity,
			Available:    p.Quantity,
		}
	}

	costOfSold := op.Quantity.Mul(p.AverageCost)
	proceeds := op.Quantity.Mul(op.UnitPrice).Add(op.Fees)

	p.RealizedProfit = p.RealizedProfit.Add(proceeds.Sub(costOfSold))
	p.TotalInvested = p.TotalInvested.Sub(costOfSold)
	p.Quantity = p.Quantity.Sub(op.Quantity)
	// average cost is unchanged by a sale
	return nil
}

func (p *Position) applyIncome(op Operation) {
	p.TotalIncome = p.TotalIncome.Add(op.Quantity.Mul(op.UnitPrice))
}

// MarketValue is the current worth of the held quantity at the given price.
func (p *Position) MarketValue(currentPrice decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(currentPrice)
}

// UnrealizedProfit is the paper gain or loss against invested capital.
func (p *Position) UnrealizedProfit(currentPrice decimal.Decimal) decimal.Decimal {
	return p.MarketValue(currentPrice).Sub(p.TotalInvested)
}

// TotalReturn combines paper gains, realized profit and received income.
func (p *Position) TotalReturn(currentPrice decimal.Decimal) decimal.Decimal {
	return p.UnrealizedProfit(currentPrice).Add(p.RealizedProfit).Add(p.TotalIncome)
}

// ReturnPercent is the total return over invested capital, as a percentage.
// Zero invested capital yields zero rather than a division error.
func (p *Position) ReturnPercent(currentPrice decimal.Decimal) decimal.Decimal {
	if p.TotalInvested.IsZero() {
		return decimal.Zero
	}
	return p.TotalReturn(currentPrice).Div(p.TotalInvested).Mul(decimal.NewFromInt(100))
}

// IsFlat reports whether the position is conceptually closed.
func (p *Position) IsFlat() bool {
	return p.Quantity.IsZero() && p.TotalInvested.IsZero()
}
