// Package domain holds the position ledger: buy/sell/income operations and the
// weighted-average-cost fold that turns them into per-(account, instrument) positions.
package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OperationKind string

const (
	OperationBuy      OperationKind = "BUY"
	OperationSell     OperationKind = "SELL"
	OperationDividend OperationKind = "DIVIDEND"
	OperationInterest OperationKind = "INTEREST"
)

// Operation is one immutable entry of the operation log. Ordering within a
// (account, instrument) key is ExecutedAt ascending, Sequence as tiebreak.
type Operation struct {
	gorm.Model
	OperationID  string          `gorm:"column:operation_id;type:varchar(64);uniqueIndex;not null" json:"operation_id"`
	AccountID    string          `gorm:"column:account_id;type:varchar(32);index:idx_account_instrument;not null" json:"account_id"`
	InstrumentID string          `gorm:"column:instrument_id;type:varchar(32);index:idx_account_instrument;not null" json:"instrument_id"`
	Kind         OperationKind   `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:decimal(20,8);not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:decimal(20,8);not null" json:"unit_price"`
	Fees         decimal.Decimal `gorm:"column:fees;type:decimal(20,8);not null;default:0" json:"fees"`
	ExecutedAt   time.Time       `gorm:"column:executed_at;index;not null" json:"executed_at"`
	Sequence     uint64          `gorm:"column:sequence;index;not null" json:"sequence"`
	Notes        string          `gorm:"column:notes;type:text" json:"notes,omitempty"`
	Source       string          `gorm:"column:source;type:varchar(32)" json:"source,omitempty"`
}

func (Operation) TableName() string { return "ledger_operations" }

// Key identifies one position: a single instrument held in a single account.
type Key struct {
	AccountID    string `json:"account_id"`
	InstrumentID string `json:"instrument_id"`
}

func (o *Operation) Key() Key {
	return Key{AccountID: o.AccountID, InstrumentID: o.InstrumentID}
}

// Validate checks field-level constraints before an operation enters the log.
func (o *Operation) Validate() []string {
	var errs []string
	if o.AccountID == "" {
		errs = append(errs, "account_id is required")
	}
	if o.InstrumentID == "" {
		errs = append(errs, "instrument_id is required")
	}
	switch o.Kind {
	case OperationBuy, OperationSell, OperationDividend, OperationInterest:
	default:
		errs = append(errs, fmt.Sprintf("unknown operation kind %q", o.Kind))
	}
	if !o.Quantity.IsPositive() {
		errs = append(errs, "quantity must be greater than zero")
	}
	if o.UnitPrice.IsNegative() {
		errs = append(errs, "unit_price must not be negative")
	}
	if o.Fees.IsNegative() {
		errs = append(errs, "fees must not be negative")
	}
	if o.ExecutedAt.IsZero() {
		errs = append(errs, "executed_at is required")
	}
	return errs
}

// SortOperations orders operations chronologically, insertion order as tiebreak.
// The fold is order-dependent, so every replay must go through here first.
func SortOperations(ops []Operation) []Operation {
	sorted := make([]Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ExecutedAt.Equal(sorted[j].ExecutedAt) {
			return sorted[i].Sequence < sorted[j].Sequence
		}
		return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
	})
	return sorted
}

// GroupByKey splits an operation log into independent per-position streams.
func GroupByKey(ops []Operation) map[Key][]Operation {
	grouped := make(map[Key][]Operation)
	for _, op := range ops {
		grouped[op.Key()] = append(grouped[op.Key()], op)
	}
	return grouped
}
