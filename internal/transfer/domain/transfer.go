// Package domain implements custody transfers: moving a holding between two
// accounts while preserving its cost basis. Execution materializes as a paired
// synthetic SELL/BUY priced at the source average cost, so the move is value
// neutral and the ledger can re-derive both sides uniformly.
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

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusExecuted  TransferStatus = "EXECUTED"
	TransferStatusCancelled TransferStatus = "CANCELLED"
	TransferStatusFailed    TransferStatus = "FAILED"
)

var (
	ErrTransferNotPending = errors.New("transfer is not pending")
	ErrTransferInvalid    = errors.New("transfer failed validation")
)

// Transfer moves a quantity of one instrument from a source custody account to
// a destination account.
type Transfer struct {
	gorm.Model
	TransferID      string          `gorm:"column:transfer_id;type:varchar(64);uniqueIndex;not null" json:"transfer_id"`
	SourceAccountID string          `gorm:"column:source_account_id;type:varchar(32);index;not null" json:"source_account_id"`
	DestAccountID   string          `gorm:"column:dest_account_id;type:varchar(32);index;not null" json:"dest_account_id"`
	InstrumentID    string          `gorm:"column:instrument_id;type:varchar(32);index;not null" json:"instrument_id"`
	Quantity        decimal.Decimal `gorm:"column:quantity;type:decimal(20,8);not null" json:"quantity"`
	CostBasis       decimal.Decimal `gorm:"column:cost_basis;type:decimal(20,8);not null;default:0" json:"cost_basis"`
	Status          TransferStatus  `gorm:"column:status;type:varchar(16);not null;default:'PENDING'" json:"status"`
	FailureReason   string          `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	ExecutedAt      *time.Time      `gorm:"column:executed_at" json:"executed_at,omitempty"`
}

func (Transfer) TableName() string { return "custody_transfers" }

func NewTransfer(transferID, sourceAccountID, destAccountID, instrumentID string, quantity decimal.Decimal) *Transfer {
	return &Transfer{
		TransferID:      transferID,
		SourceAccountID: sourceAccountID,
		DestAccountID:   destAccountID,
		InstrumentID:    instrumentID,
		Quantity:        quantity,
		CostBasis:       decimal.Zero,
		Status:          TransferStatusPending,
	}
}

// ValidationResult reports whether a transfer may execute, and projects the
// post-transfer state of both sides without committing anything.
type ValidationResult struct {
	Valid           bool                   `json:"valid"`
	Errors          []string               `json:"errors,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
	ProjectedSource *ledgerdomain.Position `json:"projected_source,omitempty"`
	ProjectedDest   *ledgerdomain.Position `json:"projected_dest,omitempty"`
}

// Validate checks the transfer against the current source and destination
// positions. knownAccounts is the set of custody accounts that exist; dest may
// be nil when the destination holds nothing of this instrument yet.
func (t *Transfer) Validate(source, dest *ledgerdomain.Position, knownAccounts map[string]bool) *ValidationResult {
	result := &ValidationResult{}

	if t.SourceAccountID == "" || t.DestAccountID == "" {
		result.Errors = append(result.Errors, "source and destination accounts are required")
	}
	if knownAccounts != nil {
		if t.SourceAccountID != "" && !knownAccounts[t.SourceAccountID] {
			result.Errors = append(result.Errors, fmt.Sprintf("source account %s does not exist", t.SourceAccountID))
		}
		if t.DestAccountID != "" && !knownAccounts[t.DestAccountID] {
			result.Errors = append(result.Errors, fmt.Sprintf("destination account %s does not exist", t.DestAccountID))
		}
	}
	if t.SourceAccountID == t.DestAccountID {
		result.Errors = append(result.Errors, "source and destination accounts must differ")
	}
	if !t.Quantity.IsPositive() {
		result.Errors = append(result.Errors, "quantity must be greater than zero")
	}

	if source == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("source account holds no %s", t.InstrumentID))
	} else if source.Quantity.LessThan(t.Quantity) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"insufficient quantity in source account: requested %s, available %s",
			t.Quantity, source.Quantity))
	}

	if len(result.Errors) > 0 {
		return result
	}

	result.Valid = true
	result.ProjectedSource = t.projectSource(source)
	result.ProjectedDest = t.projectDest(source, dest)
	if result.ProjectedSource.Quantity.IsZero() {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("transfer empties the source position %s/%s", t.SourceAccountID, t.InstrumentID))
	}
	return result
}

// projectSource removes the transferred quantity at unchanged average cost.
func (t *Transfer) projectSource(source *ledgerdomain.Position) *ledgerdomain.Position {
	projected := *source
	projected.Quantity = source.Quantity.Sub(t.Quantity)
	projected.TotalInvested = source.TotalInvested.Sub(t.Quantity.Mul(source.AverageCost))
	return &projected
}

// projectDest blends the carried cost basis into the destination: the new
// average cost is the quantity-weighted mix of both sides.
func (t *Transfer) projectDest(source, dest *ledgerdomain.Position) *ledgerdomain.Position {
	var projected ledgerdomain.Position
	if dest != nil {
		projected = *dest
	} else {
		projected = *ledgerdomain.NewPosition(t.DestAccountID, t.InstrumentID)
	}

	carried := t.Quantity.Mul(source.AverageCost)
	newQty := projected.Quantity.Add(t.Quantity)
	projected.AverageCost = projected.Quantity.Mul(projected.AverageCost).Add(carried).Div(newQty)
	projected.Quantity = newQty
	projected.TotalInvested = projected.TotalInvested.Add(carried)
	return &projected
}

// ExecutionResult carries the paired synthetic operations a successful
// transfer materializes as.
type ExecutionResult struct {
	SourceOp ledgerdomain.Operation `json:"source_op"`
	DestOp   ledgerdomain.Operation `json:"dest_op"`
}

// Execute validates and, if clean, produces the synthetic operation pair and
// marks the transfer EXECUTED. On validation failure the transfer is marked
// FAILED and no operations are produced (all-or-nothing). Operation IDs and
// sequences are assigned by the caller before persisting.
func (t *Transfer) Execute(source, dest *ledgerdomain.Position, knownAccounts map[string]bool, now time.Time) (*ExecutionResult, *ValidationResult, error) {
	if t.Status != TransferStatusPending {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrTransferNotPending, t.TransferID, t.Status)
	}

	validation := t.Validate(source, dest, knownAccounts)
	if !validation.Valid {
		t.Status = TransferStatusFailed
		t.FailureReason = fmt.Sprintf("%v", validation.Errors)
		return nil, validation, fmt.Errorf("%w: %v", ErrTransferInvalid, validation.Errors)
	}

	price := source.AverageCost
	t.CostBasis = t.Quantity.Mul(price)
	t.Status = TransferStatusExecuted
	t.ExecutedAt = &now

	note := fmt.Sprintf("custody transfer %s", t.TransferID)
	return &ExecutionResult{
		SourceOp: ledgerdomain.Operation{
			AccountID:    t.SourceAccountID,
			InstrumentID: t.InstrumentID,
			Kind:         ledgerdomain.OperationSell,
			Quantity:     t.Quantity,
			UnitPrice:    price,
			Fees:         decimal.Zero,
			ExecutedAt:   now,
			Notes:        note,
			Source:       "system",
		},
		DestOp: ledgerdomain.Operation{
			AccountID:    t.DestAccountID,
			InstrumentID: t.InstrumentID,
			Kind:         ledgerdomain.OperationBuy,
			Quantity:     t.Quantity,
			UnitPrice:    price,
			Fees:         decimal.Zero,
			ExecutedAt:   now,
			Notes:        note,
			Source:       "system",
		},
	}, validation, nil
}

// Cancel withdraws a pending transfer.
func (t *Transfer) Cancel() error {
	if t.Status != TransferStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrTransferNotPending, t.TransferID, t.Status)
	}
	t.Status = TransferStatusCancelled
	return nil
}

// TransferRepository persists transfers.
type TransferRepository interface {
	Save(ctx context.Context, transfer *Transfer) error
	GetByTransferID(ctx context.Context, transferID string) (*Transfer, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Transfer, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
