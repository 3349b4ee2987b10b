// Package domain models corporate events (splits, bonuses, spin-offs, rights
// issues, mergers) and their mechanical effect on positions and on the
// historical operation log.
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

type EventType string

const (
	EventSplit        EventType = "SPLIT"
	EventReverseSplit EventType = "REVERSE_SPLIT"
	EventBonus        EventType = "BONUS"
	EventSpinoff      EventType = "SPINOFF"
	EventRightsIssue  EventType = "RIGHTS_ISSUE"
	EventMerger       EventType = "MERGER"
)

type EventStatus string

const (
	EventStatusAnnounced EventStatus = "ANNOUNCED"
	EventStatusConfirmed EventStatus = "CONFIRMED"
	EventStatusExecuted  EventStatus = "EXECUTED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

var (
	ErrEventCancelled     = errors.New("corporate event is cancelled")
	ErrEventNotApplicable = errors.New("corporate event does not apply to this position")
	ErrInvalidFactor      = errors.New("corporate event factor must be positive")
	ErrMissingInstrument  = errors.New("corporate event requires a target instrument")
	ErrInvalidTransition  = errors.New("invalid corporate event status transition")
	ErrUnsupportedType    = errors.New("unsupported corporate event type")
)

// CorporateEvent is one issuer action on an instrument. QuantityFactor drives
// the quantity arithmetic; PriceFactor, when set, overrides the reciprocal
// price rewrite used for historical operations.
type CorporateEvent struct {
	gorm.Model
	EventID           string          `gorm:"column:event_id;type:varchar(64);uniqueIndex;not null" json:"event_id"`
	InstrumentID      string          `gorm:"column:instrument_id;type:varchar(32);index;not null" json:"instrument_id"`
	Type              EventType       `gorm:"column:type;type:varchar(16);not null" json:"type"`
	Status            EventStatus     `gorm:"column:status;type:varchar(16);not null;default:'ANNOUNCED'" json:"status"`
	RecordDate        time.Time       `gorm:"column:record_date" json:"record_date"`
	EffectiveDate     time.Time       `gorm:"column:effective_date;index;not null" json:"effective_date"`
	QuantityFactor    decimal.Decimal `gorm:"column:quantity_factor;type:decimal(20,8)" json:"quantity_factor"`
	PriceFactor       decimal.Decimal `gorm:"column:price_factor;type:decimal(20,8)" json:"price_factor"`
	NewInstrumentID   string          `gorm:"column:new_instrument_id;type:varchar(32)" json:"new_instrument_id,omitempty"`
	ConversionRatio   decimal.Decimal `gorm:"column:conversion_ratio;type:decimal(20,8)" json:"conversion_ratio"`
	SubscriptionPrice decimal.Decimal `gorm:"column:subscription_price;type:decimal(20,8)" json:"subscription_price"`
	SubscriptionRatio decimal.Decimal `gorm:"column:subscription_ratio;type:decimal(20,8)" json:"subscription_ratio"`
}

func (CorporateEvent) TableName() string { return "corporate_events" }

func NewCorporateEvent(eventID, instrumentID string, typ EventType) *CorporateEvent {
	return &CorporateEvent{
		EventID:      eventID,
		InstrumentID: instrumentID,
		Type:         typ,
		Status:       EventStatusAnnounced,
	}
}

// Confirm moves an announced event to CONFIRMED.
func (e *CorporateEvent) Confirm() error {
	if e.Status != EventStatusAnnounced {
		return fmt.Errorf("%w: %s -> CONFIRMED", ErrInvalidTransition, e.Status)
	}
	e.Status = EventStatusConfirmed
	return nil
}

// Cancel is allowed from any state except EXECUTED.
func (e *CorporateEvent) Cancel() error {
	if e.Status == EventStatusExecuted {
		return fmt.Errorf("%w: %s -> CANCELLED", ErrInvalidTransition, e.Status)
	}
	e.Status = EventStatusCancelled
	return nil
}

// MarkExecuted records that the event has been applied to positions.
func (e *CorporateEvent) MarkExecuted() error {
	if e.Status == EventStatusCancelled {
		return fmt.Errorf("%w: %s -> EXECUTED", ErrInvalidTransition, e.Status)
	}
	e.Status = EventStatusExecuted
	return nil
}

// ApplyResult is the outcome of applying one event to one position.
type ApplyResult struct {
	Position *ledgerdomain.Position `json:"position"`
	// SpunOff is the newly seeded position for a SPINOFF, nil otherwise.
	SpunOff  *ledgerdomain.Position `json:"spun_off,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
}

// Validate checks whether the event can be applied at all. Warnings do not
// block application.
func (e *CorporateEvent) Validate(now time.Time) ([]string, error) {
	if e.Status == EventStatusCancelled {
		return nil, ErrEventCancelled
	}
	var warnings []string
	if e.Status == EventStatusAnnounced && e.EffectiveDate.Before(now) {
		warnings = append(warnings,
			fmt.Sprintf("event %s is still ANNOUNCED but its effective date %s has passed",
				e.EventID, e.EffectiveDate.Format("2006-01-02")))
	}
	switch e.Type {
	case EventSplit, EventReverseSplit, EventBonus:
		if !e.QuantityFactor.IsPositive() {
			return warnings, ErrInvalidFactor
		}
	case EventSpinoff, EventMerger:
		if e.NewInstrumentID == "" {
			return warnings, ErrMissingInstrument
		}
		if !e.ConversionRatio.IsPositive() {
			return warnings, ErrInvalidFactor
		}
	case EventRightsIssue:
		// entitlement-only, nothing to check beyond dates
	default:
		return warnings, fmt.Errorf("%w: %q", ErrUnsupportedType, e.Type)
	}
	return warnings, nil
}

// Apply transforms a position according to the event. The input is taken by
// value; the caller's position is never mutated.
func (e *CorporateEvent) Apply(pos ledgerdomain.Position, now time.Time) (*ApplyResult, error) {
	warnings, err := e.Validate(now)
	if err != nil {
		return nil, err
	}
	if pos.InstrumentID != e.InstrumentID {
		return nil, fmt.Errorf("%w: event targets %s, position holds %s",
			ErrEventNotApplicable, e.InstrumentID, pos.InstrumentID)
	}

	result := &ApplyResult{Warnings: warnings}

	switch e.Type {
	case EventSplit:
		pos.Quantity = pos.Quantity.Mul(e.QuantityFactor)
		pos.AverageCost = pos.AverageCost.Div(e.QuantityFactor)

	case EventReverseSplit:
		pos.Quantity = pos.Quantity.Div(e.QuantityFactor)
		pos.AverageCost = pos.AverageCost.Mul(e.QuantityFactor)

	case EventBonus:
		bonusShares := pos.Quantity.Div(e.QuantityFactor).Floor()
		pos.Quantity = pos.Quantity.Add(bonusShares)
		if pos.Quantity.IsZero() {
			pos.AverageCost = decimal.Zero
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("bonus on flat position %s/%s has no effect", pos.AccountID, pos.InstrumentID))
		} else {
			// dilution: invested capital spread over the enlarged quantity
			pos.AverageCost = pos.TotalInvested.Div(pos.Quantity)
		}

	case EventSpinoff:
		spun := ledgerdomain.NewPosition(pos.AccountID, e.NewInstrumentID)
		spun.Quantity = pos.Quantity.Mul(e.ConversionRatio)
		spun.LastUpdatedAt = e.EffectiveDate
		// spun-off shares carry zero cost; the market prices them
		result.SpunOff = spun

	case EventRightsIssue:
		// records entitlement terms only; an actual subscription arrives
		// later as a plain BUY operation

	case EventMerger:
		newQty := pos.Quantity.Mul(e.ConversionRatio)
		pos.InstrumentID = e.NewInstrumentID
		pos.Quantity = newQty
		if newQty.IsZero() {
			pos.AverageCost = decimal.Zero
		} else {
			pos.AverageCost = pos.TotalInvested.Div(newQty)
		}
	}

	pos.LastUpdatedAt = e.EffectiveDate
	result.Position = &pos
	return result, nil
}

// EventRepository persists corporate events.
type EventRepository interface {
	Save(ctx context.Context, event *CorporateEvent) error
	GetByEventID(ctx context.Context, eventID string) (*CorporateEvent, error)
	ListByInstrument(ctx context.Context, instrumentID string) ([]*CorporateEvent, error)
	ListByStatus(ctx context.Context, status EventStatus) ([]*CorporateEvent, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
