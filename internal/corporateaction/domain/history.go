package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	ledgerdomain "github.com/wyfcoding/portfolioaccounting/internal/ledger/domain"
)

// priceFactor resolves the price rewrite factor: an explicit PriceFactor wins,
// otherwise the reciprocal of the quantity factor keeps trade values intact.
func (e *CorporateEvent) priceFactor() decimal.Decimal {
	if e.PriceFactor.IsPositive() {
		return e.PriceFactor
	}
	return decimal.NewFromInt(1).Div(e.QuantityFactor)
}

// AdjustHistory rewrites prior operations on the event's instrument so that
// per-share time series stay consistent after a split or reverse split.
// BONUS, SPINOFF, RIGHTS_ISSUE and MERGER never rewrite history. The input
// slice is not mutated; the rewritten copy is returned.
func AdjustHistory(ops []ledgerdomain.Operation, e *CorporateEvent) ([]ledgerdomain.Operation, []string, error) {
	if _, err := e.Validate(e.EffectiveDate); err != nil {
		return nil, nil, err
	}

	adjusted := make([]ledgerdomain.Operation, len(ops))
	copy(adjusted, ops)

	if e.Type != EventSplit && e.Type != EventReverseSplit {
		return adjusted, nil, nil
	}

	var warnings []string
	pf := e.priceFactor()
	for i := range adjusted {
		op := &adjusted[i]
		if op.InstrumentID != e.InstrumentID {
			continue
		}
		if !op.ExecutedAt.Before(e.EffectiveDate) {
			warnings = append(warnings, fmt.Sprintf(
				"operation %s on %s is dated %s, on or after the effective date %s, and was left unadjusted",
				op.OperationID, op.InstrumentID,
				op.ExecutedAt.Format("2006-01-02"), e.EffectiveDate.Format("2006-01-02")))
			continue
		}
		switch e.Type {
		case EventSplit:
			op.Quantity = op.Quantity.Mul(e.QuantityFactor)
			op.UnitPrice = op.UnitPrice.Mul(pf)
		case EventReverseSplit:
			op.Quantity = op.Quantity.Div(e.QuantityFactor)
			op.UnitPrice = op.UnitPrice.Div(pf)
		}
	}
	return adjusted, warnings, nil
}

// SortByEffectiveDate orders events ascending by effective date. Events on the
// same instrument must be applied in this order regardless of announcement or
// insertion order.
func SortByEffectiveDate(events []*CorporateEvent) []*CorporateEvent {
	sorted := make([]*CorporateEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveDate.Before(sorted[j].EffectiveDate)
	})
	return sorted
}

// CombinedResult is the outcome of applying a series of events to a position.
type CombinedResult struct {
	Position *ledgerdomain.Position   `json:"position"`
	SpunOff  []*ledgerdomain.Position `json:"spun_off,omitempty"`
	Warnings []string                 `json:"warnings,omitempty"`
}

// ApplyAll applies every event targeting the position's instrument in
// effective-date order. Spun-off positions seeded along the way are collected.
func ApplyAll(events []*CorporateEvent, pos ledgerdomain.Position) (*CombinedResult, error) {
	combined := &CombinedResult{Position: &pos}
	for _, event := range SortByEffectiveDate(events) {
		if event.InstrumentID != combined.Position.InstrumentID {
			continue
		}
		result, err := event.Apply(*combined.Position, event.EffectiveDate)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", event.EventID, err)
		}
		combined.Position = result.Position
		combined.Warnings = append(combined.Warnings, result.Warnings...)
		if result.SpunOff != nil {
			combined.SpunOff = append(combined.SpunOff, result.SpunOff)
		}
	}
	return combined, nil
}
