package domain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Aggregates summarizes a snapshot across all positions.
type Aggregates struct {
	TotalInvested   decimal.Decimal `json:"total_invested"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	InstrumentCount int             `json:"instrument_count"`
	OperationCount  int             `json:"operation_count"`
}

// FoldFailure records one (account, instrument) key whose replay was
// rejected. Reason carries the failure text so snapshots survive
// serialization; Err holds the typed error for in-process callers.
type FoldFailure struct {
	Key    Key    `json:"key"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Snapshot is the result of replaying a full operation log: one position per
// key that folded cleanly, portfolio aggregates, accumulated warnings, and the
// keys that failed. Callers choose whether a failure aborts or is skipped.
type Snapshot struct {
	Positions  []*Position   `json:"positions"`
	Aggregates Aggregates    `json:"aggregates"`
	Warnings   []string      `json:"warnings,omitempty"`
	Failures   []FoldFailure `json:"failures,omitempty"`
}

// Replay folds the operations of a single key, oldest first, into a fresh
// position. A SELL exceeding the running quantity rejects the whole key.
func Replay(accountID, instrumentID string, ops []Operation) (*Position, []string, error) {
	pos := NewPosition(accountID, instrumentID)
	var warnings []string
	for _, op := range SortOperations(ops) {
		w, err := pos.Apply(op)
		if err != nil {
			return nil, warnings, err
		}
		warnings = append(warnings, w...)
	}
	return pos, warnings, nil
}

// Compute replays an unordered operation log into a snapshot. Keys are
// independent; each is folded in chronological order and the results are
// returned in deterministic key order. Per-key failures are collected in the
// snapshot and joined into the returned error, so a caller can either abort
// (check the error) or continue with the surviving positions.
func Compute(operations []Operation, prices map[string]decimal.Decimal) (*Snapshot, error) {
	grouped := GroupByKey(operations)

	keys := make([]Key, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].AccountID == keys[j].AccountID {
			return keys[i].InstrumentID < keys[j].InstrumentID
		}
		return keys[i].AccountID < keys[j].AccountID
	})

	snap := &Snapshot{
		Aggregates: Aggregates{
			TotalInvested:  decimal.Zero,
			CurrentValue:   decimal.Zero,
			OperationCount: len(operations),
		},
	}

	instruments := make(map[string]struct{})
	var errs []error

	for _, key := range keys {
		instruments[key.InstrumentID] = struct{}{}

		pos, warnings, err := Replay(key.AccountID, key.InstrumentID, grouped[key])
		snap.Warnings = append(snap.Warnings, warnings...)
		if err != nil {
			snap.Failures = append(snap.Failures, FoldFailure{Key: key, Reason: err.Error(), Err: err})
			errs = append(errs, fmt.Errorf("%s/%s: %w", key.AccountID, key.InstrumentID, err))
			continue
		}

		snap.Positions = append(snap.Positions, pos)
		snap.Aggregates.TotalInvested = snap.Aggregates.TotalInvested.Add(pos.TotalInvested)
		if price, ok := prices[key.InstrumentID]; ok {
			snap.Aggregates.CurrentValue = snap.Aggregates.CurrentValue.Add(pos.MarketValue(price))
		} else if !pos.Quantity.IsZero() {
			snap.Warnings = append(snap.Warnings,
				fmt.Sprintf("no current price for %s: market value counted as zero", key.InstrumentID))
		}
	}

	snap.Aggregates.InstrumentCount = len(instruments)
	return snap, errors.Join(errs...)
}
