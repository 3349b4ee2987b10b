// Package domain implements the audit trail: immutable entries describing
// every mutation across the engine, a whitelist of actions that must be
// logged, reversal of reversible entries, and filtered reporting.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

type Action string

const (
	ActionCreate    Action = "CREATE"
	ActionUpdate    Action = "UPDATE"
	ActionDelete    Action = "DELETE"
	ActionCalculate Action = "CALCULATE"
	ActionAdjust    Action = "ADJUST"
	ActionTransfer  Action = "TRANSFER"
	ActionValidate  Action = "VALIDATE"
	ActionApprove   Action = "APPROVE"
	ActionReject    Action = "REJECT"
	ActionExecute   Action = "EXECUTE"
)

type EntityType string

const (
	EntityTransaction    EntityType = "TRANSACTION"
	EntityPosition       EntityType = "POSITION"
	EntityCorporateEvent EntityType = "CORPORATE_EVENT"
	EntityTransfer       EntityType = "TRANSFER"
	EntityIncomeEvent    EntityType = "INCOME_EVENT"
	EntityAdjustment     EntityType = "ADJUSTMENT"
)

type Source string

const (
	SourceInteractive  Source = "INTERACTIVE"
	SourceProgrammatic Source = "PROGRAMMATIC"
	SourceSystem       Source = "SYSTEM"
	SourceBatch        Source = "BATCH"
)

var (
	ErrNotReversible   = errors.New("audit entry is not reversible")
	ErrAlreadyReversed = errors.New("audit entry has already been reversed")
	ErrAuditInvalid    = errors.New("audit entry failed validation")
)

// mandatoryLog lists the (entity, action) pairs that must always be recorded.
var mandatoryLog = map[EntityType]map[Action]bool{
	EntityTransaction: {
		ActionCreate: true,
		ActionUpdate: true,
		ActionDelete: true,
	},
	EntityAdjustment: {
		ActionApprove: true,
		ActionReject:  true,
	},
	EntityTransfer: {
		ActionCreate:  true,
		ActionExecute: true,
	},
	EntityCorporateEvent: {
		ActionCreate:  true,
		ActionExecute: true,
	},
}

// IsAuditable reports whether logging is mandatory for the pair. Other pairs
// may still be logged at the caller's discretion.
func IsAuditable(entityType EntityType, action Action) bool {
	return mandatoryLog[entityType][action]
}

// FieldChange is one field that differs between the previous and new
// snapshots of an entry.
type FieldChange struct {
	Field    string `json:"field"`
	Previous any    `json:"previous"`
	New      any    `json:"new"`
}

// AuditEntry records one mutation. Entries are immutable once written except
// for the reversal back-reference.
type AuditEntry struct {
	gorm.Model
	EntryID      string     `gorm:"column:entry_id;type:varchar(64);uniqueIndex;not null" json:"entry_id"`
	EntityType   EntityType `gorm:"column:entity_type;type:varchar(32);index;not null" json:"entity_type"`
	EntityID     string     `gorm:"column:entity_id;type:varchar(64);index;not null" json:"entity_id"`
	Action       Action     `gorm:"column:action;type:varchar(16);index;not null" json:"action"`
	PreviousData string     `gorm:"column:previous_data;type:json" json:"previous_data,omitempty"`
	NewData      string     `gorm:"column:new_data;type:json" json:"new_data,omitempty"`
	Actor        string     `gorm:"column:actor;type:varchar(64);index;not null" json:"actor"`
	Source       Source     `gorm:"column:source;type:varchar(16);not null" json:"source"`
	Timestamp    time.Time  `gorm:"column:timestamp;index;not null" json:"timestamp"`
	Reversible   bool       `gorm:"column:reversible;not null;default:false" json:"reversible"`
	ReversedBy   string     `gorm:"column:reversed_by;type:varchar(64)" json:"reversed_by,omitempty"`
	ReversalOf   string     `gorm:"column:reversal_of;type:varchar(64)" json:"reversal_of,omitempty"`
}

func (AuditEntry) TableName() string { return "audit_entries" }

// RecordOptions carries the optional parts of an entry.
type RecordOptions struct {
	Previous   any
	New        any
	Source     Source
	Reversible bool
}

// Record builds an entry for one mutation. Snapshots are serialized to JSON;
// a nil snapshot is stored empty. Source defaults to SYSTEM.
func Record(entryID string, entityType EntityType, entityID string, action Action, actor string, ts time.Time, opts RecordOptions) (*AuditEntry, error) {
	if entityID == "" || actor == "" {
		return nil, fmt.Errorf("%w: entity id and actor are required", ErrAuditInvalid)
	}

	entry := &AuditEntry{
		EntryID:    entryID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Source:     opts.Source,
		Timestamp:  ts,
		Reversible: opts.Reversible,
	}
	if entry.Source == "" {
		entry.Source = SourceSystem
	}

	var err error
	if entry.PreviousData, err = marshalSnapshot(opts.Previous); err != nil {
		return nil, fmt.Errorf("previous snapshot: %w", err)
	}
	if entry.NewData, err = marshalSnapshot(opts.New); err != nil {
		return nil, fmt.Errorf("new snapshot: %w", err)
	}
	return entry, nil
}

func marshalSnapshot(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ChangedFields projects the difference between the two snapshots as typed
// field changes. Only top-level fields are compared. Fields present on one
// side only appear with a nil counterpart.
func (e *AuditEntry) ChangedFields() ([]FieldChange, error) {
	prev, err := unmarshalSnapshot(e.PreviousData)
	if err != nil {
		return nil, fmt.Errorf("previous snapshot: %w", err)
	}
	next, err := unmarshalSnapshot(e.NewData)
	if err != nil {
		return nil, fmt.Errorf("new snapshot: %w", err)
	}

	keys := make(map[string]bool, len(prev)+len(next))
	for k := range prev {
		keys[k] = true
	}
	for k := range next {
		keys[k] = true
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	var changes []FieldChange
	for _, k := range names {
		pv, nv := prev[k], next[k]
		if string(mustJSON(pv)) == string(mustJSON(nv)) {
			continue
		}
		changes = append(changes, FieldChange{Field: k, Previous: pv, New: nv})
	}
	return changes, nil
}

func unmarshalSnapshot(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return raw
}

// Reverse produces a compensating entry with the snapshots swapped, linked
// back to the original. The reversal itself is never reversible, and an entry
// can only be reversed once.
func (e *AuditEntry) Reverse(reversalID, actor string, ts time.Time) (*AuditEntry, error) {
	if !e.Reversible {
		return nil, fmt.Errorf("%w: %s", ErrNotReversible, e.EntryID)
	}
	if e.ReversedBy != "" {
		return nil, fmt.Errorf("%w: %s reversed by %s", ErrAlreadyReversed, e.EntryID, e.ReversedBy)
	}
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrAuditInvalid)
	}

	reversal := &AuditEntry{
		EntryID:      reversalID,
		EntityType:   e.EntityType,
		EntityID:     e.EntityID,
		Action:       e.Action,
		PreviousData: e.NewData,
		NewData:      e.PreviousData,
		Actor:        actor,
		Source:       e.Source,
		Timestamp:    ts,
		Reversible:   false,
		ReversalOf:   e.EntryID,
	}
	e.ReversedBy = reversalID
	return reversal, nil
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Save(ctx context.Context, entry *AuditEntry) error
	Update(ctx context.Context, entry *AuditEntry) error
	GetByEntryID(ctx context.Context, entryID string) (*AuditEntry, error)
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]*AuditEntry, error)
	ListAll(ctx context.Context) ([]*AuditEntry, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
