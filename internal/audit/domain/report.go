package domain

import (
	"sort"
	"time"
)

// Filter narrows an audit query. Zero values mean "no constraint". Limit 0
// means no page cap.
type Filter struct {
	EntityType EntityType `json:"entity_type,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	Actions    []Action   `json:"actions,omitempty"`
	From       time.Time  `json:"from,omitempty"`
	To         time.Time  `json:"to,omitempty"`
	Offset     int        `json:"offset,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

func (f *Filter) matches(e *AuditEntry) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// ActivityCount pairs a grouping key with how many entries it accounts for.
type ActivityCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Report is the outcome of a filtered audit query: the matching page plus
// aggregate counts over everything that matched before pagination.
type Report struct {
	Entries    []*AuditEntry   `json:"entries"`
	TotalCount int             `json:"total_count"`
	ByAction   []ActivityCount `json:"by_action"`
	ByEntity   []ActivityCount `json:"by_entity"`
	ByActor    []ActivityCount `json:"by_actor"`
}

// BuildReport filters the given entries, sorts them newest first, paginates,
// and aggregates per-action, per-entity-type and per-actor counts over the
// full match set. Count lists are sorted descending, ties broken by key.
func BuildReport(entries []*AuditEntry, filter Filter) *Report {
	var matched []*AuditEntry
	for _, e := range entries {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	byAction := make(map[string]int)
	byEntity := make(map[string]int)
	byActor := make(map[string]int)
	for _, e := range matched {
		byAction[string(e.Action)]++
		byEntity[string(e.EntityType)]++
		byActor[e.Actor]++
	}

	report := &Report{
		TotalCount: len(matched),
		ByAction:   sortedCounts(byAction),
		ByEntity:   sortedCounts(byEntity),
		ByActor:    sortedCounts(byActor),
	}

	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	report.Entries = matched[start:end]
	return report
}

func sortedCounts(m map[string]int) []ActivityCount {
	counts := make([]ActivityCount, 0, len(m))
	for k, v := range m {
		counts = append(counts, ActivityCount{Key: k, Count: v})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Key < counts[j].Key
	})
	return counts
}
