package usage

import (
	"encoding/json"
	"fmt"
	"time"
)

const ledgerVersion = 1

// Retention horizons for the rolling dictionaries. The all-time accumulator
// never shrinks.
const (
	dailyRetentionDays     = 31
	weeklyRetentionWeeks   = 12
	monthlyRetentionMonths = 12
)

// Bucket is one rolling-window aggregate.
type Bucket struct {
	Tokens
	Executions int  `json:"executions"`
	Cost       Cost `json:"cost"`
}

// AllTime is the never-pruned accumulator.
type AllTime struct {
	Bucket
	FirstExecution *time.Time `json:"firstExecution,omitempty"`
	LastExecution  *time.Time `json:"lastExecution,omitempty"`
}

// Scope holds the three rolling dictionaries plus the all-time accumulator.
// The global ledger and each ceremony kind get one scope each, updated by
// the same routine so their semantics cannot drift apart.
type Scope struct {
	Daily   map[string]*Bucket `json:"daily"`
	Weekly  map[string]*Bucket `json:"weekly"`
	Monthly map[string]*Bucket `json:"monthly"`
	AllTime *AllTime           `json:"allTime"`
}

func newScope() *Scope {
	return &Scope{
		Daily:   map[string]*Bucket{},
		Weekly:  map[string]*Bucket{},
		Monthly: map[string]*Bucket{},
		AllTime: &AllTime{},
	}
}

// Ledger is the persisted usage document. Ceremony scopes sit at the top
// level of the JSON object next to the reserved keys, so (un)marshaling is
// custom.
type Ledger struct {
	Version     int
	LastUpdated time.Time
	Totals      *Scope
	Ceremonies  map[string]*Scope
}

func newLedger() *Ledger {
	return &Ledger{
		Version:    ledgerVersion,
		Totals:     newScope(),
		Ceremonies: map[string]*Scope{},
	}
}

var reservedLedgerKeys = map[string]bool{
	"version":     true,
	"lastUpdated": true,
	"totals":      true,
}

// MarshalJSON flattens ceremony scopes into the top-level object.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"version":     l.Version,
		"lastUpdated": l.LastUpdated,
		"totals":      l.Totals,
	}
	for name, scope := range l.Ceremonies {
		if reservedLedgerKeys[name] {
			return nil, fmt.Errorf("ceremony name %q collides with a reserved ledger key", name)
		}
		out[name] = scope
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flattened document back.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Version = ledgerVersion
	l.Totals = newScope()
	l.Ceremonies = map[string]*Scope{}

	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &l.Version); err != nil {
			return fmt.Errorf("parse version: %w", err)
		}
	}
	if v, ok := raw["lastUpdated"]; ok {
		if err := json.Unmarshal(v, &l.LastUpdated); err != nil {
			return fmt.Errorf("parse lastUpdated: %w", err)
		}
	}
	if v, ok := raw["totals"]; ok {
		if err := json.Unmarshal(v, l.Totals); err != nil {
			return fmt.Errorf("parse totals: %w", err)
		}
	}

	for key, v := range raw {
		if reservedLedgerKeys[key] {
			continue
		}
		scope := newScope()
		if err := json.Unmarshal(v, scope); err != nil {
			return fmt.Errorf("parse scope %q: %w", key, err)
		}
		l.Ceremonies[key] = scope
	}
	return nil
}

// Period keys. Weeks use ISO-8601 week numbering (Thursday-anchored), which
// time.ISOWeek implements.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// prune drops rolling entries outside the retention horizons. Valid keys are
// generated backwards from now, which sidesteps key-parsing entirely.
func (s *Scope) prune(now time.Time) {
	keep := map[string]bool{}
	for i := 0; i <= dailyRetentionDays; i++ {
		keep[dayKey(now.AddDate(0, 0, -i))] = true
	}
	for key := range s.Daily {
		if !keep[key] {
			delete(s.Daily, key)
		}
	}

	keep = map[string]bool{}
	for i := 0; i < weeklyRetentionWeeks; i++ {
		keep[weekKey(now.AddDate(0, 0, -7*i))] = true
	}
	for key := range s.Weekly {
		if !keep[key] {
			delete(s.Weekly, key)
		}
	}

	// Month keys are derived from the first of the month: AddDate would
	// normalize "Feb 31" past February and skip it entirely.
	keep = map[string]bool{}
	first := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < monthlyRetentionMonths; i++ {
		keep[monthKey(first.AddDate(0, -i, 0))] = true
	}
	for key := range s.Monthly {
		if !keep[key] {
			delete(s.Monthly, key)
		}
	}
}

// add files one execution into the scope's buckets and all-time accumulator.
func (s *Scope) add(now time.Time, tokens Tokens, cost Cost) {
	for _, entry := range []struct {
		dict map[string]*Bucket
		key  string
	}{
		{s.Daily, dayKey(now)},
		{s.Weekly, weekKey(now)},
		{s.Monthly, monthKey(now)},
	} {
		b := entry.dict[entry.key]
		if b == nil {
			b = &Bucket{}
			entry.dict[entry.key] = b
		}
		b.accumulate(tokens, cost)
	}

	if s.AllTime == nil {
		s.AllTime = &AllTime{}
	}
	s.AllTime.accumulate(tokens, cost)
	ts := now
	if s.AllTime.FirstExecution == nil {
		s.AllTime.FirstExecution = &ts
	}
	s.AllTime.LastExecution = &ts

	s.prune(now)
}

func (b *Bucket) accumulate(tokens Tokens, cost Cost) {
	b.Input += tokens.Input
	b.Output += tokens.Output
	b.Total += tokens.Total
	b.Executions++
	b.Cost.Input += cost.Input
	b.Cost.Output += cost.Output
	b.Cost.Total += cost.Total
}
