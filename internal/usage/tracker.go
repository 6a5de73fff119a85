package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	avcfs "github.com/avclabs/avc/internal/infra/fs"
)

// Tracker files token counts and costs into the persisted usage ledger.
// Every mutation is read-entire-file, update in memory, write-entire-file.
type Tracker struct {
	fs       afero.Fs
	path     string
	lockPath string
	log      zerolog.Logger

	now func() time.Time
}

// NewTracker creates a tracker over the usage ledger at path. lockPath may
// be empty to disable cross-process locking (tests, in-memory filesystems).
func NewTracker(fsys afero.Fs, path, lockPath string, log zerolog.Logger) *Tracker {
	return &Tracker{
		fs:       fsys,
		path:     path,
		lockPath: lockPath,
		log:      log.With().Str("store", "usage").Logger(),
		now:      time.Now,
	}
}

// CalculateCost converts token counts into USD for the given model.
func (t *Tracker) CalculateCost(inputTokens, outputTokens int, model string) Cost {
	return CalculateCost(inputTokens, outputTokens, model)
}

// AddExecution computes cost for the execution's tokens and updates the
// rolling dictionaries and all-time accumulators of both the global scope
// and the ceremony's scope.
func (t *Tracker) AddExecution(ceremony string, inputTokens, outputTokens int, model string) error {
	tokens := NewTokens(inputTokens, outputTokens)
	cost := CalculateCost(inputTokens, outputTokens, model)

	return avcfs.WithLock(t.lockPath, func() error {
		ledger, err := t.load()
		if err != nil {
			return err
		}

		now := t.now()
		ledger.Totals.add(now, tokens, cost)

		scope := ledger.Ceremonies[ceremony]
		if scope == nil {
			scope = newScope()
			ledger.Ceremonies[ceremony] = scope
		}
		scope.add(now, tokens, cost)

		ledger.LastUpdated = now
		return t.save(ledger)
	})
}

// Summary is the common query view over one scope. Periods with no entry
// come back zeroed so callers never branch on absence.
type Summary struct {
	Today     Bucket  `json:"today"`
	ThisWeek  Bucket  `json:"thisWeek"`
	ThisMonth Bucket  `json:"thisMonth"`
	AllTime   AllTime `json:"allTime"`
}

// Totals returns the global summary.
func (t *Tracker) Totals() (*Summary, error) {
	ledger, err := t.load()
	if err != nil {
		return nil, err
	}
	return t.summarize(ledger.Totals), nil
}

// CeremonyTotals returns the summary for one ceremony kind.
func (t *Tracker) CeremonyTotals(ceremony string) (*Summary, error) {
	ledger, err := t.load()
	if err != nil {
		return nil, err
	}
	scope := ledger.Ceremonies[ceremony]
	if scope == nil {
		scope = newScope()
	}
	return t.summarize(scope), nil
}

func (t *Tracker) summarize(s *Scope) *Summary {
	now := t.now()
	sum := &Summary{}
	if b := s.Daily[dayKey(now)]; b != nil {
		sum.Today = *b
	}
	if b := s.Weekly[weekKey(now)]; b != nil {
		sum.ThisWeek = *b
	}
	if b := s.Monthly[monthKey(now)]; b != nil {
		sum.ThisMonth = *b
	}
	if s.AllTime != nil {
		sum.AllTime = *s.AllTime
	}
	return sum
}

func (t *Tracker) load() (*Ledger, error) {
	data, err := afero.ReadFile(t.fs, t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newLedger(), nil
		}
		return nil, fmt.Errorf("read usage ledger: %w", err)
	}

	ledger := &Ledger{}
	if err := json.Unmarshal(data, ledger); err != nil {
		return nil, fmt.Errorf("parse usage ledger %s: %w", t.path, err)
	}
	return ledger, nil
}

func (t *Tracker) save(ledger *Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal usage ledger: %w", err)
	}
	if err := avcfs.WriteFileAtomic(t.fs, t.path, data); err != nil {
		return fmt.Errorf("write usage ledger: %w", err)
	}
	return nil
}
