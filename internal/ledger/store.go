package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	avcfs "github.com/avclabs/avc/internal/infra/fs"
)

// ErrNotFound is returned when a ceremony or execution id is unknown.
var ErrNotFound = errors.New("not found")

// Store persists the execution ledger. Every mutation loads the whole file,
// updates in memory, and writes the whole file back atomically. Correct for
// a single active writer; the advisory lock guards same-host races.
type Store struct {
	fs       afero.Fs
	path     string
	lockPath string
	log      zerolog.Logger

	now func() time.Time
}

// NewStore creates a ledger store over the file at path. lockPath may be
// empty to disable cross-process locking.
func NewStore(fsys afero.Fs, path, lockPath string, log zerolog.Logger) *Store {
	return &Store{
		fs:       fsys,
		path:     path,
		lockPath: lockPath,
		log:      log.With().Str("store", "ledger").Logger(),
		now:      time.Now,
	}
}

// StartExecution appends a new in-progress record and returns its id.
// The id is derived from the ceremony name and start timestamp; a numeric
// suffix disambiguates two starts within one second.
func (s *Store) StartExecution(ceremony, initialStage string) (string, error) {
	var id string
	err := avcfs.WithLock(s.lockPath, func() error {
		ledger, err := s.load()
		if err != nil {
			return err
		}

		history := ledger.Ceremonies[ceremony]
		if history == nil {
			history = &CeremonyHistory{}
			ledger.Ceremonies[ceremony] = history
		}

		now := s.now().UTC()
		id = fmt.Sprintf("%s-%s", ceremony, now.Format("20060102-150405"))
		for n := 2; historyHasID(history, id); n++ {
			id = fmt.Sprintf("%s-%s-%d", ceremony, now.Format("20060102-150405"), n)
		}

		history.Executions = append(history.Executions, &ExecutionRecord{
			ID:        id,
			StartTime: now,
			Status:    StatusInProgress,
			Stage:     initialStage,
		})
		history.LastRun = &now

		return s.save(ledger)
	})
	if err != nil {
		return "", err
	}

	s.log.Info().Str("ceremony", ceremony).Str("execution", id).Str("stage", initialStage).Msg("execution started")
	return id, nil
}

// UpdateExecution merges partial fields into an existing record.
func (s *Store) UpdateExecution(ceremony, id string, update Update) error {
	return avcfs.WithLock(s.lockPath, func() error {
		ledger, err := s.load()
		if err != nil {
			return err
		}

		rec, err := findExecution(ledger, ceremony, id)
		if err != nil {
			return err
		}

		if update.Stage != nil {
			rec.Stage = *update.Stage
		}
		if update.Answers != nil {
			rec.Answers = update.Answers
		}
		if update.GeneratedFiles != nil {
			rec.GeneratedFiles = update.GeneratedFiles
		}
		if update.TokenUsage != nil {
			rec.TokenUsage = *update.TokenUsage
		}
		if update.Cost != nil {
			rec.Cost = *update.Cost
		}
		if update.Model != nil {
			rec.Model = *update.Model
		}
		if update.Note != nil {
			rec.Note = *update.Note
		}

		return s.save(ledger)
	})
}

// ArchiveAnswers stores the collected questionnaire answers on a record.
func (s *Store) ArchiveAnswers(ceremony, id string, answers map[string]any) error {
	return s.UpdateExecution(ceremony, id, Update{Answers: answers})
}

// CompleteExecution finalizes a record: computes duration, maps the outcome
// to a terminal status, merges metadata, bumps the ceremony's execution
// count and, on success, its last-success timestamp. Irreversible.
func (s *Store) CompleteExecution(ceremony, id string, outcome Outcome, meta CompletionMeta) error {
	err := avcfs.WithLock(s.lockPath, func() error {
		ledger, err := s.load()
		if err != nil {
			return err
		}

		history := ledger.Ceremonies[ceremony]
		rec, err := findExecution(ledger, ceremony, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		rec.EndTime = &now
		rec.DurationMs = now.Sub(rec.StartTime).Milliseconds()
		rec.Status = statusForOutcome(outcome)
		rec.Outcome = outcome
		rec.Stage = StageCompleted

		if meta.Answers != nil {
			rec.Answers = meta.Answers
		}
		if meta.GeneratedFiles != nil {
			rec.GeneratedFiles = meta.GeneratedFiles
		}
		if meta.TokenUsage != nil {
			rec.TokenUsage = *meta.TokenUsage
		}
		if meta.Cost != nil {
			rec.Cost = *meta.Cost
		}
		if meta.Model != "" {
			rec.Model = meta.Model
		}
		if meta.Error != "" {
			rec.Error = meta.Error
		}
		if meta.Note != "" {
			rec.Note = meta.Note
		}

		history.TotalExecutions++
		if outcome == OutcomeSuccess {
			history.LastSuccess = &now
		}

		return s.save(ledger)
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("ceremony", ceremony).Str("execution", id).Str("outcome", string(outcome)).Msg("execution completed")
	return nil
}

// LastExecution returns the most recent record, or nil when the ceremony has
// no history. "Most recent" is the final element of the persisted list.
func (s *Store) LastExecution(ceremony string) (*ExecutionRecord, error) {
	ledger, err := s.load()
	if err != nil {
		return nil, err
	}
	history := ledger.Ceremonies[ceremony]
	if history == nil || len(history.Executions) == 0 {
		return nil, nil
	}
	return history.Executions[len(history.Executions)-1], nil
}

// ExecutionByID looks a record up by id.
func (s *Store) ExecutionByID(ceremony, id string) (*ExecutionRecord, error) {
	ledger, err := s.load()
	if err != nil {
		return nil, err
	}
	return findExecution(ledger, ceremony, id)
}

// AllExecutions returns a ceremony's records sorted newest-first by start
// time. The persisted list itself stays in insertion order.
func (s *Store) AllExecutions(ceremony string) ([]*ExecutionRecord, error) {
	ledger, err := s.load()
	if err != nil {
		return nil, err
	}
	history := ledger.Ceremonies[ceremony]
	if history == nil {
		return nil, nil
	}

	out := make([]*ExecutionRecord, len(history.Executions))
	copy(out, history.Executions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// DetectAbruptTermination reports whether the last execution died in the
// generation stage: status still in-progress and stage == StageGeneration.
// Any other combination, including no history at all, is false.
func (s *Store) DetectAbruptTermination(ceremony string) (bool, error) {
	last, err := s.LastExecution(ceremony)
	if err != nil {
		return false, err
	}
	if last == nil {
		return false, nil
	}
	return last.Status == StatusInProgress && last.Stage == StageGeneration, nil
}

// CleanupAbruptTermination force-completes a still-in-progress last
// execution with the abrupt-termination outcome.
func (s *Store) CleanupAbruptTermination(ceremony string) error {
	last, err := s.LastExecution(ceremony)
	if err != nil {
		return err
	}
	if last == nil || last.Status != StatusInProgress {
		return nil
	}

	s.log.Warn().Str("ceremony", ceremony).Str("execution", last.ID).Msg("cleaning up abruptly terminated execution")
	return s.CompleteExecution(ceremony, last.ID, OutcomeAbruptTermination, CompletionMeta{
		Note: "process terminated before the execution finished; cleaned up on next start",
	})
}

// Stats counts a ceremony's records by outcome.
func (s *Store) Stats(ceremony string) (*Stats, error) {
	ledger, err := s.load()
	if err != nil {
		return nil, err
	}
	history := ledger.Ceremonies[ceremony]
	if history == nil {
		return &Stats{}, nil
	}

	stats := &Stats{
		Total:       len(history.Executions),
		LastRun:     history.LastRun,
		LastSuccess: history.LastSuccess,
	}
	for _, rec := range history.Executions {
		switch rec.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusCancelled:
			stats.Cancelled++
		case StatusAborted:
			stats.Aborted++
		case StatusInProgress:
			stats.InProgress++
		}
	}
	return stats, nil
}

func findExecution(ledger *Ledger, ceremony, id string) (*ExecutionRecord, error) {
	history := ledger.Ceremonies[ceremony]
	if history == nil {
		return nil, fmt.Errorf("ceremony %q: %w", ceremony, ErrNotFound)
	}
	for _, rec := range history.Executions {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("execution %q in ceremony %q: %w", id, ceremony, ErrNotFound)
}

func historyHasID(history *CeremonyHistory, id string) bool {
	for _, rec := range history.Executions {
		if rec.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) load() (*Ledger, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newLedger(), nil
		}
		return nil, fmt.Errorf("read execution ledger: %w", err)
	}

	ledger := newLedger()
	if err := json.Unmarshal(data, ledger); err != nil {
		return nil, fmt.Errorf("parse execution ledger %s: %w", s.path, err)
	}
	if ledger.Ceremonies == nil {
		ledger.Ceremonies = map[string]*CeremonyHistory{}
	}
	return ledger, nil
}

func (s *Store) save(ledger *Ledger) error {
	ledger.LastUpdated = s.now().UTC()
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal execution ledger: %w", err)
	}
	if err := avcfs.WriteFileAtomic(s.fs, s.path, data); err != nil {
		return fmt.Errorf("write execution ledger: %w", err)
	}
	return nil
}
