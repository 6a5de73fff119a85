// Package progress persists the in-flight checkpoint of a ceremony. The
// file's very existence is the "resume vs. fresh start" signal: it appears
// on the first step, is overwritten whole after every step, and is deleted
// only when the owning execution succeeds.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	avcfs "github.com/avclabs/avc/internal/infra/fs"
)

// Checkpoint captures one consistent step boundary of a ceremony run.
type Checkpoint struct {
	Stage           string         `json:"stage"`
	TotalSteps      int            `json:"totalQuestions"`
	CompletedSteps  int            `json:"answeredQuestions"`
	CollectedValues map[string]any `json:"collectedValues"`
	LastUpdate      time.Time      `json:"lastUpdate"`
}

// Store reads and writes the single active checkpoint for one ceremony kind.
type Store struct {
	fs       afero.Fs
	path     string
	lockPath string
	log      zerolog.Logger

	now func() time.Time
}

// NewStore creates a checkpoint store over the file at path.
func NewStore(fsys afero.Fs, path, lockPath string, log zerolog.Logger) *Store {
	return &Store{
		fs:       fsys,
		path:     path,
		lockPath: lockPath,
		log:      log.With().Str("store", "progress").Logger(),
		now:      time.Now,
	}
}

// Write overwrites the checkpoint with the given state. Each write is a
// full-file replacement so the file always reflects one step boundary.
func (s *Store) Write(cp *Checkpoint) error {
	cp.LastUpdate = s.now().UTC()
	if cp.CollectedValues == nil {
		cp.CollectedValues = map[string]any{}
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	return avcfs.WithLock(s.lockPath, func() error {
		if err := avcfs.WriteFileAtomic(s.fs, s.path, data); err != nil {
			return fmt.Errorf("write checkpoint: %w", err)
		}
		return nil
	})
}

// Read returns the checkpoint, or nil when none exists (never started, or
// cleanly finished).
func (s *Store) Read() (*Checkpoint, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	cp := &Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", s.path, err)
	}
	return cp, nil
}

// Clear removes the checkpoint. Called only after the owning execution
// reaches terminal success; removing a file that is already gone is fine.
func (s *Store) Clear() error {
	err := s.fs.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
