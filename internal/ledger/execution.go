// Package ledger records the lifecycle of ceremony executions: start, stage
// transitions, and terminal outcome, with abrupt-termination detection.
package ledger

import (
	"time"

	"github.com/avclabs/avc/internal/usage"
)

// Status is the lifecycle state of an execution. It only moves forward:
// in-progress to exactly one terminal state.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusAborted    Status = "aborted"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusAborted
}

// Outcome describes how an execution ended.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeUserCancelled     Outcome = "user-cancelled"
	OutcomeAbruptTermination Outcome = "abrupt-termination"
)

// statusForOutcome maps a terminal outcome to its status.
func statusForOutcome(o Outcome) Status {
	switch o {
	case OutcomeUserCancelled:
		return StatusCancelled
	case OutcomeAbruptTermination:
		return StatusAborted
	default:
		return StatusCompleted
	}
}

// Well-known stages. StageGeneration is the window during which a crash
// loses unrecoverable work; an in-progress record stuck there at load time
// is presumed abruptly terminated.
const (
	StageQuestionnaire = "questionnaire"
	StageGeneration    = "llm-generation"
	StageCompleted     = "completed"
)

// ExecutionRecord is one run of a ceremony.
type ExecutionRecord struct {
	ID             string         `json:"id"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	DurationMs     int64          `json:"durationMs,omitempty"`
	Status         Status         `json:"status"`
	Stage          string         `json:"stage"`
	Answers        map[string]any `json:"answers,omitempty"`
	GeneratedFiles []string       `json:"generatedFiles,omitempty"`
	TokenUsage     usage.Tokens   `json:"tokenUsage"`
	Cost           usage.Cost     `json:"cost"`
	Model          string         `json:"model,omitempty"`
	Outcome        Outcome        `json:"outcome,omitempty"`
	Error          string         `json:"error,omitempty"`
	Note           string         `json:"note,omitempty"`
}

// CeremonyHistory is the per-ceremony slice of records. Insertion order is
// the source of truth: "last execution" is the final element, never a
// timestamp comparison.
type CeremonyHistory struct {
	Executions      []*ExecutionRecord `json:"executions"`
	TotalExecutions int                `json:"totalExecutions"`
	LastRun         *time.Time         `json:"lastRun,omitempty"`
	LastSuccess     *time.Time         `json:"lastSuccess,omitempty"`
}

// Ledger is the persisted container, read and written as a whole.
type Ledger struct {
	Version     int                         `json:"version"`
	LastUpdated time.Time                   `json:"lastUpdated"`
	Ceremonies  map[string]*CeremonyHistory `json:"ceremonies"`
}

const ledgerVersion = 1

func newLedger() *Ledger {
	return &Ledger{
		Version:    ledgerVersion,
		Ceremonies: map[string]*CeremonyHistory{},
	}
}

// Update is a partial-field merge applied by UpdateExecution. Nil fields are
// left untouched.
type Update struct {
	Stage          *string
	Answers        map[string]any
	GeneratedFiles []string
	TokenUsage     *usage.Tokens
	Cost           *usage.Cost
	Model          *string
	Note           *string
}

// CompletionMeta is the optional metadata merged by CompleteExecution.
type CompletionMeta struct {
	Answers        map[string]any
	GeneratedFiles []string
	TokenUsage     *usage.Tokens
	Cost           *usage.Cost
	Model          string
	Error          string
	Note           string
}

// Stats summarizes one ceremony's history.
type Stats struct {
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Cancelled   int        `json:"cancelled"`
	Aborted     int        `json:"aborted"`
	InProgress  int        `json:"inProgress"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
}
