package verify

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/avclabs/avc/internal/provider"
)

// AppliedRule identifies a rule whose fix was applied, for reporting.
type AppliedRule struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
}

// RuleExecution is the instrumented record of one rule's check/fix pass.
type RuleExecution struct {
	RuleID             string `json:"ruleId"`
	RuleName           string `json:"ruleName"`
	Violated           bool   `json:"violated"`
	Fixed              bool   `json:"fixed"`
	CheckDurationMs    int64  `json:"checkDurationMs"`
	FixDurationMs      int64  `json:"fixDurationMs,omitempty"`
	ContentLengthDelta int    `json:"contentLengthDelta,omitempty"`
	Error              string `json:"error,omitempty"`
}

// SessionReport aggregates one verification session.
type SessionReport struct {
	SessionID          string          `json:"sessionId"`
	Agent              string          `json:"agent"`
	ContentFingerprint string          `json:"contentFingerprint"`
	StartedAt          time.Time       `json:"startedAt"`
	DurationMs         int64           `json:"durationMs"`
	RulesChecked       int             `json:"rulesChecked"`
	RulesViolated      int             `json:"rulesViolated"`
	RulesFixed         int             `json:"rulesFixed"`
	APICalls           int             `json:"apiCalls"`
	WorkflowSharePct   float64         `json:"workflowSharePct,omitempty"`
	Executions         []RuleExecution `json:"executions"`
	Applied            []AppliedRule   `json:"applied"`
}

// Outcome is the result of running the engine over one document.
type Outcome struct {
	Content string
	Applied []AppliedRule
	Report  *SessionReport
}

// EventSink receives structured per-rule and per-session events.
type EventSink interface {
	RuleCheckStarted(agent, ruleID string)
	RuleCheckFinished(agent, ruleID string, violated bool, err error)
	RuleFixApplied(agent, ruleID string, lengthDelta int)
	SessionClosed(report *SessionReport)
}

type nopSink struct{}

func (nopSink) RuleCheckStarted(string, string)               {}
func (nopSink) RuleCheckFinished(string, string, bool, error) {}
func (nopSink) RuleFixApplied(string, string, int)            {}
func (nopSink) SessionClosed(*SessionReport)                  {}

// LogSink is an EventSink that writes structured log events.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) RuleCheckStarted(agent, ruleID string) {
	s.Log.Debug().Str("agent", agent).Str("rule", ruleID).Msg("rule check started")
}

func (s LogSink) RuleCheckFinished(agent, ruleID string, violated bool, err error) {
	ev := s.Log.Debug().Str("agent", agent).Str("rule", ruleID).Bool("violated", violated)
	if err != nil {
		ev = s.Log.Warn().Str("agent", agent).Str("rule", ruleID).Err(err)
	}
	ev.Msg("rule check finished")
}

func (s LogSink) RuleFixApplied(agent, ruleID string, lengthDelta int) {
	s.Log.Info().Str("agent", agent).Str("rule", ruleID).Int("length_delta", lengthDelta).Msg("rule fix applied")
}

func (s LogSink) SessionClosed(report *SessionReport) {
	s.Log.Info().
		Str("session", report.SessionID).
		Int("checked", report.RulesChecked).
		Int("violated", report.RulesViolated).
		Int("fixed", report.RulesFixed).
		Int("api_calls", report.APICalls).
		Msg("verification session closed")
}

// Engine runs the rule set sequentially over a document. Each fix is applied
// to the result of all prior fixes; a later rule's check always sees the
// cumulative content.
type Engine struct {
	client *provider.Client
	log    zerolog.Logger
	sink   EventSink

	now func() time.Time
}

// NewEngine creates a verification engine over the given call-layer client.
// sink may be nil.
func NewEngine(client *provider.Client, sink EventSink, log zerolog.Logger) *Engine {
	if sink == nil {
		sink = nopSink{}
	}
	return &Engine{
		client: client,
		log:    log.With().Str("component", "verify").Logger(),
		sink:   sink,
		now:    time.Now,
	}
}

// Run applies every enabled rule, in declared order, to content. A rule
// whose check or fix call errors is logged and treated as not violated so
// one failing rule cannot abort the whole pass. The only hard failure is
// context cancellation.
func (e *Engine) Run(ctx context.Context, agent, content string, rules []Rule) (*Outcome, error) {
	started := e.now()
	report := &SessionReport{
		SessionID:          ulid.MustNew(ulid.Timestamp(started), rand.Reader).String(),
		Agent:              agent,
		ContentFingerprint: fingerprint(content),
		StartedAt:          started.UTC(),
		Executions:         []RuleExecution{},
		Applied:            []AppliedRule{},
	}

	working := content
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			e.closeReport(report, started)
			return &Outcome{Content: working, Applied: report.Applied, Report: report}, err
		}

		exec := RuleExecution{RuleID: rule.ID, RuleName: rule.Name}
		report.RulesChecked++

		e.sink.RuleCheckStarted(agent, rule.ID)
		checkStart := e.now()
		violated, checkErr := e.check(ctx, rule, working)
		exec.CheckDurationMs = e.now().Sub(checkStart).Milliseconds()
		report.APICalls++
		exec.Violated = violated
		e.sink.RuleCheckFinished(agent, rule.ID, violated, checkErr)

		if checkErr != nil {
			// Graceful degradation: a failing rule must not block the
			// document from shipping.
			exec.Error = checkErr.Error()
			e.log.Warn().Err(checkErr).Str("rule", rule.ID).Msg("rule check failed, treating as not violated")
			report.Executions = append(report.Executions, exec)
			continue
		}

		if violated {
			report.RulesViolated++

			fixStart := e.now()
			fixed, fixErr := e.fix(ctx, rule, working)
			exec.FixDurationMs = e.now().Sub(fixStart).Milliseconds()
			report.APICalls++

			if fixErr != nil {
				exec.Error = fixErr.Error()
				e.log.Warn().Err(fixErr).Str("rule", rule.ID).Msg("rule fix failed, keeping content")
			} else if fixed != "" && fixed != working {
				exec.ContentLengthDelta = len(fixed) - len(working)
				working = fixed
				exec.Fixed = true
				report.RulesFixed++
				applied := AppliedRule{ID: rule.ID, Name: rule.Name, Severity: rule.Severity}
				report.Applied = append(report.Applied, applied)
				e.sink.RuleFixApplied(agent, rule.ID, exec.ContentLengthDelta)
			}
		}

		report.Executions = append(report.Executions, exec)
	}

	e.closeReport(report, started)
	return &Outcome{Content: working, Applied: report.Applied, Report: report}, nil
}

func (e *Engine) closeReport(report *SessionReport, started time.Time) {
	report.DurationMs = e.now().Sub(started).Milliseconds()
	e.sink.SessionClosed(report)
}

// check substitutes the content into the rule's check prompt and interprets
// the answer against the YES/NO grammar.
func (e *Engine) check(ctx context.Context, rule Rule, content string) (bool, error) {
	prompt := strings.ReplaceAll(rule.Check.Prompt, ContentPlaceholder, content)
	resp, err := e.client.Generate(ctx, prompt, rule.Check.MaxTokens, "")
	if err != nil {
		return false, err
	}

	answer := strings.ToUpper(strings.TrimSpace(resp))
	switch {
	case strings.HasPrefix(answer, "YES"):
		return true, nil
	case strings.HasPrefix(answer, "NO"):
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized check verdict %q for rule %s", resp, rule.ID)
	}
}

// fix substitutes the content into the rule's fix prompt and returns the
// trimmed corrected document.
func (e *Engine) fix(ctx context.Context, rule Rule, content string) (string, error) {
	prompt := strings.ReplaceAll(rule.Fix.Prompt, ContentPlaceholder, content)
	resp, err := e.client.Generate(ctx, prompt, rule.Fix.MaxTokens, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

func fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}
