package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/avclabs/avc/internal/archive"
	"github.com/avclabs/avc/internal/ledger"
	"github.com/avclabs/avc/internal/progress"
	"github.com/avclabs/avc/internal/provider"
	"github.com/avclabs/avc/internal/usage"
	"github.com/avclabs/avc/internal/verify"
)

// Deps wires the runner's collaborators.
type Deps struct {
	Client   *provider.Client
	Progress *progress.Store
	Ledger   *ledger.Store
	Usage    *usage.Tracker
	Engine   *verify.Engine
	Reporter *verify.Reporter
	Archive  archive.Gateway
	Fs       afero.Fs
	Log      zerolog.Logger
}

// Runner drives one ceremony execution through its stages. A run that dies
// mid-flight leaves its ledger record in-progress and its checkpoint on
// disk; the next run detects that, closes the stale record, and resumes
// from the checkpoint.
type Runner struct {
	deps Deps
	log  zerolog.Logger
}

// NewRunner creates a ceremony runner.
func NewRunner(deps Deps) *Runner {
	return &Runner{
		deps: deps,
		log:  deps.Log.With().Str("component", "ceremony").Logger(),
	}
}

// RunResult is the outcome of one completed ceremony execution.
type RunResult struct {
	ExecutionID string
	Document    string
	Resumed     bool
	Applied     []verify.AppliedRule
	ReportJSON  string
	ReportText  string
	Artifacts   []string
}

// Run executes the ceremony end to end. On provider failure the execution
// record stays in-progress and the checkpoint stays on disk, so the failure
// is indistinguishable from a crash and the next run resumes it.
func (r *Runner) Run(ctx context.Context, def *Definition, answers AnswerSource) (*RunResult, error) {
	d := r.deps

	// A still-in-progress last record from a dead process is closed before
	// anything else touches the ledger. Cleanup guards on status alone, so a
	// run that died during the questionnaire is closed too, not only the
	// generation-stage case the detector reports.
	abrupt, err := d.Ledger.DetectAbruptTermination(def.Name)
	if err != nil {
		return nil, err
	}
	if abrupt {
		r.log.Warn().Str("ceremony", def.Name).Msg("previous execution terminated abruptly")
	}
	if err := d.Ledger.CleanupAbruptTermination(def.Name); err != nil {
		return nil, err
	}

	// Rules are configuration; a broken rule file fails the run before any
	// tokens are spent.
	var rules []verify.Rule
	if def.Rules != "" {
		rules, err = verify.LoadRules(d.Fs, def.Rules)
		if err != nil {
			return nil, err
		}
	}

	cp, err := d.Progress.Read()
	if err != nil {
		return nil, err
	}
	resumed := cp != nil
	collected := map[string]any{}
	if resumed {
		r.log.Info().Str("ceremony", def.Name).Str("stage", cp.Stage).Msg("resuming from checkpoint")
		for k, v := range cp.CollectedValues {
			collected[k] = v
		}
	}

	id, err := d.Ledger.StartExecution(def.Name, ledger.StageQuestionnaire)
	if err != nil {
		return nil, err
	}

	usageBefore := d.Client.Usage()

	if err := r.questionnaire(ctx, def, answers, collected); err != nil {
		return nil, r.closeOnError(def.Name, id, err)
	}

	if err := d.Ledger.ArchiveAnswers(def.Name, id, collected); err != nil {
		return nil, err
	}

	document, err := r.generate(ctx, def, id, collected)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, r.closeOnError(def.Name, id, err)
		}
		// Provider failure: leave the record in-progress and the checkpoint
		// in place so the next run resumes instead of starting over.
		return nil, fmt.Errorf("ceremony %s: %w", def.Name, err)
	}

	result := &RunResult{ExecutionID: id, Document: document, Resumed: resumed}

	if len(rules) > 0 {
		outcome, err := d.Engine.Run(ctx, def.Name, document, rules)
		if err != nil {
			return nil, r.closeOnError(def.Name, id, err)
		}
		result.Document = outcome.Content
		result.Applied = outcome.Applied

		jsonPath, textPath, err := d.Reporter.Flush(def.Name, outcome.Report)
		if err != nil {
			return nil, err
		}
		result.ReportJSON = jsonPath
		result.ReportText = textPath
	}

	if err := r.archiveArtifacts(ctx, def, id, result, collected); err != nil {
		return nil, err
	}

	used := d.Client.Usage()
	in := used.InputTokens - usageBefore.InputTokens
	out := used.OutputTokens - usageBefore.OutputTokens
	model := d.Client.Provider().Model()

	if err := d.Usage.AddExecution(def.Name, in, out, model); err != nil {
		return nil, err
	}

	tokens := usage.NewTokens(in, out)
	cost := d.Usage.CalculateCost(in, out, model)
	err = d.Ledger.CompleteExecution(def.Name, id, ledger.OutcomeSuccess, ledger.CompletionMeta{
		GeneratedFiles: result.Artifacts,
		TokenUsage:     &tokens,
		Cost:           &cost,
		Model:          model,
	})
	if err != nil {
		return nil, err
	}

	// The checkpoint is removed only once the record is terminal.
	if err := d.Progress.Clear(); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("ceremony", def.Name).
		Str("execution", id).
		Int("input_tokens", in).
		Int("output_tokens", out).
		Msg("ceremony completed")
	return result, nil
}

// questionnaire collects any answers the checkpoint does not already hold,
// checkpointing after every answer.
func (r *Runner) questionnaire(ctx context.Context, def *Definition, answers AnswerSource, collected map[string]any) error {
	total := len(def.Questions)
	done := 0
	for _, q := range def.Questions {
		if _, ok := collected[q.Key]; ok {
			done++
		}
	}

	for _, q := range def.Questions {
		if _, ok := collected[q.Key]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		answer, err := answers.Answer(q)
		if err != nil {
			return err
		}
		collected[q.Key] = answer
		done++

		err = r.deps.Progress.Write(&progress.Checkpoint{
			Stage:           ledger.StageQuestionnaire,
			TotalSteps:      total,
			CompletedSteps:  done,
			CollectedValues: collected,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// generate moves the execution into the generation stage and runs the
// document call.
func (r *Runner) generate(ctx context.Context, def *Definition, id string, collected map[string]any) (string, error) {
	stage := ledger.StageGeneration
	if err := r.deps.Ledger.UpdateExecution(def.Name, id, ledger.Update{Stage: &stage}); err != nil {
		return "", err
	}
	err := r.deps.Progress.Write(&progress.Checkpoint{
		Stage:           ledger.StageGeneration,
		TotalSteps:      len(def.Questions),
		CompletedSteps:  len(def.Questions),
		CollectedValues: collected,
	})
	if err != nil {
		return "", err
	}

	prompt := renderPrompt(def.Generation, collected)
	return r.deps.Client.Generate(ctx, prompt, def.MaxTokens, def.System)
}

// archiveArtifacts stores the final document and the answer set.
func (r *Runner) archiveArtifacts(ctx context.Context, def *Definition, id string, result *RunResult, collected map[string]any) error {
	meta, err := r.deps.Archive.Save(ctx, archive.SaveRequest{
		Ceremony:    def.Name,
		ExecutionID: id,
		Name:        def.OutputName(),
		Content:     []byte(result.Document),
		ContentType: "text/markdown",
	})
	if err != nil {
		return fmt.Errorf("archive document: %w", err)
	}
	result.Artifacts = append(result.Artifacts, meta.StoragePath)

	answersJSON, err := json.MarshalIndent(collected, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	meta, err = r.deps.Archive.Save(ctx, archive.SaveRequest{
		Ceremony:    def.Name,
		ExecutionID: id,
		Name:        "answers.json",
		Content:     answersJSON,
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("archive answers: %w", err)
	}
	result.Artifacts = append(result.Artifacts, meta.StoragePath)
	return nil
}

// closeOnError finalizes the record as user-cancelled on context
// cancellation; any other error is returned as-is with the record left
// in-progress for the next run to resume.
func (r *Runner) closeOnError(ceremony, id string, cause error) error {
	if errors.Is(cause, context.Canceled) {
		err := r.deps.Ledger.CompleteExecution(ceremony, id, ledger.OutcomeUserCancelled, ledger.CompletionMeta{
			Error: cause.Error(),
		})
		if err != nil {
			return errors.Join(cause, err)
		}
	}
	return cause
}
