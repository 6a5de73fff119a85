package ceremony

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avclabs/avc/internal/archive"
	"github.com/avclabs/avc/internal/ledger"
	"github.com/avclabs/avc/internal/progress"
	"github.com/avclabs/avc/internal/provider"
	"github.com/avclabs/avc/internal/usage"
	"github.com/avclabs/avc/internal/verify"
)

type harness struct {
	runner   *Runner
	fs       afero.Fs
	ledger   *ledger.Store
	progress *progress.Store
	usage    *usage.Tracker
}

func newHarness(t *testing.T, responses ...provider.MockResponse) *harness {
	t.Helper()
	fsys := afero.NewMemMapFs()
	log := zerolog.Nop()

	client := provider.NewClient(provider.NewMockProvider(responses...), provider.DefaultRetryPolicy(), log)
	led := ledger.NewStore(fsys, ".avc/var/history.json", "", log)
	prog := progress.NewStore(fsys, ".avc/var/progress.json", "", log)
	tracker := usage.NewTracker(fsys, ".avc/var/usage.json", "", log)
	gw, err := archive.NewLocalGateway(fsys, ".avc/var/archive")
	require.NoError(t, err)

	runner := NewRunner(Deps{
		Client:   client,
		Progress: prog,
		Ledger:   led,
		Usage:    tracker,
		Engine:   verify.NewEngine(client, nil, log),
		Reporter: verify.NewReporter(fsys, ".avc/var/reports", 10, log),
		Archive:  gw,
		Fs:       fsys,
		Log:      log,
	})

	return &harness{runner: runner, fs: fsys, ledger: led, progress: prog, usage: tracker}
}

func releaseNotesDef() *Definition {
	return &Definition{
		Name: "release-notes",
		Questions: []Question{
			{Key: "version", Prompt: "Which version?"},
			{Key: "audience", Prompt: "Who reads this?", Default: "users"},
		},
		Generation: "Write release notes for {{version}} aimed at {{audience}}.",
	}
}

func TestRunner_SuccessfulRun(t *testing.T) {
	h := newHarness(t, provider.MockResponse{Text: "# Notes v1.2\n", InputTokens: 100, OutputTokens: 50})

	res, err := h.runner.Run(context.Background(), releaseNotesDef(), StaticAnswers{"version": "1.2"})
	require.NoError(t, err)

	assert.Equal(t, "# Notes v1.2\n", res.Document)
	assert.False(t, res.Resumed)
	assert.Len(t, res.Artifacts, 2)

	rec, err := h.ledger.LastExecution("release-notes")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, res.ExecutionID, rec.ID)
	assert.Equal(t, ledger.StatusCompleted, rec.Status)
	assert.Equal(t, ledger.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, ledger.StageCompleted, rec.Stage)
	assert.Equal(t, 100, rec.TokenUsage.Input)
	assert.Equal(t, 50, rec.TokenUsage.Output)
	assert.Equal(t, "1.2", rec.Answers["version"])
	assert.Equal(t, "users", rec.Answers["audience"], "unanswered question falls back to its default")

	cp, err := h.progress.Read()
	require.NoError(t, err)
	assert.Nil(t, cp, "checkpoint is removed after success")

	sum, err := h.usage.Totals()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.AllTime.Executions)
	assert.Equal(t, 150, sum.AllTime.Total)

	// Document landed in the archive.
	art, err := archiveLoad(h, "release-notes", res.ExecutionID, "document.md")
	require.NoError(t, err)
	assert.Equal(t, "# Notes v1.2\n", string(art))
}

func archiveLoad(h *harness, ceremony, id, name string) ([]byte, error) {
	gw, err := archive.NewLocalGateway(h.fs, ".avc/var/archive")
	if err != nil {
		return nil, err
	}
	art, err := gw.Load(context.Background(), ceremony, id, name)
	if err != nil {
		return nil, err
	}
	return art.Content, nil
}

func TestRunner_VerificationRewritesDocument(t *testing.T) {
	h := newHarness(t,
		provider.MockResponse{Text: "WRONG", InputTokens: 10, OutputTokens: 5},
		provider.MockResponse{Text: "YES", InputTokens: 3, OutputTokens: 1},
		provider.MockResponse{Text: "CORRECTED", InputTokens: 8, OutputTokens: 4},
	)

	rules := `verifications:
  - id: fixer
    name: Fixer
    check:
      prompt: "Broken? YES or NO. {{CONTENT}}"
    fix:
      prompt: "Fix it. {{CONTENT}}"
`
	require.NoError(t, afero.WriteFile(h.fs, ".avc/etc/rules/notes.yaml", []byte(rules), 0o644))

	def := releaseNotesDef()
	def.Rules = ".avc/etc/rules/notes.yaml"

	res, err := h.runner.Run(context.Background(), def, StaticAnswers{"version": "2.0"})
	require.NoError(t, err)

	assert.Equal(t, "CORRECTED", res.Document)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "fixer", res.Applied[0].ID)
	assert.NotEmpty(t, res.ReportJSON)

	exists, err := afero.Exists(h.fs, res.ReportJSON)
	require.NoError(t, err)
	assert.True(t, exists)

	// The archived document is the corrected one, and all calls count
	// toward usage.
	art, err := archiveLoad(h, "release-notes", res.ExecutionID, "document.md")
	require.NoError(t, err)
	assert.Equal(t, "CORRECTED", string(art))

	rec, err := h.ledger.LastExecution("release-notes")
	require.NoError(t, err)
	assert.Equal(t, 21, rec.TokenUsage.Input)
	assert.Equal(t, 10, rec.TokenUsage.Output)
}

func TestRunner_ProviderFailureLeavesResumableState(t *testing.T) {
	h := newHarness(t, provider.MockResponse{
		Err: &provider.CallError{Provider: "mock", StatusCode: 400, Message: "bad request"},
	})

	_, err := h.runner.Run(context.Background(), releaseNotesDef(), StaticAnswers{"version": "1.2"})
	require.Error(t, err)

	rec, err := h.ledger.LastExecution("release-notes")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.StatusInProgress, rec.Status)
	assert.Equal(t, ledger.StageGeneration, rec.Stage)

	cp, err := h.progress.Read()
	require.NoError(t, err)
	require.NotNil(t, cp, "checkpoint survives a failed generation")
	assert.Equal(t, ledger.StageGeneration, cp.Stage)
	assert.Equal(t, "1.2", cp.CollectedValues["version"])
}

type noAnswers struct{}

func (noAnswers) Answer(q Question) (string, error) {
	return "", fmt.Errorf("unexpected question %q", q.Key)
}

func TestRunner_ResumesAfterCrash(t *testing.T) {
	h := newHarness(t, provider.MockResponse{
		Err: &provider.CallError{Provider: "mock", StatusCode: 400, Message: "boom"},
	})

	// First run collects answers, then dies in generation.
	_, err := h.runner.Run(context.Background(), releaseNotesDef(), StaticAnswers{"version": "3.0"})
	require.Error(t, err)

	h2 := newHarnessOver(t, h, provider.MockResponse{Text: "recovered doc", InputTokens: 5, OutputTokens: 5})

	// Second run closes the stale record and resumes without re-asking.
	res, err := h2.runner.Run(context.Background(), releaseNotesDef(), noAnswers{})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, "recovered doc", res.Document)

	all, err := h2.ledger.AllExecutions("release-notes")
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Newest-first: the fresh success, then the cleaned-up casualty.
	assert.Equal(t, ledger.OutcomeSuccess, all[0].Outcome)
	assert.Equal(t, ledger.StatusAborted, all[1].Status)
	assert.Equal(t, ledger.OutcomeAbruptTermination, all[1].Outcome)
}

// newHarnessOver rebuilds the runner on an existing filesystem, simulating a
// fresh process after a crash.
func newHarnessOver(t *testing.T, prev *harness, responses ...provider.MockResponse) *harness {
	t.Helper()
	log := zerolog.Nop()

	client := provider.NewClient(provider.NewMockProvider(responses...), provider.DefaultRetryPolicy(), log)
	led := ledger.NewStore(prev.fs, ".avc/var/history.json", "", log)
	prog := progress.NewStore(prev.fs, ".avc/var/progress.json", "", log)
	tracker := usage.NewTracker(prev.fs, ".avc/var/usage.json", "", log)
	gw, err := archive.NewLocalGateway(prev.fs, ".avc/var/archive")
	require.NoError(t, err)

	runner := NewRunner(Deps{
		Client:   client,
		Progress: prog,
		Ledger:   led,
		Usage:    tracker,
		Engine:   verify.NewEngine(client, nil, log),
		Reporter: verify.NewReporter(prev.fs, ".avc/var/reports", 10, log),
		Archive:  gw,
		Fs:       prev.fs,
		Log:      log,
	})
	return &harness{runner: runner, fs: prev.fs, ledger: led, progress: prog, usage: tracker}
}

func TestRunner_CancelledRunIsRecordedAsCancelled(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.Run(ctx, releaseNotesDef(), StaticAnswers{"version": "1.2"})
	require.ErrorIs(t, err, context.Canceled)

	rec, err := h.ledger.LastExecution("release-notes")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.StatusCancelled, rec.Status)
	assert.Equal(t, ledger.OutcomeUserCancelled, rec.Outcome)
}

func TestRunner_MissingAnswerFailsBeforeGeneration(t *testing.T) {
	h := newHarness(t)

	def := &Definition{
		Name:       "docs",
		Questions:  []Question{{Key: "topic", Prompt: "Topic?"}},
		Generation: "Write about {{topic}}.",
	}

	_, err := h.runner.Run(context.Background(), def, StaticAnswers{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestRunner_QuestionnaireCasualtyIsCleanedUp(t *testing.T) {
	h := newHarness(t)

	def := &Definition{
		Name:       "docs",
		Questions:  []Question{{Key: "topic", Prompt: "Topic?"}},
		Generation: "Write about {{topic}}.",
	}

	// First run dies collecting answers, leaving an in-progress record that
	// never reached the generation stage.
	_, err := h.runner.Run(context.Background(), def, StaticAnswers{})
	require.Error(t, err)

	rec, err := h.ledger.LastExecution("docs")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.StatusInProgress, rec.Status)
	assert.Equal(t, ledger.StageQuestionnaire, rec.Stage)

	h2 := newHarnessOver(t, h, provider.MockResponse{Text: "doc", InputTokens: 1, OutputTokens: 1})
	_, err = h2.runner.Run(context.Background(), def, StaticAnswers{"topic": "locks"})
	require.NoError(t, err)

	all, err := h2.ledger.AllExecutions("docs")
	require.NoError(t, err)
	require.Len(t, all, 2)

	// The stale questionnaire-stage record is closed, not left dangling.
	assert.Equal(t, ledger.OutcomeSuccess, all[0].Outcome)
	assert.Equal(t, ledger.StatusAborted, all[1].Status)
	assert.Equal(t, ledger.OutcomeAbruptTermination, all[1].Outcome)
}
