package verify

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *SessionReport {
	return &SessionReport{
		SessionID:          "01JB6X8Y2K9FQR4T3VWHGP5M2C",
		Agent:              "writer",
		ContentFingerprint: "deadbeef",
		StartedAt:          time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		DurationMs:         1500,
		RulesChecked:       3,
		RulesViolated:      1,
		RulesFixed:         1,
		APICalls:           4,
		Executions:         []RuleExecution{{RuleID: "a", RuleName: "rule a", Violated: true, Fixed: true}},
		Applied:            []AppliedRule{{ID: "a", Name: "rule a", Severity: SeverityWarning}},
	}
}

func TestReporter_FlushWritesPair(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := NewReporter(fsys, ".avc/reports", 5, zerolog.Nop())
	r.now = func() time.Time { return time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC) }

	jsonPath, textPath, err := r.Flush("Release Notes", sampleReport())
	require.NoError(t, err)
	assert.Equal(t, ".avc/reports/verification-release-notes-20260826-103000.json", jsonPath)
	assert.Equal(t, ".avc/reports/verification-release-notes-20260826-103000.txt", textPath)

	data, err := afero.ReadFile(fsys, jsonPath)
	require.NoError(t, err)
	var got SessionReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "writer", got.Agent)
	assert.Equal(t, 4, got.APICalls)

	text, err := afero.ReadFile(fsys, textPath)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Rules checked: 3")
	assert.Contains(t, string(text), "rule a")
}

func TestReporter_PruneKeepsNewest(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := NewReporter(fsys, ".avc/reports", 3, zerolog.Nop())

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		ts := base.AddDate(0, 0, i)
		r.now = func() time.Time { return ts }
		_, _, err := r.Flush("docs", sampleReport())
		require.NoError(t, err)
	}

	entries, err := afero.ReadDir(fsys, ".avc/reports")
	require.NoError(t, err)
	// 3 retained pairs.
	assert.Len(t, entries, 6)

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf(".avc/reports/verification-docs-202608%02d-000000.json", i+1)
		exists, err := afero.Exists(fsys, name)
		require.NoError(t, err)
		assert.False(t, exists, "old report %s should be pruned", name)
	}
	exists, err := afero.Exists(fsys, ".avc/reports/verification-docs-20260806-000000.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReporter_PruneIsPerCeremony(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := NewReporter(fsys, ".avc/reports", 1, zerolog.Nop())

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, ceremony := range []string{"docs", "review", "docs"} {
		ts := base.AddDate(0, 0, i)
		r.now = func() time.Time { return ts }
		_, _, err := r.Flush(ceremony, sampleReport())
		require.NoError(t, err)
	}

	exists, err := afero.Exists(fsys, ".avc/reports/verification-review-20260802-000000.json")
	require.NoError(t, err)
	assert.True(t, exists, "another ceremony's reports are not affected by pruning")

	exists, err = afero.Exists(fsys, ".avc/reports/verification-docs-20260801-000000.json")
	require.NoError(t, err)
	assert.False(t, exists)
}
