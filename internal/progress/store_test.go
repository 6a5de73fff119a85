package progress

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(afero.NewMemMapFs(), ".avc/progress-docs.json", "", zerolog.Nop())
}

func TestStore_ReadMissingReturnsNil(t *testing.T) {
	s := newTestStore()
	cp, err := s.Read()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	s := newTestStore()

	in := &Checkpoint{
		Stage:          "questionnaire",
		TotalSteps:     12,
		CompletedSteps: 7,
		CollectedValues: map[string]any{
			"projectName": "avc",
			"reviewers":   []any{"alice", "bob"},
			"budget":      float64(3),
			"nested":      map[string]any{"deep": map[string]any{"flag": true}},
		},
	}
	require.NoError(t, s.Write(in))

	out, err := s.Read()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Stage, out.Stage)
	assert.Equal(t, in.TotalSteps, out.TotalSteps)
	assert.Equal(t, in.CompletedSteps, out.CompletedSteps)
	assert.Equal(t, in.CollectedValues, out.CollectedValues)
	assert.False(t, out.LastUpdate.IsZero())
}

func TestStore_WriteOverwritesWholeFile(t *testing.T) {
	s := newTestStore()

	require.NoError(t, s.Write(&Checkpoint{
		Stage:           "questionnaire",
		TotalSteps:      3,
		CompletedSteps:  1,
		CollectedValues: map[string]any{"a": "1", "stale": "yes"},
	}))
	require.NoError(t, s.Write(&Checkpoint{
		Stage:           "llm-generation",
		TotalSteps:      3,
		CompletedSteps:  3,
		CollectedValues: map[string]any{"a": "1"},
	}))

	out, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, "llm-generation", out.Stage)
	assert.NotContains(t, out.CollectedValues, "stale")
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore()

	// Clearing a checkpoint that never existed is not an error.
	require.NoError(t, s.Clear())

	require.NoError(t, s.Write(&Checkpoint{Stage: "questionnaire"}))
	require.NoError(t, s.Clear())

	cp, err := s.Read()
	require.NoError(t, err)
	assert.Nil(t, cp)
}
