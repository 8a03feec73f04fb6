package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "colony_basics.yaml"),
		filepath.Join("testdata", "scenarios", "ritual_runs.yaml"),
	}, paths)
}

func TestFindScenarios_MissingDir(t *testing.T) {
	_, err := FindScenarios(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestRunSuite_AllPass(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)

	result := RunSuite(context.Background(), paths)
	assert.Equal(t, 2, result.TotalScenarios)
	assert.Equal(t, 2, result.Passed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Failures)
	for _, entry := range result.Results {
		assert.True(t, entry.Pass)
		assert.Len(t, entry.Hash, 64)
	}
}

func TestRunSuite_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	failing := filepath.Join(dir, "failing.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: [\n"), 0o600))
	require.NoError(t, os.WriteFile(failing, []byte(`
name: failing
players: [1]
steps: [{advance: 1}]
assertions: [{type: frame, value: 9}]
`), 0o600))

	result := RunSuite(context.Background(), []string{broken, failing})
	assert.Equal(t, 2, result.TotalScenarios)
	assert.Zero(t, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Contains(t, result.Failures[1].Error, "scenario assertions failed")
	assert.Equal(t, "failing", result.Results[1].Name)
}
