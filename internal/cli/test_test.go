package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/harness"
)

func TestTest_AllScenariosPass(t *testing.T) {
	out, err := execute(t, "test", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ colony_basics")
	assert.Contains(t, out, "✓ ritual_runs")
	assert.Contains(t, out, "Results: 2 passed, 0 failed, 2 total")
}

func TestTest_Filter(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--filter", "ritual_*", "--format", "json")
	require.NoError(t, err)

	var result harness.SuiteResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, result.TotalScenarios)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "ritual_runs", result.Results[0].Name)
	assert.Len(t, result.Results[0].Hash, 64)
}

func TestTest_FilterMatchesNothing(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--filter", "siege_*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_BadFilter(t *testing.T) {
	_, err := execute(t, "test", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTest_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_tick.yaml"), []byte(`name: wrong_tick
players: [1]
scopes: [0]
steps:
  - {player: 1, scope: 0, vote: normal}
  - advance: 2
assertions:
  - {type: tick, scope: 0, value: 99}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\nsteps: [\n"), 0o644))

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result harness.SuiteResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
	assert.Equal(t, 2, result.TotalScenarios)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Contains(t, result.Failures[1].Error, "scenario assertions failed")
}

func TestTest_RequiresDirectory(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
}
