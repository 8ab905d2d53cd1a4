package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayDeterministic(t *testing.T) {
	output, err := executeCommand(t, "replay", scenarioPath("department_cycle"), "--runs", "3")
	require.NoError(t, err)
	assert.Contains(t, output, "run 1: ")
	assert.Contains(t, output, "run 3: ")
	assert.Contains(t, output, "✓ department_cycle: 3 identical runs")
}

func TestReplayJSON(t *testing.T) {
	output, err := executeCommand(t, "--format", "json", "replay", scenarioPath("rush_order"))
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Deterministic)
	require.Len(t, resp.Data.Runs, 2)
	assert.Len(t, resp.Data.Runs[0].Digest, 16)
	assert.Equal(t, resp.Data.Runs[0].Digest, resp.Data.Runs[1].Digest)
	assert.True(t, resp.Data.Runs[1].Pass)
}

func TestReplayRejectsSingleRun(t *testing.T) {
	_, err := executeCommand(t, "replay", scenarioPath("rush_order"), "--runs", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--runs must be at least 2")
}

func TestReplayMissingScenario(t *testing.T) {
	_, err := executeCommand(t, "replay", "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
