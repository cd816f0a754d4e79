package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargesim/core/report"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "charging.json")
	csvOut := filepath.Join(dir, "stations.csv")

	msg := execute(t, "analyze", "--sumocfg", "../infra/sumo/testdata/run.sumocfg",
		"--out", out, "--csv", csvOut, "--cs-size", "4")
	assert.Contains(t, msg, "written to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var rep report.Report
	require.NoError(t, json.Unmarshal(data, &rep))
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 1, rep.Skipped.MalformedIDs)
	assert.Equal(t, 4, rep.Groups["main_st"].StationsTotal)

	_, err = os.Stat(csvOut)
	assert.NoError(t, err)
}

func TestRunAndHistoryCommands(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "runs.jsonl")
	cfgFile := filepath.Join(dir, "config.yaml")
	scenario, err := filepath.Abs("../infra/replay/testdata/detour.yaml")
	require.NoError(t, err)
	cfg := "simulation:\n  scenario: " + scenario + "\n" +
		"report:\n  output: " + filepath.Join(dir, "charging.json") + "\n  store_path: " + store + "\n" +
		"logging:\n  level: warn\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o644))

	msg := execute(t, "run", "-c", cfgFile)
	assert.Contains(t, msg, "1 sessions")

	msg = execute(t, "history", "--store", store, "--scenario", "detour between two hubs")
	assert.Contains(t, msg, "RUN")
	assert.Contains(t, msg, "detour between two hubs")
}
