package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `simulation:
  scenario: "scenarios/detour.yaml"
  step_seconds: 2
  cs_size: 4
report:
  output: "out/charging.json"
  precision: 0
  percentile: 90
  store_path: "runs.jsonl"
logging:
  level: "debug"
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "prometheus"
    - type: "mqtt"
      conf:
        topic_prefix: "lab"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"scenario", cfg.Simulation.Scenario, "scenarios/detour.yaml"},
		{"step_seconds", cfg.Simulation.StepSeconds, 2.0},
		{"cs_size", cfg.Simulation.CSSize, 4},
		{"output", cfg.Report.Output, "out/charging.json"},
		{"precision", *cfg.Report.Precision, 0},
		{"percentile", cfg.Report.Percentile, 90.0},
		{"store_path", cfg.Report.StorePath, "runs.jsonl"},
		{"level", cfg.Logging.Level, "debug"},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"sinks", len(cfg.Metrics.Sinks), 2},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}

	conf := cfg.Metrics.Sinks[1].Conf
	assert.Equal(t, "tcp://localhost:1883", conf["broker"], "sink inherits the mqtt section")
	assert.Equal(t, "lab", conf["topic_prefix"], "sink keys win")
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{"simulation": {"scenario": "s.yaml"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "charging.json", cfg.Report.Output)
	assert.Equal(t, 95.0, cfg.Report.Percentile)
	assert.Equal(t, 2, *cfg.Report.Precision)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Sinks)
	assert.Empty(t, cfg.MQTT.Broker, "mqtt untouched without an mqtt sink")
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `simulation:
  scenario: "a.yaml"
  step_seconds: 1
`)
	t.Setenv("K_SIMULATION__STEP_SECONDS", "5")
	t.Setenv("K_REPORT__OUTPUT", "env.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Simulation.StepSeconds)
	assert.Equal(t, "env.json", cfg.Report.Output)
	assert.Equal(t, "a.yaml", cfg.Simulation.Scenario)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		want string
	}{
		{"extension", "config.toml", "", "unsupported config format"},
		{"missing scenario", "c.yaml", "report:\n  percentile: 50\n", "scenario is required"},
		{"percentile", "c.yaml", "simulation:\n  scenario: s\nreport:\n  percentile: 120\n", "percentile"},
		{"level", "c.yaml", "simulation:\n  scenario: s\nlogging:\n  level: loud\n", "unknown level"},
		{"mqtt broker", "c.yaml", "simulation:\n  scenario: s\nmetrics:\n  sinks:\n    - type: mqtt\n", "mqtt broker required"},
		{"negative cs_size", "c.yaml", "simulation:\n  scenario: s\n  cs_size: -1\n", "cs_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
