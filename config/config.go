package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/chargesim/core/factory"
	"github.com/kilianp07/chargesim/core/metrics"
	"github.com/kilianp07/chargesim/infra/mqtt"
)

// EnvPrefix marks environment variables that override file values.
// K_SIMULATION__STEP_SECONDS=2 sets simulation.step_seconds.
const EnvPrefix = "K_"

// Config is the root configuration of the simulator.
type Config struct {
	Simulation SimulationConfig `json:"simulation"`
	Report     ReportConfig     `json:"report"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    metrics.Config   `json:"metrics"`
	// MQTT is the connection shared by mqtt metrics sinks. It is only
	// validated when such a sink is configured.
	MQTT mqtt.Config `json:"mqtt"`
}

// SimulationConfig selects the scenario to replay.
type SimulationConfig struct {
	Scenario string `json:"scenario"`
	// StepSeconds overrides the scenario step when positive.
	StepSeconds float64 `json:"step_seconds"`
	// CSSize is the number of points per group used for the stations ratio.
	// Zero keeps the size declared by the scenario.
	CSSize int `json:"cs_size"`
}

// SetDefaults is a no-op kept for symmetry with the other sections.
func (c *SimulationConfig) SetDefaults() {}

// Validate checks mandatory fields.
func (c SimulationConfig) Validate() error {
	var errs []error
	if c.Scenario == "" {
		errs = append(errs, errors.New("scenario is required"))
	}
	if c.StepSeconds < 0 {
		errs = append(errs, fmt.Errorf("step_seconds must be >= 0, got %v", c.StepSeconds))
	}
	if c.CSSize < 0 {
		errs = append(errs, fmt.Errorf("cs_size must be >= 0, got %d", c.CSSize))
	}
	return errors.Join(errs...)
}

// ReportConfig controls how the end of run report is produced.
type ReportConfig struct {
	Output string `json:"output"`
	// CSV optionally receives a per-station table.
	CSV        string  `json:"csv"`
	Percentile float64 `json:"percentile"`
	// Precision is a pointer so an explicit 0 can be told apart from unset.
	// A negative value disables rounding.
	Precision *int `json:"precision"`
	// StorePath appends every report to a JSONL history when set.
	StorePath string `json:"store_path"`
}

// SetDefaults applies sane defaults.
func (c *ReportConfig) SetDefaults() {
	if c.Output == "" {
		c.Output = "charging.json"
	}
	if c.Percentile == 0 {
		c.Percentile = 95
	}
	if c.Precision == nil {
		p := 2
		c.Precision = &p
	}
}

// Validate checks mandatory fields.
func (c ReportConfig) Validate() error {
	if c.Percentile <= 0 || c.Percentile > 100 {
		return fmt.Errorf("percentile must be in (0, 100], got %v", c.Percentile)
	}
	return nil
}

// Load reads a YAML or JSON configuration file, applies K_ environment
// overrides, then defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) finish() error {
	c.Simulation.SetDefaults()
	c.Report.SetDefaults()
	c.Logging.SetDefaults()

	var errs []error
	if err := c.Simulation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("simulation: %w", err))
	}
	if err := c.Report.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("report: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.inheritMQTT(); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	return errors.Join(errs...)
}

// inheritMQTT gives every mqtt sink the connection of the mqtt section.
// Keys set on the sink itself win.
func (c *Config) inheritMQTT() error {
	var base map[string]any
	for i, s := range c.Metrics.Sinks {
		if s.Type != "mqtt" {
			continue
		}
		if base == nil {
			c.MQTT.SetDefaults()
			var err error
			if base, err = factory.Encode(c.MQTT); err != nil {
				return err
			}
		}
		c.Metrics.Sinks[i].Conf = factory.Merge(base, s.Conf)
		var merged mqtt.Config
		if err := factory.Decode(c.Metrics.Sinks[i].Conf, &merged); err != nil {
			return err
		}
		if err := merged.Validate(); err != nil {
			return err
		}
	}
	return nil
}
