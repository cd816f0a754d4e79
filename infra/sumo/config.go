// Package sumo reads SUMO output files (chargingstations-output, fcd-output)
// and the .sumocfg that names them, for offline charging analysis.
package sumo

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrMissingOutput is returned when the .sumocfg does not declare an output
// the analysis needs.
var ErrMissingOutput = errors.New("missing output in sumocfg")

// Config is the subset of a .sumocfg used by the analysis. Output paths are
// resolved relative to the configuration file.
type Config struct {
	Begin          float64
	End            float64
	ChargingOutput string
	FCDOutput      string
}

// Duration is the simulated time span.
func (c Config) Duration() float64 { return max(0, c.End-c.Begin) }

type valueAttr struct {
	Value string `xml:"value,attr"`
}

type sumocfg struct {
	Begin  valueAttr `xml:"time>begin"`
	End    valueAttr `xml:"time>end"`
	Output struct {
		Charging *valueAttr `xml:"chargingstations-output"`
		FCD      *valueAttr `xml:"fcd-output"`
	} `xml:"output"`
}

// ReadConfig parses the .sumocfg at path.
func ReadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	var raw sumocfg
	if err := xml.NewDecoder(f).Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	var cfg Config
	if cfg.Begin, err = parseTime(raw.Begin.Value); err != nil {
		return Config{}, fmt.Errorf("%s begin: %w", path, err)
	}
	if cfg.End, err = parseTime(raw.End.Value); err != nil {
		return Config{}, fmt.Errorf("%s end: %w", path, err)
	}
	if raw.Output.Charging == nil || raw.Output.Charging.Value == "" {
		return Config{}, fmt.Errorf("%w: chargingstations-output", ErrMissingOutput)
	}
	if raw.Output.FCD == nil || raw.Output.FCD.Value == "" {
		return Config{}, fmt.Errorf("%w: fcd-output", ErrMissingOutput)
	}
	cfg.ChargingOutput = resolve(path, raw.Output.Charging.Value)
	cfg.FCDOutput = resolve(path, raw.Output.FCD.Value)
	return cfg, nil
}

func parseTime(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func resolve(cfgPath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(cfgPath), p)
}
