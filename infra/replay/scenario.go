// Package replay is a scripted engine.Engine. A YAML scenario declares the
// charging groups and, per vehicle, a plan of timed segments (candidate
// point, lane, speed, charging stops). The engine replays the plan tick by
// tick and integrates the power written back by the controller into each
// vehicle's battery.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/chargesim/core/model"
)

// GroupDef declares a charging group of Points identical points, or of
// len(Ratings) points with individual ratings.
type GroupDef struct {
	ID      string    `yaml:"id"`
	CapW    float64   `yaml:"cap_w"`
	Points  int       `yaml:"points,omitempty"`
	RatingW float64   `yaml:"rating_w,omitempty"`
	Ratings []float64 `yaml:"ratings_w,omitempty"`
}

// Segment changes a vehicle's reported state from At on. Empty fields keep
// the previous value. Candidate "NULL" clears the candidate. Stop starts a
// charging stop at the given point which ends at Until, or lasts until the
// vehicle leaves when Until is zero.
type Segment struct {
	At        float64  `yaml:"at"`
	Candidate string   `yaml:"candidate,omitempty"`
	Lane      string   `yaml:"lane,omitempty"`
	Speed     *float64 `yaml:"speed,omitempty"`
	Stop      string   `yaml:"stop,omitempty"`
	Until     float64  `yaml:"until,omitempty"`
}

// VehicleDef declares one vehicle.
type VehicleDef struct {
	ID        string    `yaml:"id"`
	BatteryWh float64   `yaml:"battery_wh"`
	EnergyWh  float64   `yaml:"energy_wh"`
	IntakeW   float64   `yaml:"intake_w"`
	Depart    float64   `yaml:"depart"`
	Leave     float64   `yaml:"leave,omitempty"`
	Plan      []Segment `yaml:"plan"`
}

// Scenario is a complete replay script.
type Scenario struct {
	Name     string       `yaml:"name"`
	Begin    float64      `yaml:"begin"`
	End      float64      `yaml:"end,omitempty"`
	Step     float64      `yaml:"step,omitempty"`
	Groups   []GroupDef   `yaml:"groups"`
	Vehicles []VehicleDef `yaml:"vehicles"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario, rejecting unknown fields.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	sc.SetDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// SetDefaults fills the step and derives End from the vehicle plans when
// it is not set.
func (s *Scenario) SetDefaults() {
	if s.Step <= 0 {
		s.Step = 1
	}
	for i := range s.Vehicles {
		v := &s.Vehicles[i]
		sort.SliceStable(v.Plan, func(a, b int) bool { return v.Plan[a].At < v.Plan[b].At })
	}
	if s.End > 0 {
		return
	}
	end := s.Begin
	for _, v := range s.Vehicles {
		end = max(end, v.Depart, v.Leave)
		for _, seg := range v.Plan {
			end = max(end, seg.At, seg.Until)
		}
	}
	s.End = end
}

// Validate checks group and vehicle declarations and that every stop
// targets a declared point.
func (s *Scenario) Validate() error {
	var errs []error
	points := make(map[model.StationID]struct{})
	seenGroups := make(map[string]struct{})
	for _, g := range s.Groups {
		if g.ID == "" {
			errs = append(errs, errors.New("group without id"))
			continue
		}
		if _, dup := seenGroups[g.ID]; dup {
			errs = append(errs, fmt.Errorf("group %s declared twice", g.ID))
		}
		seenGroups[g.ID] = struct{}{}
		n := g.size()
		if n <= 0 {
			errs = append(errs, fmt.Errorf("group %s has no points", g.ID))
		}
		if g.CapW <= 0 {
			errs = append(errs, fmt.Errorf("group %s: cap_w must be positive", g.ID))
		}
		for i := 0; i < n; i++ {
			points[model.StationID{Group: model.GroupID(g.ID), Index: i}] = struct{}{}
		}
	}
	seenVehicles := make(map[string]struct{})
	for _, v := range s.Vehicles {
		if v.ID == "" {
			errs = append(errs, errors.New("vehicle without id"))
			continue
		}
		if _, dup := seenVehicles[v.ID]; dup {
			errs = append(errs, fmt.Errorf("vehicle %s declared twice", v.ID))
		}
		seenVehicles[v.ID] = struct{}{}
		if v.BatteryWh <= 0 {
			errs = append(errs, fmt.Errorf("vehicle %s: %w", v.ID, model.ErrZeroCapacity))
		}
		if v.EnergyWh < 0 || v.EnergyWh > v.BatteryWh || v.IntakeW < 0 {
			errs = append(errs, fmt.Errorf("vehicle %s: energy_wh must lie in [0, battery_wh] and intake_w be non-negative", v.ID))
		}
		for _, seg := range v.Plan {
			if seg.Stop == "" {
				continue
			}
			id, err := model.ParseStationID(seg.Stop)
			if err != nil {
				errs = append(errs, fmt.Errorf("vehicle %s: %w", v.ID, err))
				continue
			}
			if _, ok := points[id]; !ok {
				errs = append(errs, fmt.Errorf("vehicle %s stops at undeclared point %s", v.ID, seg.Stop))
			}
			if seg.Until != 0 && seg.Until <= seg.At {
				errs = append(errs, fmt.Errorf("vehicle %s: stop at %s ends before it starts", v.ID, seg.Stop))
			}
		}
	}
	return errors.Join(errs...)
}

func (g GroupDef) size() int {
	if len(g.Ratings) > 0 {
		return len(g.Ratings)
	}
	return g.Points
}

// ModelGroups converts the declarations into model groups.
func (s *Scenario) ModelGroups() []model.Group {
	out := make([]model.Group, 0, len(s.Groups))
	for _, g := range s.Groups {
		mg := model.Group{ID: model.GroupID(g.ID), Cap: g.CapW}
		for i := 0; i < g.size(); i++ {
			rating := g.RatingW
			if len(g.Ratings) > 0 {
				rating = g.Ratings[i]
			}
			mg.Points = append(mg.Points, model.Point{ID: model.StationID{Group: mg.ID, Index: i}, Rating: rating})
		}
		out = append(out, mg)
	}
	return out
}
