package replay

import (
	"context"
	"fmt"
	"math"

	"github.com/kilianp07/chargesim/core/engine"
	"github.com/kilianp07/chargesim/core/logger"
	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/power"
)

type vehicleRun struct {
	def    VehicleDef
	cursor int
	energy float64

	candidate string
	lane      string
	speed     float64

	stopping  bool
	station   model.StationID
	stopUntil float64
	left      bool
}

// Engine replays a Scenario. It implements engine.Engine.
type Engine struct {
	sc       *Scenario
	groups   []model.Group
	ratings  map[model.StationID]float64
	caps     map[model.GroupID]float64
	points   *power.MemoryStore
	vehicles []*vehicleRun
	byID     map[string]*vehicleRun
	k        int
	log      logger.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New builds an Engine over a validated scenario.
func New(sc *Scenario, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop{}
	}
	e := &Engine{
		sc:      sc,
		groups:  sc.ModelGroups(),
		ratings: make(map[model.StationID]float64),
		caps:    make(map[model.GroupID]float64),
		points:  power.NewMemoryStore(),
		byID:    make(map[string]*vehicleRun, len(sc.Vehicles)),
		log:     log,
	}
	for _, g := range e.groups {
		e.caps[g.ID] = g.Cap
		for _, p := range g.Points {
			e.ratings[p.ID] = p.Rating
		}
	}
	for _, def := range sc.Vehicles {
		v := &vehicleRun{def: def, energy: def.EnergyWh}
		e.vehicles = append(e.vehicles, v)
		e.byID[def.ID] = v
	}
	return e
}

// Open loads the scenario at path and returns its Engine.
func Open(path string, log logger.Logger) (*Engine, error) {
	sc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return New(sc, log), nil
}

// Step advances the replay by one tick.
func (e *Engine) Step(ctx context.Context) (engine.Tick, error) {
	if err := ctx.Err(); err != nil {
		return engine.Tick{}, err
	}
	now := e.sc.Begin + float64(e.k)*e.sc.Step
	if now > e.sc.End+1e-9 || e.allLeft() {
		return engine.Tick{}, engine.ErrFinished
	}
	if e.k > 0 {
		e.integrate()
	}
	e.k++

	tick := engine.Tick{Time: now}
	for _, v := range e.vehicles {
		if v.left || now < v.def.Depart {
			continue
		}
		if v.def.Leave > 0 && now >= v.def.Leave {
			if v.stopping {
				tick.StopEnds = append(tick.StopEnds, engine.StopEvent{Vehicle: v.def.ID, Station: v.station.String()})
			}
			v.left = true
			continue
		}
		if v.stopping && v.stopUntil > 0 && now >= v.stopUntil {
			tick.StopEnds = append(tick.StopEnds, engine.StopEvent{Vehicle: v.def.ID, Station: v.station.String()})
			v.stopping = false
			v.candidate = ""
			v.lane = ""
		}
		for v.cursor < len(v.def.Plan) && v.def.Plan[v.cursor].At <= now {
			if start, ok := v.apply(v.def.Plan[v.cursor]); ok {
				tick.StopStarts = append(tick.StopStarts, start)
			}
			v.cursor++
		}
		tick.Vehicles = append(tick.Vehicles, v.state())
	}
	return tick, nil
}

// integrate adds the power delivered during the previous tick to the
// batteries of stopped vehicles.
func (e *Engine) integrate() {
	for _, v := range e.vehicles {
		if !v.stopping || v.left {
			continue
		}
		w, err := e.points.Power(v.station)
		if err != nil {
			e.log.Warnf("read power of %s: %v", v.station, err)
			continue
		}
		v.energy = math.Min(v.def.BatteryWh, v.energy+w*e.sc.Step/3600)
	}
}

func (e *Engine) allLeft() bool {
	if len(e.vehicles) == 0 {
		return true
	}
	for _, v := range e.vehicles {
		if !v.left {
			return false
		}
	}
	return true
}

func (v *vehicleRun) apply(seg Segment) (engine.StopEvent, bool) {
	switch {
	case seg.Candidate == model.NoStation:
		v.candidate = ""
	case seg.Candidate != "":
		v.candidate = seg.Candidate
	}
	if seg.Lane != "" {
		v.lane = seg.Lane
	}
	if seg.Speed != nil {
		v.speed = *seg.Speed
	}
	if seg.Stop == "" {
		return engine.StopEvent{}, false
	}
	// Validated on load.
	id, _ := model.ParseStationID(seg.Stop)
	v.stopping = true
	v.station = id
	v.stopUntil = seg.Until
	v.lane = id.Lane()
	v.speed = 0
	return engine.StopEvent{Vehicle: v.def.ID, Station: seg.Stop}, true
}

func (v *vehicleRun) state() engine.VehicleState {
	s := engine.VehicleState{
		ID:        v.def.ID,
		Candidate: v.candidate,
		Assigned:  model.NoStation,
		Lane:      v.lane,
		Speed:     v.speed,
	}
	if v.stopping {
		s.Assigned = v.station.String()
		s.Speed = 0
	}
	return s
}

// Occupant reports the battery and limits of a vehicle stopped at station.
func (e *Engine) Occupant(vehicle string, station model.StationID) (model.ChargingOccupant, error) {
	v, ok := e.byID[vehicle]
	if !ok {
		return model.ChargingOccupant{}, fmt.Errorf("unknown vehicle %s", vehicle)
	}
	rating, ok := e.ratings[station]
	if !ok {
		return model.ChargingOccupant{}, fmt.Errorf("unknown point %s", station)
	}
	return model.ChargingOccupant{
		Vehicle:       vehicle,
		Station:       station,
		CurrentEnergy: v.energy,
		MaxEnergy:     v.def.BatteryWh,
		MaxIntake:     v.def.IntakeW,
		Rating:        rating,
		GroupCap:      e.caps[station.Group],
	}, nil
}

// Energy returns the current battery content of a vehicle in Wh.
func (e *Engine) Energy(vehicle string) (float64, bool) {
	v, ok := e.byID[vehicle]
	if !ok {
		return 0, false
	}
	return v.energy, true
}

// Points returns the in-memory point store.
func (e *Engine) Points() power.PointStore { return e.points }

// Groups returns the declared groups.
func (e *Engine) Groups() []model.Group { return e.groups }

// StepSeconds returns the configured tick length in seconds.
func (e *Engine) StepSeconds() float64 { return e.sc.Step }

// Close is a no-op; the replay holds no external resources.
func (e *Engine) Close() error { return nil }
