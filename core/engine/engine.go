// Package engine defines the port through which the charging core talks to
// a step-based traffic simulator.
package engine

import (
	"context"
	"errors"

	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/power"
)

// ErrFinished is returned by Step once no vehicle is left to simulate.
var ErrFinished = errors.New("simulation finished")

// VehicleState is what the engine reports for one live vehicle on a tick.
type VehicleState struct {
	ID string
	// Candidate is the charging point the vehicle currently aims for, or "".
	Candidate string
	// Assigned is the point the vehicle is bound to, or model.NoStation.
	Assigned string
	Lane     string
	Speed    float64
}

// StopEvent marks a vehicle starting or ending its stop at a charging point.
type StopEvent struct {
	Vehicle string
	Station string
}

// Tick is the state reported after one simulation step.
type Tick struct {
	Time       float64
	Vehicles   []VehicleState
	StopStarts []StopEvent
	StopEnds   []StopEvent
}

// Engine is implemented by simulator adapters.
type Engine interface {
	// Step advances the simulation by one tick.
	Step(ctx context.Context) (Tick, error)
	// Occupant reports the battery and power limits of a vehicle charging
	// at station.
	Occupant(vehicle string, station model.StationID) (model.ChargingOccupant, error)
	// Points exposes the per-point power attributes written back each tick.
	Points() power.PointStore
	// Groups lists the charging groups of the network.
	Groups() []model.Group
	Close() error
}
