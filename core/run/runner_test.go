package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargesim/core/engine"
	"github.com/kilianp07/chargesim/core/events"
	"github.com/kilianp07/chargesim/core/metrics"
	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/power"
	"github.com/kilianp07/chargesim/internal/eventbus"
)

type scriptedEngine struct {
	ticks     []engine.Tick
	pos       int
	groups    []model.Group
	points    *power.MemoryStore
	occupants map[string]model.ChargingOccupant
	stepErr   error
	closed    bool
}

func (e *scriptedEngine) Step(ctx context.Context) (engine.Tick, error) {
	if err := ctx.Err(); err != nil {
		return engine.Tick{}, err
	}
	if e.stepErr != nil {
		return engine.Tick{}, e.stepErr
	}
	if e.pos >= len(e.ticks) {
		return engine.Tick{}, engine.ErrFinished
	}
	t := e.ticks[e.pos]
	e.pos++
	return t, nil
}

func (e *scriptedEngine) Occupant(vehicle string, station model.StationID) (model.ChargingOccupant, error) {
	o, ok := e.occupants[vehicle]
	if !ok {
		return model.ChargingOccupant{}, errors.New("unknown vehicle")
	}
	o.Vehicle = vehicle
	o.Station = station
	for _, g := range e.groups {
		if g.ID == station.Group {
			o.GroupCap = g.Cap
		}
	}
	return o, nil
}

func (e *scriptedEngine) Points() power.PointStore { return e.points }
func (e *scriptedEngine) Groups() []model.Group     { return e.groups }
func (e *scriptedEngine) Close() error {
	e.closed = true
	return nil
}

func twoGroups() []model.Group {
	mk := func(g model.GroupID) model.Group {
		return model.Group{ID: g, Cap: 22000, Points: []model.Point{
			{ID: model.StationID{Group: g, Index: 0}, Rating: 11000},
			{ID: model.StationID{Group: g, Index: 1}, Rating: 11000},
		}}
	}
	return []model.Group{mk("a"), mk("b")}
}

// detourScenario: v1 searches towards group a from t=0, is redirected to
// group b at t=42, stops at cs_b_0 at t=52 and leaves at t=60.
func detourScenario() *scriptedEngine {
	e := &scriptedEngine{
		groups: twoGroups(),
		points: power.NewMemoryStore(),
		occupants: map[string]model.ChargingOccupant{
			"v1": {CurrentEnergy: 20000, MaxEnergy: 50000, MaxIntake: 7000, Rating: 11000},
		},
	}
	for t := 0; t <= 60; t++ {
		v := engine.VehicleState{ID: "v1", Assigned: model.NoStation, Speed: 10, Lane: "road_0"}
		switch {
		case t < 42:
			v.Candidate = "cs_a_0"
		case t < 52:
			v.Candidate = "cs_b_0"
		default:
			v.Candidate = "cs_b_0"
			v.Assigned = "cs_b_0"
			v.Lane = "cs_lanes_b_0"
			v.Speed = 0
		}
		if t >= 48 && t < 52 {
			v.Lane = model.AccessLane("b")
		}
		tick := engine.Tick{Time: float64(t), Vehicles: []engine.VehicleState{v}}
		if t == 52 {
			tick.StopStarts = []engine.StopEvent{{Vehicle: "v1", Station: "cs_b_0"}}
		}
		if t == 60 {
			tick.StopEnds = []engine.StopEvent{{Vehicle: "v1", Station: "cs_b_0"}}
		}
		e.ticks = append(e.ticks, tick)
	}
	return e
}

type captureSink struct {
	sessions    []metrics.SessionEvent
	allocations []metrics.AllocationEvent
	ticks       int
	flushed     bool
}

func (c *captureSink) RecordSession(ev metrics.SessionEvent) error {
	c.sessions = append(c.sessions, ev)
	return nil
}

func (c *captureSink) RecordAllocation(ev metrics.AllocationEvent) error {
	c.allocations = append(c.allocations, ev)
	return nil
}

func (c *captureSink) RecordTick(metrics.TickEvent) error {
	c.ticks++
	return nil
}

func (c *captureSink) Flush() error {
	c.flushed = true
	return nil
}

func TestRunDetourEndToEnd(t *testing.T) {
	eng := detourScenario()
	sink := &captureSink{}
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := New(eng, WithSink(sink), WithRunID("run-1"), WithClock(func() time.Time { return created }))

	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, created, rep.Created)
	assert.Equal(t, 61.0, rep.Totals.Duration)
	assert.Equal(t, 1, rep.Totals.Sessions)
	assert.Equal(t, 1, rep.Totals.SessionsStarted)

	b0 := rep.Stations["cs_b_0"]
	assert.Equal(t, 1, b0.Sessions)
	assert.Equal(t, 52.0, b0.SearchTime.Avg)
	assert.Equal(t, 10.0, b0.RerouteIn.Avg)
	assert.Equal(t, 1, b0.Charging.Sessions)
	assert.Equal(t, 8.0, b0.Charging.ChargingTime)
	// 8 ticks at 7 kW, bounded by the vehicle intake.
	assert.Equal(t, 15.56, b0.Charging.Energy)
	assert.Equal(t, 0.13, b0.Charging.Utilization)
	assert.Equal(t, []string{"v1"}, b0.Vehicles)
	// Queue zone entered on the access lane at t=48.
	assert.Equal(t, 4.0, b0.WaitTime.Avg)
	assert.Equal(t, 1.0, b0.QueueLength.Avg)

	a0 := rep.Stations["cs_a_0"]
	assert.Equal(t, 10.0, a0.RerouteOut.Avg)
	assert.Equal(t, 1.0, rep.Groups["a"].PercentRerouteOut)
	assert.Equal(t, 1.0, rep.Groups["b"].PercentRerouteIn)
	assert.Equal(t, 0.5, rep.Groups["b"].StationsUsedRatio)
	assert.Equal(t, 7000.0, rep.Groups["b"].Power.Max)
	assert.Equal(t, 0, rep.Groups["b"].Power.Throttle)
	assert.Equal(t, 0, rep.Skipped.MissingTrace)
	assert.Equal(t, 0, rep.Skipped.UnflushedSearch)

	require.Len(t, sink.sessions, 1)
	assert.Equal(t, "run-1", sink.sessions[0].RunID)
	require.Len(t, sink.allocations, 8)
	for _, a := range sink.allocations {
		require.Len(t, a.Allocations, 1)
		assert.Equal(t, 7000.0, a.Allocations[0].Delivered)
		assert.Equal(t, power.LimitVehicle, a.Allocations[0].Limit)
	}
	assert.Equal(t, 61, sink.ticks)
	assert.True(t, sink.flushed)

	pw, err := eng.points.Power(model.MustStationID("cs_b_0"))
	require.NoError(t, err)
	assert.Equal(t, 7000.0, pw)
}

func TestRunSharesCapAcrossOccupants(t *testing.T) {
	groups := []model.Group{{ID: "hub", Cap: 10000, Points: []model.Point{
		{ID: model.MustStationID("cs_hub_0"), Rating: 11000},
		{ID: model.MustStationID("cs_hub_1"), Rating: 11000},
	}}}
	eng := &scriptedEngine{
		groups: groups,
		points: power.NewMemoryStore(),
		occupants: map[string]model.ChargingOccupant{
			"v1": {CurrentEnergy: 10000, MaxEnergy: 60000, MaxIntake: 11000, Rating: 11000},
			"v2": {CurrentEnergy: 10000, MaxEnergy: 60000, MaxIntake: 11000, Rating: 11000},
		},
	}
	for t := 0; t < 5; t++ {
		tick := engine.Tick{Time: float64(t)}
		if t == 0 {
			tick.StopStarts = []engine.StopEvent{{Vehicle: "v1", Station: "cs_hub_0"}, {Vehicle: "v2", Station: "cs_hub_1"}}
		}
		eng.ticks = append(eng.ticks, tick)
	}
	bus := eventbus.NewWithBuffer(64)
	sub := bus.Subscribe()
	sink := &captureSink{}

	rep, err := New(eng, WithSink(sink), WithBus(bus)).Run(context.Background())
	require.NoError(t, err)

	for _, a := range sink.allocations {
		assert.LessOrEqual(t, a.Load.Delivered, 10000.0+1e-6)
		assert.True(t, a.Load.Throttled())
	}
	assert.Equal(t, 5, rep.Groups["hub"].Power.Throttle)
	// Open events are closed at the last tick.
	assert.Equal(t, 4.0, rep.Stations["cs_hub_0"].Charging.ChargingTime)

	bus.Close()
	var throttles int
	var actions []string
	for ev := range sub {
		switch e := ev.(type) {
		case events.ThrottleEvent:
			throttles++
		case events.RunEvent:
			actions = append(actions, e.Action)
		}
	}
	assert.Equal(t, 5, throttles)
	assert.Equal(t, []string{"started", "finished"}, actions)
}

func TestRunCountsSkippedRecords(t *testing.T) {
	eng := &scriptedEngine{groups: twoGroups(), points: power.NewMemoryStore()}
	eng.ticks = []engine.Tick{
		{Time: 0, Vehicles: []engine.VehicleState{
			{ID: "bad", Candidate: "station-7", Assigned: model.NoStation},
			{ID: "lost", Candidate: "cs_a_1", Assigned: model.NoStation},
		}},
		{Time: 1, StopStarts: []engine.StopEvent{{Vehicle: "ghost", Station: "cs_a_0"}}},
	}

	rep, err := New(eng).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped.MalformedIDs)
	assert.Equal(t, 1, rep.Skipped.UnflushedSearch)
	// ghost has no occupant data and no trace samples.
	assert.Equal(t, 1, rep.Skipped.OccupantErrors)
	assert.Equal(t, 1, rep.Skipped.MissingTrace)
	assert.Equal(t, 0, rep.Totals.Sessions)
	assert.Equal(t, 1, rep.Totals.SessionsStarted)
}

func TestRunCancelledReturnsNoReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := New(detourScenario()).Run(ctx)
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPropagatesEngineError(t *testing.T) {
	eng := detourScenario()
	eng.stepErr = errors.New("connection lost")
	rep, err := New(eng).Run(context.Background())
	assert.Nil(t, rep)
	assert.ErrorContains(t, err, "connection lost")
}

func TestGroupSizeOverride(t *testing.T) {
	r := New(&scriptedEngine{}, WithGroupSize(4))
	sizes := r.groupSizes(twoGroups())
	assert.Equal(t, map[model.GroupID]int{"a": 4, "b": 4}, sizes)
	assert.NotEmpty(t, New(&scriptedEngine{}).RunID())
}
