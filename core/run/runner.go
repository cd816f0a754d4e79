// Package run drives a simulation engine tick by tick and turns what it
// reports into charging sessions, power allocations and the final report.
package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/chargesim/core/engine"
	"github.com/kilianp07/chargesim/core/events"
	"github.com/kilianp07/chargesim/core/logger"
	"github.com/kilianp07/chargesim/core/metrics"
	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/power"
	"github.com/kilianp07/chargesim/core/report"
	"github.com/kilianp07/chargesim/core/sessionmetrics"
	"github.com/kilianp07/chargesim/core/trace"
	"github.com/kilianp07/chargesim/core/tracker"
	"github.com/kilianp07/chargesim/internal/eventbus"
)

const (
	defaultStep       = 1.0
	defaultPercentile = 95
	defaultPrecision  = 2
)

// Runner owns one simulation run. It is not safe for concurrent use and
// Run may only be called once.
type Runner struct {
	eng        engine.Engine
	sink       metrics.MetricsSink
	bus        eventbus.EventBus
	log        logger.Logger
	step       float64
	percentile float64
	precision  int
	groupSize  int
	runID      string
	now        func() time.Time
}

// New returns a Runner over eng.
func New(eng engine.Engine, opts ...Option) *Runner {
	r := &Runner{
		eng:        eng,
		sink:       metrics.NopSink{},
		log:        logger.Nop{},
		step:       defaultStep,
		percentile: defaultPercentile,
		precision:  defaultPrecision,
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

// RunID returns the identifier stamped on the report and on every event.
func (r *Runner) RunID() string { return r.runID }

// state is the per-run bookkeeping shared by the tick handlers.
type state struct {
	collector *sessionmetrics.Collector
	tracker   *tracker.Tracker
	ctrl      *power.Controller
	zones     map[string]struct{}

	occupying map[string]model.StationID
	open      map[string]*model.ChargingEvent
	closed    []model.ChargingEvent
	samples   []model.TraceSample

	occupantErrors int
	first, last    float64
	ticks          int
}

// Run steps the engine until it reports engine.ErrFinished and returns the
// report. A cancelled context aborts the run without a report.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	groups := r.eng.Groups()
	sizes := r.groupSizes(groups)
	st := &state{
		collector: sessionmetrics.New(
			sessionmetrics.WithPercentile(r.percentile),
			sessionmetrics.WithGroupSizes(sizes),
		),
		zones:     make(map[string]struct{}),
		occupying: make(map[string]model.StationID),
		open:      make(map[string]*model.ChargingEvent),
	}
	st.tracker = tracker.New(st.collector, r.log)
	st.ctrl = power.NewController(r.eng.Points(), groups, r.log)
	for g, n := range sizes {
		for lane := range model.QueueLanes(g, n) {
			st.zones[lane] = struct{}{}
		}
	}

	r.publish(events.RunEvent{RunID: r.runID, Action: "started"})
	r.log.Infof("run %s started with %d groups", r.runID, len(groups))

	for {
		if err := ctx.Err(); err != nil {
			r.publish(events.RunEvent{RunID: r.runID, Action: "aborted", Err: err})
			return nil, err
		}
		tick, err := r.eng.Step(ctx)
		if errors.Is(err, engine.ErrFinished) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				r.publish(events.RunEvent{RunID: r.runID, Action: "aborted", Err: ctxErr})
				return nil, ctxErr
			}
			r.publish(events.RunEvent{RunID: r.runID, Action: "aborted", Err: err})
			return nil, fmt.Errorf("step: %w", err)
		}
		r.handleTick(st, tick)
	}

	rep := r.finish(st)
	r.publish(events.RunEvent{RunID: r.runID, Action: "finished"})
	r.log.Infof("run %s finished: %d sessions, %d ticks", r.runID, rep.Totals.Sessions, st.ticks)
	return rep, nil
}

func (r *Runner) handleTick(st *state, tick engine.Tick) {
	if st.ticks == 0 {
		st.first = tick.Time
	}
	st.ticks++
	st.last = tick.Time

	for _, v := range tick.Vehicles {
		if err := st.tracker.Observe(v.ID, v.Candidate, v.Assigned, tick.Time); err != nil {
			r.log.Warnf("observe: %v", err)
		}
	}
	for _, ev := range tick.StopEnds {
		r.stopEnded(st, ev, tick.Time)
	}
	for _, ev := range tick.StopStarts {
		r.stopStarted(st, ev, tick.Time)
	}

	searching := 0
	for _, v := range tick.Vehicles {
		_, idle := st.tracker.State(v.ID).(tracker.Idle)
		_, charging := st.occupying[v.ID]
		if !idle {
			searching++
		}
		if _, inZone := st.zones[v.Lane]; !idle || charging || inZone {
			st.samples = append(st.samples, model.TraceSample{Vehicle: v.ID, Time: tick.Time, Lane: v.Lane, Speed: v.Speed})
		}
	}

	r.allocate(st, tick.Time)

	if tr, ok := r.sink.(metrics.TickRecorder); ok {
		ev := metrics.TickEvent{RunID: r.runID, Time: tick.Time, Vehicles: len(tick.Vehicles), Searching: searching, Charging: len(st.occupying)}
		if err := tr.RecordTick(ev); err != nil {
			r.log.Warnf("record tick: %v", err)
		}
	}
}

func (r *Runner) stopStarted(st *state, ev engine.StopEvent, now float64) {
	sess, err := st.tracker.Arrive(ev.Vehicle, ev.Station, now)
	if err != nil {
		r.log.Warnf("arrive: %v", err)
		return
	}
	if sess != nil {
		r.publish(events.SessionEvent{RunID: r.runID, Session: *sess})
		if err := r.sink.RecordSession(metrics.SessionEvent{RunID: r.runID, Time: now, Session: *sess}); err != nil {
			r.log.Warnf("record session: %v", err)
		}
	}
	if model.IsNone(ev.Station) {
		return
	}
	id, err := model.ParseStationID(ev.Station)
	if err != nil {
		return
	}
	if prev, ok := st.open[ev.Vehicle]; ok {
		r.closeEvent(st, prev, now)
	}
	if err := st.ctrl.Admit(id); err != nil {
		r.log.Warnf("admit %s at %s: %v", ev.Vehicle, id, err)
	}
	st.occupying[ev.Vehicle] = id
	st.open[ev.Vehicle] = &model.ChargingEvent{Station: id, Vehicle: ev.Vehicle, Begin: now}
}

func (r *Runner) stopEnded(st *state, ev engine.StopEvent, now float64) {
	open, ok := st.open[ev.Vehicle]
	if !ok {
		return
	}
	r.closeEvent(st, open, now)
}

func (r *Runner) closeEvent(st *state, ev *model.ChargingEvent, now float64) {
	ev.End = now
	st.collector.RecordCharging(*ev)
	st.closed = append(st.closed, *ev)
	delete(st.open, ev.Vehicle)
	delete(st.occupying, ev.Vehicle)
}

func (r *Runner) allocate(st *state, now float64) {
	vehicles := make([]string, 0, len(st.occupying))
	for v := range st.occupying {
		vehicles = append(vehicles, v)
	}
	sort.Strings(vehicles)

	occupants := make([]model.ChargingOccupant, 0, len(vehicles))
	for _, v := range vehicles {
		o, err := r.eng.Occupant(v, st.occupying[v])
		if err != nil {
			st.occupantErrors++
			r.log.Warnf("occupant %s: %v", v, err)
			continue
		}
		occupants = append(occupants, o)
	}
	res := st.ctrl.Step(occupants)
	st.occupantErrors += len(res.Errors)
	for v, err := range res.Errors {
		r.log.Warnf("allocate %s: %v", v, err)
	}

	byGroup := make(map[model.GroupID][]power.Allocation, len(res.Groups))
	for _, a := range res.Allocations {
		if ev, ok := st.open[a.Vehicle]; ok {
			ev.Energy += a.Delivered * r.step / 3600
		}
		byGroup[a.Station.Group] = append(byGroup[a.Station.Group], a)
	}

	ids := make([]model.GroupID, 0, len(res.Groups))
	for g := range res.Groups {
		ids = append(ids, g)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, g := range ids {
		load := res.Groups[g]
		st.collector.RecordGroupPower(g, load.Delivered, load.Cap, r.step, load.Throttled())
		if load.Throttled() {
			r.publish(events.ThrottleEvent{RunID: r.runID, Time: now, Load: load})
		}
		ev := metrics.AllocationEvent{RunID: r.runID, Time: now, Load: load, Allocations: byGroup[g]}
		if err := r.sink.RecordAllocation(ev); err != nil {
			r.log.Warnf("record allocation: %v", err)
		}
	}
}

func (r *Runner) finish(st *state) *report.Report {
	vehicles := make([]string, 0, len(st.open))
	for v := range st.open {
		vehicles = append(vehicles, v)
	}
	sort.Strings(vehicles)
	for _, v := range vehicles {
		r.closeEvent(st, st.open[v], st.last)
	}

	charged := make(map[string]struct{}, len(st.closed))
	for _, ev := range st.closed {
		charged[ev.Vehicle] = struct{}{}
	}
	b := trace.NewBuilder(charged)
	for _, s := range st.samples {
		b.Add(s)
	}
	st.samples = nil
	missing := trace.Estimate(st.closed, b.Build(), r.groupSizes(r.eng.Groups()), st.collector)

	st.collector.Skip(report.Skipped{
		MalformedIDs:    st.tracker.Malformed(),
		MissingTrace:    missing,
		OccupantErrors:  st.occupantErrors,
		UnflushedSearch: st.tracker.Unflushed(),
	})
	if f, ok := r.sink.(metrics.Flusher); ok {
		if err := f.Flush(); err != nil {
			r.log.Warnf("flush sink: %v", err)
		}
	}

	duration := 0.0
	if st.ticks > 0 {
		duration = st.last - st.first + r.step
	}
	rep := st.collector.Finalize(duration)
	rep.RunID = r.runID
	rep.Created = r.now().UTC()
	if r.precision >= 0 {
		rep.Round(r.precision)
	}
	return rep
}

func (r *Runner) publish(ev eventbus.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}
