// Package tracker follows each vehicle's search for a charging point across
// ticks and turns the observations into closed charging sessions.
package tracker

import (
	"fmt"

	"github.com/kilianp07/chargesim/core/logger"
	"github.com/kilianp07/chargesim/core/model"
)

// Recorder receives the outcome of tracked searches.
type Recorder interface {
	// SessionStarted is called once for every search that begins, with the
	// group of its first target.
	SessionStarted(group model.GroupID)
	// SessionClosed is called once for every arrival that ends a search.
	SessionClosed(s model.ChargingSession)
}

type vehicle struct {
	// rejected is the last candidate that failed to parse. It is counted
	// once, not on every tick it is reported again.
	rejected string
	state    State
}

// Tracker holds the search state of every vehicle seen so far. It is not safe
// for concurrent use; the simulation feeds it one tick at a time.
type Tracker struct {
	vehicles  map[string]*vehicle
	recorder  Recorder
	log       logger.Logger
	malformed int
}

// New returns a Tracker reporting to rec. rec may be nil.
func New(rec Recorder, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop{}
	}
	return &Tracker{vehicles: make(map[string]*vehicle), recorder: rec, log: log}
}

func (t *Tracker) get(id string) *vehicle {
	v, ok := t.vehicles[id]
	if !ok {
		v = &vehicle{state: Idle{}}
		t.vehicles[id] = v
	}
	return v
}

// Observe feeds the candidate destination and assigned point reported for a
// vehicle at time now. An empty candidate or an assigned point leaves the
// search untouched.
func (t *Tracker) Observe(id, candidate, assigned string, now float64) error {
	v := t.get(id)
	if model.IsNone(candidate) || !model.IsNone(assigned) {
		return nil
	}
	if cur, ok := target(v.state); ok && candidate == cur.String() {
		return nil
	}
	if candidate == v.rejected {
		return nil
	}
	next, err := model.ParseStationID(candidate)
	if err != nil {
		v.rejected = candidate
		t.malformed++
		return fmt.Errorf("vehicle %s: %w", id, err)
	}
	v.rejected = ""
	switch st := v.state.(type) {
	case Idle:
		v.state = Searching{Start: now, Target: next}
		t.log.Debugw("search started", map[string]any{"vehicle": id, "station": candidate, "time": now})
		if t.recorder != nil {
			t.recorder.SessionStarted(next.Group)
		}
	default:
		moved := retarget(st, next, now)
		if _, opened := moved.(Rerouting); opened {
			if _, was := st.(Rerouting); !was {
				t.log.Debugw("reroute opened", map[string]any{"vehicle": id, "from": st.(Searching).Target.String(), "to": candidate, "time": now})
			}
		}
		v.state = moved
	}
	return nil
}

// Arrive closes the search of a vehicle that started its stop at station.
// It returns the finalized session, or nil when no search was active.
// The vehicle is idle afterwards in every case.
func (t *Tracker) Arrive(id, station string, now float64) (*model.ChargingSession, error) {
	if model.IsNone(station) {
		return nil, nil
	}
	v := t.get(id)
	prev := v.state
	v.state = Idle{}
	dest, err := model.ParseStationID(station)
	if err != nil {
		t.malformed++
		return nil, fmt.Errorf("vehicle %s arrival: %w", id, err)
	}

	var sess *model.ChargingSession
	switch st := prev.(type) {
	case Searching:
		sess = closeSearch(id, st, dest, now)
	case Rerouting:
		sess = closeSearch(id, st.Searching, dest, now)
		if dest.Group != st.Origin.Group {
			sess.Reroute = &model.Reroute{Origin: st.Origin, Destination: dest, Duration: now - st.Since}
		}
	default:
		return nil, nil
	}
	if t.recorder != nil {
		t.recorder.SessionClosed(*sess)
	}
	return sess, nil
}

func closeSearch(id string, s Searching, dest model.StationID, now float64) *model.ChargingSession {
	return &model.ChargingSession{
		Vehicle:        id,
		Destination:    dest,
		Start:          s.Start,
		Arrival:        now,
		SearchDuration: now - s.Start,
	}
}

// State returns the current search state of a vehicle. Unknown vehicles are
// Idle.
func (t *Tracker) State(id string) State {
	if v, ok := t.vehicles[id]; ok {
		return v.state
	}
	return Idle{}
}

// Known reports whether the vehicle has been observed at least once.
func (t *Tracker) Known(id string) bool {
	_, ok := t.vehicles[id]
	return ok
}

// Unflushed returns the number of searches still open. They are dropped
// from the output when the run ends.
func (t *Tracker) Unflushed() int {
	n := 0
	for _, v := range t.vehicles {
		if _, idle := v.state.(Idle); !idle {
			n++
		}
	}
	return n
}

// Malformed returns the number of observations rejected because of an
// undecomposable station id.
func (t *Tracker) Malformed() int { return t.malformed }
