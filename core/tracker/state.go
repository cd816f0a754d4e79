package tracker

import "github.com/kilianp07/chargesim/core/model"

// State is the search state of one vehicle. It is one of Idle, Searching or
// Rerouting.
type State interface {
	isState()
}

// Idle means the vehicle is not looking for a charging point.
type Idle struct{}

// Searching means the vehicle registered an intent to charge at Start and
// currently heads for Target.
type Searching struct {
	Start  float64
	Target model.StationID
}

// Rerouting is a search that left the group of Origin at Since. Any number of
// further group changes collapse into this single pending reroute.
type Rerouting struct {
	Searching
	Origin model.StationID
	Since  float64
}

func (Idle) isState()      {}
func (Searching) isState() {}
func (Rerouting) isState() {}

// retarget applies a new candidate to an active search. A candidate in the
// same group as the current target only moves the target. A candidate in
// another group opens a reroute anchored at the current target, unless one
// is already pending, in which case the original anchor is kept.
func retarget(s State, candidate model.StationID, now float64) State {
	switch st := s.(type) {
	case Searching:
		if candidate.Group == st.Target.Group {
			st.Target = candidate
			return st
		}
		return Rerouting{
			Searching: Searching{Start: st.Start, Target: candidate},
			Origin:    st.Target,
			Since:     now,
		}
	case Rerouting:
		st.Target = candidate
		return st
	default:
		return s
	}
}

// target returns the station an active search heads for.
func target(s State) (model.StationID, bool) {
	switch st := s.(type) {
	case Searching:
		return st.Target, true
	case Rerouting:
		return st.Target, true
	default:
		return model.StationID{}, false
	}
}
