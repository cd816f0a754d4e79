package model

// Reroute is a collapsed detour observed while a vehicle was searching:
// it left Origin's group and arrived at Destination in another group.
type Reroute struct {
	Origin      StationID
	Destination StationID
	Duration    float64
}

// ChargingSession is emitted once per arrival that closed an active search.
type ChargingSession struct {
	Vehicle        string
	Destination    StationID
	Start          float64
	Arrival        float64
	SearchDuration float64
	Reroute        *Reroute
}

// ChargingEvent is a completed occupancy of a charging point.
type ChargingEvent struct {
	Station StationID
	Vehicle string
	Begin   float64
	End     float64
	// Energy is the energy delivered during the occupancy in Wh.
	Energy float64
}

// Duration returns the occupancy time.
func (e ChargingEvent) Duration() float64 { return e.End - e.Begin }

// TraceSample is one position/speed observation of a vehicle.
type TraceSample struct {
	Vehicle string
	Time    float64
	Lane    string
	Speed   float64
}
