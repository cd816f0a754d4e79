package trace

import "github.com/kilianp07/chargesim/core/model"

// Sink receives the per-session estimates.
type Sink interface {
	RecordWait(id model.StationID, wait float64)
	RecordQueue(id model.StationID, depth int)
}

// Estimate computes, for every charging event, the time spent queueing before
// charging began and the deepest queue on the point's lane while it charged.
// sizes gives the number of points per group; groups missing from it use the
// number of distinct points seen in events. It returns the number of events
// for which no queue entry could be located.
func Estimate(events []model.ChargingEvent, ix *Index, sizes map[model.GroupID]int, sink Sink) int {
	seen := make(map[model.GroupID]map[int]struct{})
	for _, ev := range events {
		g := ev.Station.Group
		if seen[g] == nil {
			seen[g] = make(map[int]struct{})
		}
		seen[g][ev.Station.Index] = struct{}{}
	}
	zones := make(map[model.GroupID]map[string]struct{}, len(seen))
	for g, pts := range seen {
		n := sizes[g]
		if n <= 0 {
			n = len(pts)
		}
		zones[g] = model.QueueLanes(g, n)
	}

	missing := 0
	for _, ev := range events {
		zone := zones[ev.Station.Group]
		inZone := func(lane string) bool {
			_, ok := zone[lane]
			return ok
		}
		if entered, ok := ix.QueueEntryTime(ev.Vehicle, inZone, ev.Begin); ok {
			sink.RecordWait(ev.Station, max(0, ev.Begin-entered))
		} else {
			missing++
		}
		sink.RecordQueue(ev.Station, ix.MaxStopped(ev.Station.Lane(), ev.Begin, ev.End))
	}
	return missing
}
