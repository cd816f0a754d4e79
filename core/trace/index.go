// Package trace indexes position/speed samples so that queue waits and
// queue depths can be estimated for closed charging sessions.
package trace

import (
	"sort"

	"github.com/kilianp07/chargesim/core/model"
)

type sample struct {
	t    float64
	lane string
}

type laneCount struct {
	t     float64
	count int
}

// Builder accumulates samples. Only vehicles accepted by the filter are kept,
// both for their own series and for the stopped-vehicle counts.
type Builder struct {
	filter  map[string]struct{}
	series  map[string][]sample
	stopped map[string]map[float64]int
}

// NewBuilder returns a Builder restricted to vehicles. A nil set keeps every
// vehicle.
func NewBuilder(vehicles map[string]struct{}) *Builder {
	return &Builder{
		filter:  vehicles,
		series:  make(map[string][]sample),
		stopped: make(map[string]map[float64]int),
	}
}

// Add records one sample.
func (b *Builder) Add(s model.TraceSample) {
	if s.Vehicle == "" || s.Lane == "" {
		return
	}
	if b.filter != nil {
		if _, ok := b.filter[s.Vehicle]; !ok {
			return
		}
	}
	b.series[s.Vehicle] = append(b.series[s.Vehicle], sample{t: s.Time, lane: s.Lane})
	if s.Speed == 0 {
		counts, ok := b.stopped[s.Lane]
		if !ok {
			counts = make(map[float64]int)
			b.stopped[s.Lane] = counts
		}
		counts[s.Time]++
	}
}

// Build sorts the accumulated data and hands it over as an Index. The
// Builder must not be used afterwards.
func (b *Builder) Build() *Index {
	ix := &Index{
		series:  b.series,
		stopped: make(map[string][]laneCount, len(b.stopped)),
	}
	for _, s := range ix.series {
		sort.SliceStable(s, func(i, j int) bool { return s[i].t < s[j].t })
	}
	for lane, counts := range b.stopped {
		lc := make([]laneCount, 0, len(counts))
		for t, n := range counts {
			lc = append(lc, laneCount{t: t, count: n})
		}
		sort.Slice(lc, func(i, j int) bool { return lc[i].t < lc[j].t })
		ix.stopped[lane] = lc
	}
	b.series, b.stopped = nil, nil
	return ix
}

// Index is an immutable view over the samples of a run.
type Index struct {
	series  map[string][]sample
	stopped map[string][]laneCount
}

// Vehicles returns the number of indexed vehicles.
func (ix *Index) Vehicles() int { return len(ix.series) }

// QueueEntryTime returns when the vehicle entered the queue zone it occupied
// before deadline. ok is false when no sample precedes the deadline or the
// vehicle was never seen entering the zone.
func (ix *Index) QueueEntryTime(vehicle string, inZone func(lane string) bool, deadline float64) (float64, bool) {
	s := ix.series[vehicle]
	if len(s) == 0 {
		return 0, false
	}
	last := sort.Search(len(s), func(i int) bool { return s[i].t > deadline }) - 1
	if last < 0 {
		return 0, false
	}
	i := last
	if inZone(s[i].lane) {
		for i > 0 && inZone(s[i-1].lane) {
			i--
		}
		return s[i].t, true
	}
	for ; i > 0; i-- {
		if inZone(s[i].lane) && !inZone(s[i-1].lane) {
			return s[i].t, true
		}
	}
	return 0, false
}

// MaxStopped returns the largest number of stopped vehicles sampled on lane
// within [from, to].
func (ix *Index) MaxStopped(lane string, from, to float64) int {
	lc := ix.stopped[lane]
	i := sort.Search(len(lc), func(i int) bool { return lc[i].t >= from })
	best := 0
	for ; i < len(lc) && lc[i].t <= to; i++ {
		best = max(best, lc[i].count)
	}
	return best
}
