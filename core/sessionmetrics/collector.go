// Package sessionmetrics accumulates closed charging sessions, occupancy
// events and trace-derived waits, and turns them into a report at the end of
// a run.
package sessionmetrics

import (
	"math"
	"sort"

	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/report"
	"github.com/kilianp07/chargesim/core/stats"
)

// DefaultPercentile is the percentile reported next to every average.
const DefaultPercentile = 95

type stationStats struct {
	sessions        int
	search          []float64
	rerouteIn       []float64
	rerouteOut      []float64
	sessionsWithIn  int
	sessionsWithOut int

	charged      int
	energy       float64
	chargingTime float64
	vehicles     []string
	waits        []float64
	queues       []float64
}

type powerSample struct {
	value  float64
	weight float64
}

type groupStats struct {
	starts    int
	withOut   int
	cap       float64
	power     []powerSample
	throttled int
}

// Collector is the registry of per-station and per-group accumulators.
// Entries are created on first reference. It implements tracker.Recorder.
type Collector struct {
	stations   map[model.StationID]*stationStats
	groups     map[model.GroupID]*groupStats
	sizes      map[model.GroupID]int
	percentile float64
	skipped    report.Skipped
}

// Option configures a Collector.
type Option func(*Collector)

// WithPercentile overrides DefaultPercentile.
func WithPercentile(p float64) Option {
	return func(c *Collector) { c.percentile = p }
}

// WithGroupSizes sets the number of planned points per group, used for the
// stations-used ratio.
func WithGroupSizes(sizes map[model.GroupID]int) Option {
	return func(c *Collector) {
		for g, n := range sizes {
			c.sizes[g] = n
		}
	}
}

// New returns an empty Collector.
func New(opts ...Option) *Collector {
	c := &Collector{
		stations:   make(map[model.StationID]*stationStats),
		groups:     make(map[model.GroupID]*groupStats),
		sizes:      make(map[model.GroupID]int),
		percentile: DefaultPercentile,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Collector) station(id model.StationID) *stationStats {
	s, ok := c.stations[id]
	if !ok {
		s = &stationStats{}
		c.stations[id] = s
	}
	return s
}

func (c *Collector) group(id model.GroupID) *groupStats {
	g, ok := c.groups[id]
	if !ok {
		g = &groupStats{}
		c.groups[id] = g
	}
	return g
}

// SessionStarted counts a search that began targeting group g.
func (c *Collector) SessionStarted(g model.GroupID) {
	c.group(g).starts++
}

// SessionClosed records a finalized session.
func (c *Collector) SessionClosed(s model.ChargingSession) {
	dest := c.station(s.Destination)
	dest.sessions++
	dest.search = append(dest.search, s.SearchDuration)
	if s.Reroute == nil {
		return
	}
	r := s.Reroute
	origin := c.station(r.Origin)
	origin.rerouteOut = append(origin.rerouteOut, r.Duration)
	origin.sessionsWithOut++
	dest.rerouteIn = append(dest.rerouteIn, r.Duration)
	dest.sessionsWithIn++
	c.group(r.Origin.Group).withOut++
}

// RecordCharging adds a completed occupancy.
func (c *Collector) RecordCharging(ev model.ChargingEvent) {
	s := c.station(ev.Station)
	s.charged++
	s.energy += ev.Energy
	s.chargingTime += ev.Duration()
	s.vehicles = append(s.vehicles, ev.Vehicle)
}

// RecordWait adds the time a vehicle spent queueing before charging.
func (c *Collector) RecordWait(id model.StationID, wait float64) {
	s := c.station(id)
	s.waits = append(s.waits, wait)
}

// RecordQueue adds the deepest queue observed during one occupancy.
func (c *Collector) RecordQueue(id model.StationID, depth int) {
	s := c.station(id)
	s.queues = append(s.queues, float64(depth))
}

// RecordGroupPower adds the power delivered to a group during one tick of
// length weight.
func (c *Collector) RecordGroupPower(g model.GroupID, delivered, capW, weight float64, throttled bool) {
	gs := c.group(g)
	gs.cap = capW
	gs.power = append(gs.power, powerSample{value: delivered, weight: weight})
	if throttled {
		gs.throttled++
	}
}

// Skip adds to the skipped-record counters.
func (c *Collector) Skip(s report.Skipped) {
	c.skipped.MalformedIDs += s.MalformedIDs
	c.skipped.MissingTrace += s.MissingTrace
	c.skipped.OccupantErrors += s.OccupantErrors
	c.skipped.UnflushedSearch += s.UnflushedSearch
}

// Finalize computes every summary. duration is the simulated time span used
// for utilisation. The Collector may keep receiving records afterwards.
func (c *Collector) Finalize(duration float64) *report.Report {
	p := c.percentile
	r := &report.Report{
		Stations: make(map[string]report.StationReport, len(c.stations)),
		Groups:   make(map[string]report.GroupReport),
		Skipped:  c.skipped,
	}

	type groupAcc struct {
		sessions    int
		withIn      int
		used        int
		search      []float64
		in          []float64
		out         []float64
		waits       []float64
		queues      []float64
		charging    report.Charging
		utilization float64
	}
	accs := make(map[model.GroupID]*groupAcc)
	var all groupAcc

	ids := make([]model.StationID, 0, len(c.stations))
	for id := range c.stations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		s := c.stations[id]
		ch := report.Charging{Sessions: s.charged, Energy: s.energy, ChargingTime: s.chargingTime, Utilization: ratio(s.chargingTime, duration)}
		r.Stations[id.String()] = report.StationReport{
			Sessions:    s.sessions,
			SearchTime:  stats.Summarize(s.search, p),
			RerouteIn:   stats.Summarize(s.rerouteIn, p),
			RerouteOut:  stats.Summarize(s.rerouteOut, p),
			Charging:    ch,
			Vehicles:    s.vehicles,
			WaitTime:    stats.Summarize(s.waits, p),
			QueueLength: stats.Summarize(s.queues, p),
		}

		acc, ok := accs[id.Group]
		if !ok {
			acc = &groupAcc{}
			accs[id.Group] = acc
		}
		for _, a := range []*groupAcc{acc, &all} {
			a.sessions += s.sessions
			a.withIn += s.sessionsWithIn
			a.search = append(a.search, s.search...)
			a.in = append(a.in, s.rerouteIn...)
			a.out = append(a.out, s.rerouteOut...)
			a.waits = append(a.waits, s.waits...)
			a.queues = append(a.queues, s.queues...)
			a.charging.Sessions += s.charged
			a.charging.Energy += s.energy
			a.charging.ChargingTime += s.chargingTime
			a.utilization += ch.Utilization
			if s.charged > 0 {
				a.used++
			}
		}
	}

	var starts, withOut int
	for g, gs := range c.groups {
		starts += gs.starts
		withOut += gs.withOut
		if _, ok := accs[g]; !ok {
			accs[g] = &groupAcc{}
		}
	}

	for g, acc := range accs {
		gs := c.groups[g]
		if gs == nil {
			gs = &groupStats{}
		}
		gr := report.GroupReport{
			Sessions:          acc.sessions,
			SessionsStarted:   gs.starts,
			SearchTime:        stats.Summarize(acc.search, p),
			RerouteIn:         stats.Summarize(acc.in, p),
			RerouteOut:        stats.Summarize(acc.out, p),
			PercentRerouteIn:  ratio(float64(acc.withIn), float64(acc.sessions)),
			PercentRerouteOut: ratio(float64(gs.withOut), float64(gs.starts)),
			Charging:          acc.charging,
			StationsUsed:      acc.used,
			WaitTime:          stats.Summarize(acc.waits, p),
			QueueLength:       stats.Summarize(acc.queues, p),
			Power:             powerSummary(gs),
		}
		if acc.used > 0 {
			gr.Charging.Utilization = acc.utilization / float64(acc.used)
		}
		if total := c.sizes[g]; total > 0 {
			gr.StationsTotal = total
			gr.StationsUsedRatio = float64(acc.used) / float64(total)
		}
		r.Groups[string(g)] = gr
	}

	r.Totals = report.Totals{
		Sessions:          all.sessions,
		SessionsStarted:   starts,
		SearchTime:        stats.Summarize(all.search, p),
		RerouteIn:         stats.Summarize(all.in, p),
		RerouteOut:        stats.Summarize(all.out, p),
		PercentRerouteIn:  ratio(float64(all.withIn), float64(all.sessions)),
		PercentRerouteOut: ratio(float64(withOut), float64(starts)),
		Charging:          all.charging,
		StationsUsed:      all.used,
		WaitTime:          stats.Summarize(all.waits, p),
		QueueLength:       stats.Summarize(all.queues, p),
		Duration:          duration,
	}
	if all.used > 0 {
		r.Totals.Charging.Utilization = all.utilization / float64(all.used)
	}
	return r
}

func powerSummary(gs *groupStats) report.PowerSummary {
	if len(gs.power) == 0 {
		return report.PowerSummary{Cap: gs.cap}
	}
	values := make([]float64, len(gs.power))
	weights := make([]float64, len(gs.power))
	peak := 0.0
	for i, s := range gs.power {
		values[i] = s.value
		weights[i] = s.weight
		peak = max(peak, s.value)
	}
	mean, variance := stats.WeightedVariance(values, weights)
	return report.PowerSummary{
		Mean:     mean,
		StdDev:   math.Sqrt(variance),
		Max:      peak,
		Cap:      gs.cap,
		Samples:  len(values),
		Throttle: gs.throttled,
	}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
