// Package report defines the end-of-run charging report and its
// persistence.
package report

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/kilianp07/chargesim/core/stats"
)

// Report is the persisted outcome of one simulation run.
type Report struct {
	RunID    string                   `json:"run_id"`
	Created  time.Time                `json:"created"`
	Stations map[string]StationReport `json:"per_station"`
	Groups   map[string]GroupReport   `json:"per_group"`
	Totals   Totals                   `json:"totals"`
	Skipped  Skipped                  `json:"skipped"`
}

// Charging holds the occupancy figures of a station, a group or the run.
type Charging struct {
	Sessions     int     `json:"sessions"`
	Energy       float64 `json:"total_energy_charged"`
	ChargingTime float64 `json:"total_charging_time"`
	Utilization  float64 `json:"utilization"`
}

// StationReport summarizes one charging point.
type StationReport struct {
	// Sessions counts searches that ended at this point.
	Sessions    int           `json:"sessions"`
	SearchTime  stats.Summary `json:"search_time"`
	RerouteIn   stats.Summary `json:"reroute_in_time"`
	RerouteOut  stats.Summary `json:"reroute_out_time"`
	Charging    Charging      `json:"charging"`
	Vehicles    []string      `json:"vehicles,omitempty"`
	WaitTime    stats.Summary `json:"wait_time"`
	QueueLength stats.Summary `json:"queue_length"`
}

// GroupReport summarizes all points of a group. Durations are summarized
// over the concatenation of the station lists.
type GroupReport struct {
	Sessions          int           `json:"sessions"`
	SessionsStarted   int           `json:"sessions_started"`
	SearchTime        stats.Summary `json:"search_time"`
	RerouteIn         stats.Summary `json:"reroute_in_time"`
	RerouteOut        stats.Summary `json:"reroute_out_time"`
	PercentRerouteIn  float64       `json:"percent_sessions_with_reroute_in"`
	PercentRerouteOut float64       `json:"percent_sessions_with_reroute_out"`
	Charging          Charging      `json:"charging"`
	StationsUsed      int           `json:"number_of_stations_used"`
	StationsTotal     int           `json:"number_of_stations_total,omitempty"`
	StationsUsedRatio float64       `json:"stations_used_ratio,omitempty"`
	WaitTime          stats.Summary `json:"wait_time"`
	QueueLength       stats.Summary `json:"queue_length"`
	Power             PowerSummary  `json:"delivered_power"`
}

// PowerSummary is the time-weighted delivered power of a group.
type PowerSummary struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Max      float64 `json:"max"`
	Cap      float64 `json:"cap"`
	Samples  int     `json:"samples"`
	Throttle int     `json:"throttled_ticks"`
}

// Totals aggregates the whole run.
type Totals struct {
	Sessions          int           `json:"sessions"`
	SessionsStarted   int           `json:"sessions_started"`
	SearchTime        stats.Summary `json:"search_time"`
	RerouteIn         stats.Summary `json:"reroute_in_time"`
	RerouteOut        stats.Summary `json:"reroute_out_time"`
	PercentRerouteIn  float64       `json:"percent_sessions_with_reroute_in"`
	PercentRerouteOut float64       `json:"percent_sessions_with_reroute_out"`
	Charging          Charging      `json:"charging"`
	StationsUsed      int           `json:"number_of_stations_used"`
	WaitTime          stats.Summary `json:"wait_time"`
	QueueLength       stats.Summary `json:"queue_length"`
	Duration          float64       `json:"simulation_duration"`
}

// Skipped counts records left out of the report so consumers can judge its
// completeness.
type Skipped struct {
	MalformedIDs    int `json:"malformed_ids"`
	MissingTrace    int `json:"sessions_without_trace"`
	OccupantErrors  int `json:"occupant_errors"`
	UnflushedSearch int `json:"unflushed_searches"`
}

// Round rounds every floating point value of the report to the given number
// of decimals.
func (r *Report) Round(decimals int) {
	f := roundTo(decimals)
	for k, s := range r.Stations {
		s.SearchTime = roundSummary(s.SearchTime, f)
		s.RerouteIn = roundSummary(s.RerouteIn, f)
		s.RerouteOut = roundSummary(s.RerouteOut, f)
		s.WaitTime = roundSummary(s.WaitTime, f)
		s.QueueLength = roundSummary(s.QueueLength, f)
		s.Charging = roundCharging(s.Charging, f)
		r.Stations[k] = s
	}
	for k, g := range r.Groups {
		g.SearchTime = roundSummary(g.SearchTime, f)
		g.RerouteIn = roundSummary(g.RerouteIn, f)
		g.RerouteOut = roundSummary(g.RerouteOut, f)
		g.WaitTime = roundSummary(g.WaitTime, f)
		g.QueueLength = roundSummary(g.QueueLength, f)
		g.Charging = roundCharging(g.Charging, f)
		g.PercentRerouteIn = f(g.PercentRerouteIn)
		g.PercentRerouteOut = f(g.PercentRerouteOut)
		g.StationsUsedRatio = f(g.StationsUsedRatio)
		g.Power.Mean = f(g.Power.Mean)
		g.Power.StdDev = f(g.Power.StdDev)
		g.Power.Max = f(g.Power.Max)
		g.Power.Cap = f(g.Power.Cap)
		r.Groups[k] = g
	}
	t := &r.Totals
	t.SearchTime = roundSummary(t.SearchTime, f)
	t.RerouteIn = roundSummary(t.RerouteIn, f)
	t.RerouteOut = roundSummary(t.RerouteOut, f)
	t.WaitTime = roundSummary(t.WaitTime, f)
	t.QueueLength = roundSummary(t.QueueLength, f)
	t.Charging = roundCharging(t.Charging, f)
	t.PercentRerouteIn = f(t.PercentRerouteIn)
	t.PercentRerouteOut = f(t.PercentRerouteOut)
	t.Duration = f(t.Duration)
}

func roundTo(decimals int) func(float64) float64 {
	scale := math.Pow(10, float64(decimals))
	return func(v float64) float64 {
		return math.Round(v*scale) / scale
	}
}

func roundSummary(s stats.Summary, f func(float64) float64) stats.Summary {
	s.Avg = f(s.Avg)
	s.P95 = f(s.P95)
	return s
}

func roundCharging(c Charging, f func(float64) float64) Charging {
	c.Energy = f(c.Energy)
	c.ChargingTime = f(c.ChargingTime)
	c.Utilization = f(c.Utilization)
	return c
}

// WriteJSON writes r to w as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
