package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/chargesim/core/metrics"
	"github.com/kilianp07/chargesim/core/events"
)

// PromSink exposes run activity as Prometheus collectors.
type PromSink struct {
	sessions  *prometheus.CounterVec
	search    *prometheus.HistogramVec
	reroute   *prometheus.HistogramVec
	power     *prometheus.GaugeVec
	factor    *prometheus.GaugeVec
	throttled *prometheus.CounterVec
	fleet     *prometheus.GaugeVec
	runs      *prometheus.CounterVec
}

var durationBuckets = []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600}

// NewPromSink registers the collectors on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the collectors on reg. A nil registerer
// defaults to the global Prometheus registerer. Collectors already present
// on reg are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	s := &PromSink{}
	if s.sessions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_sessions_total",
		Help: "Closed charging searches by destination group",
	}, []string{"group", "rerouted"})); err != nil {
		return nil, err
	}
	if s.search, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "charging_search_duration_seconds",
		Help:    "Simulated time between search start and arrival",
		Buckets: durationBuckets,
	}, []string{"group"})); err != nil {
		return nil, err
	}
	if s.reroute, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "charging_reroute_duration_seconds",
		Help:    "Simulated time spent on a detour to another group",
		Buckets: durationBuckets,
	}, []string{"origin_group", "group"})); err != nil {
		return nil, err
	}
	if s.power, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "charging_group_power_watts",
		Help: "Power delivered to the occupants of a group on the last tick",
	}, []string{"group"})); err != nil {
		return nil, err
	}
	if s.factor, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "charging_group_factor",
		Help: "Fair-share factor applied to a group on the last tick",
	}, []string{"group"})); err != nil {
		return nil, err
	}
	if s.throttled, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_group_throttled_ticks_total",
		Help: "Ticks on which a group's demand exceeded its cap",
	}, []string{"group"})); err != nil {
		return nil, err
	}
	if s.fleet, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "charging_fleet_vehicles",
		Help: "Vehicles by charging state on the last tick",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_runs_total",
		Help: "Simulation runs by lifecycle action",
	}, []string{"action"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSession counts the session and observes its durations.
func (s *PromSink) RecordSession(ev coremetrics.SessionEvent) error {
	sess := ev.Session
	g := string(sess.Destination.Group)
	s.sessions.WithLabelValues(g, strconv.FormatBool(sess.Reroute != nil)).Inc()
	s.search.WithLabelValues(g).Observe(sess.SearchDuration)
	if r := sess.Reroute; r != nil {
		s.reroute.WithLabelValues(string(r.Origin.Group), g).Observe(r.Duration)
	}
	return nil
}

// RecordAllocation updates the group gauges.
func (s *PromSink) RecordAllocation(ev coremetrics.AllocationEvent) error {
	g := string(ev.Load.Group)
	s.power.WithLabelValues(g).Set(ev.Load.Delivered)
	s.factor.WithLabelValues(g).Set(ev.Load.Factor)
	if ev.Load.Throttled() {
		s.throttled.WithLabelValues(g).Inc()
	}
	return nil
}

// RecordTick sets the fleet gauges.
func (s *PromSink) RecordTick(ev coremetrics.TickEvent) error {
	s.fleet.WithLabelValues("total").Set(float64(ev.Vehicles))
	s.fleet.WithLabelValues("searching").Set(float64(ev.Searching))
	s.fleet.WithLabelValues("charging").Set(float64(ev.Charging))
	return nil
}

// RecordRun counts run lifecycle events.
func (s *PromSink) RecordRun(ev events.RunEvent) error {
	s.runs.WithLabelValues(ev.Action).Inc()
	return nil
}
