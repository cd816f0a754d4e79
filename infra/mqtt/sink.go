package mqtt

import (
	"errors"

	"github.com/kilianp07/chargesim/core/factory"
	coremetrics "github.com/kilianp07/chargesim/core/metrics"
)

// SessionMessage is published on <prefix>/sessions/<group> for each closed
// search.
type SessionMessage struct {
	Vehicle        string  `json:"vehicle"`
	Station        string  `json:"station"`
	Time           float64 `json:"time"`
	SearchDuration float64 `json:"search_duration"`
	RerouteOrigin  string  `json:"reroute_origin,omitempty"`
	RerouteTime    float64 `json:"reroute_duration,omitempty"`
}

// GroupMessage is published on <prefix>/groups/<group>/load every tick the
// group has occupants.
type GroupMessage struct {
	Time      float64 `json:"time"`
	Cap       float64 `json:"cap_w"`
	Demand    float64 `json:"demand_w"`
	Delivered float64 `json:"delivered_w"`
	Factor    float64 `json:"factor"`
	Occupants int     `json:"occupants"`
}

// PowerCommand is published on <prefix>/points/<station>/power so that an
// external charger controller can follow the allocation.
type PowerCommand struct {
	Vehicle string  `json:"vehicle"`
	Time    float64 `json:"time"`
	PowerW  float64 `json:"power_w"`
	Factor  float64 `json:"factor"`
	Limit   string  `json:"limit"`
}

type publisher interface {
	Topic(parts ...string) string
	Publish(kind, topic, runID string, payload any) (string, error)
}

// Sink is a metrics sink publishing to MQTT.
type Sink struct {
	pub publisher
}

// NewSink returns a Sink publishing through p.
func NewSink(p *Publisher) *Sink { return &Sink{pub: p} }

// RecordSession publishes the session.
func (s *Sink) RecordSession(ev coremetrics.SessionEvent) error {
	sess := ev.Session
	msg := SessionMessage{
		Vehicle:        sess.Vehicle,
		Station:        sess.Destination.String(),
		Time:           ev.Time,
		SearchDuration: sess.SearchDuration,
	}
	if r := sess.Reroute; r != nil {
		msg.RerouteOrigin = r.Origin.String()
		msg.RerouteTime = r.Duration
	}
	_, err := s.pub.Publish("session", s.pub.Topic("sessions", string(sess.Destination.Group)), ev.RunID, msg)
	return err
}

// RecordAllocation publishes the group load and one command per occupant.
func (s *Sink) RecordAllocation(ev coremetrics.AllocationEvent) error {
	l := ev.Load
	var errs []error
	if _, err := s.pub.Publish("group", s.pub.Topic("groups", string(l.Group), "load"), ev.RunID, GroupMessage{
		Time: ev.Time, Cap: l.Cap, Demand: l.Demand, Delivered: l.Delivered, Factor: l.Factor, Occupants: l.Occupants,
	}); err != nil {
		errs = append(errs, err)
	}
	for _, a := range ev.Allocations {
		cmd := PowerCommand{Vehicle: a.Vehicle, Time: ev.Time, PowerW: a.Delivered, Factor: a.Factor, Limit: string(a.Limit)}
		if _, err := s.pub.Publish("command", s.pub.Topic("points", a.Station.String(), "power"), ev.RunID, cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close disconnects the underlying publisher.
func (s *Sink) Close() {
	if p, ok := s.pub.(*Publisher); ok {
		p.Disconnect()
	}
}

func init() {
	_ = coremetrics.RegisterMetricsSink("mqtt", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		p, err := NewPublisher(c)
		if err != nil {
			return nil, err
		}
		return NewSink(p), nil
	})
}
