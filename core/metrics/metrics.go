package metrics

import (
	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/power"
)

// SessionEvent is a closed search handed to sinks.
type SessionEvent struct {
	RunID   string
	Time    float64
	Session model.ChargingSession
}

// AllocationEvent carries one group's allocation for a tick.
type AllocationEvent struct {
	RunID       string
	Time        float64
	Load        power.GroupLoad
	Allocations []power.Allocation
}

// MetricsSink records run events for observability purposes.
type MetricsSink interface {
	RecordSession(ev SessionEvent) error
	RecordAllocation(ev AllocationEvent) error
}

// TickEvent summarises the fleet after a simulation step.
type TickEvent struct {
	RunID     string
	Time      float64
	Vehicles  int
	Searching int
	Charging  int
}

// TickRecorder is implemented by sinks tracking per-tick fleet gauges.
type TickRecorder interface {
	RecordTick(ev TickEvent) error
}

// Flusher is implemented by sinks buffering writes until the run ends.
type Flusher interface {
	Flush() error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSession(SessionEvent) error       { return nil }
func (NopSink) RecordAllocation(AllocationEvent) error { return nil }
func (NopSink) RecordTick(TickEvent) error             { return nil }
