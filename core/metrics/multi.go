package metrics

import "errors"

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSession forwards the session to every sink. All sinks are tried;
// their errors are joined.
func (m *MultiSink) RecordSession(ev SessionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordSession(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordAllocation forwards the allocation to every sink.
func (m *MultiSink) RecordAllocation(ev AllocationEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordAllocation(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordTick forwards tick gauges to sinks implementing TickRecorder.
func (m *MultiSink) RecordTick(ev TickEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if tr, ok := s.(TickRecorder); ok {
			if err := tr.RecordTick(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Flush flushes sinks implementing Flusher.
func (m *MultiSink) Flush() error {
	var errs []error
	for _, s := range m.Sinks {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
