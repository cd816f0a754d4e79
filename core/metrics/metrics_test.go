package metrics

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/chargesim/core/factory"
)

type recordSink struct {
	sessions, allocations, ticks, flushes int
	err                                   error
}

func (r *recordSink) RecordSession(SessionEvent) error {
	r.sessions++
	return r.err
}

func (r *recordSink) RecordAllocation(AllocationEvent) error {
	r.allocations++
	return r.err
}

func (r *recordSink) RecordTick(TickEvent) error {
	r.ticks++
	return nil
}

func (r *recordSink) Flush() error {
	r.flushes++
	return nil
}

type plainSink struct{ NopSink }

func TestMultiSinkForwardsToAll(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2, plainSink{})

	err := m.RecordSession(SessionEvent{})
	assert.ErrorIs(t, err, boom)
	require.Error(t, m.RecordAllocation(AllocationEvent{}))
	require.NoError(t, m.RecordTick(TickEvent{}))
	require.NoError(t, m.Flush())

	for _, s := range []*recordSink{s1, s2} {
		assert.Equal(t, 1, s.sessions)
		assert.Equal(t, 1, s.allocations)
		assert.Equal(t, 1, s.ticks)
		assert.Equal(t, 1, s.flushes)
	}
}

func TestNewMetricsSink(t *testing.T) {
	s, err := NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	m, ok := s.(*MultiSink)
	require.True(t, ok)
	assert.Len(t, m.Sinks, 2)

	_, err = NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "missing"}})
	assert.ErrorIs(t, err, factory.ErrUnknownType)
	assert.Contains(t, SinkTypes(), "nop")
}

func TestConfigDecodes(t *testing.T) {
	var fromYAML Config
	require.NoError(t, yaml.Unmarshal([]byte("sinks:\n  - type: nop\n  - type: nop\n"), &fromYAML))
	assert.Len(t, fromYAML.Sinks, 2)

	var fromJSON Config
	require.NoError(t, json.Unmarshal([]byte(`{"sinks":[{"type":"influx","conf":{"url":"http://x"}}],"prometheus_addr":":9100"}`), &fromJSON))
	require.Len(t, fromJSON.Sinks, 1)
	assert.Equal(t, "influx", fromJSON.Sinks[0].Type)
	assert.Equal(t, "http://x", fromJSON.Sinks[0].Conf["url"])
	assert.Equal(t, ":9100", fromJSON.PrometheusAddr)
}
