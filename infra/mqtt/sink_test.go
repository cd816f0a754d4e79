package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargesim/core/factory"
	coremetrics "github.com/kilianp07/chargesim/core/metrics"
	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/power"
)

func decodePayload(t *testing.T, raw []byte, out any) {
	t.Helper()
	env := struct {
		Payload json.RawMessage `json:"payload"`
	}{}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.NoError(t, json.Unmarshal(env.Payload, out))
}

func TestSinkPublishesSessions(t *testing.T) {
	mc := useMockClient(t, &mockClient{})
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	sink := NewSink(pub)

	sess := model.ChargingSession{
		Vehicle: "v1", Destination: model.MustStationID("cs_b_0"), SearchDuration: 52,
		Reroute: &model.Reroute{Origin: model.MustStationID("cs_a_0"), Duration: 10},
	}
	require.NoError(t, sink.RecordSession(coremetrics.SessionEvent{RunID: "r", Time: 52, Session: sess}))

	require.Len(t, mc.published, 1)
	assert.Equal(t, "chargesim/sessions/b", mc.published[0].topic)
	var msg SessionMessage
	decodePayload(t, mc.published[0].payload, &msg)
	assert.Equal(t, SessionMessage{Vehicle: "v1", Station: "cs_b_0", Time: 52, SearchDuration: 52, RerouteOrigin: "cs_a_0", RerouteTime: 10}, msg)

	sink.Close()
	assert.True(t, mc.disconnected)
}

func TestSinkPublishesPowerCommands(t *testing.T) {
	mc := useMockClient(t, &mockClient{})
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"command": 1}})
	require.NoError(t, err)
	sink := NewSink(pub)

	ev := coremetrics.AllocationEvent{
		Time: 5,
		Load: power.GroupLoad{Group: "hub", Cap: 10000, Demand: 20000, Factor: 0.5, Delivered: 10000, Occupants: 2},
		Allocations: []power.Allocation{
			{Vehicle: "v1", Station: model.MustStationID("cs_hub_0"), Base: 10000, Factor: 0.5, Delivered: 5000, Limit: power.LimitVehicle},
			{Vehicle: "v2", Station: model.MustStationID("cs_hub_1"), Base: 10000, Factor: 0.5, Delivered: 5000, Limit: power.LimitVehicle},
		},
	}
	require.NoError(t, sink.RecordAllocation(ev))

	require.Len(t, mc.published, 3)
	assert.Equal(t, "chargesim/groups/hub/load", mc.published[0].topic)
	assert.Equal(t, "chargesim/points/cs_hub_1/power", mc.published[2].topic)
	assert.Equal(t, byte(1), mc.published[2].qos)

	var cmd PowerCommand
	decodePayload(t, mc.published[1].payload, &cmd)
	assert.Equal(t, PowerCommand{Vehicle: "v1", Time: 5, PowerW: 5000, Factor: 0.5, Limit: "vehicle"}, cmd)
}

func TestSinkFactoryRegistered(t *testing.T) {
	useMockClient(t, &mockClient{})
	s, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{
		Type: "mqtt",
		Conf: map[string]any{"broker": "tcp://localhost:1883", "topic_prefix": "x", "qos": map[string]any{"command": 1}},
	}})
	require.NoError(t, err)
	assert.IsType(t, &Sink{}, s)

	_, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "mqtt"}})
	assert.Error(t, err, "broker is required")
}
