package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargesim/core/events"
	"github.com/kilianp07/chargesim/core/power"
	"github.com/kilianp07/chargesim/internal/eventbus"
)

type runCounter struct{ actions []string }

func (r *runCounter) RecordRun(ev events.RunEvent) error {
	r.actions = append(r.actions, ev.Action)
	return nil
}

func TestEventCollectorForwardsRunEvents(t *testing.T) {
	bus := eventbus.New()
	rec := &runCounter{}
	done := StartEventCollector(context.Background(), bus, rec, nil)

	bus.Publish(events.RunEvent{RunID: "r", Action: "started"})
	bus.Publish(events.ThrottleEvent{RunID: "r", Load: power.GroupLoad{Group: "a", Factor: 0.5}})
	bus.Publish(events.RunEvent{RunID: "r", Action: "aborted", Err: errors.New("boom")})
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	require.Len(t, rec.actions, 2)
	assert.Equal(t, []string{"started", "aborted"}, rec.actions)
}

func TestEventCollectorStopsOnCancel(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, nil, nil)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestEventCollectorNilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, nil, nil)
	_, open := <-done
	assert.False(t, open)
}
