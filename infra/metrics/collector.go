package metrics

import (
	"context"

	"github.com/kilianp07/chargesim/core/events"
	"github.com/kilianp07/chargesim/core/logger"
	"github.com/kilianp07/chargesim/internal/eventbus"
)

// RunRecorder is implemented by sinks counting run lifecycle events.
type RunRecorder interface {
	RecordRun(ev events.RunEvent) error
}

// StartEventCollector subscribes to the event bus, logs throttling and run
// lifecycle events and forwards run events to rec when it is not nil.
// It stops when the context is cancelled or the bus is closed; the returned
// channel is closed once it has.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, rec RunRecorder, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.Nop{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.ThrottleEvent:
					log.Debugw("group throttled", map[string]any{
						"group": string(e.Load.Group), "time": e.Time, "demand": e.Load.Demand, "cap": e.Load.Cap,
					})
				case events.RunEvent:
					if e.Err != nil {
						log.Warnf("run %s %s: %v", e.RunID, e.Action, e.Err)
					}
					if rec != nil {
						if err := rec.RecordRun(e); err != nil {
							log.Warnf("record run: %v", err)
						}
					}
				}
			}
		}
	}()
	return done
}
