package metrics

import (
	"context"

	"github.com/kilianp07/tendering/core/events"
	coremetrics "github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/infra/logger"
	"github.com/kilianp07/tendering/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards lifecycle
// transitions to sinks implementing TransitionRecorder. It stops when ctx is
// canceled or the bus is closed. The returned channel is closed on exit.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	rec, ok := sink.(coremetrics.TransitionRecorder)
	if bus == nil || !ok {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
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
				sc, isChange := ev.(events.StateChanged)
				if !isChange {
					continue
				}
				err := rec.RecordTransition(coremetrics.TransitionEvent{TenderID: sc.TenderID, From: sc.From, To: sc.To, Time: sc.At})
				if err != nil {
					log.Warnf("tender %s: record transition: %v", sc.TenderID, err)
				}
			}
		}
	}()
	return done
}
