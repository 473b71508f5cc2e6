package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tendering/core/events"
	coremetrics "github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/internal/eventbus"
)

type transitionSink struct {
	coremetrics.NopSink
	mu  sync.Mutex
	got []coremetrics.TransitionEvent
}

func (s *transitionSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.mu.Lock()
	s.got = append(s.got, ev)
	s.mu.Unlock()
	return nil
}

func (s *transitionSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestEventCollectorForwardsTransitions(t *testing.T) {
	bus := eventbus.New[events.Event]()
	sink := &transitionSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, sink, nil)

	bus.Publish(events.BidReceived{TenderID: "T1", CarrierID: "A"})
	bus.Publish(events.StateChanged{TenderID: "T1", From: model.StatusPending, To: model.StatusInProgress})
	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StatusInProgress, sink.got[0].To)

	cancel()
	<-done
}

func TestEventCollectorStopsOnBusClose(t *testing.T) {
	bus := eventbus.New[events.Event]()
	done := StartEventCollector(context.Background(), bus, &transitionSink{}, nil)
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestEventCollectorWithoutRecorder(t *testing.T) {
	done := StartEventCollector(context.Background(), eventbus.New[events.Event](), struct{ coremetrics.MetricsSink }{}, nil)
	_, open := <-done
	assert.False(t, open)
}
