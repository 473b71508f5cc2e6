package tender

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/model"
)

const auditTimeout = 5 * time.Second

// effects collects what a locked section decided so it can be carried out
// once the tender lock is released: timers, metrics, audit and events.
type effects struct {
	tenderID   string
	changes    []metrics.TransitionEvent
	events     []events.Event
	record     *audit.Record
	decision   *metrics.DecisionEvent
	stopTimers bool
}

func (fx *effects) review(t model.TenderLoad, reason model.ReviewReason, now time.Time) {
	fx.events = append(fx.events, events.ReviewRequired{TenderID: t.ID, Reason: reason, At: now})
	fx.decision = &metrics.DecisionEvent{TenderID: t.ID, Outcome: model.StatusPendingReview, Reason: string(reason), Time: now}
}

// transition applies next to the locked entry and queues the side effects.
func (m *Manager) transition(e *entry, next model.State, fx *effects) error {
	from := e.t.Status()
	if err := e.t.Transition(next); err != nil {
		return err
	}
	now := m.now()
	to := next.Status()
	fx.tenderID = e.t.ID
	fx.changes = append(fx.changes, metrics.TransitionEvent{TenderID: e.t.ID, From: from, To: to, Time: now})
	fx.events = append(fx.events, events.StateChanged{TenderID: e.t.ID, From: from, To: to, At: now})
	if to.Terminal() || to == model.StatusPendingReview {
		fx.stopTimers = true
	}
	return nil
}

// apply runs the effects. It must be called without any tender lock held.
func (m *Manager) apply(fx effects) {
	if fx.tenderID == "" {
		return
	}
	if fx.stopTimers {
		m.sched.Cancel(fx.tenderID)
	}
	for _, c := range fx.changes {
		transitions.WithLabelValues(string(c.From), string(c.To)).Inc()
		m.log.Infow("tender transition", map[string]any{"tender_id": c.TenderID, "from": string(c.From), "to": string(c.To)})
	}
	if d := fx.decision; d != nil {
		decisions.WithLabelValues(string(d.Outcome), d.Reason).Inc()
		if d.Latency > 0 {
			decisionLatency.Observe(d.Latency.Seconds())
		}
		if err := m.sink.RecordDecision(*d); err != nil {
			m.log.Warnf("tender %s: record decision: %v", d.TenderID, err)
		}
	}
	if r := fx.record; r != nil {
		r.ID = uuid.NewString()
		r.TenderID = fx.tenderID
		if r.At.IsZero() {
			r.At = m.now()
		}
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		if err := m.audit.Append(ctx, *r); err != nil {
			m.log.Errorf("tender %s: audit append: %v", fx.tenderID, err)
		}
		cancel()
	}
	for _, ev := range fx.events {
		if m.bus != nil {
			m.bus.Publish(ev)
		}
		if m.outbox == nil || !events.Outbound(ev) {
			continue
		}
		if err := m.outbox.Enqueue(ev); err != nil {
			deliveryFailures.Inc()
			m.log.Errorf("tender %s: %s not queued: %v", fx.tenderID, ev.Name(), err)
		}
	}
}
