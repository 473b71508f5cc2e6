package tender

import (
	"fmt"
	"time"

	"github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/monitoring"
	"github.com/kilianp07/tendering/core/scheduler"
	"github.com/kilianp07/tendering/core/scoring"
)

// HandleTrigger is the scheduler callback. A panic while deciding flags the
// tender for manual audit instead of crashing the process.
func (m *Manager) HandleTrigger(tr scheduler.Trigger) {
	defer m.guard(tr.TenderID, tr.Kind.String())
	switch tr.Kind {
	case scheduler.KindDeadline:
		m.decide(tr.TenderID, false)
	case scheduler.KindBidExpiry:
		if expired := m.ledger.ExpireDue(tr.TenderID, m.now()); len(expired) > 0 {
			m.log.Infow("bids expired", map[string]any{"tender_id": tr.TenderID, "count": len(expired)})
		}
	case scheduler.KindCheck:
		if m.allResponded(tr.TenderID) {
			m.decide(tr.TenderID, true)
		}
	}
}

func (m *Manager) guard(id, op string) {
	r := recover()
	if r == nil {
		return
	}
	m.log.Errorf("tender %s: %s panicked: %v", id, op, r)
	monitoring.CaptureException(fmt.Errorf("tender %s: %s panicked: %v", id, op, r), map[string]string{"tender_id": id, "op": op})
	auditFlags.Inc()
	e, err := m.get(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.t.AuditRequired = true
	e.mu.Unlock()
}

// allResponded reports whether every eligible carrier holds a Pending bid
// that is still valid. Bids past their own expiry are reaped first.
func (m *Manager) allResponded(id string) bool {
	e, err := m.get(id)
	if err != nil {
		return false
	}
	e.mu.Lock()
	n := len(e.t.Eligible)
	collecting := e.t.Status().Collecting()
	e.mu.Unlock()
	if !collecting || n == 0 {
		return false
	}
	m.ledger.ExpireDue(id, m.now())
	return m.ledger.Responded(id) >= n
}

// plan is the outcome computed outside the tender lock.
type plan struct {
	state   model.State
	ranking scoring.Ranking
	winner  scoring.Result
	reason  model.ReviewReason
}

// decide closes bid collection. Bids are ranked from a ledger snapshot
// without holding the tender lock; the result is committed only if the
// tender is still collecting and the ledger did not change meanwhile.
// Otherwise the decision is recomputed, or discarded once the tender left
// bid collection.
func (m *Manager) decide(id string, early bool) {
	e, err := m.get(id)
	if err != nil {
		return
	}
	for attempt := 0; attempt < m.cfg.MaxDecisionAttempts; attempt++ {
		t, carriers, sentAt, ok := m.decisionInput(e)
		if !ok {
			return
		}
		now := m.now()
		if !early && now.Before(t.ResponseDeadline) {
			return
		}
		m.ledger.ExpireDue(id, now)
		bids, version := m.ledger.Snapshot(id)
		if early && len(bids) < len(t.Eligible) {
			return
		}
		p, ok := m.plan(t, bids, carriers, early, now)
		if !ok {
			return
		}

		var fx effects
		committed, retry := m.commit(e, p, version, sentAt, now, &fx)
		m.apply(fx)
		if committed || !retry {
			return
		}
		decisionRetries.Inc()
		m.log.Debugf("tender %s: bids changed while deciding, recomputing", id)
	}
	m.log.Errorf("tender %s: decision did not settle after %d attempts", id, m.cfg.MaxDecisionAttempts)
	auditFlags.Inc()
	e.mu.Lock()
	e.t.AuditRequired = true
	e.mu.Unlock()
}

func (m *Manager) decisionInput(e *entry) (model.TenderLoad, map[string]model.CarrierProfile, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.t.Status().Collecting() {
		return model.TenderLoad{}, nil, time.Time{}, false
	}
	return e.t.Clone(), e.carriers, e.sentAt, true
}

// plan picks the next state for a collecting tender. It reports false when
// nothing should happen yet.
func (m *Manager) plan(t model.TenderLoad, bids []model.CarrierBid, carriers map[string]model.CarrierProfile, early bool, now time.Time) (plan, bool) {
	ranking := m.rank(t, bids, carriers)
	if len(ranking.Results) == 0 {
		if early {
			return plan{}, false
		}
		if t.AutoAward {
			return plan{state: model.Expired{At: now}, ranking: ranking}, true
		}
		return m.review(model.ReviewNoBids, ranking, t, now), true
	}
	if !t.AutoAward {
		return m.review(model.ReviewAutoAwardDisabled, ranking, t, now), true
	}
	if len(model.EnabledRules(t.Rules)) == 0 {
		return m.review(model.ReviewNoEnabledRules, ranking, t, now), true
	}
	w, ok := ranking.Winner()
	if !ok {
		return m.review(model.ReviewNoConfirmedCapacity, ranking, t, now), true
	}
	return plan{
		state: model.Awarded{
			CarrierID: w.CarrierID,
			BidID:     w.BidID,
			Amount:    w.TotalCost,
			Score:     w.Score,
			Automatic: true,
			At:        now,
		},
		ranking: ranking,
		winner:  w,
	}, true
}

func (m *Manager) review(reason model.ReviewReason, ranking scoring.Ranking, t model.TenderLoad, now time.Time) plan {
	return plan{
		state:   model.PendingReview{Reason: reason, Since: now, Deadline: t.ResponseDeadline},
		ranking: ranking,
		reason:  reason,
	}
}

// commit is the award critical section. It reports whether the plan was
// applied and, if not, whether a recomputation is worthwhile.
func (m *Manager) commit(e *entry, p plan, version uint64, sentAt, now time.Time, fx *effects) (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.t.Status().Collecting() {
		return false, false
	}
	if m.ledger.Version(e.t.ID) != version {
		return false, true
	}
	if err := m.transition(e, p.state, fx); err != nil {
		m.log.Errorf("tender %s: %v", e.t.ID, err)
		return false, false
	}
	id := e.t.ID
	ranking := p.ranking
	e.ranking = &ranking
	rec := &audit.Record{
		Outcome:       p.state.Status(),
		Reason:        string(p.reason),
		Automatic:     true,
		Strategy:      ranking.Strategy,
		Rules:         e.t.Rules,
		Ranking:       ranking.Results,
		LedgerVersion: version,
		At:            now,
	}
	dec := &metrics.DecisionEvent{
		TenderID:  id,
		Outcome:   p.state.Status(),
		Reason:    string(p.reason),
		Bids:      len(ranking.Results),
		Automatic: true,
		Latency:   now.Sub(sentAt),
		Time:      now,
	}
	switch st := p.state.(type) {
	case model.Awarded:
		if err := m.ledger.Settle(id, st.BidID); err != nil {
			m.log.Errorf("tender %s: settle bids: %v", id, err)
			e.t.AuditRequired = true
		}
		rec.BidID, rec.CarrierID, rec.Amount, rec.Score = st.BidID, st.CarrierID, st.Amount, st.Score
		dec.CarrierID, dec.BidID, dec.Amount, dec.Score = st.CarrierID, st.BidID, st.Amount, st.Score
		fx.events = append(fx.events, events.TenderAwarded{
			TenderID: id, CarrierID: st.CarrierID, BidID: st.BidID,
			Amount: st.Amount, Score: st.Score, Automatic: true, At: now,
		})
	case model.Expired:
		if err := m.ledger.Settle(id, ""); err != nil {
			m.log.Errorf("tender %s: close ledger: %v", id, err)
		}
		fx.events = append(fx.events, events.TenderExpired{TenderID: id, At: now})
	case model.PendingReview:
		m.ledger.Close(id)
		if st.Reason == model.ReviewNoEnabledRules {
			m.log.Warnf("tender %s: %v, routed to review", id, ErrNoEnabledRules)
		}
		fx.events = append(fx.events, events.ReviewRequired{TenderID: id, Reason: st.Reason, At: now})
		rec.Automatic = false
		dec.Automatic = false
	}
	rec.AuditRequired = e.t.AuditRequired
	fx.record = rec
	fx.decision = dec
	return true, false
}

func (m *Manager) rank(t model.TenderLoad, bids []model.CarrierBid, carriers map[string]model.CarrierProfile) scoring.Ranking {
	inputs := make([]scoring.Input, 0, len(bids))
	for _, b := range bids {
		p, ok := carriers[b.CarrierID]
		if !ok {
			p = model.CarrierProfile{ID: b.CarrierID}
		}
		inputs = append(inputs, scoring.Input{Bid: b, Carrier: p})
	}
	return m.rankFn(inputs, t.Rules, m.cfg.Scoring.ReferenceFor(t), t.Strategy)
}

// Ranking returns the current ranking of a collecting or reviewed tender, or
// the ranking the decision was based on once it is closed.
func (m *Manager) Ranking(id string) (scoring.Ranking, error) {
	e, err := m.get(id)
	if err != nil {
		return scoring.Ranking{}, err
	}
	e.mu.Lock()
	t := e.t.Clone()
	carriers := e.carriers
	stored := e.ranking
	e.mu.Unlock()
	if t.Status().Terminal() {
		if stored != nil {
			return *stored, nil
		}
		return scoring.Ranking{Strategy: t.Strategy}, nil
	}
	m.ledger.ExpireDue(id, m.now())
	bids, _ := m.ledger.Snapshot(id)
	return m.rank(t, bids, carriers), nil
}

// Reevaluate replaces the tender's rules and returns the ranking of its
// current bids under them. Bids collected so far are only re-scored through
// this explicit call.
func (m *Manager) Reevaluate(id string, rules []model.SelectionRule) (scoring.Ranking, error) {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return scoring.Ranking{}, fmt.Errorf("%w: rule %d: %v", ErrValidation, i, err)
		}
	}
	e, err := m.get(id)
	if err != nil {
		return scoring.Ranking{}, err
	}
	err = func() error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.t.Status().Terminal() {
			return stateErr(e.t)
		}
		e.t.Rules = append([]model.SelectionRule(nil), rules...)
		return nil
	}()
	if err != nil {
		return scoring.Ranking{}, err
	}
	m.log.Infow("tender rules replaced", map[string]any{"tender_id": id, "rules": len(rules)})
	return m.Ranking(id)
}
