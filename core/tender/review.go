package tender

import (
	"fmt"
	"strings"

	"github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/scoring"
)

// Decision is a reviewer's verdict on a tender in PendingReview. Exactly one
// of CarrierID and Reject must be set.
type Decision struct {
	CarrierID string `json:"carrier_id,omitempty"`
	Reject    bool   `json:"reject,omitempty"`
	Actor     string `json:"actor" validate:"required"`
	Reason    string `json:"reason,omitempty"`
}

func (d Decision) validate() error {
	if strings.TrimSpace(d.Actor) == "" {
		return fmt.Errorf("%w: actor is required", ErrValidation)
	}
	if d.Reject == (d.CarrierID != "") {
		return fmt.Errorf("%w: either carrier_id or reject must be set", ErrValidation)
	}
	return nil
}

// ManualDecision awards the carrier's Pending bid or rejects the tender. It
// is only valid from PendingReview.
func (m *Manager) ManualDecision(id string, d Decision) (model.TenderLoad, error) {
	if err := d.validate(); err != nil {
		return model.TenderLoad{}, err
	}
	e, err := m.get(id)
	if err != nil {
		return model.TenderLoad{}, err
	}
	var fx effects
	t, err := func() (model.TenderLoad, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		status := e.t.Status()
		if status.Terminal() {
			return model.TenderLoad{}, stateErr(e.t)
		}
		if status != model.StatusPendingReview {
			return model.TenderLoad{}, fmt.Errorf("%w: tender %s is %s, not pending review", ErrInvalidTransition, id, status)
		}
		now := m.now()
		version := m.ledger.Version(id)
		if d.Reject {
			if err := m.transition(e, model.Rejected{Actor: d.Actor, Reason: d.Reason, At: now}, &fx); err != nil {
				return model.TenderLoad{}, err
			}
			if err := m.ledger.Settle(id, ""); err != nil {
				m.log.Debugf("tender %s: no ledger to settle: %v", id, err)
			}
			fx.events = append(fx.events, events.TenderRejected{TenderID: id, Actor: d.Actor, Reason: d.Reason, At: now})
			fx.record = &audit.Record{Outcome: model.StatusRejected, Reason: d.Reason, Actor: d.Actor, Rules: e.t.Rules, LedgerVersion: version, At: now}
			fx.decision = &metrics.DecisionEvent{TenderID: id, Outcome: model.StatusRejected, Reason: "manual", Latency: now.Sub(e.sentAt), Time: now}
			return e.t.Clone(), nil
		}

		m.ledger.ExpireDue(id, now)
		bids, version := m.ledger.Snapshot(id)
		ranking := m.rank(e.t, bids, e.carriers)
		var chosen scoring.Result
		found := false
		for _, r := range ranking.Results {
			if r.CarrierID == d.CarrierID {
				chosen, found = r, true
				break
			}
		}
		if !found {
			return model.TenderLoad{}, fmt.Errorf("%w: no valid bid from carrier %s on tender %s", ErrBidNotFound, d.CarrierID, id)
		}
		awarded := model.Awarded{
			CarrierID: chosen.CarrierID,
			BidID:     chosen.BidID,
			Amount:    chosen.TotalCost,
			Score:     chosen.Score,
			Actor:     d.Actor,
			At:        now,
		}
		if err := m.transition(e, awarded, &fx); err != nil {
			return model.TenderLoad{}, err
		}
		if err := m.ledger.Settle(id, chosen.BidID); err != nil {
			m.log.Errorf("tender %s: settle bids: %v", id, err)
			e.t.AuditRequired = true
		}
		e.ranking = &ranking
		fx.events = append(fx.events, events.TenderAwarded{
			TenderID: id, CarrierID: chosen.CarrierID, BidID: chosen.BidID,
			Amount: chosen.TotalCost, Score: chosen.Score, Actor: d.Actor, At: now,
		})
		fx.record = &audit.Record{
			Outcome: model.StatusAwarded, Reason: d.Reason, Actor: d.Actor,
			BidID: chosen.BidID, CarrierID: chosen.CarrierID, Amount: chosen.TotalCost, Score: chosen.Score,
			Strategy: ranking.Strategy, Rules: e.t.Rules, Ranking: ranking.Results,
			LedgerVersion: version, AuditRequired: e.t.AuditRequired, At: now,
		}
		fx.decision = &metrics.DecisionEvent{
			TenderID: id, Outcome: model.StatusAwarded, Reason: "manual",
			CarrierID: chosen.CarrierID, BidID: chosen.BidID, Amount: chosen.TotalCost, Score: chosen.Score,
			Bids: len(ranking.Results), Latency: now.Sub(e.sentAt), Time: now,
		}
		return e.t.Clone(), nil
	}()
	m.apply(fx)
	return t, err
}

// CancelTender moves any non-terminal tender to Cancelled. Pending bids are
// rejected and the tender's timers are dropped.
func (m *Manager) CancelTender(id, reason string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	var fx effects
	err = func() error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.t.Status().Terminal() {
			return stateErr(e.t)
		}
		now := m.now()
		if err := m.transition(e, model.Cancelled{Reason: reason, At: now}, &fx); err != nil {
			return err
		}
		if err := m.ledger.Settle(id, ""); err != nil {
			m.log.Debugf("tender %s: no ledger to settle: %v", id, err)
		}
		fx.events = append(fx.events, events.TenderCancelled{TenderID: id, Reason: reason, At: now})
		fx.record = &audit.Record{Outcome: model.StatusCancelled, Reason: reason, Rules: e.t.Rules, LedgerVersion: m.ledger.Version(id), At: now}
		fx.decision = &metrics.DecisionEvent{TenderID: id, Outcome: model.StatusCancelled, Reason: "cancelled", Time: now}
		return nil
	}()
	m.apply(fx)
	return err
}
