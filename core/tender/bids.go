package tender

import (
	"errors"
	"fmt"

	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/model"
)

// SubmitBid records a carrier bid. The tender must be collecting bids, the
// deadline must not have passed and the carrier must have been selected by
// the pool router. The first accepted bid moves a Pending tender to
// InProgress.
func (m *Manager) SubmitBid(id, carrierID string, p model.BidPayload) (model.CarrierBid, error) {
	e, err := m.get(id)
	if err != nil {
		return model.CarrierBid{}, err
	}
	var fx effects
	bid, err := func() (model.CarrierBid, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		now := m.now()
		if !e.t.Status().Collecting() {
			return model.CarrierBid{}, stateErr(e.t)
		}
		if carrierID != "" && !e.t.IsEligible(carrierID) {
			return model.CarrierBid{}, fmt.Errorf("%w: %s on tender %s", ErrCarrierNotEligible, carrierID, id)
		}
		if p.ExpiresAt.IsZero() && p.ValidFor == 0 {
			p.ValidFor = m.cfg.DefaultBidValidity
		}
		bid, err := m.ledger.Submit(id, carrierID, p, now)
		if err != nil {
			return model.CarrierBid{}, err
		}
		if st, ok := e.t.State.(model.Pending); ok {
			next := model.InProgress{SentAt: st.SentAt, Deadline: st.Deadline, FirstBidAt: now}
			if err := m.transition(e, next, &fx); err != nil {
				return model.CarrierBid{}, err
			}
		}
		if !bid.ExpiresAt.IsZero() && bid.ExpiresAt.Before(e.t.ResponseDeadline) {
			if err := m.sched.ScheduleBidExpiry(id, bid.ExpiresAt); err != nil {
				m.log.Warnf("tender %s: bid %s expiry not scheduled: %v", id, bid.ID, err)
			}
		}
		fx.tenderID = id
		fx.events = append(fx.events, events.BidReceived{TenderID: id, BidID: bid.ID, CarrierID: carrierID, TotalCost: bid.TotalCost, At: now})
		return bid, nil
	}()
	m.apply(fx)
	m.recordBid(id, carrierID, bid, err)
	return bid, err
}

// WithdrawBid expires the carrier's Pending bid.
func (m *Manager) WithdrawBid(id, carrierID string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.t.Status().Collecting() {
		return stateErr(e.t)
	}
	bid, err := m.ledger.Withdraw(id, carrierID, m.now())
	if err != nil {
		return err
	}
	m.log.Infow("bid withdrawn", map[string]any{"tender_id": id, "carrier_id": carrierID, "bid_id": bid.ID})
	return nil
}

// bidResult is the metrics label of a submission outcome.
func bidResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrDuplicateActiveBid):
		return "duplicate"
	case errors.Is(err, ErrCarrierNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrTenderAlreadyDecided):
		return "decided"
	case errors.Is(err, ErrTenderClosed):
		return "closed"
	}
	return "error"
}

func (m *Manager) recordBid(id, carrierID string, bid model.CarrierBid, err error) {
	result := bidResult(err)
	bidsSubmitted.WithLabelValues(result).Inc()
	ev := metrics.BidEvent{TenderID: id, CarrierID: carrierID, BidID: bid.ID, TotalCost: bid.TotalCost, Accepted: err == nil, Time: m.now()}
	if err != nil {
		ev.Reason = result
		m.log.Debugw("bid refused", map[string]any{"tender_id": id, "carrier_id": carrierID, "reason": err.Error()})
	}
	if r, ok := m.sink.(metrics.BidRecorder); ok {
		if rerr := r.RecordBid(ev); rerr != nil {
			m.log.Warnf("tender %s: record bid: %v", id, rerr)
		}
	}
}
