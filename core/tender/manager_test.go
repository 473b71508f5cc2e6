package tender

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/scheduler"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestExampleScenarioAwardsBestBalancedBid(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	tl, err := h.m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, tl.Status())
	assert.Equal(t, []string{"A", "B", "C"}, tl.Eligible)
	assert.Equal(t, start.Add(time.Hour), tl.ResponseDeadline)

	h.submit(t, id, "A", payload(2650, true))
	assert.Equal(t, model.StatusInProgress, h.status(t, id))
	h.submit(t, id, "B", payload(2450, true))
	h.submit(t, id, "C", payload(2350, true))

	// Every eligible carrier answered: the early check decides before the deadline.
	eventually(t, func() bool { return len(h.outbox.awarded()) == 1 })
	require.Equal(t, model.StatusAwarded, h.status(t, id))

	tl, _ = h.m.Get(id)
	aw, ok := tl.State.(model.Awarded)
	require.True(t, ok)
	assert.Equal(t, "B", aw.CarrierID)
	assert.Equal(t, 2450.0, aw.Amount)
	assert.InDelta(t, 0.6086, aw.Score, 1e-6)
	assert.True(t, aw.Automatic)

	r, err := h.m.Ranking(id)
	require.NoError(t, err)
	require.Len(t, r.Results, 3)
	assert.Equal(t, "B", r.Results[0].CarrierID)
	assert.Equal(t, "A", r.Results[1].CarrierID)
	assert.Equal(t, "C", r.Results[2].CarrierID)
	assert.InDelta(t, 0.5989286, r.Results[1].Score, 1e-6)
	assert.InDelta(t, 0.5985857, r.Results[2].Score, 1e-6)

	awards := h.outbox.awarded()
	require.Len(t, awards, 1)
	assert.Equal(t, id, awards[0].TenderID)
	assert.Equal(t, "B", awards[0].CarrierID)
	assert.Equal(t, 2450.0, awards[0].Amount)

	bids, err := h.m.Bids(id)
	require.NoError(t, err)
	for _, b := range bids {
		if b.CarrierID == "B" {
			assert.Equal(t, model.BidAccepted, b.Status)
		} else {
			assert.Equal(t, model.BidRejected, b.Status)
		}
	}

	recs, err := h.m.Decisions(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusAwarded, recs[0].Outcome)
	assert.Equal(t, "B", recs[0].CarrierID)
	assert.Len(t, recs[0].Ranking, 3)
	assert.Equal(t, 0, h.m.sched.Pending(id))

	_, err = h.m.SubmitBid(id, "A", payload(100, true))
	assert.ErrorIs(t, err, ErrTenderAlreadyDecided)
}

func TestDeadlineDecidesWithPartialResponses(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	h.submit(t, id, "A", payload(2650, true))
	h.submit(t, id, "C", payload(2350, true))

	// A deadline trigger arriving early is ignored.
	h.m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindDeadline})
	assert.Equal(t, model.StatusInProgress, h.status(t, id))

	h.deadline(id)
	require.Equal(t, model.StatusAwarded, h.status(t, id))
	tl, _ := h.m.Get(id)
	assert.Equal(t, "A", tl.State.(model.Awarded).CarrierID)
}

func TestZeroBidsAtDeadlineExpires(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	h.deadline(id)

	assert.Equal(t, model.StatusExpired, h.status(t, id))
	assert.Empty(t, h.outbox.awarded())
	assert.Equal(t, 1, h.outbox.count("tender_expired"))

	_, err := h.m.SubmitBid(id, "A", payload(2000, true))
	assert.ErrorIs(t, err, ErrTenderClosed)
}

func TestZeroBidsWithoutAutoAwardNeedsReview(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(false))
	h.deadline(id)

	tl, _ := h.m.Get(id)
	rv, ok := tl.State.(model.PendingReview)
	require.True(t, ok)
	assert.Equal(t, model.ReviewNoBids, rv.Reason)
	assert.Equal(t, 1, h.bus.count("review_required"))
}

func TestCancelWhileBidsPendingRejectsLateBid(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	h.submit(t, id, "A", payload(2650, true))
	h.submit(t, id, "B", payload(2450, true))

	require.NoError(t, h.m.CancelTender(id, "load withdrawn by shipper"))
	assert.Equal(t, model.StatusCancelled, h.status(t, id))
	assert.Equal(t, 0, h.m.sched.Pending(id))

	_, err := h.m.SubmitBid(id, "C", payload(2350, true))
	assert.ErrorIs(t, err, ErrTenderClosed)

	bids, _ := h.m.Bids(id)
	require.Len(t, bids, 2)
	for _, b := range bids {
		assert.Equal(t, model.BidRejected, b.Status)
	}

	// A stale deadline firing after cancellation changes nothing.
	h.deadline(id)
	assert.Equal(t, model.StatusCancelled, h.status(t, id))
	assert.Empty(t, h.outbox.awarded())

	assert.ErrorIs(t, h.m.CancelTender(id, "again"), ErrTenderClosed)
}

func TestBidAfterDeadlineIsNeverScored(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	h.submit(t, id, "A", payload(2650, true))

	h.clock.Advance(time.Hour + time.Millisecond)
	_, err := h.m.SubmitBid(id, "C", payload(1000, true))
	require.ErrorIs(t, err, ErrTenderClosed)

	h.m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindDeadline})
	require.Equal(t, model.StatusAwarded, h.status(t, id))
	r, _ := h.m.Ranking(id)
	require.Len(t, r.Results, 1)
	assert.Equal(t, "A", r.Results[0].CarrierID)
}

func TestDuplicateAndSupersede(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	first := h.submit(t, id, "A", payload(2650, true))

	_, err := h.m.SubmitBid(id, "A", payload(2600, true))
	assert.ErrorIs(t, err, ErrDuplicateActiveBid)

	p := payload(2500, true)
	p.Supersede = true
	second := h.submit(t, id, "A", p)
	assert.NotEqual(t, first.ID, second.ID)

	bids, _ := h.m.Bids(id)
	active := 0
	for _, b := range bids {
		if b.CarrierID == "A" && b.Status == model.BidPending {
			active++
			assert.Equal(t, second.ID, b.ID)
		}
	}
	assert.Equal(t, 1, active)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))

	_, err := h.m.SubmitBid(id, "Z", payload(100, true))
	assert.ErrorIs(t, err, ErrCarrierNotEligible)
	_, err = h.m.SubmitBid(id, "A", model.BidPayload{Amount: -1, TransitDays: 1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.m.SubmitBid("missing", "A", payload(100, true))
	assert.ErrorIs(t, err, ErrTenderNotFound)

	draft, err := h.m.Create(exampleSpec(true))
	require.NoError(t, err)
	_, err = h.m.SubmitBid(draft, "A", payload(100, true))
	assert.ErrorIs(t, err, ErrTenderClosed)
}

func TestWithdrawBid(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	h.submit(t, id, "A", payload(2650, true))

	require.NoError(t, h.m.WithdrawBid(id, "A"))
	assert.ErrorIs(t, h.m.WithdrawBid(id, "A"), ErrBidNotFound)
	bids, _ := h.m.Bids(id)
	require.Len(t, bids, 1)
	assert.Equal(t, model.BidExpired, bids[0].Status)

	h.deadline(id)
	assert.Equal(t, model.StatusExpired, h.status(t, id))
}

func TestBidExpiryExcludesBid(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	p := payload(2350, true)
	p.ValidFor = 10 * time.Minute
	h.submit(t, id, "C", p)

	h.clock.Advance(11 * time.Minute)
	h.m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindBidExpiry})
	bids, _ := h.m.Bids(id)
	assert.Equal(t, model.BidExpired, bids[0].Status)

	h.deadline(id)
	assert.Equal(t, model.StatusExpired, h.status(t, id))
}

func TestEarlyCheckIgnoresLapsedBids(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	p := payload(2350, true)
	p.ValidFor = 10 * time.Minute
	h.submit(t, id, "C", p)

	h.clock.Advance(11 * time.Minute)
	h.submit(t, id, "A", payload(2650, true))
	h.submit(t, id, "B", payload(2450, true))
	h.m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindCheck})

	assert.Equal(t, model.StatusInProgress, h.status(t, id))
	assert.Empty(t, h.outbox.awarded())
	bids, _ := h.m.Bids(id)
	assert.Equal(t, model.BidExpired, bids[0].Status)

	h.submit(t, id, "C", payload(2350, true))
	h.m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindCheck})
	eventually(t, func() bool { return h.status(t, id) == model.StatusAwarded })
	require.Len(t, h.outbox.awarded(), 1)
}

func TestReviewRankingDropsLapsedBids(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(false))
	h.submit(t, id, "A", payload(2650, true))
	p := payload(2350, true)
	p.ValidFor = 2 * time.Hour
	h.submit(t, id, "C", p)
	h.deadline(id)
	require.Equal(t, model.StatusPendingReview, h.status(t, id))

	r, err := h.m.Ranking(id)
	require.NoError(t, err)
	require.Len(t, r.Results, 2)

	h.clock.Advance(2 * time.Hour)
	r, err = h.m.Ranking(id)
	require.NoError(t, err)
	require.Len(t, r.Results, 1)
	assert.Equal(t, "A", r.Results[0].CarrierID)

	r, err = h.m.Reevaluate(id, DefaultRules())
	require.NoError(t, err)
	require.Len(t, r.Results, 1)

	bids, _ := h.m.Bids(id)
	for _, b := range bids {
		if b.CarrierID == "C" {
			assert.Equal(t, model.BidExpired, b.Status)
		}
	}
	_, err = h.m.ManualDecision(id, Decision{CarrierID: "C", Actor: "ops"})
	assert.ErrorIs(t, err, ErrBidNotFound)
}

func TestAutoAwardDisabledThenManualAward(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(false))
	h.submit(t, id, "A", payload(2650, true))
	h.submit(t, id, "B", payload(2450, true))
	h.submit(t, id, "C", payload(2350, false))

	eventually(t, func() bool { return h.bus.count("review_required") == 1 })
	tl, _ := h.m.Get(id)
	assert.Equal(t, model.ReviewAutoAwardDisabled, tl.State.(model.PendingReview).Reason)

	_, err := h.m.SubmitBid(id, "A", payload(1, true))
	assert.ErrorIs(t, err, ErrTenderClosed)
	_, err = h.m.ManualDecision(id, Decision{CarrierID: "C"})
	assert.ErrorIs(t, err, ErrValidation, "actor is required")
	_, err = h.m.ManualDecision(id, Decision{CarrierID: "D", Actor: "ops"})
	assert.ErrorIs(t, err, ErrBidNotFound)

	tl, err = h.m.ManualDecision(id, Decision{CarrierID: "C", Actor: "ops", Reason: "capacity confirmed by phone"})
	require.NoError(t, err)
	aw := tl.State.(model.Awarded)
	assert.Equal(t, "C", aw.CarrierID)
	assert.Equal(t, "ops", aw.Actor)
	assert.False(t, aw.Automatic)

	awards := h.outbox.awarded()
	require.Len(t, awards, 1)
	assert.Equal(t, "ops", awards[0].Actor)

	_, err = h.m.ManualDecision(id, Decision{Reject: true, Actor: "ops"})
	assert.ErrorIs(t, err, ErrTenderAlreadyDecided)
	assert.ErrorIs(t, h.m.CancelTender(id, "late"), ErrTenderAlreadyDecided)
}

func TestUnconfirmedCapacityNeedsReviewThenReject(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	h.submit(t, id, "A", payload(2650, false))
	h.submit(t, id, "B", payload(2450, false))
	h.deadline(id)

	tl, _ := h.m.Get(id)
	require.Equal(t, model.StatusPendingReview, tl.Status())
	assert.Equal(t, model.ReviewNoConfirmedCapacity, tl.State.(model.PendingReview).Reason)

	tl, err := h.m.ManualDecision(id, Decision{Reject: true, Actor: "planner-7", Reason: "no capacity"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, tl.Status())
	assert.Equal(t, 1, h.outbox.count("tender_rejected"))
	assert.Empty(t, h.outbox.awarded())

	bids, _ := h.m.Bids(id)
	for _, b := range bids {
		assert.Equal(t, model.BidRejected, b.Status)
	}
}

func TestNoEnabledRulesNeedsReview(t *testing.T) {
	h := newHarness(t)
	spec := exampleSpec(true)
	spec.Rules = []model.SelectionRule{{Criterion: model.CriterionCost, Operator: model.OpMinimize, Weight: 1, Enabled: false}}
	id := h.sent(t, spec)
	h.submit(t, id, "A", payload(2650, true))
	h.deadline(id)

	tl, _ := h.m.Get(id)
	require.Equal(t, model.StatusPendingReview, tl.Status())
	assert.Equal(t, model.ReviewNoEnabledRules, tl.State.(model.PendingReview).Reason)
}

func TestZeroWeightRulesCountAsDisabled(t *testing.T) {
	h := newHarness(t)
	spec := exampleSpec(true)
	spec.Rules = []model.SelectionRule{{Criterion: model.CriterionCost, Operator: model.OpMinimize, Weight: 0, Enabled: true, Priority: 1}}
	id := h.sent(t, spec)
	h.submit(t, id, "A", payload(2650, true))
	h.deadline(id)

	tl, _ := h.m.Get(id)
	require.Equal(t, model.StatusPendingReview, tl.Status())
	assert.Equal(t, model.ReviewNoEnabledRules, tl.State.(model.PendingReview).Reason)
}

func TestNoEligibleCarriersNeedsReview(t *testing.T) {
	h := newHarness(t)
	spec := exampleSpec(true)
	spec.LoadType = model.LoadIntermodal
	id, err := h.m.Create(spec)
	require.NoError(t, err)

	err = h.m.Send(id)
	require.ErrorIs(t, err, ErrNoEligibleCarriers)
	tl, _ := h.m.Get(id)
	require.Equal(t, model.StatusPendingReview, tl.Status())
	assert.Equal(t, model.ReviewNoEligibleCarriers, tl.State.(model.PendingReview).Reason)

	tl, err = h.m.ManualDecision(id, Decision{Reject: true, Actor: "ops"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, tl.Status())
}

func TestCreateAndSendErrors(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Create(model.TenderSpec{LoadType: "boat", EstimatedCost: 1})
	assert.ErrorIs(t, err, ErrValidation)

	spec := exampleSpec(true)
	spec.Rules = nil
	id, err := h.m.Create(spec)
	require.NoError(t, err)
	tl, _ := h.m.Get(id)
	assert.Equal(t, DefaultRules(), tl.Rules)

	require.NoError(t, h.m.Send(id))
	assert.ErrorIs(t, h.m.Send(id), ErrInvalidTransition)
	assert.ErrorIs(t, h.m.Send("missing"), ErrTenderNotFound)

	past := exampleSpec(true)
	past.ResponseDeadline = start.Add(-time.Minute)
	id, err = h.m.Create(past)
	require.NoError(t, err)
	assert.ErrorIs(t, h.m.Send(id), ErrValidation)

	list := h.m.List()
	assert.Len(t, list, 2)
}

func TestReevaluateReranksCurrentBids(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(false))
	h.submit(t, id, "A", payload(2650, true))
	h.submit(t, id, "B", payload(2450, true))
	h.deadline(id)
	require.Equal(t, model.StatusPendingReview, h.status(t, id))

	r, err := h.m.Ranking(id)
	require.NoError(t, err)
	assert.Equal(t, "B", r.Results[0].CarrierID)

	r, err = h.m.Reevaluate(id, []model.SelectionRule{
		{Criterion: model.CriterionRating, Operator: model.OpMaximize, Weight: 1, Enabled: true, Priority: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "A", r.Results[0].CarrierID)

	_, err = h.m.Reevaluate(id, []model.SelectionRule{{Criterion: "speed", Operator: model.OpMaximize}})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, h.m.CancelTender(id, "replanned"))
	_, err = h.m.Reevaluate(id, DefaultRules())
	assert.ErrorIs(t, err, ErrTenderClosed)
}

func TestErrorCode(t *testing.T) {
	h := newHarness(t)
	id := h.sent(t, exampleSpec(true))
	require.NoError(t, h.m.CancelTender(id, "replanned"))

	_, err := h.m.SubmitBid(id, "A", payload(2500, true))
	assert.Equal(t, "tender_closed", ErrorCode(err))
	_, err = h.m.Get("missing")
	assert.Equal(t, "tender_not_found", ErrorCode(err))
	assert.Equal(t, "carrier_not_eligible", ErrorCode(fmt.Errorf("wrapped: %w", ErrCarrierNotEligible)))
	assert.Equal(t, "internal", ErrorCode(errors.New("disk full")))
	assert.Empty(t, ErrorCode(nil))
}
