package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the name of a tender lifecycle state.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusPendingReview Status = "pending_review"
	StatusAwarded       Status = "awarded"
	StatusRejected      Status = "rejected"
	StatusExpired       Status = "expired"
	StatusCancelled     Status = "cancelled"
)

// Terminal reports whether no transition leaves the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusAwarded, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Collecting reports whether bids are accepted in this status.
func (s Status) Collecting() bool {
	return s == StatusPending || s == StatusInProgress
}

// State is the sealed set of tender lifecycle states. Each state carries only
// the data that exists in it, e.g. a winner only exists in Awarded.
type State interface {
	Status() Status
	sealed()
}

// Draft is a tender that has not been sent to carriers yet.
type Draft struct{}

// Pending is a tender sent to carriers and waiting for the first bid.
type Pending struct {
	SentAt   time.Time `json:"sent_at"`
	Deadline time.Time `json:"deadline"`
}

// InProgress is a tender with at least one bid received.
type InProgress struct {
	SentAt     time.Time `json:"sent_at"`
	Deadline   time.Time `json:"deadline"`
	FirstBidAt time.Time `json:"first_bid_at"`
}

// ReviewReason explains why a tender needs a human decision.
type ReviewReason string

const (
	ReviewAutoAwardDisabled   ReviewReason = "auto_award_disabled"
	ReviewNoConfirmedCapacity ReviewReason = "no_capacity_confirmed_bid"
	ReviewNoEnabledRules      ReviewReason = "no_enabled_rules"
	ReviewNoEligibleCarriers  ReviewReason = "no_eligible_carriers"
	ReviewNoBids              ReviewReason = "no_bids"
)

// PendingReview is a tender waiting for a manual award or rejection.
type PendingReview struct {
	Reason   ReviewReason `json:"reason"`
	Since    time.Time    `json:"since"`
	Deadline time.Time    `json:"deadline,omitempty"`
}

// Awarded is terminal: the tender was assigned to one carrier bid.
type Awarded struct {
	CarrierID string    `json:"carrier_id"`
	BidID     string    `json:"bid_id"`
	Amount    float64   `json:"amount"`
	Score     float64   `json:"score"`
	Automatic bool      `json:"automatic"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

// Rejected is terminal: a reviewer rejected every bid.
type Rejected struct {
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Expired is terminal: the deadline passed without any valid bid.
type Expired struct {
	At time.Time `json:"at"`
}

// Cancelled is terminal: an external cancellation request.
type Cancelled struct {
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func (Draft) Status() Status         { return StatusDraft }
func (Pending) Status() Status       { return StatusPending }
func (InProgress) Status() Status    { return StatusInProgress }
func (PendingReview) Status() Status { return StatusPendingReview }
func (Awarded) Status() Status       { return StatusAwarded }
func (Rejected) Status() Status      { return StatusRejected }
func (Expired) Status() Status       { return StatusExpired }
func (Cancelled) Status() Status     { return StatusCancelled }

func (Draft) sealed()         {}
func (Pending) sealed()       {}
func (InProgress) sealed()    {}
func (PendingReview) sealed() {}
func (Awarded) sealed()       {}
func (Rejected) sealed()      {}
func (Expired) sealed()       {}
func (Cancelled) sealed()     {}

var transitions = map[Status][]Status{
	StatusDraft:         {StatusPending, StatusPendingReview, StatusCancelled},
	StatusPending:       {StatusInProgress, StatusAwarded, StatusPendingReview, StatusExpired, StatusCancelled},
	StatusInProgress:    {StatusAwarded, StatusPendingReview, StatusExpired, StatusCancelled},
	StatusPendingReview: {StatusAwarded, StatusRejected, StatusCancelled},
}

// CanTransition reports whether the lifecycle allows moving from one status to
// another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is wrapped by Transition when the move is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// Transition validates and applies next to the tender.
func (t *TenderLoad) Transition(next State) error {
	from := t.Status()
	if !CanTransition(from, next.Status()) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next.Status())
	}
	t.State = next
	return nil
}

// Deadline returns the response deadline of states that have one.
func Deadline(s State) (time.Time, bool) {
	switch st := s.(type) {
	case Pending:
		return st.Deadline, true
	case InProgress:
		return st.Deadline, true
	case PendingReview:
		return st.Deadline, !st.Deadline.IsZero()
	}
	return time.Time{}, false
}

type tenderJSON TenderLoad

// MarshalJSON renders the state union as a status name plus its payload.
func (t TenderLoad) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		tenderJSON
		Status Status `json:"status"`
		State  State  `json:"state,omitempty"`
	}{tenderJSON: tenderJSON(t), Status: t.Status(), State: t.State})
}
