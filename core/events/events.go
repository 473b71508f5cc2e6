package events

import (
	"time"

	"github.com/kilianp07/tendering/core/model"
)

// Event is implemented by every tender event.
type Event interface {
	// Name is the stable event name used as topic suffix.
	Name() string
	// Tender returns the tender id, the deduplication key for consumers.
	Tender() string
}

// TenderAwarded is emitted once per tender when a winner is recorded.
type TenderAwarded struct {
	TenderID  string    `json:"tender_id"`
	CarrierID string    `json:"carrier_id"`
	BidID     string    `json:"bid_id"`
	Amount    float64   `json:"amount"`
	Score     float64   `json:"score"`
	Automatic bool      `json:"automatic"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

func (TenderAwarded) Name() string     { return "tender_awarded" }
func (e TenderAwarded) Tender() string { return e.TenderID }

// TenderExpired is emitted when the deadline passed with no valid bid.
type TenderExpired struct {
	TenderID string    `json:"tender_id"`
	At       time.Time `json:"at"`
}

func (TenderExpired) Name() string     { return "tender_expired" }
func (e TenderExpired) Tender() string { return e.TenderID }

// TenderRejected is emitted on a manual rejection.
type TenderRejected struct {
	TenderID string    `json:"tender_id"`
	Actor    string    `json:"actor"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

func (TenderRejected) Name() string     { return "tender_rejected" }
func (e TenderRejected) Tender() string { return e.TenderID }

// TenderCancelled is emitted on external cancellation.
type TenderCancelled struct {
	TenderID string    `json:"tender_id"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

func (TenderCancelled) Name() string     { return "tender_cancelled" }
func (e TenderCancelled) Tender() string { return e.TenderID }

// ReviewRequired is emitted when a tender enters PendingReview.
type ReviewRequired struct {
	TenderID string             `json:"tender_id"`
	Reason   model.ReviewReason `json:"reason"`
	At       time.Time          `json:"at"`
}

func (ReviewRequired) Name() string     { return "review_required" }
func (e ReviewRequired) Tender() string { return e.TenderID }

// BidReceived is emitted for each accepted submission.
type BidReceived struct {
	TenderID  string    `json:"tender_id"`
	BidID     string    `json:"bid_id"`
	CarrierID string    `json:"carrier_id"`
	TotalCost float64   `json:"total_cost"`
	At        time.Time `json:"at"`
}

func (BidReceived) Name() string     { return "bid_received" }
func (e BidReceived) Tender() string { return e.TenderID }

// StateChanged is emitted on every lifecycle transition.
type StateChanged struct {
	TenderID string       `json:"tender_id"`
	From     model.Status `json:"from"`
	To       model.Status `json:"to"`
	At       time.Time    `json:"at"`
}

func (StateChanged) Name() string     { return "state_changed" }
func (e StateChanged) Tender() string { return e.TenderID }

// Outbound reports whether the event is delivered to external consumers.
func Outbound(e Event) bool {
	switch e.(type) {
	case TenderAwarded, TenderExpired, TenderRejected:
		return true
	}
	return false
}
