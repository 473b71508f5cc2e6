package metrics

import (
	"time"

	"github.com/kilianp07/tendering/core/model"
)

// DecisionEvent describes how a tender left bid collection or review.
type DecisionEvent struct {
	TenderID  string
	Outcome   model.Status
	Reason    string
	CarrierID string
	BidID     string
	Amount    float64
	Score     float64
	Bids      int
	Automatic bool
	// Latency is the time between sending the tender and the decision.
	Latency time.Duration
	Time    time.Time
}

// MetricsSink records tender decisions.
type MetricsSink interface {
	RecordDecision(ev DecisionEvent) error
}

// BidEvent is one bid submission, accepted or refused.
type BidEvent struct {
	TenderID  string
	CarrierID string
	BidID     string
	TotalCost float64
	Accepted  bool
	Reason    string
	Time      time.Time
}

// BidRecorder records bid intake.
type BidRecorder interface {
	RecordBid(ev BidEvent) error
}

// TransitionEvent is one lifecycle transition.
type TransitionEvent struct {
	TenderID string
	From     model.Status
	To       model.Status
	Time     time.Time
}

// TransitionRecorder records lifecycle transitions.
type TransitionRecorder interface {
	RecordTransition(ev TransitionEvent) error
}

// DeliveryEvent is the outcome of delivering one outbound event.
type DeliveryEvent struct {
	Event     string
	TenderID  string
	Attempts  int
	Delivered bool
	Error     string
	Time      time.Time
}

// DeliveryRecorder records outbound deliveries.
type DeliveryRecorder interface {
	RecordDelivery(ev DeliveryEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDecision(DecisionEvent) error     { return nil }
func (NopSink) RecordBid(BidEvent) error               { return nil }
func (NopSink) RecordTransition(TransitionEvent) error { return nil }
func (NopSink) RecordDelivery(DeliveryEvent) error     { return nil }
