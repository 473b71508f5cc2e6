package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/tendering/core/metrics"
)

// PromSink records award decisions, bid intake and event delivery in
// Prometheus metrics. Lifecycle counters owned by the tender manager are
// registered separately by core/tender.
type PromSink struct {
	decisions  *prometheus.CounterVec
	amount     prometheus.Histogram
	score      prometheus.Histogram
	bids       *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	attempts   prometheus.Histogram
	states     *prometheus.CounterVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// The Prometheus server is started separately, see StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "award_decisions_total",
			Help: "Tender decisions by outcome and decision mode",
		}, []string{"outcome", "automatic"}),
		amount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "award_amount",
			Help:    "Total cost of awarded bids",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "award_score",
			Help:    "Score of awarded bids",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carrier_bids_total",
			Help: "Bid submissions per carrier and acceptance",
		}, []string{"carrier_id", "accepted"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_deliveries_total",
			Help: "Outbound event deliveries by event and result",
		}, []string{"event", "delivered"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "event_delivery_attempts",
			Help:    "Attempts needed per outbound event",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		}),
		states: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tender_state_entries_total",
			Help: "Tenders entering each lifecycle status",
		}, []string{"status"}),
	}
	var err error
	if s.decisions, err = register(reg, s.decisions); err != nil {
		return nil, err
	}
	if s.amount, err = register(reg, s.amount); err != nil {
		return nil, err
	}
	if s.score, err = register(reg, s.score); err != nil {
		return nil, err
	}
	if s.bids, err = register(reg, s.bids); err != nil {
		return nil, err
	}
	if s.deliveries, err = register(reg, s.deliveries); err != nil {
		return nil, err
	}
	if s.attempts, err = register(reg, s.attempts); err != nil {
		return nil, err
	}
	if s.states, err = register(reg, s.states); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDecision counts the decision and observes the award amount and score.
func (s *PromSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	s.decisions.WithLabelValues(string(ev.Outcome), strconv.FormatBool(ev.Automatic)).Inc()
	if ev.BidID != "" {
		s.amount.Observe(ev.Amount)
		s.score.Observe(ev.Score)
	}
	return nil
}

// RecordBid counts a submission.
func (s *PromSink) RecordBid(ev coremetrics.BidEvent) error {
	s.bids.WithLabelValues(ev.CarrierID, strconv.FormatBool(ev.Accepted)).Inc()
	return nil
}

// RecordTransition counts tenders entering the target status.
func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.states.WithLabelValues(string(ev.To)).Inc()
	return nil
}

// RecordDelivery counts a delivery outcome and its attempts.
func (s *PromSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	s.deliveries.WithLabelValues(ev.Event, strconv.FormatBool(ev.Delivered)).Inc()
	s.attempts.Observe(float64(ev.Attempts))
	return nil
}
