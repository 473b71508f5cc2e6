package tender

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tendersCreated   prometheus.Counter
	transitions      *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	bidsSubmitted    *prometheus.CounterVec
	decisionLatency  prometheus.Histogram
	decisionRetries  prometheus.Counter
	auditFlags       prometheus.Counter
	deliveryFailures prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Histogram, prometheus.Counter, prometheus.Counter, prometheus.Counter) {
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenders_created_total",
		Help: "Number of tenders created",
	})
	trans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_transitions_total",
			Help: "Lifecycle transitions by source and target status",
		},
		[]string{"from", "to"},
	)
	dec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_decisions_total",
			Help: "Decisions by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)
	bids := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_bids_submitted_total",
			Help: "Bid submissions by result",
		},
		[]string{"result"},
	)
	lat := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tender_decision_latency_seconds",
		Help:    "Time between sending a tender and its decision",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tender_decision_retries_total",
		Help: "Decisions recomputed because bids changed during scoring",
	})
	flags := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tender_audit_flags_total",
		Help: "Tenders flagged for manual audit after an internal failure",
	})
	delivery := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tender_event_enqueue_failures_total",
		Help: "Outbound events that could not be queued for delivery",
	})
	return created, trans, dec, bids, lat, retries, flags, delivery
}

func init() {
	tendersCreated, transitions, decisions, bidsSubmitted, decisionLatency, decisionRetries, auditFlags, deliveryFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers tender metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tendersCreated, transitions, decisions, bidsSubmitted, decisionLatency, decisionRetries, auditFlags, deliveryFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tendersCreated, transitions, decisions, bidsSubmitted, decisionLatency, decisionRetries, auditFlags, deliveryFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
