package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is tried; errors
// are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDecision forwards the decision to all sinks.
func (m *MultiSink) RecordDecision(ev DecisionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordDecision(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordBid forwards bid events to sinks implementing BidRecorder.
func (m *MultiSink) RecordBid(ev BidEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(BidRecorder); ok {
			if err := r.RecordBid(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordTransition forwards transitions to sinks implementing TransitionRecorder.
func (m *MultiSink) RecordTransition(ev TransitionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(TransitionRecorder); ok {
			if err := r.RecordTransition(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordDelivery forwards deliveries to sinks implementing DeliveryRecorder.
func (m *MultiSink) RecordDelivery(ev DeliveryEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(DeliveryRecorder); ok {
			if err := r.RecordDelivery(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
