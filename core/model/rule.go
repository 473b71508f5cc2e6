package model

import "fmt"

// Criterion is what a selection rule measures.
type Criterion string

const (
	CriterionCost        Criterion = "cost"
	CriterionRating      Criterion = "rating"
	CriterionTransitTime Criterion = "transit_time"
	CriterionOnTimeRate  Criterion = "on_time_rate"
	CriterionCapacity    Criterion = "capacity"
)

// LowerIsBetter reports whether smaller raw values are preferred.
func (c Criterion) LowerIsBetter() bool {
	return c == CriterionCost || c == CriterionTransitTime
}

// Valid reports whether c is a known criterion.
func (c Criterion) Valid() bool {
	switch c {
	case CriterionCost, CriterionRating, CriterionTransitTime, CriterionOnTimeRate, CriterionCapacity:
		return true
	}
	return false
}

// Operator is how a rule compares a bid's value.
type Operator string

const (
	OpMinimize  Operator = "minimize"
	OpMaximize  Operator = "maximize"
	OpThreshold Operator = "threshold"
)

// SelectionRule is one weighted criterion attached to a tender. Priority only
// breaks ties between equally scored bids; lower numbers win.
type SelectionRule struct {
	Criterion Criterion `json:"criterion" validate:"required"`
	Operator  Operator  `json:"operator" validate:"required,oneof=minimize maximize threshold"`
	Threshold float64   `json:"threshold,omitempty"`
	Weight    float64   `json:"weight" validate:"gte=0"`
	Enabled   bool      `json:"enabled"`
	Priority  int       `json:"priority"`
}

// Validate checks the rule is usable by the scoring engine.
func (r SelectionRule) Validate() error {
	if !r.Criterion.Valid() {
		return fmt.Errorf("unknown criterion %q", r.Criterion)
	}
	switch r.Operator {
	case OpMinimize, OpMaximize, OpThreshold:
	default:
		return fmt.Errorf("unknown operator %q", r.Operator)
	}
	if r.Weight < 0 {
		return fmt.Errorf("weight must not be negative")
	}
	return nil
}

// EnabledRules returns the enabled rules with a positive weight.
func EnabledRules(rules []SelectionRule) []SelectionRule {
	var out []SelectionRule
	for _, r := range rules {
		if r.Enabled && r.Weight > 0 {
			out = append(out, r)
		}
	}
	return out
}
