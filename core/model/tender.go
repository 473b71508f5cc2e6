package model

import (
	"fmt"
	"time"
)

// LoadType classifies the freight of a tender and drives pool eligibility.
type LoadType string

const (
	LoadFTL        LoadType = "FTL"
	LoadLTL        LoadType = "LTL"
	LoadIntermodal LoadType = "intermodal"
	LoadExpedited  LoadType = "expedited"
)

// Valid reports whether t is one of the known load types.
func (t LoadType) Valid() bool {
	switch t {
	case LoadFTL, LoadLTL, LoadIntermodal, LoadExpedited:
		return true
	}
	return false
}

// PriorityTier expresses how urgent the load is for planning.
type PriorityTier string

const (
	PriorityLow    PriorityTier = "low"
	PriorityMedium PriorityTier = "medium"
	PriorityHigh   PriorityTier = "high"
	PriorityUrgent PriorityTier = "urgent"
)

// ServiceLevel is the level of service a carrier commits to.
type ServiceLevel string

const (
	ServiceStandard  ServiceLevel = "standard"
	ServiceExpress   ServiceLevel = "express"
	ServiceEconomy   ServiceLevel = "economy"
	ServiceDedicated ServiceLevel = "dedicated"
)

// Strategy selects how the auto-award winner is ranked.
type Strategy string

const (
	StrategyBalanced       Strategy = "balanced"
	StrategyLowestCost     Strategy = "lowest_cost"
	StrategyBestRating     Strategy = "best_rating"
	StrategyFastestTransit Strategy = "fastest_transit"
	StrategyBestOnTime     Strategy = "best_on_time"
)

// Valid reports whether s is a known strategy. The empty strategy is treated
// as balanced.
func (s Strategy) Valid() bool {
	switch s {
	case "", StrategyBalanced, StrategyLowestCost, StrategyBestRating, StrategyFastestTransit, StrategyBestOnTime:
		return true
	}
	return false
}

// Location is an origin or destination of a load.
type Location struct {
	City       string `json:"city" validate:"required"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// TimeWindow is a pickup or delivery window.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window. A zero window contains
// every instant.
func (w TimeWindow) Contains(t time.Time) bool {
	if w.Start.IsZero() && w.End.IsZero() {
		return true
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// TenderSpec is the planning request used to create a tender. It mirrors
// TenderLoad minus the runtime fields.
type TenderSpec struct {
	Reference        string          `json:"reference,omitempty"`
	LoadType         LoadType        `json:"load_type" validate:"required"`
	Priority         PriorityTier    `json:"priority,omitempty"`
	Origin           Location        `json:"origin"`
	Destination      Location        `json:"destination"`
	Pickup           TimeWindow      `json:"pickup"`
	Delivery         TimeWindow      `json:"delivery"`
	WeightKg         float64         `json:"weight_kg" validate:"gte=0"`
	Pallets          int             `json:"pallets" validate:"gte=0"`
	Requirements     []string        `json:"requirements,omitempty"`
	ServiceLevels    []ServiceLevel  `json:"service_levels,omitempty"`
	EstimatedCost    float64         `json:"estimated_cost" validate:"gt=0"`
	TargetCost       float64         `json:"target_cost,omitempty" validate:"gte=0"`
	ResponseWindow   time.Duration   `json:"response_window,omitempty"`
	ResponseDeadline time.Time       `json:"response_deadline,omitempty"`
	AutoAward        bool            `json:"auto_award"`
	Strategy         Strategy        `json:"strategy,omitempty"`
	Rules            []SelectionRule `json:"rules,omitempty"`
}

// Validate checks the fields the engine depends on.
func (s TenderSpec) Validate() error {
	if !s.LoadType.Valid() {
		return fmt.Errorf("unknown load type %q", s.LoadType)
	}
	if s.EstimatedCost <= 0 {
		return fmt.Errorf("estimated cost must be positive")
	}
	if !s.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", s.Strategy)
	}
	if s.ResponseWindow < 0 {
		return fmt.Errorf("response window must not be negative")
	}
	for i, r := range s.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// TenderLoad is one shipment worth of freight that needs a carrier. Bids are
// held by the ledger and referenced by tender id; carrier identity lives in
// the external catalog.
type TenderLoad struct {
	ID               string          `json:"id"`
	Reference        string          `json:"reference,omitempty"`
	LoadType         LoadType        `json:"load_type"`
	Priority         PriorityTier    `json:"priority,omitempty"`
	Origin           Location        `json:"origin"`
	Destination      Location        `json:"destination"`
	Pickup           TimeWindow      `json:"pickup"`
	Delivery         TimeWindow      `json:"delivery"`
	WeightKg         float64         `json:"weight_kg"`
	Pallets          int             `json:"pallets"`
	Requirements     []string        `json:"requirements,omitempty"`
	ServiceLevels    []ServiceLevel  `json:"service_levels,omitempty"`
	EstimatedCost    float64         `json:"estimated_cost"`
	TargetCost       float64         `json:"target_cost,omitempty"`
	ResponseWindow   time.Duration   `json:"response_window"`
	ResponseDeadline time.Time       `json:"response_deadline,omitempty"`
	AutoAward        bool            `json:"auto_award"`
	Strategy         Strategy        `json:"strategy"`
	Rules            []SelectionRule `json:"rules"`
	Eligible         []string        `json:"eligible_carriers,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	AuditRequired    bool            `json:"audit_required,omitempty"`
	State            State           `json:"-"`
}

// NewTenderLoad builds a Draft tender from a planning spec.
func NewTenderLoad(id string, spec TenderSpec, now time.Time) TenderLoad {
	strategy := spec.Strategy
	if strategy == "" {
		strategy = StrategyBalanced
	}
	return TenderLoad{
		ID:               id,
		Reference:        spec.Reference,
		LoadType:         spec.LoadType,
		Priority:         spec.Priority,
		Origin:           spec.Origin,
		Destination:      spec.Destination,
		Pickup:           spec.Pickup,
		Delivery:         spec.Delivery,
		WeightKg:         spec.WeightKg,
		Pallets:          spec.Pallets,
		Requirements:     append([]string(nil), spec.Requirements...),
		ServiceLevels:    append([]ServiceLevel(nil), spec.ServiceLevels...),
		EstimatedCost:    spec.EstimatedCost,
		TargetCost:       spec.TargetCost,
		ResponseWindow:   spec.ResponseWindow,
		ResponseDeadline: spec.ResponseDeadline,
		AutoAward:        spec.AutoAward,
		Strategy:         strategy,
		Rules:            append([]SelectionRule(nil), spec.Rules...),
		CreatedAt:        now,
		State:            Draft{},
	}
}

// Status returns the status name of the current state.
func (t TenderLoad) Status() Status {
	if t.State == nil {
		return StatusDraft
	}
	return t.State.Status()
}

// IsEligible reports whether the carrier was selected by the pool router.
func (t TenderLoad) IsEligible(carrierID string) bool {
	for _, id := range t.Eligible {
		if id == carrierID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with t.
func (t TenderLoad) Clone() TenderLoad {
	c := t
	c.Requirements = append([]string(nil), t.Requirements...)
	c.ServiceLevels = append([]ServiceLevel(nil), t.ServiceLevels...)
	c.Rules = append([]SelectionRule(nil), t.Rules...)
	c.Eligible = append([]string(nil), t.Eligible...)
	return c
}
