package tender

import (
	"fmt"
	"time"

	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/scoring"
)

// Config holds the engine settings.
type Config struct {
	// DefaultResponseWindow applies when a tender sets neither a window nor
	// an absolute deadline.
	DefaultResponseWindow time.Duration `json:"default_response_window"`
	// DefaultBidValidity applies to bids that carry no expiry. Zero means
	// bids stay valid until the deadline.
	DefaultBidValidity  time.Duration         `json:"default_bid_validity"`
	MaxDecisionAttempts int                   `json:"max_decision_attempts"`
	Scoring             scoring.Params        `json:"scoring"`
	DefaultRules        []model.SelectionRule `json:"default_rules"`
}

// DefaultRules is the balanced rule set used when neither the tender nor the
// configuration provide one.
func DefaultRules() []model.SelectionRule {
	return []model.SelectionRule{
		{Criterion: model.CriterionCost, Operator: model.OpMinimize, Weight: 40, Enabled: true, Priority: 1},
		{Criterion: model.CriterionRating, Operator: model.OpMaximize, Weight: 30, Enabled: true, Priority: 2},
		{Criterion: model.CriterionOnTimeRate, Operator: model.OpMaximize, Weight: 30, Enabled: true, Priority: 3},
	}
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.DefaultResponseWindow <= 0 {
		c.DefaultResponseWindow = 2 * time.Hour
	}
	if c.MaxDecisionAttempts <= 0 {
		c.MaxDecisionAttempts = 5
	}
	d := scoring.DefaultParams()
	if c.Scoring.CostSlack <= 0 {
		c.Scoring.CostSlack = d.CostSlack
	}
	if c.Scoring.MaxTransitDays <= 0 {
		c.Scoring.MaxTransitDays = d.MaxTransitDays
	}
	if c.Scoring.RatingScale <= 0 {
		c.Scoring.RatingScale = d.RatingScale
	}
	if len(c.DefaultRules) == 0 {
		c.DefaultRules = DefaultRules()
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DefaultBidValidity < 0 {
		return fmt.Errorf("engine: default_bid_validity must not be negative")
	}
	for i, r := range c.DefaultRules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("engine: default rule %d: %w", i, err)
		}
	}
	return nil
}
