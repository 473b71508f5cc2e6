package scoring

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/tendering/core/model"
)

// Params are the configurable normalisation constants.
type Params struct {
	CostSlack      float64 `json:"cost_slack"`
	MaxTransitDays float64 `json:"max_transit_days"`
	RatingScale    float64 `json:"rating_scale"`
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{CostSlack: 1.0, MaxTransitDays: 10, RatingScale: 5}
}

// Reference holds the per-tender constants sub-scores are normalised against.
type Reference struct {
	CostCeiling    float64
	MaxTransitDays float64
	RatingScale    float64
}

// ReferenceFor derives the normalisation reference for a tender.
func (p Params) ReferenceFor(t model.TenderLoad) Reference {
	d := DefaultParams()
	if p.CostSlack <= 0 {
		p.CostSlack = d.CostSlack
	}
	if p.MaxTransitDays <= 0 {
		p.MaxTransitDays = d.MaxTransitDays
	}
	if p.RatingScale <= 0 {
		p.RatingScale = d.RatingScale
	}
	return Reference{
		CostCeiling:    t.EstimatedCost * p.CostSlack,
		MaxTransitDays: p.MaxTransitDays,
		RatingScale:    p.RatingScale,
	}
}

// Input is one bid together with the carrier metrics snapshot it is scored
// against.
type Input struct {
	Bid     model.CarrierBid
	Carrier model.CarrierProfile
}

// SubScore is the contribution of one rule.
type SubScore struct {
	Criterion model.Criterion `json:"criterion"`
	Priority  int             `json:"priority"`
	Weight    float64         `json:"weight"`
	Value     float64         `json:"value"`
}

// Result is the evaluation of one bid.
type Result struct {
	BidID       string     `json:"bid_id"`
	CarrierID   string     `json:"carrier_id"`
	TotalCost   float64    `json:"total_cost"`
	TransitDays float64    `json:"transit_days"`
	Rating      float64    `json:"rating"`
	OnTimeRate  float64    `json:"on_time_rate"`
	Score       float64    `json:"score"`
	SubScores   []SubScore `json:"sub_scores"`
	Eligible    bool       `json:"eligible"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Seq         int        `json:"seq"`
}

// Score returns the weighted score of a bid.
func Score(in Input, rules []model.SelectionRule, ref Reference) float64 {
	return Evaluate(in, rules, ref).Score
}

// Evaluate scores a bid and keeps the per-rule breakdown. Bids without
// confirmed capacity are scored but never eligible for auto-award.
func Evaluate(in Input, rules []model.SelectionRule, ref Reference) Result {
	enabled := model.EnabledRules(rules)
	res := Result{
		BidID:       in.Bid.ID,
		CarrierID:   in.Bid.CarrierID,
		TotalCost:   in.Bid.TotalCost,
		TransitDays: in.Bid.TransitDays,
		Rating:      in.Carrier.Rating,
		OnTimeRate:  in.Carrier.OnTimeRate,
		Eligible:    in.Bid.CapacityConfirmed,
		SubmittedAt: in.Bid.SubmittedAt,
		Seq:         in.Bid.Seq,
		SubScores:   make([]SubScore, len(enabled)),
	}
	if len(enabled) == 0 {
		return res
	}
	subs := make([]float64, len(enabled))
	weights := make([]float64, len(enabled))
	for i, r := range enabled {
		subs[i] = subScore(in, r, ref)
		weights[i] = r.Weight
		res.SubScores[i] = SubScore{Criterion: r.Criterion, Priority: r.Priority, Weight: r.Weight, Value: subs[i]}
	}
	if total := floats.Sum(weights); total > 0 {
		res.Score = floats.Dot(subs, weights) / total
	}
	return res
}

func rawValue(in Input, c model.Criterion) float64 {
	switch c {
	case model.CriterionCost:
		return in.Bid.TotalCost
	case model.CriterionRating:
		return in.Carrier.Rating
	case model.CriterionTransitTime:
		return in.Bid.TransitDays
	case model.CriterionOnTimeRate:
		return in.Carrier.OnTimeRate
	case model.CriterionCapacity:
		if in.Bid.CapacityConfirmed {
			return 1
		}
	}
	return 0
}

// normalised maps the raw value of a criterion onto [0,1] where 1 is the
// largest magnitude (highest cost, longest transit, best rating).
func normalised(raw float64, c model.Criterion, ref Reference) float64 {
	switch c {
	case model.CriterionCost:
		if ref.CostCeiling <= 0 {
			return 1
		}
		return clamp(raw / ref.CostCeiling)
	case model.CriterionRating:
		return clamp(raw / ref.RatingScale)
	case model.CriterionTransitTime:
		if ref.MaxTransitDays <= 0 {
			return 1
		}
		return clamp(raw / ref.MaxTransitDays)
	case model.CriterionOnTimeRate:
		return clamp(raw / 100)
	case model.CriterionCapacity:
		return clamp(raw)
	}
	return 0
}

func subScore(in Input, r model.SelectionRule, ref Reference) float64 {
	raw := rawValue(in, r.Criterion)
	switch r.Operator {
	case model.OpThreshold:
		if r.Criterion.LowerIsBetter() {
			if raw <= r.Threshold {
				return 1
			}
			return 0
		}
		if raw >= r.Threshold {
			return 1
		}
		return 0
	case model.OpMaximize:
		return normalised(raw, r.Criterion, ref)
	default:
		return 1 - normalised(raw, r.Criterion, ref)
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
