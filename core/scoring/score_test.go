package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tendering/core/model"
)

var t0 = time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC)

func balancedRules() []model.SelectionRule {
	return []model.SelectionRule{
		{Criterion: model.CriterionCost, Operator: model.OpMinimize, Weight: 40, Enabled: true, Priority: 1},
		{Criterion: model.CriterionRating, Operator: model.OpMaximize, Weight: 30, Enabled: true, Priority: 2},
		{Criterion: model.CriterionOnTimeRate, Operator: model.OpMaximize, Weight: 30, Enabled: true, Priority: 3},
	}
}

func bidInput(id, carrier string, cost, rating, otd float64, confirmed bool, at time.Time) Input {
	return Input{
		Bid: model.CarrierBid{
			ID: id, CarrierID: carrier, Amount: cost, TotalCost: cost, TransitDays: 2,
			CapacityConfirmed: confirmed, SubmittedAt: at, Status: model.BidPending,
		},
		Carrier: model.CarrierProfile{ID: carrier, Rating: rating, OnTimeRate: otd},
	}
}

func exampleInputs() []Input {
	return []Input{
		bidInput("bA", "A", 2650, 4.8, 96.5, true, t0),
		bidInput("bB", "B", 2450, 4.6, 94.2, true, t0.Add(time.Minute)),
		bidInput("bC", "C", 2350, 4.3, 92.1, true, t0.Add(2*time.Minute)),
	}
}

func TestBalancedScoreExample(t *testing.T) {
	ref := DefaultParams().ReferenceFor(model.TenderLoad{EstimatedCost: 2800})
	require.Equal(t, 2800.0, ref.CostCeiling)
	inputs := exampleInputs()

	assert.InDelta(t, 0.5989286, Score(inputs[0], balancedRules(), ref), 1e-6)
	assert.InDelta(t, 0.6086000, Score(inputs[1], balancedRules(), ref), 1e-6)
	assert.InDelta(t, 0.5985857, Score(inputs[2], balancedRules(), ref), 1e-6)

	r := Rank(inputs, balancedRules(), ref, model.StrategyBalanced)
	require.Len(t, r.Results, 3)
	assert.Equal(t, []string{"B", "A", "C"}, carriers(r))
	w, ok := r.Winner()
	require.True(t, ok)
	assert.Equal(t, "bB", w.BidID)
}

func TestScoreDeterministic(t *testing.T) {
	ref := DefaultParams().ReferenceFor(model.TenderLoad{EstimatedCost: 2800})
	inputs := exampleInputs()
	first := Score(inputs[1], balancedRules(), ref)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Score(inputs[1], balancedRules(), ref))
	}
	a := Rank(inputs, balancedRules(), ref, "")
	b := Rank([]Input{inputs[2], inputs[0], inputs[1]}, balancedRules(), ref, "")
	assert.Equal(t, a, b)
}

func TestSubScoresClamped(t *testing.T) {
	ref := Reference{CostCeiling: 1000, MaxTransitDays: 10, RatingScale: 5}
	x := bidInput("b", "c", 5000, 7, 140, true, t0)
	x.Bid.TransitDays = 30
	rules := []model.SelectionRule{
		{Criterion: model.CriterionCost, Operator: model.OpMinimize, Weight: 1, Enabled: true},
		{Criterion: model.CriterionRating, Operator: model.OpMaximize, Weight: 1, Enabled: true},
		{Criterion: model.CriterionOnTimeRate, Operator: model.OpMaximize, Weight: 1, Enabled: true},
		{Criterion: model.CriterionTransitTime, Operator: model.OpMinimize, Weight: 1, Enabled: true},
	}
	res := Evaluate(x, rules, ref)
	require.Len(t, res.SubScores, 4)
	assert.Equal(t, 0.0, res.SubScores[0].Value)
	assert.Equal(t, 1.0, res.SubScores[1].Value)
	assert.Equal(t, 1.0, res.SubScores[2].Value)
	assert.Equal(t, 0.0, res.SubScores[3].Value)
	assert.InDelta(t, 0.5, res.Score, 1e-12)
}

func TestThresholdRules(t *testing.T) {
	ref := Reference{CostCeiling: 1000, MaxTransitDays: 10, RatingScale: 5}
	rules := []model.SelectionRule{
		{Criterion: model.CriterionCost, Operator: model.OpThreshold, Threshold: 900, Weight: 1, Enabled: true},
		{Criterion: model.CriterionOnTimeRate, Operator: model.OpThreshold, Threshold: 95, Weight: 1, Enabled: true},
	}
	res := Evaluate(bidInput("b", "c", 900, 4, 94.9, true, t0), rules, ref)
	assert.Equal(t, 1.0, res.SubScores[0].Value, "cost at threshold passes")
	assert.Equal(t, 0.0, res.SubScores[1].Value, "on-time below threshold fails")
	assert.InDelta(t, 0.5, res.Score, 1e-12)

	res = Evaluate(bidInput("b", "c", 900.01, 4, 95, true, t0), rules, ref)
	assert.Equal(t, 0.0, res.SubScores[0].Value)
	assert.Equal(t, 1.0, res.SubScores[1].Value)
}

func TestCapacityCriterionAndEligibility(t *testing.T) {
	ref := Reference{CostCeiling: 1000, MaxTransitDays: 10, RatingScale: 5}
	rules := []model.SelectionRule{{Criterion: model.CriterionCapacity, Operator: model.OpMaximize, Weight: 1, Enabled: true}}
	res := Evaluate(bidInput("b", "c", 100, 4, 90, false, t0), rules, ref)
	assert.False(t, res.Eligible)
	assert.Equal(t, 0.0, res.Score)
}

func TestDisabledRulesIgnored(t *testing.T) {
	ref := Reference{CostCeiling: 1000, MaxTransitDays: 10, RatingScale: 5}
	rules := []model.SelectionRule{
		{Criterion: model.CriterionCost, Operator: model.OpMinimize, Weight: 1, Enabled: true},
		{Criterion: model.CriterionRating, Operator: model.OpMaximize, Weight: 99, Enabled: false},
	}
	assert.InDelta(t, 0.8, Score(bidInput("b", "c", 200, 5, 90, true, t0), rules, ref), 1e-12)
	assert.Equal(t, 0.0, Score(bidInput("b", "c", 200, 5, 90, true, t0), nil, ref))
}

func TestTieBreakByRulePriority(t *testing.T) {
	ref := Reference{CostCeiling: 1000, MaxTransitDays: 10, RatingScale: 5}
	rules := []model.SelectionRule{
		{Criterion: model.CriterionRating, Operator: model.OpMaximize, Weight: 50, Enabled: true, Priority: 2},
		{Criterion: model.CriterionCost, Operator: model.OpMinimize, Weight: 50, Enabled: true, Priority: 1},
	}
	x := bidInput("bX", "X", 500, 3.0, 90, true, t0)
	y := bidInput("bY", "Y", 400, 2.5, 90, true, t0.Add(time.Minute))
	require.InDelta(t, Score(x, rules, ref), Score(y, rules, ref), epsilon)

	r := Rank([]Input{x, y}, rules, ref, model.StrategyBalanced)
	assert.Equal(t, []string{"Y", "X"}, carriers(r), "cheaper bid wins on the cost rule")

	rules[0].Priority, rules[1].Priority = 1, 2
	r = Rank([]Input{x, y}, rules, ref, model.StrategyBalanced)
	assert.Equal(t, []string{"X", "Y"}, carriers(r), "better rated bid wins on the rating rule")
}

func TestTieBreakBySubmissionTime(t *testing.T) {
	ref := Reference{CostCeiling: 1000, MaxTransitDays: 10, RatingScale: 5}
	late := bidInput("b1", "late", 500, 4, 90, true, t0.Add(time.Second))
	early := bidInput("b2", "early", 500, 4, 90, true, t0)
	r := Rank([]Input{late, early}, balancedRules(), ref, "")
	assert.Equal(t, []string{"early", "late"}, carriers(r))
}

func TestRankExcludesSettledBids(t *testing.T) {
	ref := Reference{CostCeiling: 1000, MaxTransitDays: 10, RatingScale: 5}
	a := bidInput("a", "A", 100, 4, 90, true, t0)
	b := bidInput("b", "B", 100, 4, 90, true, t0)
	b.Bid.Status = model.BidExpired
	c := bidInput("c", "C", 100, 4, 90, true, t0)
	c.Bid.Status = model.BidRejected
	r := Rank([]Input{a, b, c}, balancedRules(), ref, "")
	assert.Equal(t, []string{"A"}, carriers(r))
}

func TestWinnerSkipsUnconfirmedCapacity(t *testing.T) {
	ref := Reference{CostCeiling: 1000, MaxTransitDays: 10, RatingScale: 5}
	best := bidInput("a", "A", 100, 5, 99, false, t0)
	next := bidInput("b", "B", 300, 4, 90, true, t0)
	r := Rank([]Input{best, next}, balancedRules(), ref, "")
	assert.Equal(t, "A", r.Results[0].CarrierID)
	w, ok := r.Winner()
	require.True(t, ok)
	assert.Equal(t, "B", w.CarrierID)

	r = Rank([]Input{best}, balancedRules(), ref, "")
	_, ok = r.Winner()
	assert.False(t, ok)
}

func TestStrategies(t *testing.T) {
	ref := DefaultParams().ReferenceFor(model.TenderLoad{EstimatedCost: 2800})
	inputs := exampleInputs()
	inputs[0].Bid.TransitDays = 1
	cases := []struct {
		s    model.Strategy
		want string
	}{
		{model.StrategyLowestCost, "C"},
		{model.StrategyBestRating, "A"},
		{model.StrategyBestOnTime, "A"},
		{model.StrategyFastestTransit, "A"},
		{model.StrategyBalanced, "B"},
	}
	for _, c := range cases {
		r := Rank(inputs, balancedRules(), ref, c.s)
		assert.Equal(t, c.want, r.Results[0].CarrierID, string(c.s))
	}
}

func carriers(r Ranking) []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.CarrierID
	}
	return out
}
