package scoring

import (
	"math"
	"sort"

	"github.com/kilianp07/tendering/core/model"
)

const epsilon = 1e-9

// Ranking is the ordered evaluation of a tender's bids.
type Ranking struct {
	Strategy model.Strategy `json:"strategy"`
	Results  []Result       `json:"results"`
}

// Winner returns the best ranked bid eligible for auto-award.
func (r Ranking) Winner() (Result, bool) {
	for _, res := range r.Results {
		if res.Eligible {
			return res, true
		}
	}
	return Result{}, false
}

// Rank evaluates and orders Pending bids. Bids in any other status are
// excluded. Equal scores are decided by the enabled rule with the lowest
// priority number whose sub-scores differ, then by earliest submission.
func Rank(inputs []Input, rules []model.SelectionRule, ref Reference, strategy model.Strategy) Ranking {
	if strategy == "" {
		strategy = model.StrategyBalanced
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		if in.Bid.Status != model.BidPending {
			continue
		}
		results = append(results, Evaluate(in, rules, ref))
	}
	order := priorityOrder(results)
	sort.SliceStable(results, func(i, j int) bool {
		return better(results[i], results[j], strategy, order)
	})
	return Ranking{Strategy: strategy, Results: results}
}

// priorityOrder returns sub-score indexes sorted by rule priority.
func priorityOrder(results []Result) []int {
	if len(results) == 0 {
		return nil
	}
	subs := results[0].SubScores
	idx := make([]int, len(subs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return subs[idx[a]].Priority < subs[idx[b]].Priority })
	return idx
}

// primary returns the strategy key where a larger value is better.
func primary(r Result, s model.Strategy) float64 {
	switch s {
	case model.StrategyLowestCost:
		return -r.TotalCost
	case model.StrategyBestRating:
		return r.Rating
	case model.StrategyFastestTransit:
		return -r.TransitDays
	case model.StrategyBestOnTime:
		return r.OnTimeRate
	}
	return r.Score
}

func better(a, b Result, s model.Strategy, order []int) bool {
	if d := primary(a, s) - primary(b, s); math.Abs(d) > epsilon {
		return d > 0
	}
	if d := a.Score - b.Score; math.Abs(d) > epsilon {
		return d > 0
	}
	for _, i := range order {
		if d := a.SubScores[i].Value - b.SubScores[i].Value; math.Abs(d) > epsilon {
			return d > 0
		}
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.BidID < b.BidID
}
