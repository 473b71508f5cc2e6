// Package scoring turns carrier bids into comparable scores.
//
// Every enabled selection rule yields a sub-score in [0,1]:
//
//   - cost: 1 - totalCost/ceiling, ceiling = estimated cost × slack
//   - rating: rating / rating scale (5)
//   - on-time rate: percentage / 100
//   - transit time: 1 - transitDays/reference days
//   - capacity: 1 when capacity is confirmed, else 0
//
// Minimize uses the inverted normalised value, maximize the value itself.
// Threshold rules are binary: 1 when the raw value meets the threshold
// (at most for cost and transit, at least for the others), else 0. There is
// no partial credit.
//
// The weighted score is Σ sub×weight / Σ weight over enabled rules. Scoring
// never reads the clock and has no randomness, so identical inputs always give
// identical scores.
package scoring
