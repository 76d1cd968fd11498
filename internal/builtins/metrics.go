// Package builtins implements the flowgraph's built-in combinators (C4.5):
// join, nop, minimum, maximum, mux, and verify. They all operate over the
// same small set of per-task metric/goal/weight readings, so the shared
// eligibility and scoring logic for minimum/maximum lives in one place
// (spec.md §4.5).
package builtins

import (
	"math"
	"sort"
)

// Upstream is one candidate input to a combinator: the (step,index) that
// produced it, whether its flowstatus carries an error bit, and its
// recorded metric values alongside any declared goal.
type Upstream struct {
	Step  string
	Index string

	Error bool

	// Metrics maps metric name -> recorded value (metric/s/i/m/real).
	Metrics map[string]float64
	// Goals maps metric name -> goal bound, only present when the metric
	// has a declared goal (|M| > G disqualifies the input).
	Goals map[string]float64
}

// ID returns the upstream's flowgraph identity.
func (u Upstream) ID() string { return u.Step + u.Index }

// Weights maps metric name -> weight on the current node. Zero or absent
// weights are skipped during scoring (spec.md §4.5 step 3).
type Weights map[string]float64

// Result is the outcome of minimum/maximum/mux: the winning upstream (if
// any) and its computed score.
type Result struct {
	Winner *Upstream
	Score  float64
}

// Join returns every upstream unchanged (spec.md §4.5 "join").
func Join(inputs []Upstream) []Upstream { return inputs }

// Nop returns its single upstream unchanged (spec.md §4.5 "nop"). Callers
// are expected to invoke it with exactly one element; a mismatched count
// is not this function's concern, since flowgraph construction is what
// enforces arity.
func Nop(inputs []Upstream) []Upstream { return inputs }

func eligible(inputs []Upstream) []Upstream {
	var out []Upstream
	for _, u := range inputs {
		if u.Error {
			continue
		}
		disqualified := false
		for metric, goal := range u.Goals {
			if v, ok := u.Metrics[metric]; ok {
				if abs(v) > goal {
					disqualified = true
					break
				}
			}
		}
		if !disqualified {
			out = append(out, u)
		}
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// score implements spec.md §4.5 steps 2-3: per-metric min/max
// normalisation across the eligible set, then a weighted sum.
func score(eligibleInputs []Upstream, weights Weights) []float64 {
	metricMin := make(map[string]float64)
	metricMax := make(map[string]float64)
	for m, w := range weights {
		if w == 0 {
			continue
		}
		metricMax[m] = 0
		metricMin[m] = math.Inf(1)
	}
	for _, u := range eligibleInputs {
		for m, v := range u.Metrics {
			if _, ok := weights[m]; !ok || weights[m] == 0 {
				continue
			}
			if v > metricMax[m] {
				metricMax[m] = v
			}
			if v < metricMin[m] {
				metricMin[m] = v
			}
		}
	}

	scores := make([]float64, len(eligibleInputs))
	for i, u := range eligibleInputs {
		var total float64
		for m, w := range weights {
			if w == 0 {
				continue
			}
			v, ok := u.Metrics[m]
			if !ok {
				continue
			}
			lo, hi := metricMin[m], metricMax[m]
			var normalised float64
			if hi-lo != 0 {
				normalised = (v - lo) / (hi - lo)
			} else {
				normalised = hi
			}
			total += w * normalised
		}
		scores[i] = total
	}
	return scores
}

// Minimum selects the eligible upstream with the lowest weighted score
// (spec.md §4.5 "minimum"). Ties resolve by first-appearance order.
func Minimum(inputs []Upstream, weights Weights) *Result {
	return extremum(inputs, weights, func(a, b float64) bool { return a < b })
}

// Maximum selects the eligible upstream with the highest weighted score
// (spec.md §4.5 "maximum").
func Maximum(inputs []Upstream, weights Weights) *Result {
	return extremum(inputs, weights, func(a, b float64) bool { return a > b })
}

func extremum(inputs []Upstream, weights Weights, better func(candidate, current float64) bool) *Result {
	elig := eligible(inputs)
	if len(elig) == 0 {
		return nil
	}
	scores := score(elig, weights)

	bestIdx := 0
	for i := 1; i < len(elig); i++ {
		if better(scores[i], scores[bestIdx]) {
			bestIdx = i
		}
	}
	winner := elig[bestIdx]
	return &Result{Winner: &winner, Score: scores[bestIdx]}
}

// Mux is the entry point for the "mux" built-in (spec.md §4.5 "mux"). It
// does not call the selector and does not filter or score inputs: it always
// returns nil (no winner), so callers relying on a concrete selection
// policy fail loudly instead of silently picking an arbitrary input.
func Mux(inputs []Upstream, selector func([]Upstream) Weights) *Result {
	_ = selector
	return nil
}

// SortedIDs returns the IDs of inputs sorted lexically, useful for building
// reproducible log messages.
func SortedIDs(inputs []Upstream) []string {
	ids := make([]string, 0, len(inputs))
	for _, u := range inputs {
		ids = append(ids, u.ID())
	}
	sort.Strings(ids)
	return ids
}
