// Package scorer turns a client's feature vector into a risk score in
// [0,1]. The default is a deterministic, rule-based function; the
// Scorer interface is the documented extension point for a learned
// model, selected at construction rather than per call.
package scorer

import "math"

// Scorer maps a feature vector to a risk score in [0,1].
type Scorer interface {
	Score(features []float64) float64
}

// Feature vector positions consumed by RuleBased.
const (
	FeatRPS = iota
	FeatBurstiness
	FeatEndpointEntropy
	FeatErrorRate
)

// RuleBased is the default scorer: total, deterministic, side-effect
// free. Its output for any given input is a testable contract, not a
// heuristic suggestion; do not change the constants without updating
// the scenario table this implements in scorer_test.go.
type RuleBased struct{}

// Score implements Scorer. Fewer than two features is treated as "not
// enough signal yet" and returns 0, per the error-handling contract.
func (RuleBased) Score(features []float64) float64 {
	if len(features) < 2 {
		return 0.0
	}
	rps := features[FeatRPS]
	burstiness := features[FeatBurstiness]

	risk := 0.0

	// Rate factor (weight 0.60)
	switch {
	case rps > 100:
		risk += 0.60
	case rps > 50:
		risk += 0.45
	case rps > 20:
		risk += 0.25
	case rps > 10:
		risk += 0.10
	}

	// Burstiness factor (weight 0.40)
	switch {
	case burstiness > 3000:
		risk += 0.40 // bot-like bursts
	case burstiness > 1500:
		risk += 0.20
	case burstiness < 100 && rps > 5:
		risk += 0.15 // too uniform to be human
	}

	// Combined penalty: high rate *and* high burstiness together.
	if rps > 75 && burstiness > 2500 {
		risk = math.Min(risk+0.20, 1.0)
	}

	return clamp(risk, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Func adapts a plain function to the Scorer interface, for
// alternative scorers that consume the trailing entropy/error-rate
// features.
type Func func(features []float64) float64

func (f Func) Score(features []float64) float64 { return f(features) }
