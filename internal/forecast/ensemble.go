// Package forecast implements pure statistical aggregation of councilor
// point predictions into a calibrated ensemble estimate.
//
// Aggregation method selection: weighted aggregation is used as soon as any
// participant has historical calibration data; otherwise the median is used
// when the councilors disagree strongly (standard deviation above 20), a
// Bayesian shrink toward the uninformative prior when there are at least
// five predictions and genuine disagreement (standard deviation above 10),
// and the plain mean when agreement is tight. Standard deviations are
// population deviations; all math is float64 end to end.
package forecast

import (
	"math"
	"sort"
)

// Prediction is one participant's point estimate.
type Prediction struct {
	ParticipantID string  `json:"participantId"`
	Outcome       string  `json:"outcome"`
	Probability   float64 `json:"probability"` // 0-100
	Timeline      string  `json:"timeline,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// Method names the aggregation method used for the final point estimate.
type Method string

const (
	MethodMean     Method = "mean"
	MethodMedian   Method = "median"
	MethodWeighted Method = "weighted"
	MethodBayesian Method = "bayesian"
)

// Uncertainty tiers for the ensemble estimate.
type Uncertainty string

const (
	UncertaintyHigh   Uncertainty = "high"
	UncertaintyMedium Uncertainty = "medium"
	UncertaintyLow    Uncertainty = "low"
)

// Interval is a confidence interval over the ensemble probability.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"` // 0.95 or 0.99
}

// Ensemble is the aggregate statistical estimate. It is derived once from a
// prediction set and never mutated; recomputation re-derives from the same
// inputs.
type Ensemble struct {
	Outcome           string       `json:"outcome"`
	MeanProbability   float64      `json:"meanProbability"`
	MedianProbability float64      `json:"medianProbability"`
	StdDev            float64      `json:"stdDev"`
	FinalProbability  float64      `json:"finalProbability"`
	Interval          Interval     `json:"confidenceInterval"`
	Method            Method       `json:"method"`
	Uncertainty       Uncertainty  `json:"uncertaintyLevel"`
	ConsensusStrength float64      `json:"consensusStrength"`  // in [0,1]
	Outliers          []string     `json:"outliers,omitempty"` // participant IDs beyond 2 standard deviations
	Predictions       []Prediction `json:"predictions"`
}

// uncalibratedWeight is the weight given to participants without calibration
// history under weighted aggregation.
const uncalibratedWeight = 0.5

// bayesPriorWeight is the pseudo-count pulling the Bayesian estimate toward
// the uninformative 50% prior.
const bayesPriorWeight = 2.0

// Aggregate derives the ensemble estimate from a set of individual
// predictions. cal may be nil when no calibration history exists. level
// selects the confidence interval: 0.99 uses z=2.58, anything else 0.95
// with z=1.96.
func Aggregate(preds []Prediction, cal *Calibration, level float64) Ensemble {
	ens := Ensemble{Predictions: preds, Uncertainty: UncertaintyHigh}
	if len(preds) == 0 {
		ens.Method = MethodMean
		ens.Interval.Level = normalizeLevel(level)
		return ens
	}

	probs := make([]float64, len(preds))
	for i, p := range preds {
		probs[i] = clamp(p.Probability, 0, 100)
	}

	ens.Outcome = modalOutcome(preds)
	ens.MeanProbability = mean(probs)
	ens.MedianProbability = median(probs)
	ens.StdDev = stdDev(probs, ens.MeanProbability)

	z := 1.96
	lvl := normalizeLevel(level)
	if lvl == 0.99 {
		z = 2.58
	}
	se := ens.StdDev / math.Sqrt(float64(len(probs)))
	ens.Interval = Interval{
		Lower: clamp(ens.MeanProbability-z*se, 0, 100),
		Upper: clamp(ens.MeanProbability+z*se, 0, 100),
		Level: lvl,
	}

	ens.Method, ens.FinalProbability = aggregate(preds, probs, cal, ens)

	switch {
	case len(probs) < 3 || ens.StdDev > 20:
		ens.Uncertainty = UncertaintyHigh
	case ens.StdDev > 10:
		ens.Uncertainty = UncertaintyMedium
	default:
		ens.Uncertainty = UncertaintyLow
	}

	ens.ConsensusStrength = clamp(1-ens.StdDev/50, 0, 1)

	if ens.StdDev > 0 {
		for i, p := range preds {
			if math.Abs(probs[i]-ens.MeanProbability) > 2*ens.StdDev {
				ens.Outliers = append(ens.Outliers, p.ParticipantID)
			}
		}
	}

	return ens
}

// aggregate selects the aggregation method and computes the final point
// estimate under it.
func aggregate(preds []Prediction, probs []float64, cal *Calibration, ens Ensemble) (Method, float64) {
	if cal != nil && calibratedAny(preds, cal) {
		var weightedSum, weightSum float64
		for i, p := range preds {
			w := uncalibratedWeight
			if score, ok := cal.Score(p.ParticipantID); ok {
				w = score
			}
			weightedSum += w * probs[i]
			weightSum += w
		}
		if weightSum > 0 {
			return MethodWeighted, weightedSum / weightSum
		}
		return MethodWeighted, ens.MeanProbability
	}
	if ens.StdDev > 20 {
		return MethodMedian, ens.MedianProbability
	}
	if len(preds) >= 5 && ens.StdDev > 10 {
		var sum float64
		for _, p := range probs {
			sum += p
		}
		return MethodBayesian, (sum + bayesPriorWeight*50) / (float64(len(probs)) + bayesPriorWeight)
	}
	return MethodMean, ens.MeanProbability
}

// modalOutcome returns the most frequent outcome label, breaking ties in
// favor of the label seen first in participant order.
func modalOutcome(preds []Prediction) string {
	counts := make(map[string]int)
	var order []string
	for _, p := range preds {
		if _, seen := counts[p.Outcome]; !seen {
			order = append(order, p.Outcome)
		}
		counts[p.Outcome]++
	}

	best := ""
	bestCount := -1
	for _, label := range order {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best
}

func calibratedAny(preds []Prediction, cal *Calibration) bool {
	for _, p := range preds {
		if _, ok := cal.Score(p.ParticipantID); ok {
			return true
		}
	}
	return false
}

func normalizeLevel(level float64) float64 {
	if level == 0.99 {
		return 0.99
	}
	return 0.95
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdDev(xs []float64, mean float64) float64 {
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
