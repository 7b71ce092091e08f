package forecast

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// The worked example: five predictions [60,65,58,70,55], no calibration
// data, tight agreement. Aggregation falls to the plain mean and the
// uncertainty tier is low.
func TestAggregateScenarioFivePredictions(t *testing.T) {
	preds := []Prediction{
		{ParticipantID: "technocrat", Outcome: "adoption", Probability: 60},
		{ParticipantID: "visionary", Outcome: "adoption", Probability: 65},
		{ParticipantID: "skeptic", Outcome: "adoption", Probability: 58},
		{ParticipantID: "pragmatist", Outcome: "adoption", Probability: 70},
		{ParticipantID: "historian", Outcome: "adoption", Probability: 55},
	}

	ens := Aggregate(preds, nil, 0.95)

	if !almostEqual(ens.MeanProbability, 61.6) {
		t.Errorf("MeanProbability = %v, want 61.6", ens.MeanProbability)
	}
	if ens.Method != MethodMean {
		t.Errorf("Method = %q, want %q", ens.Method, MethodMean)
	}
	if !almostEqual(ens.FinalProbability, 61.6) {
		t.Errorf("FinalProbability = %v, want 61.6", ens.FinalProbability)
	}
	if ens.Uncertainty != UncertaintyLow {
		t.Errorf("Uncertainty = %q, want %q", ens.Uncertainty, UncertaintyLow)
	}
	if ens.StdDev > 20 {
		t.Errorf("StdDev = %v, want < 20", ens.StdDev)
	}
	if ens.Outcome != "adoption" {
		t.Errorf("Outcome = %q, want %q", ens.Outcome, "adoption")
	}
}

func TestIntervalBoundsContainMean(t *testing.T) {
	preds := []Prediction{
		{ParticipantID: "a", Outcome: "x", Probability: 20},
		{ParticipantID: "b", Outcome: "x", Probability: 80},
		{ParticipantID: "c", Outcome: "x", Probability: 50},
	}

	for _, level := range []float64{0.95, 0.99} {
		ens := Aggregate(preds, nil, level)
		if ens.Interval.Lower > ens.MeanProbability || ens.MeanProbability > ens.Interval.Upper {
			t.Errorf("level %v: mean %v outside interval [%v, %v]",
				level, ens.MeanProbability, ens.Interval.Lower, ens.Interval.Upper)
		}
		if ens.Interval.Lower < 0 || ens.Interval.Upper > 100 {
			t.Errorf("level %v: interval [%v, %v] outside [0,100]",
				level, ens.Interval.Lower, ens.Interval.Upper)
		}
		if ens.Interval.Level != level {
			t.Errorf("Interval.Level = %v, want %v", ens.Interval.Level, level)
		}
	}
}

func TestIntervalClampedToProbabilityRange(t *testing.T) {
	preds := []Prediction{
		{ParticipantID: "a", Outcome: "x", Probability: 2},
		{ParticipantID: "b", Outcome: "x", Probability: 95},
	}

	ens := Aggregate(preds, nil, 0.99)
	if ens.Interval.Lower < 0 || ens.Interval.Upper > 100 {
		t.Errorf("interval [%v, %v] outside [0,100]", ens.Interval.Lower, ens.Interval.Upper)
	}
}

func TestMedianMethodOnHighDisagreement(t *testing.T) {
	preds := []Prediction{
		{ParticipantID: "a", Outcome: "x", Probability: 5},
		{ParticipantID: "b", Outcome: "x", Probability: 95},
		{ParticipantID: "c", Outcome: "x", Probability: 50},
	}

	ens := Aggregate(preds, nil, 0.95)

	if ens.StdDev <= 20 {
		t.Fatalf("test setup: StdDev = %v, want > 20", ens.StdDev)
	}
	if ens.Method != MethodMedian {
		t.Errorf("Method = %q, want %q", ens.Method, MethodMedian)
	}
	if !almostEqual(ens.FinalProbability, 50) {
		t.Errorf("FinalProbability = %v, want 50 (median)", ens.FinalProbability)
	}
	if ens.Uncertainty != UncertaintyHigh {
		t.Errorf("Uncertainty = %q, want %q", ens.Uncertainty, UncertaintyHigh)
	}
}

func TestBayesianMethodOnModerateDisagreement(t *testing.T) {
	preds := []Prediction{
		{ParticipantID: "a", Outcome: "x", Probability: 40},
		{ParticipantID: "b", Outcome: "x", Probability: 55},
		{ParticipantID: "c", Outcome: "x", Probability: 70},
		{ParticipantID: "d", Outcome: "x", Probability: 45},
		{ParticipantID: "e", Outcome: "x", Probability: 75},
	}

	ens := Aggregate(preds, nil, 0.95)

	if ens.StdDev <= 10 || ens.StdDev > 20 {
		t.Fatalf("test setup: StdDev = %v, want in (10, 20]", ens.StdDev)
	}
	if ens.Method != MethodBayesian {
		t.Errorf("Method = %q, want %q", ens.Method, MethodBayesian)
	}

	// The Bayesian estimate shrinks the raw mean (57) toward 50.
	if ens.FinalProbability >= ens.MeanProbability {
		t.Errorf("FinalProbability = %v, want below the mean %v",
			ens.FinalProbability, ens.MeanProbability)
	}
	if ens.FinalProbability <= 50 {
		t.Errorf("FinalProbability = %v, want above the 50%% prior", ens.FinalProbability)
	}
}

func TestWeightedMethodWithCalibration(t *testing.T) {
	cal := NewCalibration()
	cal.Set("sharp", 1.0)

	preds := []Prediction{
		{ParticipantID: "sharp", Outcome: "x", Probability: 80},
		{ParticipantID: "unknown", Outcome: "x", Probability: 20},
	}

	ens := Aggregate(preds, cal, 0.95)

	if ens.Method != MethodWeighted {
		t.Errorf("Method = %q, want %q", ens.Method, MethodWeighted)
	}
	// (1.0*80 + 0.5*20) / 1.5 = 60
	if !almostEqual(ens.FinalProbability, 60) {
		t.Errorf("FinalProbability = %v, want 60", ens.FinalProbability)
	}
}

func TestModalOutcomeTieBreaksByFirstSeen(t *testing.T) {
	preds := []Prediction{
		{ParticipantID: "a", Outcome: "delayed", Probability: 50},
		{ParticipantID: "b", Outcome: "shipped", Probability: 50},
		{ParticipantID: "c", Outcome: "shipped", Probability: 50},
		{ParticipantID: "d", Outcome: "delayed", Probability: 50},
	}

	ens := Aggregate(preds, nil, 0.95)
	if ens.Outcome != "delayed" {
		t.Errorf("Outcome = %q, want %q (first seen wins ties)", ens.Outcome, "delayed")
	}
}

func TestOutlierFlagging(t *testing.T) {
	preds := []Prediction{
		{ParticipantID: "a", Outcome: "x", Probability: 50},
		{ParticipantID: "b", Outcome: "x", Probability: 51},
		{ParticipantID: "c", Outcome: "x", Probability: 49},
		{ParticipantID: "d", Outcome: "x", Probability: 50},
		{ParticipantID: "e", Outcome: "x", Probability: 52},
		{ParticipantID: "f", Outcome: "x", Probability: 48},
		{ParticipantID: "g", Outcome: "x", Probability: 50},
		{ParticipantID: "maverick", Outcome: "x", Probability: 95},
	}

	ens := Aggregate(preds, nil, 0.95)

	if len(ens.Outliers) != 1 || ens.Outliers[0] != "maverick" {
		t.Errorf("Outliers = %v, want [maverick]", ens.Outliers)
	}
}

func TestConsensusStrengthBounds(t *testing.T) {
	tight := Aggregate([]Prediction{
		{ParticipantID: "a", Probability: 60},
		{ParticipantID: "b", Probability: 60},
		{ParticipantID: "c", Probability: 60},
	}, nil, 0.95)
	if !almostEqual(tight.ConsensusStrength, 1) {
		t.Errorf("ConsensusStrength = %v, want 1 for identical predictions", tight.ConsensusStrength)
	}

	spread := Aggregate([]Prediction{
		{ParticipantID: "a", Probability: 0},
		{ParticipantID: "b", Probability: 100},
	}, nil, 0.95)
	if !almostEqual(spread.ConsensusStrength, 0) {
		t.Errorf("ConsensusStrength = %v, want 0 for maximum spread", spread.ConsensusStrength)
	}
}

func TestAggregateEmpty(t *testing.T) {
	ens := Aggregate(nil, nil, 0.95)
	if ens.Uncertainty != UncertaintyHigh {
		t.Errorf("Uncertainty = %q, want %q for empty input", ens.Uncertainty, UncertaintyHigh)
	}
	if ens.Method != MethodMean {
		t.Errorf("Method = %q, want %q for empty input", ens.Method, MethodMean)
	}
}

func TestFewPredictionsAreHighUncertainty(t *testing.T) {
	ens := Aggregate([]Prediction{
		{ParticipantID: "a", Probability: 60},
		{ParticipantID: "b", Probability: 62},
	}, nil, 0.95)
	if ens.Uncertainty != UncertaintyHigh {
		t.Errorf("Uncertainty = %q, want %q with fewer than 3 predictions",
			ens.Uncertainty, UncertaintyHigh)
	}
}

func TestCalibrationUpdate(t *testing.T) {
	cal := NewCalibration()

	// First update starts from the neutral 0.5 score.
	// accuracy = 1 - |0.8 - 1| = 0.8; next = 0.5 + 0.1*(0.8-0.5) = 0.53
	got := cal.Update("a", 80, 1)
	if !almostEqual(got, 0.53) {
		t.Errorf("Update() = %v, want 0.53", got)
	}

	score, ok := cal.Score("a")
	if !ok || !almostEqual(score, 0.53) {
		t.Errorf("Score() = %v,%v want 0.53,true", score, ok)
	}

	// A badly missed prediction drags the score down.
	// accuracy = 1 - |0.9 - 0| = 0.1; next = 0.53 + 0.1*(0.1-0.53) = 0.487
	got = cal.Update("a", 90, 0)
	if !almostEqual(got, 0.487) {
		t.Errorf("Update() = %v, want 0.487", got)
	}
}

func TestCalibrationClamped(t *testing.T) {
	cal := NewCalibration()
	cal.Set("a", 5)
	if score, _ := cal.Score("a"); score != 1 {
		t.Errorf("Set should clamp to [0,1], got %v", score)
	}
}

func TestMedianEvenCount(t *testing.T) {
	if got := median([]float64{10, 20, 30, 40}); !almostEqual(got, 25) {
		t.Errorf("median = %v, want 25", got)
	}
}
