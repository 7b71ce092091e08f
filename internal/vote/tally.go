// Package vote implements pure aggregation of councilor ballots into a
// consensus result. It has no dependencies on the rest of the orchestrator;
// the input is an ordered list of ballots and the output is a single Result.
//
// Consensus math: every ballot is mapped to a signed agreement score
// (yea = +1, nay = -1, abstain = 0) scaled by its confidence. The consensus
// score is 1 minus the population standard deviation of those scores,
// clamped to [0,1]. Scores live in [-1,1], so the deviation is already
// normalized. All sums are computed in float64 and rounded only for
// presentation, never before classification.
package vote

import (
	"math"
	"strings"
)

// Choice is a councilor's vote on the motion.
type Choice string

const (
	ChoiceYea     Choice = "YEA"
	ChoiceNay     Choice = "NAY"
	ChoiceAbstain Choice = "ABSTAIN"
)

// ParseChoice normalizes a raw choice string. Unrecognized input maps to
// ABSTAIN with ok=false so malformed ballots degrade rather than fail.
func ParseChoice(s string) (Choice, bool) {
	switch Choice(strings.ToUpper(strings.TrimSpace(s))) {
	case ChoiceYea:
		return ChoiceYea, true
	case ChoiceNay:
		return ChoiceNay, true
	case ChoiceAbstain:
		return ChoiceAbstain, true
	default:
		return ChoiceAbstain, false
	}
}

// Ballot is one participant's cast vote. Immutable once cast.
type Ballot struct {
	ParticipantID string  `json:"participantId"`
	Choice        Choice  `json:"choice"`
	Confidence    float64 `json:"confidence"` // 0-10 continuous
	Reason        string  `json:"reason,omitempty"`
	Weight        float64 `json:"weight"` // participant weight at cast time; 0 means default 1
}

// Outcome classifies the tally result.
type Outcome string

const (
	OutcomePassed               Outcome = "PASSED"
	OutcomeRejected             Outcome = "REJECTED"
	OutcomeTie                  Outcome = "TIE"
	OutcomeReconciliationNeeded Outcome = "RECONCILIATION_NEEDED"
)

// Consensus labels, discretized from the consensus score.
const (
	LabelStrongConsensus = "Strong Consensus"
	LabelWorkingMajority = "Working Majority"
	LabelSplitCouncil    = "Split Council"
)

// Config holds the tally thresholds. Zero values select the defaults.
type Config struct {
	// PassMargin is how much the weighted yeas must exceed the weighted nays
	// (and vice versa) for a decisive outcome. Default 0: any strict
	// majority decides.
	PassMargin float64

	// LowAgreement is the consensus score below which the topic should
	// re-enter debate regardless of the yea/nay split. Default 0.2.
	LowAgreement float64
}

// DefaultConfig returns the default tally thresholds.
func DefaultConfig() Config {
	return Config{PassMargin: 0, LowAgreement: 0.2}
}

// Result is the aggregate over all ballots in a session.
type Result struct {
	Yeas     int `json:"yeas"`
	Nays     int `json:"nays"`
	Abstains int `json:"abstains"`

	WeightedYeas     float64 `json:"weightedYeas"`
	WeightedNays     float64 `json:"weightedNays"`
	WeightedAbstains float64 `json:"weightedAbstains"`

	MeanConfidence float64 `json:"meanConfidence"`
	ConsensusScore float64 `json:"consensusScore"` // in [0,1]
	ConsensusLabel string  `json:"consensusLabel"`
	Outcome        Outcome `json:"outcome"`

	Ballots []Ballot `json:"ballots"`
}

// Tally aggregates an ordered list of ballots into a Result.
//
// Raw counts are simple tallies; weighted counts sum each ballot's captured
// participant weight by choice. Mean confidence is the arithmetic mean over
// all ballots, abstains included. Outcome classification checks the
// low-agreement threshold first (a fractured council reconciles rather than
// resolves), then exact ties, then the pass margin. A non-tie split inside
// the margin also reports RECONCILIATION_NEEDED: too close to call is never
// silently resolved.
func Tally(ballots []Ballot, cfg Config) Result {
	if cfg.LowAgreement == 0 {
		cfg.LowAgreement = DefaultConfig().LowAgreement
	}

	res := Result{Ballots: ballots}
	if len(ballots) == 0 {
		res.Outcome = OutcomeReconciliationNeeded
		res.ConsensusLabel = LabelSplitCouncil
		return res
	}

	var confSum float64
	scores := make([]float64, 0, len(ballots))

	for _, b := range ballots {
		weight := b.Weight
		if weight == 0 {
			weight = 1
		}
		conf := clamp(b.Confidence, 0, 10)
		confSum += conf

		switch b.Choice {
		case ChoiceYea:
			res.Yeas++
			res.WeightedYeas += weight
			scores = append(scores, conf/10)
		case ChoiceNay:
			res.Nays++
			res.WeightedNays += weight
			scores = append(scores, -conf/10)
		default:
			res.Abstains++
			res.WeightedAbstains += weight
			scores = append(scores, 0)
		}
	}

	res.MeanConfidence = confSum / float64(len(ballots))
	res.ConsensusScore = clamp(1-stdDev(scores), 0, 1)
	res.ConsensusLabel = consensusLabel(res.ConsensusScore)
	res.Outcome = classify(res, cfg)
	return res
}

// classify maps the tallied counts onto an Outcome.
func classify(res Result, cfg Config) Outcome {
	if res.ConsensusScore < cfg.LowAgreement {
		return OutcomeReconciliationNeeded
	}
	if res.WeightedYeas == res.WeightedNays {
		return OutcomeTie
	}
	if res.WeightedYeas > res.WeightedNays+cfg.PassMargin {
		return OutcomePassed
	}
	if res.WeightedNays > res.WeightedYeas+cfg.PassMargin {
		return OutcomeRejected
	}
	return OutcomeReconciliationNeeded
}

// consensusLabel discretizes a consensus score into bands.
func consensusLabel(score float64) string {
	switch {
	case score >= 0.8:
		return LabelStrongConsensus
	case score >= 0.5:
		return LabelWorkingMajority
	default:
		return LabelSplitCouncil
	}
}

// stdDev computes the population standard deviation.
func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

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
