// Package dialectic tracks structured thesis/antithesis/synthesis rounds
// and scores how strongly a debate is converging.
//
// A round may carry any number of typed arguments. A new round may only
// begin once the current round has a synthesis; convergence between
// consecutive rounds is measured by token overlap between one round's
// synthesis and the next round's thesis. Overlap is scored with the
// overlap coefficient (|A ∩ B| / min(|A|, |B|)) rather than Jaccard:
// a thesis that restates the shared core of a longer synthesis is full
// agreement, and Jaccard would understate it in proportion to the
// length difference, keeping clearly converging debates below the
// convergence threshold.
package dialectic

import (
	"fmt"
	"strings"
	"sync"
)

// Argument is one typed contribution to a round.
type Argument struct {
	Position  string   `json:"position"`
	Evidence  []string `json:"evidence,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
	Supporter string   `json:"supporter"`
	Strength  float64  `json:"strength"`
}

// Round is one thesis-antithesis-synthesis cycle.
type Round struct {
	Number     int        `json:"number"`
	Thesis     string     `json:"thesis,omitempty"`
	Antithesis string     `json:"antithesis,omitempty"`
	Synthesis  string     `json:"synthesis,omitempty"`
	Arguments  []Argument `json:"arguments,omitempty"`
}

// Relation tags the measured relationship between consecutive rounds.
type Relation string

const (
	RelationConvergence Relation = "convergence"
	RelationDivergence  Relation = "divergence"
	RelationNeutral     Relation = "neutral"
)

// Convergence thresholds: similarity above the upper bound tags
// convergence, below the lower bound divergence.
const (
	convergenceThreshold = 0.7
	divergenceThreshold  = 0.3
)

// Tracker accumulates dialectical rounds for one session.
// It is safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	rounds       []Round
	participants map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{participants: make(map[string]struct{})}
}

// BeginRound opens a new round and returns its 1-based number.
// The current round must have a synthesis before a new one may begin.
func (t *Tracker) BeginRound() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.rounds); n > 0 && t.rounds[n-1].Synthesis == "" {
		return 0, fmt.Errorf("dialectic: round %d has no synthesis yet", n)
	}

	t.rounds = append(t.rounds, Round{Number: len(t.rounds) + 1})
	return len(t.rounds), nil
}

// SetThesis records the current round's thesis.
func (t *Tracker) SetThesis(content string) error {
	return t.withCurrent(func(r *Round) { r.Thesis = content })
}

// SetAntithesis records the current round's antithesis.
func (t *Tracker) SetAntithesis(content string) error {
	return t.withCurrent(func(r *Round) { r.Antithesis = content })
}

// Synthesize closes the current round with a synthesis.
func (t *Tracker) Synthesize(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("dialectic: synthesis must not be empty")
	}
	return t.withCurrent(func(r *Round) { r.Synthesis = content })
}

// AddArgument scores and appends an argument to the current round.
// The argument's Strength field is overwritten with the computed score.
func (t *Tracker) AddArgument(arg Argument) error {
	arg.Strength = ScoreArgument(arg)
	return t.withCurrent(func(r *Round) {
		r.Arguments = append(r.Arguments, arg)
		if arg.Supporter != "" {
			t.participants[arg.Supporter] = struct{}{}
		}
	})
}

// withCurrent runs fn against the open round.
func (t *Tracker) withCurrent(fn func(*Round)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rounds) == 0 {
		return fmt.Errorf("dialectic: no round in progress")
	}
	fn(&t.rounds[len(t.rounds)-1])
	return nil
}

// Rounds returns a copy of all rounds in order.
func (t *Tracker) Rounds() []Round {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Round, len(t.rounds))
	copy(out, t.rounds)
	for i := range out {
		out[i].Arguments = append([]Argument(nil), t.rounds[i].Arguments...)
	}
	return out
}

// Convergence measures the similarity between round n's synthesis and round
// n+1's thesis (n is 1-based). Similarity is token overlap over significant
// (length > 3) lowercase tokens.
func (t *Tracker) Convergence(n int) (float64, Relation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n < 1 || n >= len(t.rounds) {
		return 0, RelationNeutral, fmt.Errorf("dialectic: no round pair (%d, %d)", n, n+1)
	}

	sim := tokenSimilarity(t.rounds[n-1].Synthesis, t.rounds[n].Thesis)
	switch {
	case sim > convergenceThreshold:
		return sim, RelationConvergence, nil
	case sim < divergenceThreshold:
		return sim, RelationDivergence, nil
	default:
		return sim, RelationNeutral, nil
	}
}

// Confidence scores the whole trace: the fraction of rounds holding a
// synthesis, boosted 0.05 per round (up to +0.3) and 0.05 per distinct
// contributing participant (up to +0.2), capped at 1.
func (t *Tracker) Confidence() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rounds) == 0 {
		return 0
	}

	synthesized := 0
	for _, r := range t.rounds {
		if r.Synthesis != "" {
			synthesized++
		}
	}

	conf := float64(synthesized) / float64(len(t.rounds))
	conf += minFloat(0.3, 0.05*float64(len(t.rounds)))
	conf += minFloat(0.2, 0.05*float64(len(t.participants)))
	return minFloat(1, conf)
}

// ScoreArgument computes an argument's strength: base 0.5, +0.1 per
// evidence item (contribution capped at 0.3), up to +0.2 from reasoning
// length, and +0.1 when the position length falls in the well-formed
// 50-500 character range. Capped at 1.
func ScoreArgument(arg Argument) float64 {
	score := 0.5
	score += minFloat(0.3, 0.1*float64(len(arg.Evidence)))
	score += 0.2 * minFloat(1, float64(len(arg.Reasoning))/400)
	if n := len(arg.Position); n >= 50 && n <= 500 {
		score += 0.1
	}
	return minFloat(1, score)
}

// tokenSimilarity computes the overlap coefficient between the significant
// token sets of two texts: |A ∩ B| / min(|A|, |B|). Tokens shorter than
// four characters are ignored.
func tokenSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}

	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(shared) / float64(smaller)
}

// tokenSet extracts the significant lowercase tokens from a text.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) > 3 {
			set[tok] = struct{}{}
		}
	}
	return set
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
