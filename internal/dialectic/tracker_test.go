package dialectic

import (
	"math"
	"testing"
)

func TestBeginRoundRequiresSynthesis(t *testing.T) {
	tr := NewTracker()

	n, err := tr.BeginRound()
	if err != nil {
		t.Fatalf("BeginRound() error = %v", err)
	}
	if n != 1 {
		t.Errorf("BeginRound() = %d, want 1", n)
	}

	if _, err := tr.BeginRound(); err == nil {
		t.Fatal("expected error beginning a round before the current one is synthesized")
	}

	if err := tr.Synthesize("we agree on a phased rollout"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	n, err = tr.BeginRound()
	if err != nil {
		t.Fatalf("BeginRound() after synthesis error = %v", err)
	}
	if n != 2 {
		t.Errorf("BeginRound() = %d, want 2", n)
	}
}

func TestOperationsRequireOpenRound(t *testing.T) {
	tr := NewTracker()

	if err := tr.SetThesis("premature"); err == nil {
		t.Error("SetThesis before BeginRound should error")
	}
	if err := tr.Synthesize("premature"); err == nil {
		t.Error("Synthesize before BeginRound should error")
	}
	if err := tr.AddArgument(Argument{Position: "premature"}); err == nil {
		t.Error("AddArgument before BeginRound should error")
	}
}

func TestEmptySynthesisRejected(t *testing.T) {
	tr := NewTracker()
	tr.BeginRound()

	if err := tr.Synthesize("   "); err == nil {
		t.Error("expected error for blank synthesis")
	}
}

// The worked example: round 1 synthesis "we should phase deployment
// gradually" against round 2 thesis "phase deployment gradually across
// regions" measures above the convergence threshold.
func TestConvergenceScenario(t *testing.T) {
	tr := NewTracker()

	tr.BeginRound()
	tr.SetThesis("deployment should be all at once")
	tr.SetAntithesis("big-bang deployment is too risky")
	tr.Synthesize("we should phase deployment gradually")

	tr.BeginRound()
	tr.SetThesis("phase deployment gradually across regions")

	sim, rel, err := tr.Convergence(1)
	if err != nil {
		t.Fatalf("Convergence() error = %v", err)
	}
	if sim <= 0.7 {
		t.Errorf("similarity = %v, want > 0.7", sim)
	}
	if rel != RelationConvergence {
		t.Errorf("relation = %q, want %q", rel, RelationConvergence)
	}
}

func TestDivergence(t *testing.T) {
	tr := NewTracker()

	tr.BeginRound()
	tr.Synthesize("adopt kubernetes for orchestration workloads")

	tr.BeginRound()
	tr.SetThesis("rewrite billing invoices using spreadsheets")

	sim, rel, err := tr.Convergence(1)
	if err != nil {
		t.Fatalf("Convergence() error = %v", err)
	}
	if sim >= 0.3 {
		t.Errorf("similarity = %v, want < 0.3", sim)
	}
	if rel != RelationDivergence {
		t.Errorf("relation = %q, want %q", rel, RelationDivergence)
	}
}

func TestConvergenceOutOfRange(t *testing.T) {
	tr := NewTracker()
	tr.BeginRound()

	if _, _, err := tr.Convergence(1); err == nil {
		t.Error("expected error when no consecutive round pair exists")
	}
}

func TestScoreArgument(t *testing.T) {
	longPosition := "We should phase the deployment gradually across regions to contain risk."

	tests := []struct {
		name string
		arg  Argument
		want float64
	}{
		{
			name: "bare position",
			arg:  Argument{Position: "ship it"},
			want: 0.5,
		},
		{
			name: "evidence capped at three items",
			arg:  Argument{Position: "x", Evidence: []string{"a", "b", "c", "d", "e"}},
			want: 0.8,
		},
		{
			name: "well-formed position bonus",
			arg:  Argument{Position: longPosition},
			want: 0.6,
		},
		{
			name: "full reasoning bonus",
			arg: Argument{
				Position:  "x",
				Reasoning: string(make([]byte, 400)),
			},
			want: 0.7,
		},
		{
			name: "everything caps at one",
			arg: Argument{
				Position:  longPosition,
				Evidence:  []string{"a", "b", "c", "d"},
				Reasoning: string(make([]byte, 1000)),
			},
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreArgument(tt.arg)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ScoreArgument() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddArgumentScoresAndTracksParticipants(t *testing.T) {
	tr := NewTracker()
	tr.BeginRound()

	err := tr.AddArgument(Argument{
		Position:  "phased rollout",
		Evidence:  []string{"incident history"},
		Supporter: "skeptic",
	})
	if err != nil {
		t.Fatalf("AddArgument() error = %v", err)
	}

	rounds := tr.Rounds()
	if len(rounds) != 1 || len(rounds[0].Arguments) != 1 {
		t.Fatalf("expected one argument in one round, got %+v", rounds)
	}
	if got := rounds[0].Arguments[0].Strength; math.Abs(got-0.6) > 1e-9 {
		t.Errorf("Strength = %v, want 0.6", got)
	}
}

func TestConfidence(t *testing.T) {
	tr := NewTracker()
	if tr.Confidence() != 0 {
		t.Errorf("Confidence() = %v, want 0 for empty trace", tr.Confidence())
	}

	tr.BeginRound()
	tr.AddArgument(Argument{Position: "a", Supporter: "technocrat"})
	tr.AddArgument(Argument{Position: "b", Supporter: "ethicist"})
	tr.Synthesize("synthesis one")

	// fraction 1 + round boost 0.05 + participant boost 0.1, capped at 1
	if got := tr.Confidence(); got != 1 {
		t.Errorf("Confidence() = %v, want 1", got)
	}

	// An unsynthesized second round drags the fraction down.
	tr.BeginRound()
	got := tr.Confidence()
	want := 0.5 + 0.1 + 0.1 // fraction + 2-round boost + 2-participant boost
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Confidence() = %v, want %v", got, want)
	}
}

func TestRoundsReturnsCopy(t *testing.T) {
	tr := NewTracker()
	tr.BeginRound()
	tr.SetThesis("original")

	rounds := tr.Rounds()
	rounds[0].Thesis = "mutated"

	if tr.Rounds()[0].Thesis != "original" {
		t.Error("Rounds() must return a copy, not a view of internal state")
	}
}
