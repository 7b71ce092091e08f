package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/errors"
	"github.com/conclave-ai/conclave/internal/event"
	"github.com/conclave-ai/conclave/internal/guard"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/internal/persona"
	"github.com/conclave-ai/conclave/internal/responder"
	"github.com/conclave-ai/conclave/internal/responder/respondertest"
	"github.com/conclave-ai/conclave/internal/scheduler"
	"github.com/conclave-ai/conclave/internal/store"
	"github.com/conclave-ai/conclave/internal/vote"
)

func newTestOrchestrator(t *testing.T, r responder.Responder) (*Orchestrator, *event.Bus) {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	bus := event.NewBus()
	g := guard.New(guard.Config{
		MaxDepth: scheduler.MaxParallel,
		Cooldown: time.Nanosecond,
	})
	o := New(st, bus, g, r, persona.NewRegistry(), logging.NewTestLogger(), Config{})
	return o, bus
}

// statusRecorder captures the status trajectory of a session.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (sr *statusRecorder) record(e event.Event) {
	sc, ok := e.(event.StatusChangeEvent)
	if !ok {
		return
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.statuses = append(sr.statuses, sc.Status)
}

func (sr *statusRecorder) trajectory() []string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]string(nil), sr.statuses...)
}

func TestConveneDeliberation(t *testing.T) {
	scripted := respondertest.NewScripted().
		Script("speaker", "The Council convenes to weigh the question.").
		Script("technocrat", "The data favors a staged approach.").
		Script("ethicist", "We must consider who bears the cost.")

	o, bus := newTestOrchestrator(t, scripted)
	rec := &statusRecorder{}
	bus.SubscribeAll(rec.record)

	env := o.Convene(context.Background(), ConveneRequest{
		Topic: "universal basic compute",
		Mode:  "deliberation",
		Settings: &council.Settings{
			MaxConcurrentRequests: 2,
			TurnTimeout:           time.Second,
			DebateRounds:          2,
		},
	})

	if env.Status != StatusSuccess {
		t.Fatalf("envelope status = %s, errors = %v", env.Status, env.Errors)
	}
	s, ok := env.Data.(*council.Session)
	if !ok {
		t.Fatalf("envelope data is %T, want *council.Session", env.Data)
	}
	if s.Status != council.StatusAdjourned {
		t.Errorf("session status = %s, want adjourned", s.Status)
	}
	if len(s.Dialectic) != 2 {
		t.Errorf("dialectic rounds = %d, want 2", len(s.Dialectic))
	}
	if s.DialecticConfidence <= 0 || s.DialecticConfidence > 1 {
		t.Errorf("dialectic confidence = %v", s.DialecticConfidence)
	}

	// Trajectory must pass through opening and never skip it.
	got := rec.trajectory()
	want := []string{"opening", "debating", "resolving", "adjourned"}
	if len(got) != len(want) {
		t.Fatalf("trajectory = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trajectory = %v, want %v", got, want)
		}
	}

	if env.Metadata["dialecticRounds"] != 2 {
		t.Errorf("metadata dialecticRounds = %v", env.Metadata["dialecticRounds"])
	}
}

func TestConveneProposalVote(t *testing.T) {
	// The worked scenario: YEA 8, YEA 6, NAY 9 at equal weight passes.
	scripted := respondertest.NewScripted()
	scripted.Default = "I defer to the evidence presented."
	scripted.Script("technocrat", "Round one thoughts.", "VOTE: YEA\nCONFIDENCE: 8\nREASON: feasible")
	scripted.Script("ethicist", "Round one thoughts.", "VOTE: YEA\nCONFIDENCE: 6\nREASON: acceptable")
	scripted.Script("skeptic", "Round one thoughts.", "VOTE: NAY\nCONFIDENCE: 9\nREASON: unproven")

	o, bus := newTestOrchestrator(t, scripted)
	rec := &statusRecorder{}
	bus.SubscribeAll(rec.record)

	var voteEvents []event.VoteEvent
	bus.Subscribe("session.vote", func(e event.Event) {
		if ve, ok := e.(event.VoteEvent); ok {
			voteEvents = append(voteEvents, ve)
		}
	})

	env := o.Convene(context.Background(), ConveneRequest{
		Topic:      "adopt the phased rollout motion",
		Mode:       "proposal",
		Councilors: []string{"technocrat", "ethicist", "skeptic"},
		Settings: &council.Settings{
			MaxConcurrentRequests: 3,
			TurnTimeout:           time.Second,
			DebateRounds:          1,
		},
	})

	if env.Status != StatusSuccess {
		t.Fatalf("envelope status = %s, errors = %v", env.Status, env.Errors)
	}
	s := env.Data.(*council.Session)
	if s.Vote == nil {
		t.Fatal("no vote result attached")
	}
	if s.Vote.Yeas != 2 || s.Vote.Nays != 1 || s.Vote.Abstains != 0 {
		t.Errorf("tally = %d/%d/%d, want 2/1/0", s.Vote.Yeas, s.Vote.Nays, s.Vote.Abstains)
	}
	if s.Vote.Outcome != vote.OutcomePassed {
		t.Errorf("outcome = %s, want PASSED", s.Vote.Outcome)
	}
	if s.Vote.Yeas+s.Vote.Nays+s.Vote.Abstains != len(s.Vote.Ballots) {
		t.Error("counts do not partition the ballots")
	}

	if len(voteEvents) != 1 {
		t.Fatalf("vote events = %d, want 1", len(voteEvents))
	}
	if voteEvents[0].Outcome != "PASSED" {
		t.Errorf("vote event outcome = %s", voteEvents[0].Outcome)
	}

	// voting must appear in the trajectory, after debating.
	traj := rec.trajectory()
	sawVoting := false
	for _, st := range traj {
		if st == "voting" {
			sawVoting = true
		}
	}
	if !sawVoting {
		t.Errorf("trajectory %v never reached voting", traj)
	}

	if env.Metadata["voteOutcome"] != "PASSED" {
		t.Errorf("metadata voteOutcome = %v", env.Metadata["voteOutcome"])
	}
}

func TestConvenePredictionEnsemble(t *testing.T) {
	scripted := respondertest.NewScripted()
	scripted.Script("technocrat", "OUTCOME: shipped\nPROBABILITY: 60\nTIMELINE: Q3")
	scripted.Script("visionary", "OUTCOME: shipped\nPROBABILITY: 70\nTIMELINE: Q2")
	scripted.Script("skeptic", "OUTCOME: delayed\nPROBABILITY: 55\nTIMELINE: Q4")

	o, _ := newTestOrchestrator(t, scripted)
	env := o.Convene(context.Background(), ConveneRequest{
		Topic:      "will the feature ship this year",
		Mode:       "prediction",
		Councilors: []string{"technocrat", "visionary", "skeptic"},
		Settings: &council.Settings{
			MaxConcurrentRequests: 3,
			TurnTimeout:           time.Second,
			DebateRounds:          1,
		},
	})

	if env.Status != StatusSuccess {
		t.Fatalf("envelope status = %s, errors = %v", env.Status, env.Errors)
	}
	s := env.Data.(*council.Session)
	if s.Prediction == nil {
		t.Fatal("no ensemble attached")
	}
	if len(s.Prediction.Predictions) != 3 {
		t.Errorf("predictions = %d, want 3", len(s.Prediction.Predictions))
	}
	if s.Prediction.Outcome != "shipped" {
		t.Errorf("modal outcome = %q, want shipped", s.Prediction.Outcome)
	}
	if s.Prediction.Interval.Lower > s.Prediction.MeanProbability ||
		s.Prediction.MeanProbability > s.Prediction.Interval.Upper {
		t.Errorf("interval [%v, %v] does not bracket mean %v",
			s.Prediction.Interval.Lower, s.Prediction.Interval.Upper, s.Prediction.MeanProbability)
	}
}

func TestFailingResponderStillCompletes(t *testing.T) {
	always := responder.Func(func(ctx context.Context, req responder.Request) (string, error) {
		return "", errors.NewResponderError("provider down", nil).WithParticipant(req.Participant.ID)
	})

	o, _ := newTestOrchestrator(t, always)
	env := o.Convene(context.Background(), ConveneRequest{
		Topic: "resilience under total failure",
		Mode:  "deliberation",
		Settings: &council.Settings{
			MaxConcurrentRequests: 2,
			TurnTimeout:           time.Second,
			DebateRounds:          1,
		},
	})

	// Turn failures surface as warnings, never as a protocol failure.
	if env.Status != StatusWarning {
		t.Fatalf("envelope status = %s, want warning (warnings: %v)", env.Status, env.Warnings)
	}
	if len(env.Warnings) == 0 {
		t.Error("expected per-turn warnings")
	}

	s := env.Data.(*council.Session)
	if s.Status != council.StatusAdjourned {
		t.Fatalf("session status = %s, want adjourned", s.Status)
	}

	errMsgs := 0
	for _, m := range s.Transcript {
		if strings.HasPrefix(m.Content, "[Error:") {
			errMsgs++
		}
	}
	if errMsgs == 0 {
		t.Error("expected error messages in the transcript")
	}
}

func TestConveneValidation(t *testing.T) {
	o, _ := newTestOrchestrator(t, respondertest.NewScripted())

	env := o.Convene(context.Background(), ConveneRequest{
		Topic:      "",
		Mode:       "plebiscite",
		Councilors: []string{"lobbyist"},
	})

	if env.Status != StatusError {
		t.Fatalf("envelope status = %s, want error", env.Status)
	}
	if env.SessionID != "" {
		t.Error("no session may exist after a validation failure")
	}
	if len(env.Errors) != 3 {
		t.Fatalf("got %d field errors, want 3: %+v", len(env.Errors), env.Errors)
	}

	fields := map[string]bool{}
	for _, fe := range env.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"topic", "mode", "councilors"} {
		if !fields[want] {
			t.Errorf("missing field error for %q", want)
		}
	}
}

func TestStopAbortsAtBoundary(t *testing.T) {
	scripted := respondertest.NewScripted()
	scripted.Delay = 30 * time.Millisecond

	o, _ := newTestOrchestrator(t, scripted)

	done := make(chan Envelope, 1)
	go func() {
		done <- o.Convene(context.Background(), ConveneRequest{
			Topic: "a long deliberation",
			Mode:  "deliberation",
			Settings: &council.Settings{
				MaxConcurrentRequests: 1,
				TurnTimeout:           time.Second,
				DebateRounds:          50,
			},
		})
	}()

	// Wait until the session registers, then stop it.
	var sessionID string
	deadline := time.After(5 * time.Second)
	for sessionID == "" {
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(5 * time.Millisecond):
		}
		if sums, err := o.Registry().List(context.Background()); err == nil && len(sums) > 0 {
			sessionID = sums[0].ID
		}
	}
	if err := o.Stop(sessionID); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case env := <-done:
		s := env.Data.(*council.Session)
		if s.Status != council.StatusAdjourned {
			t.Errorf("session status = %s, want adjourned", s.Status)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Convene did not return after Stop")
	}

	if err := o.Stop(sessionID); !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("Stop() after completion error = %v, want ErrSessionNotFound", err)
	}
}

func TestStopLetsInFlightCallFinish(t *testing.T) {
	scripted := respondertest.NewScripted()
	scripted.Delay = 400 * time.Millisecond

	// Record how every responder call settled so a mid-call abort would
	// show up as a context.Canceled error.
	var mu sync.Mutex
	var callErrs []error
	recording := responder.Func(func(ctx context.Context, req responder.Request) (string, error) {
		content, err := scripted.Respond(ctx, req)
		mu.Lock()
		callErrs = append(callErrs, err)
		mu.Unlock()
		return content, err
	})

	o, _ := newTestOrchestrator(t, recording)

	done := make(chan Envelope, 1)
	go func() {
		done <- o.Convene(context.Background(), ConveneRequest{
			Topic: "a slow deliberation",
			Mode:  "deliberation",
			Settings: &council.Settings{
				MaxConcurrentRequests: 1,
				TurnTimeout:           5 * time.Second,
				DebateRounds:          50,
			},
		})
	}()

	var sessionID string
	deadline := time.After(5 * time.Second)
	for sessionID == "" {
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(5 * time.Millisecond):
		}
		if sums, err := o.Registry().List(context.Background()); err == nil && len(sums) > 0 {
			sessionID = sums[0].ID
		}
	}

	// Let the opening turn get into flight, then stop mid-call.
	time.Sleep(100 * time.Millisecond)
	if err := o.Stop(sessionID); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case env := <-done:
		s := env.Data.(*council.Session)
		if s.Status != council.StatusAdjourned {
			t.Errorf("session status = %s, want adjourned", s.Status)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Convene did not return after Stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(callErrs) == 0 {
		t.Fatal("no responder call was in flight when the session stopped")
	}
	for i, err := range callErrs {
		if errors.Is(err, context.Canceled) {
			t.Errorf("call %d was aborted mid-flight: %v", i, err)
		}
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	scripted := respondertest.NewScripted()
	scripted.Delay = 20 * time.Millisecond

	o, bus := newTestOrchestrator(t, scripted)
	rec := &statusRecorder{}
	bus.SubscribeAll(rec.record)

	done := make(chan Envelope, 1)
	go func() {
		done <- o.Convene(context.Background(), ConveneRequest{
			Topic: "pausable deliberation",
			Mode:  "deliberation",
			Settings: &council.Settings{
				MaxConcurrentRequests: 1,
				TurnTimeout:           time.Second,
				DebateRounds:          5,
			},
		})
	}()

	var sessionID string
	deadline := time.After(5 * time.Second)
	for sessionID == "" {
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(5 * time.Millisecond):
		}
		if sums, err := o.Registry().List(context.Background()); err == nil && len(sums) > 0 {
			sessionID = sums[0].ID
		}
	}

	if err := o.Pause(sessionID); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	// Second pause is rejected.
	if err := o.Pause(sessionID); err == nil {
		t.Error("second Pause() should error")
	}

	// Wait for the loop to actually park.
	parked := false
	for i := 0; i < 200 && !parked; i++ {
		for _, st := range rec.trajectory() {
			if st == "paused" {
				parked = true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !parked {
		t.Fatal("session never reached paused")
	}

	if err := o.Resume(sessionID); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	select {
	case env := <-done:
		s := env.Data.(*council.Session)
		if s.Status != council.StatusAdjourned {
			t.Errorf("final status = %s, want adjourned", s.Status)
		}
		if s.PausedFrom != "" {
			t.Errorf("PausedFrom = %s, want cleared", s.PausedFrom)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Convene did not finish after Resume")
	}
}

func TestRegistryDeleteRefusesRunning(t *testing.T) {
	scripted := respondertest.NewScripted()
	scripted.Delay = 50 * time.Millisecond

	o, _ := newTestOrchestrator(t, scripted)

	done := make(chan Envelope, 1)
	go func() {
		done <- o.Convene(context.Background(), ConveneRequest{
			Topic: "short session",
			Mode:  "inquiry",
			Settings: &council.Settings{
				MaxConcurrentRequests: 1,
				TurnTimeout:           time.Second,
				DebateRounds:          1,
			},
		})
	}()

	var sessionID string
	deadline := time.After(5 * time.Second)
	for sessionID == "" {
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(5 * time.Millisecond):
		}
		if sums, err := o.Registry().List(context.Background()); err == nil && len(sums) > 0 {
			sessionID = sums[0].ID
		}
	}

	if err := o.Registry().Delete(context.Background(), sessionID); err == nil {
		t.Error("Delete() of a running session should error")
	}

	<-done
	if err := o.Registry().Delete(context.Background(), sessionID); err != nil {
		t.Errorf("Delete() after completion error = %v", err)
	}
	if _, err := o.Registry().Get(context.Background(), sessionID); !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrSessionNotFound", err)
	}
}

func TestTranscriptSequenceMonotonic(t *testing.T) {
	o, _ := newTestOrchestrator(t, respondertest.NewScripted())
	env := o.Convene(context.Background(), ConveneRequest{
		Topic: "sequencing",
		Mode:  "deliberation",
		Settings: &council.Settings{
			MaxConcurrentRequests: 3,
			TurnTimeout:           time.Second,
			DebateRounds:          2,
		},
	})

	s := env.Data.(*council.Session)
	for i, m := range s.Transcript {
		if m.Seq != i {
			t.Fatalf("Seq[%d] = %d, transcript ordering broken", i, m.Seq)
		}
	}
}
