// Package orchestrator composes the engines into the session drive
// loop: it owns each session from creation to adjournment, decides turn
// order and which aggregator a mode invokes, and emits lifecycle events.
//
// Concurrency discipline is single-writer-per-session: the drive loop is
// the only mutator of a session's transcript, status, and aggregates.
// Parallelism exists only inside the scheduler's bounded fan-out.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/dialectic"
	"github.com/conclave-ai/conclave/internal/errors"
	"github.com/conclave-ai/conclave/internal/event"
	"github.com/conclave-ai/conclave/internal/forecast"
	"github.com/conclave-ai/conclave/internal/guard"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/internal/persona"
	"github.com/conclave-ai/conclave/internal/responder"
	"github.com/conclave-ai/conclave/internal/scheduler"
	"github.com/conclave-ai/conclave/internal/store"
	"github.com/conclave-ai/conclave/internal/vote"
)

// Config carries the orchestrator-level knobs. Zero values fall back to
// the documented defaults.
type Config struct {
	// Settings are the defaults for sessions that do not override them.
	Settings council.Settings
	// Vote holds the tally thresholds.
	Vote vote.Config
	// ConfidenceLevel for prediction intervals, default 0.95.
	ConfidenceLevel float64
}

// Orchestrator drives council sessions. All collaborators are injected;
// nothing reaches for a global.
type Orchestrator struct {
	store     store.Store
	bus       *event.Bus
	guard     *guard.Guard
	responder responder.Responder
	personas  *persona.Registry
	logger    *logging.Logger
	machine   *council.Machine
	cal       *forecast.Calibration
	registry  *Registry
	cfg       Config
}

// New creates an orchestrator.
func New(st store.Store, bus *event.Bus, g *guard.Guard, r responder.Responder, personas *persona.Registry, logger *logging.Logger, cfg Config) *Orchestrator {
	if cfg.ConfidenceLevel == 0 {
		cfg.ConfidenceLevel = 0.95
	}
	if cfg.Settings.MaxConcurrentRequests == 0 {
		cfg.Settings = council.DefaultSettings()
	}
	return &Orchestrator{
		store:     st,
		bus:       bus,
		guard:     g,
		responder: r,
		personas:  personas,
		logger:    logger.WithComponent("orchestrator"),
		machine:   council.NewMachine(),
		cal:       forecast.NewCalibration(),
		registry:  NewRegistry(st),
		cfg:       cfg,
	}
}

// Registry exposes the session arena for lookup, listing, deletion, and
// the pause/resume/stop levers.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Calibration exposes the participant calibration tracker so ground
// truth can be recorded after prediction sessions resolve.
func (o *Orchestrator) Calibration() *forecast.Calibration { return o.cal }

// Pause flags a running session to pause at its next round boundary.
func (o *Orchestrator) Pause(sessionID string) error { return o.registry.Pause(sessionID) }

// Resume lifts a pause.
func (o *Orchestrator) Resume(sessionID string) error { return o.registry.Resume(sessionID) }

// Stop aborts a running session at its next safe boundary.
func (o *Orchestrator) Stop(sessionID string) error { return o.registry.Stop(sessionID) }

// ConveneRequest is the tool-call input for running a session.
type ConveneRequest struct {
	Topic string `json:"topic"`
	Mode  string `json:"mode"`
	// Councilors names personas from the registry. Empty uses the
	// default roster. Ignored when Participants is set.
	Councilors []string `json:"councilors,omitempty"`
	// Participants is an explicit roster snapshot.
	Participants []council.Participant `json:"participants,omitempty"`
	// Settings overrides the orchestrator defaults when non-nil.
	Settings *council.Settings `json:"settings,omitempty"`
}

// Convene runs a full session synchronously and returns the unified
// envelope. Validation failures are rejected before any session exists;
// everything after that is captured in the envelope, not raised.
func (o *Orchestrator) Convene(ctx context.Context, req ConveneRequest) Envelope {
	b := newEnvelope("convene_council")

	mode, roster, settings, verrs := o.validate(req)
	if len(verrs) > 0 {
		return b.failure(verrs...)
	}

	s := council.NewSession(strings.TrimSpace(req.Topic), mode, roster, settings)
	o.logger.Info("session convened",
		"session_id", s.ID,
		"mode", string(mode),
		"participants", len(roster),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrl := newControl(cancel)
	o.registry.add(s.ID, ctrl)
	defer o.registry.remove(s.ID)
	defer o.guard.Release(s.ID)

	warnings := o.drive(runCtx, s, ctrl)
	return b.success(s, warnings)
}

// validate checks the request and resolves the roster. All failures are
// collected so the caller sees every bad field at once.
func (o *Orchestrator) validate(req ConveneRequest) (council.Mode, []council.Participant, council.Settings, []error) {
	var verrs []error

	if strings.TrimSpace(req.Topic) == "" {
		verrs = append(verrs, errors.NewValidationError("topic", "topic is required"))
	}

	mode := council.ModeDeliberation
	if req.Mode != "" {
		parsed, ok := council.ParseMode(req.Mode)
		if !ok {
			verrs = append(verrs, errors.NewValidationError("mode", fmt.Sprintf("unknown mode %q", req.Mode)))
		} else {
			mode = parsed
		}
	}

	roster := req.Participants
	if len(roster) == 0 {
		resolved, err := persona.Roster(req.Councilors)
		if err != nil {
			verrs = append(verrs, errors.NewValidationError("councilors", err.Error()))
		}
		roster = resolved
	}
	enabled := 0
	for _, p := range roster {
		if p.Enabled {
			enabled++
		}
	}
	if len(verrs) == 0 && enabled == 0 {
		verrs = append(verrs, errors.NewValidationError("participants", "at least one enabled participant is required"))
	}

	settings := o.cfg.Settings
	if req.Settings != nil {
		settings = *req.Settings
	}
	if settings.TurnTimeout <= 0 {
		settings.TurnTimeout = 30 * time.Second
	}
	if settings.DebateRounds <= 0 {
		settings.DebateRounds = 2
	}

	return mode, roster, settings, verrs
}

// errStopped aborts the drive loop at the next safe boundary.
var errStopped = errors.New("session stopped")

// drive runs the session to adjournment. It never returns an error:
// every failure becomes transcript data, a degraded flag, or a terminal
// error on the session itself.
func (o *Orchestrator) drive(ctx context.Context, s *council.Session, ctrl *control) []string {
	pool := scheduler.NewPool(o.responder, o.guard, o.logger, s.Settings.MaxConcurrentRequests, s.Settings.TurnTimeout)
	run := &sessionRun{o: o, s: s, ctrl: ctrl, pool: pool}

	err := run.phases(ctx)
	if err != nil && err != errStopped {
		// Internal fault: record, degrade, still adjourn.
		s.Degraded = true
		s.TerminalError = err.Error()
		o.bus.Publish(event.NewErrorEvent(s.ID, err.Error(), string(errors.CategoryOf(err))))
		o.logger.Error("session drive fault", "session_id", s.ID, "error", err.Error())
	}

	if !council.Terminal(s.Status) {
		if err == errStopped {
			run.appendSystem("Session stopped by request.")
		}
		if terr := run.transition(ctx, council.StatusAdjourned); terr != nil {
			// Should be unreachable: adjourned is legal from every
			// non-terminal state.
			s.Status = council.StatusAdjourned
			run.save(ctx)
		}
	}

	o.bus.Publish(event.NewSessionCompletedEvent(s.ID, string(s.Mode), len(s.Transcript), s.Degraded))
	o.logger.Info("session adjourned",
		"session_id", s.ID,
		"messages", len(s.Transcript),
		"degraded", s.Degraded,
	)
	return run.warnings
}

// sessionRun is the single-writer context for one session's drive loop.
type sessionRun struct {
	o        *Orchestrator
	s        *council.Session
	ctrl     *control
	pool     *scheduler.Pool
	tracker  *dialectic.Tracker
	warnings []string
}

// phases advances the session through its mode's phase plan.
func (r *sessionRun) phases(ctx context.Context) error {
	if err := r.transition(ctx, council.StatusOpening); err != nil {
		return err
	}
	r.appendSystem("Session convened: " + r.s.Topic)
	r.speakerTurn(ctx, openingPrompt(r.s.Topic, r.s.Mode))

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	if err := r.transition(ctx, council.StatusDebating); err != nil {
		return err
	}

	switch r.s.Mode {
	case council.ModeProposal:
		return r.proposalPhases(ctx)
	case council.ModePrediction:
		return r.predictionPhases(ctx)
	case council.ModeInquiry:
		return r.inquiryPhases(ctx)
	case council.ModeSwarm, council.ModeSwarmCoding:
		return r.swarmPhases(ctx)
	default:
		return r.deliberationPhases(ctx)
	}
}

// deliberationPhases covers deliberation and research: tracked debate
// rounds, each closed by a speaker synthesis that feeds the dialectical
// trace, then a resolving close.
func (r *sessionRun) deliberationPhases(ctx context.Context) error {
	r.tracker = dialectic.NewTracker()

	for round := 1; round <= r.s.Settings.DebateRounds; round++ {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}

		if _, err := r.tracker.BeginRound(); err != nil {
			return err
		}
		results := r.councilRound(ctx, r.s.Councilors(),
			contributionPrompt(r.s.Topic, r.s.Mode, round, r.s.Settings.EconomyMode), nil)
		r.trackRound(results)

		synthesis := r.speakerTurn(ctx, synthesisPrompt(r.s))
		if synthesis == "" {
			synthesis = "The round closed without a synthesis from the Speaker."
		}
		if err := r.tracker.Synthesize(synthesis); err != nil {
			return err
		}
		r.pool.CompleteRound(r.s.ID)
		r.progressDelay(ctx)
	}

	if err := r.transition(ctx, council.StatusResolving); err != nil {
		return err
	}
	r.s.Dialectic = r.tracker.Rounds()
	r.s.DialecticConfidence = r.tracker.Confidence()
	r.appendSystem(fmt.Sprintf("Deliberation closed after %d rounds (synthesis confidence %.2f).",
		len(r.s.Dialectic), r.s.DialecticConfidence))
	r.save(ctx)
	return nil
}

// trackRound feeds a round of contributions into the dialectical trace:
// the first reply is the round's thesis, the second its antithesis, and
// every reply joins as a scored argument.
func (r *sessionRun) trackRound(results []scheduler.Result) {
	spoken := 0
	for _, res := range results {
		if res.Err != nil || res.Content == "" {
			continue
		}
		switch spoken {
		case 0:
			r.tracker.SetThesis(res.Content)
		case 1:
			r.tracker.SetAntithesis(res.Content)
		}
		spoken++
		r.tracker.AddArgument(dialectic.Argument{
			Position:  res.Content,
			Supporter: res.Participant.ID,
		})
	}
}

// proposalPhases: debate rounds, a ballot round, and a reconciliation
// loop when agreement is too low, then the formal vote and ruling.
// Ballots may be re-cast during reconciliation; the tally always uses
// each participant's latest ballot.
func (r *sessionRun) proposalPhases(ctx context.Context) error {
	reconciled := false

	for {
		for round := 1; round <= r.s.Settings.DebateRounds; round++ {
			if err := r.checkpoint(ctx); err != nil {
				return err
			}
			r.councilRound(ctx, r.s.Councilors(),
				contributionPrompt(r.s.Topic, r.s.Mode, round, r.s.Settings.EconomyMode), nil)
			r.pool.CompleteRound(r.s.ID)
			r.progressDelay(ctx)
		}

		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		r.councilRound(ctx, r.voters(), ballotPrompt(r.s.Topic), parseBallotAnnotation)
		r.pool.CompleteRound(r.s.ID)

		result := vote.Tally(r.latestBallots(), r.o.cfg.Vote)
		if result.Outcome != vote.OutcomeReconciliationNeeded || reconciled {
			break
		}

		// Low agreement: one reconciliation pass, then re-debate.
		reconciled = true
		if err := r.transition(ctx, council.StatusReconciling); err != nil {
			return err
		}
		r.speakerTurn(ctx, reconciliationPrompt(r.s.Topic))
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		if err := r.transition(ctx, council.StatusDebating); err != nil {
			return err
		}
	}

	if err := r.transition(ctx, council.StatusResolving); err != nil {
		return err
	}
	if err := r.transition(ctx, council.StatusVoting); err != nil {
		return err
	}

	result := vote.Tally(r.latestBallots(), r.o.cfg.Vote)
	r.s.Vote = &result
	msg := r.appendSystem(fmt.Sprintf("The vote is tallied: %d yea, %d nay, %d abstain. Outcome: %s (%s).",
		result.Yeas, result.Nays, result.Abstains, result.Outcome, result.ConsensusLabel))
	r.o.bus.Publish(event.NewVoteEvent(r.s.ID, msg.ID, string(result.Outcome),
		result.ConsensusScore, result.Yeas, result.Nays, result.Abstains))
	r.save(ctx)

	if err := r.transition(ctx, council.StatusEnacting); err != nil {
		return err
	}
	r.speakerTurn(ctx, synthesisPrompt(r.s))
	return nil
}

// predictionPhases: one forecast round, ensemble aggregation, then the
// speaker's final prediction.
func (r *sessionRun) predictionPhases(ctx context.Context) error {
	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.councilRound(ctx, r.forecasters(), predictionPrompt(r.s.Topic), parsePredictionAnnotation)
	r.pool.CompleteRound(r.s.ID)
	r.progressDelay(ctx)

	if err := r.transition(ctx, council.StatusResolving); err != nil {
		return err
	}

	preds := r.s.Predictions()
	if len(preds) > 0 {
		ensemble := forecast.Aggregate(preds, r.o.cal, r.o.cfg.ConfidenceLevel)
		r.s.Prediction = &ensemble
		r.appendSystem(fmt.Sprintf("Ensemble estimate: %.1f%% for %q (method %s, uncertainty %s).",
			ensemble.FinalProbability, ensemble.Outcome, ensemble.Method, ensemble.Uncertainty))
	} else {
		r.s.Degraded = true
		r.appendSystem("No usable predictions were collected; no ensemble estimate is available.")
	}
	r.save(ctx)

	r.speakerTurn(ctx, synthesisPrompt(r.s))
	return nil
}

// inquiryPhases: a single direct-answer round, no aggregate.
func (r *sessionRun) inquiryPhases(ctx context.Context) error {
	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.councilRound(ctx, r.s.Councilors(),
		contributionPrompt(r.s.Topic, r.s.Mode, 1, r.s.Settings.EconomyMode), nil)
	r.pool.CompleteRound(r.s.ID)
	return nil
}

// swarmPhases: one parallel fan-out round plus a speaker consolidation.
func (r *sessionRun) swarmPhases(ctx context.Context) error {
	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.councilRound(ctx, r.s.Councilors(),
		contributionPrompt(r.s.Topic, r.s.Mode, 1, r.s.Settings.EconomyMode), nil)
	r.pool.CompleteRound(r.s.ID)
	r.progressDelay(ctx)

	if err := r.transition(ctx, council.StatusResolving); err != nil {
		return err
	}
	r.speakerTurn(ctx, synthesisPrompt(r.s))
	return nil
}

// annotationParser attaches structured data to a successful turn's
// message.
type annotationParser func(res scheduler.Result, msg *council.Message)

func parseBallotAnnotation(res scheduler.Result, msg *council.Message) {
	if !res.Participant.Can(council.CapabilityVote) {
		return
	}
	ballot := parseBallot(res.Participant.ID, res.Participant.EffectiveWeight(), res.Content)
	msg.Ballot = &ballot
}

func parsePredictionAnnotation(res scheduler.Result, msg *council.Message) {
	if !res.Participant.Can(council.CapabilityPredict) {
		return
	}
	if pred, ok := parsePrediction(res.Participant.ID, res.Content); ok {
		msg.Prediction = &pred
	}
}

// councilRound fans one prompt out to the given participants and appends
// every settled result to the transcript in completion order.
func (r *sessionRun) councilRound(ctx context.Context, participants []council.Participant, prompt string, parse annotationParser) []scheduler.Result {
	transcript := append([]council.Message(nil), r.s.Transcript...)
	turns := make([]scheduler.Turn, 0, len(participants))
	for _, p := range participants {
		turns = append(turns, scheduler.Turn{
			Participant:  p,
			SystemPrompt: r.o.personas.Prompt(p.Persona),
			Topic:        r.s.Topic,
			Prompt:       prompt,
			Transcript:   transcript,
			MaxTokens:    r.maxTokens(),
		})
	}

	results := r.pool.RunRound(ctx, r.s.ID, turns)
	for _, res := range results {
		msg := r.appendResult(res)
		if parse != nil && res.Err == nil && !res.Skipped {
			parse(res, msg)
		}
	}
	r.save(ctx)
	return results
}

// speakerTurn runs a single framing turn for the speaker and returns its
// content, or empty when the turn failed.
func (r *sessionRun) speakerTurn(ctx context.Context, prompt string) string {
	speaker, ok := r.s.Speaker()
	if !ok {
		return ""
	}

	r.o.bus.Publish(event.NewSpeakerChangeEvent(r.s.ID, speaker.ID, true))
	defer r.o.bus.Publish(event.NewSpeakerChangeEvent(r.s.ID, speaker.ID, false))

	results := r.pool.RunRound(ctx, r.s.ID, []scheduler.Turn{{
		Participant:  speaker,
		SystemPrompt: r.o.personas.Prompt(speaker.Persona),
		Topic:        r.s.Topic,
		Prompt:       prompt,
		Transcript:   append([]council.Message(nil), r.s.Transcript...),
		MaxTokens:    r.maxTokens(),
	}})

	content := ""
	for _, res := range results {
		r.appendResult(res)
		if res.Err == nil && !res.Skipped {
			content = res.Content
		}
	}
	r.save(ctx)
	return content
}

// appendResult converts a settled turn into a transcript message.
// Failures and guard denials become messages too; the session proceeds.
func (r *sessionRun) appendResult(res scheduler.Result) *council.Message {
	var content string
	switch {
	case res.Skipped:
		content = fmt.Sprintf("[Skipped: %s]", res.Err.Error())
	case res.Err != nil:
		content = fmt.Sprintf("[Error: %s]", res.Err.Error())
		r.warnings = append(r.warnings, fmt.Sprintf("%s: %s", res.Participant.ID, res.Err.Error()))
		r.o.bus.Publish(event.NewErrorEvent(r.s.ID, res.Err.Error(), string(errors.CategoryOf(res.Err))))
	default:
		content = res.Content
	}

	msg := r.s.Append(res.Participant.ID, content)
	r.o.bus.Publish(event.NewSessionUpdateEvent(r.s.ID, msg.ID, msg.Author, msg.Content, msg.Seq))
	return msg
}

// appendSystem appends a System message and publishes the update.
func (r *sessionRun) appendSystem(content string) *council.Message {
	msg := r.s.Append(council.AuthorSystem, content)
	r.o.bus.Publish(event.NewSessionUpdateEvent(r.s.ID, msg.ID, msg.Author, msg.Content, msg.Seq))
	return msg
}

// transition applies a status change, saves, and publishes it.
func (r *sessionRun) transition(ctx context.Context, to council.Status) error {
	prev := r.s.Status
	if err := r.o.machine.Transition(r.s, to); err != nil {
		return err
	}
	r.o.bus.Publish(event.NewStatusChangeEvent(r.s.ID, string(prev), string(to)))
	r.o.logger.Debug("status change", "session_id", r.s.ID, "from", string(prev), "to", string(to))
	r.save(ctx)
	return nil
}

// checkpoint is consulted between rounds and before each new phase. It
// honors a stop immediately and parks the loop through a pause/resume
// cycle, moving the session through the paused side-state.
func (r *sessionRun) checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return errStopped
	}

	paused, resumed := r.ctrl.pauseState()
	if !paused {
		return nil
	}

	if err := r.o.machine.Pause(r.s); err != nil {
		return err
	}
	r.o.bus.Publish(event.NewStatusChangeEvent(r.s.ID, string(r.s.PausedFrom), string(council.StatusPaused)))
	r.save(ctx)
	r.o.logger.Info("session paused", "session_id", r.s.ID)

	select {
	case <-resumed:
	case <-ctx.Done():
	}

	if ctx.Err() != nil {
		// Stopped while paused; adjourn from the paused state.
		return errStopped
	}

	prev := r.s.Status
	if err := r.o.machine.Resume(r.s); err != nil {
		return err
	}
	r.o.bus.Publish(event.NewStatusChangeEvent(r.s.ID, string(prev), string(r.s.Status)))
	r.save(ctx)
	r.o.logger.Info("session resumed", "session_id", r.s.ID)
	return nil
}

// save persists the session. Storage failures degrade the session but
// never abort it.
func (r *sessionRun) save(ctx context.Context) {
	if err := r.o.store.Save(ctx, r.s); err != nil {
		r.s.Degraded = true
		r.o.logger.Error("session save failed", "session_id", r.s.ID, "error", err.Error())
	}
}

// progressDelay paces phases for presentation. Correctness never depends
// on it.
func (r *sessionRun) progressDelay(ctx context.Context) {
	if r.s.Settings.ProgressDelay <= 0 {
		return
	}
	select {
	case <-time.After(r.s.Settings.ProgressDelay):
	case <-ctx.Done():
	}
}

func (r *sessionRun) maxTokens() int {
	if r.s.Settings.EconomyMode {
		return 250
	}
	return 0
}

// voters are the enabled participants allowed to cast ballots.
func (r *sessionRun) voters() []council.Participant {
	var out []council.Participant
	for _, p := range r.s.Councilors() {
		if p.Can(council.CapabilityVote) {
			out = append(out, p)
		}
	}
	return out
}

// forecasters are the enabled participants allowed to predict.
func (r *sessionRun) forecasters() []council.Participant {
	var out []council.Participant
	for _, p := range r.s.Councilors() {
		if p.Can(council.CapabilityPredict) {
			out = append(out, p)
		}
	}
	return out
}

// latestBallots returns each participant's most recent ballot in roster
// order. Re-cast ballots during reconciliation supersede earlier ones.
func (r *sessionRun) latestBallots() []vote.Ballot {
	latest := make(map[string]vote.Ballot)
	for _, m := range r.s.Transcript {
		if m.Ballot != nil {
			latest[m.Ballot.ParticipantID] = *m.Ballot
		}
	}

	out := make([]vote.Ballot, 0, len(latest))
	for _, p := range r.s.Participants {
		if b, ok := latest[p.ID]; ok {
			out = append(out, b)
		}
	}
	return out
}
