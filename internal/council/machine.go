package council

import (
	"time"

	"github.com/conclave-ai/conclave/internal/errors"
)

// Status is the canonical session state.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusOpening     Status = "opening"
	StatusDebating    Status = "debating"
	StatusReconciling Status = "reconciling"
	StatusResolving   Status = "resolving"
	StatusVoting      Status = "voting"
	StatusEnacting    Status = "enacting"
	StatusAdjourned   Status = "adjourned"
	StatusPaused      Status = "paused"
)

// transitions is the session state graph. Pause/resume is handled
// separately; adjourned is reachable from every active state because a
// stop request forces adjournment at the next safe boundary.
var transitions = map[Status][]Status{
	StatusIdle:        {StatusOpening},
	StatusOpening:     {StatusDebating, StatusAdjourned},
	StatusDebating:    {StatusReconciling, StatusResolving, StatusAdjourned},
	StatusReconciling: {StatusDebating, StatusVoting, StatusAdjourned},
	StatusResolving:   {StatusVoting, StatusAdjourned},
	StatusVoting:      {StatusEnacting, StatusAdjourned},
	StatusEnacting:    {StatusAdjourned},
	StatusAdjourned:   {},
}

// Terminal reports whether a status is terminal.
func Terminal(s Status) bool {
	return s == StatusAdjourned
}

// Machine validates and applies session status transitions. It decides
// only whether a transition is legal; the orchestrator decides when to
// transition based on turn completion and mode.
type Machine struct{}

// NewMachine creates a state machine.
func NewMachine() *Machine {
	return &Machine{}
}

// CanTransition reports whether the target status is reachable from the
// current one. Pausing is legal from any non-terminal state; resuming is
// legal to any active state.
func (m *Machine) CanTransition(from, to Status) bool {
	if to == StatusPaused {
		return from != StatusPaused && !Terminal(from)
	}
	if from == StatusPaused {
		return to != StatusIdle && !Terminal(to) || to == StatusAdjourned
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the session to the target status, rejecting targets not
// reachable from the current status. Rejection is a no-op on the session.
func (m *Machine) Transition(s *Session, to Status) error {
	if !m.CanTransition(s.Status, to) {
		return errors.NewSessionError(
			string(s.Status)+" -> "+string(to), errors.ErrInvalidTransition,
		).WithSessionID(s.ID).WithCategory(errors.CategoryValidation)
	}

	if to == StatusPaused {
		s.PausedFrom = s.Status
	} else if s.Status == StatusPaused {
		s.PausedFrom = ""
	}

	s.Status = to
	s.UpdatedAt = time.Now()
	return nil
}

// Pause moves the session into the paused side-state, remembering where it
// was paused from.
func (m *Machine) Pause(s *Session) error {
	return m.Transition(s, StatusPaused)
}

// Resume returns a paused session to the state it was paused from.
func (m *Machine) Resume(s *Session) error {
	if s.Status != StatusPaused {
		return errors.NewSessionError("resume", errors.ErrSessionNotPaused).
			WithSessionID(s.ID).WithCategory(errors.CategoryValidation)
	}
	return m.Transition(s, s.PausedFrom)
}
