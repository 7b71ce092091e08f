package council

import (
	"time"

	"github.com/google/uuid"

	"github.com/conclave-ai/conclave/internal/dialectic"
	"github.com/conclave-ai/conclave/internal/forecast"
	"github.com/conclave-ai/conclave/internal/vote"
)

// Mode selects how a session deliberates and which aggregate it produces.
type Mode string

const (
	// ModeDeliberation is an open roundtable discussion with a speaker synthesis.
	ModeDeliberation Mode = "deliberation"
	// ModeProposal debates a motion and resolves it with a formal vote.
	ModeProposal Mode = "proposal"
	// ModeInquiry is direct Q&A: one round, no aggregate.
	ModeInquiry Mode = "inquiry"
	// ModeResearch is deep multi-round analysis with gap tracking.
	ModeResearch Mode = "research"
	// ModeSwarm fans a task out to all councilors in parallel.
	ModeSwarm Mode = "swarm"
	// ModeSwarmCoding is swarm fan-out specialized for code generation.
	ModeSwarmCoding Mode = "swarm_coding"
	// ModePrediction collects point forecasts and produces an ensemble estimate.
	ModePrediction Mode = "prediction"
)

// ParseMode normalizes a raw mode string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeDeliberation, ModeProposal, ModeInquiry, ModeResearch,
		ModeSwarm, ModeSwarmCoding, ModePrediction:
		return Mode(s), true
	default:
		return "", false
	}
}

// Role is a participant's display role within the council.
type Role string

const (
	// RoleSpeaker frames the session: opening statement and final synthesis.
	RoleSpeaker Role = "speaker"
	// RoleCouncilor is a regular deliberating member.
	RoleCouncilor Role = "councilor"
	// RoleSpecialist is consulted for domain expertise.
	RoleSpecialist Role = "specialist"
)

// Capability tags name what a participant may contribute.
const (
	CapabilityVote    = "vote"
	CapabilityPredict = "predict"
)

// Reserved transcript authors that are not participants.
const (
	AuthorSystem     = "System"
	AuthorPetitioner = "Petitioner"
)

// Participant is one registered responder. The roster is snapshotted at
// session creation and immutable for the session's duration.
type Participant struct {
	ID           string   `json:"id"`
	Persona      string   `json:"persona"` // persona registry key
	Role         Role     `json:"role"`
	Enabled      bool     `json:"enabled"`
	Weight       float64  `json:"weight"` // relative voting weight, default 1
	Capabilities []string `json:"capabilities,omitempty"`
}

// Can reports whether the participant carries a capability tag.
// An empty capability list grants everything.
func (p Participant) Can(capability string) bool {
	if len(p.Capabilities) == 0 {
		return true
	}
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// EffectiveWeight returns the participant's voting weight, defaulting to 1.
func (p Participant) EffectiveWeight() float64 {
	if p.Weight == 0 {
		return 1
	}
	return p.Weight
}

// Message is one turn's output in the transcript. Failed and skipped turns
// produce messages too; the transcript is append-only.
type Message struct {
	ID         string               `json:"id"`
	Author     string               `json:"author"` // participant ID, "System", or "Petitioner"
	Content    string               `json:"content"`
	Ballot     *vote.Ballot         `json:"ballot,omitempty"`
	Prediction *forecast.Prediction `json:"prediction,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
	Seq        int                  `json:"seq"` // monotonically increasing within the session
}

// Settings is the session's configuration snapshot, captured at creation.
type Settings struct {
	MaxConcurrentRequests int           `json:"maxConcurrentRequests"`
	TurnTimeout           time.Duration `json:"turnTimeout"`
	ProgressDelay         time.Duration `json:"progressDelay"` // presentation pacing between phases
	DebateRounds          int           `json:"debateRounds"`
	EconomyMode           bool          `json:"economyMode"` // shorter prompts, fewer rounds
}

// DefaultSettings returns the session defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrentRequests: 3,
		TurnTimeout:           30 * time.Second,
		DebateRounds:          2,
	}
}

// Session is one topic-scoped deliberation instance. It is exclusively
// owned and mutated by its orchestrator (single-writer discipline); other
// components receive copies or read-only views.
type Session struct {
	ID     string `json:"id"`
	Topic  string `json:"topic"`
	Mode   Mode   `json:"mode"`
	Status Status `json:"status"`

	// PausedFrom remembers the status a paused session resumes to.
	PausedFrom Status `json:"pausedFrom,omitempty"`

	Participants []Participant `json:"participants"`
	Transcript   []Message     `json:"transcript"`

	Vote       *vote.Result       `json:"voteResult,omitempty"`
	Prediction *forecast.Ensemble `json:"predictionResult,omitempty"`
	Dialectic  []dialectic.Round  `json:"dialecticalTrace,omitempty"`

	// DialecticConfidence is the synthesis confidence over the whole trace.
	DialecticConfidence float64 `json:"dialecticConfidence,omitempty"`

	// Degraded is set when internal errors were recorded but the session
	// still reached a coherent outcome.
	Degraded bool `json:"degraded,omitempty"`

	// TerminalError carries the fatal error that forced adjournment, if any.
	TerminalError string `json:"terminalError,omitempty"`

	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates a session in the idle state with a fresh ID and the
// roster snapshot.
func NewSession(topic string, mode Mode, participants []Participant, settings Settings) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		Topic:        topic,
		Mode:         mode,
		Status:       StatusIdle,
		Participants: append([]Participant(nil), participants...),
		Settings:     settings,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Append adds a message to the transcript, assigning its sequence index,
// ID, and timestamp. It returns the stored message.
func (s *Session) Append(author, content string) *Message {
	msg := Message{
		ID:        uuid.NewString(),
		Author:    author,
		Content:   content,
		Timestamp: time.Now(),
		Seq:       len(s.Transcript),
	}
	s.Transcript = append(s.Transcript, msg)
	s.UpdatedAt = msg.Timestamp
	return &s.Transcript[len(s.Transcript)-1]
}

// Enabled returns the enabled participants in roster order.
func (s *Session) Enabled() []Participant {
	var out []Participant
	for _, p := range s.Participants {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Speaker returns the framing participant: the first enabled participant
// with the speaker role, else the first enabled participant.
func (s *Session) Speaker() (Participant, bool) {
	enabled := s.Enabled()
	for _, p := range enabled {
		if p.Role == RoleSpeaker {
			return p, true
		}
	}
	if len(enabled) > 0 {
		return enabled[0], true
	}
	return Participant{}, false
}

// Councilors returns the enabled participants excluding the speaker.
func (s *Session) Councilors() []Participant {
	speaker, ok := s.Speaker()
	var out []Participant
	for _, p := range s.Enabled() {
		if ok && p.ID == speaker.ID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Ballots collects the ballots cast in the transcript, in sequence order.
func (s *Session) Ballots() []vote.Ballot {
	var out []vote.Ballot
	for _, m := range s.Transcript {
		if m.Ballot != nil {
			out = append(out, *m.Ballot)
		}
	}
	return out
}

// Predictions collects the point predictions cast in the transcript.
func (s *Session) Predictions() []forecast.Prediction {
	var out []forecast.Prediction
	for _, m := range s.Transcript {
		if m.Prediction != nil {
			out = append(out, *m.Prediction)
		}
	}
	return out
}
