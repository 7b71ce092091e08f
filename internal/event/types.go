// Package event defines event types for decoupling components in Conclave.
// The orchestrator publishes lifecycle and progress events per session;
// consumers (CLI views, transport bridges, logging) subscribe by session ID
// and forward to their own protocol.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.status", "turn.completed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// SessionEvent is an Event that belongs to exactly one session.
// All orchestrator events implement it; the bus uses it to route
// session-scoped subscriptions.
type SessionEvent interface {
	Event

	// SessionID returns the session this event belongs to.
	SessionID() string
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the SessionEvent interface.
type baseEvent struct {
	eventType string
	sessionID string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) SessionID() string    { return e.sessionID }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType, sessionID string) baseEvent {
	return baseEvent{
		eventType: eventType,
		sessionID: sessionID,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session Lifecycle Events
// -----------------------------------------------------------------------------

// StatusChangeEvent is emitted whenever a session's status changes.
type StatusChangeEvent struct {
	baseEvent
	Status   string // New session status
	Previous string // Status before the transition
}

// NewStatusChangeEvent creates a StatusChangeEvent.
func NewStatusChangeEvent(sessionID, previous, status string) StatusChangeEvent {
	return StatusChangeEvent{
		baseEvent: newBaseEvent("session.status", sessionID),
		Status:    status,
		Previous:  previous,
	}
}

// SessionUpdateEvent is emitted when a message is appended to the transcript.
type SessionUpdateEvent struct {
	baseEvent
	MessageID string // ID of the appended message
	Author    string // Participant ID, "System", or "Petitioner"
	Content   string // Message content
	Seq       int    // Sequence index within the session
}

// NewSessionUpdateEvent creates a SessionUpdateEvent.
func NewSessionUpdateEvent(sessionID, messageID, author, content string, seq int) SessionUpdateEvent {
	return SessionUpdateEvent{
		baseEvent: newBaseEvent("session.update", sessionID),
		MessageID: messageID,
		Author:    author,
		Content:   content,
		Seq:       seq,
	}
}

// SpeakerChangeEvent is emitted when a participant begins or finishes speaking.
type SpeakerChangeEvent struct {
	baseEvent
	ParticipantID string // Participant taking or yielding the floor
	IsSpeaking    bool   // True when the turn starts, false when it ends
}

// NewSpeakerChangeEvent creates a SpeakerChangeEvent.
func NewSpeakerChangeEvent(sessionID, participantID string, isSpeaking bool) SpeakerChangeEvent {
	return SpeakerChangeEvent{
		baseEvent:     newBaseEvent("session.speaker", sessionID),
		ParticipantID: participantID,
		IsSpeaking:    isSpeaking,
	}
}

// VoteEvent is emitted when a vote result is attached to a session.
type VoteEvent struct {
	baseEvent
	MessageID string  // Message announcing the result
	Outcome   string  // PASSED, REJECTED, TIE, RECONCILIATION_NEEDED
	Consensus float64 // Consensus score in [0,1]
	Yeas      int
	Nays      int
	Abstains  int
}

// NewVoteEvent creates a VoteEvent.
func NewVoteEvent(sessionID, messageID, outcome string, consensus float64, yeas, nays, abstains int) VoteEvent {
	return VoteEvent{
		baseEvent: newBaseEvent("session.vote", sessionID),
		MessageID: messageID,
		Outcome:   outcome,
		Consensus: consensus,
		Yeas:      yeas,
		Nays:      nays,
		Abstains:  abstains,
	}
}

// ErrorEvent is emitted when a non-fatal error is recorded during a session.
type ErrorEvent struct {
	baseEvent
	Message  string // Human-readable error description
	Category string // Error taxonomy category
}

// NewErrorEvent creates an ErrorEvent.
func NewErrorEvent(sessionID, message, category string) ErrorEvent {
	return ErrorEvent{
		baseEvent: newBaseEvent("session.error", sessionID),
		Message:   message,
		Category:  category,
	}
}

// SessionCompletedEvent is emitted when a session reaches its terminal status.
type SessionCompletedEvent struct {
	baseEvent
	Mode     string // Session mode
	Messages int    // Total transcript length
	Degraded bool   // True if internal errors were recorded
}

// NewSessionCompletedEvent creates a SessionCompletedEvent.
func NewSessionCompletedEvent(sessionID, mode string, messages int, degraded bool) SessionCompletedEvent {
	return SessionCompletedEvent{
		baseEvent: newBaseEvent("session.completed", sessionID),
		Mode:      mode,
		Messages:  messages,
		Degraded:  degraded,
	}
}
