// Package responder abstracts how a councilor produces its turn. The
// production implementation speaks the OpenAI-compatible chat completions
// protocol; tests substitute scripted responders.
package responder

import (
	"context"

	"github.com/conclave-ai/conclave/internal/council"
)

// Request is everything a responder needs to produce one turn.
type Request struct {
	// Participant is the councilor taking the turn.
	Participant council.Participant
	// SystemPrompt is the participant's persona voice.
	SystemPrompt string
	// Topic is the session topic.
	Topic string
	// Prompt is the turn instruction, already framed for the current phase.
	Prompt string
	// Transcript is the session so far, oldest first.
	Transcript []council.Message
	// MaxTokens bounds the reply length. Zero means the responder default.
	MaxTokens int
}

// Responder produces one participant turn. Implementations must honor
// context cancellation and return rather than block past the deadline.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Responder interface.
type Func func(ctx context.Context, req Request) (string, error)

// Respond implements Responder.
func (f Func) Respond(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
