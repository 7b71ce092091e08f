// Package respondertest provides scripted responders for exercising
// orchestration without a model server.
package respondertest

import (
	"context"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/responder"
)

// Scripted replays canned replies per participant. Participants without
// a script receive the Default reply.
type Scripted struct {
	mu      sync.Mutex
	scripts map[string][]string
	cursor  map[string]int

	// Default is returned when a participant's script is exhausted or
	// absent.
	Default string
	// Delay simulates model latency before each reply.
	Delay time.Duration
}

// NewScripted creates a scripted responder.
func NewScripted() *Scripted {
	return &Scripted{
		scripts: make(map[string][]string),
		cursor:  make(map[string]int),
		Default: "I concur with the direction of the discussion.",
	}
}

// Script queues replies for a participant, returned in order.
func (s *Scripted) Script(participantID string, replies ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[participantID] = append(s.scripts[participantID], replies...)
	return s
}

// Respond implements responder.Responder.
func (s *Scripted) Respond(ctx context.Context, req responder.Request) (string, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.Participant.ID
	if i := s.cursor[id]; i < len(s.scripts[id]) {
		s.cursor[id] = i + 1
		return s.scripts[id][i], nil
	}
	return s.Default, nil
}

// Failing returns the given error for every participant in failIDs and
// delegates the rest to next.
func Failing(next responder.Responder, err error, failIDs ...string) responder.Responder {
	fail := make(map[string]bool, len(failIDs))
	for _, id := range failIDs {
		fail[id] = true
	}
	return responder.Func(func(ctx context.Context, req responder.Request) (string, error) {
		if fail[req.Participant.ID] {
			return "", err
		}
		return next.Respond(ctx, req)
	})
}

// Hanging blocks until the context is canceled, then returns ctx.Err().
// Use it to exercise turn timeouts.
func Hanging() responder.Responder {
	return responder.Func(func(ctx context.Context, req responder.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
}

// ConcurrencyProbe wraps a responder and records the highest number of
// simultaneous in-flight calls it observed.
type ConcurrencyProbe struct {
	mu       sync.Mutex
	inflight int
	peak     int
	next     responder.Responder
}

// NewConcurrencyProbe wraps next with in-flight tracking.
func NewConcurrencyProbe(next responder.Responder) *ConcurrencyProbe {
	return &ConcurrencyProbe{next: next}
}

// Respond implements responder.Responder.
func (p *ConcurrencyProbe) Respond(ctx context.Context, req responder.Request) (string, error) {
	p.mu.Lock()
	p.inflight++
	if p.inflight > p.peak {
		p.peak = p.inflight
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight--
		p.mu.Unlock()
	}()

	return p.next.Respond(ctx, req)
}

// Peak returns the highest simultaneous call count observed.
func (p *ConcurrencyProbe) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}
