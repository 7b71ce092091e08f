package orchestrator

import (
	"context"
	"sync"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/errors"
	"github.com/conclave-ai/conclave/internal/store"
)

// control carries the stop/pause levers for one running session. The
// drive loop observes it at round boundaries; in-flight calls are never
// hard-killed.
type control struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

func newControl(cancel context.CancelFunc) *control {
	return &control{cancel: cancel}
}

// requestPause flags the session for pausing. Returns false if already
// paused.
func (c *control) requestPause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return false
	}
	c.paused = true
	c.resumed = make(chan struct{})
	return true
}

// requestResume lifts a pause. Returns false if not paused.
func (c *control) requestResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	c.paused = false
	close(c.resumed)
	return true
}

// pauseState reports whether a pause is requested and the channel that
// closes on resume.
func (c *control) pauseState() (bool, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused, c.resumed
}

// stop cancels the session context, waking a paused loop so it can
// observe the cancellation.
func (c *control) stop() {
	c.cancel()
	c.requestResume()
}

// Registry tracks running sessions and fronts the store for finished
// ones. It is the explicit session arena: no ambient global state, one
// instance per orchestrator host.
type Registry struct {
	store store.Store

	mu     sync.Mutex
	active map[string]*control
}

// NewRegistry creates a registry over the given store.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st, active: make(map[string]*control)}
}

func (r *Registry) add(sessionID string, c *control) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[sessionID] = c
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, sessionID)
}

func (r *Registry) controlFor(sessionID string) (*control, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[sessionID]
	return c, ok
}

// Running reports whether the session is currently being driven.
func (r *Registry) Running(sessionID string) bool {
	_, ok := r.controlFor(sessionID)
	return ok
}

// Get loads a session by ID from the store.
func (r *Registry) Get(ctx context.Context, sessionID string) (*council.Session, error) {
	return r.store.Load(ctx, sessionID)
}

// List returns summaries of all persisted sessions.
func (r *Registry) List(ctx context.Context) ([]store.Summary, error) {
	return r.store.List(ctx)
}

// Delete removes a persisted session. Running sessions must be stopped
// first.
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	if r.Running(sessionID) {
		return errors.NewValidationError("sessionId", "session is running; stop it before deleting").
			WithCode("session_running")
	}
	return r.store.Delete(ctx, sessionID)
}

// Pause flags a running session to pause at its next round boundary.
func (r *Registry) Pause(sessionID string) error {
	c, ok := r.controlFor(sessionID)
	if !ok {
		return errors.NewSessionError("pause", errors.ErrSessionNotFound).WithSessionID(sessionID)
	}
	if !c.requestPause() {
		return errors.NewSessionError("pause", errors.New("session already paused")).
			WithSessionID(sessionID).WithCategory(errors.CategoryValidation)
	}
	return nil
}

// Resume lifts a pause on a running session.
func (r *Registry) Resume(sessionID string) error {
	c, ok := r.controlFor(sessionID)
	if !ok {
		return errors.NewSessionError("resume", errors.ErrSessionNotFound).WithSessionID(sessionID)
	}
	if !c.requestResume() {
		return errors.NewSessionError("resume", errors.ErrSessionNotPaused).
			WithSessionID(sessionID).WithCategory(errors.CategoryValidation)
	}
	return nil
}

// Stop aborts a running session at its next safe boundary. In-flight
// responder calls finish or time out; they are never hard-killed.
func (r *Registry) Stop(sessionID string) error {
	c, ok := r.controlFor(sessionID)
	if !ok {
		return errors.NewSessionError("stop", errors.ErrSessionNotFound).WithSessionID(sessionID)
	}
	c.stop()
	return nil
}
