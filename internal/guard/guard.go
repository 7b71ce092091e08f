// Package guard implements per-session call protection: budget caps,
// cooldown enforcement, and loop detection over recent call fingerprints.
// It prevents cost blowups and infinite loops caused by a misbehaving
// participant or malformed orchestration logic.
//
// The guard is the only process-wide shared mutable structure in Conclave.
// All state is keyed by session ID, so concurrent sessions cannot interfere
// with each other; a single mutex serializes access.
package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Reason names a specific denial cause. Each check in CheckCallAllowed
// reports a distinct reason so denied turns can explain themselves in the
// transcript.
type Reason string

const (
	ReasonDepthExceeded    Reason = "max_depth_exceeded"
	ReasonRoundsExceeded   Reason = "max_rounds_exceeded"
	ReasonMessagesExceeded Reason = "max_messages_per_round_exceeded"
	ReasonMessageTooLarge  Reason = "message_too_large"
	ReasonCooldownActive   Reason = "cooldown_active"
	ReasonLoopDetected     Reason = "loop_detected"
)

// Decision is the outcome of a protection check.
type Decision struct {
	Allowed bool
	Reason  Reason // set only when denied
	Detail  string // human-readable explanation for the transcript
}

// Config holds the protection limits. Zero values are replaced by defaults.
type Config struct {
	MaxDepth            int           // max concurrent call nesting per session
	MaxRounds           int           // max rounds per session
	MaxMessagesPerRound int           // max messages within one round
	MaxTokensPerMessage int           // per-message token estimate cap
	Cooldown            time.Duration // min gap between identical calls
	LoopWindow          time.Duration // window for loop detection
	LoopThreshold       int           // identical calls within window that trip loop detection
	HistorySize         int           // global fingerprint ring buffer capacity
}

// DefaultConfig returns the default protection limits.
func DefaultConfig() Config {
	return Config{
		MaxDepth:            3,
		MaxRounds:           20,
		MaxMessagesPerRound: 10,
		MaxTokensPerMessage: 4000,
		Cooldown:            500 * time.Millisecond,
		LoopWindow:          5 * time.Second,
		LoopThreshold:       3,
		HistorySize:         1000,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.MaxMessagesPerRound <= 0 {
		c.MaxMessagesPerRound = d.MaxMessagesPerRound
	}
	if c.MaxTokensPerMessage <= 0 {
		c.MaxTokensPerMessage = d.MaxTokensPerMessage
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.LoopWindow <= 0 {
		c.LoopWindow = d.LoopWindow
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = d.LoopThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	return c
}

// Context holds the per-session protection counters. It is created on the
// first call for a session, mutated only by the Guard, and discarded when
// the session ends.
type Context struct {
	Depth           int       // current call nesting depth
	CallStack       []string  // in-flight call names, innermost last
	Rounds          int       // completed rounds
	MessagesInRound int       // messages recorded in the current round
	TokenEstimate   int       // cumulative token estimate
	LastCall        time.Time // time of the most recent recorded call
}

// fingerprint is one recorded call in the rolling history.
type fingerprint struct {
	sessionID string
	callName  string
	argsHash  string
	at        time.Time
}

// Guard tracks per-session call budgets and detects runaway behavior.
// It is safe for concurrent use.
type Guard struct {
	mu       sync.Mutex
	cfg      Config
	contexts map[string]*Context
	history  []fingerprint // bounded ring, shared across sessions
	pos      int           // next write position in history
	filled   bool          // true once the ring has wrapped
	now      func() time.Time
}

// New creates a Guard with the given limits. Zero-valued limits fall back
// to the defaults documented on DefaultConfig.
func New(cfg Config) *Guard {
	cfg = cfg.withDefaults()
	return &Guard{
		cfg:      cfg,
		contexts: make(map[string]*Context),
		history:  make([]fingerprint, cfg.HistorySize),
		now:      time.Now,
	}
}

// CheckCallAllowed decides whether a call may proceed. The first call for a
// session creates its protection context and is always allowed. Subsequent
// calls are checked against depth, round, message, and token budgets, then
// against the cooldown and loop-detection windows. Loop detection fires
// independently of the cooldown check.
//
// CheckCallAllowed does not record the call; callers that proceed must
// invoke RecordCall, and must balance it with CompleteCall regardless of
// the call's outcome.
func (g *Guard) CheckCallAllowed(sessionID, callName string, args any, estimatedTokens int) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, ok := g.contexts[sessionID]
	if !ok {
		g.contexts[sessionID] = &Context{}
		return Decision{Allowed: true}
	}

	if ctx.Depth >= g.cfg.MaxDepth {
		return Decision{
			Reason: ReasonDepthExceeded,
			Detail: fmt.Sprintf("recursion depth %d reached the limit of %d", ctx.Depth, g.cfg.MaxDepth),
		}
	}
	if ctx.Rounds >= g.cfg.MaxRounds {
		return Decision{
			Reason: ReasonRoundsExceeded,
			Detail: fmt.Sprintf("round count %d reached the limit of %d", ctx.Rounds, g.cfg.MaxRounds),
		}
	}
	if ctx.MessagesInRound >= g.cfg.MaxMessagesPerRound {
		return Decision{
			Reason: ReasonMessagesExceeded,
			Detail: fmt.Sprintf("message count %d reached the per-round limit of %d", ctx.MessagesInRound, g.cfg.MaxMessagesPerRound),
		}
	}
	if estimatedTokens > g.cfg.MaxTokensPerMessage {
		return Decision{
			Reason: ReasonMessageTooLarge,
			Detail: fmt.Sprintf("estimated %d tokens exceeds the per-message cap of %d", estimatedTokens, g.cfg.MaxTokensPerMessage),
		}
	}

	hash := hashArgs(args)
	now := g.now()

	identicalInWindow := 0
	for _, fp := range g.recorded() {
		if fp.sessionID != sessionID || fp.callName != callName || fp.argsHash != hash {
			continue
		}
		age := now.Sub(fp.at)
		if age < g.cfg.Cooldown {
			return Decision{
				Reason: ReasonCooldownActive,
				Detail: fmt.Sprintf("identical call made %v ago, cooldown is %v", age.Round(time.Millisecond), g.cfg.Cooldown),
			}
		}
		if age < g.cfg.LoopWindow {
			identicalInWindow++
		}
	}
	if identicalInWindow >= g.cfg.LoopThreshold {
		return Decision{
			Reason: ReasonLoopDetected,
			Detail: fmt.Sprintf("%d identical calls within %v", identicalInWindow, g.cfg.LoopWindow),
		}
	}

	return Decision{Allowed: true}
}

// RecordCall marks a call as dispatched: it increments the session's depth
// and per-round message count, pushes the call onto the call stack, and
// appends the call fingerprint to the rolling history.
func (g *Guard) RecordCall(sessionID, callName string, args any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx := g.contextLocked(sessionID)
	ctx.Depth++
	ctx.MessagesInRound++
	ctx.CallStack = append(ctx.CallStack, callName)
	ctx.LastCall = g.now()

	g.history[g.pos] = fingerprint{
		sessionID: sessionID,
		callName:  callName,
		argsHash:  hashArgs(args),
		at:        ctx.LastCall,
	}
	g.pos++
	if g.pos == len(g.history) {
		g.pos = 0
		g.filled = true
	}
}

// CompleteCall marks a call as finished, successfully or not. Depth is
// clamped at zero so unbalanced completion can never drive it negative.
func (g *Guard) CompleteCall(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, ok := g.contexts[sessionID]
	if !ok {
		return
	}
	if ctx.Depth > 0 {
		ctx.Depth--
	}
	if n := len(ctx.CallStack); n > 0 {
		ctx.CallStack = ctx.CallStack[:n-1]
	}
}

// CompleteRound closes the session's current round: the round counter is
// incremented and the per-round message counter reset, atomically under one
// lock hold.
func (g *Guard) CompleteRound(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, ok := g.contexts[sessionID]
	if !ok {
		return
	}
	ctx.Rounds++
	ctx.MessagesInRound = 0
}

// AddTokens accumulates the session's token estimate.
func (g *Guard) AddTokens(sessionID string, tokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contextLocked(sessionID).TokenEstimate += tokens
}

// Release discards a session's protection context. Called when the session
// reaches a terminal status.
func (g *Guard) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.contexts, sessionID)
}

// Snapshot returns a copy of the session's protection context for
// introspection. The second return value is false if no context exists.
func (g *Guard) Snapshot(sessionID string) (Context, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, ok := g.contexts[sessionID]
	if !ok {
		return Context{}, false
	}
	cp := *ctx
	cp.CallStack = append([]string(nil), ctx.CallStack...)
	return cp, true
}

// contextLocked returns the session context, creating it if needed.
// Callers must hold g.mu.
func (g *Guard) contextLocked(sessionID string) *Context {
	ctx, ok := g.contexts[sessionID]
	if !ok {
		ctx = &Context{}
		g.contexts[sessionID] = ctx
	}
	return ctx
}

// recorded returns the populated portion of the history ring.
// Callers must hold g.mu.
func (g *Guard) recorded() []fingerprint {
	if g.filled {
		return g.history
	}
	return g.history[:g.pos]
}

// hashArgs computes a stable hash of a call's arguments. JSON encoding sorts
// map keys, so semantically identical argument maps hash identically.
func hashArgs(args any) string {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
