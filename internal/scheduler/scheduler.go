// Package scheduler fans a round of councilor turns out to the responder
// under bounded concurrency. Every turn yields a result: successful turns
// carry content, failed turns carry the error, and guard-denied turns are
// marked skipped. The round is a barrier; RunRound returns only when all
// turns have settled.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/errors"
	"github.com/conclave-ai/conclave/internal/guard"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/internal/responder"
)

// Concurrency bounds. The configured parallelism is clamped into this
// range so a bad config can neither serialize a large council to death
// nor stampede a local model server.
const (
	MinParallel = 1
	MaxParallel = 5
)

// Turn is one scheduled participant call.
type Turn struct {
	Participant  council.Participant
	SystemPrompt string
	Topic        string
	Prompt       string
	Transcript   []council.Message
	MaxTokens    int
}

// Result is the settled outcome of one turn.
type Result struct {
	Participant council.Participant
	Content     string
	Err         error
	// Skipped is set when the protection guard denied the call. Skipped
	// turns have no content and were never dispatched.
	Skipped    bool
	SkipReason guard.Reason
	Elapsed    time.Duration
}

// Pool dispatches turns with a semaphore bounding in-flight responder
// calls. A Pool is cheap and stateless across rounds; the guard carries
// all cross-round protection state.
type Pool struct {
	responder   responder.Responder
	guard       *guard.Guard
	logger      *logging.Logger
	maxParallel int
	turnTimeout time.Duration
}

// NewPool creates a scheduler pool. maxParallel is clamped to [1, 5];
// turnTimeout bounds each responder call and defaults to 30s.
func NewPool(r responder.Responder, g *guard.Guard, logger *logging.Logger, maxParallel int, turnTimeout time.Duration) *Pool {
	if maxParallel < MinParallel {
		maxParallel = MinParallel
	}
	if maxParallel > MaxParallel {
		maxParallel = MaxParallel
	}
	if turnTimeout <= 0 {
		turnTimeout = 30 * time.Second
	}
	return &Pool{
		responder:   r,
		guard:       g,
		logger:      logger,
		maxParallel: maxParallel,
		turnTimeout: turnTimeout,
	}
}

// RunRound dispatches all turns and blocks until every one has settled.
// Results are returned in completion order, not submission order; callers
// that need determinism sort by participant afterwards.
//
// Cancellation of ctx settles undispatched turns with errors.ErrCanceled.
// Turns already handed to the responder are not interrupted; they run to
// completion or to the turn deadline.
func (p *Pool) RunRound(ctx context.Context, sessionID string, turns []Turn) []Result {
	if len(turns) == 0 {
		return nil
	}

	sem := make(chan struct{}, p.maxParallel)
	results := make(chan Result, len(turns))

	var wg sync.WaitGroup
	for _, turn := range turns {
		wg.Add(1)
		go func(turn Turn) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- Result{
					Participant: turn.Participant,
					Err:         errors.ErrCanceled,
				}
				return
			}

			// The select can pick the semaphore even when ctx is already
			// done; re-check so a canceled round never dispatches.
			if ctx.Err() != nil {
				results <- Result{
					Participant: turn.Participant,
					Err:         errors.ErrCanceled,
				}
				return
			}

			results <- p.runTurn(ctx, sessionID, turn)
		}(turn)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, 0, len(turns))
	for res := range results {
		out = append(out, res)
	}
	return out
}

// runTurn executes a single turn: guard check, responder call under the
// turn deadline, guard completion.
func (p *Pool) runTurn(ctx context.Context, sessionID string, turn Turn) Result {
	callName := "turn:" + turn.Participant.ID
	args := map[string]string{"participant": turn.Participant.ID, "prompt": turn.Prompt}
	estimate := estimateTokens(turn.Prompt)

	decision := p.guard.CheckCallAllowed(sessionID, callName, args, estimate)
	if !decision.Allowed {
		p.logger.Warn("turn denied by protection guard",
			"session_id", sessionID,
			"participant", turn.Participant.ID,
			"reason", string(decision.Reason),
		)
		return Result{
			Participant: turn.Participant,
			Skipped:     true,
			SkipReason:  decision.Reason,
			Err: errors.NewProtectionError(decision.Detail, errors.ErrCallDenied).
				WithReason(string(decision.Reason)),
		}
	}

	p.guard.RecordCall(sessionID, callName, args)
	defer p.guard.CompleteCall(sessionID)
	p.guard.AddTokens(sessionID, estimate)

	// The turn context is detached from round cancellation: a stop takes
	// effect at the dispatch gate, while a call already in flight is
	// allowed to finish or hit the turn deadline, never hard-killed.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.turnTimeout)
	defer cancel()

	start := time.Now()
	content, err := p.responder.Respond(turnCtx, responder.Request{
		Participant:  turn.Participant,
		SystemPrompt: turn.SystemPrompt,
		Topic:        turn.Topic,
		Prompt:       turn.Prompt,
		Transcript:   turn.Transcript,
		MaxTokens:    turn.MaxTokens,
	})
	elapsed := time.Since(start)

	if err != nil {
		if turnCtx.Err() == context.DeadlineExceeded {
			err = errors.NewTimeoutError(
				fmt.Sprintf("turn exceeded %s", p.turnTimeout), err,
			).WithParticipant(turn.Participant.ID)
		}
		p.logger.Warn("turn failed",
			"session_id", sessionID,
			"participant", turn.Participant.ID,
			"elapsed", elapsed.String(),
			"error", err.Error(),
		)
		return Result{Participant: turn.Participant, Err: err, Elapsed: elapsed}
	}

	p.guard.AddTokens(sessionID, estimateTokens(content))
	p.logger.Debug("turn completed",
		"session_id", sessionID,
		"participant", turn.Participant.ID,
		"elapsed", elapsed.String(),
	)
	return Result{Participant: turn.Participant, Content: content, Elapsed: elapsed}
}

// CompleteRound closes the guard's round for the session. Call once per
// debate round, after RunRound returns.
func (p *Pool) CompleteRound(sessionID string) {
	p.guard.CompleteRound(sessionID)
}

// estimateTokens approximates token count as one per four characters,
// which is close enough for budget enforcement.
func estimateTokens(s string) int {
	return len(s) / 4
}
