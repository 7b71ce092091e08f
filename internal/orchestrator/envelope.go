package orchestrator

import (
	"time"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/errors"
)

// EnvelopeStatus is the top-level outcome of a tool call.
type EnvelopeStatus string

const (
	StatusSuccess EnvelopeStatus = "success"
	StatusError   EnvelopeStatus = "error"
	StatusWarning EnvelopeStatus = "warning"
)

// FieldError is one named validation failure in an envelope.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Envelope is the unified response for every orchestration entry point.
// Failures are data: a session that completed with degraded turns still
// returns a populated envelope with status "warning", and only inputs
// that cannot be accepted at all produce status "error".
type Envelope struct {
	Status        EnvelopeStatus `json:"status"`
	Tool          string         `json:"tool"`
	Timestamp     time.Time      `json:"timestamp"`
	ExecutionTime string         `json:"executionTime"`
	SessionID     string         `json:"sessionId,omitempty"`
	Data          any            `json:"data,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Errors        []FieldError   `json:"errors,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// envelopeBuilder accumulates an envelope across a tool call.
type envelopeBuilder struct {
	tool    string
	started time.Time
}

func newEnvelope(tool string) *envelopeBuilder {
	return &envelopeBuilder{tool: tool, started: time.Now()}
}

func (b *envelopeBuilder) base(status EnvelopeStatus) Envelope {
	return Envelope{
		Status:        status,
		Tool:          b.tool,
		Timestamp:     time.Now(),
		ExecutionTime: time.Since(b.started).Round(time.Millisecond).String(),
	}
}

// success builds a success envelope carrying the session and its
// aggregate metadata.
func (b *envelopeBuilder) success(s *council.Session, warnings []string) Envelope {
	env := b.base(StatusSuccess)
	if len(warnings) > 0 {
		env.Status = StatusWarning
		env.Warnings = warnings
	}
	env.SessionID = s.ID
	env.Data = s
	env.Metadata = sessionMetadata(s)
	return env
}

// failure builds an error envelope from validation errors. A nil or
// non-validation error becomes a single unnamed field error.
func (b *envelopeBuilder) failure(errs ...error) Envelope {
	env := b.base(StatusError)
	for _, err := range errs {
		var ve *errors.ValidationError
		if errors.As(err, &ve) {
			env.Errors = append(env.Errors, FieldError{
				Field:   ve.Field,
				Message: err.Error(),
				Code:    ve.Code,
			})
			continue
		}
		env.Errors = append(env.Errors, FieldError{
			Message: err.Error(),
			Code:    string(errors.CategoryOf(err)),
		})
	}
	return env
}

// sessionMetadata summarizes the aggregates so callers need not re-parse
// the transcript.
func sessionMetadata(s *council.Session) map[string]any {
	md := map[string]any{
		"mode":         string(s.Mode),
		"status":       string(s.Status),
		"messages":     len(s.Transcript),
		"participants": len(s.Enabled()),
	}
	if s.Degraded {
		md["degraded"] = true
	}
	if s.Vote != nil {
		md["voteOutcome"] = string(s.Vote.Outcome)
		md["consensusScore"] = s.Vote.ConsensusScore
		md["yeas"] = s.Vote.Yeas
		md["nays"] = s.Vote.Nays
		md["abstains"] = s.Vote.Abstains
	}
	if s.Prediction != nil {
		md["predictionOutcome"] = s.Prediction.Outcome
		md["finalProbability"] = s.Prediction.FinalProbability
		md["uncertainty"] = string(s.Prediction.Uncertainty)
	}
	if len(s.Dialectic) > 0 {
		md["dialecticRounds"] = len(s.Dialectic)
		md["dialecticConfidence"] = s.DialecticConfidence
	}
	return md
}
