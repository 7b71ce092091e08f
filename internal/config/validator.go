package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/conclave-ai/conclave/internal/scheduler"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "session.max_concurrent_requests")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidStoreBackends returns the list of valid persistence backends
func ValidStoreBackends() []string {
	return []string{"file", "sqlite"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateGuard()...)
	errors = append(errors, c.validateResponder()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateVote()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.MaxConcurrentRequests < scheduler.MinParallel {
		errors = append(errors, ValidationError{
			Field:   "session.max_concurrent_requests",
			Value:   c.Session.MaxConcurrentRequests,
			Message: fmt.Sprintf("must be at least %d", scheduler.MinParallel),
		})
	}
	if c.Session.MaxConcurrentRequests > scheduler.MaxParallel {
		errors = append(errors, ValidationError{
			Field:   "session.max_concurrent_requests",
			Value:   c.Session.MaxConcurrentRequests,
			Message: fmt.Sprintf("exceeds maximum of %d", scheduler.MaxParallel),
		})
	}

	if c.Session.TurnTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "session.turn_timeout_seconds",
			Value:   c.Session.TurnTimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Session.ProgressDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.progress_delay_ms",
			Value:   c.Session.ProgressDelayMs,
			Message: "must be non-negative (0 disables pacing)",
		})
	}

	if c.Session.DebateRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.debate_rounds",
			Value:   c.Session.DebateRounds,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateGuard validates the GuardConfig
func (c *Config) validateGuard() []ValidationError {
	var errors []ValidationError

	if c.Guard.MaxRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "guard.max_rounds",
			Value:   c.Guard.MaxRounds,
			Message: "must be at least 1",
		})
	}

	// A round needs room for every councilor plus the speaker turn, so the
	// message cap cannot be smaller than the concurrency cap.
	if c.Guard.MaxMessagesPerRound < c.Session.MaxConcurrentRequests {
		errors = append(errors, ValidationError{
			Field:   "guard.max_messages_per_round",
			Value:   c.Guard.MaxMessagesPerRound,
			Message: fmt.Sprintf("must be at least session.max_concurrent_requests (%d)", c.Session.MaxConcurrentRequests),
		})
	}

	if c.Guard.MaxTokensPerMessage < 1 {
		errors = append(errors, ValidationError{
			Field:   "guard.max_tokens_per_message",
			Value:   c.Guard.MaxTokensPerMessage,
			Message: "must be positive",
		})
	}

	if c.Guard.CooldownMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "guard.cooldown_ms",
			Value:   c.Guard.CooldownMs,
			Message: "must be non-negative",
		})
	}

	if c.Guard.LoopWindowSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "guard.loop_window_seconds",
			Value:   c.Guard.LoopWindowSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Guard.LoopThreshold < 2 {
		errors = append(errors, ValidationError{
			Field:   "guard.loop_threshold",
			Value:   c.Guard.LoopThreshold,
			Message: "must be at least 2 (a single call is never a loop)",
		})
	}

	if c.Guard.HistorySize < 1 {
		errors = append(errors, ValidationError{
			Field:   "guard.history_size",
			Value:   c.Guard.HistorySize,
			Message: "must be positive",
		})
	}

	return errors
}

// validateResponder validates the ResponderConfig
func (c *Config) validateResponder() []ValidationError {
	var errors []ValidationError

	if c.Responder.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "responder.base_url",
			Value:   c.Responder.BaseURL,
			Message: "cannot be empty",
		})
	} else if u, err := url.Parse(c.Responder.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "responder.base_url",
			Value:   c.Responder.BaseURL,
			Message: "must be an absolute URL like http://localhost:1234",
		})
	}

	if c.Responder.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "responder.model",
			Value:   c.Responder.Model,
			Message: "cannot be empty",
		})
	}

	if c.Responder.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "responder.max_tokens",
			Value:   c.Responder.MaxTokens,
			Message: "must be positive",
		})
	}

	if c.Responder.Temperature < 0 || c.Responder.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "responder.temperature",
			Value:   c.Responder.Temperature,
			Message: "must be between 0 and 2",
		})
	}

	if c.Responder.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "responder.timeout_seconds",
			Value:   c.Responder.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStoreBackends(), c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreBackends(), ", ")),
		})
	}

	if strings.ContainsRune(c.Store.Path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "store.path",
			Value:   c.Store.Path,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

// validateVote validates the VoteConfig
func (c *Config) validateVote() []ValidationError {
	var errors []ValidationError

	if c.Vote.PassMargin < 0 {
		errors = append(errors, ValidationError{
			Field:   "vote.pass_margin",
			Value:   c.Vote.PassMargin,
			Message: "must be non-negative",
		})
	}

	if c.Vote.LowAgreement < 0 || c.Vote.LowAgreement > 1 {
		errors = append(errors, ValidationError{
			Field:   "vote.low_agreement",
			Value:   c.Vote.LowAgreement,
			Message: "must be between 0 and 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
