// Package errors provides centralized error definitions and error handling
// utilities for the Conclave codebase. It defines domain-specific errors,
// error constructors with context wrapping, and classification helpers that
// map every error onto the council error taxonomy.
//
// # Error Categories
//
// Every error falls into one of six categories:
//   - CategoryValidation: malformed input, rejected before any session mutation
//   - CategoryExternalAPI: a responder (AI backend) call failed
//   - CategoryTimeout: a responder call exceeded its deadline
//   - CategoryRateLimit: the protection guard denied a call
//   - CategoryInternal: an orchestrator logic fault
//   - CategorySystem: an unrecoverable fault that terminates the session
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewSessionError("failed to load session", errors.ErrSessionNotFound)
//
//	// With context wrapping
//	err := errors.NewResponderError("call failed", cause).WithParticipant("technocrat")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	var respErr *errors.ResponderError
//	if errors.As(err, &respErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//	switch errors.CategoryOf(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Category classifies an error within the council error taxonomy.
type Category string

const (
	// CategoryValidation marks malformed input rejected before any session mutation.
	CategoryValidation Category = "validation"
	// CategoryExternalAPI marks responder failures. Retryable and non-fatal;
	// they become error messages in the transcript.
	CategoryExternalAPI Category = "external_api"
	// CategoryTimeout marks responder deadline overruns. Treated identically
	// to external_api failures.
	CategoryTimeout Category = "timeout"
	// CategoryRateLimit marks protection guard denials. The turn is skipped
	// with an explanatory message.
	CategoryRateLimit Category = "rate_limit"
	// CategoryInternal marks orchestrator logic faults. The session is marked
	// degraded but not corrupted.
	CategoryInternal Category = "internal"
	// CategorySystem marks unrecoverable faults. The session is forced to
	// adjourned with a terminal error attached.
	CategorySystem Category = "system"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that a session could not be found.
	ErrSessionNotFound = New("session not found")
	// ErrSessionTerminal indicates an operation on an adjourned session.
	ErrSessionTerminal = New("session already adjourned")
	// ErrSessionNotPaused indicates a resume on a session that is not paused.
	ErrSessionNotPaused = New("session is not paused")
	// ErrInvalidTransition indicates a status transition not permitted by the
	// session state machine.
	ErrInvalidTransition = New("invalid status transition")
)

// Protection-related sentinel errors
var (
	// ErrCallDenied indicates that the protection guard rejected a call.
	ErrCallDenied = New("call denied by protection guard")
	// ErrLoopDetected indicates repeated identical calls within the loop window.
	ErrLoopDetected = New("call loop detected")
)

// Responder-related sentinel errors
var (
	// ErrResponderFailed indicates a responder (AI backend) call failure.
	ErrResponderFailed = New("responder call failed")
	// ErrResponderTimeout indicates a responder call exceeded its deadline.
	ErrResponderTimeout = New("responder call timed out")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ConclaveError is the base interface for all Conclave errors.
// It extends the standard error interface with classification methods.
type ConclaveError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Category returns the taxonomy category of this error.
	Category() Category

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	category   Category
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Category returns the taxonomy category.
func (e *baseError) Category() Category {
	return e.category
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents errors related to session management or
// orchestration logic.
//
// Example:
//
//	err := errors.NewSessionError("failed to load session", errors.ErrSessionNotFound)
//	err = err.WithSessionID("abc123")
type SessionError struct {
	baseError
	SessionID string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			category:   CategoryInternal,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithSessionID adds a session ID to the error context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// WithCategory sets the taxonomy category.
func (e *SessionError) WithCategory(c Category) *SessionError {
	e.category = c
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	prefix := "session error"
	if e.SessionID != "" {
		prefix = fmt.Sprintf("session error [session=%s]", e.SessionID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ResponderError represents a failed call to an AI responder backend.
// Responder errors are retryable and never fatal to a session: they are
// converted into error messages in the transcript.
//
// Example:
//
//	err := errors.NewResponderError("provider returned 503", cause).
//		WithParticipant("technocrat")
type ResponderError struct {
	baseError
	ParticipantID string
	StatusCode    int
}

// NewResponderError creates a new ResponderError.
func NewResponderError(message string, cause error) *ResponderError {
	return &ResponderError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			category:   CategoryExternalAPI,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithParticipant adds the participant whose call failed.
func (e *ResponderError) WithParticipant(id string) *ResponderError {
	e.ParticipantID = id
	return e
}

// WithStatusCode adds the HTTP status code returned by the provider.
func (e *ResponderError) WithStatusCode(code int) *ResponderError {
	e.StatusCode = code
	return e
}

// Error returns the formatted error message.
func (e *ResponderError) Error() string {
	var parts []string
	if e.ParticipantID != "" {
		parts = append(parts, fmt.Sprintf("participant=%s", e.ParticipantID))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}

	prefix := "responder error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("responder error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target. All responder errors
// match the ErrResponderFailed sentinel.
func (e *ResponderError) Is(target error) bool {
	if _, ok := target.(*ResponderError); ok {
		return true
	}
	if target == ErrResponderFailed {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents a responder call that exceeded its deadline.
type TimeoutError struct {
	baseError
	ParticipantID string
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(message string, cause error) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			category:   CategoryTimeout,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithParticipant adds the participant whose call timed out.
func (e *TimeoutError) WithParticipant(id string) *TimeoutError {
	e.ParticipantID = id
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	prefix := "timeout error"
	if e.ParticipantID != "" {
		prefix = fmt.Sprintf("timeout error [participant=%s]", e.ParticipantID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target. All timeout errors match
// the ErrResponderTimeout sentinel.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrResponderTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// ProtectionError represents a call denied by the protection guard.
// The denied turn is skipped, not retried within the same round.
type ProtectionError struct {
	baseError
	Reason string
}

// NewProtectionError creates a new ProtectionError.
func NewProtectionError(message string, cause error) *ProtectionError {
	return &ProtectionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			category:   CategoryRateLimit,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithReason adds the named denial reason reported by the guard.
func (e *ProtectionError) WithReason(reason string) *ProtectionError {
	e.Reason = reason
	return e
}

// Error returns the formatted error message.
func (e *ProtectionError) Error() string {
	prefix := "protection error"
	if e.Reason != "" {
		prefix = fmt.Sprintf("protection error [reason=%s]", e.Reason)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target. All protection errors
// match the ErrCallDenied sentinel.
func (e *ProtectionError) Is(target error) bool {
	if _, ok := target.(*ProtectionError); ok {
		return true
	}
	if target == ErrCallDenied {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input rejected before any session
// mutation. It carries the offending field for the envelope error list.
type ValidationError struct {
	baseError
	Field string
	Code  string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			category:   CategoryValidation,
			retryable:  false,
			userFacing: true,
		},
		Field: field,
		Code:  "invalid_" + field,
	}
}

// WithCode overrides the machine-readable error code.
func (e *ValidationError) WithCode(code string) *ValidationError {
	e.Code = code
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// CategoryOf returns the taxonomy category of an error. Errors that do not
// implement ConclaveError are classified as internal.
func CategoryOf(err error) Category {
	var ce ConclaveError
	if errors.As(err, &ce) {
		return ce.Category()
	}
	return CategoryInternal
}

// IsRetryable reports whether the error is transient and the operation may
// succeed on retry. Responder and timeout errors are retryable; validation,
// protection, and internal errors are not.
func IsRetryable(err error) bool {
	var ce ConclaveError
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether the error message is safe to show end users.
func IsUserFacing(err error) bool {
	var ce ConclaveError
	if errors.As(err, &ce) {
		return ce.IsUserFacing()
	}
	return false
}

// IsFatal reports whether the error must terminate the session. Only system
// category errors are fatal; everything else becomes transcript data.
func IsFatal(err error) bool {
	return CategoryOf(err) == CategorySystem
}
