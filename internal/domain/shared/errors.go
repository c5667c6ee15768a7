// Package shared contains the ids, errors, capabilities and events
// used across the league domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidID       = errors.New("invalid ID")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")

	// League outcome kinds
	ErrRejected             = errors.New("rejected")
	ErrRoundClosed          = errors.New("round closed")
	ErrTrackMismatch        = errors.New("track mismatch")
	ErrPersistenceTimeout   = errors.New("persistence timeout")
	ErrConfigurationInvalid = errors.New("configuration invalid")
	ErrCorruption           = errors.New("persistence corruption")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "round", "participant", "gate"
	Op      string // Operation that failed, e.g., "Score", "Join"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Participant domain errors
var (
	ErrParticipantNotFound = NewDomainError("participant", "Find", ErrNotFound, "participant not found")
	ErrParticipantBanned   = NewDomainError("participant", "Join", ErrConfigurationInvalid, "participant is banned from the league")
	ErrUnknownTrack        = NewDomainError("participant", "Validate", ErrConfigurationInvalid, "unknown track")
	ErrAlreadyOnTrack      = NewDomainError("participant", "Join", ErrConfigurationInvalid, "already competing on this track")
	ErrNotParticipating    = NewDomainError("participant", "Leave", ErrNotFound, "not in the league")
)

// Round domain errors
var (
	ErrRoundNotFound    = NewDomainError("round", "Find", ErrNotFound, "round not found")
	ErrStaleRound       = NewDomainError("round", "Score", ErrRoundClosed, "round is not open")
	ErrNoOpenRound      = NewDomainError("round", "Current", ErrInvalidState, "no open round")
	ErrRolloverHalted   = NewDomainError("round", "Rollover", ErrCorruption, "rollovers halted until operator intervention")
	ErrRoundTransition  = NewDomainError("round", "Transition", ErrStateTransition, "invalid round status transition")
	ErrResultsDuplicate = NewDomainError("round", "PersistResults", ErrCorruption, "results already persisted for round")
)

// Leaderboard domain errors
var (
	ErrInvalidBoard = NewDomainError("leaderboard", "Validate", ErrConfigurationInvalid, "board must be spanish, english or combined")
	ErrInvalidLimit = NewDomainError("leaderboard", "Validate", ErrConfigurationInvalid, "limit out of range")
)

// Admin errors
var (
	ErrMissingCapability = NewDomainError("admin", "Authorize", ErrForbidden, "admin capability required")
	ErrInvalidAdminToken = NewDomainError("admin", "Authorize", ErrUnauthorized, "invalid admin token")
)

// External service errors
var (
	ErrClassifierUnavailable = NewDomainError("classifier", "Request", ErrServiceUnavailable, "language classifier is unavailable")
	ErrAnnouncerFailed       = NewDomainError("announcer", "Send", ErrExternalService, "announcement delivery failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRejected checks if the event was dropped by a gate rule.
// Track mismatches count as rejections too, they are normal traffic.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrTrackMismatch)
}

// IsRoundClosed checks if an event targeted a round that is no longer open.
func IsRoundClosed(err error) bool {
	return errors.Is(err, ErrRoundClosed)
}

// IsUserVisible checks if the error should be shown to the acting user.
func IsUserVisible(err error) bool {
	return errors.Is(err, ErrConfigurationInvalid) || errors.Is(err, ErrNotFound)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPersistenceTimeout)
}
