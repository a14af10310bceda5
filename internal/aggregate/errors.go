package aggregate

import (
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/ir"
)

// Error is a failure detected while applying a ledger event.
//
// Errors carry structured fields so callers can decide whether an event can
// be skipped (DUPLICATE_EVENT) or must be surfaced (everything else).
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EventKey identifies the offending event, if any.
	EventKey string

	// Address identifies the entity involved, if any.
	Address ir.Address

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes aggregator errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a lookup of an entity that was never created.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeDuplicateEvent indicates an event key that was already applied.
	ErrCodeDuplicateEvent ErrorCode = "DUPLICATE_EVENT"

	// ErrCodeInvalidEvent indicates an event whose payload fails validation.
	ErrCodeInvalidEvent ErrorCode = "INVALID_EVENT"

	// ErrCodeUnknownContract indicates the contract reader has no terms for a project.
	ErrCodeUnknownContract ErrorCode = "UNKNOWN_CONTRACT"

	// ErrCodeInvariant indicates derived state disagrees with its contributions.
	ErrCodeInvariant ErrorCode = "INVARIANT_VIOLATION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EventKey != "" {
		msg += fmt.Sprintf(" (event=%s)", e.EventKey)
	} else if e.Address != "" {
		msg += fmt.Sprintf(" (address=%s)", e.Address)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "" if
// there is none.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsDuplicateEvent returns true if err is a DUPLICATE_EVENT error.
// Uses errors.As to handle wrapped errors.
func IsDuplicateEvent(err error) bool {
	return hasCode(err, ErrCodeDuplicateEvent)
}

// IsNotFound returns true if err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidEvent returns true if err is an INVALID_EVENT error.
func IsInvalidEvent(err error) bool {
	return hasCode(err, ErrCodeInvalidEvent)
}

// IsUnknownContract returns true if err is an UNKNOWN_CONTRACT error.
func IsUnknownContract(err error) bool {
	return hasCode(err, ErrCodeUnknownContract)
}

// IsInvariantViolation returns true if err contains an INVARIANT_VIOLATION error.
func IsInvariantViolation(err error) bool {
	return hasCode(err, ErrCodeInvariant)
}

// NewDuplicateEventError creates an Error for an already-applied event key.
func NewDuplicateEventError(eventKey string) *Error {
	return &Error{
		Code:     ErrCodeDuplicateEvent,
		Message:  "event key already applied",
		EventKey: eventKey,
	}
}

// NewNotFoundError creates an Error for a missing entity.
func NewNotFoundError(kind string, address ir.Address) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: kind + " not found",
		Address: address,
	}
}

// NewContributionNotFoundError creates an Error for a missing contribution.
func NewContributionNotFoundError(eventKey string) *Error {
	return &Error{
		Code:     ErrCodeNotFound,
		Message:  "contribution not found",
		EventKey: eventKey,
	}
}

func invalidEvent(eventKey, format string, args ...any) *Error {
	return &Error{
		Code:     ErrCodeInvalidEvent,
		Message:  fmt.Sprintf(format, args...),
		EventKey: eventKey,
	}
}
