package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies sandbox failures so callers can branch on them.
type ErrorKind string

const (
	KindUnavailable  ErrorKind = "environment_unavailable"
	KindImage        ErrorKind = "image_unavailable"
	KindPortConflict ErrorKind = "port_conflict"
	KindNotFound     ErrorKind = "not_found"
	KindExecution    ErrorKind = "execution_failed"
	KindTimeout      ErrorKind = "timeout"
	KindValidation   ErrorKind = "invalid_input"
)

// Error is a tagged sandbox failure with optional remediation hints.
type Error struct {
	Kind        ErrorKind
	Op          string
	Message     string
	Suggestions []string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// SuggestionsOf returns the remediation hints attached to err, if any.
func SuggestionsOf(err error) []string {
	var se *Error
	if errors.As(err, &se) {
		return se.Suggestions
	}
	return nil
}

func newError(kind ErrorKind, op, msg string, cause error, suggestions ...string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause, Suggestions: suggestions}
}

// Invalid returns a validation error for malformed caller input.
func Invalid(format string, args ...any) *Error {
	return newError(KindValidation, "validate", fmt.Sprintf(format, args...), nil)
}

// NotFound returns the error for an operation on a missing sandbox.
func NotFound(id string) *Error {
	return newError(KindNotFound, "lookup", fmt.Sprintf("sandbox not found: %s", id), nil,
		"Start a container first with dotnet_start_container")
}

// portConflictPhrases are substrings of runtime errors caused by a host port
// that is already bound. The runtime exposes no structured code for this.
var portConflictPhrases = []string{
	"address already in use",
	"port is already allocated",
	"failed to set up container networking",
	"ports are not available",
}

// IsPortConflict reports whether err looks like a host-port binding failure.
func IsPortConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range portConflictPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// classify maps an engine error to a tagged error for a foreground operation.
func classify(op, msg string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, ErrUnavailable):
		return newError(KindUnavailable, op, "container runtime is not available", err,
			"Ensure Docker is installed and running",
			"Check Docker socket permissions")
	case errors.Is(err, ErrNotFound):
		return newError(KindNotFound, op, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, op, msg, err)
	default:
		return newError(KindExecution, op, msg, err)
	}
}
