package domain

import (
	"context"
	"errors"
	"fmt"
)

// Category sentinels. Wrap them with %w or NewDomainError so callers can
// branch with errors.Is.
var (
	ErrTransport        = fmt.Errorf("transport error")
	ErrSearch           = fmt.Errorf("search failed")
	ErrChallenge        = fmt.Errorf("challenge page detected")
	ErrMissingParameter = fmt.Errorf("missing parameter")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrInvalidParams    = fmt.Errorf("invalid params")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrBlockedAddress   = fmt.Errorf("address blocked")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Engine.Search")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewTransportError tags err as a transport failure for url.
func NewTransportError(url string, err error) error {
	return &DomainError{Op: "fetch", Err: fmt.Errorf("%w: %w", ErrTransport, err), Detail: url}
}

// MissingParameter reports a required tool argument that was not supplied.
func MissingParameter(name string) error {
	return fmt.Errorf("%w: '%s'", ErrMissingParameter, name)
}

// IsRetryableError reports whether err carries a transient sentinel: a
// transport failure or a timeout.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ErrorCode is a machine-parseable error category for logs and spans.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeTransport        ErrorCode = "TRANSPORT"
	CodeSearch           ErrorCode = "SEARCH"
	CodeChallenge        ErrorCode = "CHALLENGE"
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeInvalidParams    ErrorCode = "INVALID_PARAMS"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeBlockedAddress   ErrorCode = "BLOCKED_ADDRESS"
)

// sentinelCodes is checked in order; the first match wins, so more specific
// sentinels must precede the ones they commonly wrap.
var sentinelCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrMissingParameter, CodeMissingParameter},
	{ErrInvalidParams, CodeInvalidParams},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrToolNotFound, CodeToolNotFound},
	{ErrChallenge, CodeChallenge},
	{ErrBlockedAddress, CodeBlockedAddress},
	{ErrSearch, CodeSearch},
	{ErrTransport, CodeTransport},
	{ErrTimeout, CodeTimeout},
}

// ErrorCodeOf maps err to its ErrorCode. Returns CodeUnknown for nil or
// unrecognized errors.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return CodeUnknown
}
