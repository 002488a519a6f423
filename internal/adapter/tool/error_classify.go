package tool

import (
	"errors"
	"strings"

	"websearch-mcp/internal/domain"
)

// retryablePatterns are substrings in error messages that indicate transient failures.
// Checked case-insensitively.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"too many requests",
	"try again",
}

// classifyToolError returns true if the error is transient and the tool call
// may succeed on retry. Returns false for nil, permanent, or unknown errors.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}

	// Bad arguments and blocked targets never succeed on retry, whatever the
	// message says.
	if errors.Is(err, domain.ErrInvalidParams) ||
		errors.Is(err, domain.ErrMissingParameter) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrBlockedAddress) {
		return false
	}

	// A search failure caused by the network unwraps to ErrTransport.
	if domain.IsRetryableError(err) {
		return true
	}

	// String-based fallback for errors without sentinel wrapping.
	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	return false
}
