package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCategory classifies LLM provider failures for retry decisions.
type ErrorCategory string

const (
	CategoryRateLimit ErrorCategory = "rate_limit"
	CategoryTimeout   ErrorCategory = "timeout"
	CategoryAuth      ErrorCategory = "auth"
	CategoryServer    ErrorCategory = "server"
	CategoryBadInput  ErrorCategory = "bad_input"
	CategoryUnknown   ErrorCategory = "unknown"
)

// Error wraps a provider error with a category and retryability flag.
type Error struct {
	Category  ErrorCategory
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry package's RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// ClassifyError converts a raw provider error into a categorized *Error.
// Already-classified errors pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return err
	}

	category, retryable := classify(err)
	return &Error{
		Category:  category,
		Message:   err.Error(),
		Retryable: retryable,
		Cause:     err,
	}
}

func classify(err error) (ErrorCategory, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout, true
	}
	if errors.Is(err, context.Canceled) {
		return CategoryTimeout, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout, true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		return CategoryRateLimit, true
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication"):
		return CategoryAuth, false
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") ||
		strings.Contains(msg, "overloaded") || strings.Contains(msg, "internal server"):
		return CategoryServer, true
	case strings.Contains(msg, "400") || strings.Contains(msg, "context length") ||
		strings.Contains(msg, "maximum context") || strings.Contains(msg, "invalid request"):
		return CategoryBadInput, false
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "eof"):
		return CategoryServer, true
	}

	return CategoryUnknown, false
}
