package llmbridge

import (
	"fmt"
	"strings"

	"github.com/martinemde/turnwheel/runloop"
)

// CallError describes a failed provider call, classified for the run loop.
type CallError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

// Classify maps a provider error onto the loop's finish reasons. Overflow
// covers context-length rejections, retryable covers rate limits and
// transient server failures, and everything definitively unrecoverable
// (bad credentials, missing model, content filtering) is fatal. Unknown
// errors default to retryable; gollm surfaces provider failures as opaque
// strings, so classification goes by message content.
func Classify(provider string, err error) (runloop.FinishReason, *CallError) {
	if err == nil {
		return runloop.FinishNormal, nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	call := func(status int) *CallError {
		return &CallError{Provider: provider, StatusCode: status, Message: msg, Cause: err}
	}

	switch {
	case strings.Contains(lower, "context length") ||
		strings.Contains(lower, "too many tokens") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "413"):
		return runloop.FinishOverflow, call(413)
	case strings.Contains(lower, "401") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid key"):
		return runloop.FinishFatal, call(401)
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return runloop.FinishFatal, call(403)
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		return runloop.FinishFatal, call(404)
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return runloop.FinishFatal, call(0)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return runloop.FinishRetryable, call(429)
	case strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "internal server") ||
		strings.Contains(lower, "overloaded"):
		return runloop.FinishRetryable, call(500)
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused"):
		return runloop.FinishRetryable, call(0)
	default:
		return runloop.FinishRetryable, call(0)
	}
}
