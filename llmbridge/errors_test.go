package llmbridge

import (
	"errors"
	"testing"

	"github.com/martinemde/turnwheel/runloop"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		msg    string
		finish runloop.FinishReason
		status int
	}{
		{"context length", "This model's maximum context length is 128000 tokens", runloop.FinishOverflow, 413},
		{"too many tokens", "too many tokens in request", runloop.FinishOverflow, 413},
		{"unauthorized", "401 Unauthorized", runloop.FinishFatal, 401},
		{"bad key", "invalid api key provided", runloop.FinishFatal, 401},
		{"forbidden", "403 Forbidden", runloop.FinishFatal, 403},
		{"missing model", "404 model not found", runloop.FinishFatal, 404},
		{"content filter", "response blocked by content filter", runloop.FinishFatal, 0},
		{"rate limit", "429 rate limit exceeded, retry after 2s", runloop.FinishRetryable, 429},
		{"server error", "500 internal server error", runloop.FinishRetryable, 500},
		{"overloaded", "the service is overloaded", runloop.FinishRetryable, 500},
		{"timeout", "request timeout after 30s", runloop.FinishRetryable, 0},
		{"connection reset", "read tcp: connection reset by peer", runloop.FinishRetryable, 0},
		{"unknown", "something unexpected happened", runloop.FinishRetryable, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			finish, callErr := Classify("openai", errors.New(tc.msg))
			if finish != tc.finish {
				t.Errorf("expected finish %s, got %s", tc.finish, finish)
			}
			if callErr == nil {
				t.Fatal("expected a CallError")
			}
			if callErr.StatusCode != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, callErr.StatusCode)
			}
			if callErr.Provider != "openai" {
				t.Errorf("provider lost: %q", callErr.Provider)
			}
			if !errors.Is(callErr, callErr.Cause) {
				t.Error("cause should be unwrappable")
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	finish, callErr := Classify("openai", nil)
	if finish != runloop.FinishNormal || callErr != nil {
		t.Errorf("nil error should classify as normal, got %s / %v", finish, callErr)
	}
}

func TestCallErrorMessage(t *testing.T) {
	e := &CallError{Provider: "anthropic", StatusCode: 429, Message: "rate limited"}
	if e.Error() != "anthropic: 429: rate limited" {
		t.Errorf("unexpected message: %q", e.Error())
	}
	e = &CallError{Provider: "anthropic", Message: "timeout"}
	if e.Error() != "anthropic: timeout" {
		t.Errorf("unexpected message: %q", e.Error())
	}
}
