package runloop

import (
	"math/rand"
	"time"
)

// RetryConfig bounds retries of transient inference failures with
// exponential backoff.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Jitter      bool          `json:"jitter"`
}

// DefaultRetryConfig returns the default retry bounds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Jitter:      true,
	}
}

// Delay calculates the backoff for attempt n (0-indexed):
// min(base * 2^n, max), plus +/- 50% jitter when enabled.
func (c RetryConfig) Delay(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay || delay < 0 {
			delay = c.MaxDelay
			break
		}
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	}
	return delay
}

// RetryState tracks transient-failure attempts across a run. It resets on
// any turn that completes without a transient failure and is persisted in
// checkpoint envelopes so resumed runs keep their budget.
type RetryState struct {
	AttemptCount int           `json:"attempt_count"`
	LastDelay    time.Duration `json:"last_delay"`
}

// Next records one transient failure and reports whether another attempt is
// allowed. When it is, the returned delay is the backoff to apply before
// retrying. AttemptCount never exceeds MaxAttempts.
func (s *RetryState) Next(c RetryConfig) (time.Duration, bool) {
	if s.AttemptCount >= c.MaxAttempts {
		return 0, false
	}
	delay := c.Delay(s.AttemptCount)
	s.AttemptCount++
	s.LastDelay = delay
	if s.AttemptCount >= c.MaxAttempts {
		return 0, false
	}
	return delay, true
}

// Reset clears the attempt budget.
func (s *RetryState) Reset() {
	s.AttemptCount = 0
	s.LastDelay = 0
}
