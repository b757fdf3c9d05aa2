package runloop

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDelayDoublesUntilCap(t *testing.T) {
	c := RetryConfig{BaseDelay: time.Second, MaxDelay: 60 * time.Second}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second, // capped
		60 * time.Second,
	}
	for attempt, expected := range want {
		if got := c.Delay(attempt); got != expected {
			t.Errorf("attempt %d: expected %s, got %s", attempt, expected, got)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	c := RetryConfig{BaseDelay: time.Second, MaxDelay: 60 * time.Second, Jitter: true}

	for attempt := 0; attempt < 6; attempt++ {
		base := RetryConfig{BaseDelay: c.BaseDelay, MaxDelay: c.MaxDelay}.Delay(attempt)
		for i := 0; i < 100; i++ {
			got := c.Delay(attempt)
			if got < base/2 || got > base*3/2 {
				t.Fatalf("attempt %d: jittered delay %s outside [%s, %s]", attempt, got, base/2, base*3/2)
			}
		}
	}
}

func TestNextStopsAtMaxAttempts(t *testing.T) {
	c := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	var s RetryState

	if _, ok := s.Next(c); !ok {
		t.Fatal("first failure should allow a retry")
	}
	if _, ok := s.Next(c); !ok {
		t.Fatal("second failure should allow a retry")
	}
	if _, ok := s.Next(c); ok {
		t.Fatal("third failure must exhaust the budget")
	}
	if s.AttemptCount != 3 {
		t.Errorf("expected attempt count 3, got %d", s.AttemptCount)
	}
	// Further failures stay exhausted.
	if _, ok := s.Next(c); ok {
		t.Error("exhausted state must not allow more attempts")
	}
	if s.AttemptCount != 3 {
		t.Errorf("attempt count must not grow past the bound, got %d", s.AttemptCount)
	}
}

func TestResetRestoresBudget(t *testing.T) {
	c := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	var s RetryState

	s.Next(c)
	s.Next(c)
	s.Reset()

	if s.AttemptCount != 0 || s.LastDelay != 0 {
		t.Errorf("reset left state behind: %+v", s)
	}
	if _, ok := s.Next(c); !ok {
		t.Error("reset should restore the retry budget")
	}
}

func TestDelayProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("delay never exceeds 1.5x the cap", prop.ForAll(
		func(attempt int, jitter bool) bool {
			c := RetryConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: jitter}
			limit := c.MaxDelay
			if jitter {
				limit = c.MaxDelay * 3 / 2
			}
			return c.Delay(attempt) <= limit
		},
		gen.IntRange(0, 64),
		gen.Bool(),
	))

	properties.Property("delay is never negative", prop.ForAll(
		func(attempt int) bool {
			c := RetryConfig{BaseDelay: time.Second, MaxDelay: 60 * time.Second, Jitter: true}
			return c.Delay(attempt) >= 0
		},
		gen.IntRange(0, 128),
	))

	properties.TestingRun(t)
}
