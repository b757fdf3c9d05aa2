package runloop

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnLimit is returned when a run reaches its configured turn cap.
	ErrTurnLimit = errors.New("run exceeded turn limit")
	// ErrCompactionUnavailable is returned when inference reports a context
	// overflow and no compaction engine is configured.
	ErrCompactionUnavailable = errors.New("context overflow with no compaction engine configured")
	// ErrCompactionExhausted is returned when compaction retries for a turn
	// exceed the configured bound.
	ErrCompactionExhausted = errors.New("compaction retries exhausted")
	// ErrRetryExhausted wraps the last transient inference error once the
	// retry budget is spent.
	ErrRetryExhausted = errors.New("inference retries exhausted")
)

// ProtocolError reports a rejected approval command: a decision for an
// unknown or already-terminal call, or a bulk decision for the wrong turn.
// It is surfaced as an event and never aborts the run.
type ProtocolError struct {
	ToolCallID string
	TurnID     string
	Reason     string
}

func (e *ProtocolError) Error() string {
	switch {
	case e.ToolCallID != "":
		return fmt.Sprintf("approval protocol error for call %s: %s", e.ToolCallID, e.Reason)
	case e.TurnID != "":
		return fmt.Sprintf("approval protocol error for turn %s: %s", e.TurnID, e.Reason)
	default:
		return "approval protocol error: " + e.Reason
	}
}

// MigrationError reports a checkpoint envelope that cannot be decoded into
// the current version. Decoding fails closed; an unrecognized envelope is
// never treated as a fresh run.
type MigrationError struct {
	Version int
	Reason  string
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("checkpoint migration failed for version %d: %s", e.Version, e.Reason)
}
