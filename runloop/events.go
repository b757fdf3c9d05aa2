package runloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventTurnStarted         EventKind = "turn_started"
	EventInferenceChunk      EventKind = "inference_chunk"
	EventToolCallsProposed   EventKind = "tool_calls_proposed"
	EventToolDecision        EventKind = "tool_decision"
	EventToolResultAppended  EventKind = "tool_result_appended"
	EventTurnCompleted       EventKind = "turn_completed"
	EventCompactionTriggered EventKind = "compaction_triggered"
	EventCheckpointSaved     EventKind = "checkpoint_saved"
	EventError               EventKind = "error"
	EventRunFinished         EventKind = "run_finished"
)

// Event is a typed notification emitted by the run loop. Seq is monotonic
// per run and is assigned even when an event is subsequently dropped, so
// hosts can detect gaps.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	SessionID string         `json:"session_id"`
	TurnID    string         `json:"turn_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Emitter delivers typed events to the host over a buffered channel.
// Delivery never blocks loop progress: when the channel is saturated the
// event is dropped and counted, and the loop proceeds unaffected.
type Emitter struct {
	run     RunContext
	ch      chan Event
	seq     uint64
	dropped uint64
	closed  bool
	mu      sync.Mutex
}

// NewEmitter creates an Emitter with the given channel buffer size.
func NewEmitter(run RunContext, bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{
		run: run,
		ch:  make(chan Event, bufferSize),
	}
}

// Emit sends an event to the channel. If the emitter is closed or the
// channel is full, the event is dropped.
func (e *Emitter) Emit(kind EventKind, turnID string, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.seq++
	event := Event{
		Kind:      kind,
		Seq:       e.seq,
		Timestamp: time.Now().UTC(),
		RunID:     e.run.RunID,
		SessionID: e.run.SessionID,
		TurnID:    turnID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		e.dropped++
	}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Dropped reports how many events were discarded because the host fell
// behind.
func (e *Emitter) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close closes the event channel. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
