package runloop

import (
	"fmt"
	"testing"
)

func TestEmitterAssignsMonotonicSeq(t *testing.T) {
	e := NewEmitter(RunContext{RunID: "r"}, 8)

	for i := 0; i < 5; i++ {
		e.Emit(EventTurnStarted, "t1", nil)
	}
	e.Close()

	var last uint64
	for ev := range e.Events() {
		if ev.Seq <= last {
			t.Errorf("seq not monotonic: %d after %d", ev.Seq, last)
		}
		last = ev.Seq
		if ev.RunID != "r" {
			t.Errorf("run id missing from event")
		}
	}
	if last != 5 {
		t.Errorf("expected final seq 5, got %d", last)
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEmitter(RunContext{}, 2)

	for i := 0; i < 10; i++ {
		e.Emit(EventError, "", map[string]any{"i": i})
	}

	if e.Dropped() != 8 {
		t.Errorf("expected 8 dropped events, got %d", e.Dropped())
	}
	e.Close()

	var received []Event
	for ev := range e.Events() {
		received = append(received, ev)
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 delivered events, got %d", len(received))
	}
	// Dropped events still consume sequence numbers, so the host can detect
	// the gap.
	if received[0].Seq != 1 || received[1].Seq != 2 {
		t.Errorf("unexpected seqs: %d, %d", received[0].Seq, received[1].Seq)
	}
}

func TestEmitterCloseIsIdempotentAndFinal(t *testing.T) {
	e := NewEmitter(RunContext{}, 4)
	e.Emit(EventTurnStarted, "t", nil)
	e.Close()
	e.Close()

	// Emitting after close must not panic or deliver.
	e.Emit(EventTurnCompleted, "t", nil)

	count := 0
	for range e.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("expected 1 event before close, got %d", count)
	}
}

func TestEmitterZeroBufferGetsDefault(t *testing.T) {
	e := NewEmitter(RunContext{}, 0)
	for i := 0; i < 100; i++ {
		e.Emit(EventTurnStarted, fmt.Sprintf("t%d", i), nil)
	}
	if e.Dropped() != 0 {
		t.Errorf("default buffer should hold 100 events, dropped %d", e.Dropped())
	}
}
