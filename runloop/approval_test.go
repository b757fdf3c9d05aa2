package runloop

import (
	"errors"
	"testing"
)

func newTestTurn(ids ...string) *approvalTurn {
	calls := make([]ToolCall, len(ids))
	for i, id := range ids {
		calls[i] = ToolCall{ID: id, Name: "tool_" + id, Index: i}
	}
	return newApprovalTurn("turn-1", calls)
}

func TestResolveTransitionsExactlyOnce(t *testing.T) {
	turn := newTestTurn("a")

	d, err := turn.resolve("a", VerdictApproved, SourceUser, "")
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if d.Verdict != VerdictApproved {
		t.Errorf("expected approved, got %s", d.Verdict)
	}

	_, err = turn.resolve("a", VerdictDenied, SourceUser, "")
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError for second resolve, got %v", err)
	}
	if got, _ := turn.decision("a"); got.Verdict != VerdictApproved {
		t.Errorf("verdict flipped by rejected decision: %s", got.Verdict)
	}
}

func TestResolveUnknownCallRejected(t *testing.T) {
	turn := newTestTurn("a")

	_, err := turn.resolve("nope", VerdictApproved, SourceUser, "")
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if pe.ToolCallID != "nope" {
		t.Errorf("error should name the offending call, got %q", pe.ToolCallID)
	}
}

func TestResolveOutOfOrderKeepsDeclarationOrderInPending(t *testing.T) {
	turn := newTestTurn("a", "b", "c")

	if _, err := turn.resolve("c", VerdictApproved, SourceUser, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := turn.resolve("a", VerdictDenied, SourceUser, ""); err != nil {
		t.Fatal(err)
	}

	pending := turn.pending()
	if len(pending) != 1 || pending[0].ID != "b" {
		t.Fatalf("expected only b pending, got %+v", pending)
	}
}

func TestResolveBulkExcludesTerminalCalls(t *testing.T) {
	turn := newTestTurn("a", "b", "c")
	if _, err := turn.resolve("b", VerdictDenied, SourcePolicy, "blocked"); err != nil {
		t.Fatal(err)
	}

	resolved, err := turn.resolveBulk("turn-1", VerdictApproved)
	if err != nil {
		t.Fatalf("bulk resolve failed: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 bulk decisions, got %d", len(resolved))
	}
	// Declaration order within the bulk result.
	if resolved[0].ToolCallID != "a" || resolved[1].ToolCallID != "c" {
		t.Errorf("bulk decisions out of order: %+v", resolved)
	}
	if d, _ := turn.decision("b"); d.Verdict != VerdictDenied {
		t.Errorf("bulk decision overwrote a terminal call: %s", d.Verdict)
	}
	if len(turn.pending()) != 0 {
		t.Errorf("calls still pending after bulk: %+v", turn.pending())
	}
}

func TestResolveBulkWrongTurnRejected(t *testing.T) {
	turn := newTestTurn("a")

	_, err := turn.resolveBulk("turn-other", VerdictApproved)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if len(turn.pending()) != 1 {
		t.Error("rejected bulk decision must not touch pending calls")
	}
}

func TestResolveBulkOnFullyResolvedTurnIsEmpty(t *testing.T) {
	turn := newTestTurn("a")
	if _, err := turn.resolve("a", VerdictApproved, SourceUser, ""); err != nil {
		t.Fatal(err)
	}

	resolved, err := turn.resolveBulk("turn-1", VerdictDenied)
	if err != nil {
		t.Fatalf("bulk on resolved turn should be a no-op, got %v", err)
	}
	if len(resolved) != 0 {
		t.Errorf("expected no decisions, got %+v", resolved)
	}
}
