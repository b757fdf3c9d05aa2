package runloop

import (
	"encoding/json"
	"testing"
)

func callHistory(calls ...ToolCall) []Message {
	var out []Message
	for _, c := range calls {
		out = append(out, NewAssistantMessage("", "", []ToolCall{c}))
		out = append(out, NewToolResultMessage(c.ID, "ok", false))
	}
	return out
}

func namedCall(id, name, args string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func TestDetectRepeatedCallsSingleTool(t *testing.T) {
	var calls []ToolCall
	for i := 0; i < 6; i++ {
		calls = append(calls, namedCall("c", "grep", `{"q":"same"}`))
	}
	if !DetectRepeatedCalls(callHistory(calls...), 6) {
		t.Error("identical repeated calls should be detected")
	}
}

func TestDetectRepeatedCallsAlternatingPair(t *testing.T) {
	var calls []ToolCall
	for i := 0; i < 3; i++ {
		calls = append(calls,
			namedCall("a", "read", `{"f":"x"}`),
			namedCall("b", "grep", `{"q":"y"}`),
		)
	}
	if !DetectRepeatedCalls(callHistory(calls...), 6) {
		t.Error("alternating two-call pattern should be detected")
	}
}

func TestDetectRepeatedCallsDistinctArguments(t *testing.T) {
	calls := []ToolCall{
		namedCall("1", "grep", `{"q":"one"}`),
		namedCall("2", "grep", `{"q":"two"}`),
		namedCall("3", "grep", `{"q":"three"}`),
		namedCall("4", "grep", `{"q":"four"}`),
	}
	if DetectRepeatedCalls(callHistory(calls...), 4) {
		t.Error("same tool with distinct arguments is not a repeat")
	}
}

func TestDetectRepeatedCallsShortHistory(t *testing.T) {
	calls := []ToolCall{namedCall("1", "grep", `{}`)}
	if DetectRepeatedCalls(callHistory(calls...), 10) {
		t.Error("history shorter than the window never matches")
	}
}

func TestDetectRepeatedCallsZeroWindow(t *testing.T) {
	if DetectRepeatedCalls(nil, 0) {
		t.Error("zero window never matches")
	}
}
