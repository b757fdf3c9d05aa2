package runloop

// Reduce sanitizes a conversation history before an inference call.
//
// It deduplicates tool results sharing a tool_call_id (the most recent
// occurrence wins, in place), drops results whose call was never declared by
// a strictly preceding assistant message, and synthesizes a terminal
// "skipped" result for any declared call left without one -- for example
// after resuming from a checkpoint taken mid-turn. Surviving messages are
// never reordered, and Reduce(Reduce(h)) == Reduce(h) for all h.
func Reduce(history []Message) []Message {
	// First pass: where each call is declared, and the index of the last
	// valid result for each call.
	declaredAt := make(map[string]int)
	for i, m := range history {
		if m.Kind != MessageAssistant || m.Assistant == nil {
			continue
		}
		for _, c := range m.Assistant.ToolCalls {
			if _, ok := declaredAt[c.ID]; !ok {
				declaredAt[c.ID] = i
			}
		}
	}
	lastResult := make(map[string]int)
	for i, m := range history {
		if m.Kind != MessageToolResult || m.ToolResult == nil {
			continue
		}
		id := m.ToolResult.ToolCallID
		if d, ok := declaredAt[id]; ok && d < i {
			lastResult[id] = i
		}
	}

	// Second pass: rebuild, closing out the previous assistant block before
	// any later user or assistant message so pairing holds by the time the
	// next inference call sees the history.
	out := make([]Message, 0, len(history))
	var open []ToolCall
	// A call ID re-declared by a later assistant message must not collect a
	// second synthesized result.
	synthesized := make(map[string]bool)
	flush := func() {
		for _, c := range open {
			if _, ok := lastResult[c.ID]; ok {
				continue
			}
			if synthesized[c.ID] {
				continue
			}
			synthesized[c.ID] = true
			out = append(out, newSkippedToolResult(c.ID, "tool call was not executed"))
		}
		open = nil
	}

	for i, m := range history {
		switch m.Kind {
		case MessageToolResult:
			if m.ToolResult == nil {
				continue
			}
			if j, ok := lastResult[m.ToolResult.ToolCallID]; !ok || j != i {
				// Orphan, or superseded by a later duplicate.
				continue
			}
			out = append(out, m)
		case MessageAssistant:
			flush()
			out = append(out, m)
			if m.Assistant != nil {
				open = m.Assistant.ToolCalls
			}
		case MessageUser:
			flush()
			out = append(out, m)
		default:
			out = append(out, m)
		}
	}
	flush()
	return out
}
