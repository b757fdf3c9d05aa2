package runloop

// Verdict is the terminal state of a proposed tool call.
type Verdict string

const (
	VerdictApproved  Verdict = "approved"
	VerdictDenied    Verdict = "denied"
	VerdictCancelled Verdict = "cancelled"
)

// DecisionSource identifies where a verdict came from.
type DecisionSource string

const (
	SourcePolicy DecisionSource = "policy"
	SourceUser   DecisionSource = "user"
	SourceBulk   DecisionSource = "bulk"
)

// Decision is the terminal verdict applied to one proposed tool call.
// A call transitions exactly once; later decisions are rejected.
type Decision struct {
	ToolCallID string         `json:"tool_call_id"`
	Verdict    Verdict        `json:"verdict"`
	Source     DecisionSource `json:"source"`
	Reason     string         `json:"reason,omitempty"`
}

// approvalTurn tracks the Proposed -> terminal transition for every call of
// one turn. Decisions are keyed by tool call ID but execution and result
// placement always follow declaration index order; arrival order never leaks
// into either.
type approvalTurn struct {
	turnID    string
	calls     []ToolCall
	decisions map[string]Decision
}

func newApprovalTurn(turnID string, calls []ToolCall) *approvalTurn {
	return &approvalTurn{
		turnID:    turnID,
		calls:     calls,
		decisions: make(map[string]Decision, len(calls)),
	}
}

// resolve transitions one call to a terminal verdict. It rejects unknown
// call IDs and calls that are already terminal.
func (a *approvalTurn) resolve(toolCallID string, verdict Verdict, source DecisionSource, reason string) (Decision, error) {
	known := false
	for _, c := range a.calls {
		if c.ID == toolCallID {
			known = true
			break
		}
	}
	if !known {
		return Decision{}, &ProtocolError{ToolCallID: toolCallID, Reason: "no such call in the current turn"}
	}
	if prior, ok := a.decisions[toolCallID]; ok {
		return Decision{}, &ProtocolError{
			ToolCallID: toolCallID,
			Reason:     "call already resolved as " + string(prior.Verdict),
		}
	}
	d := Decision{ToolCallID: toolCallID, Verdict: verdict, Source: source, Reason: reason}
	a.decisions[toolCallID] = d
	return d, nil
}

// resolveBulk applies one verdict to every still-pending call of the turn,
// in declaration order. Already-terminal calls are excluded rather than
// errored. A bulk decision for a different turn is rejected.
func (a *approvalTurn) resolveBulk(turnID string, verdict Verdict) ([]Decision, error) {
	if turnID != a.turnID {
		return nil, &ProtocolError{TurnID: turnID, Reason: "turn is not awaiting decisions"}
	}
	var resolved []Decision
	for _, c := range a.calls {
		if _, ok := a.decisions[c.ID]; ok {
			continue
		}
		d := Decision{ToolCallID: c.ID, Verdict: verdict, Source: SourceBulk}
		a.decisions[c.ID] = d
		resolved = append(resolved, d)
	}
	return resolved, nil
}

// decision returns the terminal decision for a call, if one exists.
func (a *approvalTurn) decision(toolCallID string) (Decision, bool) {
	d, ok := a.decisions[toolCallID]
	return d, ok
}

// pending returns the calls still awaiting a verdict, in declaration order.
func (a *approvalTurn) pending() []ToolCall {
	var out []ToolCall
	for _, c := range a.calls {
		if _, ok := a.decisions[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}
