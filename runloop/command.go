package runloop

// CommandKind identifies an inbound command.
type CommandKind string

const (
	CommandCancel       CommandKind = "cancel"
	CommandDecision     CommandKind = "decision"
	CommandBulkDecision CommandKind = "bulk_decision"
)

// Command is an out-of-band instruction delivered to the loop through its
// single inbound queue. No approval or cancellation state is touched except
// through that queue.
type Command interface {
	Kind() CommandKind
}

// CancelCommand requests cooperative cancellation of the run.
type CancelCommand struct {
	Reason string
}

func (CancelCommand) Kind() CommandKind { return CommandCancel }

// DecisionCommand resolves one proposed tool call awaiting approval.
type DecisionCommand struct {
	ToolCallID string
	Verdict    Verdict
}

func (DecisionCommand) Kind() CommandKind { return CommandDecision }

// BulkDecisionCommand applies the same verdict to every still-pending call
// of the identified turn. Calls that are already terminal, or that belong to
// a different turn, are unaffected.
type BulkDecisionCommand struct {
	TurnID  string
	Verdict Verdict
}

func (BulkDecisionCommand) Kind() CommandKind { return CommandBulkDecision }
