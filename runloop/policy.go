package runloop

// PolicyVerdict is the outcome of consulting the approval policy for one
// proposed tool call.
type PolicyVerdict string

const (
	// PolicyAllow approves the call immediately.
	PolicyAllow PolicyVerdict = "allow"
	// PolicyDeny denies the call immediately.
	PolicyDeny PolicyVerdict = "deny"
	// PolicyAsk leaves the call pending until an external decision arrives
	// over the command channel.
	PolicyAsk PolicyVerdict = "ask"
)

// PolicyDecision is a policy evaluator's answer for one call.
type PolicyDecision struct {
	Verdict PolicyVerdict
	Reason  string
}

// ApprovalPolicy is consulted before any external input is awaited. A
// definitive verdict transitions the call immediately.
type ApprovalPolicy interface {
	Evaluate(call ToolCall) PolicyDecision
}

// AllowAllPolicy approves every proposed call.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Evaluate(ToolCall) PolicyDecision {
	return PolicyDecision{Verdict: PolicyAllow}
}

// DenyAllPolicy denies every proposed call.
type DenyAllPolicy struct {
	Reason string
}

func (p DenyAllPolicy) Evaluate(ToolCall) PolicyDecision {
	reason := p.Reason
	if reason == "" {
		reason = "denied by policy"
	}
	return PolicyDecision{Verdict: PolicyDeny, Reason: reason}
}

// AllowlistPolicy approves calls whose tool name is on the list and applies
// Fallback to everything else. The zero Fallback is PolicyAsk.
type AllowlistPolicy struct {
	allowed  map[string]bool
	fallback PolicyVerdict
}

// NewAllowlistPolicy builds an AllowlistPolicy from tool names.
func NewAllowlistPolicy(fallback PolicyVerdict, names ...string) *AllowlistPolicy {
	if fallback == "" {
		fallback = PolicyAsk
	}
	allowed := make(map[string]bool, len(names))
	for _, name := range names {
		allowed[name] = true
	}
	return &AllowlistPolicy{allowed: allowed, fallback: fallback}
}

func (p *AllowlistPolicy) Evaluate(call ToolCall) PolicyDecision {
	if p.allowed[call.Name] {
		return PolicyDecision{Verdict: PolicyAllow, Reason: "tool is allowlisted"}
	}
	return PolicyDecision{Verdict: p.fallback}
}
