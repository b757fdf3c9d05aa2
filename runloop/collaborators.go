package runloop

import "context"

// FinishReason classifies how an inference call ended.
type FinishReason string

const (
	// FinishNormal means the model produced a complete response.
	FinishNormal FinishReason = "normal"
	// FinishOverflow means the request exceeded the model's context window.
	FinishOverflow FinishReason = "overflow"
	// FinishRetryable means a transient failure the loop may retry.
	FinishRetryable FinishReason = "retryable_error"
	// FinishFatal means a permanent failure; the run transitions to Failed.
	FinishFatal FinishReason = "fatal_error"
)

// ToolDefinition describes a tool for the model (serializable metadata).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ModelConfig carries the inference parameters and the tool surface for a
// run. The tool snapshot is captured once at run start and treated as
// immutable for the run's duration.
type ModelConfig struct {
	Model           string           `json:"model"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	Temperature     float64          `json:"temperature,omitempty"`
	ContextWindow   int              `json:"context_window,omitempty"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
}

// InferenceResult is what an InferenceClient returns for one call.
// When Finish is FinishRetryable or FinishFatal, Err carries the underlying
// failure; ToolCalls carry their declaration index.
type InferenceResult struct {
	Text      string
	Reasoning string
	ToolCalls []ToolCall
	Finish    FinishReason
	Err       error
}

// InferenceClient produces assistant output from a conversation history.
// A non-nil returned error is treated as fatal; transient and overflow
// conditions are reported through InferenceResult.Finish instead.
type InferenceClient interface {
	Generate(ctx context.Context, messages []Message, config ModelConfig) (InferenceResult, error)
}

// ChunkFunc receives incremental text deltas during a streamed inference
// call.
type ChunkFunc func(delta string)

// StreamingInferenceClient is an optional extension of InferenceClient.
// When the loop's client implements it, text deltas surface as
// EventInferenceChunk events while the call is in flight.
type StreamingInferenceClient interface {
	InferenceClient
	GenerateStream(ctx context.Context, messages []Message, config ModelConfig, onChunk ChunkFunc) (InferenceResult, error)
}

// ToolOutcome is the result of executing one tool call.
type ToolOutcome struct {
	Output    string
	IsError   bool
	Cancelled bool
}

// ToolExecutor resolves and executes tool calls. The context carries the
// cancellation signal; implementations must be safely interruptible and
// report interruption via ToolOutcome.Cancelled. A returned error is
// captured into the call's tool result and never aborts the run.
type ToolExecutor interface {
	ExecuteToolCall(ctx context.Context, run RunContext, call ToolCall) (ToolOutcome, error)
}

// CompactionEngine condenses a conversation history to fit within model
// context limits. The returned history must itself satisfy the tool-call /
// tool-result pairing invariant; the loop treats it opaquely and substitutes
// it for the current working history.
type CompactionEngine interface {
	Compact(ctx context.Context, history []Message) ([]Message, error)
}

// TokenEstimator sizes a history before an inference call so the loop can
// trigger compaction pre-flight instead of waiting for a provider rejection.
type TokenEstimator interface {
	EstimateTokens(messages []Message) int
}

// Hook observes run progress at fixed points. Hooks are invoked
// synchronously on the loop goroutine and must not mutate run state; hosts
// use them for persistence and telemetry triggers.
type Hook interface {
	BeforeInference(run RunContext, history []Message)
	AfterInference(run RunContext, result InferenceResult, err error)
	BeforeToolExecution(run RunContext, call ToolCall)
	AfterToolExecution(run RunContext, call ToolCall, outcome ToolOutcome, err error)
	OnError(run RunContext, err error)
}

// BaseHook is a no-op Hook implementation for embedding, so hosts only
// override the notifications they care about.
type BaseHook struct{}

func (BaseHook) BeforeInference(RunContext, []Message)                       {}
func (BaseHook) AfterInference(RunContext, InferenceResult, error)           {}
func (BaseHook) BeforeToolExecution(RunContext, ToolCall)                    {}
func (BaseHook) AfterToolExecution(RunContext, ToolCall, ToolOutcome, error) {}
func (BaseHook) OnError(RunContext, error)                                   {}
