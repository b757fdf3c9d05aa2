package toolset

import (
	"context"
	"errors"
	"sync"

	"github.com/martinemde/turnwheel/runloop"
)

// Executor implements runloop.ToolExecutor over a Registry. Unknown tools,
// invalid arguments, and handler failures all come back as error outcomes
// rather than execution errors, so the model sees what went wrong and can
// correct itself on the next turn.
type Executor struct {
	registry *Registry

	mu     sync.RWMutex
	limits map[string]Limits
}

// NewExecutor creates an Executor over the registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		limits:   make(map[string]Limits),
	}
}

// SetLimits overrides the output limits for one tool.
func (e *Executor) SetLimits(toolName string, limits Limits) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits[toolName] = limits
}

func (e *Executor) limitsFor(toolName string) Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if l, ok := e.limits[toolName]; ok {
		return l
	}
	return DefaultLimits
}

// ExecuteToolCall validates and runs one approved tool call.
func (e *Executor) ExecuteToolCall(ctx context.Context, run runloop.RunContext, call runloop.ToolCall) (runloop.ToolOutcome, error) {
	tool := e.registry.Get(call.Name)
	if tool == nil {
		return runloop.ToolOutcome{Output: "unknown tool: " + call.Name, IsError: true}, nil
	}

	if err := tool.validateArguments(call.Arguments); err != nil {
		return runloop.ToolOutcome{Output: "invalid arguments: " + err.Error(), IsError: true}, nil
	}

	if ctx.Err() != nil {
		return runloop.ToolOutcome{Cancelled: true}, nil
	}

	output, err := tool.Handler(ctx, run, call.Arguments)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return runloop.ToolOutcome{Cancelled: true}, nil
		}
		return runloop.ToolOutcome{Output: "error: " + err.Error(), IsError: true}, nil
	}

	return runloop.ToolOutcome{Output: e.limitsFor(call.Name).truncate(output)}, nil
}
