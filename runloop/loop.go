package runloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Result is returned by Loop.Run once the run reaches a terminal state.
type Result struct {
	Status   Status
	Output   string
	Err      error
	Messages []Message
	Turns    int
}

// Config holds configuration for a run.
type Config struct {
	Model                ModelConfig
	Retry                RetryConfig
	MaxCompactionRetries int     // bound on compaction retries per turn
	MaxTurns             int     // 0 = unlimited
	EventBuffer          int     // outbound event channel capacity
	CommandBuffer        int     // inbound command queue capacity
	PreflightThreshold   float64 // fraction of the context window; 0 disables the pre-flight check
	DetectRepeats        bool
	RepeatWindow         int
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		Retry:                DefaultRetryConfig(),
		MaxCompactionRetries: 3,
		EventBuffer:          256,
		CommandBuffer:        16,
		PreflightThreshold:   0.8,
		RepeatWindow:         10,
	}
}

// Loop drives one run from its initial history to a terminal outcome.
// Exactly one Loop instance drives one run; the loop executes as a single
// logical sequence interleaved with asynchronous waits, so run state needs
// no internal locking. Many loops may run concurrently in a host, each
// owning isolated state.
type Loop struct {
	run       RunContext
	config    Config
	client    InferenceClient
	executor  ToolExecutor
	policy    ApprovalPolicy
	compactor CompactionEngine
	estimator TokenEstimator
	hooks     []Hook
	emitter   *Emitter
	commands  chan Command

	history           []Message
	retry             RetryState
	compactionRetries int
	turns             int
	cancelled         bool
	cancelReason      string
}

// Option configures a Loop.
type Option func(*Loop)

// WithPolicy sets the approval policy consulted for every proposed tool
// call. The default approves everything.
func WithPolicy(policy ApprovalPolicy) Option {
	return func(l *Loop) { l.policy = policy }
}

// WithCompactionEngine enables context-overflow compaction.
func WithCompactionEngine(engine CompactionEngine) Option {
	return func(l *Loop) { l.compactor = engine }
}

// WithTokenEstimator enables the pre-flight context size check.
func WithTokenEstimator(estimator TokenEstimator) Option {
	return func(l *Loop) { l.estimator = estimator }
}

// WithHooks registers observer hooks invoked synchronously at fixed points.
func WithHooks(hooks ...Hook) Option {
	return func(l *Loop) { l.hooks = append(l.hooks, hooks...) }
}

// NewLoop creates a Loop for a fresh run. The run context is supplied by
// the host and immutable for the run's lifetime.
func NewLoop(run RunContext, config Config, client InferenceClient, executor ToolExecutor, initial []Message, opts ...Option) *Loop {
	commandBuffer := config.CommandBuffer
	if commandBuffer <= 0 {
		commandBuffer = 16
	}
	l := &Loop{
		run:      run,
		config:   config,
		client:   client,
		executor: executor,
		policy:   AllowAllPolicy{},
		emitter:  NewEmitter(run, config.EventBuffer),
		commands: make(chan Command, commandBuffer),
		history:  CloneMessages(initial),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLoopFromCheckpoint creates a Loop resuming from a decoded checkpoint
// envelope. History, retry state, and the compaction retry counter are
// restored; the first Reduce pass closes out any tool call the checkpoint
// captured mid-turn.
func NewLoopFromCheckpoint(env Envelope, config Config, client InferenceClient, executor ToolExecutor, opts ...Option) *Loop {
	run := RunContext{RunID: env.RunID, SessionID: env.SessionID}
	l := NewLoop(run, config, client, executor, env.Messages, opts...)
	l.retry = env.RetryState
	l.compactionRetries = env.CompactionRetryCount
	return l
}

// Events returns the outbound event channel. It is closed when Run returns.
func (l *Loop) Events() <-chan Event {
	return l.emitter.Events()
}

// Cancel requests cooperative cancellation. The run stops at the next
// cancellation checkpoint; in-flight tool executions are signalled so they
// can stop early, and every declared tool call still receives a terminal
// result.
func (l *Loop) Cancel(reason string) {
	l.submit(CancelCommand{Reason: reason})
}

// SubmitDecision resolves one proposed tool call awaiting approval.
// Decisions may arrive in any order relative to other pending calls.
func (l *Loop) SubmitDecision(toolCallID string, verdict Verdict) {
	l.submit(DecisionCommand{ToolCallID: toolCallID, Verdict: verdict})
}

// SubmitBulkDecision applies one verdict to every still-pending call of the
// identified turn.
func (l *Loop) SubmitBulkDecision(turnID string, verdict Verdict) {
	l.submit(BulkDecisionCommand{TurnID: turnID, Verdict: verdict})
}

// submit enqueues a command without ever blocking the host. Commands
// overflowing the bounded queue, or submitted after the run terminated, are
// discarded; a stale decision would be rejected as a no-op anyway.
func (l *Loop) submit(cmd Command) {
	select {
	case l.commands <- cmd:
	default:
	}
}

// Run drives the loop until a terminal outcome. It must be called exactly
// once.
func (l *Loop) Run(ctx context.Context) Result {
	defer l.emitter.Close()

	for {
		turnID := uuid.New().String()

		l.drainCommands(nil)
		if l.cancelled || ctx.Err() != nil {
			return l.finishCancelled(turnID)
		}
		if l.config.MaxTurns > 0 && l.turns >= l.config.MaxTurns {
			return l.fail(turnID, ErrTurnLimit)
		}

		l.history = Reduce(l.history)
		l.saveCheckpoint(turnID)
		l.emit(EventTurnStarted, turnID, map[string]any{"turn": l.turns + 1})

		if l.overPreflightBudget() {
			if res, fatal := l.compact(ctx, turnID, "preflight"); fatal {
				return res
			}
		}

		result, err := l.infer(ctx, turnID)
		if err != nil {
			if ctx.Err() != nil {
				l.cancelled = true
				return l.finishCancelled(turnID)
			}
			return l.fail(turnID, err)
		}

		switch result.Finish {
		case FinishFatal:
			return l.fail(turnID, result.Err)
		case FinishOverflow:
			if res, fatal := l.compact(ctx, turnID, "overflow"); fatal {
				return res
			}
			// Retry the same turn with the substituted history.
			continue
		case FinishRetryable:
			delay, ok := l.retry.Next(l.config.Retry)
			if !ok {
				return l.fail(turnID, errors.Join(ErrRetryExhausted, result.Err))
			}
			l.emit(EventError, turnID, map[string]any{
				"error":       errorString(result.Err),
				"transient":   true,
				"attempt":     l.retry.AttemptCount,
				"retry_in_ms": delay.Milliseconds(),
			})
			if !l.sleep(ctx, delay) {
				return l.finishCancelled(turnID)
			}
			continue
		}

		l.history = append(l.history, NewAssistantMessage(result.Text, result.Reasoning, result.ToolCalls))
		l.turns++

		if len(result.ToolCalls) == 0 {
			l.retry.Reset()
			l.compactionRetries = 0
			l.emit(EventTurnCompleted, turnID, map[string]any{"turn": l.turns})
			return l.finishNormal(turnID, result.Text)
		}

		ids := make([]string, len(result.ToolCalls))
		names := make([]string, len(result.ToolCalls))
		for i, c := range result.ToolCalls {
			ids[i] = c.ID
			names[i] = c.Name
		}
		l.emit(EventToolCallsProposed, turnID, map[string]any{
			"count":         len(ids),
			"tool_call_ids": ids,
			"tool_names":    names,
		})

		l.runToolCalls(ctx, turnID, result.ToolCalls)
		if l.cancelled || ctx.Err() != nil {
			return l.finishCancelled(turnID)
		}

		l.retry.Reset()
		l.compactionRetries = 0
		l.emit(EventTurnCompleted, turnID, map[string]any{"turn": l.turns})

		if l.config.DetectRepeats && DetectRepeatedCalls(l.history, l.config.RepeatWindow) {
			l.emit(EventError, turnID, map[string]any{
				"error":   fmt.Sprintf("the last %d tool calls follow a repeating pattern", l.config.RepeatWindow),
				"warning": true,
			})
		}
	}
}

// infer performs one inference call over a snapshot of the working history,
// surfacing streamed deltas as events when the client supports streaming.
func (l *Loop) infer(ctx context.Context, turnID string) (InferenceResult, error) {
	snapshot := CloneMessages(l.history)
	for _, h := range l.hooks {
		h.BeforeInference(l.run, snapshot)
	}
	var result InferenceResult
	var err error
	if sc, ok := l.client.(StreamingInferenceClient); ok {
		result, err = sc.GenerateStream(ctx, snapshot, l.config.Model, func(delta string) {
			l.emit(EventInferenceChunk, turnID, map[string]any{"delta": delta})
		})
	} else {
		result, err = l.client.Generate(ctx, snapshot, l.config.Model)
	}
	for _, h := range l.hooks {
		h.AfterInference(l.run, result, err)
	}
	return result, err
}

// compact substitutes the compaction engine's output for the working
// history, bounded by the per-turn compaction retry counter. The second
// return value reports a fatal outcome.
func (l *Loop) compact(ctx context.Context, turnID, trigger string) (Result, bool) {
	if l.compactor == nil {
		return l.fail(turnID, ErrCompactionUnavailable), true
	}
	if l.compactionRetries >= l.config.MaxCompactionRetries {
		return l.fail(turnID, ErrCompactionExhausted), true
	}
	l.compactionRetries++
	compacted, err := l.compactor.Compact(ctx, CloneMessages(l.history))
	if err != nil {
		return l.fail(turnID, fmt.Errorf("compaction: %w", err)), true
	}
	before := len(l.history)
	l.history = compacted
	l.emit(EventCompactionTriggered, turnID, map[string]any{
		"trigger":         trigger,
		"retry":           l.compactionRetries,
		"messages_before": before,
		"messages_after":  len(compacted),
	})
	return Result{}, false
}

func (l *Loop) overPreflightBudget() bool {
	if l.estimator == nil || l.config.PreflightThreshold <= 0 || l.config.Model.ContextWindow <= 0 {
		return false
	}
	budget := int(float64(l.config.Model.ContextWindow) * l.config.PreflightThreshold)
	return l.estimator.EstimateTokens(l.history) > budget
}

// runToolCalls takes one turn's proposed calls through approval, dispatch,
// and result placement. Every declared call ends with exactly one tool
// result appended in declaration index order, regardless of the order in
// which decisions arrive or executions complete.
func (l *Loop) runToolCalls(ctx context.Context, turnID string, calls []ToolCall) {
	turn := newApprovalTurn(turnID, calls)

	// Policy pass: definitive verdicts transition immediately, in
	// declaration order.
	for _, c := range calls {
		pd := l.policy.Evaluate(c)
		switch pd.Verdict {
		case PolicyAllow:
			if d, err := turn.resolve(c.ID, VerdictApproved, SourcePolicy, pd.Reason); err == nil {
				l.emitDecision(turnID, d)
			}
		case PolicyDeny:
			if d, err := turn.resolve(c.ID, VerdictDenied, SourcePolicy, pd.Reason); err == nil {
				l.emitDecision(turnID, d)
			}
		}
	}

	// Await external decisions for anything policy left pending.
	for len(turn.pending()) > 0 && !l.cancelled {
		select {
		case <-ctx.Done():
			l.cancelled = true
		case cmd := <-l.commands:
			l.handleCommand(turn, cmd)
		}
	}
	if l.cancelled {
		for _, c := range turn.pending() {
			if d, err := turn.resolve(c.ID, VerdictCancelled, SourceUser, "run cancelled"); err == nil {
				l.emitDecision(turnID, d)
			}
		}
	}

	// Dispatch approved calls in declaration order. Execution is concurrent
	// but the cancellation checkpoint holds before each dispatch, and the
	// child context reaches in-flight executions so they can stop early.
	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()
	type execResult struct {
		idx     int
		outcome ToolOutcome
		err     error
	}
	resultCh := make(chan execResult, len(calls))
	launched := make(map[int]bool, len(calls))
	for i, c := range calls {
		d, ok := turn.decision(c.ID)
		if !ok || d.Verdict != VerdictApproved {
			continue
		}
		l.drainCommands(turn)
		if l.cancelled {
			cancelExec()
			break
		}
		for _, h := range l.hooks {
			h.BeforeToolExecution(l.run, c)
		}
		launched[i] = true
		go func(idx int, call ToolCall) {
			outcome, err := l.executor.ExecuteToolCall(execCtx, l.run, call)
			resultCh <- execResult{idx: idx, outcome: outcome, err: err}
		}(i, CloneToolCall(c))
	}

	// Collect completions while keeping the command channel live so
	// cancellation can reach in-flight work.
	results := make(map[int]execResult, len(launched))
	done := ctx.Done()
	for len(results) < len(launched) {
		select {
		case r := <-resultCh:
			results[r.idx] = r
		case cmd := <-l.commands:
			l.handleCommand(turn, cmd)
			if l.cancelled {
				cancelExec()
			}
		case <-done:
			l.cancelled = true
			cancelExec()
			done = nil
		}
	}

	// Append one result per declared call, by declaration index. A denied
	// or cancelled call gets a synthesized result carrying the reason; a
	// silent omission would corrupt the pairing downstream providers
	// require.
	for i, c := range calls {
		d, _ := turn.decision(c.ID)
		var msg Message
		switch {
		case d.Verdict == VerdictApproved && launched[i]:
			r := results[i]
			switch {
			case r.err != nil:
				msg = NewToolResultMessage(c.ID, "tool error: "+r.err.Error(), true)
			case r.outcome.Cancelled:
				msg = newSkippedToolResult(c.ID, "tool execution cancelled")
			default:
				msg = NewToolResultMessage(c.ID, r.outcome.Output, r.outcome.IsError)
			}
			for _, h := range l.hooks {
				h.AfterToolExecution(l.run, c, r.outcome, r.err)
			}
		case d.Verdict == VerdictApproved:
			// Approved but never dispatched: cancellation won the race.
			msg = newSkippedToolResult(c.ID, "tool execution cancelled")
		case d.Verdict == VerdictDenied:
			reason := d.Reason
			if reason == "" {
				reason = "tool call denied"
			}
			msg = NewToolResultMessage(c.ID, "denied: "+reason, true)
		default:
			msg = newSkippedToolResult(c.ID, "tool call cancelled")
		}
		l.history = append(l.history, msg)
		l.emit(EventToolResultAppended, turnID, map[string]any{
			"tool_call_id": c.ID,
			"index":        c.Index,
			"is_error":     msg.ToolResult.IsError,
		})
	}
}

// handleCommand applies one inbound command. turn is nil outside the
// approval window; decisions arriving then are rejected as protocol errors,
// reported but never fatal.
func (l *Loop) handleCommand(turn *approvalTurn, cmd Command) {
	switch c := cmd.(type) {
	case CancelCommand:
		l.cancelled = true
		l.cancelReason = c.Reason
	case DecisionCommand:
		if turn == nil {
			l.emitProtocolError("", &ProtocolError{ToolCallID: c.ToolCallID, Reason: "no turn awaiting decisions"})
			return
		}
		d, err := turn.resolve(c.ToolCallID, c.Verdict, SourceUser, "")
		if err != nil {
			l.emitProtocolError(turn.turnID, err)
			return
		}
		l.emitDecision(turn.turnID, d)
	case BulkDecisionCommand:
		if turn == nil {
			l.emitProtocolError("", &ProtocolError{TurnID: c.TurnID, Reason: "no turn awaiting decisions"})
			return
		}
		resolved, err := turn.resolveBulk(c.TurnID, c.Verdict)
		if err != nil {
			l.emitProtocolError(turn.turnID, err)
			return
		}
		for _, d := range resolved {
			l.emitDecision(turn.turnID, d)
		}
	}
}

// drainCommands applies every queued command without blocking.
func (l *Loop) drainCommands(turn *approvalTurn) {
	for {
		select {
		case cmd := <-l.commands:
			l.handleCommand(turn, cmd)
		default:
			return
		}
	}
}

// sleep waits out a retry backoff while honoring cancellation.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.cancelled = true
			return false
		case cmd := <-l.commands:
			l.handleCommand(nil, cmd)
			if l.cancelled {
				return false
			}
		case <-timer.C:
			return true
		}
	}
}

func (l *Loop) saveCheckpoint(turnID string) {
	env := Envelope{
		RunID:                l.run.RunID,
		SessionID:            l.run.SessionID,
		Messages:             CloneMessages(l.history),
		RetryState:           l.retry,
		CompactionRetryCount: l.compactionRetries,
		CreatedAt:            time.Now().UTC(),
	}
	data, err := EncodeCheckpoint(env)
	if err != nil {
		l.emit(EventError, turnID, map[string]any{"error": "encode checkpoint: " + err.Error()})
		return
	}
	l.emit(EventCheckpointSaved, turnID, map[string]any{
		"envelope": json.RawMessage(data),
		"messages": len(env.Messages),
	})
}

func (l *Loop) finishNormal(turnID, output string) Result {
	l.saveCheckpoint(turnID)
	l.emit(EventRunFinished, turnID, map[string]any{"status": string(StatusFinished)})
	return Result{Status: StatusFinished, Output: output, Messages: l.history, Turns: l.turns}
}

func (l *Loop) finishCancelled(turnID string) Result {
	l.saveCheckpoint(turnID)
	data := map[string]any{"status": string(StatusCancelled)}
	if l.cancelReason != "" {
		data["reason"] = l.cancelReason
	}
	l.emit(EventRunFinished, turnID, data)
	return Result{Status: StatusCancelled, Err: context.Canceled, Messages: l.history, Turns: l.turns}
}

func (l *Loop) fail(turnID string, err error) Result {
	if err == nil {
		err = errors.New("inference failed")
	}
	for _, h := range l.hooks {
		h.OnError(l.run, err)
	}
	l.emit(EventError, turnID, map[string]any{"error": err.Error()})
	l.saveCheckpoint(turnID)
	l.emit(EventRunFinished, turnID, map[string]any{"status": string(StatusFailed), "error": err.Error()})
	return Result{Status: StatusFailed, Err: err, Messages: l.history, Turns: l.turns}
}

func (l *Loop) emit(kind EventKind, turnID string, data map[string]any) {
	l.emitter.Emit(kind, turnID, data)
}

func (l *Loop) emitDecision(turnID string, d Decision) {
	l.emit(EventToolDecision, turnID, map[string]any{
		"tool_call_id": d.ToolCallID,
		"verdict":      string(d.Verdict),
		"source":       string(d.Source),
		"reason":       d.Reason,
	})
}

func (l *Loop) emitProtocolError(turnID string, err error) {
	l.emit(EventError, turnID, map[string]any{
		"error":    err.Error(),
		"protocol": true,
	})
}

func errorString(err error) string {
	if err == nil {
		return "transient inference error"
	}
	return err.Error()
}
