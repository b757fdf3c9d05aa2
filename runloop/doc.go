// Package runloop implements a deterministic, multi-turn execution engine
// for an autonomous agent that alternates between model inference and tool
// invocation.
//
// Given a conversation history, a model configuration, and a tool surface,
// the loop drives turns -- infer, parse, approve, execute, append -- until a
// terminal outcome, enforcing retry bounds, context-overflow compaction, and
// crash-recoverable checkpointing, while emitting a typed event stream for
// the hosting process.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Loop: the per-run orchestrator. Exactly one Loop drives one run; many
//     runs may execute concurrently in a host, each owning isolated state.
//   - InferenceClient / ToolExecutor / CompactionEngine / Hook: narrow
//     collaborator interfaces implemented by the host. The loop never owns
//     their lifecycle.
//   - Approval state machine: each proposed tool call resolves to exactly
//     one terminal verdict (approved, denied, or cancelled), either from a
//     policy evaluator or from decisions submitted over the command channel.
//   - Reduce: the context-hygiene pass applied before every inference call.
//     It is idempotent and guarantees every tool call is paired with exactly
//     one tool result.
//   - Envelope: the versioned checkpoint document taken at turn boundaries
//     and terminal transitions; hosts own durable storage.
//   - Emitter: ordered event stream with a monotonic sequence number. Event
//     delivery never blocks loop progress.
//
// The loop performs no logging and no I/O of its own; all user-visible
// behavior is the host's responsibility, driven by the event stream and the
// final Result.
//
// # Quick start
//
//	loop := runloop.NewLoop(
//	    runloop.RunContext{RunID: "run-1", SessionID: "sess-1"},
//	    runloop.DefaultConfig(),
//	    client,   // runloop.InferenceClient
//	    executor, // runloop.ToolExecutor
//	    []runloop.Message{runloop.NewUserMessage("List the files, then summarize.")},
//	)
//
//	go func() {
//	    for event := range loop.Events() {
//	        fmt.Printf("[%s] %v\n", event.Kind, event.Data)
//	    }
//	}()
//
//	result := loop.Run(ctx)
package runloop
