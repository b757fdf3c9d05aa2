// Package compaction shrinks a run's working history when it approaches or
// exceeds the model's context window.
//
// The engine keeps the first user message as an anchor, replaces the middle
// of the conversation with a summary, and carries the most recent messages
// unchanged. The output is passed through the same hygiene reduction the
// run loop applies, so compaction can never orphan a tool call or its
// result.
//
// The package also provides token estimators for the loop's pre-flight
// context check: a tiktoken-backed estimator and a cheap length heuristic.
package compaction
