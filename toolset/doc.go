// Package toolset provides the tool registry and executor the run loop
// dispatches approved tool calls through.
//
// Tools register a JSON Schema for their arguments; the schema is compiled
// at registration and every incoming call is validated before its handler
// runs, so handlers can trust their input shape. Oversized handler output
// is truncated to per-tool limits before it enters the conversation.
package toolset
