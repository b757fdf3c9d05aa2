// Package llmbridge connects the run loop to LLM providers through gollm.
//
// The bridge implements runloop.InferenceClient (and the streaming variant)
// on top of a gollm.LLM instance. Provider errors are classified into the
// loop's finish reasons so the loop can decide between retrying, compacting,
// and failing; the bridge itself never retries.
package llmbridge
