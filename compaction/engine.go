package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/martinemde/turnwheel/runloop"
)

// ErrNothingToCompact indicates the history is already at its minimum
// shape and compaction cannot shrink it further.
var ErrNothingToCompact = errors.New("compaction: history too small to compact")

const defaultSummaryPrompt = "Summarize the conversation below for an assistant that will continue it. " +
	"Preserve stated goals, decisions, file paths, identifiers, and unresolved questions. " +
	"Be dense; omit pleasantries."

// Config holds compaction parameters.
type Config struct {
	// KeepRecent is how many trailing messages survive verbatim.
	KeepRecent int
	// Model configures the summarization call.
	Model runloop.ModelConfig
	// SummaryPrompt overrides the default summarization instruction.
	SummaryPrompt string
}

// DefaultConfig returns the default compaction configuration.
func DefaultConfig() Config {
	return Config{KeepRecent: 6}
}

// Engine implements runloop.CompactionEngine. With a client it summarizes
// the dropped middle of the conversation through one inference call; with a
// nil client it substitutes a deterministic digest, which keeps the engine
// usable offline and in tests.
type Engine struct {
	client runloop.InferenceClient
	config Config
}

// NewEngine creates an Engine. client may be nil.
func NewEngine(client runloop.InferenceClient, config Config) *Engine {
	if config.KeepRecent <= 0 {
		config.KeepRecent = DefaultConfig().KeepRecent
	}
	return &Engine{client: client, config: config}
}

// Compact rebuilds the history as anchor + summary + recent tail. The
// anchor is the first user message; the tail boundary is pulled back so it
// never starts on a tool result whose declaring call would be dropped. The
// result always passes the loop's hygiene reduction.
func (e *Engine) Compact(ctx context.Context, history []runloop.Message) ([]runloop.Message, error) {
	anchorIdx := -1
	for i, m := range history {
		if m.Kind == runloop.MessageUser {
			anchorIdx = i
			break
		}
	}
	if anchorIdx == -1 {
		return nil, ErrNothingToCompact
	}

	tailStart := len(history) - e.config.KeepRecent
	if tailStart <= anchorIdx+1 {
		return nil, ErrNothingToCompact
	}
	// Do not cut between an assistant's tool calls and their results.
	for tailStart > anchorIdx+1 && history[tailStart].Kind == runloop.MessageToolResult {
		tailStart--
	}
	middle := history[anchorIdx+1 : tailStart]
	if len(middle) == 0 {
		return nil, ErrNothingToCompact
	}

	summary, err := e.summarize(ctx, middle)
	if err != nil {
		return nil, err
	}

	compacted := make([]runloop.Message, 0, len(history)-tailStart+2)
	compacted = append(compacted, runloop.CloneMessage(history[anchorIdx]))
	compacted = append(compacted, runloop.NewUserMessage("[Conversation summary]\n"+summary))
	compacted = append(compacted, runloop.CloneMessages(history[tailStart:])...)

	compacted = runloop.Reduce(compacted)
	if len(compacted) >= len(history) {
		return nil, ErrNothingToCompact
	}
	return compacted, nil
}

func (e *Engine) summarize(ctx context.Context, middle []runloop.Message) (string, error) {
	if e.client == nil {
		return digest(middle), nil
	}

	prompt := e.config.SummaryPrompt
	if prompt == "" {
		prompt = defaultSummaryPrompt
	}
	request := []runloop.Message{
		runloop.NewUserMessage(prompt + "\n\n" + transcript(middle)),
	}
	result, err := e.client.Generate(ctx, request, e.config.Model)
	if err != nil {
		return "", fmt.Errorf("compaction summary: %w", err)
	}
	if result.Finish != runloop.FinishNormal || result.Text == "" {
		if result.Err != nil {
			return "", fmt.Errorf("compaction summary: %w", result.Err)
		}
		return "", errors.New("compaction summary: empty response")
	}
	return result.Text, nil
}

// digest builds a deterministic plain-text account of the dropped middle.
func digest(middle []runloop.Message) string {
	var b strings.Builder
	users, assistants := 0, 0
	toolUses := make(map[string]int)
	var order []string
	for _, m := range middle {
		switch m.Kind {
		case runloop.MessageUser:
			users++
		case runloop.MessageAssistant:
			assistants++
			if m.Assistant != nil {
				for _, c := range m.Assistant.ToolCalls {
					if toolUses[c.Name] == 0 {
						order = append(order, c.Name)
					}
					toolUses[c.Name]++
				}
			}
		}
	}
	fmt.Fprintf(&b, "%d earlier messages elided (%d user, %d assistant).", len(middle), users, assistants)
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, name := range order {
			parts[i] = fmt.Sprintf("%s x%d", name, toolUses[name])
		}
		fmt.Fprintf(&b, " Tools used: %s.", strings.Join(parts, ", "))
	}
	return b.String()
}

// transcript renders messages as labelled lines for the summarization call.
func transcript(messages []runloop.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Kind {
		case runloop.MessageUser:
			if m.User != nil {
				fmt.Fprintf(&b, "User: %s\n", m.User.Content)
			}
		case runloop.MessageAssistant:
			if m.Assistant != nil {
				if m.Assistant.Content != "" {
					fmt.Fprintf(&b, "Assistant: %s\n", m.Assistant.Content)
				}
				for _, c := range m.Assistant.ToolCalls {
					fmt.Fprintf(&b, "Assistant called %s(%s)\n", c.Name, string(c.Arguments))
				}
			}
		case runloop.MessageToolResult:
			if m.ToolResult != nil {
				label := "Tool result"
				if m.ToolResult.IsError {
					label = "Tool error"
				}
				fmt.Fprintf(&b, "%s: %s\n", label, m.ToolResult.Content)
			}
		}
	}
	return b.String()
}
