package compaction

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/martinemde/turnwheel/runloop"
)

// perMessageOverhead approximates the framing tokens a provider adds per
// message (role markers, separators).
const perMessageOverhead = 4

// Estimator counts tokens with a tiktoken codec. It implements
// runloop.TokenEstimator.
type Estimator struct {
	codec tokenizer.Codec
}

// NewEstimator returns an Estimator using the cl100k_base encoding, which
// is close enough for budget checks across current chat models.
func NewEstimator() (*Estimator, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Estimator{codec: codec}, nil
}

// EstimateTokens returns the approximate token footprint of the history.
func (e *Estimator) EstimateTokens(messages []runloop.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		total += e.count(messageText(m))
	}
	return total
}

func (e *Estimator) count(s string) int {
	if s == "" {
		return 0
	}
	n, err := e.codec.Count(s)
	if err != nil {
		// Counting only fails on invalid input; fall back to the heuristic.
		return len(s) / 4
	}
	return n
}

// HeuristicEstimator approximates tokens as length/4. It needs no encoding
// tables and is good enough when the pre-flight threshold leaves headroom.
type HeuristicEstimator struct{}

// EstimateTokens returns the approximate token footprint of the history.
func (HeuristicEstimator) EstimateTokens(messages []runloop.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + len(messageText(m))/4
	}
	return total
}

// messageText flattens one message to the text a provider would see.
func messageText(m runloop.Message) string {
	switch m.Kind {
	case runloop.MessageUser:
		if m.User != nil {
			return m.User.Content
		}
	case runloop.MessageAssistant:
		if m.Assistant != nil {
			text := m.Assistant.Content + m.Assistant.Reasoning
			for _, c := range m.Assistant.ToolCalls {
				text += c.Name + string(c.Arguments)
			}
			return text
		}
	case runloop.MessageToolResult:
		if m.ToolResult != nil {
			return m.ToolResult.Content
		}
	}
	return ""
}
