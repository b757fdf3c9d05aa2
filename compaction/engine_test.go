package compaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/martinemde/turnwheel/runloop"
)

func userMsg(text string) runloop.Message {
	return runloop.NewUserMessage(text)
}

func assistantMsg(text string) runloop.Message {
	return runloop.NewAssistantMessage(text, "", nil)
}

func assistantCall(id, name string) runloop.Message {
	return runloop.NewAssistantMessage("", "", []runloop.ToolCall{{ID: id, Name: name}})
}

func resultMsg(id, text string) runloop.Message {
	return runloop.NewToolResultMessage(id, text, false)
}

func longHistory() []runloop.Message {
	h := []runloop.Message{userMsg("original goal")}
	for i := 0; i < 8; i++ {
		h = append(h, assistantCall("call", "search"), resultMsg("call", "hits"))
	}
	h = append(h, assistantMsg("progress so far"), userMsg("keep going"))
	return h
}

func TestCompactKeepsAnchorSummaryAndTail(t *testing.T) {
	engine := NewEngine(nil, Config{KeepRecent: 4})
	history := longHistory()

	out, err := engine.Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if len(out) >= len(history) {
		t.Fatalf("compaction did not shrink: %d -> %d", len(history), len(out))
	}
	if out[0].Kind != runloop.MessageUser || out[0].User.Content != "original goal" {
		t.Errorf("anchor lost: %+v", out[0])
	}
	if out[1].Kind != runloop.MessageUser || !strings.HasPrefix(out[1].User.Content, "[Conversation summary]") {
		t.Errorf("expected summary as second message: %+v", out[1])
	}
	last := out[len(out)-1]
	if last.Kind != runloop.MessageUser || last.User.Content != "keep going" {
		t.Errorf("tail lost its final message: %+v", last)
	}
}

func TestCompactDigestNamesToolUsage(t *testing.T) {
	engine := NewEngine(nil, Config{KeepRecent: 2})

	out, err := engine.Compact(context.Background(), longHistory())
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	summary := out[1].User.Content
	if !strings.Contains(summary, "search") {
		t.Errorf("digest should mention the tools used, got %q", summary)
	}
	if !strings.Contains(summary, "elided") {
		t.Errorf("digest should state how much was dropped, got %q", summary)
	}
}

func TestCompactNeverSplitsCallFromResults(t *testing.T) {
	// KeepRecent lands the tail boundary on tool results; the boundary must
	// move back so their declaring call survives with them.
	history := []runloop.Message{
		userMsg("goal"),
		assistantMsg("thinking"),
		assistantMsg("more thinking"),
		assistantMsg("and more"),
		runloop.NewAssistantMessage("", "", []runloop.ToolCall{
			{ID: "a", Name: "read"},
			{ID: "b", Name: "grep"},
		}),
		resultMsg("a", "file contents"),
		resultMsg("b", "matches"),
	}
	engine := NewEngine(nil, Config{KeepRecent: 2})

	out, err := engine.Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	var declared, resolved int
	for _, m := range out {
		if m.Kind == runloop.MessageAssistant && m.Assistant != nil {
			declared += len(m.Assistant.ToolCalls)
		}
		if m.Kind == runloop.MessageToolResult {
			resolved++
		}
	}
	if declared != 2 || resolved != 2 {
		t.Errorf("pairing broken: %d declared, %d resolved", declared, resolved)
	}
}

func TestCompactTooSmallHistory(t *testing.T) {
	engine := NewEngine(nil, Config{KeepRecent: 6})
	history := []runloop.Message{userMsg("goal"), assistantMsg("done")}

	_, err := engine.Compact(context.Background(), history)
	if !errors.Is(err, ErrNothingToCompact) {
		t.Fatalf("expected ErrNothingToCompact, got %v", err)
	}
}

func TestCompactNoUserAnchor(t *testing.T) {
	engine := NewEngine(nil, Config{KeepRecent: 1})
	history := []runloop.Message{assistantMsg("one"), assistantMsg("two"), assistantMsg("three")}

	_, err := engine.Compact(context.Background(), history)
	if !errors.Is(err, ErrNothingToCompact) {
		t.Fatalf("expected ErrNothingToCompact, got %v", err)
	}
}

// summaryClient is a test double that returns a fixed summary.
type summaryClient struct {
	text   string
	err    error
	prompt string
}

func (c *summaryClient) Generate(ctx context.Context, messages []runloop.Message, config runloop.ModelConfig) (runloop.InferenceResult, error) {
	if len(messages) == 1 && messages[0].User != nil {
		c.prompt = messages[0].User.Content
	}
	if c.err != nil {
		return runloop.InferenceResult{}, c.err
	}
	return runloop.InferenceResult{Text: c.text, Finish: runloop.FinishNormal}, nil
}

func TestCompactWithClientUsesSummary(t *testing.T) {
	client := &summaryClient{text: "the user wants X; search found Y"}
	engine := NewEngine(client, Config{KeepRecent: 2})

	out, err := engine.Compact(context.Background(), longHistory())
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if !strings.Contains(out[1].User.Content, "the user wants X") {
		t.Errorf("summary not used: %q", out[1].User.Content)
	}
	if !strings.Contains(client.prompt, "Summarize") {
		t.Errorf("summarization instruction missing from prompt")
	}
	if !strings.Contains(client.prompt, "search") {
		t.Errorf("transcript missing from prompt: %q", client.prompt)
	}
}

func TestCompactSummaryFailurePropagates(t *testing.T) {
	client := &summaryClient{err: errors.New("provider down")}
	engine := NewEngine(client, Config{KeepRecent: 2})

	_, err := engine.Compact(context.Background(), longHistory())
	if err == nil {
		t.Fatal("expected summarization failure to propagate")
	}
}

func TestHeuristicEstimatorScalesWithContent(t *testing.T) {
	var est HeuristicEstimator

	small := est.EstimateTokens([]runloop.Message{userMsg("hi")})
	large := est.EstimateTokens([]runloop.Message{userMsg(strings.Repeat("word ", 500))})
	if large <= small {
		t.Errorf("estimate should grow with content: %d vs %d", small, large)
	}
	if est.EstimateTokens(nil) != 0 {
		t.Errorf("empty history should estimate zero")
	}
}

func TestEstimatorCountsTokens(t *testing.T) {
	est, err := NewEstimator()
	if err != nil {
		t.Fatalf("estimator construction failed: %v", err)
	}
	history := []runloop.Message{userMsg("the quick brown fox jumps over the lazy dog")}
	n := est.EstimateTokens(history)
	if n <= perMessageOverhead {
		t.Errorf("expected positive token count, got %d", n)
	}
	if n > 60 {
		t.Errorf("token count implausibly high for a short sentence: %d", n)
	}
}
