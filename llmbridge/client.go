package llmbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"

	"github.com/martinemde/turnwheel/runloop"
)

// Client implements runloop.InferenceClient and
// runloop.StreamingInferenceClient on top of a gollm.LLM.
type Client struct {
	provider string
	llm      gollm.LLM
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key. If empty, gollm reads it from environment
// variables.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(c *clientConfig) { c.model = model }
}

// WithMaxTokens sets the default max output tokens.
func WithMaxTokens(n int) Option {
	return func(c *clientConfig) { c.maxTokens = n }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *clientConfig) { c.temperature = t }
}

// WithGollmOptions appends extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) Option {
	return func(c *clientConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewClient creates a Client for the given provider ("openai", "anthropic",
// ...). Provider-level retries are disabled; the run loop owns the retry
// schedule.
func NewClient(provider string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}
	return &Client{provider: provider, llm: llm}, nil
}

// NewClientFromLLM wraps an existing gollm.LLM instance.
func NewClientFromLLM(provider string, llm gollm.LLM) *Client {
	return &Client{provider: provider, llm: llm}
}

// Generate performs one blocking inference call. Provider failures are
// classified into the result's finish reason; the error return is reserved
// for context cancellation and request construction.
func (c *Client) Generate(ctx context.Context, messages []runloop.Message, config runloop.ModelConfig) (runloop.InferenceResult, error) {
	prompt := c.buildPrompt(messages, config)
	c.applyConfig(config)

	text, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return c.failedResult(ctx, err)
	}
	return c.buildResult(text), nil
}

// GenerateStream performs one streaming inference call, invoking onChunk
// for every text delta. Clients without streaming support fall back to a
// blocking call surfaced as a single chunk.
func (c *Client) GenerateStream(ctx context.Context, messages []runloop.Message, config runloop.ModelConfig, onChunk runloop.ChunkFunc) (runloop.InferenceResult, error) {
	if !c.llm.SupportsStreaming() {
		result, err := c.Generate(ctx, messages, config)
		if err == nil && result.Finish == runloop.FinishNormal && result.Text != "" && onChunk != nil {
			onChunk(result.Text)
		}
		return result, err
	}

	prompt := c.buildPrompt(messages, config)
	c.applyConfig(config)

	stream, err := c.llm.Stream(ctx, prompt)
	if err != nil {
		return c.failedResult(ctx, err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		token, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return c.failedResult(ctx, err)
		}
		if token == nil {
			continue
		}
		full.WriteString(token.Text)
		if onChunk != nil {
			onChunk(token.Text)
		}
	}
	return c.buildResult(full.String()), nil
}

func (c *Client) failedResult(ctx context.Context, err error) (runloop.InferenceResult, error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return runloop.InferenceResult{}, err
	}
	finish, callErr := Classify(c.provider, err)
	return runloop.InferenceResult{Finish: finish, Err: callErr}, nil
}

// buildPrompt flattens the typed history into a gollm prompt. gollm's
// prompt model is single-shot, so assistant turns and tool results are
// carried as labelled context lines.
func (c *Client) buildPrompt(messages []runloop.Message, config runloop.ModelConfig) *gollm.Prompt {
	var parts []string
	for _, msg := range messages {
		switch msg.Kind {
		case runloop.MessageUser:
			if msg.User != nil {
				parts = append(parts, msg.User.Content)
			}
		case runloop.MessageAssistant:
			if msg.Assistant != nil && msg.Assistant.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Assistant.Content)
			}
		case runloop.MessageToolResult:
			if msg.ToolResult != nil {
				prefix := "[Tool Result]"
				if msg.ToolResult.IsError {
					prefix = "[Tool Error]"
				}
				parts = append(parts, prefix+": "+msg.ToolResult.Content)
			}
		}
	}
	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if config.MaxOutputTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(config.MaxOutputTokens))
	}
	if len(config.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(config.Tools))
		for _, t := range config.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	return gollm.NewPrompt(promptText, promptOpts...)
}

func (c *Client) applyConfig(config runloop.ModelConfig) {
	if config.Model != "" {
		c.llm.SetOption("model", config.Model)
	}
	if config.Temperature > 0 {
		c.llm.SetOption("temperature", config.Temperature)
	}
	if config.MaxOutputTokens > 0 {
		c.llm.SetOption("max_tokens", config.MaxOutputTokens)
	}
}

// buildResult converts generated text into an inference result, extracting
// any tool calls gollm embedded in the text.
func (c *Client) buildResult(text string) runloop.InferenceResult {
	calls := parseToolCalls(text)
	return runloop.InferenceResult{
		Text:      stripToolCallJSON(text, calls),
		ToolCalls: calls,
		Finish:    runloop.FinishNormal,
	}
}

// parseToolCalls extracts tool calls embedded in response text. gollm can
// return calls as a JSON array of {"name": ..., "arguments": ...} objects.
// Parsed calls get fresh IDs and declaration indexes in text order.
func parseToolCalls(text string) []runloop.ToolCall {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	calls := make([]runloop.ToolCall, 0, len(rawCalls))
	for i, rc := range rawCalls {
		calls = append(calls, runloop.ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: rc.Arguments,
			Index:     i,
		})
	}
	return calls
}

// stripToolCallJSON removes the parsed tool call block from the text.
func stripToolCallJSON(text string, calls []runloop.ToolCall) string {
	if len(calls) == 0 {
		return text
	}
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}
