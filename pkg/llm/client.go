// Package llm wraps the LLM provider behind three entry points: free-form
// generation, strict-JSON analysis, and raw message-level calls used by the
// agent tool-calling loop. When no API key is configured the client is
// disabled and every call reports ErrUnavailable.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/backoffice-suite/boar/pkg/config"
)

var (
	// ErrUnavailable is returned when the client has no configured provider.
	// The API layer maps it to 503.
	ErrUnavailable = errors.New("AI unavailable")
)

// BadJSONError is returned when the model response contains no parseable
// JSON object. Preview carries a bounded slice of the raw response.
type BadJSONError struct {
	Preview string
}

func (e *BadJSONError) Error() string {
	return fmt.Sprintf("AI returned malformed JSON: %q", e.Preview)
}

// GenerationError wraps a provider-side failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("AI generation failed: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// GenerateOptions carries the optional knobs of Generate.
type GenerateOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Client is the LLM orchestrator entry point. Safe for concurrent use.
type Client struct {
	model   llms.Model
	name    string
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a client from config. A missing API key yields a disabled
// client rather than an error so LLM-optional services can still start.
func New(cfg config.LLMConfig) (*Client, error) {
	c := &Client{
		name:    cfg.Model,
		timeout: cfg.Timeout,
		logger:  slog.Default().With("component", "llm-client"),
	}
	if cfg.Timeout == 0 {
		c.timeout = 60 * time.Second
	}
	if cfg.APIKey == "" {
		c.logger.Warn("No LLM API key configured, AI features disabled")
		return c, nil
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	c.model = model
	return c, nil
}

// NewWithModel builds a client around an existing model. Used by tests to
// inject fakes.
func NewWithModel(model llms.Model, name string) *Client {
	return &Client{
		model:   model,
		name:    name,
		timeout: 60 * time.Second,
		logger:  slog.Default().With("component", "llm-client"),
	}
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.model != nil
}

// Generate produces a free-form text completion.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if !c.Enabled() {
		return "", ErrUnavailable
	}

	messages := []llms.MessageContent{}
	if opts.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, opts.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	resp, err := c.generate(ctx, messages, callOpts...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

// AnalyzeJSON appends data as a fenced JSON block to the prompt, forces a
// JSON-only system instruction, and parses the first well-formed JSON
// object in the response.
func (c *Client) AnalyzeJSON(ctx context.Context, prompt string, data interface{}, system string) (map[string]interface{}, error) {
	if !c.Enabled() {
		return nil, ErrUnavailable
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis data: %w", err)
	}

	fullPrompt := fmt.Sprintf("%s\n\nData:\n```json\n%s\n```", prompt, encoded)
	fullSystem := system + "\n\nRespond with a single JSON object only. No prose, no markdown."

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fullSystem),
		llms.TextParts(llms.ChatMessageTypeHuman, fullPrompt),
	}

	resp, err := c.generate(ctx, messages)
	if err != nil {
		return nil, err
	}

	text := resp.Choices[0].Content
	extracted, ok := ExtractJSONObject(text)
	if !ok {
		return nil, &BadJSONError{Preview: preview(text, 200)}
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(extracted), &out); err != nil {
		return nil, &BadJSONError{Preview: preview(text, 200)}
	}
	return out, nil
}

// GenerateMessages runs a raw message-level call, optionally with bound
// tools. The agent tool-calling loop drives the conversation through this.
func (c *Client) GenerateMessages(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*llms.ContentResponse, error) {
	if !c.Enabled() {
		return nil, ErrUnavailable
	}
	var callOpts []llms.CallOption
	if len(tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(tools))
	}
	return c.generate(ctx, messages, callOpts...)
}

func (c *Client) generate(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &GenerationError{Err: errors.New("empty response")}
	}
	return resp, nil
}

func preview(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
