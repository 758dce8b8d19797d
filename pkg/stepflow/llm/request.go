// Package llm provides the language-model side of step invocation: a
// completion client for an Ollama server and heuristics that pick request
// settings from a model name.
package llm

import (
	"context"
	"time"
)

// Client performs single-turn completions.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest configures a completion call.
type CompletionRequest struct {
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system,omitempty"`

	// Temperature is left to the server default when nil.
	Temperature *float64 `json:"-"`

	// Options are passed through to the server's options object.
	Options map[string]any `json:"-"`
}

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	Content    string        `json:"content"`
	Model      string        `json:"model"`
	DoneReason string        `json:"done_reason,omitempty"`
	Usage      TokenUsage    `json:"usage"`
	Duration   time.Duration `json:"duration"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ModelFunc adapts a function to the executor's model invoker interface.
type ModelFunc func(ctx context.Context, model, prompt, systemPrompt string) (string, error)

// InvokeModel calls f.
func (f ModelFunc) InvokeModel(ctx context.Context, model, prompt, systemPrompt string) (string, error) {
	return f(ctx, model, prompt, systemPrompt)
}

// ClientInvoker adapts any Client to the executor's model invoker interface.
type ClientInvoker struct {
	Client Client
}

// InvokeModel runs a completion and returns its text.
func (c ClientInvoker) InvokeModel(ctx context.Context, model, prompt, systemPrompt string) (string, error) {
	resp, err := c.Client.Complete(ctx, CompletionRequest{
		Model:        model,
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
