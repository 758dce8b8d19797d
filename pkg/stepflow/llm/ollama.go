package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	sferrors "github.com/randalmurphal/stepflow/pkg/stepflow/errors"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// maxErrorBody bounds how much of an error response is kept in HTTPError.
const maxErrorBody = 4 << 10

// OllamaClient implements Client against Ollama's generate endpoint.
type OllamaClient struct {
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	autoSettings bool
	logger       *slog.Logger
}

// OllamaOption configures OllamaClient.
type OllamaOption func(*OllamaClient)

// WithBaseURL sets the server URL, e.g. "http://gpu-box:11434".
func WithBaseURL(url string) OllamaOption {
	return func(c *OllamaClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.httpClient = hc }
}

// WithTimeout bounds each request. Zero leaves requests bounded only by
// the caller's context. With auto settings enabled it is the base that
// SuggestSettings scales.
func WithTimeout(d time.Duration) OllamaOption {
	return func(c *OllamaClient) { c.timeout = d }
}

// WithAutoSettings derives temperature and timeout from the model name
// when the request leaves them unset.
func WithAutoSettings(enabled bool) OllamaOption {
	return func(c *OllamaClient) { c.autoSettings = enabled }
}

// WithLogger sets the logger used for auto-settings decisions.
func WithLogger(logger *slog.Logger) OllamaOption {
	return func(c *OllamaClient) { c.logger = logger }
}

// NewOllamaClient creates a client for DefaultOllamaURL unless overridden.
func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL:    DefaultOllamaURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured server URL.
func (c *OllamaClient) BaseURL() string { return c.baseURL }

// InvokeModel implements the executor's model invoker: a non-streaming
// generate call whose response text is returned.
func (c *OllamaClient) InvokeModel(ctx context.Context, model, prompt, systemPrompt string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Model:        model,
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	timeout := c.timeout
	options := make(map[string]any, len(req.Options)+1)
	for k, v := range req.Options {
		options[k] = v
	}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}

	if c.autoSettings {
		base := timeout
		if base <= 0 {
			base = time.Minute
		}
		s := SuggestSettings(req.Model, req.Prompt, req.SystemPrompt != "", base)
		if _, set := options["temperature"]; !set {
			options["temperature"] = s.Temperature
		}
		timeout = s.Timeout
		c.logger.Debug("ollama auto settings",
			slog.String("model", req.Model),
			slog.Float64("temperature", s.Temperature),
			slog.Int64("timeout_ms", s.Timeout.Milliseconds()),
			slog.String("reasoning", s.Reasoning),
		)
	}

	payload := map[string]any{
		"model":  req.Model,
		"prompt": req.Prompt,
		"stream": false,
	}
	if req.SystemPrompt != "" {
		payload["system"] = req.SystemPrompt
	}
	if len(options) > 0 {
		payload["options"] = options
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := c.do(ctx, http.MethodPost, "/api/generate", body)
	if err != nil {
		if ctx.Err() != nil && timeout > 0 {
			return nil, &sferrors.TimeoutError{Operation: "model " + req.Model, Timeout: timeout}
		}
		return nil, err
	}

	result := gjson.ParseBytes(data)
	text := result.Get("response")
	if !text.Exists() {
		return nil, fmt.Errorf("no response from ollama for model %s", req.Model)
	}

	prompt := int(result.Get("prompt_eval_count").Int())
	output := int(result.Get("eval_count").Int())
	duration := time.Since(start)
	if ns := result.Get("total_duration"); ns.Exists() {
		duration = time.Duration(ns.Int())
	}

	model := result.Get("model").String()
	if model == "" {
		model = req.Model
	}

	return &CompletionResponse{
		Content:    text.String(),
		Model:      model,
		DoneReason: result.Get("done_reason").String(),
		Usage: TokenUsage{
			InputTokens:  prompt,
			OutputTokens: output,
			TotalTokens:  prompt + output,
		},
		Duration: duration,
	}, nil
}

// ListModels returns the names of the models the server has pulled.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range gjson.GetBytes(data, "models.#.name").Array() {
		names = append(names, name.String())
	}
	return names, nil
}

func (c *OllamaClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	endpoint := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data[:min(len(data), maxErrorBody)]))
		}
		return nil, &sferrors.HTTPError{StatusCode: resp.StatusCode, Message: msg, Endpoint: path}
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON from ollama %s", path)
	}
	return data, nil
}
