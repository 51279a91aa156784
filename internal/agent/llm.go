package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/courierai/courier/internal/config"
	"github.com/courierai/courier/internal/metrics"
)

// LLM talks to the OpenAI-compatible proxy.
type LLM struct {
	client    *openai.Client
	model     string
	maxTokens int
	minimal   bool
	logger    *slog.Logger
}

// LLMOption configures the client.
type LLMOption func(*llmOptions)

type llmOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithLLMHTTPClient overrides the HTTP client, mainly for tests.
func WithLLMHTTPClient(httpClient *http.Client) LLMOption {
	return func(o *llmOptions) {
		if httpClient != nil {
			o.httpClient = httpClient
		}
	}
}

// WithLLMLogger configures the client logger.
func WithLLMLogger(logger *slog.Logger) LLMOption {
	return func(o *llmOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewLLM builds a client against cfg.ProxyURL. The proxy handles provider
// auth, so no API key travels with the request.
func NewLLM(cfg config.LLMConfig, opts ...LLMOption) *LLM {
	o := &llmOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	clientCfg := openai.DefaultConfig("")
	clientCfg.BaseURL = cfg.ProxyURL + "/v1"
	if o.httpClient != nil {
		clientCfg.HTTPClient = o.httpClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &LLM{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		minimal:   cfg.MinimalContext,
		logger:    o.logger,
	}
}

// Complete runs one chat completion and returns the first choice's message
// and finish reason. Minimal-context backends cannot take tool definitions,
// so they are dropped there and the loop degrades to plain chat.
func (l *LLM) Complete(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, string, error) {
	if l.minimal && len(tools) > 0 {
		l.logger.Debug("minimal-context backend, omitting tool definitions", "dropped", len(tools))
		tools = nil
	}

	req := openai.ChatCompletionRequest{
		Model:     l.model,
		Messages:  messages,
		MaxTokens: l.maxTokens,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return openai.ChatCompletionMessage{}, "", err
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return openai.ChatCompletionMessage{}, "", fmt.Errorf("no choices in completion %s", resp.ID)
	}

	metrics.LLMRequests.WithLabelValues("ok").Inc()
	choice := resp.Choices[0]
	l.logger.Debug("completion",
		"id", resp.ID,
		"finish", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
		"content_chars", len(choice.Message.Content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return choice.Message, string(choice.FinishReason), nil
}
