package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arbiterlabs/arbiter/services/providers"
)

const originName = "openai"

// Adapter implements the Provider interface on the OpenAI chat completions
// API. With a BaseURL override it also serves any OpenAI-compatible origin.
type Adapter struct {
	client *openai.Client
	name   string
}

// NewAdapter creates a new OpenAI adapter
func NewAdapter(cfg providers.ProviderConfig) *Adapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Adapter{
		client: openai.NewClientWithConfig(clientCfg),
		name:   originName,
	}
}

// Name returns the origin name
func (a *Adapter) Name() string {
	return a.name
}

// GenerateContent executes a generation request
func (a *Adapter) GenerateContent(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	start := time.Now()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, a.wrapError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.name, "EMPTY_RESPONSE", "no choices in response", 0, nil)
	}

	return &providers.GenerateResponse{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Latency:    time.Since(start),
	}, nil
}

func (a *Adapter) wrapError(ctx context.Context, err error) error {
	provErr := providers.NewProviderError(a.name, "REQUEST_FAILED", "chat completion failed", 0, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		provErr.Code = "API_ERROR"
		provErr.StatusCode = apiErr.HTTPStatusCode
	}

	// Timeouts are a distinct error kind from provider-reported failures
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		provErr.Code = "TIMEOUT"
		provErr.Timeout = true
	}

	return provErr
}
