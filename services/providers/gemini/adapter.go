package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arbiterlabs/arbiter/services/providers"
)

const (
	originName     = "gemini"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Adapter implements the Provider interface for the Google Gemini API
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new Gemini adapter
func NewAdapter(cfg providers.ProviderConfig) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Adapter{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the origin name
func (a *Adapter) Name() string {
	return originName
}

// generateContentRequest mirrors the Gemini generateContent wire format
type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateContent executes a generation request
func (a *Adapter) GenerateContent(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	start := time.Now()

	apiReq := generateContentRequest{
		Contents: []content{
			{Parts: []part{{Text: req.Prompt}}},
		},
	}
	if req.Temperature != 0 || req.MaxTokens != 0 {
		cfg := &generationConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature != 0 {
			temp := req.Temperature
			cfg.Temperature = &temp
		}
		apiReq.GenerationConfig = cfg
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, providers.NewProviderError(originName, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.config.BaseURL, req.Model, a.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(originName, "REQUEST_ERROR", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		provErr := providers.NewProviderError(originName, "REQUEST_FAILED", "generateContent call failed", 0, err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			provErr.Code = "TIMEOUT"
			provErr.Timeout = true
		}
		return nil, provErr
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(originName, "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	var apiResp generateContentResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, providers.NewProviderError(originName, "UNMARSHAL_ERROR", "failed to decode response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		message := "upstream error"
		if apiResp.Error != nil {
			message = apiResp.Error.Message
		}
		return nil, providers.NewProviderError(originName, "API_ERROR", message, httpResp.StatusCode, nil)
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return nil, providers.NewProviderError(originName, "EMPTY_RESPONSE", "no candidates in response", httpResp.StatusCode, nil)
	}

	return &providers.GenerateResponse{
		Text:       apiResp.Candidates[0].Content.Parts[0].Text,
		TokensUsed: apiResp.UsageMetadata.TotalTokenCount,
		Latency:    time.Since(start),
	}, nil
}
