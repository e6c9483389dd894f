package providers

import (
	"context"
	"time"
)

// Provider is one upstream origin of generative-model execution capability.
// Providers are resolved by origin string from the Registry and live for the
// process lifetime.
type Provider interface {
	// Name returns the origin name (e.g. "openai", "gemini")
	Name() string

	// GenerateContent executes a generation request against one of the
	// origin's models
	GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is a unified content-generation request
type GenerateRequest struct {
	// Model identifier within the origin
	Model string `json:"model"`

	// Prompt is the task text
	Prompt string `json:"prompt"`

	// Temperature controls randomness; zero means provider default
	Temperature float32 `json:"temperature,omitempty"`

	// MaxTokens limits the response length; zero means provider default
	MaxTokens int `json:"max_tokens,omitempty"`
}

// GenerateResponse is a unified content-generation response
type GenerateResponse struct {
	// Text is the generated content
	Text string `json:"text"`

	// TokensUsed is the provider-reported total token count; zero when the
	// provider did not report usage, in which case callers estimate from
	// input/output length
	TokensUsed int `json:"tokens_used,omitempty"`

	// Latency of the upstream call
	Latency time.Duration `json:"latency"`
}

// ProviderConfig holds common configuration for provider adapters
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for requests
	Timeout time.Duration
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Timeout marks the error as a timed-out call rather than a
	// provider-reported failure
	Timeout bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// IsTimeout checks whether an error is a provider timeout
func IsTimeout(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Timeout
	}
	return false
}
