package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterlabs/arbiter/services/providers"
)

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter(providers.ProviderConfig{APIKey: "key"})
	assert.Equal(t, "openai", adapter.Name())
}

func TestAdapter_GenerateContent(t *testing.T) {
	ctx := context.Background()

	t.Run("successful completion", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-4o", req["model"])

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1700000000,
				"model":   "gpt-4o",
				"choices": []map[string]interface{}{
					{
						"index":         0,
						"message":       map[string]string{"role": "assistant", "content": "hello there"},
						"finish_reason": "stop",
					},
				},
				"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
			})
		}))
		defer server.Close()

		adapter := NewAdapter(providers.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})

		resp, err := adapter.GenerateContent(ctx, &providers.GenerateRequest{
			Model:  "gpt-4o",
			Prompt: "say hello",
		})
		require.NoError(t, err)
		assert.Equal(t, "hello there", resp.Text)
		assert.Equal(t, 15, resp.TokensUsed)
		assert.Greater(t, resp.Latency, time.Duration(0))
	})

	t.Run("API error carries the upstream status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"message": "rate limit exceeded",
					"type":    "requests",
				},
			})
		}))
		defer server.Close()

		adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})

		_, err := adapter.GenerateContent(ctx, &providers.GenerateRequest{Model: "gpt-4o", Prompt: "p"})
		require.Error(t, err)

		provErr, ok := err.(*providers.ProviderError)
		require.True(t, ok)
		assert.Equal(t, "API_ERROR", provErr.Code)
		assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
		assert.False(t, provErr.Timeout)
	})

	t.Run("deadline exceeded is a timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})

		timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := adapter.GenerateContent(timeoutCtx, &providers.GenerateRequest{Model: "gpt-4o", Prompt: "p"})
		require.Error(t, err)
		assert.True(t, providers.IsTimeout(err))
	})
}
