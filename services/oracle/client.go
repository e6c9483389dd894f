package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/services/providers"
)

// Oracle recommends a model for a task. Implementations are black boxes to
// the selector; how they produce an answer is their own business.
type Oracle interface {
	// Consult asks for a routing decision given a rendered candidate set
	// and the task text
	Consult(ctx context.Context, candidates, task string) (*Decision, error)
}

const systemPrompt = `You are a routing arbiter for generative-model tasks.
Given a task and a list of candidate models with their remaining capacity,
success history, and descriptions, pick the single best model.

Answer with exactly one JSON object and nothing else:
{"model": "<candidate name>", "reasoning": "<one sentence>", "estimated_tokens": <integer>, "complexity": "low"|"medium"|"high"}

Rules:
- "model" must be one of the listed candidate names, verbatim.
- "estimated_tokens" is your estimate of total tokens the task will consume.
- Prefer lower-rank models unless the task clearly needs a stronger one.`

// Client consults a configured arbiter model through a provider adapter.
type Client struct {
	provider providers.Provider
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient creates an LLM-backed oracle
func NewClient(provider providers.Provider, model string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		provider: provider,
		model:    model,
		timeout:  timeout,
		logger:   logger,
	}
}

// Consult asks the arbiter model for a decision and parses its answer under
// the strict required-field contract.
func (c *Client) Consult(ctx context.Context, candidates, task string) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf("%s\n\nCandidates:\n%s\n\nTask:\n%s", systemPrompt, candidates, task)

	resp, err := c.provider.GenerateContent(ctx, &providers.GenerateRequest{
		Model:       c.model,
		Prompt:      prompt,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle consult failed: %w", err)
	}

	decision, err := ParseDecision(resp.Text)
	if err != nil {
		c.logger.Warn("oracle answer failed decision contract",
			zap.String("model", c.model),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("oracle decision",
		zap.String("chosen_model", decision.Model),
		zap.Int("estimated_tokens", decision.EstimatedTokens),
		zap.String("complexity", decision.Complexity))

	return decision, nil
}
