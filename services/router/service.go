package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/internal/observability"
	"github.com/arbiterlabs/arbiter/models"
	"github.com/arbiterlabs/arbiter/services/oracle"
	"github.com/arbiterlabs/arbiter/services/providers"
)

// Config holds execution parameters for the task router
type Config struct {
	// MaxFallbackAttempts bounds the number of distinct models tried per task
	MaxFallbackAttempts int

	// FailureRateThreshold and FailureRateWindow apply the same eligibility
	// rule to fallback candidates that the selector applied to the original
	// candidate set
	FailureRateThreshold float64
	FailureRateWindow    time.Duration

	// ProviderTimeout caps each upstream call
	ProviderTimeout time.Duration

	// Temperature passed through to providers
	Temperature float32
}

// DefaultConfig returns sensible execution defaults
func DefaultConfig() Config {
	return Config{
		MaxFallbackAttempts:  3,
		FailureRateThreshold: 50.0,
		FailureRateWindow:    10 * time.Minute,
		ProviderTimeout:      60 * time.Second,
		Temperature:          0.7,
	}
}

// Ledger is the slice of the quota ledger the router consumes.
type Ledger interface {
	GetModel(ctx context.Context, name string) (*models.Model, error)
	ListAvailable(ctx context.Context, minTokens int) ([]*models.Model, error)
	GetFailureRate(ctx context.Context, model string, window time.Duration) (float64, error)
	RecordUsage(ctx context.Context, model string, requests, tokens int) error
	RecordOutcome(ctx context.Context, model, taskType string, success bool, tokensUsed int, errorMessage string) error
}

// Selector produces routing decisions.
type Selector interface {
	SelectModel(ctx context.Context, task string) (*oracle.Decision, error)
}

// Result is the terminal outcome of one task execution. Failures are
// ordinary values, not errors: a task run out of retries must never
// destabilize the caller.
type Result struct {
	Success    bool             `json:"success"`
	Response   string           `json:"response,omitempty"`
	Error      string           `json:"error,omitempty"`
	ModelUsed  string           `json:"model_used"`
	TokensUsed int              `json:"tokens_used"`
	Attempts   int              `json:"attempts"`
	Decision   *oracle.Decision `json:"decision,omitempty"`
}

// Service executes tasks against the selector's chosen model and retries
// against the next-best surviving candidate, trying at most
// MaxFallbackAttempts distinct models per task.
type Service struct {
	config   Config
	ledger   Ledger
	selector Selector
	registry *providers.Registry
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewService creates a new task router
func NewService(config Config, ledger Ledger, sel Selector, registry *providers.Registry, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		config:   config,
		ledger:   ledger,
		selector: sel,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// execState tracks the last attempt across the retry chain so the terminal
// failure Result can report what was tried last.
type execState struct {
	lastModel string
	lastErr   error
}

// ExecuteTask routes and executes one task. Selection-fatal conditions
// (no candidates at all) surface as errors; execution failures after the
// retry budget surface as a Result with Success=false.
func (s *Service) ExecuteTask(ctx context.Context, task, taskType string) (*Result, error) {
	decision, err := s.selector.SelectModel(ctx, task)
	if err != nil {
		return nil, err
	}

	chosen, err := s.ledger.GetModel(ctx, decision.Model)
	if err != nil {
		return nil, fmt.Errorf("selected model missing from catalog: %w", err)
	}

	s.logger.Info("executing task",
		zap.String("task_type", taskType),
		zap.String("model", decision.Model),
		zap.Int("estimated_tokens", decision.EstimatedTokens))

	exclude := make(map[string]struct{})
	state := &execState{}

	result := s.attemptExecution(ctx, chosen, task, taskType, decision, exclude, state)
	if result != nil {
		result.Decision = decision
		result.Attempts = len(exclude) + 1
		return result, nil
	}

	// Retry budget exhausted
	errMsg := "all execution attempts failed"
	if state.lastErr != nil {
		errMsg = state.lastErr.Error()
	}

	s.logger.Warn("task exhausted all candidates",
		zap.String("task_type", taskType),
		zap.String("last_model", state.lastModel),
		zap.Int("models_tried", len(exclude)))

	return &Result{
		Success:   false,
		Error:     errMsg,
		ModelUsed: state.lastModel,
		Attempts:  len(exclude),
		Decision:  decision,
	}, nil
}

// attemptExecution runs the task on one model, records the outcome, and on
// provider failure hands off to retryWithFallback.
func (s *Service) attemptExecution(ctx context.Context, model *models.Model, task, taskType string, decision *oracle.Decision, exclude map[string]struct{}, state *execState) *Result {
	state.lastModel = model.Name

	provider, err := s.registry.Get(model.Provider)
	if err != nil {
		// No usable credentials for this origin; exclude and move on
		state.lastErr = err
		exclude[model.Name] = struct{}{}
		return s.retryWithFallback(ctx, task, taskType, exclude, decision, state)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	resp, err := provider.GenerateContent(callCtx, &providers.GenerateRequest{
		Model:       model.Name,
		Prompt:      task,
		Temperature: s.config.Temperature,
	})
	if err != nil {
		state.lastErr = err
		s.logger.Warn("provider execution failed",
			zap.String("model", model.Name),
			zap.String("provider", model.Provider),
			zap.Bool("timeout", providers.IsTimeout(err)),
			zap.Error(err))

		if recErr := s.ledger.RecordOutcome(ctx, model.Name, taskType, false, 0, err.Error()); recErr != nil {
			s.logger.Error("failed to record failure outcome", zap.Error(recErr))
		}
		s.metrics.TasksTotal.WithLabelValues(model.Name, "failure").Inc()

		exclude[model.Name] = struct{}{}
		return s.retryWithFallback(ctx, task, taskType, exclude, decision, state)
	}

	s.metrics.ProviderLatency.WithLabelValues(model.Provider).Observe(resp.Latency.Seconds())

	tokensUsed := resp.TokensUsed
	if tokensUsed == 0 {
		tokensUsed = estimateTokens(task, resp.Text)
	}

	if recErr := s.ledger.RecordUsage(ctx, model.Name, 1, tokensUsed); recErr != nil {
		s.logger.Error("failed to record usage", zap.Error(recErr))
	}
	if recErr := s.ledger.RecordOutcome(ctx, model.Name, taskType, true, tokensUsed, ""); recErr != nil {
		s.logger.Error("failed to record success outcome", zap.Error(recErr))
	}

	s.metrics.TasksTotal.WithLabelValues(model.Name, "success").Inc()
	s.metrics.TokensConsumed.WithLabelValues(model.Name).Add(float64(tokensUsed))

	return &Result{
		Success:    true,
		Response:   resp.Text,
		ModelUsed:  model.Name,
		TokensUsed: tokensUsed,
	}
}

// retryWithFallback recomputes the eligible candidate list from a fresh
// ledger snapshot and tries the next-best surviving model. Fallback
// candidates must repass the same failure-rate rule the selector applied.
// Returns nil when the budget or the candidate list is exhausted.
func (s *Service) retryWithFallback(ctx context.Context, task, taskType string, exclude map[string]struct{}, original *oracle.Decision, state *execState) *Result {
	if len(exclude) >= s.config.MaxFallbackAttempts {
		return nil
	}

	available, err := s.ledger.ListAvailable(ctx, original.EstimatedTokens)
	if err != nil {
		s.logger.Error("fallback candidate lookup failed", zap.Error(err))
		return nil
	}

	for _, m := range available {
		if _, skip := exclude[m.Name]; skip {
			continue
		}

		rate, err := s.ledger.GetFailureRate(ctx, m.Name, s.config.FailureRateWindow)
		if err != nil {
			s.logger.Warn("failure-rate check failed for fallback candidate",
				zap.String("model", m.Name),
				zap.Error(err))
			continue
		}
		if rate > s.config.FailureRateThreshold {
			continue
		}

		if !s.registry.Has(m.Provider) {
			exclude[m.Name] = struct{}{}
			continue
		}

		s.metrics.FallbackAttempts.Inc()
		s.logger.Info("retrying task on fallback candidate",
			zap.String("model", m.Name),
			zap.Int("models_excluded", len(exclude)))

		override := &oracle.Decision{
			Model:           m.Name,
			Reasoning:       "retry fallback after execution failure",
			EstimatedTokens: original.EstimatedTokens,
			Complexity:      original.Complexity,
		}

		// attemptExecution continues the retry chain itself on failure,
		// so the first candidate tried here decides the outcome
		return s.attemptExecution(ctx, m, task, taskType, override, exclude, state)
	}

	return nil
}

// estimateTokens approximates token usage from input/output length when the
// provider did not report usage. Four characters per token is the usual
// rough cut for English text.
func estimateTokens(prompt, response string) int {
	estimate := (len(prompt) + len(response)) / 4
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
