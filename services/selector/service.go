package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/models"
	"github.com/arbiterlabs/arbiter/services"
	"github.com/arbiterlabs/arbiter/services/oracle"
	"github.com/arbiterlabs/arbiter/services/providers"
)

// Config holds selection-strategy parameters
type Config struct {
	// FailureRateThreshold excludes candidates whose recent failure rate
	// (percent) exceeds it
	FailureRateThreshold float64

	// FailureRateWindow is the trailing span over which failure rate is
	// measured
	FailureRateWindow time.Duration

	// TokenBuffer is headroom added to the oracle's token estimate when
	// validating capacity
	TokenBuffer int

	// FloorTokens is the minimum token capacity a model must have to enter
	// the candidate set at all
	FloorTokens int

	// DefaultEstimatedTokens is the synthesized estimate used when the
	// oracle produced none
	DefaultEstimatedTokens int
}

// DefaultConfig returns sensible selection defaults
func DefaultConfig() Config {
	return Config{
		FailureRateThreshold:   50.0,
		FailureRateWindow:      10 * time.Minute,
		TokenBuffer:            500,
		FloorTokens:            256,
		DefaultEstimatedTokens: 1000,
	}
}

// Ledger is the slice of the quota ledger the selector consumes.
type Ledger interface {
	ListAvailable(ctx context.Context, minTokens int) ([]*models.Model, error)
	GetUsage(ctx context.Context, model string) (*models.ModelUsage, error)
	GetFailureRate(ctx context.Context, model string, window time.Duration) (float64, error)
	HasCapacity(ctx context.Context, model string, tokens int) (bool, error)
}

// Service picks the model a task should run on. It consults the decision
// oracle, validates the answer against real-time capacity, and falls back to
// a deterministic rank-order rule when the answer is missing, malformed, or
// infeasible. The fallback path never re-invokes the oracle.
type Service struct {
	config   Config
	ledger   Ledger
	registry *providers.Registry
	oracle   oracle.Oracle
	logger   *zap.Logger
}

// NewService creates a new candidate selector
func NewService(config Config, ledger Ledger, registry *providers.Registry, o oracle.Oracle, logger *zap.Logger) *Service {
	return &Service{
		config:   config,
		ledger:   ledger,
		registry: registry,
		oracle:   o,
		logger:   logger,
	}
}

// SelectModel produces a routing decision for the task.
// Returns ErrCapacityExhausted when no eligible candidate exists and
// ErrNoProvidersAvailable when even the emergency fallback finds nothing.
func (s *Service) SelectModel(ctx context.Context, task string) (*oracle.Decision, error) {
	decision, err := s.selectWithOracle(ctx, task)
	if err == nil {
		return decision, nil
	}
	if errors.Is(err, services.ErrCapacityExhausted) {
		return nil, err
	}

	// Emergency fallback: something beyond candidate filtering went wrong
	// (ledger unavailable, etc.). Take the first model with any capacity.
	s.logger.Error("selection failed, attempting emergency fallback", zap.Error(err))

	available, listErr := s.ledger.ListAvailable(ctx, s.config.FloorTokens)
	if listErr != nil || len(available) == 0 {
		return nil, services.ErrNoProvidersAvailable
	}

	return &oracle.Decision{
		Model:           available[0].Name,
		Reasoning:       "emergency fallback: first model with remaining capacity",
		EstimatedTokens: s.config.DefaultEstimatedTokens,
		Complexity:      "medium",
	}, nil
}

func (s *Service) selectWithOracle(ctx context.Context, task string) (*oracle.Decision, error) {
	candidates, err := s.CandidateSet(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, services.ErrCapacityExhausted
	}

	description, err := s.describeCandidates(ctx, candidates)
	if err != nil {
		return nil, err
	}

	decision, consultErr := s.oracle.Consult(ctx, description, task)
	if consultErr != nil {
		s.logger.Warn("oracle consult failed", zap.Error(consultErr))
	} else {
		reason := s.validateDecision(ctx, decision, candidates)
		if reason == "" {
			s.logger.Info("oracle decision accepted",
				zap.String("model", decision.Model),
				zap.Int("estimated_tokens", decision.EstimatedTokens))
			return decision, nil
		}
		s.logger.Warn("oracle decision discarded",
			zap.String("model", decision.Model),
			zap.String("reason", reason))
	}

	estimate := s.config.DefaultEstimatedTokens
	if consultErr == nil && decision.EstimatedTokens > 0 {
		estimate = decision.EstimatedTokens
	}

	return s.deterministicFallback(ctx, candidates, estimate), nil
}

// CandidateSet returns the ranked, filtered candidate list: enabled models
// with quota headroom, a configured provider, and a recent failure rate at
// or under the threshold.
func (s *Service) CandidateSet(ctx context.Context) ([]*models.Model, error) {
	available, err := s.ledger.ListAvailable(ctx, s.config.FloorTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to list available models: %w", err)
	}

	var candidates []*models.Model
	for _, m := range available {
		if !s.registry.Has(m.Provider) {
			s.logger.Debug("skipping model with unconfigured provider",
				zap.String("model", m.Name),
				zap.String("provider", m.Provider))
			continue
		}

		rate, err := s.ledger.GetFailureRate(ctx, m.Name, s.config.FailureRateWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to get failure rate for %s: %w", m.Name, err)
		}
		if rate > s.config.FailureRateThreshold {
			s.logger.Debug("skipping model over failure-rate threshold",
				zap.String("model", m.Name),
				zap.Float64("failure_rate", rate))
			continue
		}

		candidates = append(candidates, m)
	}

	return candidates, nil
}

// validateDecision returns an empty string when the oracle's answer is
// usable, otherwise the reason it was discarded.
func (s *Service) validateDecision(ctx context.Context, decision *oracle.Decision, candidates []*models.Model) string {
	var chosen *models.Model
	for _, c := range candidates {
		if c.Name == decision.Model {
			chosen = c
			break
		}
	}
	if chosen == nil {
		return "named model is not in the candidate set"
	}

	ok, err := s.ledger.HasCapacity(ctx, chosen.Name, decision.EstimatedTokens+s.config.TokenBuffer)
	if err != nil {
		return fmt.Sprintf("capacity re-check failed: %v", err)
	}
	if !ok {
		return "insufficient capacity for estimated tokens plus buffer"
	}

	return ""
}

// deterministicFallback picks the best-ranked candidate with headroom for
// the estimate plus buffer; when none qualifies it returns the first
// candidate unconditionally with a synthesized generic estimate. Pure
// function of the ledger snapshot; never consults the oracle.
func (s *Service) deterministicFallback(ctx context.Context, candidates []*models.Model, estimatedTokens int) *oracle.Decision {
	needed := estimatedTokens + s.config.TokenBuffer
	for _, c := range candidates {
		ok, err := s.ledger.HasCapacity(ctx, c.Name, needed)
		if err != nil {
			s.logger.Warn("fallback capacity check failed",
				zap.String("model", c.Name),
				zap.Error(err))
			continue
		}
		if ok {
			return &oracle.Decision{
				Model:           c.Name,
				Reasoning:       "deterministic fallback: best-ranked candidate with token headroom",
				EstimatedTokens: estimatedTokens,
				Complexity:      "medium",
			}
		}
	}

	return &oracle.Decision{
		Model:           candidates[0].Name,
		Reasoning:       "deterministic fallback: first candidate, no headroom check passed",
		EstimatedTokens: s.config.DefaultEstimatedTokens,
		Complexity:      "medium",
	}
}

// describeCandidates renders the candidate set as a compact block the
// oracle can reason over.
func (s *Service) describeCandidates(ctx context.Context, candidates []*models.Model) (string, error) {
	var b strings.Builder

	for _, m := range candidates {
		usage, err := s.ledger.GetUsage(ctx, m.Name)
		if err != nil {
			return "", fmt.Errorf("failed to get usage for %s: %w", m.Name, err)
		}
		rate, err := s.ledger.GetFailureRate(ctx, m.Name, s.config.FailureRateWindow)
		if err != nil {
			return "", fmt.Errorf("failed to get failure rate for %s: %w", m.Name, err)
		}

		fmt.Fprintf(&b, "- %s (provider=%s rank=%d): %s\n", m.Name, m.Provider, m.Rank, m.Description)
		fmt.Fprintf(&b, "  remaining: %d req/min, %d tok/min, %d req/day, %d tok/day\n",
			m.RPMAllowed-usage.RequestsLastMinute,
			m.TPMTotal-usage.TokensLastMinute,
			m.RPDTotal-usage.RequestsToday,
			m.TPDTotal-usage.TokensToday)
		fmt.Fprintf(&b, "  lifetime success: %.1f%%, recent failures: %.1f%%\n", m.SuccessRate(), rate)
	}

	return b.String(), nil
}
