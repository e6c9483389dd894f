package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/models"
	"github.com/arbiterlabs/arbiter/repositories"
	"github.com/arbiterlabs/arbiter/services"
)

// Quota windows over which usage is summed.
const (
	MinuteWindow = time.Minute
	DayWindow    = 24 * time.Hour
)

// Service is the quota ledger. It owns the model catalog and the append-only
// usage/outcome event logs, and answers sliding-window capacity and
// failure-rate queries. Windows are computed by summing timestamped events
// rather than maintained as counters that reset on a clock tick; fixed
// buckets would let a caller spend a full quota twice across a bucket edge.
type Service struct {
	repos  *repositories.Repositories
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new quota ledger service
func NewService(repos *repositories.Repositories, logger *zap.Logger) *Service {
	return &Service{
		repos:  repos,
		logger: logger,
		now:    time.Now,
	}
}

// UpsertModels merges the given catalog into the ledger by unique model
// name. Configuration (rank, description, enabled flag, quota ceilings) is
// overwritten; usage and outcome history are left untouched, so applying the
// same catalog twice is a no-op.
func (s *Service) UpsertModels(ctx context.Context, catalog []models.Model) error {
	for i := range catalog {
		if err := validateCeilings(&catalog[i]); err != nil {
			return err
		}
		if err := s.repos.Models.Upsert(ctx, &catalog[i]); err != nil {
			return fmt.Errorf("failed to upsert model %s: %w", catalog[i].Name, err)
		}
	}

	s.logger.Info("model catalog seeded", zap.Int("models", len(catalog)))
	return nil
}

// RecordUsage appends one usage event at the current clock time.
// No read-before-write; safe under concurrent callers.
func (s *Service) RecordUsage(ctx context.Context, model string, requests, tokens int) error {
	event := &models.UsageEvent{
		Model:     model,
		Requests:  requests,
		Tokens:    tokens,
		Timestamp: s.now(),
	}

	if err := s.repos.Usage.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to record usage for %s: %w", model, err)
	}

	return nil
}

// RecordOutcome appends one outcome event and increments the model's
// lifetime success/failure counter. Both writes commit in one transaction
// or not at all.
func (s *Service) RecordOutcome(ctx context.Context, model, taskType string, success bool, tokensUsed int, errorMessage string) error {
	event := &models.OutcomeEvent{
		Model:      model,
		TaskType:   taskType,
		Success:    success,
		TokensUsed: tokensUsed,
		Timestamp:  s.now(),
	}
	if errorMessage != "" {
		event.ErrorMessage = &errorMessage
	}

	err := s.repos.TxManager.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.repos.Outcomes.Insert(txCtx, event); err != nil {
			return err
		}
		return s.repos.Models.IncrementOutcome(txCtx, model, success)
	})

	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", model, err)
	}

	return nil
}

// GetUsage returns the four sliding-window sums for the model: requests and
// tokens over the trailing minute, requests and tokens over the trailing day.
func (s *Service) GetUsage(ctx context.Context, model string) (*models.ModelUsage, error) {
	now := s.now()

	minuteRequests, minuteTokens, err := s.repos.Usage.SumSince(ctx, model, now.Add(-MinuteWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to sum minute window for %s: %w", model, err)
	}

	dayRequests, dayTokens, err := s.repos.Usage.SumSince(ctx, model, now.Add(-DayWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to sum day window for %s: %w", model, err)
	}

	return &models.ModelUsage{
		RequestsLastMinute: minuteRequests,
		TokensLastMinute:   minuteTokens,
		RequestsToday:      dayRequests,
		TokensToday:        dayTokens,
	}, nil
}

// ListAvailable returns enabled models with remaining headroom on all four
// quotas for one more request consuming at least minTokens tokens, ordered
// by rank ascending.
func (s *Service) ListAvailable(ctx context.Context, minTokens int) ([]*models.Model, error) {
	enabled, err := s.repos.Models.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled models: %w", err)
	}

	var available []*models.Model
	for _, m := range enabled {
		usage, err := s.GetUsage(ctx, m.Name)
		if err != nil {
			return nil, err
		}
		if m.HasCapacity(usage, minTokens) {
			available = append(available, m)
		}
	}

	return available, nil
}

// HasCapacity reports whether the named model currently has headroom on all
// four quotas for a request consuming the given number of tokens.
func (s *Service) HasCapacity(ctx context.Context, model string, tokens int) (bool, error) {
	m, err := s.repos.Models.GetByName(ctx, model)
	if err != nil {
		return false, fmt.Errorf("%w: %s", services.ErrModelNotFound, model)
	}

	usage, err := s.GetUsage(ctx, model)
	if err != nil {
		return false, err
	}

	return m.HasCapacity(usage, tokens), nil
}

// GetFailureRate returns the percentage of failed outcomes among all
// outcomes recorded for the model within the window. A window with no
// events has a failure rate of 0.
func (s *Service) GetFailureRate(ctx context.Context, model string, window time.Duration) (float64, error) {
	total, failed, err := s.repos.Outcomes.CountSince(ctx, model, s.now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("failed to count outcomes for %s: %w", model, err)
	}

	if total == 0 {
		return 0, nil
	}

	return float64(failed) / float64(total) * 100.0, nil
}

// GetModel retrieves one model from the catalog
func (s *Service) GetModel(ctx context.Context, name string) (*models.Model, error) {
	return s.repos.Models.GetByName(ctx, name)
}

// ListModels retrieves all enabled models regardless of remaining capacity
func (s *Service) ListModels(ctx context.Context) ([]*models.Model, error) {
	return s.repos.Models.ListEnabled(ctx)
}

// PruneExpired deletes usage events older than the longest quota window
// (24h) and outcome events older than the failure-history retention (7d).
func (s *Service) PruneExpired(ctx context.Context) error {
	now := s.now()

	usageDeleted, err := s.repos.Usage.DeleteOlderThan(ctx, now.Add(-models.UsageRetention))
	if err != nil {
		return fmt.Errorf("failed to prune usage events: %w", err)
	}

	outcomesDeleted, err := s.repos.Outcomes.DeleteOlderThan(ctx, now.Add(-models.OutcomeRetention))
	if err != nil {
		return fmt.Errorf("failed to prune outcome events: %w", err)
	}

	if usageDeleted > 0 || outcomesDeleted > 0 {
		s.logger.Info("pruned expired events",
			zap.Int64("usage_events", usageDeleted),
			zap.Int64("outcome_events", outcomesDeleted))
	}

	return nil
}

func validateCeilings(m *models.Model) error {
	if m.RPMAllowed < 0 || m.TPMTotal < 0 || m.RPDTotal < 0 || m.TPDTotal < 0 {
		return fmt.Errorf("%w: model %s has a negative quota ceiling", services.ErrInvalidInput, m.Name)
	}
	return nil
}
