package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/models"
	"github.com/arbiterlabs/arbiter/repositories"
)

// OutcomeRepository implements repositories.OutcomeRepository
type OutcomeRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewOutcomeRepository creates a new outcome repository
func NewOutcomeRepository(db *DB, logger *zap.Logger) repositories.OutcomeRepository {
	return &OutcomeRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends one outcome event
func (r *OutcomeRepository) Insert(ctx context.Context, event *models.OutcomeEvent) error {
	query := `
		INSERT INTO outcome_events (model, task_type, success, error_message, tokens_used, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.Model,
		event.TaskType,
		event.Success,
		event.ErrorMessage,
		event.TokensUsed,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert outcome event: %w", err)
	}

	r.logger.Debug("outcome event recorded",
		zap.String("model", event.Model),
		zap.String("task_type", event.TaskType),
		zap.Bool("success", event.Success))
	return nil
}

// CountSince returns total and failed outcome counts for the model at or
// after the cutoff
func (r *OutcomeRepository) CountSince(ctx context.Context, model string, since time.Time) (int, int, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success = false)
		FROM outcome_events
		WHERE model = $1 AND timestamp >= $2
	`

	executor := GetExecutor(ctx, r.db)

	var total, failed int
	err := executor.QueryRowContext(ctx, query, model, since).Scan(&total, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count outcome events: %w", err)
	}

	return total, failed, nil
}

// DeleteOlderThan removes outcome events before the cutoff
func (r *OutcomeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM outcome_events WHERE timestamp < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired outcome events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return deleted, nil
}
