package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/models"
	"github.com/arbiterlabs/arbiter/repositories"
)

// UsageRepository implements repositories.UsageRepository
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends one usage event. Plain insert, no read-before-write, so
// concurrent recorders never contend beyond the row append itself.
func (r *UsageRepository) Insert(ctx context.Context, event *models.UsageEvent) error {
	query := `
		INSERT INTO usage_events (model, requests, tokens, timestamp)
		VALUES ($1, $2, $3, $4)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.Model,
		event.Requests,
		event.Tokens,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	r.logger.Debug("usage event recorded",
		zap.String("model", event.Model),
		zap.Int("requests", event.Requests),
		zap.Int("tokens", event.Tokens))
	return nil
}

// SumSince returns total requests and tokens for the model at or after the
// cutoff. Window usage is always recomputed from events here; there is no
// counter that resets on a clock tick.
func (r *UsageRepository) SumSince(ctx context.Context, model string, since time.Time) (int, int, error) {
	query := `
		SELECT COALESCE(SUM(requests), 0), COALESCE(SUM(tokens), 0)
		FROM usage_events
		WHERE model = $1 AND timestamp >= $2
	`

	executor := GetExecutor(ctx, r.db)

	var requests, tokens int
	err := executor.QueryRowContext(ctx, query, model, since).Scan(&requests, &tokens)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum usage events: %w", err)
	}

	return requests, tokens, nil
}

// DeleteOlderThan removes usage events before the cutoff
func (r *UsageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM usage_events WHERE timestamp < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired usage events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return deleted, nil
}
