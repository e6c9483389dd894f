package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/models"
	"github.com/arbiterlabs/arbiter/repositories"
)

// ModelRepository implements repositories.ModelRepository
type ModelRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB, logger *zap.Logger) repositories.ModelRepository {
	return &ModelRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a model or overwrites its configuration by unique name.
// The aggregate counters and created_at of an existing row are left alone,
// so re-seeding the catalog never disturbs history.
func (r *ModelRepository) Upsert(ctx context.Context, model *models.Model) error {
	query := `
		INSERT INTO llm_models (
			name, provider, rank, description, enabled,
			rpm_allowed, tpm_total, rpd_total, tpd_total,
			successful_tasks, failed_tasks, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
		)
		ON CONFLICT (name) DO UPDATE SET
			provider = EXCLUDED.provider,
			rank = EXCLUDED.rank,
			description = EXCLUDED.description,
			enabled = EXCLUDED.enabled,
			rpm_allowed = EXCLUDED.rpm_allowed,
			tpm_total = EXCLUDED.tpm_total,
			rpd_total = EXCLUDED.rpd_total,
			tpd_total = EXCLUDED.tpd_total,
			updated_at = CURRENT_TIMESTAMP
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		model.Name,
		model.Provider,
		model.Rank,
		model.Description,
		model.Enabled,
		model.RPMAllowed,
		model.TPMTotal,
		model.RPDTotal,
		model.TPDTotal,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert model %s: %w", model.Name, err)
	}

	r.logger.Debug("model upserted", zap.String("name", model.Name), zap.String("provider", model.Provider))
	return nil
}

// GetByName retrieves a model by its unique name
func (r *ModelRepository) GetByName(ctx context.Context, name string) (*models.Model, error) {
	query := `
		SELECT name, provider, rank, description, enabled,
		       rpm_allowed, tpm_total, rpd_total, tpd_total,
		       successful_tasks, failed_tasks, created_at, updated_at
		FROM llm_models
		WHERE name = $1
	`

	executor := GetExecutor(ctx, r.db)
	model := &models.Model{}

	err := executor.QueryRowContext(ctx, query, name).Scan(
		&model.Name,
		&model.Provider,
		&model.Rank,
		&model.Description,
		&model.Enabled,
		&model.RPMAllowed,
		&model.TPMTotal,
		&model.RPDTotal,
		&model.TPDTotal,
		&model.SuccessfulTasks,
		&model.FailedTasks,
		&model.CreatedAt,
		&model.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("model not found: %s", name)
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	return model, nil
}

// ListEnabled retrieves all enabled models ordered by rank ascending
func (r *ModelRepository) ListEnabled(ctx context.Context) ([]*models.Model, error) {
	query := `
		SELECT name, provider, rank, description, enabled,
		       rpm_allowed, tpm_total, rpd_total, tpd_total,
		       successful_tasks, failed_tasks, created_at, updated_at
		FROM llm_models
		WHERE enabled = true
		ORDER BY rank ASC, name ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled models: %w", err)
	}
	defer rows.Close()

	var result []*models.Model
	for rows.Next() {
		model := &models.Model{}
		if err := rows.Scan(
			&model.Name,
			&model.Provider,
			&model.Rank,
			&model.Description,
			&model.Enabled,
			&model.RPMAllowed,
			&model.TPMTotal,
			&model.RPDTotal,
			&model.TPDTotal,
			&model.SuccessfulTasks,
			&model.FailedTasks,
			&model.CreatedAt,
			&model.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		result = append(result, model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate models: %w", err)
	}

	return result, nil
}

// IncrementOutcome bumps the lifetime success or failure counter by one
func (r *ModelRepository) IncrementOutcome(ctx context.Context, name string, success bool) error {
	column := "failed_tasks"
	if success {
		column = "successful_tasks"
	}

	query := fmt.Sprintf(`
		UPDATE llm_models
		SET %s = %s + 1, updated_at = CURRENT_TIMESTAMP
		WHERE name = $1
	`, column, column)

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to increment outcome counter: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("model not found: %s", name)
	}

	return nil
}
