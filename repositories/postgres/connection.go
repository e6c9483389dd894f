package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Model catalog
		CREATE TABLE IF NOT EXISTS llm_models (
			name VARCHAR(100) PRIMARY KEY,
			provider VARCHAR(100) NOT NULL,
			rank INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT true,
			rpm_allowed INTEGER NOT NULL DEFAULT 0,
			tpm_total INTEGER NOT NULL DEFAULT 0,
			rpd_total INTEGER NOT NULL DEFAULT 0,
			tpd_total INTEGER NOT NULL DEFAULT 0,
			successful_tasks INTEGER NOT NULL DEFAULT 0,
			failed_tasks INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Append-only usage events, summed over sliding windows
		CREATE TABLE IF NOT EXISTS usage_events (
			id BIGSERIAL PRIMARY KEY,
			model VARCHAR(100) NOT NULL REFERENCES llm_models(name),
			requests INTEGER NOT NULL DEFAULT 0,
			tokens INTEGER NOT NULL DEFAULT 0,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Append-only execution outcomes feeding the failure-rate window
		CREATE TABLE IF NOT EXISTS outcome_events (
			id BIGSERIAL PRIMARY KEY,
			model VARCHAR(100) NOT NULL REFERENCES llm_models(name),
			task_type VARCHAR(100) NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_usage_events_model_timestamp ON usage_events(model, timestamp);
		CREATE INDEX IF NOT EXISTS idx_usage_events_timestamp ON usage_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_outcome_events_model_timestamp ON outcome_events(model, timestamp);
		CREATE INDEX IF NOT EXISTS idx_outcome_events_timestamp ON outcome_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_llm_models_enabled_rank ON llm_models(enabled, rank);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
