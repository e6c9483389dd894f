package postgres

import (
	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/config"
	"github.com/arbiterlabs/arbiter/repositories"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		TxManager: NewTransactionManager(f.db, f.logger),
		Models:    NewModelRepository(f.db, f.logger),
		Usage:     NewUsageRepository(f.db, f.logger),
		Outcomes:  NewOutcomeRepository(f.db, f.logger),
	}
}

// DB exposes the underlying connection pool (health checks, schema init)
func (f *RepositoryFactory) DB() *DB {
	return f.db
}

// Close releases the database connection pool
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
