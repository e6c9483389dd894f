package repositories

import (
	"context"
	"time"

	"github.com/arbiterlabs/arbiter/models"
)

// TransactionManager manages database transactions.
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Commits if the function succeeds, rolls back on error. The context
	// passed to fn carries the transaction so repositories route their
	// statements through it.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// ModelRepository handles model catalog operations.
type ModelRepository interface {
	// Upsert inserts a model or, if the name exists, overwrites its
	// rank, description, enabled flag and quota ceilings. Aggregate
	// counters and prior history are preserved.
	Upsert(ctx context.Context, model *models.Model) error

	// GetByName retrieves a model by its unique name
	GetByName(ctx context.Context, name string) (*models.Model, error)

	// ListEnabled retrieves all enabled models ordered by rank ascending
	ListEnabled(ctx context.Context) ([]*models.Model, error)

	// IncrementOutcome bumps successful_tasks or failed_tasks by one
	IncrementOutcome(ctx context.Context, name string, success bool) error
}

// UsageRepository handles append-only usage events.
type UsageRepository interface {
	// Insert appends one usage event
	Insert(ctx context.Context, event *models.UsageEvent) error

	// SumSince returns total requests and tokens recorded for the model
	// at or after the cutoff
	SumSince(ctx context.Context, model string, since time.Time) (requests, tokens int, err error)

	// DeleteOlderThan removes events before the cutoff, returning the count
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutcomeRepository handles append-only outcome events.
type OutcomeRepository interface {
	// Insert appends one outcome event
	Insert(ctx context.Context, event *models.OutcomeEvent) error

	// CountSince returns total and failed outcome counts for the model
	// at or after the cutoff
	CountSince(ctx context.Context, model string, since time.Time) (total, failed int, err error)

	// DeleteOlderThan removes events before the cutoff, returning the count
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repositories bundles all repository implementations for dependency injection.
type Repositories struct {
	TxManager TransactionManager
	Models    ModelRepository
	Usage     UsageRepository
	Outcomes  OutcomeRepository
}
