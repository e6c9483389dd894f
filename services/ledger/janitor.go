package ledger

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor runs PruneExpired on a schedule so the event tables stay bounded
// by the retention horizons.
type Janitor struct {
	ledger   *Service
	logger   *zap.Logger
	schedule string
	cron     *cron.Cron
}

// NewJanitor creates a janitor with a cron schedule (e.g. "@hourly")
func NewJanitor(ledger *Service, schedule string, logger *zap.Logger) *Janitor {
	return &Janitor{
		ledger:   ledger,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the prune job and starts the scheduler
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := j.ledger.PruneExpired(ctx); err != nil {
			j.logger.Error("scheduled prune failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("ledger janitor started", zap.String("schedule", j.schedule))
	return nil
}

// Stop stops the scheduler, waiting for a running job to finish
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("ledger janitor stopped")
}
