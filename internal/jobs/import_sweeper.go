// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Expirer expires stale roster import sessions and reports how many changed
type Expirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// ImportSweeper periodically expires roster imports nobody committed
type ImportSweeper struct {
	expirer  Expirer
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewImportSweeper(expirer Expirer, schedule string, logger *slog.Logger) *ImportSweeper {
	return &ImportSweeper{
		expirer:  expirer,
		schedule: schedule,
		timeout:  time.Minute,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start registers the sweep and starts the scheduler in its own goroutine
func (s *ImportSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("invalid import sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Import sweeper scheduled", "schedule", s.schedule)
	return nil
}

// Sweep runs one expiry pass; failures are logged and retried on the next tick
func (s *ImportSweeper) Sweep(ctx context.Context) int64 {
	expired, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("Failed to expire stale imports", "error", err)
		return 0
	}
	if expired > 0 {
		s.logger.Info("Expired stale imports", "count", expired)
	}
	return expired
}

// Stop stops scheduling and waits for a running sweep to finish or ctx to end
func (s *ImportSweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Import sweeper did not stop in time")
	}
}
