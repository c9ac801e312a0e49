// Package schedule runs the periodic expiry sweep over stored addresses.
package schedule

import (
	"context"
	"time"

	"github.com/bassamadnan/tmpmail/metrics"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const DefaultSweepInterval = 30 * time.Minute

// Pruner drops records past their retention.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Sweeper removes expired jar entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweep prunes the address collection, then removes expired jar entries, and
// returns the total removed.
func Sweep(ctx context.Context, pruner Pruner, sweeper Sweeper, logger *zap.Logger) int {
	total := 0
	if pruner != nil {
		n, err := pruner.Prune(ctx)
		if err != nil {
			logger.Error("prune addresses", zap.Error(err))
		}
		total += n
	}
	if sweeper != nil {
		n, err := sweeper.Sweep(ctx)
		if err != nil {
			logger.Error("sweep jar", zap.Error(err))
		}
		total += n
	}
	if total > 0 {
		logger.Info("expired entries removed", zap.Int("count", total))
	}
	metrics.AddSwept(total)
	return total
}

// Start schedules Sweep every interval and returns the running scheduler;
// callers Stop it on shutdown.
func Start(ctx context.Context, interval time.Duration, pruner Pruner, sweeper Sweeper, logger *zap.Logger) (*gocron.Scheduler, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler := gocron.NewScheduler(time.UTC)

	_, err := scheduler.Every(interval).Tag("expiry sweep").Do(func() {
		logger.Debug("checking for expired addresses")
		Sweep(ctx, pruner, sweeper, logger)
	})
	if err != nil {
		return nil, err
	}

	scheduler.StartAsync()
	return scheduler, nil
}
