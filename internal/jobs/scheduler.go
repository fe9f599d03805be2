package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/pkg/logging"
)

// Scheduler runs named jobs on a fixed interval. It exists so job logic
// can be tested without a broker or timer.
type Scheduler interface {
	RunEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error)
}

// TickerScheduler runs jobs on a time.Ticker. RunEvery blocks until the
// context is cancelled; callers start one goroutine per job.
type TickerScheduler struct {
	logger *zap.Logger
}

// NewTickerScheduler creates a new ticker-based scheduler
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{
		logger: logging.GetLogger().With(zap.String("component", "scheduler")),
	}
}

// RunEvery invokes fn every interval until ctx is cancelled. A failed run
// is logged and does not stop the schedule.
func (s *TickerScheduler) RunEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	s.logger.Info("Starting job",
		zap.String("job", name),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping job", zap.String("job", name))
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				s.logger.Error("Job run failed",
					zap.String("job", name),
					zap.Error(err))
			}
		}
	}
}
