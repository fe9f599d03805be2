package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/pkg/logging"
)

// CacheHealth is the slice of the cache store the recovery monitor needs.
type CacheHealth interface {
	Ping(ctx context.Context) error
	FlushAll(ctx context.Context) error
}

// RecoveryMonitor watches cache connectivity. When the cache comes back
// after an outage its contents are arbitrarily stale, because toggles
// were applied directly to the store of record in the meantime; the
// monitor flushes the whole cache so every read repopulates from
// authoritative data.
type RecoveryMonitor struct {
	cache      CacheHealth
	maxRetries int
	backoff    time.Duration
	down       bool
	logger     *zap.Logger
}

// NewRecoveryMonitor creates a new recovery monitor
func NewRecoveryMonitor(cache CacheHealth, maxRetries int, backoff time.Duration) *RecoveryMonitor {
	return &RecoveryMonitor{
		cache:      cache,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logging.GetLogger().With(zap.String("component", "cache-recovery")),
	}
}

// Probe checks cache health once and flushes on a down-to-up transition.
// A failed flush leaves the outage flag set so the next probe retries.
func (m *RecoveryMonitor) Probe(ctx context.Context) error {
	if err := m.cache.Ping(ctx); err != nil {
		if !m.down {
			m.logger.Warn("Cache outage detected", zap.Error(err))
		}
		m.down = true
		return nil
	}

	if !m.down {
		return nil
	}

	if err := m.flushWithRetry(ctx); err != nil {
		m.logger.Error("Failed to flush cache after recovery, giving up until next probe",
			zap.Error(err))
		return err
	}

	m.down = false
	m.logger.Info("Cache recovered, flushed for repopulation")
	return nil
}

func (m *RecoveryMonitor) flushWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		if err := m.cache.FlushAll(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			m.logger.Warn("Cache flush attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", m.maxRetries),
				zap.Error(err))
		}

		if attempt < m.maxRetries {
			if err := wait(ctx, m.backoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("flush failed after %d attempts: %w", m.maxRetries, lastErr)
}

// wait sleeps for the duration or until the context is cancelled
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
