package courierauth

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Cleanup removes expired and consumed codes, elapsed counters and
// revocations of expired tokens. Redis-backed records expire through key
// TTLs, so with the redis backend this returns an empty report.
func (e *Engine) Cleanup(ctx context.Context) (CleanupReport, error) {
	if e == nil {
		return CleanupReport{}, ErrEngineNotReady
	}
	if e.sweeper == nil {
		return CleanupReport{}, nil
	}

	report, err := e.sweeper.Sweep(ctx)
	if err != nil {
		e.logger.WithField("error", err).Error("cleanup failed")
		return report, storeError(err)
	}

	e.metrics.Add(MetricCleanupRemoved, uint64(report.OTPs+report.Counters+report.Revocations))
	e.logger.WithFields(logrus.Fields{
		"otps":        report.OTPs,
		"counters":    report.Counters,
		"revocations": report.Revocations,
	}).Info("cleanup finished")
	return report, nil
}

// RunCleanup calls Cleanup every interval until ctx is done. Errors are
// logged and the loop continues.
func (e *Engine) RunCleanup(ctx context.Context, interval time.Duration) {
	if e == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = e.Cleanup(ctx)
		}
	}
}
