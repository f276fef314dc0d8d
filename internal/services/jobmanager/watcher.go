package jobmanager

import (
	"context"
	"time"
)

// cleanupLoop periodically purges finished jobs past the retention window.
func (jm *JobManager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(jm.config.GetCleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jm.purgeOldJobs(ctx)
		}
	}
}

// requeueLoop periodically hands pending jobs that missed the queue, for
// example because it was full when they were triggered, to the workers.
func (jm *JobManager) requeueLoop(ctx context.Context) {
	ticker := time.NewTicker(jm.config.GetRequeueInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := jm.requeuePending(ctx); n > 0 {
				jm.logger.Info().Int("count", n).Msg("Requeued pending jobs")
			}
		}
	}
}

// purgeOldJobs removes completed/failed jobs older than the retention days.
func (jm *JobManager) purgeOldJobs(ctx context.Context) int {
	removed, err := jm.forecast.CleanupOldJobs(ctx, jm.config.RetentionDays)
	if err != nil {
		jm.logger.Warn().Err(err).Msg("Cleanup: failed to purge old jobs")
	}
	return removed
}
