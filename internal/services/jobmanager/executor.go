package jobmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/sitecast/internal/models"
)

// processLoop receives job ids and executes them until ctx is cancelled.
func (jm *JobManager) processLoop(ctx context.Context, queue <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-queue:
			jm.dequeued(jobID)
			jm.execute(ctx, jobID)
		}
	}
}

// execute runs one job. A panic inside the forecast service fails the job
// instead of killing the worker.
func (jm *JobManager) execute(ctx context.Context, jobID string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			jm.logger.Error().Str("job_id", jobID).Str("panic", panicString(r)).Msg("Forecast job panicked")
			if _, err := jm.storage.ForecastStore().TransitionJob(context.WithoutCancel(ctx), jobID,
				[]models.JobStatus{models.JobStatusRunning}, models.JobStatusFailed, "Internal error: "+panicString(r)); err != nil {
				jm.logger.Warn().Str("job_id", jobID).Err(err).Msg("Failed to mark panicked job as failed")
			}
		}
	}()

	job, err := jm.forecast.ExecuteJob(ctx, jobID)
	durationMS := time.Since(start).Milliseconds()
	if err != nil {
		jm.logger.Warn().
			Str("job_id", jobID).
			Int64("duration_ms", durationMS).
			Err(err).
			Msg("Job execution error")
		return
	}

	jm.logger.Debug().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Int64("duration_ms", durationMS).
		Msg("Job processed")
}

func panicString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}
