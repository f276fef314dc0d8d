package jobmanager

import (
	"context"
	"time"

	"github.com/bobmcallan/sitecast/internal/models"
)

// Enqueue hands a pending job to the worker pool and broadcasts a "job_queued" event.
func (jm *JobManager) Enqueue(ctx context.Context, job models.ForecastJob) error {
	if err := jm.push(job.ID); err != nil {
		return err
	}

	jm.hub.Broadcast(models.JobEvent{
		Type:      models.JobEventQueued,
		Job:       job,
		Timestamp: time.Now().UTC(),
		QueueSize: jm.QueueLength(),
	})
	return nil
}

func (jm *JobManager) push(jobID string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if jm.queue == nil {
		return ErrNotRunning
	}
	if jm.queued == nil {
		jm.queued = make(map[string]bool)
	}
	select {
	case jm.queue <- jobID:
		jm.queued[jobID] = true
		return nil
	default:
		return ErrQueueFull
	}
}

// dequeued forgets a job id once a worker has taken it off the queue.
func (jm *JobManager) dequeued(jobID string) {
	jm.mu.Lock()
	delete(jm.queued, jobID)
	jm.mu.Unlock()
}

func (jm *JobManager) isQueued(jobID string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.queued[jobID]
}

// requeuePending enqueues pending jobs from storage, oldest first, skipping
// ids already waiting in the queue. It stops at the first full queue.
func (jm *JobManager) requeuePending(ctx context.Context) int {
	jobs, err := jm.storage.ForecastStore().ListJobs(ctx, models.JobFilter{
		Statuses:        []models.JobStatus{models.JobStatusPending},
		OrderNewestLast: true,
	})
	if err != nil {
		jm.logger.Warn().Err(err).Msg("Failed to list pending jobs")
		return 0
	}

	queued := 0
	for _, job := range jobs {
		if jm.isQueued(job.ID) {
			continue
		}
		if err := jm.Enqueue(ctx, job); err != nil {
			jm.logger.Debug().Str("job_id", job.ID).Err(err).Msg("Failed to re-enqueue pending job")
			break
		}
		queued++
	}
	return queued
}
