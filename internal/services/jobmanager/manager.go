// Package jobmanager runs forecast jobs on a background worker pool and
// streams their lifecycle events to WebSocket subscribers.
package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
)

// ErrQueueFull is returned by Enqueue when the worker queue has no capacity.
// The job stays pending in storage and is re-enqueued by the requeue sweep.
var ErrQueueFull = errors.New("forecast job queue is full")

// ErrNotRunning is returned by Enqueue before Start or after Stop.
var ErrNotRunning = errors.New("job manager is not running")

// Compile-time interface check
var _ interfaces.JobDispatcher = (*JobManager)(nil)

// JobManager feeds pending forecast jobs to a pool of workers, runs the
// retention cleanup loop, and owns the job event hub.
type JobManager struct {
	forecast interfaces.ForecastService
	storage  interfaces.StorageManager
	logger   *common.Logger
	hub      *JobWSHub
	config   common.ForecastConfig

	mu     sync.Mutex
	queue  chan string
	queued map[string]bool // ids sitting in queue
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobManager creates a new job manager.
func NewJobManager(
	forecast interfaces.ForecastService,
	storage interfaces.StorageManager,
	logger *common.Logger,
	config common.ForecastConfig,
) *JobManager {
	return &JobManager{
		forecast: forecast,
		storage:  storage,
		logger:   logger,
		hub:      NewJobWSHub(logger),
		config:   config,
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (jm *JobManager) safeGo(name string, fn func()) {
	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				jm.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job manager goroutine")
			}
		}()
		fn()
	}()
}

// Start resets orphaned jobs, then launches the hub, the worker pool, the
// requeue sweep and the cleanup loop. Safe to call multiple times; stops existing loops first.
func (jm *JobManager) Start() {
	jm.mu.Lock()
	running := jm.cancel != nil
	jm.mu.Unlock()
	if running {
		jm.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	queueSize := jm.config.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	queue := make(chan string, queueSize)
	jm.mu.Lock()
	jm.cancel = cancel
	jm.queue = queue
	jm.queued = make(map[string]bool)
	jm.mu.Unlock()

	// Jobs left running by a previous process are picked up again
	if count, err := jm.storage.ForecastStore().ResetRunningJobs(ctx); err != nil {
		jm.logger.Warn().Err(err).Msg("Failed to reset orphaned running jobs")
	} else if count > 0 {
		jm.logger.Info().Int("count", count).Msg("Reset orphaned running jobs to pending")
	}

	jm.hub.Reset()
	jm.safeGo("websocket-hub", func() { jm.hub.Run() })

	workers := jm.config.GetWorkers()
	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		jm.safeGo(name, func() { jm.processLoop(ctx, queue) })
	}

	jm.safeGo("cleanup", func() { jm.cleanupLoop(ctx) })
	jm.safeGo("requeue", func() { jm.requeueLoop(ctx) })

	requeued := jm.requeuePending(ctx)

	jm.logger.Info().
		Int("workers", workers).
		Int("queue_size", queueSize).
		Int("requeued", requeued).
		Str("cleanup_interval", jm.config.GetCleanupInterval().String()).
		Str("requeue_interval", jm.config.GetRequeueInterval().String()).
		Msg("Job manager started")
}

// Stop cancels all loops and waits for in-flight jobs to finish.
func (jm *JobManager) Stop() {
	jm.mu.Lock()
	if jm.cancel != nil {
		jm.cancel()
		jm.cancel = nil
	}
	jm.queue = nil
	jm.queued = nil
	jm.mu.Unlock()

	jm.hub.Stop()
	jm.wg.Wait()
	jm.logger.Info().Msg("Job manager stopped")
}

// Hub returns the WebSocket hub for external handler registration.
func (jm *JobManager) Hub() *JobWSHub {
	return jm.hub
}

// QueueLength returns the number of job ids waiting for a worker.
func (jm *JobManager) QueueLength() int {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return len(jm.queue)
}

// Publish broadcasts a job event to WebSocket subscribers.
func (jm *JobManager) Publish(event models.JobEvent) {
	if event.QueueSize == 0 {
		event.QueueSize = jm.QueueLength()
	}
	jm.hub.Broadcast(event)
}
