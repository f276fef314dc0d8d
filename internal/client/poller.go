package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/sitecast/internal/models"
)

var (
	// ErrPollTimeout is returned when no terminal status was seen within the ceiling.
	ErrPollTimeout = errors.New("forecast job did not finish in time")
	// ErrStatusCheckFailed wraps the error of a failed status request.
	ErrStatusCheckFailed = errors.New("failed to check forecast job status")
)

// JobFailedError reports a job that ended in the failed state.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("forecast job %s failed", e.JobID)
	}
	return fmt.Sprintf("forecast job %s failed: %s", e.JobID, e.Message)
}

// StatusFunc fetches the current status of a job.
type StatusFunc func(ctx context.Context, jobID string) (*models.JobStatusResponse, error)

// Poller waits for a forecast job to reach a terminal status.
type Poller struct {
	check    StatusFunc
	interval time.Duration
	ceiling  time.Duration
	onUpdate func(*models.JobStatusResponse)
}

// PollOption configures a Poller
type PollOption func(*Poller)

// WithInterval sets the delay between status checks
func WithInterval(d time.Duration) PollOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithCeiling bounds the total polling time
func WithCeiling(d time.Duration) PollOption {
	return func(p *Poller) {
		p.ceiling = d
	}
}

// WithOnUpdate registers a hook called once per observed status
func WithOnUpdate(fn func(*models.JobStatusResponse)) PollOption {
	return func(p *Poller) {
		p.onUpdate = fn
	}
}

// NewPoller creates a poller that checks status with check. Non-positive
// intervals and ceilings fall back to the defaults.
func NewPoller(check StatusFunc, opts ...PollOption) *Poller {
	p := &Poller{
		check:    check,
		interval: DefaultPollInterval,
		ceiling:  DefaultPollCeiling,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.ceiling <= 0 {
		p.ceiling = DefaultPollCeiling
	}
	return p
}

// Wait checks the job every interval, starting one interval from now. It
// returns the final status on completion, a *JobFailedError when the job
// failed, ErrPollTimeout after the ceiling, and ErrStatusCheckFailed when a
// check errors. Status checks are never retried.
func (p *Poller) Wait(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, p.ceiling, ErrPollTimeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, p.stopErr(ctx)
		case <-ticker.C:
		}

		status, err := p.check(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, p.stopErr(ctx)
			}
			return nil, fmt.Errorf("%w: %w", ErrStatusCheckFailed, err)
		}
		if p.onUpdate != nil {
			p.onUpdate(status)
		}

		switch status.Status {
		case models.JobStatusCompleted:
			return status, nil
		case models.JobStatusFailed:
			return status, &JobFailedError{JobID: jobID, Message: status.ErrorMessage}
		}
	}
}

func (p *Poller) stopErr(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrPollTimeout) {
		return ErrPollTimeout
	}
	return ctx.Err()
}
