// Package forecast triggers, executes and reports portfolio forecast jobs
package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
)

// Compile-time interface check
var _ interfaces.ForecastService = (*Service)(nil)

// Service implements ForecastService
type Service struct {
	storage    interfaces.StorageManager
	registry   *Registry
	dispatcher interfaces.JobDispatcher
	config     common.ForecastConfig
	logger     *common.Logger
	now        func() time.Time
}

// NewService creates a new forecast service
func NewService(storage interfaces.StorageManager, registry *Registry, config common.ForecastConfig, logger *common.Logger) *Service {
	if registry == nil {
		registry = NewRegistry(config.Seed)
	}
	return &Service{
		storage:  storage,
		registry: registry,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// SetDispatcher wires the background job dispatcher. Without one, Trigger
// executes jobs inline.
func (s *Service) SetDispatcher(d interfaces.JobDispatcher) {
	s.dispatcher = d
}

// Registry returns the model registry used for predictions.
func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) defaultHorizon() int {
	if s.config.DefaultHorizon > 0 {
		return s.config.DefaultHorizon
	}
	return models.DefaultForecastHorizon
}

// Trigger creates a pending forecast job for every site of the portfolio
func (s *Service) Trigger(ctx context.Context, portfolioID int64, horizon *int) (*models.TriggerResponse, error) {
	h := s.defaultHorizon()
	if horizon != nil {
		if *horizon <= 0 {
			return nil, &models.ValidationError{
				Message: "Invalid forecast horizon",
				Details: "Forecast horizon must be a positive integer",
			}
		}
		if s.config.MaxHorizon > 0 && *horizon > s.config.MaxHorizon {
			return nil, &models.ValidationError{
				Message: "Invalid forecast horizon",
				Details: fmt.Sprintf("Forecast horizon must not exceed %d hours", s.config.MaxHorizon),
			}
		}
		h = *horizon
	}

	portfolio, err := s.storage.PortfolioStore().Get(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &models.NotFoundError{Resource: "Portfolio", ID: fmt.Sprint(portfolioID)}
		}
		return nil, err
	}
	siteIDs, err := s.storage.PortfolioStore().SiteIDs(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio sites: %w", err)
	}
	if len(siteIDs) == 0 {
		return nil, &models.ValidationError{
			Message: "Empty portfolio",
			Details: fmt.Sprintf("Portfolio '%s' (ID: %d) has no sites", portfolio.Name, portfolioID),
		}
	}

	job := &models.ForecastJob{
		PortfolioID:     portfolioID,
		PortfolioName:   portfolio.Name,
		Status:          models.JobStatusPending,
		ForecastHorizon: h,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.storage.ForecastStore().CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create forecast job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int64("portfolio_id", portfolioID).
		Int("sites", len(siteIDs)).
		Int("horizon", h).
		Msg("Forecast job created")

	if s.dispatcher != nil {
		if err := s.dispatcher.Enqueue(ctx, *job); err != nil {
			// The job stays pending and the requeue sweep picks it up
			s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to enqueue forecast job")
		}
	} else if _, err := s.ExecuteJob(ctx, job.ID); err != nil {
		s.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Inline forecast execution failed")
	}

	return &models.TriggerResponse{
		JobID:           job.ID,
		PortfolioID:     portfolioID,
		PortfolioName:   portfolio.Name,
		Status:          job.Status,
		ForecastHorizon: h,
		CreatedAt:       job.CreatedAt,
		Message:         fmt.Sprintf("Forecast job created for portfolio %q", portfolio.Name),
	}, nil
}

// JobStatus reports a job's state, with result counters once completed
func (s *Service) JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	job, err := s.storage.ForecastStore().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &models.JobStatusResponse{
		JobID:           job.ID,
		PortfolioID:     job.PortfolioID,
		PortfolioName:   job.PortfolioName,
		Status:          job.Status,
		ForecastHorizon: job.ForecastHorizon,
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
		ErrorMessage:    job.ErrorMessage,
		IsComplete:      job.IsComplete(),
		IsSuccessful:    job.IsSuccessful(),
	}
	if !job.IsSuccessful() {
		return resp, nil
	}

	resultCount, err := s.storage.ForecastStore().CountResults(ctx, models.ResultFilter{JobID: job.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	siteIDs, err := s.storage.PortfolioStore().SiteIDs(ctx, job.PortfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to count portfolio sites: %w", err)
	}
	siteCount := len(siteIDs)
	expected := siteCount * job.ForecastHorizon
	complete := resultCount >= expected

	resp.ResultCount = &resultCount
	resp.SiteCount = &siteCount
	resp.ExpectedResults = &expected
	resp.ResultsComplete = &complete
	return resp, nil
}

// PortfolioResults groups a job's results by site and totals them per hour
func (s *Service) PortfolioResults(ctx context.Context, portfolioID int64, jobID string) (*models.PortfolioResults, error) {
	portfolio, err := s.storage.PortfolioStore().Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	var job *models.ForecastJob
	if jobID != "" {
		job, err = s.storage.ForecastStore().GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.PortfolioID != portfolioID {
			return nil, &models.NotFoundError{Resource: "forecast job", ID: jobID}
		}
	} else {
		job, err = s.storage.ForecastStore().LatestCompletedJob(ctx, portfolioID, 0)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, &models.NotFoundError{Resource: fmt.Sprintf("completed forecast jobs for portfolio %d", portfolioID)}
			}
			return nil, err
		}
	}

	results, err := s.storage.ForecastStore().ListResults(ctx, models.ResultFilter{JobID: job.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	if len(results) == 0 {
		return nil, &models.NotFoundError{Resource: fmt.Sprintf("forecast results for job %s", job.ID)}
	}

	siteIDs, err := s.storage.PortfolioStore().SiteIDs(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio sites: %w", err)
	}
	portfolio.Sites, err = s.storage.SiteStore().GetMany(ctx, siteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio sites: %w", err)
	}
	portfolio.Summarize()

	siteForecasts, totals, err := s.group(ctx, results)
	if err != nil {
		return nil, err
	}

	return &models.PortfolioResults{
		JobID:               job.ID,
		PortfolioID:         portfolio.ID,
		PortfolioName:       portfolio.Name,
		ForecastGeneratedAt: job.CompletedAt,
		SiteCount:           len(siteForecasts),
		TotalCapacityMW:     portfolio.TotalCapacity,
		SiteForecasts:       siteForecasts,
		PortfolioTotals:     totals,
	}, nil
}

// group builds per-site series ordered by site name and per-datetime totals.
// Aggregate rows (site 0) are skipped and totals recomputed from site rows.
func (s *Service) group(ctx context.Context, results []models.ForecastResult) ([]models.SiteForecast, []models.PortfolioTotal, error) {
	var ids []int64
	bySite := make(map[int64][]models.ForecastResult)
	for _, r := range results {
		if r.SiteID == 0 {
			continue
		}
		if _, ok := bySite[r.SiteID]; !ok {
			ids = append(ids, r.SiteID)
		}
		bySite[r.SiteID] = append(bySite[r.SiteID], r)
	}

	sites, err := s.storage.SiteStore().GetMany(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load result sites: %w", err)
	}

	forecasts := make([]models.SiteForecast, 0, len(sites))
	totals := make(map[int64]*models.PortfolioTotal)
	for _, site := range sites {
		sf := models.SiteForecast{
			SiteID:     site.ID,
			SiteName:   site.Name,
			SiteType:   site.SiteType,
			CapacityMW: site.CapacityMW,
		}
		rows := bySite[site.ID]
		sort.Slice(rows, func(i, j int) bool { return rows[i].ForecastDatetime.Before(rows[j].ForecastDatetime) })
		for _, r := range rows {
			sf.Forecasts = append(sf.Forecasts, toPoint(r))

			key := r.ForecastDatetime.Unix()
			t, ok := totals[key]
			if !ok {
				t = &models.PortfolioTotal{Datetime: r.ForecastDatetime}
				totals[key] = t
			}
			t.TotalPredictedMWh += r.PredictedGenerationMWh
			if r.ConfidenceIntervalLower != nil {
				t.TotalConfidenceLower += *r.ConfidenceIntervalLower
			}
			if r.ConfidenceIntervalUpper != nil {
				t.TotalConfidenceUpper += *r.ConfidenceIntervalUpper
			}
		}
		forecasts = append(forecasts, sf)
	}

	out := make([]models.PortfolioTotal, 0, len(totals))
	for _, t := range totals {
		t.TotalPredictedMWh = models.Number(models.Round3(t.TotalPredictedMWh.Float()))
		t.TotalConfidenceLower = models.Number(models.Round3(t.TotalConfidenceLower.Float()))
		t.TotalConfidenceUpper = models.Number(models.Round3(t.TotalConfidenceUpper.Float()))
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return forecasts, out, nil
}

// SiteResults returns one site's points from a job, defaulting to the latest completed one
func (s *Service) SiteResults(ctx context.Context, siteID int64, jobID string) (*models.SiteResults, error) {
	site, err := s.storage.SiteStore().Get(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if jobID == "" {
		job, err := s.storage.ForecastStore().LatestCompletedJob(ctx, 0, siteID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, &models.NotFoundError{Resource: fmt.Sprintf("completed forecast jobs for site %d", siteID)}
			}
			return nil, err
		}
		jobID = job.ID
	}

	results, err := s.storage.ForecastStore().ListResults(ctx, models.ResultFilter{JobID: jobID, SiteID: siteID})
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	if len(results) == 0 {
		return nil, &models.NotFoundError{Resource: fmt.Sprintf("forecast results for site %d", siteID)}
	}

	points := make([]models.ForecastPoint, 0, len(results))
	for _, r := range results {
		points = append(points, toPoint(r))
	}
	return &models.SiteResults{
		SiteID:        site.ID,
		SiteName:      site.Name,
		SiteType:      site.SiteType,
		CapacityMW:    site.CapacityMW,
		JobID:         jobID,
		ForecastCount: len(points),
		Forecasts:     points,
	}, nil
}

// CancelJob fails a pending or running job with the cancellation message
func (s *Service) CancelJob(ctx context.Context, jobID string) (*models.ForecastJob, error) {
	store := s.storage.ForecastStore()
	ok, err := store.TransitionJob(ctx, jobID,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusRunning},
		models.JobStatusFailed, models.CancelledMessage)
	if err != nil {
		return nil, err
	}
	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Cannot cancel job")
		return nil, &models.ValidationError{
			Message: "Cannot cancel job",
			Details: fmt.Sprintf("Job with status '%s' cannot be cancelled", job.Status),
		}
	}

	s.logger.Info().Str("job_id", jobID).Msg("Forecast job cancelled")
	s.publish(models.JobEventCancelled, job)
	return job, nil
}

// ExecuteJob claims a pending job, predicts every member site and stores the
// results. A job cancelled while running keeps its failed status.
func (s *Service) ExecuteJob(ctx context.Context, jobID string) (*models.ForecastJob, error) {
	store := s.storage.ForecastStore()

	claimed, err := store.TransitionJob(ctx, jobID, []models.JobStatus{models.JobStatusPending}, models.JobStatusRunning, "")
	if err != nil {
		return nil, err
	}
	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Job not pending, skipping")
		return job, nil
	}
	s.publish(models.JobEventStarted, job)

	start := time.Now()
	count, runErr := s.generate(ctx, job)
	if runErr != nil {
		if ctx.Err() != nil {
			// Shutdown: the job stays running and is reset to pending on restart
			return job, runErr
		}
		return s.finish(ctx, job, models.JobStatusFailed, runErr.Error())
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("results", count).
		Dur("elapsed", time.Since(start)).
		Msg("Forecast job completed")
	return s.finish(ctx, job, models.JobStatusCompleted, "")
}

func (s *Service) generate(ctx context.Context, job *models.ForecastJob) (int, error) {
	siteIDs, err := s.storage.PortfolioStore().SiteIDs(ctx, job.PortfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to load portfolio sites: %w", err)
	}
	sites, err := s.storage.SiteStore().GetMany(ctx, siteIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load portfolio sites: %w", err)
	}
	if len(sites) == 0 {
		return 0, errors.New("Portfolio has no sites")
	}

	start := s.now()
	var results []models.ForecastResult
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		model := s.registry.Model(site.SiteType)
		points, err := model.Predict(site, job.ForecastHorizon, start)
		if err != nil {
			return 0, fmt.Errorf("failed to generate forecast for site '%s': %w", site.Name, err)
		}
		for _, p := range points {
			results = append(results, models.ForecastResult{
				JobID:                   job.ID,
				SiteID:                  site.ID,
				ForecastDatetime:        p.Datetime,
				PredictedGenerationMWh:  p.PredictedGenerationMWh,
				ConfidenceIntervalLower: p.ConfidenceIntervalLower,
				ConfidenceIntervalUpper: p.ConfidenceIntervalUpper,
			})
		}
		s.logger.Debug().Str("job_id", job.ID).Str("site", site.Name).Int("points", len(points)).Str("model", model.Name()).Msg("Site forecast generated")
	}

	if err := s.storage.ForecastStore().SaveResults(ctx, results); err != nil {
		return 0, err
	}
	return len(results), nil
}

// finish moves a running job to a terminal status unless it was cancelled meanwhile.
func (s *Service) finish(ctx context.Context, job *models.ForecastJob, to models.JobStatus, errMsg string) (*models.ForecastJob, error) {
	// Persist the outcome even if the worker context was cancelled
	ctx = context.WithoutCancel(ctx)
	store := s.storage.ForecastStore()

	if _, err := store.TransitionJob(ctx, job.ID, []models.JobStatus{models.JobStatusRunning}, to, errMsg); err != nil {
		return nil, err
	}
	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	switch updated.Status {
	case models.JobStatusCompleted:
		s.publish(models.JobEventCompleted, updated)
	case models.JobStatusFailed:
		if updated.ErrorMessage != models.CancelledMessage {
			s.logger.Error().Str("job_id", job.ID).Str("error", updated.ErrorMessage).Msg("Forecast job failed")
		}
		s.publish(models.JobEventFailed, updated)
	}
	return updated, nil
}

// CleanupOldJobs purges completed or failed jobs finished more than days ago
func (s *Service) CleanupOldJobs(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	// completed_at is never before created_at, so this narrows the scan
	candidates, err := s.storage.ForecastStore().ListJobs(ctx, models.JobFilter{
		Statuses:      []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed},
		CreatedBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list old jobs: %w", err)
	}

	removed := 0
	for _, job := range candidates {
		if job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		if err := s.storage.ForecastStore().DeleteJob(ctx, job.ID); err != nil {
			return removed, fmt.Errorf("failed to delete job %s: %w", job.ID, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info().Int("count", removed).Int("days", days).Msg("Cleaned up old forecast jobs")
	}
	return removed, nil
}

func (s *Service) publish(eventType string, job *models.ForecastJob) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(models.JobEvent{
		Type:      eventType,
		Job:       *job,
		Timestamp: time.Now().UTC(),
	})
}

func toPoint(r models.ForecastResult) models.ForecastPoint {
	return models.ForecastPoint{
		Datetime:                r.ForecastDatetime,
		PredictedGenerationMWh:  r.PredictedGenerationMWh,
		ConfidenceIntervalLower: r.ConfidenceIntervalLower,
		ConfidenceIntervalUpper: r.ConfidenceIntervalUpper,
	}
}
