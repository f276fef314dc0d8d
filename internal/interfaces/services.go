package interfaces

import (
	"context"

	"github.com/bobmcallan/sitecast/internal/models"
)

// SiteService validates and manages sites.
type SiteService interface {
	// ListSites filters by site type when siteType is non-empty.
	ListSites(ctx context.Context, siteType string) ([]models.Site, error)
	GetSite(ctx context.Context, id int64) (*models.Site, error)
	CreateSite(ctx context.Context, input models.SiteInput) (*models.Site, error)
	// UpdateSite replaces the site, or only non-nil fields when partial.
	UpdateSite(ctx context.Context, id int64, input models.SiteInput, partial bool) (*models.Site, error)
	DeleteSite(ctx context.Context, id int64) error
}

// PortfolioService manages portfolios and their membership.
type PortfolioService interface {
	ListPortfolios(ctx context.Context) ([]models.Portfolio, error)
	GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error)
	CreatePortfolio(ctx context.Context, input models.PortfolioInput) (*models.Portfolio, error)
	UpdatePortfolio(ctx context.Context, id int64, input models.PortfolioInput, partial bool) (*models.Portfolio, error)
	DeletePortfolio(ctx context.Context, id int64) error
	AddSite(ctx context.Context, portfolioID, siteID int64) (*models.Portfolio, error)
	RemoveSite(ctx context.Context, portfolioID, siteID int64) (*models.Portfolio, error)
	PortfolioSites(ctx context.Context, portfolioID int64) ([]models.Site, error)
}

// ForecastService triggers, executes and reports forecast jobs.
type ForecastService interface {
	Trigger(ctx context.Context, portfolioID int64, horizon *int) (*models.TriggerResponse, error)
	JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error)
	// PortfolioResults uses the latest completed job when jobID is empty.
	PortfolioResults(ctx context.Context, portfolioID int64, jobID string) (*models.PortfolioResults, error)
	SiteResults(ctx context.Context, siteID int64, jobID string) (*models.SiteResults, error)
	CancelJob(ctx context.Context, jobID string) (*models.ForecastJob, error)
	// ExecuteJob runs a pending job to completion or failure.
	ExecuteJob(ctx context.Context, jobID string) (*models.ForecastJob, error)
	// CleanupOldJobs purges terminal jobs older than days.
	CleanupOldJobs(ctx context.Context, days int) (int, error)
}

// JobDispatcher hands jobs to background workers and publishes lifecycle events.
type JobDispatcher interface {
	Enqueue(ctx context.Context, job models.ForecastJob) error
	Publish(event models.JobEvent)
}
