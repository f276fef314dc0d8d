// Package interfaces defines service and storage contracts for Sitecast
package interfaces

import (
	"context"

	"github.com/bobmcallan/sitecast/internal/models"
)

// StorageManager coordinates the persistent stores of one backend.
type StorageManager interface {
	SiteStore() SiteStore
	PortfolioStore() PortfolioStore
	ForecastStore() ForecastStore
	UserStore() UserStore

	// Backend names the storage engine ("sqlite", "surrealdb").
	Backend() string

	Close() error
}

// SiteStore persists sites. List results are ordered by name.
type SiteStore interface {
	// Create assigns ID and timestamps.
	Create(ctx context.Context, site *models.Site) error
	// Get returns models.ErrNotFound when absent.
	Get(ctx context.Context, id int64) (*models.Site, error)
	// GetMany returns the sites that exist among ids.
	GetMany(ctx context.Context, ids []int64) ([]models.Site, error)
	List(ctx context.Context, filter models.SiteFilter) ([]models.Site, error)
	// Update refreshes UpdatedAt and returns models.ErrNotFound when absent.
	Update(ctx context.Context, site *models.Site) error
	Delete(ctx context.Context, id int64) error
	// FindNear returns sites whose coordinates are within tolerance degrees
	// on both axes, excluding excludeID.
	FindNear(ctx context.Context, lat, lon, tolerance float64, excludeID int64) ([]models.Site, error)
}

// PortfolioStore persists portfolios and their site membership.
// Portfolios are returned without Sites; membership is read via SiteIDs.
type PortfolioStore interface {
	Create(ctx context.Context, p *models.Portfolio) error
	Get(ctx context.Context, id int64) (*models.Portfolio, error)
	List(ctx context.Context) ([]models.Portfolio, error)
	Update(ctx context.Context, p *models.Portfolio) error
	// Delete removes the portfolio and its membership rows.
	Delete(ctx context.Context, id int64) error

	SiteIDs(ctx context.Context, portfolioID int64) ([]int64, error)
	SetSites(ctx context.Context, portfolioID int64, siteIDs []int64) error
	AddSite(ctx context.Context, portfolioID, siteID int64) error
	RemoveSite(ctx context.Context, portfolioID, siteID int64) error
	// PortfoliosForSite returns ids of portfolios containing siteID.
	PortfoliosForSite(ctx context.Context, siteID int64) ([]int64, error)
}

// ForecastStore persists forecast jobs and their results.
type ForecastStore interface {
	// CreateJob assigns a UUID and CreatedAt when unset.
	CreateJob(ctx context.Context, job *models.ForecastJob) error
	GetJob(ctx context.Context, id string) (*models.ForecastJob, error)
	// ListJobs returns matching jobs, newest first.
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ForecastJob, error)
	// TransitionJob moves a job to status `to` only while its current status
	// is one of `from`. It stamps started_at on running and completed_at on
	// terminal states. Returns false when the guard did not match.
	TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, errMsg string) (bool, error)
	// ResetRunningJobs returns orphaned running jobs to pending.
	ResetRunningJobs(ctx context.Context) (int, error)
	// DeleteJob removes a job and its results.
	DeleteJob(ctx context.Context, id string) error
	// LatestCompletedJob returns the newest completed job of a portfolio.
	// When siteID is non-zero only jobs holding results for that site qualify.
	// portfolioID 0 matches any portfolio.
	LatestCompletedJob(ctx context.Context, portfolioID, siteID int64) (*models.ForecastJob, error)

	// SaveResults replaces results sharing (job, site, datetime).
	SaveResults(ctx context.Context, results []models.ForecastResult) error
	// ListResults is ordered by site id then forecast time.
	ListResults(ctx context.Context, filter models.ResultFilter) ([]models.ForecastResult, error)
	CountResults(ctx context.Context, filter models.ResultFilter) (int, error)
	SiteHasResults(ctx context.Context, siteID int64) (bool, error)
}

// UserStore persists API accounts.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
}
