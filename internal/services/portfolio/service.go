// Package portfolio provides portfolio and membership management services
package portfolio

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
)

// Compile-time interface check
var _ interfaces.PortfolioService = (*Service)(nil)

// Service implements PortfolioService
type Service struct {
	storage interfaces.StorageManager
	logger  *common.Logger
}

// NewService creates a new portfolio service
func NewService(storage interfaces.StorageManager, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// ListPortfolios returns every portfolio with its sites and summary
func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	portfolios, err := s.storage.PortfolioStore().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	for i := range portfolios {
		if err := s.hydrate(ctx, &portfolios[i]); err != nil {
			return nil, err
		}
	}
	return portfolios, nil
}

// GetPortfolio retrieves a portfolio with its sites and summary
func (s *Service) GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error) {
	p, err := s.storage.PortfolioStore().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePortfolio validates input and stores a new portfolio
func (s *Service) CreatePortfolio(ctx context.Context, input models.PortfolioInput) (*models.Portfolio, error) {
	p := &models.Portfolio{}
	if err := s.apply(ctx, p, input, false); err != nil {
		return nil, err
	}

	store := s.storage.PortfolioStore()
	if err := store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}
	if input.SiteIDs != nil && len(*input.SiteIDs) > 0 {
		if err := store.SetSites(ctx, p.ID, *input.SiteIDs); err != nil {
			return nil, fmt.Errorf("failed to set portfolio sites: %w", err)
		}
	}

	s.logger.Info().Int64("portfolio_id", p.ID).Str("name", p.Name).Msg("Portfolio created")
	return s.GetPortfolio(ctx, p.ID)
}

// UpdatePortfolio updates fields and replaces membership only when site_ids is provided
func (s *Service) UpdatePortfolio(ctx context.Context, id int64, input models.PortfolioInput, partial bool) (*models.Portfolio, error) {
	store := s.storage.PortfolioStore()
	p, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, p, input, partial); err != nil {
		return nil, err
	}

	if err := store.Update(ctx, p); err != nil {
		return nil, err
	}
	if input.SiteIDs != nil {
		if err := store.SetSites(ctx, id, *input.SiteIDs); err != nil {
			return nil, fmt.Errorf("failed to set portfolio sites: %w", err)
		}
	}

	s.logger.Info().Int64("portfolio_id", id).Bool("partial", partial).Msg("Portfolio updated")
	return s.GetPortfolio(ctx, id)
}

// DeletePortfolio removes a portfolio that has no active forecast jobs
func (s *Service) DeletePortfolio(ctx context.Context, id int64) error {
	if _, err := s.storage.PortfolioStore().Get(ctx, id); err != nil {
		return err
	}

	active, err := s.storage.ForecastStore().ListJobs(ctx, models.JobFilter{
		PortfolioID: id,
		Statuses:    []models.JobStatus{models.JobStatusPending, models.JobStatusRunning},
	})
	if err != nil {
		return fmt.Errorf("failed to check active jobs: %w", err)
	}
	if len(active) > 0 {
		return &models.ValidationError{
			Message: "Cannot delete portfolio",
			Details: fmt.Sprintf("Portfolio has %d active forecast job(s). Wait for completion or cancel jobs first.", len(active)),
		}
	}

	if err := s.storage.PortfolioStore().Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("portfolio_id", id).Msg("Portfolio deleted")
	return nil
}

// AddSite adds an existing site to the portfolio
func (s *Service) AddSite(ctx context.Context, portfolioID, siteID int64) (*models.Portfolio, error) {
	ids, err := s.membership(ctx, portfolioID, siteID)
	if err != nil {
		return nil, err
	}
	if contains(ids, siteID) {
		return nil, models.Invalid("Site is already in this portfolio")
	}
	if err := s.storage.PortfolioStore().AddSite(ctx, portfolioID, siteID); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("portfolio_id", portfolioID).Int64("site_id", siteID).Msg("Site added to portfolio")
	return s.GetPortfolio(ctx, portfolioID)
}

// RemoveSite removes a member site from the portfolio
func (s *Service) RemoveSite(ctx context.Context, portfolioID, siteID int64) (*models.Portfolio, error) {
	ids, err := s.membership(ctx, portfolioID, siteID)
	if err != nil {
		return nil, err
	}
	if !contains(ids, siteID) {
		return nil, models.Invalid("Site is not in this portfolio")
	}
	if err := s.storage.PortfolioStore().RemoveSite(ctx, portfolioID, siteID); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("portfolio_id", portfolioID).Int64("site_id", siteID).Msg("Site removed from portfolio")
	return s.GetPortfolio(ctx, portfolioID)
}

// PortfolioSites lists the member sites ordered by name
func (s *Service) PortfolioSites(ctx context.Context, portfolioID int64) ([]models.Site, error) {
	p, err := s.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return p.Sites, nil
}

// membership validates the add/remove arguments and returns current member ids.
func (s *Service) membership(ctx context.Context, portfolioID, siteID int64) ([]int64, error) {
	if _, err := s.storage.PortfolioStore().Get(ctx, portfolioID); err != nil {
		return nil, err
	}
	if siteID == 0 {
		return nil, models.Invalid("site_id is required")
	}
	if _, err := s.storage.SiteStore().Get(ctx, siteID); err != nil {
		return nil, err
	}
	return s.storage.PortfolioStore().SiteIDs(ctx, portfolioID)
}

func (s *Service) hydrate(ctx context.Context, p *models.Portfolio) error {
	ids, err := s.storage.PortfolioStore().SiteIDs(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load portfolio sites: %w", err)
	}
	sites, err := s.storage.SiteStore().GetMany(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load portfolio sites: %w", err)
	}
	p.Sites = sites
	p.Summarize()
	return nil
}

func (s *Service) apply(ctx context.Context, p *models.Portfolio, input models.PortfolioInput, partial bool) error {
	verr := &models.ValidationError{Message: "Invalid portfolio data"}

	if input.Name != nil {
		p.Name = strings.TrimSpace(*input.Name)
		if len(p.Name) < 2 {
			verr.Add("name", "Portfolio name must be at least 2 characters long.")
		}
	} else if !partial {
		verr.Add("name", "This field is required.")
	}
	if input.Description != nil {
		p.Description = strings.TrimSpace(*input.Description)
	} else if !partial {
		p.Description = ""
	}

	if input.SiteIDs != nil {
		ids := *input.SiteIDs
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				verr.Add("site_ids", "Duplicate site IDs are not allowed.")
				break
			}
			seen[id] = true
		}
		if len(ids) > 0 {
			existing, err := s.storage.SiteStore().GetMany(ctx, ids)
			if err != nil {
				return fmt.Errorf("failed to validate site ids: %w", err)
			}
			found := make(map[int64]bool, len(existing))
			for _, site := range existing {
				found[site.ID] = true
			}
			var missing []string
			for _, id := range ids {
				if !found[id] {
					missing = append(missing, fmt.Sprint(id))
					found[id] = true
				}
			}
			if len(missing) > 0 {
				verr.Add("site_ids", "Sites with IDs "+strings.Join(missing, ", ")+" do not exist.")
			}
		}
	}
	return verr.OrNil()
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
