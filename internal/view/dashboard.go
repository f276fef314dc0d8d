package view

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/sitecast/internal/models"
)

// SiteLister lists sites, optionally by type.
type SiteLister interface {
	List(ctx context.Context, siteType models.SiteType) ([]models.Site, error)
}

// PortfolioLister lists portfolios.
type PortfolioLister interface {
	List(ctx context.Context) ([]models.Portfolio, error)
}

// Summary aggregates the fleet shown on the dashboard.
type Summary struct {
	SiteCount       int                     `json:"site_count"`
	SitesByType     map[models.SiteType]int `json:"sites_by_type"`
	TotalCapacityMW float64                 `json:"total_capacity_mw"`
	UnknownCapacity int                     `json:"sites_without_capacity"`
	PortfolioCount  int                     `json:"portfolio_count"`
}

// Dashboard is the data behind the dashboard view.
type Dashboard struct {
	Summary    Summary            `json:"summary"`
	Sites      []models.Site      `json:"sites"`
	Portfolios []models.Portfolio `json:"portfolios"`
}

// LoadDashboard fetches sites and portfolios concurrently and summarizes them.
// The first failure cancels the other request.
func LoadDashboard(ctx context.Context, sites SiteLister, portfolios PortfolioLister) (*Dashboard, error) {
	d := &Dashboard{}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s, err := sites.List(egCtx, "")
		if err != nil {
			return fmt.Errorf("loading sites: %w", err)
		}
		d.Sites = s
		return nil
	})
	eg.Go(func() error {
		p, err := portfolios.List(egCtx)
		if err != nil {
			return fmt.Errorf("loading portfolios: %w", err)
		}
		d.Portfolios = p
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	d.Summary = Summarize(d.Sites, d.Portfolios)
	return d, nil
}

// Summarize counts sites per type and totals known capacity.
func Summarize(sites []models.Site, portfolios []models.Portfolio) Summary {
	s := Summary{
		SiteCount:      len(sites),
		SitesByType:    make(map[models.SiteType]int, len(models.ValidSiteTypes)),
		PortfolioCount: len(portfolios),
	}
	for _, t := range models.ValidSiteTypes {
		s.SitesByType[t] = 0
	}
	for _, site := range sites {
		s.SitesByType[site.SiteType]++
		if c, ok := site.Capacity(); ok {
			s.TotalCapacityMW += c
		} else {
			s.UnknownCapacity++
		}
	}
	s.TotalCapacityMW = models.Round3(s.TotalCapacityMW)
	return s
}
