package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/sitecast/internal/models"
)

const (
	demoPortfolioName = "Demo Portfolio"
	demoHorizon       = 6
)

type demoSite struct {
	name     string
	siteType models.SiteType
	lat, lon float64
	capacity float64
}

var demoSites = []demoSite{
	{name: "Demo Solar Farm", siteType: models.SiteTypeSolar, lat: 36.7783, lon: -119.4179, capacity: 100},
	{name: "Demo Wind Farm", siteType: models.SiteTypeWind, lat: 32.7767, lon: -96.7970, capacity: 150},
}

func (c *cli) demoCmd() *cobra.Command {
	var horizon int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Create demo sites and a demo portfolio, then forecast it",
		Long: `Creates a solar and a wind site and a portfolio holding both, reusing
any that already exist by name, then runs a forecast for the portfolio.
Running it again does not create duplicates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := cmd.ErrOrStderr()

			ids, err := c.ensureDemoSites(ctx, log)
			if err != nil {
				return err
			}
			p, err := c.ensureDemoPortfolio(ctx, log, ids)
			if err != nil {
				return err
			}

			fmt.Fprintf(log, "Forecasting %s for %d hours\n", p.Name, horizon)
			res, err := c.client.Forecasts.RunForecast(ctx, p.ID, horizon, progress(cmd))
			if err != nil {
				return err
			}
			return c.render.PortfolioResults(res)
		},
	}
	cmd.Flags().IntVar(&horizon, "horizon", demoHorizon, "forecast horizon in hours")
	return cmd
}

// ensureDemoSites returns the ids of the demo sites, creating missing ones.
func (c *cli) ensureDemoSites(ctx context.Context, log io.Writer) ([]int64, error) {
	existing, err := c.client.Sites.List(ctx, "")
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(demoSites))
	for _, d := range demoSites {
		idx := slices.IndexFunc(existing, func(s models.Site) bool { return s.Name == d.name })
		if idx >= 0 {
			fmt.Fprintf(log, "Using site %s (%d)\n", d.name, existing[idx].ID)
			ids = append(ids, existing[idx].ID)
			continue
		}

		name, typ := d.name, d.siteType
		site, err := c.client.Sites.Create(ctx, models.SiteInput{
			Name:       &name,
			SiteType:   &typ,
			Latitude:   models.NumberPtr(d.lat),
			Longitude:  models.NumberPtr(d.lon),
			CapacityMW: models.NumberPtr(d.capacity),
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", d.name, err)
		}
		fmt.Fprintf(log, "Created site %s (%d)\n", site.Name, site.ID)
		ids = append(ids, site.ID)
	}
	return ids, nil
}

// ensureDemoPortfolio finds or creates the demo portfolio and adds any demo
// site it is missing.
func (c *cli) ensureDemoPortfolio(ctx context.Context, log io.Writer, siteIDs []int64) (*models.Portfolio, error) {
	portfolios, err := c.client.Portfolios.List(ctx)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(portfolios, func(p models.Portfolio) bool { return p.Name == demoPortfolioName })
	if idx < 0 {
		name, desc := demoPortfolioName, "Portfolio for demonstration"
		p, err := c.client.Portfolios.Create(ctx, models.PortfolioInput{Name: &name, Description: &desc, SiteIDs: &siteIDs})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", demoPortfolioName, err)
		}
		fmt.Fprintf(log, "Created portfolio %s (%d)\n", p.Name, p.ID)
		return p, nil
	}

	p, err := c.client.Portfolios.Get(ctx, portfolios[idx].ID)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(log, "Using portfolio %s (%d)\n", p.Name, p.ID)
	members := p.SiteIDs()
	for _, id := range siteIDs {
		if slices.Contains(members, id) {
			continue
		}
		if p, err = c.client.Portfolios.AddSite(ctx, p.ID, id); err != nil {
			return nil, fmt.Errorf("add site %d to %s: %w", id, demoPortfolioName, err)
		}
	}
	return p, nil
}
