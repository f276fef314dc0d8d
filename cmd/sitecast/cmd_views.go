package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/bobmcallan/sitecast/internal/view"
)

func (c *cli) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize sites, capacity and portfolios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := view.LoadDashboard(cmd.Context(), c.client.Sites, c.client.Portfolios)
			if err != nil {
				return err
			}
			return c.render.Dashboard(d)
		},
	}
}

func (c *cli) mapCmd() *cobra.Command {
	var outPath, siteType, search string
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Export sites as GeoJSON",
		Long:  "Writes every site as a GeoJSON point feature, to --out or standard output.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := c.client.Sites.List(cmd.Context(), models.SiteType(siteType))
			if err != nil {
				return err
			}
			data, err := view.MarshalGeoJSON(view.SitesGeoJSON(view.FilterSites(sites, search, "")))
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return os.WriteFile(outPath, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	cmd.Flags().StringVar(&siteType, "type", "", "only sites of this type")
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by name or type")
	return cmd
}

func (c *cli) chartCmd() *cobra.Command {
	var outPath, jobID string
	cmd := &cobra.Command{
		Use:   "chart <portfolio-id>",
		Short: "Render portfolio forecast results as a PNG chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "portfolio")
			if err != nil {
				return err
			}
			res, err := c.client.Forecasts.PortfolioResults(cmd.Context(), id, jobID)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = fmt.Sprintf("portfolio-%d.png", id)
			}
			if err := writeChart(outPath, res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chart written to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default portfolio-<id>.png)")
	cmd.Flags().StringVar(&jobID, "job", "", "job id (default latest completed)")
	return cmd
}
