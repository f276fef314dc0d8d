package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/sitecast/internal/client"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/bobmcallan/sitecast/internal/view"
)

func (c *cli) forecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "forecast",
		Aliases: []string{"forecasts"},
		Short:   "Run forecast jobs and read their results",
	}
	cmd.AddCommand(
		c.forecastRunCmd(),
		c.forecastStatusCmd(),
		c.forecastResultsCmd(),
		c.forecastSiteResultsCmd(),
		c.forecastCancelCmd(),
	)
	return cmd
}

// progress reports status changes on stderr while a job is polled.
func progress(cmd *cobra.Command) client.PollOption {
	var last models.JobStatus
	return client.WithOnUpdate(func(s *models.JobStatusResponse) {
		if s.Status != last {
			fmt.Fprintf(cmd.ErrOrStderr(), "Job %s: %s\n", s.JobID, s.Status)
			last = s.Status
		}
	})
}

func (c *cli) forecastRunCmd() *cobra.Command {
	var horizon int
	var chartPath string
	cmd := &cobra.Command{
		Use:   "run <portfolio-id>",
		Short: "Trigger a forecast, wait for it and show the results",
		Long: `Triggers a forecast job for a portfolio and polls its status until it
completes, fails or --poll-timeout passes. Results are fetched once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "portfolio")
			if err != nil {
				return err
			}
			res, err := c.client.Forecasts.RunForecast(cmd.Context(), id, horizon, progress(cmd))
			if err != nil {
				return err
			}
			if chartPath != "" {
				if err := writeChart(chartPath, res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Chart written to %s\n", chartPath)
			}
			return c.render.PortfolioResults(res)
		},
	}
	cmd.Flags().IntVar(&horizon, "horizon", 0, "forecast horizon in hours (server default when 0)")
	cmd.Flags().StringVar(&chartPath, "chart", "", "also write a PNG chart to this file")
	return cmd
}

func (c *cli) forecastStatusCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a forecast job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				status *models.JobStatusResponse
				err    error
			)
			if wait {
				status, err = c.client.Forecasts.Poller(progress(cmd)).Wait(cmd.Context(), args[0])
			} else {
				status, err = c.client.Forecasts.JobStatus(cmd.Context(), args[0])
			}
			if status != nil {
				if rerr := c.render.JobStatus(status); rerr != nil && err == nil {
					err = rerr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the job finishes")
	return cmd
}

func (c *cli) forecastResultsCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "results <portfolio-id>",
		Short: "Show portfolio forecast results",
		Long:  "Shows the results of --job, or of the latest completed job of the portfolio.",
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
			return c.render.PortfolioResults(res)
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id (default latest completed)")
	return cmd
}

func (c *cli) forecastSiteResultsCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "site-results <site-id>",
		Short: "Show the hourly forecast of one site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "site")
			if err != nil {
				return err
			}
			res, err := c.client.Forecasts.SiteResults(cmd.Context(), id, jobID)
			if err != nil {
				return err
			}
			return c.render.SiteResults(res)
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id (default latest completed)")
	return cmd
}

func (c *cli) forecastCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := c.client.Forecasts.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s: %s\n", job.ID, job.Status)
			return nil
		},
	}
}

func writeChart(path string, res *models.PortfolioResults) error {
	series := view.GroupSeries(client.FlattenPortfolioResults(res), view.SiteNames(res))
	png, err := view.RenderChart(series, fmt.Sprintf("%s forecast", res.PortfolioName))
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}
