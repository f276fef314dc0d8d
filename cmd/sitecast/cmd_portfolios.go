package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/bobmcallan/sitecast/internal/view"
)

type portfolioFlags struct {
	name        string
	description string
	siteIDs     []int64
}

func (f *portfolioFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "portfolio name")
	fs.StringVar(&f.description, "description", "", "free-text description")
	fs.Int64SliceVar(&f.siteIDs, "sites", nil, "member site ids, replacing the current membership (e.g. --sites 1,2,3)")
}

func (f *portfolioFlags) input(fs *pflag.FlagSet) models.PortfolioInput {
	var in models.PortfolioInput
	if fs.Changed("name") {
		in.Name = &f.name
	}
	if fs.Changed("description") {
		in.Description = &f.description
	}
	if fs.Changed("sites") {
		ids := f.siteIDs
		if ids == nil {
			ids = []int64{}
		}
		in.SiteIDs = &ids
	}
	return in
}

func (c *cli) portfoliosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portfolios",
		Aliases: []string{"portfolio"},
		Short:   "List and manage portfolios of sites",
	}
	cmd.AddCommand(
		c.portfoliosListCmd(),
		c.portfoliosGetCmd(),
		c.portfoliosCreateCmd(),
		c.portfoliosUpdateCmd(),
		c.portfoliosDeleteCmd(),
		c.portfoliosMembershipCmd("add-site", "Add a site to a portfolio", func(ctx context.Context, pid, sid int64) (*models.Portfolio, error) {
			return c.client.Portfolios.AddSite(ctx, pid, sid)
		}),
		c.portfoliosMembershipCmd("remove-site", "Remove a site from a portfolio", func(ctx context.Context, pid, sid int64) (*models.Portfolio, error) {
			return c.client.Portfolios.RemoveSite(ctx, pid, sid)
		}),
		c.portfoliosSitesCmd(),
	)
	return cmd
}

func (c *cli) portfoliosListCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List portfolios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := c.client.Portfolios.List(cmd.Context())
			if err != nil {
				return err
			}
			return c.render.Portfolios(view.FilterPortfolios(ps, search))
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by name or description")
	return cmd
}

func (c *cli) portfoliosGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a portfolio and its sites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "portfolio")
			if err != nil {
				return err
			}
			p, err := c.client.Portfolios.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.render.Portfolio(p)
		},
	}
}

func (c *cli) portfoliosCreateCmd() *cobra.Command {
	var f portfolioFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a portfolio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.client.Portfolios.Create(cmd.Context(), f.input(cmd.Flags()))
			if err != nil {
				return err
			}
			return c.render.Portfolio(p)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func (c *cli) portfoliosUpdateCmd() *cobra.Command {
	var f portfolioFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a portfolio's name, description or membership",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "portfolio")
			if err != nil {
				return err
			}
			p, err := c.client.Portfolios.Update(cmd.Context(), id, f.input(cmd.Flags()))
			if err != nil {
				return err
			}
			return c.render.Portfolio(p)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func (c *cli) portfoliosDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "portfolio")
			if err != nil {
				return err
			}
			if err := c.client.Portfolios.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted portfolio %d.\n", id)
			return nil
		},
	}
}

func (c *cli) portfoliosMembershipCmd(use, short string, op func(ctx context.Context, portfolioID, siteID int64) (*models.Portfolio, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <portfolio-id> <site-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parseID(args[0], "portfolio")
			if err != nil {
				return err
			}
			sid, err := parseID(args[1], "site")
			if err != nil {
				return err
			}
			p, err := op(cmd.Context(), pid, sid)
			if err != nil {
				return err
			}
			return c.render.Portfolio(p)
		},
	}
}

func (c *cli) portfoliosSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites <id>",
		Short: "List the sites of a portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "portfolio")
			if err != nil {
				return err
			}
			sites, err := c.client.Portfolios.Sites(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.render.Sites(sites)
		},
	}
}
