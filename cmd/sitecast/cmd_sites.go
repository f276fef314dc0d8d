package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/bobmcallan/sitecast/internal/view"
)

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

// siteFlags binds the editable site fields. Only flags that were set end up
// in the input, so update sends a partial payload.
type siteFlags struct {
	name     string
	siteType string
	lat      float64
	lon      float64
	capacity float64
}

func (f *siteFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "site name")
	fs.StringVar(&f.siteType, "type", "", "site type: solar, wind or hydro")
	fs.Float64Var(&f.lat, "lat", 0, "latitude in degrees (-90 to 90)")
	fs.Float64Var(&f.lon, "lon", 0, "longitude in degrees (-180 to 180)")
	fs.Float64Var(&f.capacity, "capacity", 0, "nameplate capacity in MW")
}

func (f *siteFlags) input(fs *pflag.FlagSet) models.SiteInput {
	var in models.SiteInput
	if fs.Changed("name") {
		in.Name = &f.name
	}
	if fs.Changed("type") {
		t := models.SiteType(strings.ToLower(f.siteType))
		in.SiteType = &t
	}
	if fs.Changed("lat") {
		in.Latitude = models.NumberPtr(f.lat)
	}
	if fs.Changed("lon") {
		in.Longitude = models.NumberPtr(f.lon)
	}
	if fs.Changed("capacity") {
		in.CapacityMW = models.NumberPtr(f.capacity)
	}
	return in
}

func (c *cli) sitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sites",
		Aliases: []string{"site"},
		Short:   "List and manage generation sites",
	}
	cmd.AddCommand(c.sitesListCmd(), c.sitesGetCmd(), c.sitesCreateCmd(), c.sitesUpdateCmd(), c.sitesDeleteCmd())
	return cmd
}

func (c *cli) sitesListCmd() *cobra.Command {
	var siteType, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := models.SiteType(strings.ToLower(siteType))
			sites, err := c.client.Sites.List(cmd.Context(), t)
			if err != nil {
				return err
			}
			return c.render.Sites(view.FilterSites(sites, search, ""))
		},
	}
	cmd.Flags().StringVar(&siteType, "type", "", "only sites of this type")
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by name or type")
	return cmd
}

func (c *cli) sitesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "site")
			if err != nil {
				return err
			}
			site, err := c.client.Sites.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.render.Site(site)
		},
	}
}

func (c *cli) sitesCreateCmd() *cobra.Command {
	var f siteFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new site",
		Example: `  sitecast sites create --name "Sunny Ridge" --type solar --lat 35.1 --lon -117.2 --capacity 12.5`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := c.client.Sites.Create(cmd.Context(), f.input(cmd.Flags()))
			if err != nil {
				return err
			}
			return c.render.Site(site)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func (c *cli) sitesUpdateCmd() *cobra.Command {
	var f siteFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "site")
			if err != nil {
				return err
			}
			site, err := c.client.Sites.Update(cmd.Context(), id, f.input(cmd.Flags()))
			if err != nil {
				return err
			}
			return c.render.Site(site)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func (c *cli) sitesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a site",
		Long:  "Deletes a site. The server refuses while the site belongs to a portfolio or has forecast results.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "site")
			if err != nil {
				return err
			}
			if err := c.client.Sites.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted site %d.\n", id)
			return nil
		},
	}
}
