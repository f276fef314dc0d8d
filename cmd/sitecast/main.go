package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/sitecast/internal/client"
	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/view"
)

// cli holds global flag values and the client built from them.
type cli struct {
	apiURL       string
	output       string
	tokenFile    string
	pollInterval time.Duration
	pollTimeout  time.Duration
	verbose      bool

	client *client.Client
	tokens *client.FileTokenStore
	render *view.Renderer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "sitecast",
		Short: "Manage renewable sites, portfolios and generation forecasts",
		Long: `sitecast talks to a Sitecast API server.

Sign in once with 'sitecast login'; the token is kept in your user config
directory (or --token-file). The API URL comes from --api-url, then
SITECAST_API_URL (also read from .env), then http://localhost:8080/api.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.apiURL, "api-url", "", "API base URL (default $SITECAST_API_URL or "+client.DefaultBaseURL+")")
	pf.StringVarP(&c.output, "output", "o", "table", "output format: table, json or yaml")
	pf.StringVar(&c.tokenFile, "token-file", "", "token location (default <user config dir>/sitecast/token)")
	pf.DurationVar(&c.pollInterval, "poll-interval", client.DefaultPollInterval, "job status poll interval")
	pf.DurationVar(&c.pollTimeout, "poll-timeout", client.DefaultPollCeiling, "give up waiting for a job after this long")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log API requests to stderr")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.sitesCmd(),
		c.portfoliosCmd(),
		c.forecastCmd(),
		c.dashboardCmd(),
		c.mapCmd(),
		c.chartCmd(),
		c.demoCmd(),
	)
	return root
}

// setup builds the client and renderer from the global flags.
func (c *cli) setup(out io.Writer) error {
	format, err := view.ParseFormat(c.output)
	if err != nil {
		return err
	}
	c.render = view.NewRenderer(out, format)

	if c.pollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be positive, got %s", c.pollInterval)
	}
	if c.pollTimeout <= 0 {
		return fmt.Errorf("--poll-timeout must be positive, got %s", c.pollTimeout)
	}

	if err := client.LoadEnv(".env"); err != nil {
		return err
	}

	c.tokens, err = client.NewFileTokenStore(c.tokenFile)
	if err != nil {
		return err
	}

	logger := common.NewSilentLogger()
	if c.verbose {
		logger = common.NewLogger("debug")
	}

	opts := []client.ClientOption{
		client.WithTokenStore(c.tokens),
		client.WithLogger(logger),
		client.WithPollInterval(c.pollInterval),
		client.WithPollCeiling(c.pollTimeout),
	}
	if c.apiURL != "" {
		opts = append(opts, client.WithBaseURL(c.apiURL))
	}
	c.client = client.NewClient(opts...)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, view.ErrorBanner(err))
		os.Exit(1)
	}
}
