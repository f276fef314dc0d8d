package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/sitecast/internal/app"
	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to sitecast.toml (default: $SITECAST_CONFIG, then beside the binary)")
	flag.Parse()

	a, err := app.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	if missing := a.Config.ValidateRequired(); a.Config.IsProduction() && len(missing) > 0 {
		for _, m := range missing {
			a.Logger.Error().Str("setting", m).Msg("Required setting missing in production")
		}
		a.Close()
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)
	if a.AdminPassword != "" {
		fmt.Fprintf(os.Stderr, "  Generated admin password for %s: %s\n\n", a.Config.Auth.AdminEmail, a.AdminPassword)
	}

	// Start background job workers
	a.Start()

	srv := server.NewServer(a)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	a.Logger.Info().
		Str("url", fmt.Sprintf("http://localhost:%d/api", a.Config.Server.Port)).
		Str("docs", fmt.Sprintf("http://localhost:%d/swagger/index.html", a.Config.Server.Port)).
		Msg("Server ready")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	common.PrintShutdownBanner(a.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	a.Close()
	a.Logger.Info().Msg("Server stopped")
}
