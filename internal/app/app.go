// Package app wires storage, services and background workers into the
// shared core used by cmd/sitecast-server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/services/forecast"
	"github.com/bobmcallan/sitecast/internal/services/jobmanager"
	"github.com/bobmcallan/sitecast/internal/services/portfolio"
	"github.com/bobmcallan/sitecast/internal/services/site"
	"github.com/bobmcallan/sitecast/internal/storage"
)

// App holds all initialized services and background workers.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	SiteService      interfaces.SiteService
	PortfolioService interfaces.PortfolioService
	ForecastService  interfaces.ForecastService
	Models           *forecast.Registry
	JobManager       *jobmanager.JobManager
	StartupTime      time.Time

	// AdminPassword is set when a generated admin password was created on this start.
	AdminPassword string
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath returns configPath, then SITECAST_CONFIG, then
// sitecast.toml beside the binary, then config/sitecast.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("SITECAST_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "sitecast.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/sitecast.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration from configPath (see ResolveConfigPath) and
// initializes the application with a logger built from it.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)
	return New(config, logger)
}

// New initializes storage, services and the job manager from config. The job
// manager is not started; call Start.
func New(config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := forecast.NewRegistry(config.Forecast.Seed)
	siteService := site.NewService(storageManager, logger)
	portfolioService := portfolio.NewService(storageManager, logger)
	forecastService := forecast.NewService(storageManager, registry, config.Forecast, logger)

	jm := jobmanager.NewJobManager(forecastService, storageManager, logger, config.Forecast)
	forecastService.SetDispatcher(jm)

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		SiteService:      siteService,
		PortfolioService: portfolioService,
		ForecastService:  forecastService,
		Models:           registry,
		JobManager:       jm,
		StartupTime:      startupStart,
	}

	if config.Auth.Enabled {
		password, err := ensureAdmin(context.Background(), storageManager.UserStore(), config.Auth, logger)
		if err != nil {
			storageManager.Close()
			return nil, err
		}
		a.AdminPassword = password
	}

	logger.Info().
		Str("storage", storageManager.Backend()).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Start launches the background job manager.
func (a *App) Start() {
	a.JobManager.Start()
}

// Close releases all resources held by the App.
// Shutdown order: stop job workers, close storage.
func (a *App) Close() {
	if a.JobManager != nil {
		a.JobManager.Stop()
		a.JobManager = nil
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.Storage = nil
	}
}
