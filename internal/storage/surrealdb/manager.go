package surrealdb

import (
	"context"
	"fmt"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	siteStore      *SiteStore
	portfolioStore *PortfolioStore
	forecastStore  *ForecastStore
	userStore      *UserStore
}

var tables = []string{"site", "portfolio", "portfolio_site", "forecast_job", "forecast_result", "user", "counter"}

var indexes = []string{
	"DEFINE INDEX IF NOT EXISTS site_coords ON site FIELDS latitude, longitude UNIQUE",
	"DEFINE INDEX IF NOT EXISTS user_email ON user FIELDS email UNIQUE",
	"DEFINE INDEX IF NOT EXISTS result_job ON forecast_result FIELDS job_id",
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	m, err := newManager(ctx, db, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// newManager defines the schema on an already selected database and builds the stores.
func newManager(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*Manager, error) {
	// SurrealDB v3 errors on querying non-existent tables
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}
	for _, sql := range indexes {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define index: %w", err)
		}
	}

	m := &Manager{db: db, logger: logger}
	m.siteStore = NewSiteStore(db, logger)
	m.portfolioStore = NewPortfolioStore(db, logger)
	m.forecastStore = NewForecastStore(db, logger)
	m.userStore = NewUserStore(db, logger)
	return m, nil
}

func (m *Manager) SiteStore() interfaces.SiteStore {
	return m.siteStore
}

func (m *Manager) PortfolioStore() interfaces.PortfolioStore {
	return m.portfolioStore
}

func (m *Manager) ForecastStore() interfaces.ForecastStore {
	return m.forecastStore
}

func (m *Manager) UserStore() interfaces.UserStore {
	return m.userStore
}

func (m *Manager) Backend() string {
	return "surrealdb"
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// nextID reserves n sequential integer ids from the named counter and
// returns the first one.
func nextID(ctx context.Context, db *surrealdb.DB, name string, n int) (int64, error) {
	sql := "UPSERT $rid SET value = (value ?? 0) + $n RETURN value"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("counter", name),
		"n":   n,
	}

	type counterResult struct {
		Value int64 `json:"value"`
	}

	results, err := surrealdb.Query[[]counterResult](ctx, db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, fmt.Errorf("failed to allocate %s id: empty counter result", name)
	}
	return (*results)[0].Result[0].Value - int64(n) + 1, nil
}

// affected counts the records returned by the first statement of a write query.
func affected(results *[]surrealdb.QueryResult[[]map[string]any]) int {
	if results == nil || len(*results) == 0 {
		return 0
	}
	return len((*results)[0].Result)
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
