// Package sqlite implements interfaces.StorageManager on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		site_type TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		capacity_mw REAL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (latitude, longitude)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sites_type ON sites (site_type)`,
	`CREATE TABLE IF NOT EXISTS portfolios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS portfolio_sites (
		portfolio_id INTEGER NOT NULL,
		site_id INTEGER NOT NULL,
		PRIMARY KEY (portfolio_id, site_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_portfolio_sites_site ON portfolio_sites (site_id)`,
	`CREATE TABLE IF NOT EXISTS forecast_jobs (
		id TEXT PRIMARY KEY,
		portfolio_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		forecast_horizon INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		error_message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_portfolio ON forecast_jobs (portfolio_id, status)`,
	`CREATE TABLE IF NOT EXISTS forecast_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		site_id INTEGER NOT NULL,
		forecast_datetime TEXT NOT NULL,
		predicted_generation_mwh REAL NOT NULL,
		confidence_interval_lower REAL,
		confidence_interval_upper REAL,
		created_at TEXT NOT NULL,
		UNIQUE (job_id, site_id, forecast_datetime)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_site ON forecast_results (site_id, forecast_datetime)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
}

// Manager implements interfaces.StorageManager using SQLite.
type Manager struct {
	db     *sql.DB
	logger *common.Logger
	path   string

	siteStore      *SiteStore
	portfolioStore *PortfolioStore
	forecastStore  *ForecastStore
	userStore      *UserStore
}

// NewManager opens the database at config.Storage.Path.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	return Open(logger, config.Storage.Path)
}

// Open opens (creating if needed) the database file at path and applies the schema.
func Open(logger *common.Logger, path string) (*Manager, error) {
	if path == "" {
		path = "data/sitecast.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	m := &Manager{db: db, logger: logger, path: path}
	m.siteStore = NewSiteStore(db, logger)
	m.portfolioStore = NewPortfolioStore(db, logger)
	m.forecastStore = NewForecastStore(db, logger)
	m.userStore = NewUserStore(db, logger)

	logger.Info().Str("path", path).Msg("SQLite storage manager initialized")

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
	return "sqlite"
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
