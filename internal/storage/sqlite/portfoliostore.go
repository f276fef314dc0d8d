package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
)

const portfolioColumns = "id, name, description, created_at, updated_at"

// PortfolioStore implements interfaces.PortfolioStore using SQLite.
type PortfolioStore struct {
	db     *sql.DB
	logger *common.Logger
}

// NewPortfolioStore creates a new PortfolioStore.
func NewPortfolioStore(db *sql.DB, logger *common.Logger) *PortfolioStore {
	return &PortfolioStore{db: db, logger: logger}
}

func scanPortfolio(row rowScanner) (*models.Portfolio, error) {
	var (
		p                models.Portfolio
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	p.Sites = []models.Site{}
	return &p, nil
}

func (s *PortfolioStore) Create(ctx context.Context, p *models.Portfolio) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO portfolios (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)",
		p.Name, p.Description, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read portfolio id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s *PortfolioStore) Get(ctx context.Context, id int64) (*models.Portfolio, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("portfolio", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return p, nil
}

func (s *PortfolioStore) List(ctx context.Context) ([]models.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := []models.Portfolio{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}
	return portfolios, rows.Err()
}

func (s *PortfolioStore) Update(ctx context.Context, p *models.Portfolio) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE portfolios SET name = ?, description = ?, updated_at = ? WHERE id = ?",
		p.Name, p.Description, formatTime(now), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("portfolio", p.ID)
	}
	p.UpdatedAt = now
	return nil
}

func (s *PortfolioStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM portfolio_sites WHERE portfolio_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete portfolio membership: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM portfolios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("portfolio", id)
	}
	return tx.Commit()
}

func (s *PortfolioStore) SiteIDs(ctx context.Context, portfolioID int64) ([]int64, error) {
	return s.queryIDs(ctx, "SELECT site_id FROM portfolio_sites WHERE portfolio_id = ? ORDER BY site_id", portfolioID)
}

func (s *PortfolioStore) SetSites(ctx context.Context, portfolioID int64, siteIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM portfolio_sites WHERE portfolio_id = ?", portfolioID); err != nil {
		return fmt.Errorf("failed to clear portfolio membership: %w", err)
	}
	for _, siteID := range siteIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO portfolio_sites (portfolio_id, site_id) VALUES (?, ?)",
			portfolioID, siteID); err != nil {
			return fmt.Errorf("failed to add site %d: %w", siteID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE portfolios SET updated_at = ? WHERE id = ?",
		formatTime(time.Now()), portfolioID); err != nil {
		return fmt.Errorf("failed to touch portfolio: %w", err)
	}
	return tx.Commit()
}

func (s *PortfolioStore) AddSite(ctx context.Context, portfolioID, siteID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO portfolio_sites (portfolio_id, site_id) VALUES (?, ?)",
		portfolioID, siteID); err != nil {
		return fmt.Errorf("failed to add site to portfolio: %w", err)
	}
	return nil
}

func (s *PortfolioStore) RemoveSite(ctx context.Context, portfolioID, siteID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM portfolio_sites WHERE portfolio_id = ? AND site_id = ?",
		portfolioID, siteID); err != nil {
		return fmt.Errorf("failed to remove site from portfolio: %w", err)
	}
	return nil
}

func (s *PortfolioStore) PortfoliosForSite(ctx context.Context, siteID int64) ([]int64, error) {
	return s.queryIDs(ctx, "SELECT portfolio_id FROM portfolio_sites WHERE site_id = ? ORDER BY portfolio_id", siteID)
}

func (s *PortfolioStore) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Compile-time check
var _ interfaces.PortfolioStore = (*PortfolioStore)(nil)
