package surrealdb

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const portfolioSelectFields = "portfolio_id AS id, name, description, created_at, updated_at"

// PortfolioStore implements interfaces.PortfolioStore using SurrealDB.
// Membership lives in portfolio_site records keyed by "<portfolio>_<site>".
type PortfolioStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewPortfolioStore creates a new PortfolioStore.
func NewPortfolioStore(db *surrealdb.DB, logger *common.Logger) *PortfolioStore {
	return &PortfolioStore{db: db, logger: logger}
}

func portfolioRID(id int64) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("portfolio", strconv.FormatInt(id, 10))
}

func membershipRID(portfolioID, siteID int64) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("portfolio_site", fmt.Sprintf("%d_%d", portfolioID, siteID))
}

func (s *PortfolioStore) queryPortfolios(ctx context.Context, sql string, vars map[string]any) ([]models.Portfolio, error) {
	results, err := surrealdb.Query[[]models.Portfolio](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	portfolios := []models.Portfolio{}
	if results != nil && len(*results) > 0 {
		for _, p := range (*results)[0].Result {
			p.Sites = []models.Site{}
			portfolios = append(portfolios, p)
		}
	}
	return portfolios, nil
}

func (s *PortfolioStore) Create(ctx context.Context, p *models.Portfolio) error {
	id, err := nextID(ctx, s.db, "portfolio", 1)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	sql := `CREATE $rid SET portfolio_id = $portfolio_id, name = $name, description = $description,
		created_at = $now, updated_at = $now`
	vars := map[string]any{
		"rid":          portfolioRID(id),
		"portfolio_id": id,
		"name":         p.Name,
		"description":  p.Description,
		"now":          now,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s *PortfolioStore) Get(ctx context.Context, id int64) (*models.Portfolio, error) {
	portfolios, err := s.queryPortfolios(ctx, "SELECT "+portfolioSelectFields+" FROM $rid", map[string]any{"rid": portfolioRID(id)})
	if err != nil {
		return nil, err
	}
	if len(portfolios) == 0 {
		return nil, models.NotFound("portfolio", id)
	}
	return &portfolios[0], nil
}

func (s *PortfolioStore) List(ctx context.Context) ([]models.Portfolio, error) {
	return s.queryPortfolios(ctx, "SELECT "+portfolioSelectFields+" FROM portfolio ORDER BY name, id", nil)
}

func (s *PortfolioStore) Update(ctx context.Context, p *models.Portfolio) error {
	now := time.Now().UTC()
	sql := "UPDATE $rid SET name = $name, description = $description, updated_at = $now"
	vars := map[string]any{
		"rid":         portfolioRID(p.ID),
		"name":        p.Name,
		"description": p.Description,
		"now":         now,
	}
	results, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if affected(results) == 0 {
		return models.NotFound("portfolio", p.ID)
	}
	p.UpdatedAt = now
	return nil
}

func (s *PortfolioStore) Delete(ctx context.Context, id int64) error {
	sql := "DELETE $rid RETURN BEFORE; DELETE portfolio_site WHERE portfolio_id = $id"
	vars := map[string]any{"rid": portfolioRID(id), "id": id}
	results, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if affected(results) == 0 {
		return models.NotFound("portfolio", id)
	}
	return nil
}

func (s *PortfolioStore) SiteIDs(ctx context.Context, portfolioID int64) ([]int64, error) {
	sql := "SELECT VALUE site_id FROM portfolio_site WHERE portfolio_id = $id"
	return s.queryIDs(ctx, sql, map[string]any{"id": portfolioID})
}

func (s *PortfolioStore) SetSites(ctx context.Context, portfolioID int64, siteIDs []int64) error {
	if _, err := surrealdb.Query[any](ctx, s.db,
		"DELETE portfolio_site WHERE portfolio_id = $id", map[string]any{"id": portfolioID}); err != nil {
		return fmt.Errorf("failed to clear portfolio membership: %w", err)
	}
	for _, siteID := range siteIDs {
		if err := s.AddSite(ctx, portfolioID, siteID); err != nil {
			return err
		}
	}
	if _, err := surrealdb.Query[any](ctx, s.db, "UPDATE $rid SET updated_at = $now",
		map[string]any{"rid": portfolioRID(portfolioID), "now": time.Now().UTC()}); err != nil {
		return fmt.Errorf("failed to touch portfolio: %w", err)
	}
	return nil
}

func (s *PortfolioStore) AddSite(ctx context.Context, portfolioID, siteID int64) error {
	sql := "UPSERT $rid SET portfolio_id = $portfolio_id, site_id = $site_id"
	vars := map[string]any{
		"rid":          membershipRID(portfolioID, siteID),
		"portfolio_id": portfolioID,
		"site_id":      siteID,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to add site to portfolio: %w", err)
	}
	return nil
}

func (s *PortfolioStore) RemoveSite(ctx context.Context, portfolioID, siteID int64) error {
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE $rid",
		map[string]any{"rid": membershipRID(portfolioID, siteID)}); err != nil {
		return fmt.Errorf("failed to remove site from portfolio: %w", err)
	}
	return nil
}

func (s *PortfolioStore) PortfoliosForSite(ctx context.Context, siteID int64) ([]int64, error) {
	sql := "SELECT VALUE portfolio_id FROM portfolio_site WHERE site_id = $id"
	return s.queryIDs(ctx, sql, map[string]any{"id": siteID})
}

func (s *PortfolioStore) queryIDs(ctx context.Context, sql string, vars map[string]any) ([]int64, error) {
	results, err := surrealdb.Query[[]int64](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	ids := []int64{}
	if results != nil && len(*results) > 0 {
		ids = append(ids, (*results)[0].Result...)
	}
	slices.Sort(ids)
	return ids, nil
}

// Compile-time check
var _ interfaces.PortfolioStore = (*PortfolioStore)(nil)
