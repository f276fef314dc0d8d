package surrealdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// siteSelectFields aliases site_id to id for struct mapping.
const siteSelectFields = "site_id AS id, name, site_type, latitude, longitude, capacity_mw, created_at, updated_at"

// SiteStore implements interfaces.SiteStore using SurrealDB.
type SiteStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSiteStore creates a new SiteStore.
func NewSiteStore(db *surrealdb.DB, logger *common.Logger) *SiteStore {
	return &SiteStore{db: db, logger: logger}
}

func siteRID(id int64) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("site", strconv.FormatInt(id, 10))
}

func (s *SiteStore) querySites(ctx context.Context, sql string, vars map[string]any) ([]models.Site, error) {
	results, err := surrealdb.Query[[]models.Site](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	sites := []models.Site{}
	if results != nil && len(*results) > 0 {
		sites = append(sites, (*results)[0].Result...)
	}
	return sites, nil
}

func (s *SiteStore) Create(ctx context.Context, site *models.Site) error {
	id, err := nextID(ctx, s.db, "site", 1)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	sql := `CREATE $rid SET
		site_id = $site_id, name = $name, site_type = $site_type,
		latitude = $latitude, longitude = $longitude, capacity_mw = $capacity_mw,
		created_at = $now, updated_at = $now`
	vars := map[string]any{
		"rid":         siteRID(id),
		"site_id":     id,
		"name":        site.Name,
		"site_type":   string(site.SiteType),
		"latitude":    float64(site.Latitude),
		"longitude":   float64(site.Longitude),
		"capacity_mw": capacityVar(site.CapacityMW),
		"now":         now,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}
	site.ID = id
	site.CreatedAt = now
	site.UpdatedAt = now
	return nil
}

func (s *SiteStore) Get(ctx context.Context, id int64) (*models.Site, error) {
	sites, err := s.querySites(ctx, "SELECT "+siteSelectFields+" FROM $rid", map[string]any{"rid": siteRID(id)})
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		return nil, models.NotFound("site", id)
	}
	return &sites[0], nil
}

func (s *SiteStore) GetMany(ctx context.Context, ids []int64) ([]models.Site, error) {
	if len(ids) == 0 {
		return []models.Site{}, nil
	}
	sql := "SELECT " + siteSelectFields + " FROM site WHERE site_id IN $ids ORDER BY name, id"
	return s.querySites(ctx, sql, map[string]any{"ids": ids})
}

func (s *SiteStore) List(ctx context.Context, filter models.SiteFilter) ([]models.Site, error) {
	if filter.SiteType != "" {
		sql := "SELECT " + siteSelectFields + " FROM site WHERE site_type = $site_type ORDER BY name, id"
		return s.querySites(ctx, sql, map[string]any{"site_type": string(filter.SiteType)})
	}
	return s.querySites(ctx, "SELECT "+siteSelectFields+" FROM site ORDER BY name, id", nil)
}

func (s *SiteStore) Update(ctx context.Context, site *models.Site) error {
	now := time.Now().UTC()
	sql := `UPDATE $rid SET
		name = $name, site_type = $site_type, latitude = $latitude, longitude = $longitude,
		capacity_mw = $capacity_mw, updated_at = $now`
	vars := map[string]any{
		"rid":         siteRID(site.ID),
		"name":        site.Name,
		"site_type":   string(site.SiteType),
		"latitude":    float64(site.Latitude),
		"longitude":   float64(site.Longitude),
		"capacity_mw": capacityVar(site.CapacityMW),
		"now":         now,
	}

	results, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	if affected(results) == 0 {
		return models.NotFound("site", site.ID)
	}
	site.UpdatedAt = now
	return nil
}

func (s *SiteStore) Delete(ctx context.Context, id int64) error {
	results, err := surrealdb.Query[[]map[string]any](ctx, s.db, "DELETE $rid RETURN BEFORE", map[string]any{"rid": siteRID(id)})
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	if affected(results) == 0 {
		return models.NotFound("site", id)
	}
	return nil
}

func (s *SiteStore) FindNear(ctx context.Context, lat, lon, tolerance float64, excludeID int64) ([]models.Site, error) {
	sql := "SELECT " + siteSelectFields + ` FROM site
		WHERE latitude >= $lat_min AND latitude <= $lat_max
		AND longitude >= $lon_min AND longitude <= $lon_max
		AND site_id != $exclude ORDER BY id`
	vars := map[string]any{
		"lat_min": lat - tolerance,
		"lat_max": lat + tolerance,
		"lon_min": lon - tolerance,
		"lon_max": lon + tolerance,
		"exclude": excludeID,
	}
	return s.querySites(ctx, sql, vars)
}

// capacityVar maps an absent capacity to NONE so the field is not stored.
func capacityVar(c *models.Number) any {
	if c == nil {
		return nil
	}
	return float64(*c)
}

// Compile-time check
var _ interfaces.SiteStore = (*SiteStore)(nil)
