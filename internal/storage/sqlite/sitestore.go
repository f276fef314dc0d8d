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

const siteColumns = "id, name, site_type, latitude, longitude, capacity_mw, created_at, updated_at"

// SiteStore implements interfaces.SiteStore using SQLite.
type SiteStore struct {
	db     *sql.DB
	logger *common.Logger
}

// NewSiteStore creates a new SiteStore.
func NewSiteStore(db *sql.DB, logger *common.Logger) *SiteStore {
	return &SiteStore{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*models.Site, error) {
	var (
		s                models.Site
		siteType         string
		lat, lon         float64
		capacity         sql.NullFloat64
		created, updated string
	)
	if err := row.Scan(&s.ID, &s.Name, &siteType, &lat, &lon, &capacity, &created, &updated); err != nil {
		return nil, err
	}
	s.SiteType = models.SiteType(siteType)
	s.Latitude = models.Number(lat)
	s.Longitude = models.Number(lon)
	if capacity.Valid {
		s.CapacityMW = models.NumberPtr(capacity.Float64)
	}
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	return &s, nil
}

func capacityArg(c *models.Number) sql.NullFloat64 {
	if c == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(*c), Valid: true}
}

func (s *SiteStore) querySites(ctx context.Context, query string, args ...any) ([]models.Site, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	sites := []models.Site{}
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}

func (s *SiteStore) Create(ctx context.Context, site *models.Site) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (name, site_type, latitude, longitude, capacity_mw, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		site.Name, string(site.SiteType), float64(site.Latitude), float64(site.Longitude),
		capacityArg(site.CapacityMW), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to insert site: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read site id: %w", err)
	}
	site.ID = id
	site.CreatedAt = now
	site.UpdatedAt = now
	return nil
}

func (s *SiteStore) Get(ctx context.Context, id int64) (*models.Site, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+siteColumns+" FROM sites WHERE id = ?", id)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("site", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return site, nil
}

func (s *SiteStore) GetMany(ctx context.Context, ids []int64) ([]models.Site, error) {
	if len(ids) == 0 {
		return []models.Site{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT " + siteColumns + " FROM sites WHERE id IN (" + placeholders(len(ids)) + ") ORDER BY name, id"
	return s.querySites(ctx, query, args...)
}

func (s *SiteStore) List(ctx context.Context, filter models.SiteFilter) ([]models.Site, error) {
	if filter.SiteType != "" {
		return s.querySites(ctx, "SELECT "+siteColumns+" FROM sites WHERE site_type = ? ORDER BY name, id", string(filter.SiteType))
	}
	return s.querySites(ctx, "SELECT "+siteColumns+" FROM sites ORDER BY name, id")
}

func (s *SiteStore) Update(ctx context.Context, site *models.Site) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET name = ?, site_type = ?, latitude = ?, longitude = ?, capacity_mw = ?, updated_at = ?
		 WHERE id = ?`,
		site.Name, string(site.SiteType), float64(site.Latitude), float64(site.Longitude),
		capacityArg(site.CapacityMW), formatTime(now), site.ID)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("site", site.ID)
	}
	site.UpdatedAt = now
	return nil
}

func (s *SiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sites WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("site", id)
	}
	return nil
}

func (s *SiteStore) FindNear(ctx context.Context, lat, lon, tolerance float64, excludeID int64) ([]models.Site, error) {
	return s.querySites(ctx,
		"SELECT "+siteColumns+` FROM sites
		 WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ? AND id <> ?
		 ORDER BY id`,
		lat-tolerance, lat+tolerance, lon-tolerance, lon+tolerance, excludeID)
}

// Compile-time check
var _ interfaces.SiteStore = (*SiteStore)(nil)
