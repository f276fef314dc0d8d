// Package site provides renewable site management services
package site

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
)

// ProximityTolerance is the coordinate distance (degrees, roughly 11 m)
// within which two sites are considered to collide.
const ProximityTolerance = 0.0001

const requiredField = "This field is required."

// Compile-time interface check
var _ interfaces.SiteService = (*Service)(nil)

// Service implements SiteService
type Service struct {
	storage interfaces.StorageManager
	logger  *common.Logger
}

// NewService creates a new site service
func NewService(storage interfaces.StorageManager, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// ListSites returns all sites, optionally restricted to one site type
func (s *Service) ListSites(ctx context.Context, siteType string) ([]models.Site, error) {
	filter := models.SiteFilter{}
	if siteType != "" {
		t := models.SiteType(siteType)
		if !t.IsValid() {
			valid := make([]string, len(models.ValidSiteTypes))
			for i, v := range models.ValidSiteTypes {
				valid[i] = string(v)
			}
			return nil, &models.ValidationError{
				Message: "Invalid site_type parameter",
				Details: "site_type must be one of: " + strings.Join(valid, ", "),
				Data:    map[string]any{"valid_types": valid},
			}
		}
		filter.SiteType = t
	}

	sites, err := s.storage.SiteStore().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

// GetSite retrieves a site by id
func (s *Service) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	return s.storage.SiteStore().Get(ctx, id)
}

// CreateSite validates input and stores a new site
func (s *Service) CreateSite(ctx context.Context, input models.SiteInput) (*models.Site, error) {
	site := &models.Site{}
	if err := apply(site, input, false); err != nil {
		return nil, err
	}
	if err := s.checkProximity(ctx, site); err != nil {
		return nil, err
	}

	if err := s.storage.SiteStore().Create(ctx, site); err != nil {
		return nil, fmt.Errorf("failed to create site: %w", err)
	}

	s.logger.Info().
		Int64("site_id", site.ID).
		Str("name", site.Name).
		Str("site_type", string(site.SiteType)).
		Msg("Site created")
	return site, nil
}

// UpdateSite replaces a site, or only the provided fields when partial
func (s *Service) UpdateSite(ctx context.Context, id int64, input models.SiteInput, partial bool) (*models.Site, error) {
	site, err := s.storage.SiteStore().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lat, lon := site.Latitude, site.Longitude

	if err := apply(site, input, partial); err != nil {
		return nil, err
	}
	if site.Latitude != lat || site.Longitude != lon {
		if err := s.checkProximity(ctx, site); err != nil {
			return nil, err
		}
	}

	if err := s.storage.SiteStore().Update(ctx, site); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("site_id", id).Bool("partial", partial).Msg("Site updated")
	return site, nil
}

// DeleteSite removes a site that is in no portfolio and has no forecast results
func (s *Service) DeleteSite(ctx context.Context, id int64) error {
	if _, err := s.storage.SiteStore().Get(ctx, id); err != nil {
		return err
	}

	owners, err := s.storage.PortfolioStore().PortfoliosForSite(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check portfolio membership: %w", err)
	}
	if len(owners) > 0 {
		names := make([]string, 0, len(owners))
		for _, pid := range owners {
			if p, err := s.storage.PortfolioStore().Get(ctx, pid); err == nil {
				names = append(names, p.Name)
			}
		}
		return &models.ConflictError{
			Message: "Cannot delete site",
			Details: fmt.Sprintf("Site is part of %d portfolio(s). Remove from portfolios first.", len(owners)),
			Data:    map[string]any{"portfolios": names},
		}
	}

	count, err := s.storage.ForecastStore().CountResults(ctx, models.ResultFilter{SiteID: id})
	if err != nil {
		return fmt.Errorf("failed to check forecast results: %w", err)
	}
	if count > 0 {
		return &models.ConflictError{
			Message: "Cannot delete site with forecast result",
			Details: fmt.Sprintf("Site has %d forecast result(s). Delete forecast data first.", count),
			Data:    map[string]any{"forecast_results_count": count},
		}
	}

	if err := s.storage.SiteStore().Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("site_id", id).Msg("Site deleted")
	return nil
}

// checkProximity rejects coordinates that collide with another site.
func (s *Service) checkProximity(ctx context.Context, site *models.Site) error {
	lat, lon := site.Latitude.Float(), site.Longitude.Float()
	near, err := s.storage.SiteStore().FindNear(ctx, lat, lon, ProximityTolerance, site.ID)
	if err != nil {
		return fmt.Errorf("failed to check site proximity: %w", err)
	}
	if len(near) == 0 {
		return nil
	}

	for _, n := range near {
		if n.Latitude == site.Latitude && n.Longitude == site.Longitude {
			return &models.ConflictError{
				Message: "Duplicate coordinates",
				Details: "A site already exists at these exact coordinates",
			}
		}
	}

	conflicting := make([]map[string]any, 0, len(near))
	for _, n := range near {
		conflicting = append(conflicting, map[string]any{
			"id":        n.ID,
			"name":      n.Name,
			"latitude":  strconv.FormatFloat(n.Latitude.Float(), 'f', -1, 64),
			"longitude": strconv.FormatFloat(n.Longitude.Float(), 'f', -1, 64),
		})
	}
	return &models.ConflictError{
		Message: "Site too close to existing site",
		Details: "A site already exists within 11 meters of these coordinates",
		Data:    map[string]any{"conflicting_sites": conflicting},
	}
}

// apply copies input onto site and validates the result. A full update
// requires every mandatory field and clears an omitted capacity.
func apply(site *models.Site, input models.SiteInput, partial bool) error {
	verr := &models.ValidationError{Message: "Invalid site data"}

	if input.Name != nil {
		site.Name = strings.TrimSpace(*input.Name)
	} else if !partial {
		verr.Add("name", requiredField)
	}
	if input.SiteType != nil {
		site.SiteType = *input.SiteType
	} else if !partial {
		verr.Add("site_type", requiredField)
	}
	if input.Latitude != nil {
		site.Latitude = *input.Latitude
	} else if !partial {
		verr.Add("latitude", requiredField)
	}
	if input.Longitude != nil {
		site.Longitude = *input.Longitude
	} else if !partial {
		verr.Add("longitude", requiredField)
	}
	if input.CapacityMW != nil || !partial {
		site.CapacityMW = input.CapacityMW
	}

	if _, missing := verr.Fields["name"]; !missing && len(site.Name) < 2 {
		verr.Add("name", "Site name must be at least 2 characters long.")
	}
	if _, missing := verr.Fields["site_type"]; !missing && !site.SiteType.IsValid() {
		verr.Add("site_type", fmt.Sprintf("%q is not a valid choice.", site.SiteType))
	}
	if lat := site.Latitude.Float(); lat < -90 || lat > 90 {
		verr.Add("latitude", "Latitude must be between -90 and 90 degrees.")
	}
	if lon := site.Longitude.Float(); lon < -180 || lon > 180 {
		verr.Add("longitude", "Longitude must be between -180 and 180 degrees.")
	}
	if c, ok := site.Capacity(); ok && c <= 0 {
		verr.Add("capacity_mw", "Capacity must be greater than 0.")
	}
	return verr.OrNil()
}
