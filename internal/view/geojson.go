package view

import (
	"encoding/json"

	"github.com/bobmcallan/sitecast/internal/models"
)

// FeatureCollection is a GeoJSON feature collection (RFC 7946).
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON feature with a point geometry.
type Feature struct {
	Type       string         `json:"type"`
	ID         int64          `json:"id"`
	Geometry   Point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Point is a GeoJSON point. Coordinates are [longitude, latitude].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// SitesGeoJSON places each site as a point. capacity_mw is omitted when
// unknown.
func SitesGeoJSON(sites []models.Site) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(sites))}
	for _, s := range sites {
		props := map[string]any{
			"name":      s.Name,
			"site_type": string(s.SiteType),
		}
		if c, ok := s.Capacity(); ok {
			props["capacity_mw"] = c
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			ID:         s.ID,
			Geometry:   Point{Type: "Point", Coordinates: [2]float64{s.Longitude.Float(), s.Latitude.Float()}},
			Properties: props,
		})
	}
	return fc
}

// MarshalGeoJSON encodes the collection with indentation.
func MarshalGeoJSON(fc FeatureCollection) ([]byte, error) {
	return json.MarshalIndent(fc, "", "  ")
}
