package models

import "time"

// SiteType enumerates the supported generation technologies.
type SiteType string

const (
	SiteTypeSolar SiteType = "solar"
	SiteTypeWind  SiteType = "wind"
	SiteTypeHydro SiteType = "hydro"
)

// ValidSiteTypes lists accepted site_type values in display order.
var ValidSiteTypes = []SiteType{SiteTypeSolar, SiteTypeWind, SiteTypeHydro}

// IsValid reports whether t is a known site type.
func (t SiteType) IsValid() bool {
	for _, v := range ValidSiteTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Label returns the human-readable name of the site type.
func (t SiteType) Label() string {
	switch t {
	case SiteTypeSolar:
		return "Solar"
	case SiteTypeWind:
		return "Wind"
	case SiteTypeHydro:
		return "Hydro"
	default:
		return string(t)
	}
}

// Site is a single renewable generation asset.
type Site struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SiteType   SiteType  `json:"site_type"`
	Latitude   Number    `json:"latitude"`
	Longitude  Number    `json:"longitude"`
	CapacityMW *Number   `json:"capacity_mw"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Capacity returns the capacity in MW and whether one is recorded.
func (s *Site) Capacity() (float64, bool) {
	if s.CapacityMW == nil {
		return 0, false
	}
	return float64(*s.CapacityMW), true
}

// SiteInput carries create and update payloads. Nil fields are left
// unchanged on partial updates.
type SiteInput struct {
	Name       *string   `json:"name,omitempty"`
	SiteType   *SiteType `json:"site_type,omitempty"`
	Latitude   *Number   `json:"latitude,omitempty"`
	Longitude  *Number   `json:"longitude,omitempty"`
	CapacityMW *Number   `json:"capacity_mw,omitempty"`
}

// SiteFilter narrows site listings.
type SiteFilter struct {
	SiteType SiteType
}
