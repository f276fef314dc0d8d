// Package view renders Sitecast resources for the terminal, as GeoJSON
// and as PNG charts.
package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bobmcallan/sitecast/internal/models"
)

// FormatCapacity renders a capacity as "12.5 MW". The second result is false
// when no capacity is recorded; callers omit the value in that case.
func FormatCapacity(c *models.Number) (string, bool) {
	if c == nil {
		return "", false
	}
	return FormatMW(c.Float()), true
}

// FormatMW renders a megawatt value with at most three decimals.
func FormatMW(v float64) string {
	return strconv.FormatFloat(models.Round3(v), 'f', -1, 64) + " MW"
}

// FormatMWh renders an energy value with three decimals.
func FormatMWh(v float64) string {
	return fmt.Sprintf("%.3f MWh", v)
}

// FormatCoordinates renders latitude and longitude to four decimals (~11 m).
func FormatCoordinates(lat, lon models.Number) string {
	return fmt.Sprintf("%.4f, %.4f", lat.Float(), lon.Float())
}

// SiteSummary is a one-line description of a site.
func SiteSummary(s models.Site) string {
	parts := []string{s.SiteType.Label(), FormatCoordinates(s.Latitude, s.Longitude)}
	if c, ok := FormatCapacity(s.CapacityMW); ok {
		parts = append(parts, c)
	}
	return fmt.Sprintf("%s (%s)", s.Name, strings.Join(parts, ", "))
}
