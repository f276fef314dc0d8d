package view

import (
	"strings"

	"github.com/bobmcallan/sitecast/internal/models"
)

// FilterSites keeps sites whose name or type contains query, ignoring case.
// A non-empty siteType additionally restricts the type.
func FilterSites(sites []models.Site, query string, siteType models.SiteType) []models.Site {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Site, 0, len(sites))
	for _, s := range sites {
		if siteType != "" && s.SiteType != siteType {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(s.Name), q) &&
			!strings.Contains(strings.ToLower(string(s.SiteType)), q) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// FilterPortfolios keeps portfolios whose name or description contains
// query, ignoring case.
func FilterPortfolios(portfolios []models.Portfolio, query string) []models.Portfolio {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Portfolio, 0, len(portfolios))
	for _, p := range portfolios {
		if q == "" ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	return out
}
