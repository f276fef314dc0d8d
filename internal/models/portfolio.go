package models

import "time"

// Portfolio is a named grouping of sites for aggregate analysis.
// Membership is an unordered set.
type Portfolio struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Sites         []Site    `json:"sites"`
	TotalCapacity Number    `json:"total_capacity"`
	SiteCount     int       `json:"site_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SiteIDs returns the ids of the member sites.
func (p *Portfolio) SiteIDs() []int64 {
	ids := make([]int64, 0, len(p.Sites))
	for _, s := range p.Sites {
		ids = append(ids, s.ID)
	}
	return ids
}

// Summarize recomputes SiteCount and TotalCapacity from Sites.
// Sites without a capacity contribute zero.
func (p *Portfolio) Summarize() {
	var total float64
	for i := range p.Sites {
		if c, ok := p.Sites[i].Capacity(); ok {
			total += c
		}
	}
	p.SiteCount = len(p.Sites)
	p.TotalCapacity = Number(total)
}

// PortfolioInput carries create and update payloads. SiteIDs replaces the
// membership only when non-nil.
type PortfolioInput struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	SiteIDs     *[]int64 `json:"site_ids,omitempty"`
}

// SiteRef is the body of add_site / remove_site.
type SiteRef struct {
	SiteID int64 `json:"site_id"`
}
