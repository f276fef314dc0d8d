package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bobmcallan/sitecast/internal/models"
)

// SitesService wraps the /sites endpoints.
type SitesService struct {
	c *Client
}

// List returns every site, or only those of siteType when non-empty.
func (s *SitesService) List(ctx context.Context, siteType models.SiteType) ([]models.Site, error) {
	var query url.Values
	if siteType != "" {
		query = url.Values{"site_type": {string(siteType)}}
	}
	var raw json.RawMessage
	if err := s.c.do(ctx, http.MethodGet, "/sites", query, nil, &raw); err != nil {
		return nil, err
	}
	return unwrapList[models.Site](raw)
}

func (s *SitesService) Get(ctx context.Context, id int64) (*models.Site, error) {
	var site models.Site
	if err := s.c.do(ctx, http.MethodGet, fmt.Sprintf("/sites/%d", id), nil, nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *SitesService) Create(ctx context.Context, input models.SiteInput) (*models.Site, error) {
	var site models.Site
	if err := s.c.do(ctx, http.MethodPost, "/sites", nil, input, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// Update applies the non-nil fields of input.
func (s *SitesService) Update(ctx context.Context, id int64, input models.SiteInput) (*models.Site, error) {
	var site models.Site
	if err := s.c.do(ctx, http.MethodPatch, fmt.Sprintf("/sites/%d", id), nil, input, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *SitesService) Delete(ctx context.Context, id int64) error {
	return s.c.do(ctx, http.MethodDelete, fmt.Sprintf("/sites/%d", id), nil, nil, nil)
}

// PortfoliosService wraps the /portfolios endpoints.
type PortfoliosService struct {
	c *Client
}

func (p *PortfoliosService) List(ctx context.Context) ([]models.Portfolio, error) {
	var raw json.RawMessage
	if err := p.c.do(ctx, http.MethodGet, "/portfolios", nil, nil, &raw); err != nil {
		return nil, err
	}
	return unwrapList[models.Portfolio](raw)
}

func (p *PortfoliosService) Get(ctx context.Context, id int64) (*models.Portfolio, error) {
	return p.portfolio(ctx, http.MethodGet, fmt.Sprintf("/portfolios/%d", id), nil)
}

func (p *PortfoliosService) Create(ctx context.Context, input models.PortfolioInput) (*models.Portfolio, error) {
	return p.portfolio(ctx, http.MethodPost, "/portfolios", input)
}

// Update applies the non-nil fields of input. Membership is replaced only
// when SiteIDs is set.
func (p *PortfoliosService) Update(ctx context.Context, id int64, input models.PortfolioInput) (*models.Portfolio, error) {
	return p.portfolio(ctx, http.MethodPatch, fmt.Sprintf("/portfolios/%d", id), input)
}

func (p *PortfoliosService) Delete(ctx context.Context, id int64) error {
	return p.c.do(ctx, http.MethodDelete, fmt.Sprintf("/portfolios/%d", id), nil, nil, nil)
}

func (p *PortfoliosService) AddSite(ctx context.Context, portfolioID, siteID int64) (*models.Portfolio, error) {
	return p.portfolio(ctx, http.MethodPost, fmt.Sprintf("/portfolios/%d/add_site", portfolioID), models.SiteRef{SiteID: siteID})
}

func (p *PortfoliosService) RemoveSite(ctx context.Context, portfolioID, siteID int64) (*models.Portfolio, error) {
	return p.portfolio(ctx, http.MethodDelete, fmt.Sprintf("/portfolios/%d/remove_site", portfolioID), models.SiteRef{SiteID: siteID})
}

// Sites lists the member sites of a portfolio.
func (p *PortfoliosService) Sites(ctx context.Context, portfolioID int64) ([]models.Site, error) {
	var raw json.RawMessage
	if err := p.c.do(ctx, http.MethodGet, fmt.Sprintf("/portfolios/%d/sites", portfolioID), nil, nil, &raw); err != nil {
		return nil, err
	}
	return unwrapList[models.Site](raw)
}

func (p *PortfoliosService) portfolio(ctx context.Context, method, path string, body any) (*models.Portfolio, error) {
	var out models.Portfolio
	if err := p.c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
