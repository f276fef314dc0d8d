package server

import (
	"context"
	"net/http"

	"github.com/bobmcallan/sitecast/internal/models"
)

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := s.app.PortfolioService.ListPortfolios(r.Context())
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, models.NewPage(portfolios))
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var input models.PortfolioInput
	if !DecodeJSON(w, r, &input) {
		return
	}
	p, err := s.app.PortfolioService.CreatePortfolio(r.Context(), input)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	p, err := s.app.PortfolioService.GetPortfolio(r.Context(), id)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	var input models.PortfolioInput
	if !DecodeJSON(w, r, &input) {
		return
	}
	p, err := s.app.PortfolioService.UpdatePortfolio(r.Context(), id, input, r.Method == http.MethodPatch)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.app.PortfolioService.DeletePortfolio(r.Context(), id); err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddSite(w http.ResponseWriter, r *http.Request) {
	s.changeMembership(w, r, s.app.PortfolioService.AddSite)
}

func (s *Server) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	s.changeMembership(w, r, s.app.PortfolioService.RemoveSite)
}

// changeMembership decodes {site_id} and applies op to the portfolio in the path.
func (s *Server) changeMembership(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, portfolioID, siteID int64) (*models.Portfolio, error)) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	var ref models.SiteRef
	if !DecodeOptionalJSON(w, r, &ref) {
		return
	}
	p, err := op(r.Context(), id, ref.SiteID)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handlePortfolioSites(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	sites, err := s.app.PortfolioService.PortfolioSites(r.Context(), id)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	if sites == nil {
		sites = []models.Site{}
	}
	WriteJSON(w, http.StatusOK, sites)
}
