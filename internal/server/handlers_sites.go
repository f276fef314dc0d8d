package server

import (
	"net/http"

	"github.com/bobmcallan/sitecast/internal/models"
)

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.app.SiteService.ListSites(r.Context(), r.URL.Query().Get("site_type"))
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, models.NewPage(sites))
}

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var input models.SiteInput
	if !DecodeJSON(w, r, &input) {
		return
	}
	site, err := s.app.SiteService.CreateSite(r.Context(), input)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, site)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	site, err := s.app.SiteService.GetSite(r.Context(), id)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, site)
}

// handleUpdateSite serves PUT (full replace) and PATCH (partial).
func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	var input models.SiteInput
	if !DecodeJSON(w, r, &input) {
		return
	}
	site, err := s.app.SiteService.UpdateSite(r.Context(), id, input, r.Method == http.MethodPatch)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, site)
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.app.SiteService.DeleteSite(r.Context(), id); err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
