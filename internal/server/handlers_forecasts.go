package server

import (
	"net/http"

	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/go-chi/chi/v5"
)

// handleTriggerForecast creates a forecast job. The body is optional.
func (s *Server) handleTriggerForecast(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	var req models.TriggerRequest
	if !DecodeOptionalJSON(w, r, &req) {
		return
	}
	resp, err := s.app.ForecastService.Trigger(r.Context(), id, req.ForecastHorizon)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, resp)
}

func (s *Server) handlePortfolioResults(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	res, err := s.app.ForecastService.PortfolioResults(r.Context(), id, r.URL.Query().Get("job_id"))
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleSiteResults(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id")
	if !ok {
		return
	}
	res, err := s.app.ForecastService.SiteResults(r.Context(), id, r.URL.Query().Get("job_id"))
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.app.ForecastService.JobStatus(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.ForecastService.CancelJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
