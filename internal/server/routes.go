package server

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.yaml
var openapiYAML []byte

// routes wires middlewares and endpoints.
func (s *Server) routes() http.Handler {
	cfg := s.app.Config
	r := chi.NewRouter()

	r.Use(recoveryMiddleware(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(correlationIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write(openapiYAML)
	})
	r.Mount("/swagger", httpSwagger.Handler(
		httpSwagger.URL("/api/openapi.yaml"),
	))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Get("/version", s.handleVersion)
		api.Post("/auth/login", s.handleLogin)

		api.Group(func(pr chi.Router) {
			if cfg.Auth.Enabled {
				pr.Use(bearerTokenMiddleware(cfg, s.app.Storage.UserStore()))
			}
			pr.Get("/me", s.handleMe)
			pr.Get("/ws/jobs", s.app.JobManager.Hub().ServeWS)

			pr.Route("/sites", func(sr chi.Router) {
				sr.Get("/", s.handleListSites)
				sr.Post("/", s.handleCreateSite)
				sr.Get("/{id}", s.handleGetSite)
				sr.Put("/{id}", s.handleUpdateSite)
				sr.Patch("/{id}", s.handleUpdateSite)
				sr.Delete("/{id}", s.handleDeleteSite)
			})

			pr.Route("/portfolios", func(por chi.Router) {
				por.Get("/", s.handleListPortfolios)
				por.Post("/", s.handleCreatePortfolio)
				por.Get("/{id}", s.handleGetPortfolio)
				por.Put("/{id}", s.handleUpdatePortfolio)
				por.Patch("/{id}", s.handleUpdatePortfolio)
				por.Delete("/{id}", s.handleDeletePortfolio)
				por.Post("/{id}/add_site", s.handleAddSite)
				por.Delete("/{id}/remove_site", s.handleRemoveSite)
				por.Get("/{id}/sites", s.handlePortfolioSites)
			})

			pr.Route("/forecasts", func(fr chi.Router) {
				fr.Post("/portfolio/{id}/trigger", s.handleTriggerForecast)
				fr.Get("/portfolio/{id}/results", s.handlePortfolioResults)
				fr.Get("/site/{id}/results", s.handleSiteResults)
				fr.Get("/jobs/{job_id}/status", s.handleJobStatus)
				fr.Post("/jobs/{job_id}/cancel", s.handleCancelJob)
			})
		})
	})

	return r
}
