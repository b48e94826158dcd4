package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relicta-tech/installkit/internal/httpserver/middleware"
)

// setupRouter configures the Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders())
	r.Use(s.corsMiddleware())

	r.Get("/health", s.api.Health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.api.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKey(s.config.APIKey))
			r.Use(s.limiter.Handler)

			// Compression breaks the WebSocket hijack.
			r.Get("/ws", s.wsHub.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Compress(5, "application/json"))

				r.Get("/updates", s.api.CheckUpdates)
				r.Get("/plugins", s.api.InstalledPlugins)

				r.Route("/sessions", func(r chi.Router) {
					r.Get("/", s.api.ListSessions)
					r.Post("/github", s.api.CreateGitHubSession)
					r.Post("/local", s.api.CreateLocalSession)
					r.Post("/marketplace", s.api.CreateMarketplaceSession)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.api.GetSession)
						r.Delete("/", s.api.DeleteSession)
						r.Post("/url", s.api.SubmitURL)
						r.Post("/version", s.api.SelectVersion)
						r.Post("/package", s.api.SelectPackage)
						r.Post("/upload", s.api.Upload)
						r.Post("/back", s.api.Back)
						r.Post("/retry", s.api.Retry)
						r.Post("/install", s.api.Install)
					})
				})
			})
		})
	})

	return r
}

// corsMiddleware returns configured CORS middleware. Without configured
// origins no CORS headers are sent.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
