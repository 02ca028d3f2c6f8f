package admin

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sipico/magic-links/internal/middleware"
)

// NewRouter creates the admin router. Mount it under /admin.
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	// Public endpoints (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.TokenAuthMiddleware)
		r.Use(middleware.MaxBodySize(middleware.DefaultMaxBodySize))

		r.Post("/loglevel", h.HandleSetLogLevel)

		r.Get("/templates", h.HandleListTemplates)
		r.Post("/links", h.HandleCreateLink)

		r.Post("/principals", h.HandleCreatePrincipal)
		r.Get("/principals/{type}/{id}", h.HandleGetPrincipal)
		r.Delete("/principals/{type}/{id}", h.HandleDeletePrincipal)
	})

	return r
}
