package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured. apiKey
// guards everything but health when non-empty.
func NewRouter(h *Handler, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			if apiKey != "" {
				r.Use(AuthMiddleware(apiKey))
			}
			r.Get("/sync/status", h.SyncStatus)
			r.Post("/sync/pull", h.SyncPull)
			r.Post("/sync/drain", h.SyncDrain)
			r.Post("/operations", h.CreateOperation)
			r.Get("/collections/{collection}", h.ListCollection)
			r.Delete("/data", h.ClearData)
		})
	})

	return r
}
