package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	r.Get("/health", h.Health)
	r.Post("/uploads", h.Upload)
	r.Post("/thumbnails", h.SourceThumbnails)

	r.Route("/compositions", func(r chi.Router) {
		r.Post("/", h.CreateComposition)
		r.Post("/import", h.ImportClip)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetComposition)
			r.Delete("/", h.DeleteComposition)
			r.Post("/trim", h.TrimComposition)
			r.Post("/exports", h.CreateExport)
			r.Get("/thumbnails", h.CompositionThumbnails)
		})
	})

	r.Route("/exports", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Delete("/", h.DeleteJob)
			r.Post("/cancel", h.CancelJob)
			r.Get("/file", h.DownloadJob)
		})
	})

	return r
}
