package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idamart/internal/config"
	"idamart/internal/datamart"
	"idamart/internal/middleware"
	"idamart/internal/operations"
	"idamart/internal/variance"
)

// RouterConfig assembles the dependencies of the HTTP API.
type RouterConfig struct {
	Logger   *slog.Logger
	Store    datamart.Store
	Pipeline *operations.Pipeline
	Variance *variance.Builder
	Server   config.ServerConfig
	Version  string
}

// NewRouter builds the chi router with the full middleware chain and all API
// routes. The metrics endpoint sits outside the middleware group so scrapes
// stay out of the request log.
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	healthHandler := NewHealthHandler(cfg.Store, logger, cfg.Version)
	dataHandler := NewDataHandler(cfg.Store, logger)
	varianceHandler := NewVarianceHandler(cfg.Variance, logger)
	operationsHandler := NewOperationsHandler(cfg.Pipeline, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.ReadTimeout, logger))

			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/version", healthHandler.Version)

			r.Get("/facts", dataHandler.Facts)
			r.Get("/variance", varianceHandler.Pivot)
			r.Route("/dimensions", func(r chi.Router) {
				r.Get("/periods", dataHandler.Periods)
				r.Get("/entities", dataHandler.Entities)
				r.Get("/services", dataHandler.Services)
			})
		})

		// Runs read every workbook; the read timeout is far too tight.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.WriteTimeout, logger))

			r.Post("/operations/run", operationsHandler.Run)
			r.Get("/operations/status", operationsHandler.Status)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		render.Status(req, http.StatusNotFound)
		render.JSON(w, req, map[string]string{"error": "not found", "path": req.URL.Path})
	})

	return r
}
