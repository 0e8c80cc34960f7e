package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"idamart/internal/datamart"
)

// HealthHandler handles health-related HTTP requests.
type HealthHandler struct {
	store   datamart.Store
	logger  *slog.Logger
	version string
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store datamart.Store, logger *slog.Logger, version string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		logger:  logger.With(slog.String("handler", "health")),
		version: version,
		started: time.Now(),
	}
}

// HealthCheck handles GET /api/health. The store probe doubles as a readiness
// signal: a reachable store with zero rows is still healthy.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	storeStatus := "ok"
	if _, err := h.store.Periods(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "store health probe failed",
			slog.String("error", err.Error()))
		status = "degraded"
		storeStatus = err.Error()
		render.Status(r, http.StatusServiceUnavailable)
	}

	render.JSON(w, r, map[string]any{
		"status":    status,
		"store":     storeStatus,
		"version":   h.version,
		"uptime":    time.Since(h.started).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Version handles GET /api/version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": h.version})
}
