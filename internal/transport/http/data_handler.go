package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"idamart/internal/datamart"
	apperrors "idamart/internal/errors"
)

// DataHandler exposes the dimension and fact relations as JSON.
type DataHandler struct {
	store  datamart.Store
	logger *slog.Logger
}

// NewDataHandler creates a new data handler.
func NewDataHandler(store datamart.Store, logger *slog.Logger) *DataHandler {
	return &DataHandler{
		store:  store,
		logger: logger.With(slog.String("handler", "data")),
	}
}

// Facts handles GET /api/facts. Optional query filters narrow by period,
// entity and service; filters compose with AND.
func (h *DataHandler) Facts(w http.ResponseWriter, r *http.Request) {
	facts, err := h.store.Facts(r.Context())
	if err != nil {
		h.renderStoreError(w, r, "list facts", err)
		return
	}

	period := r.URL.Query().Get("period")
	entity := r.URL.Query().Get("entity")
	service := r.URL.Query().Get("service")

	filtered := facts[:0:0]
	for _, f := range facts {
		if period != "" && f.PeriodKey != period {
			continue
		}
		if entity != "" && f.EntityName != entity {
			continue
		}
		if service != "" && f.ServiceCode != service {
			continue
		}
		filtered = append(filtered, f)
	}
	if filtered == nil {
		filtered = []datamart.FactMetric{}
	}

	render.JSON(w, r, map[string]any{
		"count": len(filtered),
		"facts": filtered,
	})
}

// Periods handles GET /api/dimensions/periods.
func (h *DataHandler) Periods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.store.Periods(r.Context())
	if err != nil {
		h.renderStoreError(w, r, "list periods", err)
		return
	}
	render.JSON(w, r, map[string]any{"count": len(periods), "periods": periods})
}

// Entities handles GET /api/dimensions/entities.
func (h *DataHandler) Entities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.store.Entities(r.Context())
	if err != nil {
		h.renderStoreError(w, r, "list entities", err)
		return
	}
	render.JSON(w, r, map[string]any{"count": len(entities), "entities": entities})
}

// Services handles GET /api/dimensions/services.
func (h *DataHandler) Services(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.Services(r.Context())
	if err != nil {
		h.renderStoreError(w, r, "list services", err)
		return
	}
	render.JSON(w, r, map[string]any{"count": len(services), "services": services})
}

func (h *DataHandler) renderStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "store read failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	render.Render(w, r, apperrors.ErrInternalServer)
}
