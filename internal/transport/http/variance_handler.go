package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apperrors "idamart/internal/errors"
	"idamart/internal/variance"
)

// VarianceHandler serves the entity-versus-market variance pivot.
//
// The pivot is rebuilt from the current fact relation on each request rather
// than cached, so a GET issued after a run always reflects that run.
type VarianceHandler struct {
	builder *variance.Builder
	logger  *slog.Logger
}

// NewVarianceHandler creates a new variance handler.
func NewVarianceHandler(builder *variance.Builder, logger *slog.Logger) *VarianceHandler {
	return &VarianceHandler{
		builder: builder,
		logger:  logger.With(slog.String("handler", "variance")),
	}
}

// Pivot handles GET /api/variance.
func (h *VarianceHandler) Pivot(w http.ResponseWriter, r *http.Request) {
	rows, columns, err := h.builder.Build(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "variance build failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}

	render.JSON(w, r, map[string]any{
		"mode":    string(h.builder.Mode()),
		"columns": columns,
		"count":   len(rows),
		"rows":    rows,
	})
}
