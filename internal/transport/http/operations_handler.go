package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apperrors "idamart/internal/errors"
	"idamart/internal/operations"
)

// OperationsHandler triggers pipeline runs and reports their outcome.
type OperationsHandler struct {
	pipeline *operations.Pipeline
	logger   *slog.Logger
}

// NewOperationsHandler creates a new operations handler.
func NewOperationsHandler(pipeline *operations.Pipeline, logger *slog.Logger) *OperationsHandler {
	return &OperationsHandler{
		pipeline: pipeline,
		logger:   logger.With(slog.String("handler", "operations")),
	}
}

// Run handles POST /api/operations/run. The run executes synchronously and
// the response carries the full run summary; a run already in flight answers
// 409 without starting another.
func (h *OperationsHandler) Run(w http.ResponseWriter, r *http.Request) {
	state, started, err := h.pipeline.TryRun(r.Context())
	if !started {
		render.Render(w, r, apperrors.ErrRunConflict)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "pipeline run failed",
			slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]any{
			"error":   apperrors.RunFailedWithError(err),
			"summary": state.Summary,
		})
		return
	}

	render.JSON(w, r, map[string]any{"summary": state.Summary})
}

// Status handles GET /api/operations/status. Before the first run there is
// nothing to report and the endpoint answers 404.
func (h *OperationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	state := h.pipeline.LastState()
	if state == nil {
		render.Render(w, r, apperrors.ErrNotFound)
		return
	}
	render.JSON(w, r, map[string]any{"summary": state.Summary})
}
