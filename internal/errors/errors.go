// Package errors defines the pipeline error taxonomy and its HTTP mapping.
//
// Cell- and column-level parse issues never become errors: stages absorb and
// count them. File-level emptiness is a logged warning. Only referential
// integrity violations and run-level failures propagate to the caller.
package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// ReferentialError reports a staging group whose canonical entity or service
// has no dimension row. It is fatal for the run: building facts over it would
// corrupt the variance computation downstream.
type ReferentialError struct {
	Dimension string // "entity" or "service"
	Key       string
	PeriodKey string
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("referential error: no %s dimension row for %q (period %s)",
		e.Dimension, e.Key, e.PeriodKey)
}

// RunFailure reports a pipeline run that must not be mistaken for success:
// zero normalized records across all inputs, zero fact rows after a build, or
// a storage failure during the atomic fact replace. Counts let operators tell
// "ran but found nothing" from "crashed".
type RunFailure struct {
	Reason            string
	FilesProcessed    int
	RecordsNormalized int
	FactsBuilt        int
	Err               error
}

func (e *RunFailure) Error() string {
	msg := fmt.Sprintf("run failed: %s (files=%d records=%d facts=%d)",
		e.Reason, e.FilesProcessed, e.RecordsNormalized, e.FactsBuilt)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunFailure) Unwrap() error { return e.Err }

// APIError is the structured HTTP error response for the transport layer.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details.
func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios.
var (
	ErrInvalidRequest = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrNotFound       = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrRunConflict    = New(http.StatusConflict, "RUN_IN_PROGRESS", "A pipeline run is already in progress")
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrRunFailed      = New(http.StatusInternalServerError, "RUN_FAILED", "Pipeline run failed")
)

// InvalidRequestWithError creates an invalid request error with details.
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// RunFailedWithError creates a run failure response carrying the run counts.
func RunFailedWithError(err error) *APIError {
	return NewWithDetails(http.StatusInternalServerError, "RUN_FAILED", "Pipeline run failed", err.Error())
}
