package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReferentialErrorMessage(t *testing.T) {
	err := &ReferentialError{Dimension: "entity", Key: "FANTASMA", PeriodKey: "2015-01"}
	assert.Contains(t, err.Error(), "entity")
	assert.Contains(t, err.Error(), "FANTASMA")
	assert.Contains(t, err.Error(), "2015-01")
}

func TestRunFailureMessageAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &RunFailure{
		Reason:            "fact build produced zero rows",
		FilesProcessed:    3,
		RecordsNormalized: 120,
		Err:               cause,
	}

	assert.Contains(t, err.Error(), "files=3")
	assert.Contains(t, err.Error(), "records=120")
	assert.Contains(t, err.Error(), "disk full")
	assert.ErrorIs(t, err, cause)
}

func TestRunFailureAsTarget(t *testing.T) {
	wrapped := fmt.Errorf("pipeline: %w", &RunFailure{Reason: "no records"})

	var runErr *RunFailure
	assert.ErrorAs(t, wrapped, &runErr)
	assert.Equal(t, "no records", runErr.Reason)
}

func TestAPIErrorConstructors(t *testing.T) {
	err := New(http.StatusBadRequest, "INVALID_REQUEST", "bad input")
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "bad input", err.Error())

	detailed := NewWithDetails(http.StatusConflict, "RUN_IN_PROGRESS", "busy", "run abc")
	assert.Equal(t, "run abc", detailed.Details)
}

func TestPredefinedErrors(t *testing.T) {
	assert.Equal(t, http.StatusConflict, ErrRunConflict.StatusCode)
	assert.Equal(t, http.StatusNotFound, ErrNotFound.StatusCode)
	assert.Equal(t, http.StatusInternalServerError, ErrRunFailed.StatusCode)
}

func TestRunFailedWithError(t *testing.T) {
	err := RunFailedWithError(errors.New("zero facts"))
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, "zero facts", err.Details)
}
