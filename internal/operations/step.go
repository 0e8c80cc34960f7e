package operations

import (
	"context"

	"idamart/internal/datamart"
)

// Step is a single sequential stage of a pipeline run. Steps mutate the
// shared run State and report fatal conditions as errors; recoverable
// per-cell and per-file issues are absorbed into the State counters instead.
type Step interface {
	// ID returns the unique identifier for this step.
	ID() string

	// Name returns the human-readable name for this step.
	Name() string

	// Execute runs the step against the shared run state.
	Execute(ctx context.Context, state *State) error
}

// State is the mutable record of one pipeline run, shared across steps.
type State struct {
	Summary RunSummary

	// Variance output, populated by the final step and held for the
	// transport/export layers.
	VarianceRows    []datamart.VarianceRow
	VarianceColumns []string
}
