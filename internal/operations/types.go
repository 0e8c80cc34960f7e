package operations

import "time"

// Pipeline step identifiers.
const (
	StepIDNormalize  = "normalize"
	StepIDDimensions = "dimensions"
	StepIDFacts      = "facts"
	StepIDVariance   = "variance"
)

// Pipeline step names.
const (
	StepNameNormalize  = "Ingest & Normalize"
	StepNameDimensions = "Dimension Consolidation"
	StepNameFacts      = "Fact Build"
	StepNameVariance   = "Variance View"
)

// StepStatus represents the current status of a step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepState is the runtime record of one executed step.
type StepState struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	StartTime time.Time  `json:"start_time,omitempty"`
	EndTime   time.Time  `json:"end_time,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Duration returns how long the step ran.
func (s *StepState) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// RunSummary carries the counts operators need to tell "ran but found
// nothing" from "crashed", per run.
type RunSummary struct {
	RunID              string       `json:"run_id"`
	MarketVarianceMode string       `json:"market_variance_mode"`
	FilesProcessed     int          `json:"files_processed"`
	FilesEmpty         int          `json:"files_empty"`
	RecordsNormalized  int          `json:"records_normalized"`
	SkippedColumns     int          `json:"skipped_columns"`
	SkippedCells       int          `json:"skipped_cells"`
	DroppedNegative    int          `json:"dropped_negative"`
	PeriodsInserted    int          `json:"periods_inserted"`
	EntitiesInserted   int          `json:"entities_inserted"`
	ServicesInserted   int          `json:"services_inserted"`
	FactsBuilt         int          `json:"facts_built"`
	VariancePeriods    int          `json:"variance_periods"`
	StartTime          time.Time    `json:"start_time"`
	EndTime            time.Time    `json:"end_time"`
	Steps              []*StepState `json:"steps"`
}
