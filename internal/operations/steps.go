package operations

import (
	"context"
	"fmt"
	"log/slog"

	"idamart/internal/consolidate"
	"idamart/internal/datamart"
	"idamart/internal/ingest"
	"idamart/internal/metrics"
	"idamart/internal/normalize"
	"idamart/internal/variance"
)

// NormalizeStep ingests every workbook under the data directory, reshapes it
// into observation records and appends them to staging. Staging is truncated
// first: each run restates the full staging contents from the source files.
type NormalizeStep struct {
	log        *slog.Logger
	reader     *ingest.Reader
	normalizer *normalize.Normalizer
	store      datamart.Store
	dataDir    string
}

// NewNormalizeStep wires the ingest/normalize step.
func NewNormalizeStep(logger *slog.Logger, reader *ingest.Reader, normalizer *normalize.Normalizer, store datamart.Store, dataDir string) *NormalizeStep {
	return &NormalizeStep{log: logger, reader: reader, normalizer: normalizer, store: store, dataDir: dataDir}
}

func (s *NormalizeStep) ID() string   { return StepIDNormalize }
func (s *NormalizeStep) Name() string { return StepNameNormalize }

func (s *NormalizeStep) Execute(ctx context.Context, state *State) error {
	files, err := ingest.DiscoverFiles(s.dataDir)
	if err != nil {
		return err
	}
	if err := s.store.TruncateStaging(ctx); err != nil {
		return err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		table, err := s.reader.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}

		records, stats := s.normalizer.Normalize(table)
		state.Summary.FilesProcessed++
		state.Summary.SkippedColumns += stats.SkippedColumns
		state.Summary.SkippedCells += stats.SkippedCells
		state.Summary.DroppedNegative += stats.DroppedNegative

		if len(records) == 0 {
			// Recoverable per file; a run-wide zero is escalated by the
			// runner after all inputs are seen.
			s.log.Warn("file produced no records", "file", table.SourceFile)
			state.Summary.FilesEmpty++
			continue
		}

		n, err := s.store.AppendObservations(ctx, records)
		if err != nil {
			return fmt.Errorf("append staging for %s: %w", table.SourceFile, err)
		}
		state.Summary.RecordsNormalized += n
		metrics.RecordsNormalized.Add(float64(n))
	}
	return nil
}

// DimensionStep upserts the Period, Entity and Service dimensions from the
// staging contents.
type DimensionStep struct {
	consolidator *consolidate.DimensionConsolidator
}

// NewDimensionStep wires the dimension consolidation step.
func NewDimensionStep(consolidator *consolidate.DimensionConsolidator) *DimensionStep {
	return &DimensionStep{consolidator: consolidator}
}

func (s *DimensionStep) ID() string   { return StepIDDimensions }
func (s *DimensionStep) Name() string { return StepNameDimensions }

func (s *DimensionStep) Execute(ctx context.Context, state *State) error {
	stats, err := s.consolidator.Consolidate(ctx)
	if err != nil {
		return err
	}
	state.Summary.PeriodsInserted = stats.PeriodsInserted
	state.Summary.EntitiesInserted = stats.EntitiesInserted
	state.Summary.ServicesInserted = stats.ServicesInserted
	return nil
}

// FactStep rebuilds the fact relation from staging.
type FactStep struct {
	builder *consolidate.FactBuilder
}

// NewFactStep wires the fact build step.
func NewFactStep(builder *consolidate.FactBuilder) *FactStep {
	return &FactStep{builder: builder}
}

func (s *FactStep) ID() string   { return StepIDFacts }
func (s *FactStep) Name() string { return StepNameFacts }

func (s *FactStep) Execute(ctx context.Context, state *State) error {
	rows, err := s.builder.Build(ctx)
	if err != nil {
		return err
	}
	state.Summary.FactsBuilt = rows
	metrics.FactRows.Set(float64(rows))
	return nil
}

// VarianceStep materializes the variance pivot from the rebuilt facts.
type VarianceStep struct {
	builder *variance.Builder
}

// NewVarianceStep wires the variance view step.
func NewVarianceStep(builder *variance.Builder) *VarianceStep {
	return &VarianceStep{builder: builder}
}

func (s *VarianceStep) ID() string   { return StepIDVariance }
func (s *VarianceStep) Name() string { return StepNameVariance }

func (s *VarianceStep) Execute(ctx context.Context, state *State) error {
	rows, columns, err := s.builder.Build(ctx)
	if err != nil {
		return err
	}
	state.VarianceRows = rows
	state.VarianceColumns = columns
	state.Summary.VariancePeriods = len(rows)
	return nil
}
