package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"idamart/internal/consolidate"
	"idamart/internal/datamart"
	apperrors "idamart/internal/errors"
	"idamart/internal/ingest"
	"idamart/internal/metrics"
	"idamart/internal/normalize"
	"idamart/internal/variance"
)

// Pipeline executes the ETL steps sequentially, run-to-completion. Runs are
// serialized: the store expects single-writer, run-to-run sequencing, so a
// second run cannot start while one is in flight.
type Pipeline struct {
	log   *slog.Logger
	steps []Step
	mode  variance.Mode

	mu      sync.Mutex
	running bool
	last    *State
}

// Config assembles the pipeline's collaborators.
type Config struct {
	Logger             *slog.Logger
	Store              datamart.Store
	DataDir            string
	MarketVarianceMode variance.Mode
	Chains             consolidate.SynonymChains
	Rules              []normalize.Rule
}

// NewPipeline wires the full step sequence over one store.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	canon := normalize.NewCanonicalizer(cfg.Rules)
	reader := ingest.NewReader(logger)
	normalizer := normalize.NewNormalizer(logger)
	dimensions := consolidate.NewDimensionConsolidator(logger, canon, cfg.Store)
	facts := consolidate.NewFactBuilder(logger, canon, cfg.Store, cfg.Chains)
	varianceBuilder := variance.NewBuilder(logger, cfg.Store, cfg.MarketVarianceMode)

	return &Pipeline{
		log:  logger,
		mode: cfg.MarketVarianceMode,
		steps: []Step{
			NewNormalizeStep(logger, reader, normalizer, cfg.Store, cfg.DataDir),
			NewDimensionStep(dimensions),
			NewFactStep(facts),
			NewVarianceStep(varianceBuilder),
		},
	}
}

// TryRun starts a run unless one is already in progress.
func (p *Pipeline) TryRun(ctx context.Context) (*State, bool, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, false, nil
	}
	p.running = true
	p.mu.Unlock()

	state, err := p.Run(ctx)

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return state, true, err
}

// Run executes all steps in order. Any step error fails the run; escalation
// rules turn empty outcomes into RunFailure so the run never silently
// succeeds with an empty dataset.
func (p *Pipeline) Run(ctx context.Context) (*State, error) {
	state := &State{
		Summary: RunSummary{
			RunID:              uuid.NewString(),
			MarketVarianceMode: string(p.mode),
			StartTime:          time.Now(),
		},
	}

	p.log.Info("pipeline run started", "run_id", state.Summary.RunID, "mode", string(p.mode))

	err := p.execute(ctx, state)

	state.Summary.EndTime = time.Now()
	duration := state.Summary.EndTime.Sub(state.Summary.StartTime)
	metrics.RunDuration.Observe(duration.Seconds())

	p.mu.Lock()
	p.last = state
	p.mu.Unlock()

	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		p.log.Error("pipeline run failed",
			"run_id", state.Summary.RunID,
			"duration", duration,
			"error", err)
		return state, err
	}

	metrics.RunsTotal.WithLabelValues("succeeded").Inc()
	p.log.Info("pipeline run completed",
		"run_id", state.Summary.RunID,
		"duration", duration,
		"files", state.Summary.FilesProcessed,
		"records", state.Summary.RecordsNormalized,
		"facts", state.Summary.FactsBuilt)
	return state, nil
}

func (p *Pipeline) execute(ctx context.Context, state *State) error {
	for _, step := range p.steps {
		stepState := &StepState{
			ID:        step.ID(),
			Name:      step.Name(),
			Status:    StepStatusActive,
			StartTime: time.Now(),
		}
		state.Summary.Steps = append(state.Summary.Steps, stepState)

		p.log.Info("step started", "step", step.ID())
		err := step.Execute(ctx, state)
		stepState.EndTime = time.Now()

		if err == nil {
			err = p.escalate(step.ID(), state)
		}
		if err != nil {
			stepState.Status = StepStatusFailed
			stepState.Message = err.Error()
			return err
		}

		stepState.Status = StepStatusCompleted
		p.log.Info("step completed", "step", step.ID(), "duration", stepState.Duration())
	}
	return nil
}

// escalate applies the run-level failure rules after each step.
func (p *Pipeline) escalate(stepID string, state *State) error {
	s := &state.Summary
	switch stepID {
	case StepIDNormalize:
		if s.RecordsNormalized == 0 {
			return &apperrors.RunFailure{
				Reason:         "no records normalized from any input",
				FilesProcessed: s.FilesProcessed,
			}
		}
	case StepIDFacts:
		if s.FactsBuilt == 0 {
			return &apperrors.RunFailure{
				Reason:            "fact build produced zero rows",
				FilesProcessed:    s.FilesProcessed,
				RecordsNormalized: s.RecordsNormalized,
			}
		}
	}
	return nil
}

// LastState returns the most recent run state, or nil before the first run.
func (p *Pipeline) LastState() *State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
