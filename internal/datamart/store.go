package datamart

import "context"

// Store is the persistence boundary for the data mart. The pipeline writes
// staging, dimensions and facts through it and the variance builder reads
// them back; implementations must keep ReplaceFacts atomic so a failed
// rebuild never leaves a partially overwritten fact relation.
type Store interface {
	// Staging (append-only observation records).
	AppendObservations(ctx context.Context, records []ObservationRecord) (int, error)
	TruncateStaging(ctx context.Context) error
	Observations(ctx context.Context) ([]ObservationRecord, error)

	// Dimensions. Upserts are idempotent: rows with a matching natural key
	// are left untouched, new keys are inserted. The returned count is the
	// number of newly inserted rows.
	UpsertPeriods(ctx context.Context, periods []Period) (int, error)
	UpsertEntities(ctx context.Context, entities []Entity) (int, error)
	UpsertServices(ctx context.Context, services []Service) (int, error)
	Periods(ctx context.Context) ([]Period, error)
	Entities(ctx context.Context) ([]Entity, error)
	Services(ctx context.Context) ([]Service, error)

	// Facts. ReplaceFacts swaps the whole relation in one atomic unit.
	ReplaceFacts(ctx context.Context, facts []FactMetric) error
	Facts(ctx context.Context) ([]FactMetric, error)

	Close()
}
