// Package consolidate derives the dimensional model from staging and builds
// the fact relation. Dimension upserts are append-friendly and never mutate
// existing rows; fact builds are full, atomic rebuilds.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"idamart/internal/datamart"
	"idamart/internal/normalize"
)

// DimensionStats reports how many new dimension rows a consolidation run
// inserted. Re-running over unchanged staging inserts zero everywhere.
type DimensionStats struct {
	PeriodsInserted  int
	EntitiesInserted int
	ServicesInserted int
}

// DimensionConsolidator upserts the Period, Entity and Service dimensions
// from the distinct values currently in staging.
type DimensionConsolidator struct {
	log   *slog.Logger
	canon *normalize.Canonicalizer
	store datamart.Store
}

// NewDimensionConsolidator wires the consolidator to a store and a
// canonicalizer.
func NewDimensionConsolidator(logger *slog.Logger, canon *normalize.Canonicalizer, store datamart.Store) *DimensionConsolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &DimensionConsolidator{log: logger, canon: canon, store: store}
}

// Consolidate reads the current staging contents and upserts every distinct
// period, canonical entity and service code. Existing dimension rows are left
// untouched; the operation is safe to re-run as staging grows.
func (c *DimensionConsolidator) Consolidate(ctx context.Context) (DimensionStats, error) {
	var stats DimensionStats

	records, err := c.store.Observations(ctx)
	if err != nil {
		return stats, fmt.Errorf("read staging: %w", err)
	}

	periodSet := make(map[string]datamart.Period)
	entitySet := make(map[string]struct{})
	serviceSet := make(map[string]struct{})
	for _, r := range records {
		if _, ok := periodSet[r.PeriodKey]; !ok {
			periodSet[r.PeriodKey] = datamart.NewPeriod(r.Year, r.Month)
		}
		entitySet[c.canon.Canonicalize(r.EntityRaw)] = struct{}{}
		serviceSet[r.ServiceCode] = struct{}{}
	}

	periods := make([]datamart.Period, 0, len(periodSet))
	for _, p := range periodSet {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].PeriodKey < periods[j].PeriodKey })

	names := make([]string, 0, len(entitySet))
	for name := range entitySet {
		names = append(names, name)
	}
	sort.Strings(names)
	entities := make([]datamart.Entity, 0, len(names))
	for _, name := range names {
		entities = append(entities, datamart.Entity{CanonicalName: name, Active: true})
	}

	// Known services are seeded first so their display names win over the
	// open "Other" fallback.
	services := datamart.SeedServices()
	codes := make([]string, 0, len(serviceSet))
	for code := range serviceSet {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		services = append(services, datamart.ServiceFor(code))
	}

	if stats.PeriodsInserted, err = c.store.UpsertPeriods(ctx, periods); err != nil {
		return stats, fmt.Errorf("upsert periods: %w", err)
	}
	if stats.EntitiesInserted, err = c.store.UpsertEntities(ctx, entities); err != nil {
		return stats, fmt.Errorf("upsert entities: %w", err)
	}
	if stats.ServicesInserted, err = c.store.UpsertServices(ctx, services); err != nil {
		return stats, fmt.Errorf("upsert services: %w", err)
	}

	c.log.Info("dimensions consolidated",
		"periods_inserted", stats.PeriodsInserted,
		"entities_inserted", stats.EntitiesInserted,
		"services_inserted", stats.ServicesInserted)
	return stats, nil
}
