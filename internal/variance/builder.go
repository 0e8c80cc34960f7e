// Package variance derives the month-over-month comparison between each
// operator group and the market average from the consolidated fact relation.
package variance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"idamart/internal/datamart"
)

// Mode selects how the market percentage change is partitioned. The two
// variants produce different figures whenever entities have period gaps, so
// the active mode must be an explicit deployment decision.
type Mode string

const (
	// ModeGlobal computes one market series over all periods.
	ModeGlobal Mode = "global"
	// ModePerEntity recomputes the market change inside each entity's own
	// sequence of observed periods.
	ModePerEntity Mode = "per_entity"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	return m == ModeGlobal || m == ModePerEntity
}

// Builder materializes the variance pivot: one row per period, a market
// variance column, and one column per canonical entity discovered from the
// Entity dimension at build time.
type Builder struct {
	log   *slog.Logger
	store datamart.Store
	mode  Mode
}

// NewBuilder wires a variance builder. An empty mode defaults to ModeGlobal.
func NewBuilder(logger *slog.Logger, store datamart.Store, mode Mode) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = ModeGlobal
	}
	return &Builder{log: logger, store: store, mode: mode}
}

// Mode returns the market partition mode the builder was configured with.
func (b *Builder) Mode() Mode { return b.mode }

// Build computes the pivot. The entity column set is rediscovered from the
// Entity dimension on every call; rows whose market change is undefined (the
// first observed period) are excluded. Cells are rounded to one decimal and
// missing entity-in-period cells render as 0.
func (b *Builder) Build(ctx context.Context) ([]datamart.VarianceRow, []string, error) {
	facts, err := b.store.Facts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read facts: %w", err)
	}
	dimEntities, err := b.store.Entities(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read entities: %w", err)
	}

	columns := make([]string, 0, len(dimEntities))
	for _, e := range dimEntities {
		columns = append(columns, e.CanonicalName)
	}
	sort.Strings(columns)

	entityMonth := entityMonthMetric(facts)
	marketMonth := marketMonthMetric(entityMonth)

	periods := make([]string, 0, len(entityMonth))
	for p := range entityMonth {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	entityChange := b.entityChanges(periods, entityMonth)

	var rows []datamart.VarianceRow
	switch b.mode {
	case ModePerEntity:
		rows = b.pivotPerEntity(periods, columns, entityMonth, marketMonth, entityChange)
	default:
		rows = b.pivotGlobal(periods, columns, marketMonth, entityChange)
	}

	b.log.Info("variance view built",
		"mode", string(b.mode),
		"periods", len(rows),
		"entity_columns", len(columns))
	return rows, columns, nil
}

// entityMonthMetric averages the 5-day rate across services, per (period,
// entity).
func entityMonthMetric(facts []datamart.FactMetric) map[string]map[string]float64 {
	sums := make(map[string]map[string]float64)
	counts := make(map[string]map[string]int)
	for _, f := range facts {
		if sums[f.PeriodKey] == nil {
			sums[f.PeriodKey] = make(map[string]float64)
			counts[f.PeriodKey] = make(map[string]int)
		}
		sums[f.PeriodKey][f.EntityName] += f.RateResolved5D
		counts[f.PeriodKey][f.EntityName]++
	}

	out := make(map[string]map[string]float64, len(sums))
	for period, byEntity := range sums {
		out[period] = make(map[string]float64, len(byEntity))
		for entity, sum := range byEntity {
			out[period][entity] = sum / float64(counts[period][entity])
		}
	}
	return out
}

// marketMonthMetric averages the entity-month metric across all entities
// present in each period.
func marketMonthMetric(entityMonth map[string]map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(entityMonth))
	for period, byEntity := range entityMonth {
		var sum float64
		for _, v := range byEntity {
			sum += v
		}
		out[period] = sum / float64(len(byEntity))
	}
	return out
}

// entityChanges computes, per entity, the percentage change of its monthly
// metric against the immediately preceding period in that entity's own
// ordered series. The first period of a series, and any step whose previous
// value is not strictly positive, yields no change.
func (b *Builder) entityChanges(periods []string, entityMonth map[string]map[string]float64) map[string]map[string]float64 {
	series := make(map[string][]string) // entity -> its periods ascending
	for _, p := range periods {
		for entity := range entityMonth[p] {
			series[entity] = append(series[entity], p)
		}
	}

	out := make(map[string]map[string]float64)
	for entity, ps := range series {
		for i := 1; i < len(ps); i++ {
			prev := entityMonth[ps[i-1]][entity]
			curr := entityMonth[ps[i]][entity]
			if prev <= 0 {
				continue
			}
			if out[ps[i]] == nil {
				out[ps[i]] = make(map[string]float64)
			}
			out[ps[i]][entity] = (curr - prev) / prev * 100
		}
	}
	return out
}

// pivotGlobal uses one market series ordered over all periods.
func (b *Builder) pivotGlobal(periods, columns []string, marketMonth map[string]float64, entityChange map[string]map[string]float64) []datamart.VarianceRow {
	var rows []datamart.VarianceRow
	for i := 1; i < len(periods); i++ {
		prev := marketMonth[periods[i-1]]
		if prev <= 0 {
			continue
		}
		period := periods[i]
		marketChange := (marketMonth[period] - prev) / prev * 100

		row := datamart.VarianceRow{
			PeriodKey:      period,
			MarketVariance: round1(marketChange),
			Entities:       make(map[string]float64, len(columns)),
		}
		for _, entity := range columns {
			change, ok := entityChange[period][entity]
			if !ok {
				row.Entities[entity] = 0
				continue
			}
			row.Entities[entity] = round1(marketChange - change)
		}
		rows = append(rows, row)
	}
	return rows
}

// pivotPerEntity recomputes the market change within each entity's partition
// of observed periods. Cells from several candidates aggregate by maximum;
// the per-period market column is the maximum across entity partitions, kept
// consistent with the cell aggregation.
func (b *Builder) pivotPerEntity(periods, columns []string, entityMonth map[string]map[string]float64, marketMonth map[string]float64, entityChange map[string]map[string]float64) []datamart.VarianceRow {
	series := make(map[string][]string)
	for _, p := range periods {
		for entity := range entityMonth[p] {
			series[entity] = append(series[entity], p)
		}
	}

	marketByEntity := make(map[string]map[string]float64) // period -> entity -> market change
	for entity, ps := range series {
		for i := 1; i < len(ps); i++ {
			prev := marketMonth[ps[i-1]]
			if prev <= 0 {
				continue
			}
			if marketByEntity[ps[i]] == nil {
				marketByEntity[ps[i]] = make(map[string]float64)
			}
			marketByEntity[ps[i]][entity] = (marketMonth[ps[i]] - prev) / prev * 100
		}
	}

	var rows []datamart.VarianceRow
	for _, period := range periods {
		byEntity, ok := marketByEntity[period]
		if !ok {
			continue
		}

		marketMax := math.Inf(-1)
		for _, v := range byEntity {
			if v > marketMax {
				marketMax = v
			}
		}

		row := datamart.VarianceRow{
			PeriodKey:      period,
			MarketVariance: round1(marketMax),
			Entities:       make(map[string]float64, len(columns)),
		}
		for _, entity := range columns {
			market, hasMarket := byEntity[entity]
			change, hasChange := entityChange[period][entity]
			if !hasMarket || !hasChange {
				row.Entities[entity] = 0
				continue
			}
			row.Entities[entity] = round1(market - change)
		}
		rows = append(rows, row)
	}
	return rows
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
