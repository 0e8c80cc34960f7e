package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"idamart/internal/datamart"
	apperrors "idamart/internal/errors"
	"idamart/internal/normalize"
)

// SynonymChains lists, in fixed priority order, the raw variable names that
// feed each target metric. The first variable present in a staging group
// wins; later synonyms are only consulted when earlier ones are absent.
type SynonymChains struct {
	Rate5D           []string
	RateTotal        []string
	TotalRequests    []string
	ResolvedRequests []string
}

// DefaultChains returns the variable synonym tables observed across the
// published extracts. Order inside each chain is load-bearing.
func DefaultChains() SynonymChains {
	return SynonymChains{
		Rate5D: []string{
			"Taxa de Resolvidas em 5 dias",
			"Taxa de Resolvidas em 5 dias úteis",
			"Taxa de Sol. Resolvidas em até 5 dias úteis",
			"Indicador de Desempenho no Atendimento (IDA)",
		},
		RateTotal: []string{
			"Taxa de Resolvidas no Período",
		},
		TotalRequests: []string{
			"Quantidade de Respondidas",
			"Quantidade de Sol. Respondidas no Período",
			"Quantidade de Solicitações",
			"Quantidade de Reclamações",
		},
		ResolvedRequests: []string{
			"Quantidade de Resolvidas",
			"Quantidade de Sol. Resolvidas no Período",
		},
	}
}

// FactBuilder pivots staging observations into one FactMetric row per
// (period, entity, service) group, resolving competing source variables
// through the synonym chains. Every run fully replaces the fact relation;
// running twice on unchanged staging produces an identical relation.
type FactBuilder struct {
	log    *slog.Logger
	canon  *normalize.Canonicalizer
	store  datamart.Store
	chains SynonymChains
}

// NewFactBuilder wires a fact builder. Empty chains select DefaultChains.
func NewFactBuilder(logger *slog.Logger, canon *normalize.Canonicalizer, store datamart.Store, chains SynonymChains) *FactBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if len(chains.Rate5D) == 0 {
		chains = DefaultChains()
	}
	return &FactBuilder{log: logger, canon: canon, store: store, chains: chains}
}

// group accumulates, per (period, entity, service), the first value seen for
// each variable name. Staging order (Seq) decides "first" inside a variable;
// chain order decides priority across variables.
type group struct {
	periodKey   string
	entityName  string
	serviceCode string
	values      map[string]float64
}

func (g *group) first(chain []string) (float64, bool) {
	for _, name := range chain {
		if v, ok := g.values[name]; ok {
			return v, true
		}
	}
	return 0, false
}

// Build resolves the current staging contents into the fact relation. A
// canonical entity or service code with no dimension row aborts the whole run
// before any replacement happens, leaving the prior facts intact.
func (b *FactBuilder) Build(ctx context.Context) (int, error) {
	records, err := b.store.Observations(ctx)
	if err != nil {
		return 0, fmt.Errorf("read staging: %w", err)
	}

	periods, entities, services, err := b.loadDimensionKeys(ctx)
	if err != nil {
		return 0, err
	}

	groups := make(map[string]*group)
	var order []string
	for _, r := range records {
		entity := b.canon.Canonicalize(r.EntityRaw)
		key := r.PeriodKey + "|" + entity + "|" + r.ServiceCode
		g, ok := groups[key]
		if !ok {
			g = &group{
				periodKey:   r.PeriodKey,
				entityName:  entity,
				serviceCode: r.ServiceCode,
				values:      make(map[string]float64),
			}
			groups[key] = g
			order = append(order, key)
		}
		// Records arrive in Seq order; keep the earliest value per variable.
		if _, seen := g.values[r.Variable]; !seen {
			g.values[r.Variable] = r.Value
		}
	}
	sort.Strings(order)

	facts := make([]datamart.FactMetric, 0, len(order))
	for _, key := range order {
		g := groups[key]

		if _, ok := periods[g.periodKey]; !ok {
			return 0, &apperrors.ReferentialError{Dimension: "period", Key: g.periodKey, PeriodKey: g.periodKey}
		}
		if _, ok := entities[g.entityName]; !ok {
			return 0, &apperrors.ReferentialError{Dimension: "entity", Key: g.entityName, PeriodKey: g.periodKey}
		}
		if _, ok := services[g.serviceCode]; !ok {
			return 0, &apperrors.ReferentialError{Dimension: "service", Key: g.serviceCode, PeriodKey: g.periodKey}
		}

		facts = append(facts, b.resolve(g))
	}

	if err := b.store.ReplaceFacts(ctx, facts); err != nil {
		return 0, fmt.Errorf("replace facts: %w", err)
	}
	b.log.Info("facts built", "rows", len(facts), "staging_records", len(records))
	return len(facts), nil
}

// resolve applies the fallback chains and derivations for one group.
func (b *FactBuilder) resolve(g *group) datamart.FactMetric {
	rate5d, _ := g.first(b.chains.Rate5D)
	rateTotal, _ := g.first(b.chains.RateTotal)
	total, _ := g.first(b.chains.TotalRequests)

	resolved, ok := g.first(b.chains.ResolvedRequests)
	if !ok {
		// No direct count published; derive it from the total and the
		// in-period resolution rate.
		resolved = math.Round(total * rateTotal / 100)
	}

	fact := datamart.FactMetric{
		PeriodKey:         g.periodKey,
		EntityName:        g.entityName,
		ServiceCode:       g.serviceCode,
		RateResolved5D:    clampRate(rate5d),
		RateResolvedTotal: clampRate(rateTotal),
		TotalRequests:     int64(total),
		ResolvedRequests:  int64(resolved),
	}

	if fact.ResolvedRequests > fact.TotalRequests && fact.TotalRequests > 0 {
		// Expected but not enforced; flagged for operators instead of
		// failing the run.
		b.log.Warn("resolved count exceeds total requests",
			"period", g.periodKey,
			"entity", g.entityName,
			"service", g.serviceCode,
			"total", fact.TotalRequests,
			"resolved", fact.ResolvedRequests)
	}
	return fact
}

func (b *FactBuilder) loadDimensionKeys(ctx context.Context) (map[string]struct{}, map[string]struct{}, map[string]struct{}, error) {
	ps, err := b.store.Periods(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read periods: %w", err)
	}
	es, err := b.store.Entities(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read entities: %w", err)
	}
	ss, err := b.store.Services(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read services: %w", err)
	}

	periods := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		periods[p.PeriodKey] = struct{}{}
	}
	entities := make(map[string]struct{}, len(es))
	for _, e := range es {
		entities[e.CanonicalName] = struct{}{}
	}
	services := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		services[s.Code] = struct{}{}
	}
	return periods, entities, services, nil
}

// clampRate truncates out-of-range rates to the nearest bound instead of
// rejecting the row.
func clampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
