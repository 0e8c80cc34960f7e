package datamart

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store with the same semantics as the Postgres
// implementation. It backs unit tests and store-less dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      int64
	staging  []ObservationRecord
	periods  map[string]Period
	entities map[string]Entity
	services map[string]Service
	facts    []FactMetric
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		periods:  make(map[string]Period),
		entities: make(map[string]Entity),
		services: make(map[string]Service),
	}
}

func (m *MemoryStore) AppendObservations(ctx context.Context, records []ObservationRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.seq++
		r.Seq = m.seq
		m.staging = append(m.staging, r)
	}
	return len(records), nil
}

func (m *MemoryStore) TruncateStaging(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staging = nil
	m.seq = 0
	return nil
}

func (m *MemoryStore) Observations(ctx context.Context) ([]ObservationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ObservationRecord, len(m.staging))
	copy(out, m.staging)
	return out, nil
}

func (m *MemoryStore) UpsertPeriods(ctx context.Context, periods []Period) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, p := range periods {
		if _, ok := m.periods[p.PeriodKey]; ok {
			continue
		}
		m.periods[p.PeriodKey] = p
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) UpsertEntities(ctx context.Context, entities []Entity) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, e := range entities {
		if _, ok := m.entities[e.CanonicalName]; ok {
			continue
		}
		m.entities[e.CanonicalName] = e
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) UpsertServices(ctx context.Context, services []Service) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, s := range services {
		if _, ok := m.services[s.Code]; ok {
			continue
		}
		m.services[s.Code] = s
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) Periods(ctx context.Context) ([]Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Period, 0, len(m.periods))
	for _, p := range m.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodKey < out[j].PeriodKey })
	return out, nil
}

func (m *MemoryStore) Entities(ctx context.Context) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out, nil
}

func (m *MemoryStore) Services(ctx context.Context) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Service, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) ReplaceFacts(ctx context.Context, facts []FactMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Swap only after the full slice is staged, so a caller never observes a
	// half-replaced relation.
	next := make([]FactMetric, len(facts))
	copy(next, facts)
	m.facts = next
	return nil
}

func (m *MemoryStore) Facts(ctx context.Context) ([]FactMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]FactMetric, len(m.facts))
	copy(out, m.facts)
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *MemoryStore) Close() {}
