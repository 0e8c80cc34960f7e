package datamart

import "fmt"

// ObservationRecord is one normalized long-format staging row: a single
// (period, service, entity, variable) reading taken from one source file.
// Records are append-only and identified by Seq, not by content; duplicates
// across files are legal and resolved by the fact builder.
type ObservationRecord struct {
	Seq         int64   `json:"seq"`
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	PeriodKey   string  `json:"period_key"`
	ServiceCode string  `json:"service_code"`
	EntityRaw   string  `json:"entity_raw"`
	Variable    string  `json:"variable"`
	Value       float64 `json:"value"`
	SourceFile  string  `json:"source_file"`
}

// Period is one calendar year-month reporting unit. Quarter and Half are
// derived from Month and never stored independently of it.
type Period struct {
	PeriodKey string `json:"period_key"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Quarter   int    `json:"quarter"`
	Half      int    `json:"half"`
}

// NewPeriod derives the full Period row for a (year, month) pair.
func NewPeriod(year, month int) Period {
	return Period{
		PeriodKey: PeriodKey(year, month),
		Year:      year,
		Month:     month,
		Quarter:   (month-1)/3 + 1,
		Half:      (month-1)/6 + 1,
	}
}

// PeriodKey formats a (year, month) pair as the canonical "YYYY-MM" key.
func PeriodKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// Entity is a canonicalized economic group. CanonicalName is the natural key
// and the join key for facts.
type Entity struct {
	CanonicalName string `json:"canonical_name"`
	Active        bool   `json:"active"`
}

// Service is one regulated service category. Three codes are recognized;
// anything else passes through with Category "Other".
type Service struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
}

// Recognized service codes.
const (
	ServiceSMP  = "SMP"
	ServiceSTFC = "STFC"
	ServiceSCM  = "SCM"
)

// SeedServices returns the known service dimension rows, in seeding order.
func SeedServices() []Service {
	return []Service{
		{Code: ServiceSMP, DisplayName: "Serviço Móvel Pessoal", Category: "Telefonia Móvel"},
		{Code: ServiceSTFC, DisplayName: "Serviço Telefônico Fixo Comutado", Category: "Telefonia Fixa"},
		{Code: ServiceSCM, DisplayName: "Serviço de Comunicação Multimídia", Category: "Banda Larga"},
	}
}

// ServiceFor resolves a raw code into a Service row, defaulting unknown codes
// to an open "Other" entry that keeps the code unchanged.
func ServiceFor(code string) Service {
	for _, s := range SeedServices() {
		if s.Code == code {
			return s
		}
	}
	return Service{Code: code, DisplayName: code, Category: "Other"}
}

// FactMetric is one consolidated metric row per (period, entity, service).
// Rates are clamped to [0,100] by the fact builder before they reach the
// store.
type FactMetric struct {
	PeriodKey         string  `json:"period_key"`
	EntityName        string  `json:"entity_name"`
	ServiceCode       string  `json:"service_code"`
	RateResolved5D    float64 `json:"rate_resolved_5d"`
	RateResolvedTotal float64 `json:"rate_resolved_total"`
	TotalRequests     int64   `json:"total_requests"`
	ResolvedRequests  int64   `json:"resolved_requests"`
}

// Key returns the uniqueness key of the fact row.
func (f FactMetric) Key() string {
	return f.PeriodKey + "|" + f.EntityName + "|" + f.ServiceCode
}

// VarianceRow is one period of the derived variance pivot. Entities carries
// one cell per canonical entity known at build time; the column set is
// discovered at build time, never fixed at design time.
type VarianceRow struct {
	PeriodKey      string             `json:"period_key"`
	MarketVariance float64            `json:"market_variance"`
	Entities       map[string]float64 `json:"entities"`
}
