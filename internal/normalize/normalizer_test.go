package normalize

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idamart/internal/datamart"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeCompoundHeaders(t *testing.T) {
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode: "SMP",
		SourceFile:  "SMP2015.xlsx",
		Header: []string{
			"GRUPO ECONÔMICO",
			"2015-01 Taxa de Resolvidas em 5 dias",
			"2015-01 Quantidade de Respondidas",
		},
		Rows: [][]string{
			{"VIVO", "95,5", "1.200"},
			{"TIM", "90,0", "800"},
		},
	}

	records, stats := n.Normalize(table)
	require.Len(t, records, 4)
	assert.Equal(t, 4, stats.Records)
	assert.Zero(t, stats.SkippedColumns)

	first := records[0]
	assert.Equal(t, "VIVO", first.EntityRaw)
	assert.Equal(t, "Taxa de Resolvidas em 5 dias", first.Variable)
	assert.Equal(t, 2015, first.Year)
	assert.Equal(t, 1, first.Month)
	assert.Equal(t, "2015-01", first.PeriodKey)
	assert.Equal(t, "SMP", first.ServiceCode)
	assert.InDelta(t, 95.5, first.Value, 1e-9)

	// Thousands separator in a count column.
	assert.InDelta(t, 1200, records[1].Value, 1e-9)
}

func TestNormalizeVariableColumnWithPeriodHeaders(t *testing.T) {
	// The long layout: variable names live in their own column and value
	// columns carry only the period.
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode: "STFC",
		SourceFile:  "STFC2015.xlsx",
		Header:      []string{"GRUPO ECONÔMICO", "VARIÁVEL", "2015-01", "2015-02"},
		Rows: [][]string{
			{"OI", "Taxa de Resolvidas em 5 dias", "88,1", "89,2"},
			{"OI", "Quantidade de Respondidas", "500", "510"},
		},
	}

	records, stats := n.Normalize(table)
	require.Len(t, records, 4)
	assert.Zero(t, stats.SkippedCells)

	assert.Equal(t, "Taxa de Resolvidas em 5 dias", records[0].Variable)
	assert.Equal(t, "2015-01", records[0].PeriodKey)
	assert.Equal(t, "2015-02", records[1].PeriodKey)
	assert.InDelta(t, 89.2, records[1].Value, 1e-9)
	assert.Equal(t, "Quantidade de Respondidas", records[2].Variable)
}

func TestNormalizeDefaultPeriodColumns(t *testing.T) {
	// Single-month sheets carry the period in the banner; value columns are
	// bare variable names.
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode:  "SCM",
		SourceFile:   "SCM2015.xlsx",
		DefaultYear:  2015,
		DefaultMonth: 10,
		Header:       []string{"GRUPO ECONÔMICO", "Taxa de Resolvidas em 5 dias"},
		Rows: [][]string{
			{"CLARO", "97,3"},
		},
	}

	records, _ := n.Normalize(table)
	require.Len(t, records, 1)
	assert.Equal(t, "2015-10", records[0].PeriodKey)
	assert.Equal(t, 10, records[0].Month)
	assert.Equal(t, "Taxa de Resolvidas em 5 dias", records[0].Variable)
}

func TestNormalizeCompoundIndicadorHeader(t *testing.T) {
	// A compound period header whose variable part looks like an id-column
	// marker must still be a value column.
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode: "SMP",
		SourceFile:  "SMP2017.xlsx",
		Header:      []string{"GRUPO ECONÔMICO", "2017-03 Indicador de Desempenho no Atendimento (IDA)"},
		Rows: [][]string{
			{"NEXTEL", "73,2"},
		},
	}

	records, stats := n.Normalize(table)
	require.Len(t, records, 1)
	assert.Zero(t, stats.SkippedColumns)
	assert.Zero(t, stats.SkippedCells)
	assert.Equal(t, "Indicador de Desempenho no Atendimento (IDA)", records[0].Variable)
	assert.Equal(t, "2017-03", records[0].PeriodKey)
	assert.InDelta(t, 73.2, records[0].Value, 1e-9)
}

func TestNormalizeSkipsBadPeriodColumn(t *testing.T) {
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode: "SMP",
		SourceFile:  "SMP2015.xlsx",
		Header:      []string{"GRUPO ECONÔMICO", "2015-13 Taxa de Resolvidas em 5 dias", "2015-02 Taxa de Resolvidas em 5 dias"},
		Rows: [][]string{
			{"TIM", "90", "91"},
		},
	}

	records, stats := n.Normalize(table)
	require.Len(t, records, 1, "only the valid column may emit records")
	assert.Equal(t, 1, stats.SkippedColumns)
	assert.Equal(t, "2015-02", records[0].PeriodKey)
}

func TestNormalizeSkipsVariableColumnsWithoutDefaultPeriod(t *testing.T) {
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode: "SMP",
		SourceFile:  "SMP2015.xlsx",
		Header:      []string{"GRUPO ECONÔMICO", "Taxa de Resolvidas em 5 dias"},
		Rows: [][]string{
			{"TIM", "90"},
		},
	}

	records, stats := n.Normalize(table)
	assert.Empty(t, records)
	assert.Equal(t, 1, stats.SkippedColumns)
}

func TestNormalizeDropsNegativeAndUnparseableCells(t *testing.T) {
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode: "SMP",
		SourceFile:  "SMP2015.xlsx",
		Header:      []string{"GRUPO ECONÔMICO", "2015-01 Taxa de Resolvidas em 5 dias"},
		Rows: [][]string{
			{"VIVO", "-1"},
			{"TIM", "n/d"},
			{"CLARO", ""},
			{"OI", "0"},
		},
	}

	records, stats := n.Normalize(table)
	require.Len(t, records, 1, "zero is a real value, the rest are absorbed")
	assert.Equal(t, "OI", records[0].EntityRaw)
	assert.Zero(t, records[0].Value)
	assert.Equal(t, 1, stats.DroppedNegative)
	assert.Equal(t, 2, stats.SkippedCells)
}

func TestNormalizeSkipsBlankEntityRows(t *testing.T) {
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode: "SMP",
		SourceFile:  "SMP2015.xlsx",
		Header:      []string{"GRUPO ECONÔMICO", "2015-01 Taxa de Resolvidas em 5 dias"},
		Rows: [][]string{
			{"", "90"},
			{"   ", "91"},
			{"TIM", "92"},
		},
	}

	records, _ := n.Normalize(table)
	require.Len(t, records, 1)
	assert.Equal(t, "TIM", records[0].EntityRaw)
}

func TestNormalizeEmptyTable(t *testing.T) {
	n := NewNormalizer(testLogger())

	records, stats := n.Normalize(RawTable{ServiceCode: "SMP", SourceFile: "SMP2015.xlsx"})
	assert.Empty(t, records, "an unreadable table yields zero records, never an error")
	assert.Zero(t, stats.Records)
}

func TestNormalizeEntityPassesThroughRaw(t *testing.T) {
	// Canonicalization happens downstream; the reshape must not touch labels.
	n := NewNormalizer(testLogger())

	table := RawTable{
		ServiceCode: "SMP",
		SourceFile:  "SMP2015.xlsx",
		Header:      []string{"GRUPO ECONÔMICO", "2015-01 Taxa de Resolvidas em 5 dias"},
		Rows: [][]string{
			{"Telefônica Brasil S.A. (*)", "95"},
		},
	}

	records, _ := n.Normalize(table)
	require.Len(t, records, 1)
	assert.Equal(t, "Telefônica Brasil S.A. (*)", records[0].EntityRaw)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name string
		cell string
		want float64
		ok   bool
	}{
		{name: "plain integer", cell: "42", want: 42, ok: true},
		{name: "comma decimal", cell: "95,5", want: 95.5, ok: true},
		{name: "dot decimal", cell: "95.5", want: 95.5, ok: true},
		{name: "brazilian thousands", cell: "1.234,56", want: 1234.56, ok: true},
		{name: "english thousands", cell: "1,234.56", want: 1234.56, ok: true},
		{name: "dot-only grouped thousands", cell: "1.200", want: 1200, ok: true},
		{name: "multi-group thousands", cell: "12.345.678", want: 12345678, ok: true},
		{name: "negative grouped thousands", cell: "-1.200", want: -1200, ok: true},
		{name: "dot decimal with long fraction", cell: "1.2345", want: 1.2345, ok: true},
		{name: "zero", cell: "0", want: 0, ok: true},
		{name: "negative", cell: "-3,5", want: -3.5, ok: true},
		{name: "blank", cell: "   ", ok: false},
		{name: "dash placeholder", cell: "-", ok: false},
		{name: "text", cell: "n/d", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseValue(tt.cell)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestPeriodKeyFormat(t *testing.T) {
	assert.Equal(t, "2015-01", datamart.PeriodKey(2015, 1))
	assert.Equal(t, "2015-12", datamart.PeriodKey(2015, 12))
}
