package normalize

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"idamart/internal/datamart"
)

// RawTable is one wide spreadsheet extract after decoding: rows keyed by an
// entity label, columns mixing period labels and variable labels. The decoder
// (internal/ingest) produces these; the normalizer only reshapes them.
type RawTable struct {
	ServiceCode string
	SourceFile  string
	// Default period extracted from the sheet banner, used for columns that
	// carry a variable name but no period of their own. Zero when unknown.
	DefaultYear  int
	DefaultMonth int
	Header       []string
	Rows         [][]string
}

// Stats counts what the normalizer absorbed locally while reshaping a table.
type Stats struct {
	Records         int
	SkippedColumns  int
	SkippedCells    int
	DroppedNegative int
}

// columnRole tells how one raw column contributes to the output records.
type columnRole int

const (
	roleIgnored columnRole = iota
	roleEntity
	roleVariable
	rolePeriodValue   // compound or pure period header carrying values
	roleVariableValue // pure variable header carrying values
)

type column struct {
	role     columnRole
	year     int
	month    int
	variable string // compound-header variable, empty for pure periods
}

// periodHeader matches "YYYY-MM", "YYYY.MM", "YYYY_MM" and the compound form
// "YYYY-MM <variable>".
var periodHeader = regexp.MustCompile(`^\s*(\d{4})[-._/](\d{1,2})\s*(.*)$`)

// Normalizer reshapes raw wide tables into long-format observation records.
// It is a pure reshape: entity labels pass through unmodified and no value is
// ever coerced; blank or unparseable cells are skipped and counted.
type Normalizer struct {
	log *slog.Logger
}

// NewNormalizer returns a normalizer logging through the given logger.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{log: logger}
}

// Normalize produces one ObservationRecord per non-empty (entity row ×
// period/variable column) cell. A table with no recognizable value columns
// yields an empty sequence, never an error; the caller decides whether zero
// output is fatal across the run.
func (n *Normalizer) Normalize(table RawTable) ([]datamart.ObservationRecord, Stats) {
	var stats Stats

	cols := n.classifyColumns(table, &stats)

	entityCol, variableCol := -1, -1
	for i, c := range cols {
		switch c.role {
		case roleEntity:
			if entityCol < 0 {
				entityCol = i
			}
		case roleVariable:
			if variableCol < 0 {
				variableCol = i
			}
		}
	}
	// Tables without a marked entity header key rows by their first column.
	if entityCol < 0 && len(table.Header) > 0 {
		entityCol = 0
		if cols[0].role == rolePeriodValue || cols[0].role == roleVariableValue {
			cols[0].role = roleEntity
		}
	}

	var records []datamart.ObservationRecord
	for _, row := range table.Rows {
		if entityCol >= len(row) {
			continue
		}
		entity := strings.TrimSpace(row[entityCol])
		if entity == "" {
			continue
		}

		variable := ""
		if variableCol >= 0 && variableCol < len(row) {
			variable = strings.TrimSpace(row[variableCol])
		}

		for i, c := range cols {
			if i >= len(row) {
				break
			}
			var year, month int
			var name string

			switch c.role {
			case rolePeriodValue:
				year, month = c.year, c.month
				name = c.variable
				if name == "" {
					name = variable
				}
			case roleVariableValue:
				year, month = table.DefaultYear, table.DefaultMonth
				name = c.variable
			default:
				continue
			}
			if name == "" {
				stats.SkippedCells++
				continue
			}

			value, ok := parseValue(row[i])
			if !ok {
				stats.SkippedCells++
				continue
			}
			if value < 0 {
				stats.DroppedNegative++
				continue
			}

			records = append(records, datamart.ObservationRecord{
				Year:        year,
				Month:       month,
				PeriodKey:   datamart.PeriodKey(year, month),
				ServiceCode: table.ServiceCode,
				EntityRaw:   entity,
				Variable:    name,
				Value:       value,
				SourceFile:  table.SourceFile,
			})
		}
	}

	stats.Records = len(records)
	n.log.Debug("table normalized",
		"source", table.SourceFile,
		"service", table.ServiceCode,
		"records", stats.Records,
		"skipped_columns", stats.SkippedColumns,
		"skipped_cells", stats.SkippedCells)
	return records, stats
}

// classifyColumns decides, per raw header, whether the column is an id column
// (entity or variable label), a period-keyed value column, or a plain
// variable value column bound to the table's default period. Unparseable
// period headers invalidate only their own column.
func (n *Normalizer) classifyColumns(table RawTable, stats *Stats) []column {
	cols := make([]column, len(table.Header))
	for i, h := range table.Header {
		header := strings.TrimSpace(h)
		upper := strings.ToUpper(header)

		if header == "" {
			cols[i] = column{role: roleIgnored}
			continue
		}

		// Period headers first: a compound header like "2015-01 Indicador de
		// Desempenho no Atendimento (IDA)" is a value column even though its
		// variable part resembles an id-column marker.
		if m := periodHeader.FindStringSubmatch(header); m != nil {
			year, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			if month < 1 || month > 12 {
				n.log.Warn("unparseable period header, column skipped",
					"source", table.SourceFile, "header", header)
				stats.SkippedColumns++
				cols[i] = column{role: roleIgnored}
				continue
			}
			cols[i] = column{role: rolePeriodValue, year: year, month: month,
				variable: strings.TrimSpace(m[3])}
			continue
		}

		switch {
		case strings.Contains(upper, "GRUPO") || strings.Contains(upper, "ECONÔMICO") ||
			strings.Contains(upper, "ECONOMICO") || strings.Contains(upper, "PRESTADORA"):
			cols[i] = column{role: roleEntity}

		case strings.Contains(upper, "VARIÁVEL") || strings.Contains(upper, "VARIAVEL") ||
			strings.Contains(upper, "INDICADOR DE"):
			cols[i] = column{role: roleVariable}

		default:
			// Pure variable header; needs the sheet-level default period.
			if table.DefaultYear == 0 || table.DefaultMonth == 0 {
				stats.SkippedColumns++
				cols[i] = column{role: roleIgnored}
				continue
			}
			cols[i] = column{role: roleVariableValue, variable: header}
		}
	}
	return cols
}

// groupedThousands matches dot-grouped integers ("1.200", "12.345.678") where
// the dots are thousands separators, not a decimal mark.
var groupedThousands = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)

// parseValue parses a spreadsheet cell into a float64, accepting both "." and
// "," decimal separators and tolerating thousands separators. Blank and
// non-numeric cells report ok=false; zero parses as a real value.
func parseValue(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" || s == "-" {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// The rightmost separator is the decimal mark.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ",") == 1:
		s = strings.Replace(s, ",", ".", 1)
	case groupedThousands.MatchString(s):
		// Dot-only grouped value ("1.200" is twelve hundred, not 1.2).
		s = strings.ReplaceAll(s, ".", "")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
