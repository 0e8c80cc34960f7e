// Package ingest decodes spreadsheet extracts into raw wide tables for the
// normalizer. It owns everything workbook-specific (sheet discovery, banner
// rows, header detection) so the normalizer stays a pure reshape.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"idamart/internal/normalize"
)

// monthAbbrev maps the Portuguese month abbreviations used in the sheet
// banners ("PERÍODO: OUT/2015") to month numbers.
var monthAbbrev = map[string]int{
	"JAN": 1, "FEV": 2, "MAR": 3, "ABR": 4,
	"MAI": 5, "JUN": 6, "JUL": 7, "AGO": 8,
	"SET": 9, "OUT": 10, "NOV": 11, "DEZ": 12,
}

var (
	bannerPeriod = regexp.MustCompile(`([A-ZÇ]{3})/(\d{4})`)
	digits       = regexp.MustCompile(`\d+`)
	nonLetters   = regexp.MustCompile(`[^A-Z]+`)
)

// Reader turns workbook files into RawTable values.
type Reader struct {
	log *slog.Logger
}

// NewReader returns a workbook reader logging through the given logger.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{log: logger}
}

// DiscoverFiles lists the workbook files under dir in deterministic order.
func DiscoverFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".xlsx") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ServiceCodeFromFile derives the service code from a file name, the way the
// upstream portal names its extracts ("SMP2015.xlsx" -> "SMP"). Unknown codes
// pass through unchanged.
func ServiceCodeFromFile(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	code := strings.ToUpper(digits.ReplaceAllString(stem, ""))
	code = nonLetters.ReplaceAllString(code, "")
	return code
}

// ReadFile decodes one workbook into a RawTable. The first sheet containing a
// recognizable data header is used; banner rows above the header supply the
// table's default period when present.
func (r *Reader) ReadFile(path string) (normalize.RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return normalize.RawTable{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	table := normalize.RawTable{
		ServiceCode: ServiceCodeFromFile(path),
		SourceFile:  filepath.Base(path),
	}

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if r.fillTable(&table, rows) {
			r.log.Debug("workbook decoded",
				"file", table.SourceFile,
				"sheet", sheet,
				"rows", len(table.Rows),
				"columns", len(table.Header))
			return table, nil
		}
	}

	// No sheet with a data header: an empty table, not an error. The caller
	// counts it and decides whether a run-wide zero is fatal.
	r.log.Warn("no data header found in workbook", "file", table.SourceFile)
	return table, nil
}

// fillTable locates the header and data rows inside one sheet. Reports false
// when the sheet holds no recognizable table.
func (r *Reader) fillTable(table *normalize.RawTable, rows [][]string) bool {
	headerIdx := -1
	for i, row := range rows {
		joined := strings.ToUpper(strings.Join(row, " "))

		if table.DefaultYear == 0 &&
			(strings.Contains(joined, "PERÍODO") || strings.Contains(joined, "PERIODO")) {
			if m := bannerPeriod.FindStringSubmatch(joined); m != nil {
				if month, ok := monthAbbrev[m[1]]; ok {
					year, _ := strconv.Atoi(m[2])
					table.DefaultYear = year
					table.DefaultMonth = month
				}
			}
		}

		if strings.Contains(joined, "GRUPO ECONÔMICO") || strings.Contains(joined, "GRUPO ECONOMICO") ||
			strings.Contains(joined, "VARIÁVEL") || strings.Contains(joined, "VARIAVEL") {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return false
	}

	table.Header = rows[headerIdx]
	for _, row := range rows[headerIdx+1:] {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if !empty {
			table.Rows = append(table.Rows, row)
		}
	}
	return len(table.Rows) > 0
}
