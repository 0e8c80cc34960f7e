// Package exporter serializes derived relations at the output boundary. The
// variance pivot's column set is discovered at build time, so writers take
// the column list alongside the rows instead of assuming a fixed schema.
package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"idamart/internal/datamart"
)

// CSVWriter writes export files under a base directory.
type CSVWriter struct {
	log *slog.Logger
	dir string
}

// NewCSVWriter creates a CSV writer rooted at dir.
func NewCSVWriter(logger *slog.Logger, dir string) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{log: logger, dir: dir}
}

// WriteOptions configures CSV writing behavior.
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes data to a CSV file with the given options.
func (w *CSVWriter) WriteCSV(fileName string, options WriteOptions) error {
	fullPath := filepath.Join(w.dir, fileName)

	w.log.Info("writing CSV file",
		slog.String("path", fullPath),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// UTF-8 BOM helps Excel recognize the encoding.
	if options.BOMPrefix {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return writer.Error()
}

// WriteVariancePivot serializes the variance pivot into one CSV: a period
// column, the market variance, and one column per entity in the given order.
func (w *CSVWriter) WriteVariancePivot(fileName string, rows []datamart.VarianceRow, columns []string) error {
	headers := make([]string, 0, len(columns)+2)
	headers = append(headers, "Período", "Variação Mercado (%)")
	headers = append(headers, columns...)

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		record := make([]string, 0, len(headers))
		record = append(record, row.PeriodKey, formatCell(row.MarketVariance))
		for _, entity := range columns {
			record = append(record, formatCell(row.Entities[entity]))
		}
		records = append(records, record)
	}

	return w.WriteCSV(fileName, WriteOptions{
		Headers:   headers,
		Records:   records,
		BOMPrefix: true,
	})
}

// formatCell renders a one-decimal cell, keeping "0.0" for missing entries so
// downstream spreadsheets never see blanks.
func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
