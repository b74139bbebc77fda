// Package dataset reads binarized datasets and network-description files.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"fairnb/domain/core"
	domain "fairnb/domain/dataset"
	"fairnb/ports"
)

// TableReader reads CSV and XLSX tables of 0/1 values.
type TableReader struct {
	logger *logrus.Logger
}

var _ ports.DatasetReader = (*TableReader)(nil)

// NewTableReader creates a reader. A nil logger discards output.
func NewTableReader(logger *logrus.Logger) *TableReader {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &TableReader{logger: logger}
}

// ReadTable dispatches on the file extension: .xlsx reads the first sheet,
// anything else is read as CSV.
func (r *TableReader) ReadTable(path string) (*domain.Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset file not found: %w", err)
	}

	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	kind := "csv"
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		kind = "xlsx"
		rows, err = readExcelRows(path)
	} else {
		rows, err = readCSVRows(path)
	}
	if err != nil {
		return nil, err
	}

	table, err := processRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.logger.WithFields(logrus.Fields{
		"path":    path,
		"kind":    kind,
		"columns": len(table.Header),
		"rows":    table.Len(),
		"elapsed": time.Since(start),
	}).Debug("[DataReader] table loaded")
	return table, nil
}

func readExcelRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", core.ErrMalformedInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV file: %v", core.ErrMalformedInput, err)
	}
	return rows, nil
}

// NormalizeColumn strips surrounding whitespace and one trailing underscore,
// which the binarization scripts append to some column names.
func NormalizeColumn(name string) string {
	name = strings.TrimSpace(name)
	return strings.TrimSuffix(name, "_")
}

// processRows converts raw string rows into a table. Cells must parse as
// integers; range checking is left to statistics extraction. A leading
// unnamed index column (as written by dataframe exports) is dropped.
func processRows(rows [][]string) (*domain.Table, error) {
	if len(rows) < 1 {
		return nil, fmt.Errorf("%w: file has no header row", core.ErrMalformedInput)
	}

	headerRow := rows[0]
	skip := 0
	if len(headerRow) > 0 && strings.TrimSpace(headerRow[0]) == "" {
		skip = 1
	}
	header := make([]string, 0, len(headerRow)-skip)
	for _, h := range headerRow[skip:] {
		header = append(header, NormalizeColumn(h))
	}

	data := make([][]int, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		raw := rows[i]
		if isBlank(raw) {
			continue
		}
		if len(raw)-skip != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d",
				core.ErrMalformedInput, i, len(raw)-skip, len(header))
		}
		row := make([]int, len(header))
		for j, cell := range raw[skip:] {
			cell = strings.TrimSpace(cell)
			v, err := strconv.Atoi(cell)
			if err != nil {
				f, ferr := strconv.ParseFloat(cell, 64)
				if ferr != nil || f != float64(int(f)) {
					return nil, core.NewNonBinaryValueError(header[j], i, cell)
				}
				v = int(f)
			}
			row[j] = v
		}
		data = append(data, row)
	}

	table, err := domain.NewTable(header, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedInput, err)
	}
	return table, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
