package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/curvefit/internal/table"
)

// Sheets lists the sheet names of an Excel workbook in order.
func Sheets(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// ReadExcel loads one sheet of a workbook. With an empty sheet name the first
// sheet that parses into a table is used.
func ReadExcel(r io.Reader, sheet string) (*table.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet != "" {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
		}
		return readSheet(f, sheet)
	}

	var firstErr error
	for _, name := range f.GetSheetList() {
		t, err := readSheet(f, name)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("sheet %q: %w", name, err)
		}
	}
	if firstErr == nil {
		firstErr = ErrEmptyFile
	}
	return nil, firstErr
}

func readSheet(f *excelize.File, sheet string) (*table.Table, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}

	var header []string
	var records [][]string
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		if len(row) > len(header) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d", ErrRaggedRow, len(records)+1, len(row), len(header))
		}
		// Trailing empty cells are trimmed by excelize; pad back to header width
		// so missing values are reported as cell errors.
		for len(row) < len(header) {
			row = append(row, "")
		}
		records = append(records, row)
	}

	if header == nil {
		return nil, ErrEmptyFile
	}
	if len(records) == 0 {
		return nil, ErrNoDataRows
	}
	return table.FromRecords(header, records)
}
