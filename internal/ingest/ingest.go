// Package ingest turns data files into tables.
//
// Supported inputs:
//   - CSV, with the separator detected from the header line (comma, semicolon,
//     tab or pipe); a UTF-8 BOM is skipped and invalid UTF-8 is replaced
//   - Excel workbooks (.xlsx), one sheet at a time
//   - Parquet files; only numeric columns are loaded
//
// Every cell must hold a number. The first row of CSV and Excel input is the
// header.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/curvefit/internal/table"
)

var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrNoDataRows        = errors.New("file has a header but no data rows")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrRaggedRow         = errors.New("row has the wrong number of cells")
	ErrNoNumericColumns  = errors.New("file has no numeric columns")
	ErrSheetNotFound     = errors.New("sheet not found")
)

// Format is a supported input file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatExcel
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatExcel:
		return "excel"
	case FormatParquet:
		return "parquet"
	}
	return "unknown"
}

// DetectFormat determines the format from the file extension.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatExcel
	case ".parquet":
		return FormatParquet
	}
	return FormatUnknown
}

// Load parses data according to the format of name. sheet selects an Excel
// sheet; an empty sheet picks the first one that holds a valid table.
func Load(ctx context.Context, name string, data []byte, sheet string) (*table.Table, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch format := DetectFormat(name); format {
	case FormatCSV:
		return ReadCSV(bytes.NewReader(data))
	case FormatExcel:
		return ReadExcel(bytes.NewReader(data), sheet)
	case FormatParquet:
		return ReadParquet(ctx, bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}
