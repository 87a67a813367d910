package ingest

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/JonMunkholm/curvefit/internal/table"
)

// WriteCSV writes a header row followed by rows of numbers.
func WriteCSV(w io.Writer, columns []string, rows [][]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	rec := make([]string, len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("%w: row %d has %d values, header has %d", ErrRaggedRow, i, len(row), len(columns))
		}
		for c, v := range row {
			rec[c] = table.FormatNumber(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
