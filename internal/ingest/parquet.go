package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/JonMunkholm/curvefit/internal/table"
)

// ReadParquet loads the numeric columns of a parquet file. Columns of any
// other type are skipped; a null value is a cell error.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker) (*table.Table, error) {
	pf, err := file.NewParquetReader(r, file.WithReadProps(&parquet.ReaderProperties{}))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("create arrow reader: %w", err)
	}

	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("read parquet table: %w", err)
	}
	defer tbl.Release()

	var names []string
	var data [][]float64
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		if !isNumeric(col.DataType()) {
			slog.Debug("skipping non-numeric parquet column",
				"column", col.Name(),
				"type", col.DataType().String(),
			)
			continue
		}

		values := make([]float64, 0, tbl.NumRows())
		for _, chunk := range col.Data().Chunks() {
			for j := 0; j < chunk.Len(); j++ {
				if chunk.IsNull(j) {
					return nil, &table.CellError{
						Row:    len(values),
						Column: col.Name(),
						Err:    fmt.Errorf("%w: null value", table.ErrInvalidCellSyntax),
					}
				}
				values = append(values, numericValue(chunk, j))
			}
		}
		names = append(names, col.Name())
		data = append(data, values)
	}

	if len(names) == 0 {
		return nil, ErrNoNumericColumns
	}
	if tbl.NumRows() == 0 {
		return nil, ErrNoDataRows
	}
	return table.New(names, data)
}

func isNumeric(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.FLOAT64, arrow.FLOAT32,
		arrow.INT64, arrow.INT32, arrow.INT16, arrow.INT8,
		arrow.UINT64, arrow.UINT32, arrow.UINT16, arrow.UINT8:
		return true
	}
	return false
}

func numericValue(arr arrow.Array, i int) float64 {
	switch a := arr.(type) {
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Int64:
		return float64(a.Value(i))
	case *array.Int32:
		return float64(a.Value(i))
	case *array.Int16:
		return float64(a.Value(i))
	case *array.Int8:
		return float64(a.Value(i))
	case *array.Uint64:
		return float64(a.Value(i))
	case *array.Uint32:
		return float64(a.Value(i))
	case *array.Uint16:
		return float64(a.Value(i))
	case *array.Uint8:
		return float64(a.Value(i))
	}
	return 0
}
