package table

import (
	"errors"
	"fmt"
)

// Sentinel errors for table operations. Callers compare with errors.Is;
// the returned errors wrap these with the offending value.
var (
	ErrInvalidCellSyntax = errors.New("invalid cell syntax")
	ErrDuplicateColumn   = errors.New("column already exists")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrRowOutOfRange     = errors.New("row index out of range")
	ErrInvalidColumnName = errors.New("invalid column name")
	ErrNoColumns         = errors.New("table has no columns")
	ErrShapeMismatch     = errors.New("columns have different lengths")
)

// CellError reports a cell that could not be parsed while building a table
// from string records. Row is 0-based over the data rows (header excluded).
type CellError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d, column %q: %v", e.Row, e.Column, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}
