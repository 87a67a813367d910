// Package table holds the named numeric columns loaded from a data file.
//
// Columns are stored by position. A column's name is a label that can be
// changed without touching its values, so anything keyed by column position
// stays valid across renames.
package table

import (
	"fmt"
	"strings"
)

// Table is an ordered set of equal-length float64 columns with unique names.
// A Table is not safe for concurrent use; dataset.Dataset guards its table.
type Table struct {
	columns []string
	index   map[string]int
	data    [][]float64
	rows    int
}

// New builds a table from column names and column-major data.
// data[i] holds the values of columns[i]. The slices are copied.
func New(columns []string, data [][]float64) (*Table, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	if len(data) != len(columns) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrShapeMismatch, len(columns), len(data))
	}

	t := &Table{
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
		data:    make([][]float64, len(columns)),
		rows:    len(data[0]),
	}
	for i, raw := range columns {
		name, err := normalizeName(raw)
		if err != nil {
			return nil, err
		}
		if _, exists := t.index[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		if len(data[i]) != t.rows {
			return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrShapeMismatch, name, len(data[i]), t.rows)
		}
		t.columns[i] = name
		t.index[name] = i
		t.data[i] = append([]float64(nil), data[i]...)
	}
	return t, nil
}

// FromMap builds a table from an ordered list of names and a name-to-values map.
func FromMap(columns []string, values map[string][]float64) (*Table, error) {
	data := make([][]float64, len(columns))
	for i, name := range columns {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		data[i] = v
	}
	return New(columns, data)
}

// FromRecords parses row-major string records under a header row.
// The first unparsable cell is returned as a *CellError.
func FromRecords(header []string, records [][]string) (*Table, error) {
	data := make([][]float64, len(header))
	for c := range data {
		data[c] = make([]float64, len(records))
	}

	for r, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrShapeMismatch, r, len(rec), len(header))
		}
		for c, raw := range rec {
			v, err := ParseNumber(raw)
			if err != nil {
				return nil, &CellError{Row: r, Column: strings.TrimSpace(header[c]), Value: raw, Err: err}
			}
			data[c][r] = v
		}
	}
	return New(header, data)
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int { return t.rows }

// ColumnCount returns the number of columns.
func (t *Table) ColumnCount() int { return len(t.columns) }

// ColumnNames returns a copy of the column names in order.
func (t *Table) ColumnNames() []string {
	return append([]string(nil), t.columns...)
}

// ColumnName returns the name of the column at position i.
func (t *Table) ColumnName(i int) string { return t.columns[i] }

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, error) {
	i, ok := t.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return i, nil
}

// ColumnValues returns a copy of the named column.
func (t *Table) ColumnValues(name string) ([]float64, error) {
	i, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	return t.ColumnAt(i), nil
}

// ColumnAt returns a copy of the column at position i.
func (t *Table) ColumnAt(i int) []float64 {
	return append([]float64(nil), t.data[i]...)
}

// ValueAt returns the value at (row, column position) without bounds checks
// beyond the ones the runtime applies.
func (t *Table) ValueAt(row, col int) float64 { return t.data[col][row] }

// Row returns the values of row i in column order.
func (t *Table) Row(i int) ([]float64, error) {
	if err := t.checkRow(i); err != nil {
		return nil, err
	}
	out := make([]float64, len(t.data))
	for c := range t.data {
		out[c] = t.data[c][i]
	}
	return out, nil
}

// Cell returns the value at row, column.
func (t *Table) Cell(row int, column string) (float64, error) {
	c, err := t.ColumnIndex(column)
	if err != nil {
		return 0, err
	}
	if err := t.checkRow(row); err != nil {
		return 0, err
	}
	return t.data[c][row], nil
}

// SetCell parses raw and stores it at row, column, returning the previous value.
// Nothing is modified when any check fails.
func (t *Table) SetCell(row int, column, raw string) (float64, error) {
	c, err := t.ColumnIndex(column)
	if err != nil {
		return 0, err
	}
	if err := t.checkRow(row); err != nil {
		return 0, err
	}
	v, err := ParseNumber(raw)
	if err != nil {
		return 0, err
	}

	old := t.data[c][row]
	t.data[c][row] = v
	return old, nil
}

// RenameColumn changes a column's name, keeping its position and values.
// Renaming a column to its own name is a no-op.
func (t *Table) RenameColumn(oldName, newName string) error {
	c, err := t.ColumnIndex(oldName)
	if err != nil {
		return err
	}
	name, err := normalizeName(newName)
	if err != nil {
		return err
	}
	if name == oldName {
		return nil
	}
	if _, exists := t.index[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
	}

	delete(t.index, oldName)
	t.index[name] = c
	t.columns[c] = name
	return nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		columns: append([]string(nil), t.columns...),
		index:   make(map[string]int, len(t.index)),
		data:    make([][]float64, len(t.data)),
		rows:    t.rows,
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	for i := range t.data {
		c.data[i] = append([]float64(nil), t.data[i]...)
	}
	return c
}

func (t *Table) checkRow(i int) error {
	if i < 0 || i >= t.rows {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, i, t.rows)
	}
	return nil
}

func normalizeName(s string) (string, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidColumnName)
	}
	return name, nil
}
