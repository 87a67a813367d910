// Package dataset wraps a table with the state needed to fit it: which
// column plays each role, which rows are included, and lazily computed
// masked arrays, domain and statistics.
//
// Derived values are cached together with the inputs they were computed
// from. A mutation invalidates only the values that read what it changed:
// a mask change drops masked arrays and selected statistics, a cell edit
// drops values derived from that column, a role change drops that role's
// array, and a header rename drops nothing.
//
// A Dataset is safe for concurrent use. Listeners registered with
// Subscribe see every mutation synchronously.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/JonMunkholm/curvefit/internal/table"
)

const unbound = -1

// Dataset is a table plus role bindings, an inclusion mask and a cache.
type Dataset struct {
	mu       sync.Mutex
	table    *table.Table
	roles    [numRoles]int // column position per role, or unbound
	mask     []bool
	selected int
	cache    *depCache

	listeners    []listener
	nextListener int
}

// Option configures a Dataset at construction.
type Option func(*Dataset) error

// WithRoles binds roles to the named columns. Empty names stay unbound.
func WithRoles(b Bindings) Option {
	return func(d *Dataset) error {
		for _, r := range AllRoles {
			name := b.Get(r)
			if name == "" {
				continue
			}
			col, err := d.table.ColumnIndex(name)
			if err != nil {
				return fmt.Errorf("role %s: %w", r, err)
			}
			d.roles[r] = col
		}
		return nil
	}
}

// WithDefaultRoles binds roles from the column order.
func WithDefaultRoles() Option {
	return func(d *Dataset) error {
		return WithRoles(defaultBindings(d.table.ColumnNames()))(d)
	}
}

// New creates a dataset over t with every row selected. The dataset takes
// ownership of t; callers must not modify it afterwards.
func New(t *table.Table, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		table:    t,
		mask:     make([]bool, t.RowCount()),
		selected: t.RowCount(),
		cache:    newDepCache(),
	}
	for r := range d.roles {
		d.roles[r] = unbound
	}
	for i := range d.mask {
		d.mask[i] = true
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Table passthrough
// ---------------------------------------------------------------------------

// RowCount returns the number of records.
func (d *Dataset) RowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.RowCount()
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.ColumnNames()
}

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.HasColumn(name)
}

// Cell returns the value at row, column.
func (d *Dataset) Cell(row int, column string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.Cell(row, column)
}

// ColumnValues returns a copy of a full, unmasked column.
func (d *Dataset) ColumnValues(column string) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.ColumnValues(column)
}

// Table returns a deep copy of the underlying table.
func (d *Dataset) Table() *table.Table {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.Clone()
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// Roles returns the current bindings by column name.
func (d *Dataset) Roles() Bindings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bindingsLocked()
}

func (d *Dataset) bindingsLocked() Bindings {
	var b Bindings
	for _, r := range AllRoles {
		if col := d.roles[r]; col != unbound {
			b.set(r, d.table.ColumnName(col))
		}
	}
	return b
}

// SetRole binds role to column. An empty column unbinds xerr or yerr; x and
// y cannot be unbound. Rebinding to the same column does nothing.
func (d *Dataset) SetRole(role Role, column string) error {
	if !role.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownRole, int(role))
	}
	if column == "" && !role.Optional() {
		return fmt.Errorf("%w: %s", ErrRoleRequired, role)
	}

	return d.apply(func() (*Event, error) {
		col := unbound
		if column != "" {
			var err error
			if col, err = d.table.ColumnIndex(column); err != nil {
				return nil, err
			}
		}
		if d.roles[role] == col {
			return nil, nil
		}
		d.roles[role] = col
		d.cache.invalidate(roleDep(role))
		return &Event{Kind: EventRolesChanged, Role: role, Column: column, Row: -1}, nil
	})
}

// UsableForFitting reports whether x and y are bound and at least one row is selected.
func (d *Dataset) UsableForFitting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roles[RoleX] != unbound && d.roles[RoleY] != unbound && d.selected > 0
}

// ---------------------------------------------------------------------------
// Mask
// ---------------------------------------------------------------------------

// Select includes row i.
func (d *Dataset) Select(i int) error { return d.setSelected(i, true) }

// Unselect excludes row i.
func (d *Dataset) Unselect(i int) error { return d.setSelected(i, false) }

func (d *Dataset) setSelected(i int, on bool) error {
	return d.apply(func() (*Event, error) {
		if i < 0 || i >= len(d.mask) {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", table.ErrRowOutOfRange, i, len(d.mask))
		}
		if d.mask[i] == on {
			return nil, nil
		}
		d.mask[i] = on
		if on {
			d.selected++
		} else {
			d.selected--
		}
		d.cache.invalidate(maskDep())
		return &Event{Kind: EventMaskChanged, Row: i, Selected: on}, nil
	})
}

// SelectAll includes every row.
func (d *Dataset) SelectAll() { d.fillMask(true) }

// UnselectAll excludes every row.
func (d *Dataset) UnselectAll() { d.fillMask(false) }

func (d *Dataset) fillMask(on bool) {
	_ = d.apply(func() (*Event, error) {
		want := 0
		if on {
			want = len(d.mask)
		}
		if d.selected == want {
			return nil, nil
		}
		for i := range d.mask {
			d.mask[i] = on
		}
		d.selected = want
		d.cache.invalidate(maskDep())
		return &Event{Kind: EventMaskChanged, Row: -1, Selected: on}, nil
	})
}

// SetMask replaces the whole mask. It must have one entry per row.
func (d *Dataset) SetMask(mask []bool) error {
	return d.apply(func() (*Event, error) {
		if len(mask) != len(d.mask) {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrMaskLength, len(mask), len(d.mask))
		}
		changed := false
		selected := 0
		for i, on := range mask {
			if d.mask[i] != on {
				changed = true
			}
			if on {
				selected++
			}
		}
		if !changed {
			return nil, nil
		}
		copy(d.mask, mask)
		d.selected = selected
		d.cache.invalidate(maskDep())
		return &Event{Kind: EventMaskChanged, Row: -1}, nil
	})
}

// IsSelected reports whether row i is included.
func (d *Dataset) IsSelected(i int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.mask) {
		return false, fmt.Errorf("%w: %d not in [0, %d)", table.ErrRowOutOfRange, i, len(d.mask))
	}
	return d.mask[i], nil
}

// Mask returns a copy of the inclusion mask.
func (d *Dataset) Mask() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.mask...)
}

// SelectedCount returns the number of included rows.
func (d *Dataset) SelectedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// SelectedRows returns the indices of included rows in ascending order.
func (d *Dataset) SelectedRows() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows := make([]int, 0, d.selected)
	for i, on := range d.mask {
		if on {
			rows = append(rows, i)
		}
	}
	return rows
}

// ---------------------------------------------------------------------------
// Masked arrays and derived values
// ---------------------------------------------------------------------------

// X returns the selected values of the x column.
func (d *Dataset) X() ([]float64, error) { return d.roleCopy(RoleX) }

// Y returns the selected values of the y column.
func (d *Dataset) Y() ([]float64, error) { return d.roleCopy(RoleY) }

// XErr returns the selected x errors, or zeros when xerr is unbound.
func (d *Dataset) XErr() ([]float64, error) { return d.roleCopy(RoleXErr) }

// YErr returns the selected y errors, or zeros when yerr is unbound.
func (d *Dataset) YErr() ([]float64, error) { return d.roleCopy(RoleYErr) }

func (d *Dataset) roleCopy(r Role) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.roleValues(r)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), v...), nil
}

// roleValues returns the cached masked array for r. Callers must hold d.mu
// and must not modify the result.
func (d *Dataset) roleValues(r Role) ([]float64, error) {
	return cached(d.cache, "role:"+r.String(), func() ([]float64, []dep, error) {
		deps := []dep{maskDep(), roleDep(r)}
		col := d.roles[r]
		if col == unbound {
			if !r.Optional() {
				return nil, nil, fmt.Errorf("%w: %s", ErrRoleUnbound, r)
			}
			return make([]float64, d.selected), deps, nil
		}
		out := make([]float64, 0, d.selected)
		for i, on := range d.mask {
			if on {
				out = append(out, d.table.ValueAt(i, col))
			}
		}
		return out, append(deps, columnDep(col)), nil
	})
}

// XDomain returns the range of the selected x values.
func (d *Dataset) XDomain() (Interval, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cached(d.cache, "domain", func() (Interval, []dep, error) {
		if d.roles[RoleX] == unbound {
			return Interval{}, nil, fmt.Errorf("%w: %s", ErrRoleUnbound, RoleX)
		}
		if d.selected == 0 {
			return Interval{}, nil, ErrEmptySelection
		}
		x, err := d.roleValues(RoleX)
		if err != nil {
			return Interval{}, nil, err
		}
		iv := Interval{Min: x[0], Max: x[0]}
		for _, v := range x[1:] {
			iv.Min = min(iv.Min, v)
			iv.Max = max(iv.Max, v)
		}
		return iv, []dep{maskDep(), roleDep(RoleX), columnDep(d.roles[RoleX])}, nil
	})
}

// Statistics summarises every value of a column, ignoring the mask.
func (d *Dataset) Statistics(column string) (Statistics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	col, err := d.table.ColumnIndex(column)
	if err != nil {
		return Statistics{}, err
	}
	return cached(d.cache, "stats:"+strconv.Itoa(col), func() (Statistics, []dep, error) {
		s, err := computeStatistics(d.table.ColumnAt(col))
		return s, []dep{columnDep(col)}, err
	})
}

// SelectedStatistics summarises the selected values of a column.
func (d *Dataset) SelectedStatistics(column string) (Statistics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	col, err := d.table.ColumnIndex(column)
	if err != nil {
		return Statistics{}, err
	}
	return cached(d.cache, "selstats:"+strconv.Itoa(col), func() (Statistics, []dep, error) {
		values := make([]float64, 0, d.selected)
		for i, on := range d.mask {
			if on {
				values = append(values, d.table.ValueAt(i, col))
			}
		}
		s, err := computeStatistics(values)
		return s, []dep{columnDep(col), maskDep()}, err
	})
}

// FittingData returns the four masked arrays as one consistent snapshot.
func (d *Dataset) FittingData() (Data, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selected == 0 {
		return Data{}, ErrEmptySelection
	}

	var out Data
	for _, r := range AllRoles {
		v, err := d.roleValues(r)
		if err != nil {
			return Data{}, err
		}
		v = append([]float64(nil), v...)
		switch r {
		case RoleX:
			out.X = v
		case RoleXErr:
			out.XErr = v
		case RoleY:
			out.Y = v
		case RoleYErr:
			out.YErr = v
		}
	}
	return out, nil
}

// Export returns the column names and the rows to write out, either every
// row or only the selected ones.
func (d *Dataset) Export(selectedOnly bool) ([]string, [][]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows := make([][]float64, 0, len(d.mask))
	for i, on := range d.mask {
		if selectedOnly && !on {
			continue
		}
		row, _ := d.table.Row(i)
		rows = append(rows, row)
	}
	return d.table.ColumnNames(), rows
}

// ---------------------------------------------------------------------------
// Edits
// ---------------------------------------------------------------------------

// SetCell parses raw into row, column and drops values derived from that column.
// On error nothing changes. Writing the bit-identical value is a no-op, so -0
// over 0 counts as a change.
func (d *Dataset) SetCell(row int, column, raw string) error {
	return d.apply(func() (*Event, error) {
		col, err := d.table.ColumnIndex(column)
		if err != nil {
			return nil, err
		}
		old, err := d.table.SetCell(row, column, raw)
		if err != nil {
			return nil, err
		}
		v := d.table.ValueAt(row, col)
		if math.Float64bits(v) == math.Float64bits(old) {
			return nil, nil
		}
		d.cache.invalidate(columnDep(col))
		return &Event{Kind: EventCellChanged, Row: row, Column: column, OldValue: old, NewValue: v}, nil
	})
}

// SetHeader renames a column. Roles bound to it follow the new name and no
// cached value is dropped.
func (d *Dataset) SetHeader(oldName, newName string) error {
	return d.apply(func() (*Event, error) {
		col, err := d.table.ColumnIndex(oldName)
		if err != nil {
			return nil, err
		}
		if err := d.table.RenameColumn(oldName, newName); err != nil {
			return nil, err
		}
		name := d.table.ColumnName(col)
		if name == oldName {
			return nil, nil
		}
		return &Event{Kind: EventHeaderChanged, Row: -1, Column: name, OldColumn: oldName}, nil
	})
}
