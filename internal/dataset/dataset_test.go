package dataset

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/JonMunkholm/curvefit/internal/table"
)

func newTable(t *testing.T, columns []string, data ...[]float64) *table.Table {
	t.Helper()
	tbl, err := table.New(columns, data)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	return tbl
}

// xyDataset is x=[1,2,3], y=[2,4,6] with x and y bound.
func xyDataset(t *testing.T) *Dataset {
	t.Helper()
	d, err := New(newTable(t, []string{"x", "y"}, []float64{1, 2, 3}, []float64{2, 4, 6}),
		WithRoles(Bindings{X: "x", Y: "y"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func mustValues(t *testing.T, f func() ([]float64, error)) []float64 {
	t.Helper()
	v, err := f()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return v
}

func TestMaskedArrays(t *testing.T) {
	d := xyDataset(t)

	if diff := cmp.Diff([]float64{1, 2, 3}, mustValues(t, d.X)); diff != "" {
		t.Errorf("X() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{2, 4, 6}, mustValues(t, d.Y)); diff != "" {
		t.Errorf("Y() mismatch (-want +got):\n%s", diff)
	}
	dom, err := d.XDomain()
	if err != nil {
		t.Fatal(err)
	}
	if dom != (Interval{Min: 1, Max: 3}) {
		t.Errorf("XDomain() = %v, want {1 3}", dom)
	}

	if err := d.Unselect(1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 3}, mustValues(t, d.X)); diff != "" {
		t.Errorf("X() after Unselect(1) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{2, 6}, mustValues(t, d.Y)); diff != "" {
		t.Errorf("Y() after Unselect(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestUnboundErrorsAreZero(t *testing.T) {
	d := xyDataset(t)
	if err := d.Unselect(0); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0, 0}, mustValues(t, d.XErr)); diff != "" {
		t.Errorf("XErr() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0}, mustValues(t, d.YErr)); diff != "" {
		t.Errorf("YErr() mismatch (-want +got):\n%s", diff)
	}
}

func TestLengthsFollowMask(t *testing.T) {
	tbl := newTable(t, []string{"a", "b", "c"},
		[]float64{1, 2, 3, 4, 5}, []float64{5, 4, 3, 2, 1}, []float64{.1, .1, .2, .2, .3})
	masks := [][]bool{
		{true, true, true, true, true},
		{false, false, false, false, false},
		{true, false, true, false, true},
		{false, false, false, false, true},
	}

	for _, mask := range masks {
		d, err := New(tbl.Clone(), WithDefaultRoles())
		if err != nil {
			t.Fatal(err)
		}
		if err := d.SetMask(mask); err != nil {
			t.Fatal(err)
		}
		want := 0
		for _, on := range mask {
			if on {
				want++
			}
		}
		x := mustValues(t, d.X)
		y := mustValues(t, d.Y)
		yerr := mustValues(t, d.YErr)
		if len(x) != want || len(y) != want || len(yerr) != want {
			t.Errorf("mask %v: len(x)=%d len(y)=%d len(yerr)=%d, want %d", mask, len(x), len(y), len(yerr), want)
		}
		if got := d.SelectedCount(); got != want {
			t.Errorf("mask %v: SelectedCount() = %d, want %d", mask, got, want)
		}
	}
}

func TestSelectIdempotent(t *testing.T) {
	d := xyDataset(t)

	var events int
	d.Subscribe(func(Event) { events++ })

	for range 2 {
		if err := d.Unselect(2); err != nil {
			t.Fatal(err)
		}
	}
	if events != 1 {
		t.Errorf("events after double Unselect = %d, want 1", events)
	}
	if diff := cmp.Diff([]bool{true, true, false}, d.Mask()); diff != "" {
		t.Errorf("Mask() mismatch (-want +got):\n%s", diff)
	}

	for range 2 {
		if err := d.Select(2); err != nil {
			t.Fatal(err)
		}
	}
	if events != 2 {
		t.Errorf("events after double Select = %d, want 2", events)
	}
	if got := d.SelectedCount(); got != 3 {
		t.Errorf("SelectedCount() = %d, want 3", got)
	}
}

func TestSelectOutOfRange(t *testing.T) {
	d := xyDataset(t)
	for _, i := range []int{-1, 3} {
		if err := d.Select(i); !errors.Is(err, table.ErrRowOutOfRange) {
			t.Errorf("Select(%d) error = %v, want ErrRowOutOfRange", i, err)
		}
		if _, err := d.IsSelected(i); !errors.Is(err, table.ErrRowOutOfRange) {
			t.Errorf("IsSelected(%d) error = %v, want ErrRowOutOfRange", i, err)
		}
	}
}

func TestSelectAllUnselectAll(t *testing.T) {
	d := xyDataset(t)

	d.UnselectAll()
	if got := d.SelectedCount(); got != 0 {
		t.Errorf("SelectedCount() after UnselectAll = %d, want 0", got)
	}
	if _, err := d.XDomain(); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("XDomain() error = %v, want ErrEmptySelection", err)
	}
	if _, err := d.SelectedStatistics("x"); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("SelectedStatistics() error = %v, want ErrEmptySelection", err)
	}
	if _, err := d.FittingData(); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("FittingData() error = %v, want ErrEmptySelection", err)
	}
	if x := mustValues(t, d.X); len(x) != 0 {
		t.Errorf("X() = %v, want empty", x)
	}

	d.SelectAll()
	if diff := cmp.Diff([]int{0, 1, 2}, d.SelectedRows()); diff != "" {
		t.Errorf("SelectedRows() mismatch (-want +got):\n%s", diff)
	}
}

func TestSetMaskLength(t *testing.T) {
	d := xyDataset(t)
	if err := d.SetMask([]bool{true}); !errors.Is(err, ErrMaskLength) {
		t.Errorf("SetMask(short) error = %v, want ErrMaskLength", err)
	}
}

func TestSetRole(t *testing.T) {
	d := xyDataset(t)

	if err := d.SetRole(RoleXErr, "z"); !errors.Is(err, table.ErrUnknownColumn) {
		t.Errorf("SetRole(xerr, z) error = %v, want ErrUnknownColumn", err)
	}
	if got := d.Roles().XErr; got != "" {
		t.Errorf("Roles().XErr = %q after failed bind, want unbound", got)
	}

	if err := d.SetRole(RoleYErr, "x"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 2, 3}, mustValues(t, d.YErr)); diff != "" {
		t.Errorf("YErr() mismatch (-want +got):\n%s", diff)
	}
	if err := d.SetRole(RoleYErr, ""); err != nil {
		t.Errorf("SetRole(yerr, \"\") error = %v, want nil", err)
	}
	for _, r := range []Role{RoleX, RoleY} {
		if err := d.SetRole(r, ""); !errors.Is(err, ErrRoleRequired) {
			t.Errorf("SetRole(%s, \"\") error = %v, want ErrRoleRequired", r, err)
		}
	}
	if got := d.Roles(); got.X == "" || got.Y == "" {
		t.Errorf("Roles() after rejected unbind = %+v, want x and y still bound", got)
	}
	if err := d.SetRole(Role(9), "x"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("SetRole(9) error = %v, want ErrUnknownRole", err)
	}
}

func TestUsableForFitting(t *testing.T) {
	d, err := New(newTable(t, []string{"a", "b"}, []float64{1, 2}, []float64{3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	if d.UsableForFitting() {
		t.Error("UsableForFitting() = true with no roles bound")
	}
	if _, err := d.Y(); !errors.Is(err, ErrRoleUnbound) {
		t.Errorf("Y() error = %v, want ErrRoleUnbound", err)
	}

	if err := d.SetRole(RoleX, "a"); err != nil {
		t.Fatal(err)
	}
	if d.UsableForFitting() {
		t.Error("UsableForFitting() = true before y is bound")
	}
	if err := d.SetRole(RoleY, "b"); err != nil {
		t.Fatal(err)
	}
	if !d.UsableForFitting() {
		t.Error("UsableForFitting() = false with x, y bound and rows selected")
	}

	d.UnselectAll()
	if d.UsableForFitting() {
		t.Error("UsableForFitting() = true with no rows selected")
	}
}

func TestDefaultRoles(t *testing.T) {
	tests := []struct {
		columns []string
		want    Bindings
	}{
		{[]string{"a", "b"}, Bindings{X: "a", Y: "b"}},
		{[]string{"a", "b", "c"}, Bindings{X: "a", Y: "b", YErr: "c"}},
		{[]string{"a", "b", "c", "d", "e"}, Bindings{X: "a", XErr: "b", Y: "c", YErr: "d"}},
	}
	for _, tt := range tests {
		data := make([][]float64, len(tt.columns))
		for i := range data {
			data[i] = []float64{float64(i)}
		}
		d, err := New(newTable(t, tt.columns, data...), WithDefaultRoles())
		if err != nil {
			t.Fatal(err)
		}
		if got := d.Roles(); got != tt.want {
			t.Errorf("Roles() for %v = %+v, want %+v", tt.columns, got, tt.want)
		}
	}
}

func TestWithRolesUnknownColumn(t *testing.T) {
	_, err := New(newTable(t, []string{"a"}, []float64{1}), WithRoles(Bindings{X: "nope"}))
	if !errors.Is(err, table.ErrUnknownColumn) {
		t.Errorf("New(WithRoles(nope)) error = %v, want ErrUnknownColumn", err)
	}
}

func TestSetCellRoundTrip(t *testing.T) {
	d := xyDataset(t)
	inputs := map[string]float64{"7": 7, "-1.5": -1.5, "2e3": 2000, " .25 ": 0.25}

	for raw, want := range inputs {
		if err := d.SetCell(0, "y", raw); err != nil {
			t.Fatalf("SetCell(%q): %v", raw, err)
		}
		got, err := d.Cell(0, "y")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Cell after SetCell(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestSetCellAtomic(t *testing.T) {
	d := xyDataset(t)
	var events int
	d.Subscribe(func(Event) { events++ })

	if err := d.SetCell(1, "y", "four"); !errors.Is(err, table.ErrInvalidCellSyntax) {
		t.Errorf("SetCell(four) error = %v, want ErrInvalidCellSyntax", err)
	}
	if v, _ := d.Cell(1, "y"); v != 4 {
		t.Errorf("Cell(1, y) = %v after failed edit, want 4", v)
	}
	if err := d.SetCell(5, "y", "1"); !errors.Is(err, table.ErrRowOutOfRange) {
		t.Errorf("SetCell(row 5) error = %v, want ErrRowOutOfRange", err)
	}
	if err := d.SetCell(0, "q", "1"); !errors.Is(err, table.ErrUnknownColumn) {
		t.Errorf("SetCell(column q) error = %v, want ErrUnknownColumn", err)
	}
	if events != 0 {
		t.Errorf("events after failed edits = %d, want 0", events)
	}
}

func TestSetCellMalformedFormula(t *testing.T) {
	d := xyDataset(t)
	for _, raw := range []string{`="`, "=", `"`, "'"} {
		if err := d.SetCell(0, "y", raw); !errors.Is(err, table.ErrInvalidCellSyntax) {
			t.Errorf("SetCell(%q) error = %v, want ErrInvalidCellSyntax", raw, err)
		}
	}
	if diff := cmp.Diff([]float64{2, 4, 6}, mustValues(t, d.Y)); diff != "" {
		t.Errorf("Y() after rejected edits mismatch (-want +got):\n%s", diff)
	}
}

func TestMutationPanicReleasesLock(t *testing.T) {
	d := xyDataset(t)

	func() {
		defer func() { _ = recover() }()
		_ = d.apply(func() (*Event, error) { panic("boom") })
	}()

	done := make(chan struct{})
	go func() {
		_, _ = d.X()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("X() blocked after a panicking mutation")
	}
}

func TestSetCellNegativeZero(t *testing.T) {
	d, err := New(newTable(t, []string{"x", "y"}, []float64{0, 2, 3}, []float64{1, 1, 1}),
		WithRoles(Bindings{X: "x", Y: "y"}))
	if err != nil {
		t.Fatal(err)
	}
	_ = mustValues(t, d.X)

	var events int
	d.Subscribe(func(Event) { events++ })
	if err := d.SetCell(0, "x", "-0"); err != nil {
		t.Fatal(err)
	}
	if events != 1 {
		t.Errorf("events after -0 over 0 = %d, want 1", events)
	}
	if x := mustValues(t, d.X); !math.Signbit(x[0]) {
		t.Errorf("X()[0] = %v, want -0", x[0])
	}
}

func TestSetCellUpdatesArrays(t *testing.T) {
	d := xyDataset(t)
	_ = mustValues(t, d.Y)

	if err := d.SetCell(2, "y", "60"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{2, 4, 60}, mustValues(t, d.Y)); diff != "" {
		t.Errorf("Y() after edit mismatch (-want +got):\n%s", diff)
	}
}

func TestSetHeader(t *testing.T) {
	d := xyDataset(t)
	before := mustValues(t, d.X)

	if err := d.SetHeader("x", "time"); err != nil {
		t.Fatal(err)
	}
	if got := d.Roles().X; got != "time" {
		t.Errorf("Roles().X = %q, want time", got)
	}
	if diff := cmp.Diff(before, mustValues(t, d.X)); diff != "" {
		t.Errorf("X() changed after rename (-want +got):\n%s", diff)
	}
	if d.HasColumn("x") {
		t.Error("HasColumn(x) = true after rename")
	}

	if err := d.SetHeader("time", "y"); !errors.Is(err, table.ErrDuplicateColumn) {
		t.Errorf("SetHeader(time, y) error = %v, want ErrDuplicateColumn", err)
	}
	if err := d.SetHeader("x", "w"); !errors.Is(err, table.ErrUnknownColumn) {
		t.Errorf("SetHeader(x, w) error = %v, want ErrUnknownColumn", err)
	}
}

func TestStatisticsPaths(t *testing.T) {
	d, err := New(newTable(t, []string{"x", "y"}, []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}),
		WithRoles(Bindings{X: "x", Y: "y"}))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Unselect(3); err != nil {
		t.Fatal(err)
	}

	all, err := d.Statistics("y")
	if err != nil {
		t.Fatal(err)
	}
	want := Statistics{Count: 4, Min: 2, Max: 8, Mean: 5, Variance: 20.0 / 3}
	opt := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff(want, all, opt, cmpopts.IgnoreFields(Statistics{}, "StdDev")); diff != "" {
		t.Errorf("Statistics(y) mismatch (-want +got):\n%s", diff)
	}

	sel, err := d.SelectedStatistics("y")
	if err != nil {
		t.Fatal(err)
	}
	want = Statistics{Count: 3, Min: 2, Max: 6, Mean: 4, Variance: 4, StdDev: 2}
	if diff := cmp.Diff(want, sel, opt); diff != "" {
		t.Errorf("SelectedStatistics(y) mismatch (-want +got):\n%s", diff)
	}

	if _, err := d.Statistics("nope"); !errors.Is(err, table.ErrUnknownColumn) {
		t.Errorf("Statistics(nope) error = %v, want ErrUnknownColumn", err)
	}
}

func TestStatisticsSingleValue(t *testing.T) {
	d := xyDataset(t)
	if err := d.SetMask([]bool{false, true, false}); err != nil {
		t.Fatal(err)
	}
	s, err := d.SelectedStatistics("x")
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 1 || s.Variance != 0 || s.Mean != 2 {
		t.Errorf("SelectedStatistics(x) = %+v, want count 1 mean 2 variance 0", s)
	}
}

func TestFittingData(t *testing.T) {
	d, err := New(newTable(t, []string{"t", "v", "dv"},
		[]float64{0, 1, 2}, []float64{5, 6, 7}, []float64{.5, .5, .5}), WithDefaultRoles())
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.FittingData()
	if err != nil {
		t.Fatal(err)
	}
	want := Data{X: []float64{0, 1, 2}, XErr: []float64{0, 0, 0}, Y: []float64{5, 6, 7}, YErr: []float64{.5, .5, .5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FittingData() mismatch (-want +got):\n%s", diff)
	}
	if got.HasXErr() || !got.HasYErr() {
		t.Errorf("HasXErr() = %v, HasYErr() = %v, want false, true", got.HasXErr(), got.HasYErr())
	}

	got.X[0] = 100
	if x := mustValues(t, d.X); x[0] != 0 {
		t.Errorf("X()[0] = %v after mutating a snapshot, want 0", x[0])
	}
}

func TestExport(t *testing.T) {
	d := xyDataset(t)
	if err := d.Unselect(0); err != nil {
		t.Fatal(err)
	}

	cols, rows := d.Export(true)
	if diff := cmp.Diff([]string{"x", "y"}, cols); diff != "" {
		t.Errorf("Export columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]float64{{2, 4}, {3, 6}}, rows); diff != "" {
		t.Errorf("Export(true) rows mismatch (-want +got):\n%s", diff)
	}
	if _, rows := d.Export(false); len(rows) != 3 {
		t.Errorf("Export(false) returned %d rows, want 3", len(rows))
	}
}

func TestEvents(t *testing.T) {
	d := xyDataset(t)

	var got []Event
	unsubscribe := d.Subscribe(func(ev Event) {
		// Listeners may read the dataset; the lock is released before notify.
		_ = d.SelectedCount()
		got = append(got, ev)
	})

	_ = d.SetRole(RoleYErr, "x")
	_ = d.Unselect(0)
	_ = d.SetCell(1, "y", "9")
	_ = d.SetHeader("y", "signal")

	want := []Event{
		{Kind: EventRolesChanged, Role: RoleYErr, Column: "x", Row: -1},
		{Kind: EventMaskChanged, Row: 0},
		{Kind: EventCellChanged, Row: 1, Column: "y", OldValue: 4, NewValue: 9},
		{Kind: EventHeaderChanged, Row: -1, Column: "signal", OldColumn: "y"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	unsubscribe()
	d.SelectAll()
	if len(got) != len(want) {
		t.Errorf("received %d events after unsubscribe, want %d", len(got), len(want))
	}
}

func TestListenersArePerInstance(t *testing.T) {
	a := xyDataset(t)
	b := xyDataset(t)

	var fromA int
	a.Subscribe(func(Event) { fromA++ })
	b.UnselectAll()

	if fromA != 0 {
		t.Errorf("listener on a saw %d events from b, want 0", fromA)
	}
}

func TestConcurrentAccess(t *testing.T) {
	d := xyDataset(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 100 {
				if (i+j)%2 == 0 {
					_ = d.Unselect(j % 3)
				} else {
					_ = d.Select(j % 3)
				}
				if data, err := d.FittingData(); err == nil && len(data.X) != len(data.Y) {
					t.Errorf("len(X)=%d len(Y)=%d", len(data.X), len(data.Y))
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"x", RoleX, false},
		{"XERR", RoleXErr, false},
		{"y", RoleY, false},
		{"y_err", RoleYErr, false},
		{"z", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownRole) {
				t.Errorf("ParseRole(%q) error = %v, want ErrUnknownRole", tt.input, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseRole(%q) = %v, %v, want %v", tt.input, got, err, tt.want)
		}
	}
}
