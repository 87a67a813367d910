package fitting

import (
	"errors"
	"math"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		expr string
		a    []float64
		x    float64
		want float64
	}{
		{"a[0] + a[1]*x", []float64{1, 2}, 3, 7},
		{"a[0] * exp(a[1] * x)", []float64{2, 0}, 5, 2},
		{"a[0] * math.Sin(x)", []float64{3}, math.Pi / 2, 3},
		{"pow(x, a[0])", []float64{3}, 2, 8},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			m, err := Compile("custom", tt.expr, len(tt.a))
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.expr, err)
			}
			if got := m.Eval(tt.a, tt.x); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Eval = %v, want %v", got, tt.want)
			}
			if m.Syntax != tt.expr || m.NumParams != len(tt.a) {
				t.Errorf("model = %+v, want syntax %q with %d params", m, tt.expr, len(tt.a))
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		numParams int
		wantErr   error
	}{
		{"empty", "  ", 1, ErrInvalidExpression},
		{"syntax", "a[0] +* x", 1, ErrInvalidExpression},
		{"statement", "a[0]; return 1", 1, ErrInvalidExpression},
		{"undefined name", "a[0] * y", 1, ErrInvalidExpression},
		{"parameter out of range", "a[0] + a[3]", 2, ErrInvalidExpression},
		{"no parameters", "x", 0, ErrParamCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("custom", tt.expr, tt.numParams)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile(%q) error = %v, want %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestInterpreterOnlyLoadsMath(t *testing.T) {
	tests := []struct {
		pkg     string
		wantErr bool
	}{
		{"math", false},
		{"os", true},
		{"os/exec", true},
		{"net/http", true},
	}
	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			i, err := newInterpreter()
			if err != nil {
				t.Fatal(err)
			}
			_, err = i.Eval(`import "` + tt.pkg + `"`)
			if (err != nil) != tt.wantErr {
				t.Errorf("import %q error = %v, wantErr %v", tt.pkg, err, tt.wantErr)
			}
		})
	}
}
