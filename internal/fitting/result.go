package fitting

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
)

// Result is the outcome of a successful fit.
type Result struct {
	Model  string `json:"model"`
	Syntax string `json:"syntax"`

	A0         []float64   `json:"a0"`
	A          []float64   `json:"a"`
	AErr       []float64   `json:"aerr"`
	Covariance [][]float64 `json:"covariance"`

	ChiSquared        float64 `json:"chi2"`
	DegreesOfFreedom  int     `json:"degrees_of_freedom"`
	ChiSquaredReduced float64 `json:"chi2_reduced"`
	PValue            float64 `json:"p_value"`

	NumPoints   int `json:"num_points"`
	Iterations  int `json:"iterations"`
	Evaluations int `json:"evaluations"`
}

// RelativeError returns |aerr[i] / a[i]| as a percentage, or +Inf when a[i] is zero.
func (r *Result) RelativeError(i int) float64 {
	if r.A[i] == 0 {
		return math.Inf(1)
	}
	return math.Abs(r.AErr[i]/r.A[i]) * 100
}

// Eval evaluates the fitted function at x.
func (r *Result) Eval(m Model, x float64) float64 {
	return m.Eval(r.A, x)
}

// WriteText writes a human-readable report.
func (r *Result) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, r.String())
	return err
}

// WriteJSON writes the result as indented JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *Result) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Results for %s", r.Model)
	if r.Syntax != "" {
		fmt.Fprintf(&b, " (%s)", r.Syntax)
	}
	b.WriteString("\n\n")

	b.WriteString("Initial parameters:\n")
	for i, v := range r.A0 {
		fmt.Fprintf(&b, "    a[%d] = %.6g\n", i, v)
	}

	b.WriteString("Fitted parameters:\n")
	for i, v := range r.A {
		fmt.Fprintf(&b, "    a[%d] = %.6g ± %.6g (%.3g%% error)\n", i, v, r.AErr[i], r.RelativeError(i))
	}

	b.WriteString("Covariance:\n")
	for _, row := range r.Covariance {
		b.WriteString("   ")
		for _, v := range row {
			fmt.Fprintf(&b, " %12.5g", v)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Points: %d\n", r.NumPoints)
	fmt.Fprintf(&b, "Chi squared: %.6g\n", r.ChiSquared)
	fmt.Fprintf(&b, "Degrees of freedom: %d\n", r.DegreesOfFreedom)
	fmt.Fprintf(&b, "Chi squared reduced: %.6g\n", r.ChiSquaredReduced)
	fmt.Fprintf(&b, "P-value: %.6g\n", r.PValue)
	return b.String()
}
