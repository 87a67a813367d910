// Package fitting fits model functions to dataset arrays by minimising
// chi-squared, and reports the fitted parameters with their uncertainties.
package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
)

var (
	ErrParamCount        = errors.New("wrong number of parameters")
	ErrTooFewPoints      = errors.New("not enough points for the number of parameters")
	ErrNotConverged      = errors.New("fit did not converge")
	ErrSingularFit       = errors.New("parameter covariance is singular")
	ErrUnknownModel      = errors.New("unknown model")
	ErrInvalidDegree     = errors.New("polynomial degree must be at least 1")
	ErrInvalidExpression = errors.New("invalid model expression")
)

// Model is a function y = f(a, x) with a fixed number of parameters.
type Model struct {
	Name      string
	NumParams int
	// Syntax is a human-readable form of the function, e.g. "a[0] + a[1] * x".
	Syntax string
	Eval   func(a []float64, x float64) float64
}

// CheckParams reports whether a has the length the model expects.
func (m Model) CheckParams(a []float64) error {
	if len(a) != m.NumParams {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrParamCount, m.Name, m.NumParams, len(a))
	}
	return nil
}

// Apply evaluates the model at every x.
func (m Model) Apply(a, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = m.Eval(a, x)
	}
	return out
}

// Derivative returns df/dx at x, computed numerically.
func (m Model) Derivative(a []float64, x float64) float64 {
	return fd.Derivative(func(x float64) float64 { return m.Eval(a, x) }, x, &fd.Settings{
		Formula: fd.Central,
		Step:    math.Max(1e-6, 1e-6*math.Abs(x)),
	})
}

// Residuals returns y - f(a, x) for each point.
func (m Model) Residuals(a, xs, ys []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = ys[i] - m.Eval(a, x)
	}
	return out
}
