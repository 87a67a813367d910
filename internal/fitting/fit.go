package fitting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/JonMunkholm/curvefit/internal/dataset"
)

var nanValue = math.NaN()

// Method selects the minimisation algorithm.
type Method string

const (
	MethodNelderMead Method = "nelder-mead"
	MethodLBFGS      Method = "lbfgs"
)

// Options tune the solver. Zero values select defaults.
type Options struct {
	Method        Method
	MaxIterations int
	// Tolerance is the absolute chi-squared change below which the fit is
	// considered converged.
	Tolerance float64
}

const (
	DefaultMaxIterations = 10000
	DefaultTolerance     = 1e-12
)

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = MethodNelderMead
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	return o
}

// Fit minimises chi-squared of m over data starting from a0.
//
// Each point is weighted by 1/sigma^2 with sigma^2 = yerr^2 + (f'(x) * xerr)^2.
// A point whose sigma is zero gets unit weight. When no point carries an
// error the covariance is scaled by the reduced chi-squared.
func Fit(ctx context.Context, data dataset.Data, m Model, a0 []float64, opts Options) (*Result, error) {
	if err := m.CheckParams(a0); err != nil {
		return nil, err
	}
	n := data.Len()
	if n <= m.NumParams {
		return nil, fmt.Errorf("%w: %d points, %d parameters", ErrTooFewPoints, n, m.NumParams)
	}
	opts = opts.withDefaults()

	weighted := data.HasXErr() || data.HasYErr()
	p := newProblem(data, m)

	method, grad, err := solverFor(opts.Method)
	if err != nil {
		return nil, err
	}
	problem := optimize.Problem{Func: p.chiSquared}
	if grad {
		problem.Grad = func(g, a []float64) {
			fd.Gradient(g, p.chiSquared, a, nil)
		}
	}

	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &contextConverger{
			ctx: ctx,
			inner: &optimize.FunctionConverge{
				Absolute:   opts.Tolerance,
				Iterations: 200,
			},
		},
	}
	if deadline, ok := ctx.Deadline(); ok {
		settings.Runtime = time.Until(deadline)
	}

	type outcome struct {
		res *optimize.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := optimize.Minimize(problem, append([]float64(nil), a0...), settings, method)
		done <- outcome{res, err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out = <-done:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if out.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConverged, out.err)
	}
	if out.res == nil || math.IsNaN(out.res.F) || math.IsInf(out.res.F, 0) {
		return nil, fmt.Errorf("%w: chi-squared is not finite", ErrNotConverged)
	}
	switch out.res.Status {
	case optimize.IterationLimit, optimize.RuntimeLimit, optimize.FunctionEvaluationLimit, optimize.Failure:
		return nil, fmt.Errorf("%w: %s", ErrNotConverged, out.res.Status)
	}

	a := out.res.X
	dof := n - m.NumParams
	chi2 := p.chiSquared(a)

	cov, err := p.covariance(a)
	if err != nil {
		return nil, err
	}
	if !weighted {
		cov.Scale(chi2/float64(dof), cov)
	}

	r := &Result{
		Model:             m.Name,
		Syntax:            m.Syntax,
		A0:                append([]float64(nil), a0...),
		A:                 append([]float64(nil), a...),
		AErr:              make([]float64, m.NumParams),
		Covariance:        make([][]float64, m.NumParams),
		ChiSquared:        chi2,
		DegreesOfFreedom:  dof,
		ChiSquaredReduced: chi2 / float64(dof),
		PValue:            distuv.ChiSquared{K: float64(dof)}.Survival(chi2),
		NumPoints:         n,
		Iterations:        out.res.Stats.MajorIterations,
		Evaluations:       out.res.Stats.FuncEvaluations,
	}
	for i := range r.Covariance {
		r.Covariance[i] = make([]float64, m.NumParams)
		for j := range r.Covariance[i] {
			r.Covariance[i][j] = cov.At(i, j)
		}
		r.AErr[i] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}
	return r, nil
}

// contextConverger stops the solver goroutine once ctx is done.
type contextConverger struct {
	ctx   context.Context
	inner optimize.Converger
}

func (c *contextConverger) Init(dim int) { c.inner.Init(dim) }

func (c *contextConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.ctx.Err() != nil {
		return optimize.RuntimeLimit
	}
	return c.inner.Converged(loc)
}

func solverFor(m Method) (optimize.Method, bool, error) {
	switch m {
	case MethodNelderMead:
		return &optimize.NelderMead{}, false, nil
	case MethodLBFGS:
		return &optimize.LBFGS{}, true, nil
	}
	return nil, false, fmt.Errorf("unknown fit method %q", m)
}

// problem holds the arrays a fit reads. It never changes once built.
type problem struct {
	m    Model
	x    []float64
	y    []float64
	xerr []float64
	yerr []float64
}

func newProblem(d dataset.Data, m Model) *problem {
	return &problem{m: m, x: d.X, y: d.Y, xerr: d.XErr, yerr: d.YErr}
}

func (p *problem) sigma(a []float64, i int) float64 {
	s2 := p.yerr[i] * p.yerr[i]
	if p.xerr[i] != 0 {
		slope := p.m.Derivative(a, p.x[i])
		s2 += slope * slope * p.xerr[i] * p.xerr[i]
	}
	if s2 == 0 {
		return 1
	}
	return math.Sqrt(s2)
}

func (p *problem) residuals(dst, a []float64) {
	for i, x := range p.x {
		dst[i] = (p.y[i] - p.m.Eval(a, x)) / p.sigma(a, i)
	}
}

func (p *problem) chiSquared(a []float64) float64 {
	sum := 0.0
	for i, x := range p.x {
		r := (p.y[i] - p.m.Eval(a, x)) / p.sigma(a, i)
		sum += r * r
	}
	return sum
}

// covariance returns (JᵀJ)⁻¹ where J is the Jacobian of the weighted residuals.
func (p *problem) covariance(a []float64) (*mat.Dense, error) {
	n, k := len(p.x), len(a)
	jac := mat.NewDense(n, k, nil)
	fd.Jacobian(jac, p.residuals, a, &fd.JacobianSettings{Formula: fd.Central})

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	var cov mat.Dense
	if err := cov.Inverse(&jtj); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: %v", ErrSingularFit, err)
		}
		if math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: %v", ErrSingularFit, err)
		}
	}
	return &cov, nil
}
