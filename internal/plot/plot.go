// Package plot draws dataset arrays and fitted functions with gonum/plot.
package plot

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/fitting"
)

// Kind names one of the figures a session can draw.
type Kind string

const (
	KindData         Kind = "data"
	KindInitialGuess Kind = "initial"
	KindFit          Kind = "fit"
	KindResiduals    Kind = "residuals"
)

// ParseKind validates a figure name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindData, KindInitialGuess, KindFit, KindResiduals:
		return k, nil
	}
	return "", fmt.Errorf("unknown plot kind %q", s)
}

// Config controls labels and output size.
type Config struct {
	Title  string
	XLabel string
	YLabel string
	Grid   bool
	Legend bool
	XLog   bool
	YLog   bool

	Width   vg.Length
	Height  vg.Length
	Samples int // points used to draw a function curve
}

// DefaultConfig returns a 6x4 inch figure with grid and legend.
func DefaultConfig() Config {
	return Config{
		XLabel:  "x",
		YLabel:  "y",
		Grid:    true,
		Legend:  true,
		Width:   6 * vg.Inch,
		Height:  4 * vg.Inch,
		Samples: 200,
	}
}

// Data plots the points with their error bars.
func Data(d dataset.Data, cfg Config) (*plot.Plot, error) {
	p := newPlot(cfg)
	if err := addPoints(p, d.X, d.Y, d, "data", cfg.Legend); err != nil {
		return nil, err
	}
	if err := checkLogAxes(p, cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// InitialGuess plots the data and f(a0, x) over domain.
func InitialGuess(d dataset.Data, domain dataset.Interval, m fitting.Model, a0 []float64, cfg Config) (*plot.Plot, error) {
	return curve(d, domain, m, a0, "initial guess", cfg)
}

// Fit plots the data and the fitted curve over domain.
func Fit(d dataset.Data, domain dataset.Interval, m fitting.Model, a []float64, cfg Config) (*plot.Plot, error) {
	return curve(d, domain, m, a, "fit", cfg)
}

func curve(d dataset.Data, domain dataset.Interval, m fitting.Model, a []float64, label string, cfg Config) (*plot.Plot, error) {
	if err := m.CheckParams(a); err != nil {
		return nil, err
	}
	p := newPlot(cfg)
	if err := addPoints(p, d.X, d.Y, d, "data", cfg.Legend); err != nil {
		return nil, err
	}

	fn := plotter.NewFunction(func(x float64) float64 { return m.Eval(a, x) })
	if cfg.YLog {
		fn.F = positiveOnly(fn.F)
	}
	fn.XMin, fn.XMax = domain.Min, domain.Max
	fn.Samples = cfg.Samples
	fn.Color = plotutil.Color(1)
	fn.Width = vg.Points(1.5)
	p.Add(fn)
	if cfg.Legend {
		p.Legend.Add(label, fn)
	}
	spanX(p, domain)
	if err := checkLogAxes(p, cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// Residuals plots y - f(a, x) with the data errors and a zero line.
func Residuals(d dataset.Data, domain dataset.Interval, m fitting.Model, a []float64, cfg Config) (*plot.Plot, error) {
	if err := m.CheckParams(a); err != nil {
		return nil, err
	}
	if cfg.Title == "" {
		cfg.Title = "Residuals"
	}
	p := newPlot(cfg)

	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	if cfg.YLog {
		zero.F = positiveOnly(zero.F)
	}
	zero.XMin, zero.XMax = domain.Min, domain.Max
	zero.Color = color.Gray{Y: 128}
	zero.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(zero)

	if err := addPoints(p, d.X, m.Residuals(a, d.X, d.Y), d, "residuals", cfg.Legend); err != nil {
		return nil, err
	}
	spanX(p, domain)
	if err := checkLogAxes(p, cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// Render encodes p as png, svg, pdf, eps or jpg.
func Render(p *plot.Plot, cfg Config, format string) (out []byte, err error) {
	// gonum/plot panics when a log axis meets a non-positive value.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrLogScale, r)
		}
	}()

	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		def := DefaultConfig()
		w, h = def.Width, def.Height
	}
	wt, err := p.WriterTo(w, h, format)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func newPlot(cfg Config) *plot.Plot {
	p := plot.New()
	p.Title.Text = cfg.Title
	p.X.Label.Text = cfg.XLabel
	p.Y.Label.Text = cfg.YLabel
	if cfg.XLog {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{}
	}
	if cfg.YLog {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{}
	}
	if cfg.Grid {
		p.Add(plotter.NewGrid())
	}
	p.Legend.Top = true
	return p
}

// spanX widens the x axis so a curve drawn over domain is not clipped.
func spanX(p *plot.Plot, domain dataset.Interval) {
	p.X.Min = math.Min(p.X.Min, domain.Min)
	p.X.Max = math.Max(p.X.Max, domain.Max)
}

func checkLogAxes(p *plot.Plot, cfg Config) error {
	if cfg.XLog && p.X.Min <= 0 {
		return fmt.Errorf("%w: x reaches %g", ErrLogScale, p.X.Min)
	}
	if cfg.YLog && p.Y.Min <= 0 {
		return fmt.Errorf("%w: y reaches %g", ErrLogScale, p.Y.Min)
	}
	return nil
}

// positiveOnly hides the non-positive part of a curve on a log y axis.
func positiveOnly(f func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		if y := f(x); y > 0 {
			return y
		}
		return math.NaN()
	}
}
