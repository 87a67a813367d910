package plot

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg/draw"

	"github.com/JonMunkholm/curvefit/internal/dataset"
)

// errorPoints satisfies plotter.XYer, plotter.XErrorer and plotter.YErrorer.
type errorPoints struct {
	plotter.XYs
	plotter.XErrors
	plotter.YErrors
}

func newErrorPoints(xs, ys []float64, d dataset.Data) errorPoints {
	pts := errorPoints{
		XYs:     make(plotter.XYs, len(xs)),
		XErrors: make(plotter.XErrors, len(xs)),
		YErrors: make(plotter.YErrors, len(xs)),
	}
	for i := range xs {
		pts.XYs[i] = plotter.XY{X: xs[i], Y: ys[i]}
		pts.XErrors[i].Low, pts.XErrors[i].High = -d.XErr[i], d.XErr[i]
		pts.YErrors[i].Low, pts.YErrors[i].High = -d.YErr[i], d.YErr[i]
	}
	return pts
}

func addPoints(p *plot.Plot, xs, ys []float64, d dataset.Data, label string, legend bool) error {
	pts := newErrorPoints(xs, ys, d)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Color = plotutil.Color(0)
	p.Add(scatter)
	if legend {
		p.Legend.Add(label, scatter)
	}

	if d.HasXErr() {
		xerr, err := plotter.NewXErrorBars(pts)
		if err != nil {
			return err
		}
		xerr.Color = plotutil.Color(0)
		p.Add(xerr)
	}
	if d.HasYErr() {
		yerr, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return err
		}
		yerr.Color = plotutil.Color(0)
		p.Add(yerr)
	}
	return nil
}
