package plot

import (
	"bytes"
	"errors"
	"testing"

	"gonum.org/v1/plot"

	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/fitting"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func sampleData() dataset.Data {
	return dataset.Data{
		X:    []float64{0, 1, 2, 3},
		XErr: []float64{0.1, 0.1, 0.1, 0.1},
		Y:    []float64{1, 3.1, 4.9, 7.2},
		YErr: []float64{0.2, 0.2, 0.2, 0.2},
	}
}

func TestRenderFigures(t *testing.T) {
	d := sampleData()
	domain := dataset.Interval{Min: 0, Max: 3}
	m, _ := fitting.Get("linear")
	a := []float64{1, 2}
	cfg := DefaultConfig()
	cfg.Title = "test"

	builders := map[string]func() (*plot.Plot, error){
		"data":      func() (*plot.Plot, error) { return Data(d, cfg) },
		"initial":   func() (*plot.Plot, error) { return InitialGuess(d, domain, m, []float64{0, 1}, cfg) },
		"fit":       func() (*plot.Plot, error) { return Fit(d, domain, m, a, cfg) },
		"residuals": func() (*plot.Plot, error) { return Residuals(d, domain, m, a, cfg) },
	}

	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			p, err := build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			out, err := Render(p, cfg, "png")
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if !bytes.HasPrefix(out, pngMagic) {
				t.Errorf("output does not start with the PNG signature")
			}
		})
	}
}

func TestRenderSVG(t *testing.T) {
	p, err := Data(sampleData(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	out, err := Render(p, Config{}, "svg")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out, []byte("<svg")) {
		t.Error("svg output has no <svg element")
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	p, err := Data(sampleData(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Render(p, DefaultConfig(), "bmp"); err == nil {
		t.Error("Render(bmp) returned nil error")
	}
}

func TestCurveParamCount(t *testing.T) {
	m, _ := fitting.Get("linear")
	_, err := Fit(sampleData(), dataset.Interval{Max: 1}, m, []float64{1}, DefaultConfig())
	if !errors.Is(err, fitting.ErrParamCount) {
		t.Errorf("Fit(1 param) error = %v, want ErrParamCount", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"data", "initial", "fit", "residuals"} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%q) error = %v", s, err)
		}
	}
	if _, err := ParseKind("histogram"); err == nil {
		t.Error("ParseKind(histogram) returned nil error")
	}
}
