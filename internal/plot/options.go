package plot

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/JonMunkholm/curvefit/internal/dataset"
)

var (
	ErrInvalidDomain = errors.New("invalid x domain")
	ErrLogScale      = errors.New("log axis needs positive values")
)

// Options are the per-figure overrides a user can set. Zero values keep the
// figure's defaults; Grid and Legend are pointers so that false can be told
// apart from unset.
type Options struct {
	Title  string
	XLabel string
	YLabel string
	Grid   *bool
	Legend *bool

	// XMin and XMax replace the matching end of the data's x domain for
	// drawn curves.
	XMin *float64
	XMax *float64

	XLog bool
	YLog bool
}

// ParseOptions reads title, xlabel, ylabel, grid, legend, xmin, xmax, xlog
// and ylog from q. Missing keys stay unset.
func ParseOptions(q url.Values) (Options, error) {
	o := Options{
		Title:  q.Get("title"),
		XLabel: q.Get("xlabel"),
		YLabel: q.Get("ylabel"),
	}

	var err error
	if o.Grid, err = optBool(q, "grid"); err != nil {
		return Options{}, err
	}
	if o.Legend, err = optBool(q, "legend"); err != nil {
		return Options{}, err
	}
	if o.XMin, err = optFloat(q, "xmin"); err != nil {
		return Options{}, err
	}
	if o.XMax, err = optFloat(q, "xmax"); err != nil {
		return Options{}, err
	}
	for key, dst := range map[string]*bool{"xlog": &o.XLog, "ylog": &o.YLog} {
		b, err := optBool(q, key)
		if err != nil {
			return Options{}, err
		}
		if b != nil {
			*dst = *b
		}
	}

	if o.XMin != nil && o.XMax != nil && *o.XMin >= *o.XMax {
		return Options{}, fmt.Errorf("%w: xmin %g is not below xmax %g", ErrInvalidDomain, *o.XMin, *o.XMax)
	}
	return o, nil
}

func optBool(q url.Values, key string) (*bool, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a boolean", key, s)
	}
	return &b, nil
}

func optFloat(q url.Values, key string) (*float64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidDomain, key, s)
	}
	return &f, nil
}

// Apply returns cfg with the set overrides applied.
func (o Options) Apply(cfg Config) Config {
	if o.Title != "" {
		cfg.Title = o.Title
	}
	if o.XLabel != "" {
		cfg.XLabel = o.XLabel
	}
	if o.YLabel != "" {
		cfg.YLabel = o.YLabel
	}
	if o.Grid != nil {
		cfg.Grid = *o.Grid
	}
	if o.Legend != nil {
		cfg.Legend = *o.Legend
	}
	cfg.XLog = cfg.XLog || o.XLog
	cfg.YLog = cfg.YLog || o.YLog
	return cfg
}

// Domain returns def with XMin and XMax substituted where set.
func (o Options) Domain(def dataset.Interval) (dataset.Interval, error) {
	if !o.Custom() {
		return def, nil
	}
	iv := def
	if o.XMin != nil {
		iv.Min = *o.XMin
	}
	if o.XMax != nil {
		iv.Max = *o.XMax
	}
	if !(iv.Min < iv.Max) {
		return dataset.Interval{}, fmt.Errorf("%w: [%g, %g]", ErrInvalidDomain, iv.Min, iv.Max)
	}
	return iv, nil
}

// Custom reports whether either end of the x domain is overridden.
func (o Options) Custom() bool { return o.XMin != nil || o.XMax != nil }
