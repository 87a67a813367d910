// Command curvefit fits a model to a data file without starting the server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	gplot "gonum.org/v1/plot"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/fitting"
	"github.com/JonMunkholm/curvefit/internal/ingest"
	"github.com/JonMunkholm/curvefit/internal/logging"
	"github.com/JonMunkholm/curvefit/internal/plot"
)

var (
	app      = kingpin.New("curvefit", "Fit models to tabular data with error bars")
	logLevel = app.Flag("log-level", "log level (debug, info, warn, error)").Default("warn").String()

	modelsCmd = app.Command("models", "List the built-in models")

	statsCmd      = app.Command("stats", "Print column statistics")
	statsFile     = statsCmd.Arg("file", "csv, tsv, xlsx or parquet file").Required().ExistingFile()
	statsSheet    = statsCmd.Flag("sheet", "Excel sheet name").String()
	statsExclude  = statsCmd.Flag("exclude", "row to leave out, repeatable").Ints()
	statsSelected = statsCmd.Flag("selected", "only use selected rows").Bool()

	fitCmd     = app.Command("fit", "Fit a model and write the result and plots")
	fitFile    = fitCmd.Arg("file", "csv, tsv, xlsx or parquet file").Required().ExistingFile()
	fitSheet   = fitCmd.Flag("sheet", "Excel sheet name").String()
	fitX       = fitCmd.Flag("x", "x column").String()
	fitXErr    = fitCmd.Flag("xerr", "x error column").String()
	fitY       = fitCmd.Flag("y", "y column").String()
	fitYErr    = fitCmd.Flag("yerr", "y error column").String()
	fitModel   = fitCmd.Flag("model", "model name").Default("linear").String()
	fitDegree  = fitCmd.Flag("degree", "polynomial degree").Default("2").Int()
	fitExpr    = fitCmd.Flag("expr", "custom model expression in x and a[i]").String()
	fitParams  = fitCmd.Flag("params", "number of parameters of --expr").Int()
	fitA0      = fitCmd.Flag("a0", "initial guess, repeat once per parameter").Float64List()
	fitExclude = fitCmd.Flag("exclude", "row to leave out, repeatable").Ints()
	fitMethod  = fitCmd.Flag("method", "optimizer (nelder-mead, lbfgs)").Default(string(fitting.MethodNelderMead)).String()
	fitOutput  = fitCmd.Flag("output", "directory for result.txt, result.json and plots").Default(".").String()
	fitPlot    = fitCmd.Flag("plot", "figure option KEY=VALUE (title, xlabel, ylabel, grid, legend, xmin, xmax, xlog, ylog), repeatable").StringMap()
)

func main() {
	app.Version("v0.1")
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	slog.SetDefault(logging.New(os.Stderr, *logLevel, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd {
	case modelsCmd.FullCommand():
		err = listModels()
	case statsCmd.FullCommand():
		err = runStats(ctx)
	case fitCmd.FullCommand():
		err = runFit(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "curvefit: %v\n", err)
		os.Exit(1)
	}
}

func listModels() error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPARAMS\tFUNCTION")
	for _, m := range fitting.All() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", m.Name, m.NumParams, m.Syntax)
	}
	fmt.Fprintln(tw, "polynomial\tdegree+1\ta[0] + a[1]*x + ... + a[n]*x^n")
	return tw.Flush()
}

// load reads file into a dataset with default roles and the given rows
// left out.
func load(ctx context.Context, file, sheet string, exclude []int, opts ...dataset.Option) (*dataset.Dataset, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	t, err := ingest.Load(ctx, filepath.Base(file), data, sheet)
	if err != nil {
		return nil, err
	}
	d, err := dataset.New(t, append([]dataset.Option{dataset.WithDefaultRoles()}, opts...)...)
	if err != nil {
		return nil, err
	}
	for _, row := range exclude {
		if err := d.Unselect(row); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func runStats(ctx context.Context) error {
	d, err := load(ctx, *statsFile, *statsSheet, *statsExclude)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tN\tMIN\tMAX\tMEAN\tSTDDEV")
	for _, col := range d.ColumnNames() {
		var st dataset.Statistics
		if *statsSelected {
			st, err = d.SelectedStatistics(col)
		} else {
			st, err = d.Statistics(col)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", col, err)
		}
		fmt.Fprintf(tw, "%s\t%d\t%g\t%g\t%g\t%g\n", col, st.Count, st.Min, st.Max, st.Mean, st.StdDev)
	}
	return tw.Flush()
}

func runFit(ctx context.Context) error {
	d, err := load(ctx, *fitFile, *fitSheet, *fitExclude)
	if err != nil {
		return err
	}
	if err := bindRoles(d); err != nil {
		return err
	}

	m, err := resolveModel()
	if err != nil {
		return err
	}
	a0 := *fitA0
	if len(a0) == 0 {
		a0 = make([]float64, m.NumParams)
		for i := range a0 {
			a0[i] = 1
		}
	}

	data, err := d.FittingData()
	if err != nil {
		return err
	}
	domain, err := d.XDomain()
	if err != nil {
		return err
	}
	q := url.Values{}
	for k, v := range *fitPlot {
		q.Set(k, v)
	}
	opts, err := plot.ParseOptions(q)
	if err != nil {
		return err
	}
	curveDomain, err := opts.Domain(domain)
	if err != nil {
		return err
	}

	logger := logging.WithFields(ctx, "file", *fitFile, "model", m.Name)
	logger.Info("fitting", "points", data.Len())
	res, err := fitting.Fit(ctx, data, m, a0, fitting.Options{Method: fitting.Method(*fitMethod)})
	if err != nil {
		return err
	}
	logger.Info("fit done", "chi2", res.ChiSquared, "iterations", res.Iterations)

	if err := os.MkdirAll(*fitOutput, 0o755); err != nil {
		return err
	}
	if err := writeResult(res); err != nil {
		return err
	}
	if err := res.WriteText(os.Stdout); err != nil {
		return err
	}

	cfg := plot.DefaultConfig()
	roles := d.Roles()
	cfg.XLabel, cfg.YLabel = roles.X, roles.Y

	cfg.Title = "Initial guess: " + m.Name
	guess, err := plot.InitialGuess(data, curveDomain, m, a0, opts.Apply(cfg))
	if err != nil {
		return err
	}
	cfg.Title = "Fit: " + m.Name
	fit, err := plot.Fit(data, curveDomain, m, res.A, opts.Apply(cfg))
	if err != nil {
		return err
	}
	cfg.Title = "Residuals: " + m.Name
	resid, err := plot.Residuals(data, curveDomain, m, res.A, opts.Apply(cfg))
	if err != nil {
		return err
	}

	for name, p := range map[string]*gplot.Plot{
		"initial_guess.png": guess,
		"fit.png":           fit,
		"residuals.png":     resid,
	} {
		if err := savePlot(p, cfg, name); err != nil {
			return err
		}
	}
	return nil
}

// bindRoles applies the role flags; unset flags keep the default binding.
func bindRoles(d *dataset.Dataset) error {
	for _, b := range []struct {
		role   dataset.Role
		column string
	}{
		{dataset.RoleX, *fitX},
		{dataset.RoleXErr, *fitXErr},
		{dataset.RoleY, *fitY},
		{dataset.RoleYErr, *fitYErr},
	} {
		if b.column == "" {
			continue
		}
		if err := d.SetRole(b.role, b.column); err != nil {
			return err
		}
	}
	return nil
}

func resolveModel() (fitting.Model, error) {
	if *fitExpr != "" {
		if *fitParams <= 0 {
			return fitting.Model{}, fmt.Errorf("--params is required with --expr")
		}
		return fitting.Compile("custom", *fitExpr, *fitParams)
	}
	return fitting.Resolve(*fitModel, *fitDegree)
}

func writeResult(res *fitting.Result) error {
	txt, err := os.Create(filepath.Join(*fitOutput, "result.txt"))
	if err != nil {
		return err
	}
	if err := res.WriteText(txt); err != nil {
		txt.Close()
		return err
	}
	if err := txt.Close(); err != nil {
		return err
	}

	js, err := os.Create(filepath.Join(*fitOutput, "result.json"))
	if err != nil {
		return err
	}
	if err := res.WriteJSON(js); err != nil {
		js.Close()
		return err
	}
	return js.Close()
}

func savePlot(p *gplot.Plot, cfg plot.Config, name string) error {
	img, err := plot.Render(p, cfg, "png")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(*fitOutput, name), img, 0o644)
}
