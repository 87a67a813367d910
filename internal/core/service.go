package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JonMunkholm/curvefit/internal/config"
	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/fitting"
	"github.com/JonMunkholm/curvefit/internal/ingest"
	"github.com/JonMunkholm/curvefit/internal/logging"
	"github.com/JonMunkholm/curvefit/internal/plot"
	"github.com/JonMunkholm/curvefit/internal/store"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrTooManySessions  = errors.New("too many open sessions")
	ErrNoModel          = errors.New("no fit model selected")
	ErrNoInitialGuess   = errors.New("no initial guess set")
	ErrNoResult         = errors.New("no fit result")
	ErrInvalidModelSpec = errors.New("invalid model specification")
)

// ResultStore persists fit results and edits. *store.Store implements it.
type ResultStore interface {
	SaveResult(ctx context.Context, sessionID, fileName string, r *fitting.Result) (string, error)
	ListResults(ctx context.Context, sessionID string, limit int) ([]store.ResultRecord, error)
	RecordEdit(ctx context.Context, e store.Edit) error
}

// Options configure a Service. Zero values disable the corresponding limit.
type Options struct {
	MaxSessions  int
	IdleTimeout  time.Duration
	HistoryLimit int
	Fit          fitting.Options
	FitTimeout   time.Duration
	Plot         plot.Config
}

// OptionsFromConfig maps the application configuration onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	pc := plot.DefaultConfig()
	pc.Width = vg.Length(cfg.Plot.WidthInches) * vg.Inch
	pc.Height = vg.Length(cfg.Plot.HeightInches) * vg.Inch
	pc.Samples = cfg.Plot.Samples
	pc.Grid = cfg.Plot.Grid
	pc.Legend = cfg.Plot.Legend

	return Options{
		MaxSessions:  cfg.Session.MaxSessions,
		IdleTimeout:  cfg.Session.IdleTimeout,
		HistoryLimit: cfg.Session.HistoryLimit,
		Fit: fitting.Options{
			Method:        fitting.Method(cfg.Fit.Method),
			MaxIterations: cfg.Fit.MaxIterations,
			Tolerance:     cfg.Fit.Tolerance,
		},
		FitTimeout: cfg.Fit.Timeout,
		Plot:       pc,
	}
}

// Service owns the open sessions. It is safe for concurrent use.
type Service struct {
	opts    Options
	store   ResultStore
	limiter *FitLimiter
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a service. st may be nil, in which case results and
// edits live only in memory.
func NewService(opts Options, st ResultStore, limiter *FitLimiter) *Service {
	if limiter == nil {
		limiter = NewFitLimiter(0, 0)
	}
	if opts.Plot.Samples == 0 {
		opts.Plot = plot.DefaultConfig()
	}
	return &Service{
		opts:     opts,
		store:    st,
		limiter:  limiter,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Limiter returns the fit limiter, for shutdown draining.
func (s *Service) Limiter() *FitLimiter { return s.limiter }

// StoreEnabled reports whether results are persisted.
func (s *Service) StoreEnabled() bool { return s.store != nil }

// session looks up id and marks it used.
func (s *Service) session(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch(s.now())
	return sess, nil
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

// Open parses a data file and starts a session on it. Roles are preselected
// from the column order and every row is selected.
func (s *Service) Open(ctx context.Context, name string, data []byte, sheet string) (State, error) {
	s.mu.RLock()
	full := s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions
	s.mu.RUnlock()
	if full {
		return State{}, ErrTooManySessions
	}

	start := time.Now()
	t, err := ingest.Load(ctx, name, data, sheet)
	if err != nil {
		return State{}, fmt.Errorf("load %s: %w", name, err)
	}
	d, err := dataset.New(t, dataset.WithDefaultRoles())
	if err != nil {
		return State{}, err
	}

	sess := newSession(name, d, s.now())

	s.mu.Lock()
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		s.mu.Unlock()
		sess.unsubscribe()
		return State{}, ErrTooManySessions
	}
	s.sessions[sess.ID.String()] = sess
	s.mu.Unlock()

	logging.FromContext(logging.WithSession(ctx, sess.ID.String())).Info("session opened",
		"file", name,
		"rows", t.RowCount(),
		"columns", t.ColumnCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sess.state(), nil
}

// Close ends a session.
func (s *Service) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.unsubscribe()
	logging.FromContext(logging.WithSession(ctx, id)).Info("session closed")
	return nil
}

// SessionCount returns the number of open sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// State returns a snapshot of a session.
func (s *Service) State(id string) (State, error) {
	sess, err := s.session(id)
	if err != nil {
		return State{}, err
	}
	return sess.state(), nil
}

// ---------------------------------------------------------------------------
// Dataset operations
// ---------------------------------------------------------------------------

// SetRole binds role to column; an empty column unbinds xerr or yerr.
func (s *Service) SetRole(ctx context.Context, id, role, column string) error {
	return s.mutate(ctx, id, "", func(d *dataset.Dataset) error {
		r, err := dataset.ParseRole(role)
		if err != nil {
			return err
		}
		return d.SetRole(r, column)
	})
}

// Select includes a row in the fit.
func (s *Service) Select(ctx context.Context, id string, row int) error {
	return s.mutate(ctx, id, "", func(d *dataset.Dataset) error { return d.Select(row) })
}

// Unselect excludes a row from the fit.
func (s *Service) Unselect(ctx context.Context, id string, row int) error {
	return s.mutate(ctx, id, "", func(d *dataset.Dataset) error { return d.Unselect(row) })
}

// SelectAll includes every row.
func (s *Service) SelectAll(ctx context.Context, id string) error {
	return s.mutate(ctx, id, "", func(d *dataset.Dataset) error { d.SelectAll(); return nil })
}

// UnselectAll excludes every row.
func (s *Service) UnselectAll(ctx context.Context, id string) error {
	return s.mutate(ctx, id, "", func(d *dataset.Dataset) error { d.UnselectAll(); return nil })
}

// SetMask replaces the selection.
func (s *Service) SetMask(ctx context.Context, id string, mask []bool) error {
	return s.mutate(ctx, id, ActionMask, func(d *dataset.Dataset) error { return d.SetMask(mask) })
}

// SetCell parses raw into a cell. On error the dataset is unchanged.
func (s *Service) SetCell(ctx context.Context, id string, row int, column, raw string) error {
	return s.mutate(ctx, id, "", func(d *dataset.Dataset) error { return d.SetCell(row, column, raw) })
}

// SetHeader renames a column.
func (s *Service) SetHeader(ctx context.Context, id, oldName, newName string) error {
	return s.mutate(ctx, id, "", func(d *dataset.Dataset) error { return d.SetHeader(oldName, newName) })
}

// mutate runs fn on the session's dataset and commits the edits it produced.
// Holding sess.edits across both keeps another request's entries out of this
// commit. fn must not take sess.mu: the dataset listener does.
func (s *Service) mutate(ctx context.Context, id string, relabel EditAction, fn func(*dataset.Dataset) error) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.edits.Lock()
	defer sess.edits.Unlock()
	if err := fn(sess.data); err != nil {
		return err
	}
	s.commitEdits(ctx, sess, relabel)
	return nil
}

// Records returns every row with its selection state.
func (s *Service) Records(id string) (Records, error) {
	sess, err := s.session(id)
	if err != nil {
		return Records{}, err
	}
	columns, rows := sess.data.Export(false)
	mask := sess.data.Mask()
	out := Records{
		Columns: columns,
		Roles:   sess.data.Roles(),
		Records: make([]Record, len(rows)),
	}
	for i, row := range rows {
		out.Records[i] = Record{Index: i, Values: row, Selected: i < len(mask) && mask[i]}
	}
	return out, nil
}

// ColumnStatistics pairs a column with its statistics.
type ColumnStatistics struct {
	Column string `json:"column"`
	dataset.Statistics
}

// Statistics summarises every column, over all rows or only the selected ones.
func (s *Service) Statistics(id string, selectedOnly bool) ([]ColumnStatistics, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	columns := sess.data.ColumnNames()
	out := make([]ColumnStatistics, 0, len(columns))
	for _, col := range columns {
		var st dataset.Statistics
		if selectedOnly {
			st, err = sess.data.SelectedStatistics(col)
		} else {
			st, err = sess.data.Statistics(col)
		}
		if err != nil {
			return nil, fmt.Errorf("statistics of %q: %w", col, err)
		}
		out = append(out, ColumnStatistics{Column: col, Statistics: st})
	}
	return out, nil
}

// DataView is the masked fitting arrays with their x domain.
type DataView struct {
	dataset.Data
	Domain dataset.Interval `json:"domain"`
}

// Data returns the arrays a fit would use.
func (s *Service) Data(id string) (DataView, error) {
	sess, err := s.session(id)
	if err != nil {
		return DataView{}, err
	}
	return dataView(sess)
}

func dataView(sess *Session) (DataView, error) {
	d, err := sess.data.FittingData()
	if err != nil {
		return DataView{}, err
	}
	domain, err := sess.data.XDomain()
	if err != nil {
		return DataView{}, err
	}
	return DataView{Data: d, Domain: domain}, nil
}

// Export writes the table as CSV, either every row or only the selected ones.
func (s *Service) Export(id string, selectedOnly bool, w io.Writer) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	columns, rows := sess.data.Export(selectedOnly)
	return ingest.WriteCSV(w, columns, rows)
}

// ---------------------------------------------------------------------------
// Models and fitting
// ---------------------------------------------------------------------------

// Models lists the built-in models.
func (s *Service) Models() []ModelInfo {
	all := fitting.All()
	out := make([]ModelInfo, len(all))
	for i, m := range all {
		out[i] = modelInfo(m)
	}
	return out
}

// ModelSpec selects a model: a registered name, "polynomial" with a degree,
// or an expression with its parameter count.
type ModelSpec struct {
	Name       string `json:"name"`
	Degree     int    `json:"degree,omitempty"`
	Expression string `json:"expression,omitempty"`
	NumParams  int    `json:"numParams,omitempty"`
}

func (ms ModelSpec) resolve() (fitting.Model, error) {
	if ms.Expression != "" {
		name := ms.Name
		if name == "" {
			name = "custom"
		}
		return fitting.Compile(name, ms.Expression, ms.NumParams)
	}
	if ms.Name == "" {
		return fitting.Model{}, fmt.Errorf("%w: name or expression required", ErrInvalidModelSpec)
	}
	return fitting.Resolve(ms.Name, ms.Degree)
}

// SetModel selects the fit model. The initial guess and last result are cleared.
func (s *Service) SetModel(ctx context.Context, id string, spec ModelSpec) (ModelInfo, error) {
	sess, err := s.session(id)
	if err != nil {
		return ModelInfo{}, err
	}
	m, err := spec.resolve()
	if err != nil {
		return ModelInfo{}, err
	}

	sess.mu.Lock()
	sess.model = &m
	sess.a0 = nil
	sess.resetFitLocked()
	sess.mu.Unlock()

	logging.FromContext(logging.WithSession(ctx, id)).Debug("model selected", "model", m.Name, "params", m.NumParams)
	return modelInfo(m), nil
}

// SetInitialGuess sets the starting parameters. nil restores the default of all ones.
func (s *Service) SetInitialGuess(ctx context.Context, id string, a0 []float64) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.model == nil {
		return ErrNoModel
	}
	if a0 != nil {
		if err := sess.model.CheckParams(a0); err != nil {
			return err
		}
		a0 = append([]float64(nil), a0...)
	}
	sess.a0 = a0
	sess.resetFitLocked()
	return nil
}

// Fit runs the selected model over the selected rows. The result is kept as
// the session's current result unless the dataset or model changed while
// the fit ran.
func (s *Service) Fit(ctx context.Context, id string) (*fitting.Result, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.model == nil {
		sess.mu.Unlock()
		return nil, ErrNoModel
	}
	m := *sess.model
	a0 := sess.initialGuessLocked()
	gen := sess.generation
	sess.mu.Unlock()

	data, err := sess.data.FittingData()
	if err != nil {
		return nil, err
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	fitCtx := ctx
	if s.opts.FitTimeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, s.opts.FitTimeout)
		defer cancel()
	}

	logger := logging.WithFields(logging.WithSession(ctx, id), "model", m.Name)
	start := time.Now()
	res, err := fitting.Fit(fitCtx, data, m, a0, s.opts.Fit)
	if err != nil {
		logger.Warn("fit failed", "points", data.Len(), "error", err)
		return nil, err
	}
	logger.Info("fit completed",
		"points", res.NumPoints,
		"chi2_reduced", res.ChiSquaredReduced,
		"iterations", res.Iterations,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	sess.mu.Lock()
	stale := gen != sess.generation
	if !stale {
		sess.result = res
	}
	sess.results = append(sess.results, res)
	if over := len(sess.results) - maxSessionResults; over > 0 {
		sess.results = append([]*fitting.Result(nil), sess.results[over:]...)
	}
	sess.mu.Unlock()
	if stale {
		logger.Debug("session changed during fit, result not kept as current")
	}

	if s.store != nil {
		if _, err := s.store.SaveResult(ctx, id, sess.FileName, res); err != nil {
			logger.Warn("save fit result failed", "error", err)
		}
	}
	return res, nil
}

// Result returns the session's current fit result.
func (s *Service) Result(id string) (*fitting.Result, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.result == nil {
		return nil, ErrNoResult
	}
	return sess.result, nil
}

// Results lists past fits of a session, newest first. They come from the
// store when one is configured and from memory otherwise.
func (s *Service) Results(ctx context.Context, id string, limit int) ([]store.ResultRecord, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		return s.store.ListResults(ctx, id, limit)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]store.ResultRecord, 0, len(sess.results))
	for i := len(sess.results) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, store.ResultRecord{
			SessionID: id,
			FileName:  sess.FileName,
			Result:    sess.results[i],
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Plots
// ---------------------------------------------------------------------------

// Plot renders one figure of a session in format (png, svg, pdf, ...).
// opts overrides the default title and labels; a custom x domain replaces the
// data's domain for the drawn curves.
func (s *Service) Plot(id string, kind plot.Kind, format string, opts plot.Options) ([]byte, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	view, err := dataView(sess)
	if err != nil {
		return nil, err
	}

	cfg := s.opts.Plot
	roles := sess.data.Roles()
	cfg.XLabel, cfg.YLabel = roles.X, roles.Y

	sess.mu.Lock()
	var (
		m      fitting.Model
		hasM   = sess.model != nil
		a0     = append([]float64(nil), sess.a0...)
		result = sess.result
	)
	if hasM {
		m = *sess.model
	}
	sess.mu.Unlock()

	domain, err := opts.Domain(view.Domain)
	if err != nil {
		return nil, err
	}

	// A result is cleared whenever the model changes, so it was produced by m.
	var p *gplot.Plot
	switch kind {
	case plot.KindData:
		cfg.Title = sess.FileName
		p, err = plot.Data(view.Data, opts.Apply(cfg))
	case plot.KindInitialGuess:
		if !hasM {
			return nil, ErrNoModel
		}
		if len(a0) == 0 {
			return nil, ErrNoInitialGuess
		}
		cfg.Title = "Initial guess: " + m.Name
		p, err = plot.InitialGuess(view.Data, domain, m, a0, opts.Apply(cfg))
	case plot.KindFit:
		if result == nil {
			return nil, ErrNoResult
		}
		cfg.Title = "Fit: " + m.Name
		p, err = plot.Fit(view.Data, domain, m, result.A, opts.Apply(cfg))
	case plot.KindResiduals:
		if result == nil {
			return nil, ErrNoResult
		}
		cfg.Title = "Residuals: " + m.Name
		p, err = plot.Residuals(view.Data, domain, m, result.A, opts.Apply(cfg))
	default:
		return nil, fmt.Errorf("unknown plot kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return plot.Render(p, cfg, format)
}
