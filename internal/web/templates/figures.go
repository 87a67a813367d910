package templates

import (
	"net/url"
	"strconv"

	"github.com/JonMunkholm/curvefit/internal/core"
	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/plot"
)

// FigureParams fills the plot configuration form and the image links of the
// records page.
type FigureParams struct {
	SessionID string
	Kinds     []plot.Kind
	Query     string // forwarded to every image URL

	Title  string
	XLabel string
	YLabel string
	XMin   string
	XMax   string
	Grid   bool
	Legend bool
	XLog   bool
	YLog   bool
}

// NewFigureParams lists the figures st can draw and echoes opts back into the
// form. query holds the parameters opts was parsed from.
func NewFigureParams(st core.State, opts plot.Options, query url.Values) FigureParams {
	p := FigureParams{
		SessionID: st.ID,
		Kinds:     []plot.Kind{plot.KindData},
		Query:     query.Encode(),
		Title:     opts.Title,
		XLabel:    opts.XLabel,
		YLabel:    opts.YLabel,
		Grid:      opts.Grid == nil || *opts.Grid,
		Legend:    opts.Legend == nil || *opts.Legend,
		XLog:      opts.XLog,
		YLog:      opts.YLog,
	}
	if opts.XMin != nil {
		p.XMin = strconv.FormatFloat(*opts.XMin, 'g', -1, 64)
	}
	if opts.XMax != nil {
		p.XMax = strconv.FormatFloat(*opts.XMax, 'g', -1, 64)
	}
	if st.Model != nil && len(st.InitialGuess) > 0 {
		p.Kinds = append(p.Kinds, plot.KindInitialGuess)
	}
	if st.Result != nil {
		p.Kinds = append(p.Kinds, plot.KindFit, plot.KindResiduals)
	}
	return p
}

// Src is the image URL of one figure.
func (p FigureParams) Src(kind plot.Kind) string {
	u := "/api/sessions/" + url.PathEscape(p.SessionID) + "/plots/" + string(kind) + ".svg"
	if p.Query != "" {
		u += "?" + p.Query
	}
	return u
}

// columnRoles maps each bound column to its role name.
func columnRoles(b dataset.Bindings) map[string]string {
	roles := make(map[string]string, 4)
	for role, col := range map[string]string{
		"x": b.X, "xerr": b.XErr, "y": b.Y, "yerr": b.YErr,
	} {
		if col != "" {
			roles[col] = role
		}
	}
	return roles
}
