package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/curvefit/internal/core"
	"github.com/JonMunkholm/curvefit/internal/logging"
	"github.com/JonMunkholm/curvefit/internal/plot"
	"github.com/JonMunkholm/curvefit/internal/web/templates"
)

// maxJSONBody bounds request bodies other than uploads.
const maxJSONBody = 1 << 20

func sessionID(r *http.Request) string { return chi.URLParam(r, "id") }

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func rowParam(r *http.Request) (int, error) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil {
		return 0, fmt.Errorf("%w: row must be an integer", errBadRequest)
	}
	return row, nil
}

// ---------------------------------------------------------------------------
// Pages
// ---------------------------------------------------------------------------

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(s.service.SessionCount()).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render index", "error", err)
	}
}

func (s *Server) handleRecordsPage(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	st, err := s.service.State(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	recs, err := s.service.Records(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	query := r.URL.Query()
	opts, err := plot.ParseOptions(query)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	var buf bytes.Buffer
	fig := templates.NewFigureParams(st, opts, query)
	if err := templates.Records(st, recs, fig).Render(r.Context(), &buf); err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": s.service.SessionCount(),
		"fits":     s.service.Limiter().Status(),
		"store":    s.service.StoreEnabled(),
	})
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Models())
}

// handleOpenSession accepts a multipart upload with a "file" part and an
// optional "sheet" field.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		respondError(w, r, err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err))
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		respondError(w, r, &http.MaxBytesError{Limit: maxSize})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	st, err := s.service.Open(r.Context(), header.Filename, data, r.FormValue("sheet"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+st.ID)
	writeJSONStatus(w, http.StatusCreated, st)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.State(sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Close(r.Context(), sessionID(r)); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondState answers a mutation with the new session state.
func (s *Server) respondState(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.handleGetSession(w, r)
}

// ---------------------------------------------------------------------------
// Roles, selection and edits
// ---------------------------------------------------------------------------

type setRoleRequest struct {
	Column string `json:"column"`
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	err := s.service.SetRole(r.Context(), sessionID(r), chi.URLParam(r, "role"), req.Column)
	s.respondState(w, r, err)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.Records(sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	row, err := rowParam(r)
	if err == nil {
		err = s.service.Select(r.Context(), sessionID(r), row)
	}
	s.respondState(w, r, err)
}

func (s *Server) handleUnselect(w http.ResponseWriter, r *http.Request) {
	row, err := rowParam(r)
	if err == nil {
		err = s.service.Unselect(r.Context(), sessionID(r), row)
	}
	s.respondState(w, r, err)
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, r, s.service.SelectAll(r.Context(), sessionID(r)))
}

func (s *Server) handleUnselectAll(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, r, s.service.UnselectAll(r.Context(), sessionID(r)))
}

type setMaskRequest struct {
	Mask []bool `json:"mask"`
}

func (s *Server) handleSetMask(w http.ResponseWriter, r *http.Request) {
	var req setMaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	s.respondState(w, r, s.service.SetMask(r.Context(), sessionID(r), req.Mask))
}

type setCellRequest struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

func (s *Server) handleSetCell(w http.ResponseWriter, r *http.Request) {
	var req setCellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	s.respondState(w, r, s.service.SetCell(r.Context(), sessionID(r), req.Row, req.Column, req.Value))
}

type setHeaderRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func (s *Server) handleSetHeader(w http.ResponseWriter, r *http.Request) {
	var req setHeaderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	s.respondState(w, r, s.service.SetHeader(r.Context(), sessionID(r), req.Old, req.New))
}

// ---------------------------------------------------------------------------
// Derived data
// ---------------------------------------------------------------------------

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	selected := r.URL.Query().Get("selected") == "true"
	stats, err := s.service.Statistics(sessionID(r), selected)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Data(sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	selected := r.URL.Query().Get("selected") == "true"

	var buf bytes.Buffer
	if err := s.service.Export(sessionID(r), selected, &buf); err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="data.csv"`)
	_, _ = buf.WriteTo(w)
}

// ---------------------------------------------------------------------------
// Fitting
// ---------------------------------------------------------------------------

func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var spec core.ModelSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		respondError(w, r, err)
		return
	}
	info, err := s.service.SetModel(r.Context(), sessionID(r), spec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, info)
}

type initialGuessRequest struct {
	A0 []float64 `json:"a0"`
}

func (s *Server) handleSetInitialGuess(w http.ResponseWriter, r *http.Request) {
	var req initialGuessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	s.respondState(w, r, s.service.SetInitialGuess(r.Context(), sessionID(r), req.A0))
}

func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Fit(r.Context(), sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Result(sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = res.WriteText(w)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		limit = n
	}
	recs, err := s.service.Results(r.Context(), sessionID(r), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.service.History(sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, h)
}

var plotContentTypes = map[string]string{
	"png":  "image/png",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"eps":  "application/postscript",
}

// handlePlot renders a figure. Query parameters title, xlabel, ylabel, grid,
// legend, xmin, xmax, xlog and ylog override the figure defaults. The ETag is
// a hash of the bytes, so an unchanged session answers conditional requests
// with 304.
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	kind, err := plot.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	format := chi.URLParam(r, "format")
	contentType, ok := plotContentTypes[format]
	if !ok {
		respondError(w, r, fmt.Errorf("%w: unsupported plot format %q", errBadRequest, format))
		return
	}

	opts, err := plot.ParseOptions(r.URL.Query())
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	img, err := s.service.Plot(sessionID(r), kind, format, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}

	etag := `"` + strconv.FormatUint(xxhash.Sum64(img), 16) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(img)
}

