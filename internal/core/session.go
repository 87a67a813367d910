package core

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/fitting"
)

// maxSessionResults caps the in-memory result list kept when no store is configured.
const maxSessionResults = 50

// Session is one loaded data file and the fitting state built on it.
type Session struct {
	ID       uuid.UUID
	FileName string
	Created  time.Time

	data        *dataset.Dataset
	unsubscribe func()

	// edits serializes dataset mutations with the commit of their entries.
	edits sync.Mutex

	mu         sync.Mutex
	model      *fitting.Model
	a0         []float64
	result     *fitting.Result
	results    []*fitting.Result
	generation uint64
	pending    []EditEntry
	history    []EditEntry
	lastUsed   time.Time
}

func newSession(name string, d *dataset.Dataset, now time.Time) *Session {
	sess := &Session{
		ID:       uuid.New(),
		FileName: name,
		Created:  now,
		data:     d,
		lastUsed: now,
	}
	sess.unsubscribe = d.Subscribe(sess.onDatasetChanged)
	return sess
}

// onDatasetChanged runs synchronously inside every dataset mutation. Any
// change to the data invalidates the last fit.
func (sess *Session) onDatasetChanged(ev dataset.Event) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.generation++
	sess.result = nil
	sess.pending = append(sess.pending, entryFromEvent(ev, time.Now().UTC()))
}

// resetFitLocked forgets the last fit. Caller holds sess.mu.
func (sess *Session) resetFitLocked() {
	sess.generation++
	sess.result = nil
}

func (sess *Session) touch(now time.Time) {
	sess.mu.Lock()
	sess.lastUsed = now
	sess.mu.Unlock()
}

func (sess *Session) idleSince() time.Time {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.lastUsed
}

// initialGuessLocked returns the initial guess, defaulting to all ones.
func (sess *Session) initialGuessLocked() []float64 {
	if sess.a0 != nil {
		return append([]float64(nil), sess.a0...)
	}
	a0 := make([]float64, sess.model.NumParams)
	for i := range a0 {
		a0[i] = 1
	}
	return a0
}

// ModelInfo describes a fit model.
type ModelInfo struct {
	Name      string `json:"name"`
	Syntax    string `json:"syntax"`
	NumParams int    `json:"numParams"`
}

func modelInfo(m fitting.Model) ModelInfo {
	return ModelInfo{Name: m.Name, Syntax: m.Syntax, NumParams: m.NumParams}
}

// State is a snapshot of a session.
type State struct {
	ID           string           `json:"id"`
	FileName     string           `json:"fileName"`
	Columns      []string         `json:"columns"`
	Rows         int              `json:"rows"`
	Selected     int              `json:"selected"`
	Roles        dataset.Bindings `json:"roles"`
	Usable       bool             `json:"usableForFitting"`
	Model        *ModelInfo       `json:"model,omitempty"`
	InitialGuess []float64        `json:"initialGuess,omitempty"`
	Result       *fitting.Result  `json:"result,omitempty"`
	Created      time.Time        `json:"created"`
	LastUsed     time.Time        `json:"lastUsed"`
}

func (sess *Session) state() State {
	st := State{
		ID:       sess.ID.String(),
		FileName: sess.FileName,
		Columns:  sess.data.ColumnNames(),
		Rows:     sess.data.RowCount(),
		Selected: sess.data.SelectedCount(),
		Roles:    sess.data.Roles(),
		Usable:   sess.data.UsableForFitting(),
		Created:  sess.Created,
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.model != nil {
		info := modelInfo(*sess.model)
		st.Model = &info
	}
	st.InitialGuess = append([]float64(nil), sess.a0...)
	st.Result = sess.result
	st.LastUsed = sess.lastUsed
	return st
}

// Record is one row of a session's table.
type Record struct {
	Index    int       `json:"index"`
	Values   []float64 `json:"values"`
	Selected bool      `json:"selected"`
}

// Records is the table view of a session.
type Records struct {
	Columns []string         `json:"columns"`
	Roles   dataset.Bindings `json:"roles"`
	Records []Record         `json:"records"`
}
