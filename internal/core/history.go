package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/curvefit/internal/dataset"
	"github.com/JonMunkholm/curvefit/internal/store"
	"github.com/JonMunkholm/curvefit/internal/table"
)

// EditAction names the kind of change recorded in a session's history.
type EditAction string

const (
	ActionRole        EditAction = "role"
	ActionSelect      EditAction = "select"
	ActionUnselect    EditAction = "unselect"
	ActionSelectAll   EditAction = "select_all"
	ActionUnselectAll EditAction = "unselect_all"
	ActionMask        EditAction = "mask"
	ActionCellEdit    EditAction = "cell_edit"
	ActionRename      EditAction = "rename"
)

// EditEntry is one applied change to a session's dataset.
type EditEntry struct {
	Action    EditAction `json:"action"`
	Row       *int       `json:"row,omitempty"`
	Role      string     `json:"role,omitempty"`
	Column    string     `json:"column,omitempty"`
	OldValue  string     `json:"oldValue,omitempty"`
	NewValue  string     `json:"newValue,omitempty"`
	ClientIP  string     `json:"clientIp,omitempty"`
	UserAgent string     `json:"userAgent,omitempty"`
	At        time.Time  `json:"at"`
}

func entryFromEvent(ev dataset.Event, at time.Time) EditEntry {
	e := EditEntry{At: at}
	if ev.Row >= 0 {
		row := ev.Row
		e.Row = &row
	}

	switch ev.Kind {
	case dataset.EventRolesChanged:
		e.Action = ActionRole
		e.Role = ev.Role.String()
		e.NewValue = ev.Column
	case dataset.EventMaskChanged:
		switch {
		case ev.Row >= 0 && ev.Selected:
			e.Action = ActionSelect
		case ev.Row >= 0:
			e.Action = ActionUnselect
		case ev.Selected:
			e.Action = ActionSelectAll
		default:
			// SetMask also reports Selected=false; SetMask relabels it.
			e.Action = ActionUnselectAll
		}
	case dataset.EventCellChanged:
		e.Action = ActionCellEdit
		e.Column = ev.Column
		e.OldValue = table.FormatNumber(ev.OldValue)
		e.NewValue = table.FormatNumber(ev.NewValue)
	case dataset.EventHeaderChanged:
		e.Action = ActionRename
		e.OldValue = ev.OldColumn
		e.NewValue = ev.Column
		e.Column = ev.Column
	}
	return e
}

// commitEdits moves the entries queued by the dataset listener into the
// history, stamped with the caller from ctx, and persists them when a store
// is configured. A non-empty relabel replaces the action of every queued
// entry. Persistence failures are logged, never returned: the edit has
// already been applied.
func (s *Service) commitEdits(ctx context.Context, sess *Session, relabel EditAction) {
	sess.mu.Lock()
	pending := sess.pending
	sess.pending = nil
	ip, ua := ClientIPFromContext(ctx), UserAgentFromContext(ctx)
	for i := range pending {
		if relabel != "" {
			pending[i].Action = relabel
		}
		pending[i].ClientIP = ip
		pending[i].UserAgent = ua
	}
	sess.history = append(sess.history, pending...)
	if over := len(sess.history) - s.opts.HistoryLimit; s.opts.HistoryLimit > 0 && over > 0 {
		sess.history = append([]EditEntry(nil), sess.history[over:]...)
	}
	sess.mu.Unlock()

	if s.store == nil {
		return
	}
	for _, e := range pending {
		err := s.store.RecordEdit(ctx, store.Edit{
			SessionID: sess.ID.String(),
			Action:    string(e.Action),
			Row:       e.Row,
			Column:    firstNonEmpty(e.Column, e.Role),
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			ClientIP:  e.ClientIP,
			UserAgent: e.UserAgent,
		})
		if err != nil {
			slog.Warn("record edit failed",
				"session_id", sess.ID.String(),
				"action", e.Action,
				"error", err,
			)
		}
	}
}

// History returns a copy of the session's edit history, oldest first.
func (s *Service) History(id string) ([]EditEntry, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]EditEntry(nil), sess.history...), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
