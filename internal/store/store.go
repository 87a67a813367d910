// Package store persists fit results and dataset edit history in PostgreSQL.
// It is optional: the server runs without it when no database is configured.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/curvefit/internal/fitting"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store reads and writes results and edits.
type Store struct {
	db  DBTX
	now func() time.Time
}

// New creates a store over db.
func New(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

const schema = `
CREATE TABLE IF NOT EXISTS fit_results (
	id          UUID PRIMARY KEY,
	session_id  UUID NOT NULL,
	file_name   TEXT NOT NULL,
	model       TEXT NOT NULL,
	syntax      TEXT NOT NULL,
	a           DOUBLE PRECISION[] NOT NULL,
	aerr        DOUBLE PRECISION[] NOT NULL,
	chi2        DOUBLE PRECISION NOT NULL,
	dof         INTEGER NOT NULL,
	p_value     DOUBLE PRECISION NOT NULL,
	num_points  INTEGER NOT NULL,
	report      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS fit_results_session_idx ON fit_results (session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS dataset_edits (
	id          UUID PRIMARY KEY,
	session_id  UUID NOT NULL,
	action      TEXT NOT NULL,
	row_index   INTEGER,
	column_name TEXT,
	old_value   TEXT,
	new_value   TEXT,
	client_ip   TEXT,
	user_agent  TEXT,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS dataset_edits_session_idx ON dataset_edits (session_id, created_at);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ResultRecord is a stored fit result.
type ResultRecord struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	FileName  string          `json:"fileName"`
	Result    *fitting.Result `json:"result"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SaveResult stores a fit result and returns its ID.
func (s *Store) SaveResult(ctx context.Context, sessionID, fileName string, r *fitting.Result) (string, error) {
	sid, err := toPgUUID(sessionID)
	if err != nil {
		return "", err
	}
	report, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	id := uuid.New()
	_, err = s.db.Exec(ctx, `
		INSERT INTO fit_results
			(id, session_id, file_name, model, syntax, a, aerr, chi2, dof, p_value, num_points, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		pgtype.UUID{Bytes: id, Valid: true}, sid, fileName, r.Model, r.Syntax,
		r.A, r.AErr, r.ChiSquared, r.DegreesOfFreedom, r.PValue, r.NumPoints,
		report, s.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert fit result: %w", err)
	}
	return id.String(), nil
}

// ListResults returns the most recent results of a session, newest first.
func (s *Store) ListResults(ctx context.Context, sessionID string, limit int) ([]ResultRecord, error) {
	sid, err := toPgUUID(sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, file_name, report, created_at
		FROM fit_results
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, sid, limit)
	if err != nil {
		return nil, fmt.Errorf("query fit results: %w", err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var (
			id, session pgtype.UUID
			rec         ResultRecord
			report      []byte
		)
		if err := rows.Scan(&id, &session, &rec.FileName, &report, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fit result: %w", err)
		}
		rec.ID = uuidString(id)
		rec.SessionID = uuidString(session)
		rec.Result = &fitting.Result{}
		if err := json.Unmarshal(report, rec.Result); err != nil {
			return nil, fmt.Errorf("decode fit result %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Edit is one recorded change to a session's dataset.
type Edit struct {
	SessionID string
	Action    string
	Row       *int
	Column    string
	OldValue  string
	NewValue  string
	ClientIP  string
	UserAgent string
}

// RecordEdit stores an edit.
func (s *Store) RecordEdit(ctx context.Context, e Edit) error {
	sid, err := toPgUUID(e.SessionID)
	if err != nil {
		return err
	}

	var row pgtype.Int4
	if e.Row != nil {
		row = pgtype.Int4{Int32: int32(*e.Row), Valid: true}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO dataset_edits
			(id, session_id, action, row_index, column_name, old_value, new_value, client_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pgtype.UUID{Bytes: uuid.New(), Valid: true}, sid, e.Action, row,
		toPgText(e.Column), toPgText(e.OldValue), toPgText(e.NewValue),
		toPgText(e.ClientIP), toPgText(e.UserAgent), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert edit: %w", err)
	}
	return nil
}

func toPgUUID(s string) (pgtype.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid session id %q: %w", s, err)
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

func uuidString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
