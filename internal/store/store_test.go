package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/curvefit/internal/fitting"
)

type execCall struct {
	sql  string
	args []interface{}
}

type fakeDB struct {
	execs   []execCall
	execErr error
	rows    *fakeRows
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return f.rows, nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

type fakeRows struct {
	data   [][]interface{}
	pos    int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *pgtype.UUID:
			*p = row[i].(pgtype.UUID)
		case *string:
			*p = row[i].(string)
		case *[]byte:
			*p = row[i].([]byte)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}

func sampleResult() *fitting.Result {
	return &fitting.Result{
		Model:            "linear",
		Syntax:           "a[0] * x + a[1]",
		A:                []float64{2, 1},
		AErr:             []float64{0.1, 0.2},
		ChiSquared:       3.5,
		DegreesOfFreedom: 3,
		PValue:           0.32,
		NumPoints:        5,
	}
}

func TestSaveResult(t *testing.T) {
	db := &fakeDB{}
	s := New(db)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	session := uuid.NewString()
	id, err := s.SaveResult(context.Background(), session, "data.csv", sampleResult())
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("SaveResult id %q is not a UUID: %v", id, err)
	}

	if len(db.execs) != 1 {
		t.Fatalf("Exec calls = %d, want 1", len(db.execs))
	}
	call := db.execs[0]
	if !strings.Contains(call.sql, "INSERT INTO fit_results") {
		t.Errorf("sql = %q, want insert into fit_results", call.sql)
	}
	if got := call.args[1].(pgtype.UUID); uuidString(got) != session {
		t.Errorf("session arg = %s, want %s", uuidString(got), session)
	}
	if got := call.args[3]; got != "linear" {
		t.Errorf("model arg = %v, want linear", got)
	}
	if got := call.args[12].(time.Time); !got.Equal(fixed) {
		t.Errorf("created_at arg = %v, want %v", got, fixed)
	}
}

func TestSaveResultInvalidSession(t *testing.T) {
	db := &fakeDB{}
	_, err := New(db).SaveResult(context.Background(), "not-a-uuid", "x.csv", sampleResult())
	if err == nil {
		t.Fatal("SaveResult with invalid session id: expected error")
	}
	if len(db.execs) != 0 {
		t.Errorf("Exec calls = %d, want 0", len(db.execs))
	}
}

func TestSaveResultExecError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection reset")}
	_, err := New(db).SaveResult(context.Background(), uuid.NewString(), "x.csv", sampleResult())
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("SaveResult error = %v, want wrapped connection reset", err)
	}
}

func TestListResults(t *testing.T) {
	want := sampleResult()
	report, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()
	session := uuid.New()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := &fakeRows{data: [][]interface{}{{
		pgtype.UUID{Bytes: id, Valid: true},
		pgtype.UUID{Bytes: session, Valid: true},
		"data.csv",
		report,
		created,
	}}}
	s := New(&fakeDB{rows: rows})

	got, err := s.ListResults(context.Background(), session.String(), 0)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if !rows.closed {
		t.Error("rows were not closed")
	}
	if len(got) != 1 {
		t.Fatalf("ListResults returned %d records, want 1", len(got))
	}
	rec := got[0]
	if rec.ID != id.String() || rec.SessionID != session.String() {
		t.Errorf("ids = (%s, %s), want (%s, %s)", rec.ID, rec.SessionID, id, session)
	}
	if diff := cmp.Diff(want, rec.Result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordEdit(t *testing.T) {
	db := &fakeDB{}
	row := 4
	err := New(db).RecordEdit(context.Background(), Edit{
		SessionID: uuid.NewString(),
		Action:    "cell",
		Row:       &row,
		Column:    "y",
		OldValue:  "1.5",
		NewValue:  "2.5",
	})
	if err != nil {
		t.Fatalf("RecordEdit: %v", err)
	}
	args := db.execs[0].args
	if got := args[3].(pgtype.Int4); !got.Valid || got.Int32 != 4 {
		t.Errorf("row arg = %+v, want 4", got)
	}
	if got := args[5].(pgtype.Text); got.String != "1.5" {
		t.Errorf("old value arg = %+v, want 1.5", got)
	}
}

func TestRecordEditWithoutRow(t *testing.T) {
	db := &fakeDB{}
	err := New(db).RecordEdit(context.Background(), Edit{
		SessionID: uuid.NewString(),
		Action:    "select_all",
	})
	if err != nil {
		t.Fatalf("RecordEdit: %v", err)
	}
	args := db.execs[0].args
	if got := args[3].(pgtype.Int4); got.Valid {
		t.Errorf("row arg = %+v, want NULL", got)
	}
	if got := args[4].(pgtype.Text); got.Valid {
		t.Errorf("column arg = %+v, want NULL", got)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := New(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS dataset_edits") {
		t.Error("schema does not create dataset_edits")
	}
}
