package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB records statements and serves canned rows.
type fakeDB struct {
	execs   []execCall
	execErr error
	rows    *fakeRows
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return f.rows, nil
}

// fakeRows implements pgx.Rows over prepared values.
type fakeRows struct {
	pgx.Rows
	data   [][]any
	i      int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = row[i].(uuid.UUID)
		case *string:
			*p = row[i].(string)
		case **string:
			if row[i] != nil {
				s := row[i].(string)
				*p = &s
			}
		case *int:
			*p = row[i].(int)
		case *int64:
			*p = row[i].(int64)
		case *[]byte:
			*p = row[i].([]byte)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     { r.closed = true }

func TestPgRecorder_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewPgRecorder(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS upload_audit")

	db.execErr = errors.New("permission denied")
	assert.ErrorContains(t, NewPgRecorder(db).EnsureSchema(context.Background()), "permission denied")
}

func TestPgRecorder_Record(t *testing.T) {
	db := &fakeDB{}
	rec := NewPgRecorder(db)
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	e, err := rec.Record(context.Background(), Entry{
		Action:     ActionSave,
		Path:       "/api/upload",
		RemoteAddr: "10.0.0.1",
		FieldCount: 2,
		Files: []File{
			{Field: "a", Filename: "a.png", Filepath: "/tmp/x/a.png", Mime: "image/png", Size: 10},
			{Field: "b", Filename: "b.json", Filepath: "/tmp/x/b.json", Mime: "application/json", Size: 5},
		},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, now, e.CreatedAt)
	assert.Equal(t, int64(15), e.TotalBytes)

	require.Len(t, db.execs, 1)
	call := db.execs[0]
	assert.True(t, strings.Contains(call.sql, "INSERT INTO upload_audit"))
	require.Len(t, call.args, 10)
	assert.Equal(t, e.ID, call.args[0])
	assert.Equal(t, "save", call.args[1])
	assert.Nil(t, call.args[2], "empty request id is stored as NULL")
	assert.Equal(t, "/api/upload", call.args[3])

	var files []File
	require.NoError(t, json.Unmarshal(call.args[7].([]byte), &files))
	assert.Equal(t, e.Files, files)
}

func TestPgRecorder_RecordError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}
	_, err := NewPgRecorder(db).Record(context.Background(), Entry{Action: ActionSave, Path: "/"})
	assert.ErrorContains(t, err, "insert audit entry")
	assert.ErrorContains(t, err, "connection refused")
}

func TestPgRecorder_Recent(t *testing.T) {
	id := uuid.New()
	created := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	rows := &fakeRows{data: [][]any{{
		id, "inspect", "req-1", "/api/inspect", nil, "curl/8",
		1, []byte(`[{"field":"f","filename":"a.png","filepath":"/t/a.png","mime":"image/png","size":3}]`),
		int64(3), created,
	}}}
	db := &fakeDB{rows: rows}

	entries, err := NewPgRecorder(db).Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, rows.closed)

	e := entries[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, ActionInspect, e.Action)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "", e.RemoteAddr)
	assert.Equal(t, "curl/8", e.UserAgent)
	assert.Equal(t, []File{{Field: "f", Filename: "a.png", Filepath: "/t/a.png", Mime: "image/png", Size: 3}}, e.Files)
	assert.Equal(t, created, e.CreatedAt)
}

func TestNop(t *testing.T) {
	var rec Recorder = Nop{}
	e, err := rec.Record(context.Background(), Entry{Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, "/x", e.Path)

	entries, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
