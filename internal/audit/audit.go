// Package audit records which uploads were saved, by whom and where the
// files went. Records are written to PostgreSQL when a database is
// configured; otherwise a no-op recorder is used.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Action is the ingestion operation being recorded.
type Action string

const (
	ActionSave    Action = "save"
	ActionInspect Action = "inspect"
)

// File is one saved file of an upload.
type File struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
	Mime     string `json:"mime"`
	Size     int64  `json:"size"`
}

// Entry is one audited upload.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Action     Action    `json:"action"`
	RequestID  string    `json:"requestId,omitempty"`
	Path       string    `json:"path"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	FieldCount int       `json:"fieldCount"`
	Files      []File    `json:"files"`
	TotalBytes int64     `json:"totalBytes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recorder stores audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) (Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// DB is the subset of *pgxpool.Pool used by PgRecorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS upload_audit (
	id          UUID PRIMARY KEY,
	action      TEXT NOT NULL,
	request_id  TEXT,
	path        TEXT NOT NULL,
	remote_addr TEXT,
	user_agent  TEXT,
	field_count INTEGER NOT NULL,
	files       JSONB NOT NULL,
	total_bytes BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS upload_audit_created_at_idx ON upload_audit (created_at DESC);
`

const insertEntry = `
INSERT INTO upload_audit
	(id, action, request_id, path, remote_addr, user_agent, field_count, files, total_bytes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const selectRecent = `
SELECT id, action, request_id, path, remote_addr, user_agent, field_count, files, total_bytes, created_at
FROM upload_audit
ORDER BY created_at DESC
LIMIT $1`

// DefaultRecentLimit caps Recent when the caller passes no limit.
const DefaultRecentLimit = 50

// PgRecorder writes audit entries to the upload_audit table.
type PgRecorder struct {
	db  DB
	now func() time.Time
}

// NewPgRecorder creates a recorder on db.
func NewPgRecorder(db DB) *PgRecorder {
	return &PgRecorder{db: db, now: time.Now}
}

// EnsureSchema creates the audit table when it does not exist.
func (p *PgRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Record inserts e. Missing ID and CreatedAt are filled in and the stored
// entry is returned.
func (p *PgRecorder) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = p.now().UTC()
	}
	if e.Files == nil {
		e.Files = []File{}
	}
	e.TotalBytes = 0
	for _, f := range e.Files {
		e.TotalBytes += f.Size
	}

	files, err := json.Marshal(e.Files)
	if err != nil {
		return Entry{}, fmt.Errorf("encode audit files: %w", err)
	}

	_, err = p.db.Exec(ctx, insertEntry,
		e.ID, string(e.Action), nullable(e.RequestID), e.Path,
		nullable(e.RemoteAddr), nullable(e.UserAgent),
		e.FieldCount, files, e.TotalBytes, e.CreatedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return e, nil
}

// Recent returns the newest entries first.
func (p *PgRecorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := p.db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var (
		e          Entry
		action     string
		requestID  *string
		remoteAddr *string
		userAgent  *string
		files      []byte
	)
	err := rows.Scan(
		&e.ID, &action, &requestID, &e.Path, &remoteAddr, &userAgent,
		&e.FieldCount, &files, &e.TotalBytes, &e.CreatedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("scan audit entry: %w", err)
	}

	e.Action = Action(action)
	e.RequestID = deref(requestID)
	e.RemoteAddr = deref(remoteAddr)
	e.UserAgent = deref(userAgent)
	if err := json.Unmarshal(files, &e.Files); err != nil {
		return Entry{}, fmt.Errorf("decode audit files: %w", err)
	}
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Nop discards entries. It is used when no audit database is configured.
type Nop struct{}

func (Nop) Record(_ context.Context, e Entry) (Entry, error) { return e, nil }
func (Nop) Recent(context.Context, int) ([]Entry, error)     { return nil, nil }
