package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// EnsureSchema creates the tables this service owns. The unique constraint on
// (student_id, session_code) is load-bearing: it is what resolves concurrent
// duplicate scans to a single record, including across server instances.
func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attendance_sessions (
			code         TEXT PRIMARY KEY,
			issuer_id    TEXT NOT NULL,
			class_id     BIGINT NOT NULL,
			subject_id   BIGINT NOT NULL,
			session_type TEXT NOT NULL,
			issued_at    TIMESTAMPTZ NOT NULL,
			valid_until  TIMESTAMPTZ NOT NULL,
			cancelled_at TIMESTAMPTZ,
			payload      TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (valid_until > issued_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_issuer
			ON attendance_sessions (issuer_id, issued_at DESC)`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id           UUID PRIMARY KEY,
			student_id   TEXT NOT NULL,
			session_code TEXT NOT NULL REFERENCES attendance_sessions (code),
			marked_at    TIMESTAMPTZ NOT NULL,
			status       TEXT NOT NULL DEFAULT 'present',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (student_id, session_code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_student
			ON attendance_records (student_id, marked_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
