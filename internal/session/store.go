package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `code, issuer_id, class_id, subject_id, session_type, issued_at, valid_until, cancelled_at, payload, created_at`

// Create inserts a new session row. A primary-key collision maps to
// ErrDuplicateCode; with random codes it should never fire, but the issuer
// defends against it anyway.
func (r *Repository) Create(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (code, issuer_id, class_id, subject_id, session_type, issued_at, valid_until, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.Code, s.IssuerID, s.Scope.ClassID, s.Scope.SubjectID, s.Scope.SessionType, s.IssuedAt, s.ValidUntil, s.Payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

// GetByCode returns the session for a code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions WHERE code = $1
	`, code)
	return scanSession(row)
}

// Cancel sets the session's terminal cancelled state. Only the issuer or an
// admin may cancel; a session that is already cancelled or past its window
// reports ErrAlreadyTerminal and is left untouched.
func (r *Repository) Cancel(ctx context.Context, code, byIssuerID string, admin bool) error {
	s, err := r.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if !admin && s.IssuerID != byIssuerID {
		return ErrForbidden
	}
	if s.StatusAt(time.Now().UTC()) != StatusActive {
		return ErrAlreadyTerminal
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET cancelled_at = NOW()
		WHERE code = $1 AND cancelled_at IS NULL
	`, code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Lost a race with another cancel.
		return ErrAlreadyTerminal
	}
	return nil
}

// ListActive returns the issuer's sessions still inside their validity window.
func (r *Repository) ListActive(ctx context.Context, issuerID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE issuer_id = $1 AND cancelled_at IS NULL AND valid_until > NOW()
		ORDER BY issued_at DESC
	`, issuerID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListHistory returns the issuer's sessions newest first.
func (r *Repository) ListHistory(ctx context.Context, issuerID string, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE issuer_id = $1
		ORDER BY issued_at DESC
		LIMIT $2 OFFSET $3
	`, issuerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var cancelledAt sql.NullTime
	err := row.Scan(&s.Code, &s.IssuerID, &s.Scope.ClassID, &s.Scope.SubjectID, &s.Scope.SessionType,
		&s.IssuedAt, &s.ValidUntil, &cancelledAt, &s.Payload, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		s.CancelledAt = &t
	}
	return s, nil
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
