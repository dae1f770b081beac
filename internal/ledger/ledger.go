package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// StatusPresent is the only status a scan can produce. Absent/excused marks
// come from manual correction flows that never touch this package.
const StatusPresent = "present"

// Record is one student's outcome for one session.
type Record struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	SessionCode string    `json:"session_code"`
	MarkedAt    time.Time `json:"marked_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts the attendance record if absent and reports whether this call
// created it. The unique constraint on (student_id, session_code) is what
// serializes concurrent scans: exactly one caller sees created=true, across any
// number of server instances. Existing rows are never touched.
func (r *Repository) Record(ctx context.Context, studentID, sessionCode string, markedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, session_code, marked_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, session_code) DO NOTHING
	`, uuid.NewString(), studentID, sessionCode, markedAt, StatusPresent)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListBySession returns all records for a session, oldest scan first.
func (r *Repository) ListBySession(ctx context.Context, sessionCode string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, session_code, marked_at, status, created_at
		FROM attendance_records
		WHERE session_code = $1
		ORDER BY marked_at ASC
	`, sessionCode)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListByStudent returns a student's records, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, session_code, marked_at, status, created_at
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY marked_at DESC
		LIMIT $2 OFFSET $3
	`, studentID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionCode, &rec.MarkedAt, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
