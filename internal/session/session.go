package session

import (
	"context"
	"errors"
	"time"

	"rollcall/internal/token"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNotFound means no session exists for the given code.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicateCode means a session with the same code already exists.
	ErrDuplicateCode = errors.New("session code already exists")
	// ErrForbidden means the caller is neither the session's issuer nor an admin.
	ErrForbidden = errors.New("not the session issuer")
	// ErrAlreadyTerminal means the session is already cancelled or expired.
	ErrAlreadyTerminal = errors.New("session already terminal")
	// ErrInvalidDuration means the requested validity window is outside policy.
	ErrInvalidDuration = errors.New("invalid session duration")
)

// Session is one issued QR attendance window. Everything but CancelledAt is
// immutable after creation.
type Session struct {
	Code        string
	IssuerID    string
	Scope       token.Scope
	IssuedAt    time.Time
	ValidUntil  time.Time
	CancelledAt *time.Time
	Payload     string
	CreatedAt   time.Time
}

// StatusAt derives the lifecycle status at the given instant. Expired is never
// written anywhere; it is purely a function of the clock, so there is no
// background process flipping rows over.
func (s Session) StatusAt(now time.Time) Status {
	if s.CancelledAt != nil {
		return StatusCancelled
	}
	if !now.Before(s.ValidUntil) {
		return StatusExpired
	}
	return StatusActive
}

// Store is the durable source of truth for issued sessions. Any in-memory view
// of active sessions is a projection over it, never authoritative.
type Store interface {
	Create(ctx context.Context, s Session) error
	GetByCode(ctx context.Context, code string) (Session, error)
	Cancel(ctx context.Context, code, byIssuerID string, admin bool) error
	ListActive(ctx context.Context, issuerID string) ([]Session, error)
	ListHistory(ctx context.Context, issuerID string, limit, offset int) ([]Session, error)
}
