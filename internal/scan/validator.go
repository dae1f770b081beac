package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/session"
	"rollcall/internal/token"
)

// Every rejection a claimant can see. These are expected outcomes, not system
// failures; anything outside this set is an internal error and stays opaque.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionCancelled   = errors.New("session was cancelled")
	ErrSessionExpired     = errors.New("session has expired")
	ErrSessionNotYetValid = errors.New("session is not valid yet")
	ErrNotEnrolled        = errors.New("student not enrolled for this session")
	ErrDuplicateScan      = errors.New("attendance already marked")
)

// Sessions is the lookup surface the validator needs.
type Sessions interface {
	GetByCode(ctx context.Context, code string) (session.Session, error)
}

// Ledger commits scan outcomes.
type Ledger interface {
	Record(ctx context.Context, studentID, sessionCode string, markedAt time.Time) (bool, error)
}

// Enrollment is the external directory consulted before committing.
type Enrollment interface {
	IsEnrolled(ctx context.Context, studentID string, scope token.Scope) (bool, error)
}

// Result confirms a committed scan.
type Result struct {
	SessionCode string      `json:"session_code"`
	Scope       token.Scope `json:"scope"`
	MarkedAt    time.Time   `json:"marked_at"`
}

// Validator decides whether a submitted token marks the claimant present.
type Validator struct {
	sessions   Sessions
	ledger     Ledger
	enrollment Enrollment
	now        func() time.Time
}

// NewValidator creates a validator over the given collaborators.
func NewValidator(sessions Sessions, ledger Ledger, enrollment Enrollment) *Validator {
	return &Validator{sessions: sessions, ledger: ledger, enrollment: enrollment, now: time.Now}
}

// Submit runs the scan pipeline: decode, resolve, temporal and enrollment
// checks, then a single conditional insert. All temporal decisions use the
// server clock against the stored session; the payload's own timestamps are
// display-only redundancy and never authorize anything.
func (v *Validator) Submit(ctx context.Context, studentID, payload string) (Result, error) {
	if studentID == "" {
		return Result{}, errors.New("student id required")
	}

	p, err := token.Decode(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	s, err := v.sessions.GetByCode(ctx, p.Code)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Result{}, ErrSessionNotFound
		}
		return Result{}, fmt.Errorf("session lookup: %w", err)
	}

	now := v.now().UTC()
	switch s.StatusAt(now) {
	case session.StatusCancelled:
		return Result{}, ErrSessionCancelled
	case session.StatusExpired:
		return Result{}, ErrSessionExpired
	}
	if now.Before(s.IssuedAt) {
		// Clock skew or a tampered payload; reject, never auto-adjust.
		return Result{}, ErrSessionNotYetValid
	}

	enrolled, err := v.enrollment.IsEnrolled(ctx, studentID, s.Scope)
	if err != nil {
		return Result{}, fmt.Errorf("enrollment lookup: %w", err)
	}
	if !enrolled {
		return Result{}, ErrNotEnrolled
	}

	created, err := v.ledger.Record(ctx, studentID, s.Code, now)
	if err != nil {
		return Result{}, fmt.Errorf("ledger write: %w", err)
	}
	if !created {
		// The existing record is untouched; the caller just learns it was
		// already there, which renders differently than a fresh success.
		return Result{}, ErrDuplicateScan
	}

	return Result{SessionCode: s.Code, Scope: s.Scope, MarkedAt: now}, nil
}
