package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/token"
)

// Issuer creates and revokes QR attendance sessions.
type Issuer struct {
	store      Store
	maxMinutes int
	now        func() time.Time
}

// NewIssuer creates an issuer enforcing the configured duration bound.
func NewIssuer(store Store, maxMinutes int) *Issuer {
	if maxMinutes <= 0 {
		maxMinutes = 60
	}
	return &Issuer{store: store, maxMinutes: maxMinutes, now: time.Now}
}

// Issue creates a session valid for the given number of minutes, starting now.
// Duration must be within [1, max]. On the near-impossible code collision it
// retries once with a fresh code before surfacing the error.
func (i *Issuer) Issue(ctx context.Context, issuerID string, scope token.Scope, minutes int) (Session, error) {
	if issuerID == "" {
		return Session{}, errors.New("issuer id required")
	}
	if scope.SessionType == "" {
		return Session{}, errors.New("session type required")
	}
	if minutes < 1 || minutes > i.maxMinutes {
		return Session{}, fmt.Errorf("%w: %d minutes (allowed 1-%d)", ErrInvalidDuration, minutes, i.maxMinutes)
	}

	now := i.now().UTC()
	validUntil := now.Add(time.Duration(minutes) * time.Minute)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		code, payload, err := token.Encode(scope, issuerID, now, validUntil)
		if err != nil {
			return Session{}, err
		}
		s := Session{
			Code:       code,
			IssuerID:   issuerID,
			Scope:      scope,
			IssuedAt:   now,
			ValidUntil: validUntil,
			Payload:    payload,
		}
		lastErr = i.store.Create(ctx, s)
		if lastErr == nil {
			return s, nil
		}
		if !errors.Is(lastErr, ErrDuplicateCode) {
			return Session{}, lastErr
		}
	}
	return Session{}, fmt.Errorf("session code collision persisted: %w", lastErr)
}

// Cancel revokes a session on behalf of the caller. Cancelling a session that
// is already cancelled, or one whose window has passed, is a no-op success: an
// issuer racing the clock should not see a spurious error.
func (i *Issuer) Cancel(ctx context.Context, code, byIssuerID string, admin bool) error {
	err := i.store.Cancel(ctx, code, byIssuerID, admin)
	if errors.Is(err, ErrAlreadyTerminal) {
		return nil
	}
	return err
}
