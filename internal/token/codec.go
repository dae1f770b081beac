package token

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PayloadType tags attendance payloads so a scanner can reject QR codes issued
// for other purposes.
const PayloadType = "attendance"

// ErrMalformedPayload is returned when a payload does not match the expected
// schema exactly.
var ErrMalformedPayload = errors.New("malformed token payload")

// Scope identifies what attendance a session covers.
type Scope struct {
	ClassID     int64  `json:"class_id"`
	SubjectID   int64  `json:"subject_id"`
	SessionType string `json:"session_type"`
}

// Payload is the self-describing copy of session fields embedded in the QR
// code. It exists for display and offline verification; the store row resolved
// by Code stays authoritative for every authorization decision.
type Payload struct {
	Type       string `json:"type"`
	Scope      Scope  `json:"scope"`
	IssuerID   string `json:"issuer_id"`
	Timestamp  int64  `json:"timestamp"`
	ValidUntil int64  `json:"valid_until"`
	Code       string `json:"code"`
}

// IssuedAt returns the embedded issue time.
func (p Payload) IssuedAt() time.Time { return time.Unix(p.Timestamp, 0).UTC() }

// Expiry returns the embedded validity deadline.
func (p Payload) Expiry() time.Time { return time.Unix(p.ValidUntil, 0).UTC() }

// Encode produces an opaque session code and the payload blob to render as a
// QR image. The code is a nanosecond timestamp plus a cryptographically random
// suffix; it must stay unguessable, since a guessable code lets a student mark
// attendance without a genuine scan.
func Encode(scope Scope, issuerID string, issuedAt, validUntil time.Time) (string, string, error) {
	code, err := NewCode(issuedAt)
	if err != nil {
		return "", "", err
	}
	p := Payload{
		Type:       PayloadType,
		Scope:      scope,
		IssuerID:   issuerID,
		Timestamp:  issuedAt.Unix(),
		ValidUntil: validUntil.Unix(),
		Code:       code,
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return "", "", err
	}
	return code, string(blob), nil
}

// NewCode generates a fresh session code. Collisions would need the same
// nanosecond and the same 16 random bytes.
func NewCode(now time.Time) (string, error) {
	suffix := make([]byte, 16)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("token: random source failed: %w", err)
	}
	return fmt.Sprintf("%x-%s", now.UnixNano(), hex.EncodeToString(suffix)), nil
}

// Decode parses and validates a payload blob. Any structural defect, missing
// field, wrong type tag or inverted validity window yields ErrMalformedPayload.
func Decode(blob string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch {
	case p.Type != PayloadType:
		return Payload{}, fmt.Errorf("%w: unexpected type %q", ErrMalformedPayload, p.Type)
	case p.Code == "":
		return Payload{}, fmt.Errorf("%w: missing code", ErrMalformedPayload)
	case p.IssuerID == "":
		return Payload{}, fmt.Errorf("%w: missing issuer", ErrMalformedPayload)
	case p.Scope.SessionType == "":
		return Payload{}, fmt.Errorf("%w: missing session type", ErrMalformedPayload)
	case p.Scope.ClassID <= 0 || p.Scope.SubjectID <= 0:
		return Payload{}, fmt.Errorf("%w: missing scope ids", ErrMalformedPayload)
	case p.Timestamp <= 0 || p.ValidUntil <= p.Timestamp:
		return Payload{}, fmt.Errorf("%w: invalid validity window", ErrMalformedPayload)
	}
	return p, nil
}
