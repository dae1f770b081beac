package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testScope = Scope{ClassID: 7, SubjectID: 3, SessionType: "lecture"}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	issuedAt := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	validUntil := issuedAt.Add(10 * time.Minute)

	code, blob, err := Encode(testScope, "teacher-1", issuedAt, validUntil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	p, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Code != code {
		t.Errorf("code mismatch: %q vs %q", p.Code, code)
	}
	if p.Scope != testScope {
		t.Errorf("scope mismatch: %+v", p.Scope)
	}
	if p.IssuerID != "teacher-1" {
		t.Errorf("issuer mismatch: %q", p.IssuerID)
	}
	if !p.IssuedAt().Equal(issuedAt) {
		t.Errorf("issued_at mismatch: %v vs %v", p.IssuedAt(), issuedAt)
	}
	if !p.Expiry().Equal(validUntil) {
		t.Errorf("valid_until mismatch: %v vs %v", p.Expiry(), validUntil)
	}
}

func TestNewCodeUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		code, err := NewCode(now)
		if err != nil {
			t.Fatalf("NewCode: %v", err)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code generated: %s", code)
		}
		seen[code] = struct{}{}
		if !strings.Contains(code, "-") {
			t.Fatalf("code missing timestamp/random separator: %s", code)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	issuedAt := time.Unix(1_700_000_000, 0)
	_, valid, err := Encode(testScope, "teacher-1", issuedAt, issuedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cases := map[string]string{
		"not json":        "{{{",
		"empty":           "",
		"wrong type tag":  strings.Replace(valid, `"type":"attendance"`, `"type":"parking"`, 1),
		"missing code":    strings.Replace(valid, `"code":"`, `"codez":"`, 1),
		"missing issuer":  strings.Replace(valid, `"issuer_id":"teacher-1"`, `"issuer_id":""`, 1),
		"missing class id":   strings.Replace(valid, `"class_id":7`, `"class_id":0`, 1),
		"missing subject id": strings.Replace(valid, `"subject_id":3`, `"subject_id":-1`, 1),
		"inverted window": `{"type":"attendance","scope":{"class_id":7,"subject_id":3,"session_type":"lecture"},"issuer_id":"t","timestamp":200,"valid_until":100,"code":"x"}`,
		"zero timestamp":  `{"type":"attendance","scope":{"class_id":7,"subject_id":3,"session_type":"lecture"},"issuer_id":"t","timestamp":0,"valid_until":100,"code":"x"}`,
	}
	for name, blob := range cases {
		if _, err := Decode(blob); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", name, err)
		}
	}
}
