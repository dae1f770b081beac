package main

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"rollcall/internal/scan"
)

func TestScanRejectionMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{scan.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
		{scan.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
		{scan.ErrNotEnrolled, http.StatusForbidden, "not_enrolled"},
		{scan.ErrSessionCancelled, http.StatusGone, "session_cancelled"},
		{scan.ErrSessionExpired, http.StatusGone, "session_expired"},
		{scan.ErrSessionNotYetValid, http.StatusGone, "session_not_yet_valid"},
		{scan.ErrDuplicateScan, http.StatusConflict, "duplicate_scan"},
	}
	for _, tc := range cases {
		status, code := scanRejection(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("%v: got (%d, %q), want (%d, %q)", tc.err, status, code, tc.status, tc.code)
		}

		// The validator wraps some rejections with context; mapping must
		// still resolve them.
		status, code = scanRejection(fmt.Errorf("submit: %w", tc.err))
		if status != tc.status || code != tc.code {
			t.Errorf("wrapped %v: got (%d, %q), want (%d, %q)", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestScanRejectionKeepsInternalFailuresOpaque(t *testing.T) {
	for _, err := range []error{errors.New("storage unreachable"), nil} {
		if status, code := scanRejection(err); status != 0 || code != "" {
			t.Errorf("%v: got (%d, %q), want the opaque fallback (0, \"\")", err, status, code)
		}
	}
}

func TestDevMintEnabled(t *testing.T) {
	cases := map[string]bool{
		"dev":        true,
		"staging":    true,
		"":           true,
		"production": false,
		"prod":       false,
	}
	for env, want := range cases {
		if got := devMintEnabled(env); got != want {
			t.Errorf("devMintEnabled(%q) = %v, want %v", env, got, want)
		}
	}
}
