package httpmiddleware

import (
	"testing"
	"time"
)

func TestTokenBucketBurstThenRefill(t *testing.T) {
	l := NewTokenBucket(60) // 1 token/s, burst 60
	now := time.Now()

	for i := 0; i < 60; i++ {
		if !l.allow("1.2.3.4", now) {
			t.Fatalf("request %d inside burst should pass", i)
		}
	}
	if l.allow("1.2.3.4", now) {
		t.Fatal("request beyond burst should be rejected")
	}

	if !l.allow("1.2.3.4", now.Add(2*time.Second)) {
		t.Fatal("bucket should refill over time")
	}
}

func TestTokenBucketPrunesIdleEntries(t *testing.T) {
	l := NewTokenBucket(60)
	now := time.Now()

	l.allow("a", now)
	l.allow("b", now.Add(time.Minute))

	// Both entries sit idle past the timeout; the next request sweeps them.
	l.allow("c", now.Add(idleTimeout+5*time.Minute))

	l.mu.Lock()
	n := len(l.buckets)
	_, aKept := l.buckets["a"]
	_, cKept := l.buckets["c"]
	l.mu.Unlock()

	if aKept {
		t.Error("idle entry a should have been swept")
	}
	if !cKept {
		t.Error("active entry c must survive the sweep")
	}
	if n != 1 {
		t.Errorf("bucket map holds %d entries, want 1", n)
	}
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	l := NewTokenBucket(1)
	now := time.Now()

	if !l.allow("a", now) {
		t.Fatal("first request for key a should pass")
	}
	if l.allow("a", now) {
		t.Fatal("second request for key a should be limited")
	}
	if !l.allow("b", now) {
		t.Fatal("key b must not be affected by key a")
	}
}
