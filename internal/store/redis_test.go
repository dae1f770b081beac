package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return &Redis{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}, mr
}

func TestPresentProjectionCountsRecords(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()

	if got := r.PresentCount(ctx, "code-1"); got != 0 {
		t.Fatalf("fresh session count = %d, want 0", got)
	}

	// One increment per created ledger record.
	if err := r.IncrPresent(ctx, "code-1"); err != nil {
		t.Fatalf("IncrPresent: %v", err)
	}
	if got := r.PresentCount(ctx, "code-1"); got != 1 {
		t.Fatalf("count after first record = %d, want 1", got)
	}

	if err := r.IncrPresent(ctx, "code-1"); err != nil {
		t.Fatalf("IncrPresent: %v", err)
	}
	if got := r.PresentCount(ctx, "code-1"); got != 2 {
		t.Fatalf("count after second record = %d, want 2", got)
	}

	// Other sessions are untouched.
	if got := r.PresentCount(ctx, "code-2"); got != 0 {
		t.Fatalf("unrelated session count = %d, want 0", got)
	}
}

func TestPresentProjectionAgesOut(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	if err := r.IncrPresent(ctx, "code-1"); err != nil {
		t.Fatalf("IncrPresent: %v", err)
	}
	if ttl := mr.TTL(PresentKey("code-1")); ttl != 24*time.Hour {
		t.Fatalf("ttl = %v, want 24h", ttl)
	}

	mr.FastForward(25 * time.Hour)
	if got := r.PresentCount(ctx, "code-1"); got != 0 {
		t.Fatalf("count after expiry = %d, want 0", got)
	}
}

func TestPresentCountToleratesMissingRedis(t *testing.T) {
	var r *Redis
	if got := r.PresentCount(context.Background(), "code-1"); got != 0 {
		t.Fatalf("nil client count = %d, want 0", got)
	}
}
