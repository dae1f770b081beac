package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// presentKeyPrefix namespaces the per-session present-count projection.
const presentKeyPrefix = "rollcall:present:"

// PresentKey returns the projection key holding the present count for a
// session. The projection is a convenience for dashboards; the ledger in
// Postgres stays the source of truth.
func PresentKey(sessionCode string) string {
	return presentKeyPrefix + sessionCode
}

// IncrPresent bumps the present-count projection for a session, keeping the
// key around for a day so stale sessions age out on their own.
func (r *Redis) IncrPresent(ctx context.Context, sessionCode string) error {
	key := PresentKey(sessionCode)
	if err := r.Client.Incr(ctx, key).Err(); err != nil {
		return err
	}
	return r.Client.Expire(ctx, key, 24*time.Hour).Err()
}

// PresentCount reads the projection, returning 0 when absent or unreachable.
func (r *Redis) PresentCount(ctx context.Context, sessionCode string) int64 {
	if r == nil || r.Client == nil {
		return 0
	}
	n, err := r.Client.Get(ctx, PresentKey(sessionCode)).Int64()
	if err != nil {
		return 0
	}
	return n
}
