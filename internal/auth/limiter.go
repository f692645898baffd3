package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultgate/vaultgate/internal/shared"
)

// Limiter is a fixed-window attempt counter backed by Redis. It bounds
// password and one-time-code guessing per principal.
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewLimiter constructs a Limiter.
func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Limiter{client: client, limit: int64(limit), window: window}
}

func (l *Limiter) key(scope, principal string) string {
	return "vaultgate:attempts:" + scope + ":" + principal
}

// Allow records one attempt and fails once the window is exhausted.
// A nil Limiter allows everything.
func (l *Limiter) Allow(ctx context.Context, scope, principal string) error {
	if l == nil || l.client == nil {
		return nil
	}
	key := l.key(scope, principal)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		// Redis being down must not lock every user out.
		return nil
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window)
	}
	if count > l.limit {
		return shared.ErrTooManyAttempts
	}
	return nil
}

// Reset clears the window after a successful attempt.
func (l *Limiter) Reset(ctx context.Context, scope, principal string) {
	if l == nil || l.client == nil {
		return
	}
	l.client.Del(ctx, l.key(scope, principal))
}
