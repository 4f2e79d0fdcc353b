package auth

import (
	"context"
	"time"

	"github.com/infusephp/auth/internal/rate"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles failed login attempts per presented identifier. The
// identifier is the caller-supplied string, never a resolved user id, so
// enumeration attempts against nonexistent accounts are throttled too.
type RateLimiter interface {
	// CanLogin reports whether another attempt is currently allowed.
	CanLogin(ctx context.Context, identifier string) (bool, error)
	// RemainingAttempts reports how many attempts are left in the window.
	RemainingAttempts(ctx context.Context, identifier string) (int, error)
	// RecordFailedLogin counts one failure and refreshes the lockout window.
	RecordFailedLogin(ctx context.Context, identifier string) error
	// MaxAttempts reports the attempt budget for the identifier.
	MaxAttempts(identifier string) int
	// LockoutWindow reports the lockout duration for the identifier.
	LockoutWindow(identifier string) time.Duration
}

// NoopRateLimiter always permits. It is the default when rate limiting is
// disabled.
type NoopRateLimiter struct{}

// CanLogin implements [RateLimiter].
func (NoopRateLimiter) CanLogin(context.Context, string) (bool, error) { return true, nil }

// RemainingAttempts implements [RateLimiter].
func (NoopRateLimiter) RemainingAttempts(context.Context, string) (int, error) {
	return 1, nil
}

// RecordFailedLogin implements [RateLimiter].
func (NoopRateLimiter) RecordFailedLogin(context.Context, string) error { return nil }

// MaxAttempts implements [RateLimiter].
func (NoopRateLimiter) MaxAttempts(string) int { return 1 }

// LockoutWindow implements [RateLimiter].
func (NoopRateLimiter) LockoutWindow(string) time.Duration { return 0 }

// CountingRateLimiter enforces a fixed-window failed-attempt budget backed by
// a Redis counter.
type CountingRateLimiter struct {
	counter     *rate.Counter
	maxAttempts int
	window      time.Duration
}

// NewCountingRateLimiter returns a limiter with the given budget and window.
func NewCountingRateLimiter(redisClient redis.UniversalClient, prefix string, maxAttempts int, window time.Duration) *CountingRateLimiter {
	return &CountingRateLimiter{
		counter:     rate.NewCounter(redisClient, prefix),
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// CanLogin implements [RateLimiter].
func (l *CountingRateLimiter) CanLogin(ctx context.Context, identifier string) (bool, error) {
	remaining, err := l.RemainingAttempts(ctx, identifier)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// RemainingAttempts implements [RateLimiter].
func (l *CountingRateLimiter) RemainingAttempts(ctx context.Context, identifier string) (int, error) {
	failures, err := l.counter.Failures(ctx, identifier)
	if err != nil {
		return 0, err
	}
	remaining := l.maxAttempts - int(failures)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RecordFailedLogin implements [RateLimiter].
func (l *CountingRateLimiter) RecordFailedLogin(ctx context.Context, identifier string) error {
	_, err := l.counter.RecordFailure(ctx, identifier, l.window)
	return err
}

// MaxAttempts implements [RateLimiter].
func (l *CountingRateLimiter) MaxAttempts(string) int { return l.maxAttempts }

// LockoutWindow implements [RateLimiter].
func (l *CountingRateLimiter) LockoutWindow(string) time.Duration { return l.window }

// Reset clears the identifier's counter, e.g. after a password change.
func (l *CountingRateLimiter) Reset(ctx context.Context, identifier string) error {
	return l.counter.Reset(ctx, identifier)
}
