package rate

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures from the counter.
var ErrRedisUnavailable = errors.New("rate counter redis unavailable")

// Counter tracks failed attempts per identifier in a fixed window.
type Counter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCounter returns a counter under the given key prefix ("fl" when empty).
func NewCounter(redisClient redis.UniversalClient, prefix string) *Counter {
	if prefix == "" {
		prefix = "fl"
	}
	return &Counter{redis: redisClient, prefix: prefix}
}

func (c *Counter) key(identifier string) string {
	// Identifiers are caller-supplied strings (usernames, emails); hash them
	// so arbitrary bytes cannot shape the key space.
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return c.prefix + ":" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// Failures returns the current failed count for the identifier.
func (c *Counter) Failures(ctx context.Context, identifier string) (int64, error) {
	count, err := c.redis.Get(ctx, c.key(identifier)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// RecordFailure increments the identifier's counter atomically and refreshes
// the window expiry. Returns the new count.
func (c *Counter) RecordFailure(ctx context.Context, identifier string, window time.Duration) (int64, error) {
	key := c.key(identifier)

	pipe := c.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val(), nil
}

// Reset clears the identifier's counter, e.g. after a password change.
func (c *Counter) Reset(ctx context.Context, identifier string) error {
	if err := c.redis.Del(ctx, c.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
