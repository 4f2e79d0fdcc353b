package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrActiveRedisUnavailable wraps Redis transport failures from the
// active-session registry.
var ErrActiveRedisUnavailable = errors.New("active session redis unavailable")

// ActiveRecord is one live ephemeral session for a registered user.
type ActiveRecord struct {
	SessionID string
	UserID    int64
	IP        string
	UserAgent string
	Expires   time.Time
	Valid     bool
}

// ActiveSessions is the registry behind "sign out everywhere": one hash per
// live session plus a per-user index set. Invalidation flips the valid field;
// the authenticating side rejects sessions whose registry row is missing or
// invalid.
type ActiveSessions struct {
	redis  redis.UniversalClient
	prefix string
}

// NewActiveSessions returns a registry under the given key prefix ("as" when
// empty).
func NewActiveSessions(redisClient redis.UniversalClient, prefix string) *ActiveSessions {
	if prefix == "" {
		prefix = "as"
	}
	return &ActiveSessions{redis: redisClient, prefix: prefix}
}

func (s *ActiveSessions) rowKey(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *ActiveSessions) userKey(userID int64) string {
	return s.prefix + "u:" + strconv.FormatInt(userID, 10)
}

// Record registers a fresh session row with a lifetime matching the session.
func (s *ActiveSessions) Record(ctx context.Context, rec ActiveRecord, ttl time.Duration) error {
	valid := "0"
	if rec.Valid {
		valid = "1"
	}

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.rowKey(rec.SessionID),
		"user_id", strconv.FormatInt(rec.UserID, 10),
		"ip", rec.IP,
		"user_agent", rec.UserAgent,
		"expires", strconv.FormatInt(rec.Expires.Unix(), 10),
		"valid", valid,
	)
	pipe.Expire(ctx, s.rowKey(rec.SessionID), ttl)
	pipe.SAdd(ctx, s.userKey(rec.UserID), rec.SessionID)
	pipe.Expire(ctx, s.userKey(rec.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrActiveRedisUnavailable, err)
	}
	return nil
}

// IsValid reports whether the session row exists and has not been invalidated.
func (s *ActiveSessions) IsValid(ctx context.Context, sessionID string) (bool, error) {
	valid, err := s.redis.HGet(ctx, s.rowKey(sessionID), "valid").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrActiveRedisUnavailable, err)
	}
	return valid == "1", nil
}

// Delete removes the row for a session, e.g. when its user signs out or a new
// identity takes over the browser session.
func (s *ActiveSessions) Delete(ctx context.Context, sessionID string, userID int64) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.rowKey(sessionID))
	pipe.SRem(ctx, s.userKey(userID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrActiveRedisUnavailable, err)
	}
	return nil
}

// InvalidateAllForUser flips valid=0 on every registered session of the user.
// Rows are kept so the rejection is observable until their TTL expires.
func (s *ActiveSessions) InvalidateAllForUser(ctx context.Context, userID int64) error {
	sessionIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActiveRedisUnavailable, err)
	}

	pipe := s.redis.TxPipeline()
	for _, sessionID := range sessionIDs {
		pipe.HSet(ctx, s.rowKey(sessionID), "valid", "0")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrActiveRedisUnavailable, err)
	}
	return nil
}
