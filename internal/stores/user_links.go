package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const linkRecordVersionV1 = 1

// link record layout: 1-byte version, 8-byte big-endian user id,
// 8-byte big-endian created-at (unix seconds).
const linkRecordSize = 1 + 8 + 8

var (
	// ErrLinkNotFound covers a wrong token, wrong type, or expired link.
	ErrLinkNotFound = errors.New("user link not found")
	// ErrLinkRedisUnavailable wraps Redis transport failures from the link store.
	ErrLinkRedisUnavailable = errors.New("user link redis unavailable")
)

// LinkType is the purpose of a user link.
type LinkType uint8

const (
	// LinkForgotPassword authorizes one password reset.
	LinkForgotPassword LinkType = iota
	// LinkVerifyEmail marks the account unverified until consumed.
	LinkVerifyEmail
	// LinkTemporary marks an incomplete registration. Never windowed.
	LinkTemporary
)

func (t LinkType) String() string {
	switch t {
	case LinkForgotPassword:
		return "forgot_password"
	case LinkVerifyEmail:
		return "verify_email"
	case LinkTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// UserLinks stores typed, single-use, time-windowed capability tokens. Links
// are stored by digest; a per-user guard key enforces at most one live link
// per (user, type) without scanning.
type UserLinks struct {
	redis  redis.UniversalClient
	prefix string
}

// NewUserLinks returns a link store under the given key prefix ("ul" when
// empty).
func NewUserLinks(redisClient redis.UniversalClient, prefix string) *UserLinks {
	if prefix == "" {
		prefix = "ul"
	}
	return &UserLinks{redis: redisClient, prefix: prefix}
}

func linkDigest(link string) string {
	sum := sha256.Sum256([]byte(link))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *UserLinks) rowKey(typ LinkType, digest string) string {
	return s.prefix + ":" + typ.String() + ":" + digest
}

func (s *UserLinks) guardKey(typ LinkType, userID int64) string {
	return s.prefix + "g:" + typ.String() + ":" + strconv.FormatInt(userID, 10)
}

func encodeLinkRecord(userID int64, createdAt time.Time) []byte {
	var buf bytes.Buffer
	buf.WriteByte(linkRecordVersionV1)
	_ = binary.Write(&buf, binary.BigEndian, userID)
	_ = binary.Write(&buf, binary.BigEndian, createdAt.Unix())
	return buf.Bytes()
}

func decodeLinkRecord(data []byte) (int64, time.Time, error) {
	if len(data) != linkRecordSize || data[0] != linkRecordVersionV1 {
		return 0, time.Time{}, errors.New("invalid user link record")
	}
	userID := int64(binary.BigEndian.Uint64(data[1:9]))
	created := int64(binary.BigEndian.Uint64(data[9:17]))
	return userID, time.Unix(created, 0), nil
}

// Issue persists a link for the user unless a live link of the same type
// already exists, in which case it reports created=false and changes nothing.
// window == 0 means the link never expires (temporary-account markers).
func (s *UserLinks) Issue(
	ctx context.Context,
	userID int64,
	typ LinkType,
	link string,
	window time.Duration,
	createdAt time.Time,
) (bool, error) {
	guard := s.guardKey(typ, userID)
	digest := linkDigest(link)
	record := encodeLinkRecord(userID, createdAt)

	var ttl time.Duration
	if window > 0 {
		ttl = window
	}

	// The guard claim must be a single atomic SETNX: a check-then-set would
	// let two concurrent requests both create a live link, and a later Delete
	// of either would clear the guard while the other row stays consumable.
	claimed, err := s.redis.SetNX(ctx, guard, digest, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}
	if !claimed {
		return false, nil
	}

	if err := s.redis.Set(ctx, s.rowKey(typ, digest), record, ttl).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}
	return true, nil
}

// Consume resolves a link by (link, type) within the window. The row is NOT
// deleted; the caller inspects the result and deletes after acting on it.
func (s *UserLinks) Consume(
	ctx context.Context,
	link string,
	typ LinkType,
	window time.Duration,
	now time.Time,
) (int64, time.Time, error) {
	digest := linkDigest(link)

	data, err := s.redis.Get(ctx, s.rowKey(typ, digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, ErrLinkNotFound
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}

	userID, createdAt, err := decodeLinkRecord(data)
	if err != nil {
		_ = s.Delete(ctx, link, typ)
		return 0, time.Time{}, ErrLinkNotFound
	}

	if window > 0 && createdAt.Before(now.Add(-window)) {
		_ = s.Delete(ctx, link, typ)
		return 0, time.Time{}, ErrLinkNotFound
	}

	return userID, createdAt, nil
}

// Delete removes the link row and its guard.
func (s *UserLinks) Delete(ctx context.Context, link string, typ LinkType) error {
	digest := linkDigest(link)

	data, err := s.redis.Get(ctx, s.rowKey(typ, digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.rowKey(typ, digest))
	if userID, _, decodeErr := decodeLinkRecord(data); decodeErr == nil {
		pipe.Del(ctx, s.guardKey(typ, userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}
	return nil
}

// DeleteForUser removes the live link of the given type for the user, if any.
func (s *UserLinks) DeleteForUser(ctx context.Context, userID int64, typ LinkType) error {
	guard := s.guardKey(typ, userID)

	digest, err := s.redis.Get(ctx, guard).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.rowKey(typ, digest))
	pipe.Del(ctx, guard)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}
	return nil
}

// HasLive reports whether a live link of the given type exists for the user.
func (s *UserLinks) HasLive(ctx context.Context, userID int64, typ LinkType) (bool, error) {
	exists, err := s.redis.Exists(ctx, s.guardKey(typ, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}
	return exists > 0, nil
}
