package stores

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const persistentRecordVersionV1 = 1

// persistent record layout: 1-byte version, 32-byte token HMAC,
// 8-byte big-endian user id, 8-byte big-endian created-at (unix seconds).
const persistentRecordSize = 1 + 32 + 8 + 8

// ErrPersistentRedisUnavailable wraps Redis transport failures from the
// persistent-session store.
var ErrPersistentRedisUnavailable = errors.New("persistent session redis unavailable")

// ConsumeStatus is the outcome of an atomic token consumption.
type ConsumeStatus int

const (
	// ConsumeNotFound: no live row for the (email, series) slot.
	ConsumeNotFound ConsumeStatus = iota
	// ConsumeMatched: token matched; the row was deleted in the same step.
	ConsumeMatched
	// ConsumeReplay: the series existed but the token did not match — an
	// already-consumed token was presented. Every row for the email was
	// deleted as part of the same script.
	ConsumeReplay
	// ConsumeCorrupt: the stored record was undecodable and was removed.
	ConsumeCorrupt
)

// ConsumeResult carries the decoded row for a matched consumption.
type ConsumeResult struct {
	Status    ConsumeStatus
	UserID    int64
	CreatedAt time.Time
}

// consumePersistentScript performs the match-then-delete step atomically so
// two requests racing the same cookie produce at most one winner. A token
// mismatch on a live series is treated as replay: every series for the email
// is wiped inside the same script.
const consumePersistentScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0, ""}
end
if #data ~= tonumber(ARGV[4]) or string.byte(data, 1) ~= 1 then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[2])
  return {3, ""}
end
if string.sub(data, 2, 33) == ARGV[1] then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[2])
  return {1, data}
end
local members = redis.call("SMEMBERS", KEYS[2])
for i = 1, #members do
  redis.call("DEL", ARGV[3] .. members[i])
end
redis.call("DEL", KEYS[2])
redis.call("DEL", KEYS[1])
return {2, ""}
`

var consumePersistentLua = redis.NewScript(consumePersistentScript)

// PersistentSessions stores remember-me token rows keyed by (email, series).
// Series and token values are HMAC-SHA256 digests under a dedicated key; the
// raw values never reach Redis.
type PersistentSessions struct {
	redis    redis.UniversalClient
	prefix   string
	tokenKey []byte
}

// NewPersistentSessions returns a store hashing with tokenKey under the given
// key prefix ("pr" when empty).
func NewPersistentSessions(redisClient redis.UniversalClient, prefix string, tokenKey []byte) *PersistentSessions {
	if prefix == "" {
		prefix = "pr"
	}
	return &PersistentSessions{
		redis:    redisClient,
		prefix:   prefix,
		tokenKey: tokenKey,
	}
}

func (s *PersistentSessions) mac(value string) []byte {
	m := hmac.New(sha256.New, s.tokenKey)
	m.Write([]byte(value))
	return m.Sum(nil)
}

func emailKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *PersistentSessions) seriesMember(series string) string {
	return base64.RawURLEncoding.EncodeToString(s.mac(series))
}

func (s *PersistentSessions) rowKeyPrefix(email string) string {
	return s.prefix + ":" + emailKey(email) + ":"
}

func (s *PersistentSessions) rowKey(email, series string) string {
	return s.rowKeyPrefix(email) + s.seriesMember(series)
}

func (s *PersistentSessions) setKey(email string) string {
	return s.prefix + "e:" + emailKey(email)
}

func encodePersistentRecord(tokenMAC []byte, userID int64, createdAt time.Time) ([]byte, error) {
	if len(tokenMAC) != 32 {
		return nil, errors.New("token mac must be 32 bytes")
	}

	var buf bytes.Buffer
	buf.WriteByte(persistentRecordVersionV1)
	buf.Write(tokenMAC)
	if err := binary.Write(&buf, binary.BigEndian, userID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, createdAt.Unix()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePersistentRecord(data []byte) (int64, time.Time, error) {
	if len(data) != persistentRecordSize || data[0] != persistentRecordVersionV1 {
		return 0, time.Time{}, errors.New("invalid persistent session record")
	}
	userID := int64(binary.BigEndian.Uint64(data[33:41]))
	created := int64(binary.BigEndian.Uint64(data[41:49]))
	return userID, time.Unix(created, 0), nil
}

// Save writes a fresh token row for the (email, series) slot, replacing any
// previous token under the same series. The TTL bounds the row's life
// independent of use.
func (s *PersistentSessions) Save(
	ctx context.Context,
	email, series, token string,
	userID int64,
	createdAt time.Time,
	ttl time.Duration,
) error {
	encoded, err := encodePersistentRecord(s.mac(token), userID, createdAt)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.rowKey(email, series), encoded, ttl)
	pipe.SAdd(ctx, s.setKey(email), s.seriesMember(series))
	pipe.Expire(ctx, s.setKey(email), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistentRedisUnavailable, err)
	}
	return nil
}

// Consume atomically matches and deletes the token for the (email, series)
// slot. See [ConsumeStatus] for the outcomes.
func (s *PersistentSessions) Consume(ctx context.Context, email, series, token string) (ConsumeResult, error) {
	keys := []string{s.rowKey(email, series), s.setKey(email)}
	argv := []any{
		string(s.mac(token)),
		s.seriesMember(series),
		s.rowKeyPrefix(email),
		persistentRecordSize,
	}

	raw, err := consumePersistentLua.Run(ctx, s.redis, keys, argv...).Result()
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("%w: %v", ErrPersistentRedisUnavailable, err)
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 2 {
		return ConsumeResult{}, errors.New("unexpected consume script reply")
	}
	status, ok := reply[0].(int64)
	if !ok {
		return ConsumeResult{}, errors.New("unexpected consume script status")
	}

	switch status {
	case 1:
		data, _ := reply[1].(string)
		userID, createdAt, err := decodePersistentRecord([]byte(data))
		if err != nil {
			return ConsumeResult{Status: ConsumeCorrupt}, nil
		}
		return ConsumeResult{Status: ConsumeMatched, UserID: userID, CreatedAt: createdAt}, nil
	case 2:
		return ConsumeResult{Status: ConsumeReplay}, nil
	case 3:
		return ConsumeResult{Status: ConsumeCorrupt}, nil
	default:
		return ConsumeResult{Status: ConsumeNotFound}, nil
	}
}

// DeleteSeries removes the single row for the (email, series) slot, e.g. on
// logout of the session that presented it.
func (s *PersistentSessions) DeleteSeries(ctx context.Context, email, series string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.rowKey(email, series))
	pipe.SRem(ctx, s.setKey(email), s.seriesMember(series))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistentRedisUnavailable, err)
	}
	return nil
}

// PurgeEmail removes every persistent-session row for the email.
func (s *PersistentSessions) PurgeEmail(ctx context.Context, email string) error {
	members, err := s.redis.SMembers(ctx, s.setKey(email)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistentRedisUnavailable, err)
	}

	pipe := s.redis.TxPipeline()
	for _, member := range members {
		pipe.Del(ctx, s.rowKeyPrefix(email)+member)
	}
	pipe.Del(ctx, s.setKey(email))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistentRedisUnavailable, err)
	}
	return nil
}

// Count reports how many live rows exist for the email. Used by tests and
// operational checks.
func (s *PersistentSessions) Count(ctx context.Context, email string) (int64, error) {
	members, err := s.redis.SMembers(ctx, s.setKey(email)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistentRedisUnavailable, err)
	}

	var live int64
	for _, member := range members {
		exists, err := s.redis.Exists(ctx, s.rowKeyPrefix(email)+member).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrPersistentRedisUnavailable, err)
		}
		live += exists
	}
	return live, nil
}
