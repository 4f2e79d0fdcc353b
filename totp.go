package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// StrategyTOTP is the id of the built-in time-based one-time-password
// two-factor strategy.
const StrategyTOTP = "totp"

// TOTPStrategy is the built-in [TwoFactorStrategy]: RFC 6238 codes derived
// from the per-user secret on the account record. Users without a secret are
// not gated.
type TOTPStrategy struct {
	cfg   TwoFactorConfig
	clock Clock
}

// NewTOTPStrategy returns the built-in TOTP strategy. clock may be nil for
// the system clock.
func NewTOTPStrategy(cfg TwoFactorConfig, clock Clock) *TOTPStrategy {
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &TOTPStrategy{cfg: cfg, clock: clock}
}

// ID implements [TwoFactorStrategy].
func (s *TOTPStrategy) ID() string { return StrategyTOTP }

// NeedsVerification implements [TwoFactorStrategy]. Only registered users
// with an enrolled secret are gated.
func (s *TOTPStrategy) NeedsVerification(_ context.Context, user *User) (bool, error) {
	if user == nil || !user.Identity().IsRegistered() {
		return false, nil
	}
	record := user.Record()
	return record != nil && len(record.TwoFactorSecret) > 0, nil
}

// Verify implements [TwoFactorStrategy]. The code is accepted within the
// configured step skew; comparison is constant-time.
func (s *TOTPStrategy) Verify(_ context.Context, user *User, token string) error {
	record := user.Record()
	if record == nil || len(record.TwoFactorSecret) == 0 {
		return ErrTwoFactorInvalid
	}

	trimmed := strings.TrimSpace(token)
	if len(trimmed) != s.cfg.Digits || !isNumericString(trimmed) {
		return ErrTwoFactorInvalid
	}

	baseCounter := s.clock.Now().Unix() / int64(s.cfg.Period)
	for step := -s.cfg.Skew; step <= s.cfg.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(record.TwoFactorSecret, counter, s.cfg.Digits, s.cfg.Algorithm)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return nil
		}
	}

	return ErrTwoFactorInvalid
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumericString(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
