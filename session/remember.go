package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedCookie is returned by [RememberCodec.Decode] for any cookie
// that does not carry a complete, correctly signed payload. Callers treat it
// as "no cookie present".
var ErrMalformedCookie = errors.New("malformed remember-me cookie")

// RememberPayload is the remember-me cookie content. All four fields are
// required; an empty field fails decoding.
type RememberPayload struct {
	Email  string
	Agent  string
	Series string
	Token  string
}

// RememberCodec encodes the remember-me payload as an HS256-signed claim set.
// Signing keeps the cookie tamper-evident on the wire; the stored comparison
// values are additionally HMAC-hashed by the persistent store.
type RememberCodec struct {
	key []byte
}

// NewRememberCodec returns a codec signing with the given key. The key must
// be distinct from any password-hashing material.
func NewRememberCodec(key []byte) (*RememberCodec, error) {
	if len(key) < 32 {
		return nil, errors.New("remember-me signing key must be at least 32 bytes")
	}
	return &RememberCodec{key: key}, nil
}

// Encode signs the payload with the given lifetime.
func (c *RememberCodec) Encode(p RememberPayload, ttl time.Duration, now time.Time) (string, error) {
	if p.Email == "" || p.Agent == "" || p.Series == "" || p.Token == "" {
		return "", ErrMalformedCookie
	}

	claims := jwt.MapClaims{
		"eml": p.Email,
		"agt": p.Agent,
		"srs": p.Series,
		"tkn": p.Token,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode validates the signature and expiry and extracts the payload. Any
// defect collapses to [ErrMalformedCookie].
func (c *RememberCodec) Decode(raw string) (RememberPayload, error) {
	var p RememberPayload

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrMalformedCookie
		}
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return p, ErrMalformedCookie
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return p, ErrMalformedCookie
	}

	p.Email, _ = claims["eml"].(string)
	p.Agent, _ = claims["agt"].(string)
	p.Series, _ = claims["srs"].(string)
	p.Token, _ = claims["tkn"].(string)

	if p.Email == "" || p.Agent == "" || p.Series == "" || p.Token == "" {
		return RememberPayload{}, ErrMalformedCookie
	}

	return p, nil
}
