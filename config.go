package auth

import (
	"errors"
	"time"

	"github.com/infusephp/auth/password"
	"github.com/infusephp/auth/session"
)

// Config defines the engine's tuning knobs. Zero values are filled in by
// withDefaults during Build; a Config is immutable afterwards.
type Config struct {
	Session   SessionConfig
	Remember  RememberConfig
	Login     LoginConfig
	Links     LinksConfig
	RateLimit RateLimitConfig
	TwoFactor TwoFactorConfig
	Password  password.Config
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig covers the ephemeral session and its registry row.
type SessionConfig struct {
	// Lifetime bounds a browser session and its active-session record.
	Lifetime time.Duration
	// RedisPrefix namespaces the engine's Redis keys.
	RedisPrefix string
}

/*
====================================
REMEMBER-ME CONFIG
====================================
*/

// RememberConfig covers the persistent "remember me" tokens.
type RememberConfig struct {
	// TTL garbage-collects a token independent of use. Default 90 days.
	TTL time.Duration

	CookieName   string
	CookiePath   string
	CookieDomain string
	CookieSecure bool

	// SigningKey signs the remember-me cookie payload (HS256). Required,
	// at least 32 bytes.
	SigningKey []byte
	// TokenKey keys the HMAC under which series/token values are stored.
	// Required, at least 32 bytes, and distinct from SigningKey.
	TokenKey []byte
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig covers the traditional credential strategy.
type LoginConfig struct {
	// UsernameFields are the username-equivalent columns OR-matched during
	// lookup. Default: username, email.
	UsernameFields []string

	UsernameParam string
	PasswordParam string
	RememberParam string
}

/*
====================================
USER LINK CONFIG
====================================
*/

// LinksConfig covers the single-use typed tokens.
type LinksConfig struct {
	// VerifyWindow is how long an email-verification link stays live.
	// Default 24h.
	VerifyWindow time.Duration
	// ForgotWindow is how long a forgot-password link stays live.
	// Default 30m.
	ForgotWindow time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig covers failed-login throttling. When disabled the engine
// uses the no-op limiter, which always permits.
type RateLimitConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig covers the built-in TOTP strategy. Ignored when a custom
// [TwoFactorStrategy] is supplied to the builder.
type TwoFactorConfig struct {
	Enabled   bool
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig covers security-event dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	// Dropped events are counted and reported by [Manager.AuditDropped].
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig covers the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults. Keys must still be supplied.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.withDefaults()
	return cfg
}

func (c *Config) withDefaults() {
	if c.Session.Lifetime <= 0 {
		c.Session.Lifetime = 24 * time.Hour
	}
	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = "auth"
	}

	if c.Remember.TTL <= 0 {
		c.Remember.TTL = 90 * 24 * time.Hour
	}
	if c.Remember.CookieName == "" {
		c.Remember.CookieName = "persistent"
	}
	if c.Remember.CookiePath == "" {
		c.Remember.CookiePath = "/"
	}

	if len(c.Login.UsernameFields) == 0 {
		c.Login.UsernameFields = []string{"username", "email"}
	}
	if c.Login.UsernameParam == "" {
		c.Login.UsernameParam = "username"
	}
	if c.Login.PasswordParam == "" {
		c.Login.PasswordParam = "password"
	}
	if c.Login.RememberParam == "" {
		c.Login.RememberParam = "remember"
	}

	if c.Links.VerifyWindow <= 0 {
		c.Links.VerifyWindow = 24 * time.Hour
	}
	if c.Links.ForgotWindow <= 0 {
		c.Links.ForgotWindow = 30 * time.Minute
	}

	if c.RateLimit.MaxAttempts <= 0 {
		c.RateLimit.MaxAttempts = 5
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = 15 * time.Minute
	}

	if c.TwoFactor.Issuer == "" {
		c.TwoFactor.Issuer = "auth"
	}
	if c.TwoFactor.Digits <= 0 {
		c.TwoFactor.Digits = 6
	}
	if c.TwoFactor.Period <= 0 {
		c.TwoFactor.Period = 30
	}
	if c.TwoFactor.Skew < 0 {
		c.TwoFactor.Skew = 0
	}
	if c.TwoFactor.Algorithm == "" {
		c.TwoFactor.Algorithm = "SHA1"
	}

	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 256
	}

	if c.Password == (password.Config{}) {
		c.Password = password.DefaultConfig()
	}
}

// Validate rejects configurations that cannot be operated safely.
func (c *Config) Validate() error {
	if len(c.Remember.SigningKey) < 32 {
		return errors.New("config: remember-me signing key must be at least 32 bytes")
	}
	if len(c.Remember.TokenKey) < 32 {
		return errors.New("config: remember-me token key must be at least 32 bytes")
	}
	if string(c.Remember.SigningKey) == string(c.Remember.TokenKey) {
		return errors.New("config: signing key and token key must differ")
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxAttempts <= 0 {
		return errors.New("config: rate limit max attempts must be positive")
	}
	return nil
}

func (c Config) sessionConfig() session.Config {
	return session.Config{
		Lifetime:     c.Session.Lifetime,
		RememberTTL:  c.Remember.TTL,
		CookieName:   c.Remember.CookieName,
		CookiePath:   c.Remember.CookiePath,
		CookieDomain: c.Remember.CookieDomain,
		CookieSecure: c.Remember.CookieSecure,
	}
}
