package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/infusephp/auth/internal"
	"github.com/infusephp/auth/internal/stores"
)

// Strategy ids reported in [Result] and recorded in security events.
const (
	// StrategyWeb marks authentication from an existing browser session.
	StrategyWeb = "web"
	// StrategyPersistent marks authentication from a rotated remember-me token.
	StrategyPersistent = "persistent"
)

// Session keys. Namespaced so application code sharing the session cannot
// collide by accident.
const (
	keyUserID            = "auth.user_id"
	keyUserAgent         = "auth.user_agent"
	keyTwoFactorVerified = "auth.2fa_verified"
	keyRemembered        = "auth.remembered"
)

var (
	// ErrTokenReplay reports that an already-consumed persistent token was
	// presented. The store has already wiped every persistent session for the
	// email by the time this is returned.
	ErrTokenReplay = errors.New("persistent token replay detected")
	// ErrNoSession is returned when a session mutation has no subject.
	ErrNoSession = errors.New("session has no authenticated subject")
	// ErrStorageRefused wraps failures of the underlying session or registry
	// storage during a state change.
	ErrStorageRefused = errors.New("session storage refused")
)

// TokenReplayError is the concrete error behind [ErrTokenReplay]. It carries
// the account the replayed token targeted so the caller can audit the replay
// with an identity. errors.Is(err, ErrTokenReplay) matches it.
type TokenReplayError struct {
	UserID int64
}

func (e *TokenReplayError) Error() string { return ErrTokenReplay.Error() }

func (e *TokenReplayError) Is(target error) bool { return target == ErrTokenReplay }

// Config tunes the store.
type Config struct {
	// Lifetime bounds the ephemeral session and its registry row.
	Lifetime time.Duration
	// RememberTTL bounds a persistent token's life independent of use.
	RememberTTL time.Duration

	CookieName   string
	CookiePath   string
	CookieDomain string
	CookieSecure bool
}

// Result is the outcome of a successful request authentication.
type Result struct {
	UserID            int64
	Strategy          string
	TwoFactorVerified bool
	Remembered        bool
}

// Storage is the session storage contract. It is deliberately the only place
// the persistent-token rotation algorithm lives.
type Storage interface {
	// GetAuthenticatedUser authenticates the request from stored state:
	// ephemeral session first, then the remember-me cookie. A nil Result with
	// nil error means no authenticated subject.
	GetAuthenticatedUser(ctx context.Context, req Request, res Response) (*Result, error)
	// SignIn makes userID the session's subject. Idempotent for the current
	// subject; otherwise the session identifier is regenerated.
	SignIn(ctx context.Context, userID int64, req Request, res Response) error
	// Remember issues a fresh persistent (series, token) pair for the user
	// and writes the remember-me cookie.
	Remember(ctx context.Context, userID int64, email string, req Request, res Response) error
	// SignOut destroys the session, removes the remember-me cookie and its
	// stored row, and retires the registry record.
	SignOut(ctx context.Context, req Request, res Response) error
	// SetTwoFactorVerified persists the two-factor-verified flag on the
	// current session.
	SetTwoFactorVerified(ctx context.Context, req Request, res Response) error
}

// Store is the unified Storage implementation.
type Store struct {
	cfg        Config
	codec      *RememberCodec
	persistent *stores.PersistentSessions
	registry   *stores.ActiveSessions
	users      UserResolver
	now        func() time.Time
}

// NewStore wires a Store from its collaborators. now may be nil for the
// system clock.
func NewStore(
	cfg Config,
	codec *RememberCodec,
	persistent *stores.PersistentSessions,
	registry *stores.ActiveSessions,
	users UserResolver,
	now func() time.Time,
) *Store {
	if cfg.CookieName == "" {
		cfg.CookieName = "persistent"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		cfg:        cfg,
		codec:      codec,
		persistent: persistent,
		registry:   registry,
		users:      users,
		now:        now,
	}
}

// SubjectID reads the session's stored subject id without consulting any
// store. It reports false when the session has no subject.
func SubjectID(req Request) (int64, bool) {
	raw, ok := req.Session().Get(keyUserID)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// GetAuthenticatedUser implements [Storage].
func (s *Store) GetAuthenticatedUser(ctx context.Context, req Request, res Response) (*Result, error) {
	result, err := s.fromSession(ctx, req)
	if err != nil || result != nil {
		return result, err
	}
	return s.fromPersistentToken(ctx, req, res)
}

func (s *Store) fromSession(ctx context.Context, req Request) (*Result, error) {
	sess := req.Session()

	raw, ok := sess.Get(keyUserID)
	if !ok {
		return nil, nil
	}

	// Anti-hijack: the session is bound to the agent that created it.
	agent, _ := sess.Get(keyUserAgent)
	if agent != req.UserAgent() {
		return nil, nil
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, nil
	}

	if userID > 0 {
		valid, err := s.registry.IsValid(ctx, sess.ID())
		if err != nil {
			return nil, err
		}
		if !valid {
			// Retired by sign-out-everywhere or past its lifetime.
			_ = sess.Destroy()
			return nil, nil
		}
	}

	_, twoFactor := sess.Get(keyTwoFactorVerified)
	_, remembered := sess.Get(keyRemembered)

	return &Result{
		UserID:            userID,
		Strategy:          StrategyWeb,
		TwoFactorVerified: twoFactor,
		Remembered:        remembered,
	}, nil
}

// fromPersistentToken runs the rotation algorithm: decode, bind to agent,
// resolve the account, atomically consume the (series, token) row, and on a
// match sign the user in and reissue a fresh token under the same series.
func (s *Store) fromPersistentToken(ctx context.Context, req Request, res Response) (*Result, error) {
	raw, ok := req.Cookie(s.cfg.CookieName)
	if !ok || raw == "" {
		return nil, nil
	}

	payload, err := s.codec.Decode(raw)
	if err != nil {
		s.clearRememberCookie(res)
		return nil, nil
	}

	if payload.Agent != req.UserAgent() {
		s.clearRememberCookie(res)
		return nil, nil
	}

	userID, found, err := s.users.UserIDByEmail(ctx, payload.Email)
	if err != nil {
		return nil, err
	}
	if !found {
		s.clearRememberCookie(res)
		return nil, nil
	}

	consumed, err := s.persistent.Consume(ctx, payload.Email, payload.Series, payload.Token)
	if err != nil {
		return nil, err
	}

	switch consumed.Status {
	case stores.ConsumeMatched:
		if consumed.UserID != userID {
			// Row no longer belongs to the directory's account; fail closed.
			s.clearRememberCookie(res)
			return nil, nil
		}

		if err := s.SignIn(ctx, userID, req, res); err != nil {
			return nil, err
		}

		if err := s.reissue(ctx, payload, userID, req, res); err != nil {
			return nil, err
		}

		req.Session().Set(keyRemembered, "1")

		return &Result{
			UserID:            userID,
			Strategy:          StrategyPersistent,
			Remembered:        true,
			TwoFactorVerified: false,
		}, nil

	case stores.ConsumeReplay:
		s.clearRememberCookie(res)
		return nil, &TokenReplayError{UserID: userID}

	default:
		s.clearRememberCookie(res)
		return nil, nil
	}
}

// reissue stores a new token under the consumed slot's series and rewrites
// the cookie.
func (s *Store) reissue(ctx context.Context, payload RememberPayload, userID int64, req Request, res Response) error {
	token, err := internal.NewToken()
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.persistent.Save(ctx, payload.Email, payload.Series, token, userID, now, s.cfg.RememberTTL); err != nil {
		return err
	}

	fresh := RememberPayload{
		Email:  payload.Email,
		Agent:  req.UserAgent(),
		Series: payload.Series,
		Token:  token,
	}
	return s.writeRememberCookie(res, fresh, now)
}

// SignIn implements [Storage].
func (s *Store) SignIn(ctx context.Context, userID int64, req Request, res Response) error {
	sess := req.Session()
	subject := strconv.FormatInt(userID, 10)

	if current, ok := sess.Get(keyUserID); ok {
		if current == subject {
			return nil
		}
		if previousID, err := strconv.ParseInt(current, 10, 64); err == nil && previousID > 0 {
			if err := s.registry.Delete(ctx, sess.ID(), previousID); err != nil {
				return fmt.Errorf("%w: %v", ErrStorageRefused, err)
			}
		}
	}

	// Fixation defense: the authenticated identity changed, so the session
	// identifier must change with it.
	newID, err := sess.Regenerate()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageRefused, err)
	}

	sess.Set(keyUserID, subject)
	sess.Set(keyUserAgent, req.UserAgent())
	sess.Delete(keyTwoFactorVerified)
	sess.Delete(keyRemembered)

	if userID > 0 {
		record := stores.ActiveRecord{
			SessionID: newID,
			UserID:    userID,
			IP:        req.IP(),
			UserAgent: req.UserAgent(),
			Expires:   s.now().Add(s.cfg.Lifetime),
			Valid:     true,
		}
		if err := s.registry.Record(ctx, record, s.cfg.Lifetime); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageRefused, err)
		}
	}

	return nil
}

// Remember implements [Storage].
func (s *Store) Remember(ctx context.Context, userID int64, email string, req Request, res Response) error {
	if userID <= 0 || email == "" {
		return ErrNoSession
	}

	series, err := internal.NewSeries()
	if err != nil {
		return err
	}
	token, err := internal.NewToken()
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.persistent.Save(ctx, email, series, token, userID, now, s.cfg.RememberTTL); err != nil {
		return err
	}

	payload := RememberPayload{
		Email:  email,
		Agent:  req.UserAgent(),
		Series: series,
		Token:  token,
	}
	if err := s.writeRememberCookie(res, payload, now); err != nil {
		return err
	}

	req.Session().Set(keyRemembered, "1")
	return nil
}

// SignOut implements [Storage].
func (s *Store) SignOut(ctx context.Context, req Request, res Response) error {
	sess := req.Session()

	if raw, ok := sess.Get(keyUserID); ok {
		if userID, err := strconv.ParseInt(raw, 10, 64); err == nil && userID > 0 {
			if err := s.registry.Delete(ctx, sess.ID(), userID); err != nil {
				return fmt.Errorf("%w: %v", ErrStorageRefused, err)
			}
		}
	}

	// Retire the presented remember-me slot alongside the cookie.
	if raw, ok := req.Cookie(s.cfg.CookieName); ok && raw != "" {
		if payload, err := s.codec.Decode(raw); err == nil {
			if err := s.persistent.DeleteSeries(ctx, payload.Email, payload.Series); err != nil {
				return fmt.Errorf("%w: %v", ErrStorageRefused, err)
			}
		}
	}
	s.clearRememberCookie(res)

	if err := sess.Destroy(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageRefused, err)
	}
	return nil
}

// SetTwoFactorVerified implements [Storage].
func (s *Store) SetTwoFactorVerified(ctx context.Context, req Request, res Response) error {
	sess := req.Session()
	if _, ok := sess.Get(keyUserID); !ok {
		return ErrNoSession
	}
	sess.Set(keyTwoFactorVerified, "1")
	return nil
}

func (s *Store) writeRememberCookie(res Response, payload RememberPayload, now time.Time) error {
	value, err := s.codec.Encode(payload, s.cfg.RememberTTL, now)
	if err != nil {
		return err
	}

	res.SetCookie(Cookie{
		Name:     s.cfg.CookieName,
		Value:    value,
		Path:     s.cfg.CookiePath,
		Domain:   s.cfg.CookieDomain,
		Expires:  now.Add(s.cfg.RememberTTL),
		MaxAge:   int(s.cfg.RememberTTL / time.Second),
		Secure:   s.cfg.CookieSecure,
		HTTPOnly: true,
	})
	return nil
}

func (s *Store) clearRememberCookie(res Response) {
	res.SetCookie(Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     s.cfg.CookiePath,
		Domain:   s.cfg.CookieDomain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   s.cfg.CookieSecure,
		HTTPOnly: true,
	})
}
