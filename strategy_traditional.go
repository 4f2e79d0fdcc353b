package auth

import (
	"context"
	"strings"

	"github.com/infusephp/auth/internal/stores"
)

// StrategyTraditional is the id of the built-in username+password strategy.
const StrategyTraditional = "traditional"

// TraditionalStrategy authenticates a username-equivalent identifier and
// password, guarded by the rate limiter, then applies the account-state
// gates: temporary first, disabled second, unverified last. The order
// matters: a disabled temporary account must report "not set up", not
// "disabled".
type TraditionalStrategy struct {
	cfg      LoginConfig
	provider UserProvider
	hasher   Hasher
	limiter  RateLimiter
	links    *stores.UserLinks
}

func newTraditionalStrategy(
	cfg LoginConfig,
	provider UserProvider,
	hasher Hasher,
	limiter RateLimiter,
	links *stores.UserLinks,
) *TraditionalStrategy {
	return &TraditionalStrategy{
		cfg:      cfg,
		provider: provider,
		hasher:   hasher,
		limiter:  limiter,
		links:    links,
	}
}

// ID implements [Strategy].
func (s *TraditionalStrategy) ID() string { return StrategyTraditional }

// Authenticate implements [Strategy].
func (s *TraditionalStrategy) Authenticate(ctx context.Context, req Request) (*UserRecord, error) {
	username := strings.TrimSpace(req.Param(s.cfg.UsernameParam))
	password := req.Param(s.cfg.PasswordParam)

	if username == "" {
		return nil, ErrUsernameRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	allowed, err := s.limiter.CanLogin(ctx, username)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrLoginThrottled
	}

	record, err := s.provider.GetUserByUsername(ctx, s.cfg.UsernameFields, username)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// Unknown user and wrong password share one failure so this path
		// cannot enumerate accounts, and both count against the limiter.
		if recErr := s.limiter.RecordFailedLogin(ctx, username); recErr != nil {
			return nil, recErr
		}
		return nil, ErrInvalidCredentials
	}

	match, err := s.hasher.Verify(password, record.PasswordHash)
	if err != nil || !match {
		if recErr := s.limiter.RecordFailedLogin(ctx, username); recErr != nil {
			return nil, recErr
		}
		return nil, ErrInvalidCredentials
	}

	if temporary, err := s.links.HasLive(ctx, record.ID, stores.LinkTemporary); err != nil {
		return nil, err
	} else if temporary {
		return nil, ErrAccountTemporary
	}

	if !record.Enabled {
		return nil, ErrAccountDisabled
	}

	if unverified, err := s.links.HasLive(ctx, record.ID, stores.LinkVerifyEmail); err != nil {
		return nil, err
	} else if unverified {
		return nil, ErrAccountUnverified
	}

	return record, nil
}
