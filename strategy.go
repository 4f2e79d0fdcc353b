package auth

import (
	"context"
	"fmt"
)

// Strategy validates a presented credential against a user record and
// account-state rules, independent of session mechanics. Implementations
// must not start sessions; the Manager does that.
type Strategy interface {
	// ID is the stable identifier recorded in security events.
	ID() string
	// Authenticate resolves and verifies the credential carried by the
	// request. It returns the matched account record or one of the
	// authentication-failure errors.
	Authenticate(ctx context.Context, req Request) (*UserRecord, error)
}

// TwoFactorStrategy gates sign-in behind a second factor.
type TwoFactorStrategy interface {
	// ID is the stable identifier recorded in security events.
	ID() string
	// NeedsVerification reports whether this user must present a second
	// factor before being considered signed in.
	NeedsVerification(ctx context.Context, user *User) (bool, error)
	// Verify checks the presented second-factor token.
	Verify(ctx context.Context, user *User, token string) error
}

// strategyRegistry maps string ids to strategies. It is assembled once by
// Build and read-only afterwards, replacing the old pattern of resolving
// strategy class names from configuration at call time.
type strategyRegistry struct {
	strategies map[string]Strategy
}

func newStrategyRegistry() *strategyRegistry {
	return &strategyRegistry{strategies: make(map[string]Strategy)}
}

func (r *strategyRegistry) register(s Strategy) error {
	if s == nil || s.ID() == "" {
		return fmt.Errorf("strategy must have a non-empty id")
	}
	if _, exists := r.strategies[s.ID()]; exists {
		return fmt.Errorf("strategy %q already registered", s.ID())
	}
	r.strategies[s.ID()] = s
	return nil
}

func (r *strategyRegistry) get(id string) (Strategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}
