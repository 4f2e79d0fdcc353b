package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/infusephp/auth/session"
)

// GetAuthenticatedUser resolves the current principal for the request:
// ephemeral session first, then the remember-me token. When no user can be
// resolved a guest session is established, so callers never observe an
// absent identity. A returned user with IsSignedIn() == false is in the
// two-factor-pending state and must not be treated as authenticated.
func (m *Manager) GetAuthenticatedUser(ctx context.Context, req Request, res Response) (*User, error) {
	if m == nil {
		return nil, ErrNotReady
	}

	result, err := m.storage.GetAuthenticatedUser(ctx, req, res)
	if errors.Is(err, session.ErrTokenReplay) {
		// A stolen-cookie replay (or a client racing its own refresh). The
		// store already wiped every persistent session for the email; callers
		// see an ordinary miss, operators see the counter and the event.
		event := SecurityEvent{
			Type:        EventReplayDetected,
			IP:          req.IP(),
			UserAgent:   req.UserAgent(),
			Description: "persistent token replay; all persistent sessions deleted",
		}
		var replay *session.TokenReplayError
		if errors.As(err, &replay) {
			event.UserID = replay.UserID
		}
		m.metricInc(MetricReplayDetected)
		m.recordEvent(ctx, event)
		result, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user *User
	if result != nil {
		user, err = m.userFromID(ctx, result.UserID)
		if err != nil {
			return nil, err
		}
	}

	if user == nil {
		return m.signInGuest(ctx, req, res)
	}

	user.markSignedIn(true)
	user.markTwoFactorVerified(result.TwoFactorVerified)

	pending, err := m.twoFactorPending(ctx, user)
	if err != nil {
		return nil, err
	}
	if pending {
		user.markSignedIn(false)
	}

	if result.Strategy == session.StrategyPersistent {
		// The store rotated the token and signed the user in; the event is
		// recorded here so every sign-in path audits through one place. A
		// sign-in still awaiting its second factor records no event yet; the
		// eventual VerifyTwoFactor sign-in does.
		m.metricInc(MetricTokenRotated)
		if user.Identity().IsRegistered() && !pending {
			m.metricInc(MetricLoginSuccess)
			m.recordEvent(ctx, SecurityEvent{
				Type:      EventLogin,
				UserID:    user.ID(),
				IP:        req.IP(),
				UserAgent: req.UserAgent(),
				Strategy:  session.StrategyPersistent,
			})
		}
	}

	return user, nil
}

// Authenticate runs the registered strategy and, on success, performs the
// full sign-in. The remember flag is read from the configured request
// parameter.
func (m *Manager) Authenticate(ctx context.Context, strategyID string, req Request, res Response) (*User, error) {
	if m == nil {
		return nil, ErrNotReady
	}

	strategy, ok := m.registry.get(strategyID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStrategyUnknown, strategyID)
	}

	record, err := strategy.Authenticate(ctx, req)
	if err != nil {
		if errors.Is(err, ErrLoginThrottled) {
			m.metricInc(MetricLoginThrottled)
		} else {
			m.metricInc(MetricLoginFailure)
		}
		return nil, err
	}

	user := NewUser(Registered(record.ID), record)
	if err := m.decorateAccountFlags(ctx, user); err != nil {
		return nil, err
	}

	remember := req.Param(m.cfg.Login.RememberParam) != ""
	return m.SignInUser(ctx, user, strategyID, remember, req, res)
}

func (m *Manager) signInGuest(ctx context.Context, req Request, res Response) (*User, error) {
	if err := m.storage.SignIn(ctx, GuestID, req, res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}
	guest := NewUser(Guest(), nil)
	guest.markSignedIn(true)
	return guest, nil
}

// twoFactorPending reports whether the user must still present a second
// factor before counting as signed in.
func (m *Manager) twoFactorPending(ctx context.Context, user *User) (bool, error) {
	if m.twoFactor == nil || !user.Identity().IsRegistered() || user.IsTwoFactorVerified() {
		return false, nil
	}
	return m.twoFactor.NeedsVerification(ctx, user)
}
