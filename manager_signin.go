package auth

import (
	"context"
	"fmt"
	"log"

	"github.com/infusephp/auth/session"
)

// SignInUser makes the user the subject of the request's session. When a
// second factor is still outstanding the user is returned in the
// two-factor-pending state and no security event is recorded yet; the event
// is written by the eventual [Manager.VerifyTwoFactor] sign-in. A refused
// remember-me persistence fails the whole sign-in rather than degrading it
// silently.
func (m *Manager) SignInUser(ctx context.Context, user *User, strategyID string, remember bool, req Request, res Response) (*User, error) {
	if m == nil {
		return nil, ErrNotReady
	}

	if err := m.storage.SignIn(ctx, user.ID(), req, res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}
	user.markSignedIn(true)

	if pending, err := m.twoFactorPending(ctx, user); err != nil {
		return nil, err
	} else if pending {
		user.markSignedIn(false)
		m.metricInc(MetricTwoFactorPending)
		return user, nil
	}

	if remember && user.Identity().IsRegistered() {
		if err := m.storage.Remember(ctx, user.ID(), user.Email(), req, res); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRememberFailed, err)
		}
	}

	if user.Identity().IsRegistered() {
		m.metricInc(MetricLoginSuccess)
		m.recordEvent(ctx, SecurityEvent{
			Type:      EventLogin,
			UserID:    user.ID(),
			IP:        req.IP(),
			UserAgent: req.UserAgent(),
			Strategy:  strategyID,
		})
	}

	return user, nil
}

// Logout signs the current subject out and always re-establishes a guest
// session, so the caller never observes an absent identity.
func (m *Manager) Logout(ctx context.Context, req Request, res Response) error {
	if m == nil {
		return ErrNotReady
	}

	// The subject is readable only until SignOut destroys the session.
	subject, _ := session.SubjectID(req)

	if err := m.storage.SignOut(ctx, req, res); err != nil {
		return fmt.Errorf("%w: %v", ErrSignOutFailed, err)
	}

	event := SecurityEvent{
		Type:      EventLogout,
		IP:        req.IP(),
		UserAgent: req.UserAgent(),
	}
	if subject > 0 {
		event.UserID = subject
	}
	m.metricInc(MetricLogout)
	m.recordEvent(ctx, event)

	if err := m.storage.SignIn(ctx, GuestID, req, res); err != nil {
		return fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}
	return nil
}

// SignOutAllSessions invalidates every active session row for the user and
// deletes every persistent session. It is a bulk administrative action, not
// transactional with the caller's own session, and is idempotent.
func (m *Manager) SignOutAllSessions(ctx context.Context, user *User) error {
	if m == nil {
		return ErrNotReady
	}
	if user == nil || !user.Identity().IsRegistered() {
		return nil
	}

	if err := m.active.InvalidateAllForUser(ctx, user.ID()); err != nil {
		return err
	}
	if err := m.persistent.PurgeEmail(ctx, user.Email()); err != nil {
		return err
	}

	m.metricInc(MetricSignOutEverywhere)
	m.recordEvent(ctx, SecurityEvent{
		Type:   EventSignOutEverywhere,
		UserID: user.ID(),
	})
	return nil
}

// resetLoginCounters clears the failure counters for the identifiers an
// account can log in under. Best effort: a failed reset only extends an
// existing lockout.
func (m *Manager) resetLoginCounters(ctx context.Context, record *UserRecord) {
	limiter, ok := m.limiter.(*CountingRateLimiter)
	if !ok || record == nil {
		return
	}
	for _, identifier := range []string{record.Username, record.Email} {
		if identifier == "" {
			continue
		}
		if err := limiter.Reset(ctx, identifier); err != nil {
			log.Print("auth: login limiter reset failed after password change")
		}
	}
}
