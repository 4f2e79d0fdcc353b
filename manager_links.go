package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/infusephp/auth/internal"
	"github.com/infusephp/auth/internal/stores"
)

// Email template names handed to the [Mailer].
const (
	// TemplateVerifyEmail carries an email-verification link.
	TemplateVerifyEmail = "verify-email"
	// TemplateForgotPassword carries a password-reset link.
	TemplateForgotPassword = "forgot-password"
)

// IssueVerificationEmail creates an email-verification link for the user and
// queues the notification. While the link is live the account reports
// IsVerified() == false. A live link already existing makes this a
// successful no-op: repeated requests cannot invalidate an email already in
// flight.
func (m *Manager) IssueVerificationEmail(ctx context.Context, user *User) error {
	if m == nil {
		return ErrNotReady
	}
	if user == nil || !user.Identity().IsRegistered() {
		return ErrNoAccount
	}

	link, err := internal.NewLink()
	if err != nil {
		return err
	}

	created, err := m.links.Issue(ctx, user.ID(), stores.LinkVerifyEmail, link, m.cfg.Links.VerifyWindow, m.clock.Now())
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	user.markVerified(false)
	m.metricInc(MetricLinkIssued)
	m.queueEmail(TemplateVerifyEmail, map[string]any{
		"link":  link,
		"email": user.Email(),
	})
	return nil
}

// ConsumeVerificationToken resolves and deletes an email-verification link,
// returning the now-verified user. A wrong, expired, or already-consumed
// token fails with [ErrTokenExpired].
func (m *Manager) ConsumeVerificationToken(ctx context.Context, token string) (*User, error) {
	if m == nil {
		return nil, ErrNotReady
	}

	userID, _, err := m.links.Consume(ctx, token, stores.LinkVerifyEmail, m.cfg.Links.VerifyWindow, m.clock.Now())
	if errors.Is(err, stores.ErrLinkNotFound) {
		m.metricInc(MetricLinkRejected)
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, err
	}

	if err := m.links.Delete(ctx, token, stores.LinkVerifyEmail); err != nil {
		return nil, err
	}

	user, err := m.userFromID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrTokenExpired
	}

	m.metricInc(MetricLinkConsumed)
	m.recordEvent(ctx, SecurityEvent{
		Type:   EventVerifyEmail,
		UserID: userID,
	})
	return user, nil
}

// ForgotPasswordStep1 issues a password-reset link for the account matching
// email and queues the notification. Repeated requests within the validity
// window are successful no-ops that send no further email.
func (m *Manager) ForgotPasswordStep1(ctx context.Context, email, ip, userAgent string) error {
	if m == nil {
		return ErrNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrEmailRequired
	}

	record, err := m.provider.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNoAccount
	}

	link, err := internal.NewLink()
	if err != nil {
		return err
	}

	created, err := m.links.Issue(ctx, record.ID, stores.LinkForgotPassword, link, m.cfg.Links.ForgotWindow, m.clock.Now())
	if err != nil {
		return err
	}
	if created {
		m.metricInc(MetricLinkIssued)
		m.queueEmail(TemplateForgotPassword, map[string]any{
			"link":  link,
			"email": record.Email,
			"ip":    ip,
		})
	}

	m.recordEvent(ctx, SecurityEvent{
		Type:      EventRequestReset,
		UserID:    record.ID,
		IP:        ip,
		UserAgent: userAgent,
	})
	return nil
}

// ForgotPasswordStep2 consumes a reset link and sets the new password. Every
// session of the account, ephemeral and persistent, is invalidated so a
// stolen session cannot outlive the reset.
func (m *Manager) ForgotPasswordStep2(ctx context.Context, token, newPassword, ip string) error {
	if m == nil {
		return ErrNotReady
	}

	userID, _, err := m.links.Consume(ctx, token, stores.LinkForgotPassword, m.cfg.Links.ForgotWindow, m.clock.Now())
	if errors.Is(err, stores.ErrLinkNotFound) {
		m.metricInc(MetricLinkRejected)
		return ErrTokenExpired
	}
	if err != nil {
		return err
	}

	record, err := m.provider.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrTokenExpired
	}

	hash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := m.provider.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}

	if err := m.links.Delete(ctx, token, stores.LinkForgotPassword); err != nil {
		return err
	}

	if err := m.active.InvalidateAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := m.persistent.PurgeEmail(ctx, record.Email); err != nil {
		return err
	}
	m.resetLoginCounters(ctx, record)

	m.metricInc(MetricLinkConsumed)
	m.recordEvent(ctx, SecurityEvent{
		Type:   EventResetPassword,
		UserID: userID,
		IP:     ip,
	})
	return nil
}

// MarkAccountTemporary flags the user as an incomplete registration. While
// the marker is live the account reports IsTemporary() == true and the
// traditional strategy refuses sign-in.
func (m *Manager) MarkAccountTemporary(ctx context.Context, user *User) error {
	if m == nil {
		return ErrNotReady
	}
	if user == nil || !user.Identity().IsRegistered() {
		return ErrNoAccount
	}

	link, err := internal.NewLink()
	if err != nil {
		return err
	}

	// Temporary markers never expire on their own; registration completes or
	// an operator cleans up.
	if _, err := m.links.Issue(ctx, user.ID(), stores.LinkTemporary, link, 0, m.clock.Now()); err != nil {
		return err
	}
	user.markTemporary(true)
	return nil
}

// UpgradeTemporaryAccount completes a temporary registration: the marker is
// removed and the usual verification email goes out.
func (m *Manager) UpgradeTemporaryAccount(ctx context.Context, user *User) error {
	if m == nil {
		return ErrNotReady
	}
	if user == nil || !user.Identity().IsRegistered() {
		return ErrNoAccount
	}

	if err := m.links.DeleteForUser(ctx, user.ID(), stores.LinkTemporary); err != nil {
		return err
	}
	user.markTemporary(false)

	return m.IssueVerificationEmail(ctx, user)
}
