package auth

import (
	"context"

	"github.com/infusephp/auth/internal/stores"
	"github.com/infusephp/auth/session"
)

// Manager is the single entry point the rest of the application calls for
// authentication: it orchestrates credential strategies, session storage,
// two-factor gating, token lifecycles, rate limiting, and security-event
// recording. Build one through [Builder]; it is immutable and safe for
// concurrent use afterwards.
type Manager struct {
	cfg       Config
	registry  *strategyRegistry
	twoFactor TwoFactorStrategy

	storage    session.Storage
	provider   UserProvider
	links      *stores.UserLinks
	active     *stores.ActiveSessions
	persistent *stores.PersistentSessions

	limiter RateLimiter
	hasher  Hasher
	mailer  Mailer
	audit   *auditDispatcher
	metrics *Metrics
	clock   Clock
}

// Close flushes and stops the audit dispatcher.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.audit.Close()
}

// AuditDropped reports how many security events were dropped by a full audit
// buffer.
func (m *Manager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return m.metrics.Snapshot()
}

// RateLimiter exposes the configured limiter so callers can surface remaining
// attempts in their UI.
func (m *Manager) RateLimiter() RateLimiter { return m.limiter }

func (m *Manager) metricInc(id MetricID) {
	if m == nil {
		return
	}
	m.metrics.Inc(id)
}

func (m *Manager) recordEvent(ctx context.Context, event SecurityEvent) {
	if m == nil || m.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.clock.Now()
	}
	m.audit.Emit(ctx, event)
}

func (m *Manager) queueEmail(template string, params map[string]any) {
	if m == nil || m.mailer == nil {
		return
	}
	m.mailer.QueueEmail(template, params)
}

// userFromID builds the principal for a stored user id. Guest and super-user
// ids are constructed without a lookup; registered ids must resolve or the
// result is nil.
func (m *Manager) userFromID(ctx context.Context, id int64) (*User, error) {
	identity := IdentityFromID(id)
	if !identity.IsRegistered() {
		return NewUser(identity, nil), nil
	}

	record, err := m.provider.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	user := NewUser(identity, record)
	if err := m.decorateAccountFlags(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// decorateAccountFlags derives the temporary and verified flags from live
// user links.
func (m *Manager) decorateAccountFlags(ctx context.Context, user *User) error {
	if !user.Identity().IsRegistered() {
		return nil
	}

	temporary, err := m.links.HasLive(ctx, user.ID(), stores.LinkTemporary)
	if err != nil {
		return err
	}
	user.markTemporary(temporary)

	unverified, err := m.links.HasLive(ctx, user.ID(), stores.LinkVerifyEmail)
	if err != nil {
		return err
	}
	user.markVerified(!unverified)

	return nil
}
