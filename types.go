package auth

import (
	"context"
	"time"

	"github.com/infusephp/auth/session"
)

// Aliases for the collaborator interfaces defined in the session package, so
// integrators only import one package.
type (
	// Request is the inbound request abstraction consumed by the engine.
	Request = session.Request
	// Response is the outbound response abstraction consumed by the engine.
	Response = session.Response
	// SessionState is the per-browser-session key/value state.
	SessionState = session.SessionState
	// Cookie is the cookie value written through [Response].
	Cookie = session.Cookie
)

// UserRecord is the account row returned by [UserProvider]. The user table
// itself is owned by the surrounding application; the engine only reads the
// fields it needs and writes back password hashes.
type UserRecord struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Enabled      bool

	// TwoFactorSecret is the per-user secret consumed by the configured
	// two-factor strategy. Empty means the strategy decides (typically: no
	// verification required for this user).
	TwoFactorSecret []byte
}

// UserProvider is the narrow read/write surface the engine requires from the
// application's user table. Lookups return a nil record (and nil error) when
// no account matches; errors are reserved for transport failures.
type UserProvider interface {
	// GetUserByUsername resolves a user by OR-matching value against the
	// given username-equivalent columns (e.g. username, email).
	GetUserByUsername(ctx context.Context, fields []string, value string) (*UserRecord, error)
	GetUserByID(ctx context.Context, id int64) (*UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// Mailer queues notification emails. Delivery is fire-and-forget: the engine
// never waits on or observes the outcome.
type Mailer interface {
	QueueEmail(template string, params map[string]any)
}

// Clock abstracts time for the token windows and audit timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Hasher is the single pluggable password-hash primitive. It is used for
// passwords only; token matching uses a dedicated keyed MAC (see the session
// package), never these parameters.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// User is the runtime principal resolved for a request. The signed-in and
// two-factor-verified flags are session-scoped and never persisted on the
// account row; temporary and verified are derived from user-link presence at
// resolution time.
type User struct {
	identity Identity
	record   *UserRecord

	signedIn          bool
	twoFactorVerified bool
	temporary         bool
	verified          bool
}

// NewUser builds a principal for the given identity. Guest and super-user
// principals carry no account record.
func NewUser(identity Identity, record *UserRecord) *User {
	return &User{identity: identity, record: record, verified: true}
}

// Identity returns the principal's identity class.
func (u *User) Identity() Identity { return u.identity }

// ID returns the stored numeric id, including the reserved negatives.
func (u *User) ID() int64 { return u.identity.ID() }

// Email returns the account email, or "" for guest/system principals.
func (u *User) Email() string {
	if u.record == nil {
		return ""
	}
	return u.record.Email
}

// Enabled reports whether the account may sign in. Guest and super-user
// principals are always enabled.
func (u *User) Enabled() bool {
	if u.record == nil {
		return true
	}
	return u.record.Enabled
}

// IsSignedIn reports whether the principal completed sign-in for this
// request. A user in the two-factor-pending state reports false.
func (u *User) IsSignedIn() bool { return u.signedIn }

// IsTwoFactorVerified reports whether the second factor was satisfied on the
// current session.
func (u *User) IsTwoFactorVerified() bool { return u.twoFactorVerified }

// IsTemporary reports whether the account is an incomplete registration.
func (u *User) IsTemporary() bool { return u.temporary }

// IsVerified reports whether the account email is verified, i.e. no live
// verification link exists within the verification window.
func (u *User) IsVerified() bool { return u.verified }

// Record returns the backing account row, nil for guest/system principals.
func (u *User) Record() *UserRecord { return u.record }

func (u *User) markSignedIn(signedIn bool) { u.signedIn = signedIn }

func (u *User) markTwoFactorVerified(ok bool) { u.twoFactorVerified = ok }

func (u *User) markTemporary(temporary bool) { u.temporary = temporary }

func (u *User) markVerified(verified bool) { u.verified = verified }
