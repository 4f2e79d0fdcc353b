package auth

import "errors"

// Validation failures: malformed input, always recoverable and surfaced
// verbatim to the caller.
var (
	// ErrUsernameRequired is returned when the login request carries no username.
	ErrUsernameRequired = errors.New("please enter a valid username")
	// ErrPasswordRequired is returned when the login request carries no password.
	ErrPasswordRequired = errors.New("please enter a valid password")
	// ErrEmailRequired is returned when a forgot-password request carries no email.
	ErrEmailRequired = errors.New("please enter a valid email address")
)

// Authentication failures: recoverable, with distinct messages per cause so a
// UI can guide the user. Unknown-user and wrong-password deliberately share
// ErrInvalidCredentials so the login path cannot be used to enumerate accounts.
var (
	// ErrInvalidCredentials covers both an unknown user and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountTemporary is returned for accounts that never finished registration.
	ErrAccountTemporary = errors.New("account has not been set up yet")
	// ErrAccountDisabled is returned for administratively disabled accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountUnverified is returned when the account email is not yet verified.
	ErrAccountUnverified = errors.New("account email not verified")
	// ErrLoginThrottled is returned when the rate limiter refuses further attempts.
	ErrLoginThrottled = errors.New("too many failed login attempts")
	// ErrTokenExpired is returned for an expired, consumed, or unknown link token.
	// Replayed remember-me tokens surface through this same error; the replay
	// reaction is internal (see Manager.GetAuthenticatedUser).
	ErrTokenExpired = errors.New("token expired or invalid")
	// ErrTwoFactorInvalid is returned when the second-factor code does not verify.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotConfigured is returned from VerifyTwoFactor when no
	// two-factor strategy was registered.
	ErrTwoFactorNotConfigured = errors.New("two-factor strategy not configured")
	// ErrStrategyUnknown is returned for a strategy id absent from the registry.
	ErrStrategyUnknown = errors.New("unknown authentication strategy")
	// ErrNoAccount is returned by the forgot-password flow when no account
	// matches the supplied email.
	ErrNoAccount = errors.New("no account matches that email address")
)

// Integrity failures: storage refused a state change mid-operation. These are
// fatal for the current operation and never swallowed, because a partially
// applied session is worse than a visible error.
var (
	// ErrSignInFailed is returned when session storage refuses a sign-in.
	ErrSignInFailed = errors.New("sign in failed: session storage refused")
	// ErrSignOutFailed is returned when session storage refuses a sign-out.
	ErrSignOutFailed = errors.New("sign out failed: session storage refused")
	// ErrRememberFailed is returned when persisting a remember-me token fails.
	// Silently degrading "remember me" would be a security-relevant surprise
	// to the caller, so the whole sign-in fails instead.
	ErrRememberFailed = errors.New("could not persist remember-me session")
	// ErrSessionUpdateFailed is returned when the two-factor-verified flag
	// cannot be persisted on the session.
	ErrSessionUpdateFailed = errors.New("could not update session state")
	// ErrNotReady is returned from Manager methods before Build completed.
	ErrNotReady = errors.New("auth manager not initialized")
)
