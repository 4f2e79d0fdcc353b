package session

import (
	"context"
	"time"
)

// Cookie is the value written through [Response]. MaxAge < 0 deletes the
// cookie; MaxAge == 0 means session-scoped.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HTTPOnly bool
}

// Request is the narrow inbound-request surface the engine consumes. The
// surrounding application adapts its HTTP framework to it.
type Request interface {
	// IP returns the caller's remote address.
	IP() string
	// UserAgent returns the caller's User-Agent string.
	UserAgent() string
	// Param returns a request parameter (form or query) by name, "" if absent.
	Param(name string) string
	// Cookie returns the named cookie value and whether it was present.
	Cookie(name string) (string, bool)
	// Session returns the browser-session state bound to this request.
	Session() SessionState
}

// Response is the narrow outbound surface: cookie writes only.
type Response interface {
	SetCookie(c Cookie)
}

// SessionState is per-browser-session key/value state with the identifier
// operations the fixation defenses need. Implementations are request-scoped;
// the old-to-new handover during Regenerate is a critical section owned by
// the implementation.
type SessionState interface {
	ID() string
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	// Regenerate assigns a fresh session identifier, migrating stored values,
	// and returns the new id.
	Regenerate() (string, error)
	// Destroy removes the session and all stored values.
	Destroy() error
}

// UserResolver resolves an account id by email for the persistent-token path.
// An absent account must fail closed, so the lookup happens before the stored
// token row is even consulted.
type UserResolver interface {
	UserIDByEmail(ctx context.Context, email string) (int64, bool, error)
}
