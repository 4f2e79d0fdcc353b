// Package auth provides the authentication and session-security engine for a
// web application: credential strategies, ephemeral session handling with
// fixation defenses, rotating "remember me" tokens with replay detection,
// single-use windowed tokens for email verification and password reset, login
// rate limiting, and security-event auditing.
//
// The package is designed for concurrent server workloads: Manager methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// auth is the public surface. It exposes [Manager], [Builder], [Config], the
// collaborator interfaces ([UserProvider], [Mailer], [RateLimiter]), and value
// types. HTTP transport, the user table, templating/email delivery, and schema
// management are external collaborators reached only through the narrow
// interfaces in types.go and the session package. Persistence for the records
// this package does own (persistent sessions, user links, active sessions,
// rate counters) is Redis, and all of it lives under internal/.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encodings in its
//     public API.
//   - Implement HTTP handling, password policy research, or an identity
//     provider (no OAuth/SAML).
//   - Hold an ambient "current user" singleton; the resolved principal is
//     returned to the caller and, if desired, carried via [WithUser].
package auth
